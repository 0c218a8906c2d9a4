package scape

import (
	"context"
	"errors"
	"image"
	"reflect"
	"testing"

	"radarrace/internal/racer"
	"radarrace/internal/track"
)

func fixed(outputs ...float64) Controller {
	return ControllerFunc(func(_ context.Context, _ []float64) ([]float64, error) {
		return outputs, nil
	})
}

var (
	drive = fixed(1, 0, 0, 0)
	stay  = fixed(0, 0, 0, 0)
)

// padTrack is 400x400 with a green pad 35 units right of the start at (100,200)
// and a red pad far away in the corner.
func padTrack(t *testing.T) *track.Track {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	track.Fill(img, img.Bounds(), track.Black)
	track.Fill(img, image.Rect(135, 150, 200, 250), track.Green)
	track.Fill(img, image.Rect(380, 380, 400, 400), track.Red)
	tr, err := track.FromImage(img, track.DefaultPalette(), 400, 400)
	if err != nil {
		t.Fatalf("build track: %v", err)
	}
	return tr
}

func newPadScape(t *testing.T, workers int) *RaceScape {
	t.Helper()
	sc, err := NewRaceScape(RaceConfig{Track: padTrack(t), Start: &Point{X: 100, Y: 200}, Workers: workers, Seed: 7})
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}
	return sc
}

func colorPtr(c track.Color) *track.Color {
	return &c
}

func groupEntrants() []Entrant {
	return []Entrant{
		{ID: "g1", Controller: drive, Color: colorPtr(track.Green)},
		{ID: "r1", Controller: stay, Color: colorPtr(track.Red)},
		{ID: "g2", Controller: drive, Color: colorPtr(track.Green)},
		{ID: "r2", Controller: stay, Color: colorPtr(track.Red)},
		{ID: "r3", Controller: stay, Color: colorPtr(track.Red)},
	}
}

func TestGroupBonusGoesToFinishedOnly(t *testing.T) {
	sc := newPadScape(t, 1)
	episode, err := sc.NewEpisode(&EpisodeContext{Generation: 1}, groupEntrants())
	if err != nil {
		t.Fatalf("new episode: %v", err)
	}

	var status Status
	for i := 0; i < 3; i++ {
		status, err = episode.StepAll(context.Background())
		if err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if status.Finished != 2 || status.Alive != 3 || status.Done {
		t.Fatalf("unexpected status after 3 ticks: %+v", status)
	}

	for i := 0; i < 5; i++ {
		r := episode.Racer(i)
		want := r.Reward()
		if r.Finished {
			want += 2 * GroupBonus
		}
		if got := episode.Fitness(i); got != want {
			t.Fatalf("racer %d: fitness=%f want=%f", i, got, want)
		}
	}
	if episode.Fitness(0) < racer.FinishBonus+1000 {
		t.Fatalf("finished racer fitness too low: %f", episode.Fitness(0))
	}
}

func TestEpisodeEndsWhenNoRacerIsActive(t *testing.T) {
	sc := newPadScape(t, 1)
	episode, err := sc.NewEpisode(nil, groupEntrants())
	if err != nil {
		t.Fatalf("new episode: %v", err)
	}
	for tick := 1; tick <= racer.IdleLimit; tick++ {
		status, err := episode.StepAll(context.Background())
		if err != nil {
			t.Fatalf("step %d: %v", tick, err)
		}
		if status.Done {
			t.Fatalf("episode ended early at tick %d: %+v", tick, status)
		}
	}
	status, err := episode.StepAll(context.Background())
	if err != nil {
		t.Fatalf("final step: %v", err)
	}
	if !status.Done || status.Alive != 0 || status.Tick != racer.IdleLimit+1 {
		t.Fatalf("expected episode end at tick %d, got %+v", racer.IdleLimit+1, status)
	}

	results := episode.Results()
	again, err := episode.StepAll(context.Background())
	if err != nil || again != status {
		t.Fatalf("stepping a finished episode must be a no-op: %+v %v", again, err)
	}
	if !reflect.DeepEqual(results, episode.Results()) {
		t.Fatal("results changed after episode end")
	}
	for _, res := range results {
		if res.Finished {
			if res.Cause != racer.CauseNone || !res.Alive {
				t.Fatalf("finished racer must stay alive: %+v", res)
			}
			continue
		}
		if res.Cause != racer.CauseIdle {
			t.Fatalf("expected idle retirement: %+v", res)
		}
	}
}

func TestParallelStepMatchesSequential(t *testing.T) {
	tr, err := track.NewDefault()
	if err != nil {
		t.Fatalf("default track: %v", err)
	}
	steer := ControllerFunc(func(_ context.Context, obs []float64) ([]float64, error) {
		// turn away from the closer side beam, brake when the front is blocked
		left, right := 0.0, 0.0
		if obs[1] < obs[2] {
			right = 1
		} else if obs[2] < obs[1] {
			left = 1
		}
		brake := 0.0
		if obs[0] < 0.2 {
			brake = 1
		}
		return []float64{1, left, right, brake}, nil
	})
	wobble := ControllerFunc(func(_ context.Context, obs []float64) ([]float64, error) {
		return []float64{obs[0], obs[3], 1 - obs[3], 0}, nil
	})
	entrants := func() []Entrant {
		out := make([]Entrant, 0, 12)
		for i := 0; i < 12; i++ {
			c := steer
			if i%3 == 0 {
				c = wobble
			}
			out = append(out, Entrant{ID: string(rune('a' + i)), Controller: c})
		}
		return out
	}

	run := func(workers int) []Result {
		sc, err := NewRaceScape(RaceConfig{Track: tr, Workers: workers, Seed: 3})
		if err != nil {
			t.Fatalf("new scape: %v", err)
		}
		results, err := sc.RunEpisode(context.Background(), &EpisodeContext{Generation: 2}, entrants())
		if err != nil {
			t.Fatalf("run episode (workers=%d): %v", workers, err)
		}
		return results
	}

	sequential := run(1)
	parallel := run(6)
	if !reflect.DeepEqual(sequential, parallel) {
		t.Fatalf("parallel results differ\nseq=%+v\npar=%+v", sequential, parallel)
	}
	for i, res := range sequential {
		if res.AgentID != string(rune('a'+i)) {
			t.Fatalf("results must keep entrant order, got %s at %d", res.AgentID, i)
		}
		if res.Alive && !res.Finished {
			t.Fatalf("episode ended with an active racer: %+v", res)
		}
	}
}

func TestShortControllerOutputIsFatal(t *testing.T) {
	sc := newPadScape(t, 1)
	_, err := sc.RunEpisode(context.Background(), nil, []Entrant{
		{ID: "ok", Controller: drive},
		{ID: "short", Controller: fixed(1, 0)},
	})
	if !errors.Is(err, ErrControllerOutput) || !errors.Is(err, racer.ErrShortOutput) {
		t.Fatalf("expected controller output error, got %v", err)
	}
}

func TestControllerErrorAbortsEpisode(t *testing.T) {
	boom := errors.New("boom")
	sc := newPadScape(t, 4)
	episode, err := sc.NewEpisode(nil, []Entrant{
		{ID: "ok", Controller: drive},
		{ID: "bad", Controller: ControllerFunc(func(context.Context, []float64) ([]float64, error) {
			return nil, boom
		})},
	})
	if err != nil {
		t.Fatalf("new episode: %v", err)
	}
	if _, err := episode.StepAll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected controller error, got %v", err)
	}
	if _, err := episode.StepAll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("failed episode must keep returning its error, got %v", err)
	}
}

func TestControllerPanicBecomesError(t *testing.T) {
	sc := newPadScape(t, 2)
	_, err := sc.RunEpisode(context.Background(), nil, []Entrant{
		{ID: "ok", Controller: drive},
		{ID: "panics", Controller: ControllerFunc(func(context.Context, []float64) ([]float64, error) {
			panic("bad weights")
		})},
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestNewEpisodeValidation(t *testing.T) {
	sc := newPadScape(t, 1)
	if _, err := sc.NewEpisode(nil, nil); !errors.Is(err, ErrNoEntrants) {
		t.Fatalf("expected ErrNoEntrants, got %v", err)
	}
	if _, err := sc.NewEpisode(nil, []Entrant{{ID: "a", Controller: drive}, {ID: "a", Controller: drive}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := sc.NewEpisode(nil, []Entrant{{ID: "a"}}); err == nil {
		t.Fatal("expected missing controller error")
	}
	if _, err := sc.NewEpisode(nil, []Entrant{{ID: "a", Controller: drive, Color: colorPtr(track.Blue)}}); !errors.Is(err, ErrUnknownGoal) {
		t.Fatalf("expected ErrUnknownGoal, got %v", err)
	}
	if _, err := sc.NewEpisode(nil, []Entrant{{ID: "a", Controller: drive, Start: &Point{X: -5, Y: 10}}}); !errors.Is(err, ErrInvalidStart) {
		t.Fatalf("expected ErrInvalidStart, got %v", err)
	}
}

func TestNewRaceScapeRejectsWallStart(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	track.Fill(img, img.Bounds(), track.White)
	img.Set(0, 0, track.Red)
	tr, err := track.FromImage(img, track.DefaultPalette(), 50, 50)
	if err != nil {
		t.Fatalf("build track: %v", err)
	}
	if _, err := NewRaceScape(RaceConfig{Track: tr, Start: &Point{X: 10, Y: 10}}); !errors.Is(err, ErrInvalidStart) {
		t.Fatalf("expected ErrInvalidStart, got %v", err)
	}
}

func TestRaceScapeAcceptsOriginStart(t *testing.T) {
	tr := padTrack(t)
	sc, err := NewRaceScape(RaceConfig{Track: tr, Start: &Point{}})
	if err != nil {
		t.Fatalf("new scape at origin: %v", err)
	}
	ep, err := sc.NewEpisode(nil, []Entrant{{ID: "a", Controller: stay}})
	if err != nil {
		t.Fatalf("new episode: %v", err)
	}
	if r := ep.Racer(0); r.X != 0 || r.Y != 0 {
		t.Fatalf("expected spawn at origin, got (%v,%v)", r.X, r.Y)
	}

	// Without a start the default course spawn applies, which lies outside this map.
	if _, err := NewRaceScape(RaceConfig{Track: tr}); !errors.Is(err, ErrInvalidStart) {
		t.Fatalf("expected default start to be rejected on a small map, got %v", err)
	}
}

func TestColorsAreSeededFromGoalColors(t *testing.T) {
	tr, err := track.NewDefault()
	if err != nil {
		t.Fatalf("default track: %v", err)
	}
	sc, err := NewRaceScape(RaceConfig{Track: tr, Seed: 11})
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}
	entrants := make([]Entrant, 30)
	for i := range entrants {
		entrants[i] = Entrant{ID: string(rune('A' + i)), Controller: stay}
	}
	first, err := sc.NewEpisode(&EpisodeContext{Generation: 4}, entrants)
	if err != nil {
		t.Fatalf("episode: %v", err)
	}
	second, err := sc.NewEpisode(&EpisodeContext{Generation: 4}, entrants)
	if err != nil {
		t.Fatalf("episode: %v", err)
	}
	seen := map[track.Color]bool{}
	for i := range entrants {
		c := first.Racer(i).Color
		if c != second.Racer(i).Color {
			t.Fatalf("color assignment must be deterministic for a generation")
		}
		seen[c] = true
	}
	for c := range seen {
		if c != track.Red && c != track.Green && c != track.Blue {
			t.Fatalf("unexpected color %s", c)
		}
	}
	if len(seen) < 2 {
		t.Fatalf("expected colors drawn from several goals, got %v", seen)
	}
}

func TestObserverAndStats(t *testing.T) {
	var ticks []int
	sc, err := NewRaceScape(RaceConfig{
		Track: padTrack(t),
		Start: &Point{X: 100, Y: 200},
		Observer: func(ec *EpisodeContext, status Status) {
			if ec.Generation != 9 || ec.Stats.Tick != status.Tick {
				t.Errorf("unexpected observer context: %+v %+v", ec, status)
			}
			ticks = append(ticks, status.Tick)
		},
	})
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}
	ec := &EpisodeContext{RunID: "run", Generation: 9}
	results, err := sc.RunEpisode(context.Background(), ec, []Entrant{
		{ID: "g", Controller: drive, Color: colorPtr(track.Green)},
		{ID: "r", Controller: stay, Color: colorPtr(track.Red)},
	})
	if err != nil {
		t.Fatalf("run episode: %v", err)
	}
	if len(ticks) != racer.IdleLimit+1 || ticks[0] != 1 {
		t.Fatalf("unexpected observed ticks: %v", ticks)
	}
	if ec.Stats.Alive != 0 || ec.Stats.Finished != 1 || ec.Stats.Population != 2 {
		t.Fatalf("unexpected final stats: %+v", ec.Stats)
	}
	if ec.Stats.BestFitness != float64(results[0].Fitness) {
		t.Fatalf("best fitness mismatch: %f vs %f", ec.Stats.BestFitness, results[0].Fitness)
	}
	mean := (float64(results[0].Fitness) + float64(results[1].Fitness)) / 2
	if ec.Stats.MeanFitness != mean {
		t.Fatalf("mean fitness mismatch: %f vs %f", ec.Stats.MeanFitness, mean)
	}
}

func TestCanceledContextStopsEpisode(t *testing.T) {
	sc := newPadScape(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sc.RunEpisode(ctx, nil, []Entrant{{ID: "a", Controller: stay}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type soloAgent struct {
	id string
	Controller
}

func (a soloAgent) ID() string { return a.id }

func TestEvaluateSoloAgent(t *testing.T) {
	sc := newPadScape(t, 1)
	fitness, trace, err := sc.Evaluate(context.Background(), soloAgent{id: "solo", Controller: stay})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if trace["cause"] != string(racer.CauseIdle) || trace["ticks"] != racer.IdleLimit+1 {
		t.Fatalf("unexpected trace: %+v", trace)
	}
	want := racer.FailurePenalty + racer.TickW*float64(racer.IdleLimit+1)
	if float64(fitness) != want {
		t.Fatalf("fitness=%f want=%f", fitness, want)
	}
}
