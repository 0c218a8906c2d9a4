package scape

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"radarrace/internal/racer"
	"radarrace/internal/track"
)

var (
	ErrNoEntrants       = errors.New("episode requires at least one entrant")
	ErrInvalidStart     = errors.New("invalid start position")
	ErrUnknownGoal      = errors.New("goal color not painted on track")
	ErrControllerOutput = errors.New("malformed controller output")
)

type RaceConfig struct {
	Track *track.Track
	// Start is the shared spawn point; nil uses the default course start.
	Start   *Point
	Workers int
	Seed    int64
	// Observer receives every tick when set.
	Observer Observer
}

// RaceScape runs populations of racers on one static track.
type RaceScape struct {
	cfg   RaceConfig
	start Point
}

func NewRaceScape(cfg RaceConfig) (*RaceScape, error) {
	if cfg.Track == nil {
		return nil, fmt.Errorf("track is required")
	}
	start := Point{X: track.DefaultStartX, Y: track.DefaultStartY}
	if cfg.Start != nil {
		start = *cfg.Start
	}
	if err := checkStart(cfg.Track, start); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &RaceScape{cfg: cfg, start: start}, nil
}

func (s *RaceScape) Name() string {
	return "race"
}

func (s *RaceScape) Track() *track.Track {
	return s.cfg.Track
}

// Evaluate races a single self-driving agent alone on the track.
func (s *RaceScape) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	controller, ok := agent.(Controller)
	if !ok {
		return 0, nil, fmt.Errorf("agent %s does not implement controller", agent.ID())
	}
	results, err := s.RunEpisode(ctx, &EpisodeContext{}, []Entrant{{ID: agent.ID(), Controller: controller}})
	if err != nil {
		return 0, nil, err
	}
	res := results[0]
	return res.Fitness, Trace{
		"finished": res.Finished,
		"cause":    string(res.Cause),
		"distance": res.Distance,
		"ticks":    res.Ticks,
		"turns":    res.Turns,
		"color":    res.Color.String(),
	}, nil
}

// RunEpisode steps the population until no racer is active.
func (s *RaceScape) RunEpisode(ctx context.Context, ec *EpisodeContext, entrants []Entrant) ([]Result, error) {
	episode, err := s.NewEpisode(ec, entrants)
	if err != nil {
		return nil, err
	}
	for {
		status, err := episode.StepAll(ctx)
		if err != nil {
			return nil, err
		}
		if status.Done {
			return episode.Results(), nil
		}
	}
}

// NewEpisode spawns one racer per entrant. Colors left unset are drawn from
// the track's goal colors with a generation-seeded source.
func (s *RaceScape) NewEpisode(ec *EpisodeContext, entrants []Entrant) (*Episode, error) {
	if len(entrants) == 0 {
		return nil, ErrNoEntrants
	}
	if ec == nil {
		ec = &EpisodeContext{}
	}

	goals := s.cfg.Track.GoalColors()
	painted := make(map[track.Color]bool, len(goals))
	for _, c := range goals {
		painted[c] = true
	}
	rng := rand.New(rand.NewSource(s.cfg.Seed + int64(ec.Generation)))

	e := &Episode{
		track:       s.cfg.Track,
		workers:     s.cfg.Workers,
		observer:    s.cfg.Observer,
		ec:          ec,
		ids:         make([]string, len(entrants)),
		controllers: make([]Controller, len(entrants)),
		racers:      make([]*racer.Racer, len(entrants)),
		fitness:     make([]float64, len(entrants)),
	}
	seen := make(map[string]bool, len(entrants))
	for i, entrant := range entrants {
		if entrant.ID == "" {
			return nil, fmt.Errorf("entrant %d: id is required", i)
		}
		if seen[entrant.ID] {
			return nil, fmt.Errorf("duplicate entrant id: %s", entrant.ID)
		}
		seen[entrant.ID] = true
		if entrant.Controller == nil {
			return nil, fmt.Errorf("entrant %s: controller is required", entrant.ID)
		}

		start := s.start
		if entrant.Start != nil {
			start = *entrant.Start
			if err := checkStart(s.cfg.Track, start); err != nil {
				return nil, fmt.Errorf("entrant %s: %w", entrant.ID, err)
			}
		}

		var color track.Color
		if entrant.Color != nil {
			color = *entrant.Color
			if !painted[color] {
				return nil, fmt.Errorf("entrant %s: %w: %s", entrant.ID, ErrUnknownGoal, color)
			}
		} else {
			color = goals[rng.Intn(len(goals))]
		}

		e.ids[i] = entrant.ID
		e.controllers[i] = entrant.Controller
		e.racers[i] = racer.New(start.X, start.Y, color)
	}
	e.score()
	ec.Stats = e.stats(e.status())
	return e, nil
}

func checkStart(t *track.Track, p Point) error {
	cell := t.Classify(p.X, p.Y)
	if cell.Obstructs() {
		return fmt.Errorf("%w: (%.1f,%.1f) is %s", ErrInvalidStart, p.X, p.Y, cell.Class)
	}
	return nil
}

// Episode is one population run on the track. It is not safe for
// concurrent use; StepAll fans out internally.
type Episode struct {
	track    *track.Track
	workers  int
	observer Observer
	ec       *EpisodeContext

	ids         []string
	controllers []Controller
	racers      []*racer.Racer
	fitness     []float64

	tick int
	done bool
	err  error
}

// StepAll advances every active racer by one tick, rescores the population
// and reports whether the episode is over.
func (e *Episode) StepAll(ctx context.Context) (Status, error) {
	if e.err != nil {
		return Status{}, e.err
	}
	if e.done {
		return e.status(), nil
	}
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	active := make([]int, 0, len(e.racers))
	for i, r := range e.racers {
		if r.Active() {
			active = append(active, i)
		}
	}

	errs := make([]error, len(e.racers))
	if e.workers <= 1 || len(active) < 2 {
		for _, idx := range active {
			errs[idx] = e.advance(ctx, idx)
		}
	} else {
		e.advanceParallel(ctx, active, errs)
	}
	for _, err := range errs {
		if err != nil {
			e.err = err
			return Status{}, err
		}
	}

	e.tick++
	e.score()
	status := e.status()
	e.done = status.Done
	e.ec.Stats = e.stats(status)
	if e.observer != nil {
		e.observer(e.ec, status)
	}
	return status, nil
}

func (e *Episode) advanceParallel(ctx context.Context, active []int, errs []error) {
	jobs := make(chan int)
	workerCount := e.workers
	if workerCount > len(active) {
		workerCount = len(active)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				// each worker owns distinct indexes of errs and racers
				errs[idx] = e.advance(ctx, idx)
			}
		}()
	}
	for _, idx := range active {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
}

func (e *Episode) advance(ctx context.Context, idx int) (err error) {
	id := e.ids[idx]
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent %s: controller panic: %v", id, p)
		}
	}()

	r := e.racers[idx]
	obs := r.Observe(e.track)
	out, err := e.controllers[idx].Evaluate(ctx, obs.Slice())
	if err != nil {
		return fmt.Errorf("agent %s: %w", id, err)
	}
	cmd, err := racer.DecodeCommand(out)
	if err != nil {
		return fmt.Errorf("agent %s: %w: %w", id, ErrControllerOutput, err)
	}
	r.Step(e.track, cmd)
	return nil
}

// score recomputes every fitness after all racers moved, so the group bonus
// does not depend on update order.
func (e *Episode) score() {
	finished := 0
	for _, r := range e.racers {
		if r.Finished {
			finished++
		}
	}
	bonus := GroupBonus * float64(finished)
	for i, r := range e.racers {
		fitness := r.Reward()
		if r.Finished {
			fitness += bonus
		}
		e.fitness[i] = fitness
	}
}

func (e *Episode) status() Status {
	status := Status{Tick: e.tick, Population: len(e.racers)}
	for _, r := range e.racers {
		if r.Active() {
			status.Alive++
		}
		if r.Finished {
			status.Finished++
		}
	}
	status.Done = status.Alive < 1
	return status
}

func (e *Episode) stats(status Status) Stats {
	best, total := e.fitness[0], 0.0
	for _, f := range e.fitness {
		total += f
		if f > best {
			best = f
		}
	}
	return Stats{
		Tick:        status.Tick,
		Population:  status.Population,
		Alive:       status.Alive,
		Finished:    status.Finished,
		BestFitness: best,
		MeanFitness: total / float64(len(e.fitness)),
	}
}

func (e *Episode) Tick() int {
	return e.tick
}

// Racer returns a copy of the racer state at index i.
func (e *Episode) Racer(i int) racer.Racer {
	return *e.racers[i]
}

// Fitness returns the current fitness at index i, group bonus included.
func (e *Episode) Fitness(i int) float64 {
	return e.fitness[i]
}

// Results reports every entrant in entrant order.
func (e *Episode) Results() []Result {
	out := make([]Result, len(e.racers))
	for i, r := range e.racers {
		out[i] = Result{
			AgentID:  e.ids[i],
			Fitness:  Fitness(e.fitness[i]),
			Finished: r.Finished,
			Alive:    r.Alive,
			Cause:    r.Cause,
			Distance: r.Distance,
			Ticks:    r.Ticks,
			Turns:    r.Turns,
			Color:    r.Color,
			Final:    Point{X: r.X, Y: r.Y},
		}
	}
	return out
}
