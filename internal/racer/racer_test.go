package racer

import (
	"errors"
	"image"
	"math"
	"testing"

	"radarrace/internal/track"
)

var (
	forward = Command{Forward: true}
	idle    = Command{}
)

func openTrack(t *testing.T, w, h int, paint func(img *image.RGBA)) *track.Track {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	track.Fill(img, img.Bounds(), track.Black)
	img.Set(w-1, h-1, track.Blue)
	if paint != nil {
		paint(img)
	}
	tr, err := track.FromImage(img, track.DefaultPalette(), w, h)
	if err != nil {
		t.Fatalf("build track: %v", err)
	}
	return tr
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStraightLineMovesThirteenPerTick(t *testing.T) {
	tr := openTrack(t, 2000, 1000, nil)
	r := New(100, 500, track.Green)
	for i := 0; i < 10; i++ {
		r.Step(tr, forward)
		if !r.Active() {
			t.Fatalf("tick %d: racer retired (%s)", i+1, r.Cause)
		}
		if !near(r.X, 100+13*float64(i+1)) || r.Y != 500 {
			t.Fatalf("tick %d: unexpected position %f,%f", i+1, r.X, r.Y)
		}
	}
	if !near(r.Distance, 130) {
		t.Fatalf("expected distance 130, got %f", r.Distance)
	}
	if r.Ticks != 10 || r.Turns != 0 || r.IdleTicks != 0 {
		t.Fatalf("unexpected counters: %+v", r)
	}
}

func TestIdleRacerRetiresOnThirtyFirstTick(t *testing.T) {
	tr := openTrack(t, 400, 400, nil)
	r := New(200, 200, track.Green)
	for i := 1; i <= IdleLimit; i++ {
		r.Step(tr, idle)
		if !r.Alive {
			t.Fatalf("retired early at idle tick %d (%s)", i, r.Cause)
		}
	}
	r.Step(tr, idle)
	if r.Alive {
		t.Fatal("expected retirement on the 31st idle tick")
	}
	if r.Cause != CauseIdle || r.IdleTicks != IdleLimit+1 || r.Ticks != IdleLimit+1 {
		t.Fatalf("unexpected state: %+v", r)
	}
}

func TestBrakeCancelsForward(t *testing.T) {
	tr := openTrack(t, 400, 400, nil)
	r := New(200, 200, track.Green)
	r.Step(tr, Command{Forward: true, Brake: true})
	if r.X != 200 || r.Y != 200 || r.IdleTicks != 1 {
		t.Fatalf("braked racer must not move: %+v", r)
	}
}

func TestRetiredRacerIsFrozen(t *testing.T) {
	tr := openTrack(t, 400, 400, func(img *image.RGBA) {
		track.Fill(img, image.Rect(220, 0, 240, 400), track.White)
	})
	r := New(200, 200, track.Green)
	r.Step(tr, forward)
	r.Step(tr, forward)
	if r.Alive || r.Cause != CauseWall {
		t.Fatalf("expected wall retirement, got %+v", r)
	}
	before := *r
	reward := r.Reward()
	for i := 0; i < 5; i++ {
		r.Step(tr, Command{Forward: true, Left: true})
	}
	if *r != before {
		t.Fatalf("retired racer changed: before=%+v after=%+v", before, *r)
	}
	if r.Reward() != reward {
		t.Fatalf("retired reward changed: %f -> %f", reward, r.Reward())
	}
}

func TestWallKeepsLastCommittedPosition(t *testing.T) {
	tr := openTrack(t, 400, 400, func(img *image.RGBA) {
		track.Fill(img, image.Rect(120, 0, 130, 400), track.White)
	})
	r := New(100, 200, track.Green)
	r.Step(tr, forward)
	r.Step(tr, forward)
	if r.Alive {
		t.Fatal("expected wall retirement")
	}
	if r.X != 113 || !near(r.Distance, 13) {
		t.Fatalf("expected position 113 and distance 13, got x=%f d=%f", r.X, r.Distance)
	}
}

func TestReachingOwnGoalFinishes(t *testing.T) {
	tr := openTrack(t, 400, 400, func(img *image.RGBA) {
		track.Fill(img, image.Rect(135, 150, 200, 250), track.Green)
	})
	r := New(100, 200, track.Green)
	r.Step(tr, forward)
	r.Step(tr, forward)
	if r.Finished {
		t.Fatal("finished too early")
	}
	r.Step(tr, forward)
	if !r.Finished || !r.Alive {
		t.Fatalf("expected finished and alive, got %+v", r)
	}
	if r.Reward() < FinishBonus {
		t.Fatalf("expected reward >= %f, got %f", FinishBonus, r.Reward())
	}

	before := *r
	r.Step(tr, forward)
	if *r != before {
		t.Fatalf("finished racer must not update: %+v", r)
	}
}

func TestOtherGoalColorIsFreeSpace(t *testing.T) {
	tr := openTrack(t, 400, 400, func(img *image.RGBA) {
		track.Fill(img, image.Rect(135, 150, 200, 250), track.Green)
	})
	r := New(100, 200, track.Red)
	for i := 0; i < 5; i++ {
		r.Step(tr, forward)
	}
	if r.Finished || !r.Alive {
		t.Fatalf("red racer must cross the green pad, got %+v", r)
	}
}

func TestTurning(t *testing.T) {
	tr := openTrack(t, 400, 400, nil)

	left := New(200, 200, track.Green)
	left.Step(tr, Command{Left: true})
	if left.Heading != 315 || left.Turns != 1 {
		t.Fatalf("unexpected left turn: %+v", left)
	}
	if !near(left.Distance, Speed*TurnSpeedFactor) {
		t.Fatalf("turning alone should move at reduced speed, got %f", left.Distance)
	}

	both := New(200, 200, track.Green)
	both.Step(tr, Command{Left: true, Right: true})
	if both.Heading != 0 || both.Turns != 2 {
		t.Fatalf("left+right should cancel heading and count two turns: %+v", both)
	}
	if !near(both.X, 200+Speed*TurnSpeedFactor) {
		t.Fatalf("unexpected x after left+right: %f", both.X)
	}

	fast := New(200, 200, track.Green)
	fast.Step(tr, Command{Forward: true, Right: true})
	if fast.Heading != 45 || !near(fast.Distance, Speed) {
		t.Fatalf("forward dominates turn speed: %+v", fast)
	}

	braking := New(200, 200, track.Green)
	braking.Step(tr, Command{Forward: true, Brake: true, Left: true})
	if !near(braking.Distance, Speed*TurnSpeedFactor) || braking.IdleTicks != 0 {
		t.Fatalf("braked turn should move at reduced speed: %+v", braking)
	}
}

func TestPushingAgainstEdgeRetiresAsStill(t *testing.T) {
	tr := openTrack(t, 400, 400, nil)
	r := New(399, 200, track.Green)
	for i := 1; i <= StillLimit; i++ {
		r.Step(tr, forward)
		if !r.Alive {
			t.Fatalf("retired early at tick %d (%s)", i, r.Cause)
		}
	}
	r.Step(tr, forward)
	if r.Alive || r.Cause != CauseStill {
		t.Fatalf("expected still retirement, got %+v", r)
	}
	if r.Distance != 0 {
		t.Fatalf("clamped pushes must not add distance, got %f", r.Distance)
	}
}

func TestCirclingRacerGetsStuck(t *testing.T) {
	tr := openTrack(t, 1000, 1000, nil)
	r := New(500, 500, track.Green)
	for i := 1; i <= StuckLimit; i++ {
		r.Step(tr, Command{Right: true})
		if !r.Alive {
			t.Fatalf("retired early at tick %d (%s)", i, r.Cause)
		}
	}
	r.Step(tr, Command{Right: true})
	if r.Alive || r.Cause != CauseStuck {
		t.Fatalf("expected stuck retirement, got %+v", r)
	}
}

func TestLeavingStuckWindowResetsAnchor(t *testing.T) {
	tr := openTrack(t, 2000, 1000, nil)
	r := New(100, 500, track.Green)
	for i := 0; i < 16; i++ {
		r.Step(tr, forward)
	}
	if r.StuckTicks != 0 || r.StuckX != r.X {
		t.Fatalf("expected anchor reset after leaving window: %+v", r)
	}
}

func TestEpisodeLengthCap(t *testing.T) {
	tr := openTrack(t, 400, 400, nil)
	r := New(200, 200, track.Green)
	r.Ticks = MaxTicks - 1
	r.Step(tr, forward)
	if !r.Alive {
		t.Fatalf("tick %d must be allowed", MaxTicks)
	}
	r.Step(tr, forward)
	if r.Alive || r.Cause != CauseTimeout {
		t.Fatalf("expected timeout, got %+v", r)
	}
}

func TestDegenerateMoveRetires(t *testing.T) {
	tr := openTrack(t, 400, 400, nil)
	r := New(200, 200, track.Green)
	r.LastX = 213.4
	r.Step(tr, forward)
	if r.Alive || r.Cause != CauseDegenerate {
		t.Fatalf("expected degenerate retirement, got %+v", r)
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]float64{0.9, 0.5, 0.51, 0.1, 7})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd != (Command{Forward: true, Right: true}) {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	cmd, err = DecodeCommand([]float64{math.NaN(), math.Inf(1), math.Inf(-1), 1})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd != (Command{Brake: true}) {
		t.Fatalf("non-finite outputs must read false: %+v", cmd)
	}

	if _, err := DecodeCommand([]float64{1, 1, 1}); !errors.Is(err, ErrShortOutput) {
		t.Fatalf("expected ErrShortOutput, got %v", err)
	}
}
