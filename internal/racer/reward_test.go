package racer

import (
	"testing"

	"radarrace/internal/track"
)

func TestRewardFinished(t *testing.T) {
	r := New(0, 0, track.Red)
	r.Finished = true
	r.Distance = 1000
	r.Ticks = 200
	if got := r.Reward(); got != 80000 {
		t.Fatalf("expected 80000, got %f", got)
	}
}

func TestRewardFailedCliff(t *testing.T) {
	r := New(0, 0, track.Red)
	r.Alive = false
	r.Distance = 50
	r.Ticks = 10
	r.Turns = 4

	if got, want := r.Reward(), -100+50+0.5+1.2; !near(got, want) {
		t.Fatalf("zero idle streak: got %f want %f", got, want)
	}

	r.IdleTicks = 1
	if got, want := r.Reward(), -100+50+0.5; !near(got, want) {
		t.Fatalf("one idle tick must zero the turn term: got %f want %f", got, want)
	}
}

func TestRewardOngoing(t *testing.T) {
	r := New(0, 0, track.Red)
	r.Distance = 26
	r.Ticks = 20
	r.Turns = 10

	if got, want := r.Reward(), 26+1.0+3.0; !near(got, want) {
		t.Fatalf("got %f want %f", got, want)
	}

	r.IdleTicks = 1
	if got, want := r.Reward(), 27.0; !near(got, want) {
		t.Fatalf("idle racer: got %f want %f", got, want)
	}
}

func TestRewardFreshRacerIsZero(t *testing.T) {
	if got := New(10, 10, track.Green).Reward(); got != 0 {
		t.Fatalf("expected zero reward, got %f", got)
	}
}
