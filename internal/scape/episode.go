package scape

import (
	"radarrace/internal/racer"
	"radarrace/internal/track"
)

// GroupBonus is added to every finished racer per finished racer.
const GroupBonus = 500.0

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entrant is one agent handed to an episode by the optimizer. Start and
// Color are optional; nil picks the scape start and a random goal color.
type Entrant struct {
	ID         string
	Controller Controller
	Start      *Point
	Color      *track.Color
}

// Result is the per-agent outcome reported back after an episode.
type Result struct {
	AgentID  string      `json:"agent_id"`
	Fitness  Fitness     `json:"fitness"`
	Finished bool        `json:"finished"`
	Alive    bool        `json:"alive"`
	Cause    racer.Cause `json:"cause,omitempty"`
	Distance float64     `json:"distance"`
	Ticks    int         `json:"ticks"`
	Turns    int         `json:"turns"`
	Color    track.Color `json:"color"`
	Final    Point       `json:"final"`
}

// Status summarizes the population after a tick.
type Status struct {
	Tick       int
	Population int
	Alive      int
	Finished   int
	Done       bool
}

// Stats are the live aggregates of the current episode.
type Stats struct {
	Tick        int     `json:"tick"`
	Population  int     `json:"population"`
	Alive       int     `json:"alive"`
	Finished    int     `json:"finished"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
}

// EpisodeContext carries run-scoped bookkeeping into the step driver.
type EpisodeContext struct {
	RunID      string
	Generation int
	Stats      Stats
}

// Observer is called after every tick. It must not retain the context.
type Observer func(ec *EpisodeContext, status Status)
