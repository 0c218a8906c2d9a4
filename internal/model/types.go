package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome encodes a feed-forward racing controller. Neurons are stored in
// evaluation order: sensors first, then hidden, then actuators.
type Genome struct {
	VersionedRecord
	ID          string    `json:"id"`
	Generation  int       `json:"generation"`
	Neurons     []Neuron  `json:"neurons"`
	Synapses    []Synapse `json:"synapses"`
	SensorIDs   []string  `json:"sensor_ids"`
	ActuatorIDs []string  `json:"actuator_ids"`
}

type Neuron struct {
	ID         string  `json:"id"`
	Activation string  `json:"activation"`
	Bias       float64 `json:"bias"`
}

type Synapse struct {
	ID      string  `json:"id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

type Population struct {
	VersionedRecord
	ID         string   `json:"id"`
	GenomeIDs  []string `json:"genome_ids"`
	Generation int      `json:"generation"`
}

type ScapeSummary struct {
	VersionedRecord
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
}

type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	FitnessStd  float64 `json:"fitness_std"`
	Finished    int     `json:"finished"`
	Population  int     `json:"population"`
	Ticks       int     `json:"ticks"`
}

type TopGenomeRecord struct {
	Rank    int     `json:"rank"`
	Fitness float64 `json:"fitness"`
	Genome  Genome  `json:"genome"`
}

type LineageRecord struct {
	VersionedRecord
	GenomeID   string `json:"genome_id"`
	ParentID   string `json:"parent_id,omitempty"`
	Generation int    `json:"generation"`
	Operation  string `json:"operation"`
}

// AgentResult is the persisted outcome of one racer in one episode.
type AgentResult struct {
	GenomeID string  `json:"genome_id"`
	Fitness  float64 `json:"fitness"`
	Finished bool    `json:"finished"`
	Alive    bool    `json:"alive"`
	Cause    string  `json:"cause,omitempty"`
	Distance float64 `json:"distance"`
	Ticks    int     `json:"ticks"`
	Turns    int     `json:"turns"`
	Color    [3]int  `json:"color"`
	FinalX   float64 `json:"final_x"`
	FinalY   float64 `json:"final_y"`
}

type EpisodeRecord struct {
	VersionedRecord
	RunID      string        `json:"run_id"`
	Generation int           `json:"generation"`
	Ticks      int           `json:"ticks"`
	Results    []AgentResult `json:"results"`
}
