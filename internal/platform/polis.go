package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"

	"radarrace/internal/agent"
	"radarrace/internal/evo"
	"radarrace/internal/genotype"
	"radarrace/internal/model"
	"radarrace/internal/scape"
	"radarrace/internal/storage"
)

const defaultTopCount = 5

type Config struct {
	Store storage.Store
}

type EvolutionConfig struct {
	// RunID names the run in the store. Empty draws a fresh one.
	RunID             string
	ScapeName         string
	PopulationSize    int
	Generations       int
	EliteCount        int
	MutationsPerChild int
	FitnessGoal       float64
	Seed              int64
	Mutation          evo.Operator
	MutationPolicy    []evo.WeightedMutation
	Selector          evo.Selector
	SeedGenome        genotype.SeedConfig
	// Initial replaces the seeded population when set.
	Initial []model.Genome
	// TopCount bounds the stored top genomes; zero keeps five.
	TopCount     int
	OnGeneration func(report evo.GenerationReport) error
}

type EvolutionResult struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	BestFinalFitness      float64
	StoppedEarly          bool
	TopFinal              []evo.ScoredGenome
	Lineage               []model.LineageRecord
}

// Polis owns the store and the registered scapes, and runs evolutions
// against them.
type Polis struct {
	store storage.Store

	mu      sync.RWMutex
	scapes  map[string]scape.PopulationScape
	runs    map[string]struct{}
	started bool
}

func NewPolis(cfg Config) *Polis {
	return &Polis{
		store:  cfg.Store,
		scapes: make(map[string]scape.PopulationScape),
		runs:   make(map[string]struct{}),
	}
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Stop forgets registered scapes. The store stays open; closing it is up to
// whoever created it.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.scapes = make(map[string]scape.PopulationScape)
	p.runs = make(map[string]struct{})
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) RegisterScape(s scape.PopulationScape) error {
	if s == nil {
		return fmt.Errorf("scape is nil")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("scape name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	p.scapes[name] = s
	return nil
}

func (p *Polis) GetScape(name string) (scape.PopulationScape, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.scapes[name]
	return s, ok
}

func (p *Polis) RegisteredScapes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.scapes))
	for name := range p.scapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Polis) lookupScape(name string) (scape.PopulationScape, error) {
	p.mu.RLock()
	target, ok := p.scapes[name]
	started := p.started
	p.mu.RUnlock()

	if !started {
		return nil, fmt.Errorf("polis is not initialized")
	}
	if !ok {
		return nil, fmt.Errorf("scape not registered: %s", name)
	}
	return target, nil
}

// RunEvolution evolves a population on a registered scape and persists every
// generation's population and episode as it completes, then the run's
// history, diagnostics, lineage and top genomes.
func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.ScapeName == "" {
		return EvolutionResult{}, fmt.Errorf("scape name is required")
	}
	targetScape, err := p.lookupScape(cfg.ScapeName)
	if err != nil {
		return EvolutionResult{}, err
	}
	if cfg.RunID == "" {
		cfg.RunID = NewRunID()
	}
	if cfg.TopCount <= 0 {
		cfg.TopCount = defaultTopCount
	}
	if err := p.registerRun(cfg.RunID); err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRun(cfg.RunID)

	initial := cfg.Initial
	if len(initial) == 0 {
		initial, err = evo.SeedPopulation(cfg.PopulationSize, cfg.SeedGenome, rand.New(rand.NewSource(cfg.Seed)))
		if err != nil {
			return EvolutionResult{}, err
		}
	}

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Scape:             targetScape,
		Mutation:          cfg.Mutation,
		MutationPolicy:    cfg.MutationPolicy,
		Selector:          cfg.Selector,
		PopulationSize:    cfg.PopulationSize,
		EliteCount:        cfg.EliteCount,
		Generations:       cfg.Generations,
		MutationsPerChild: cfg.MutationsPerChild,
		Seed:              cfg.Seed,
		RunID:             cfg.RunID,
		FitnessGoal:       cfg.FitnessGoal,
		OnGeneration: func(report evo.GenerationReport) error {
			if err := p.persistGeneration(ctx, report); err != nil {
				return fmt.Errorf("persist generation %d: %w", report.Diagnostics.Generation, err)
			}
			if cfg.OnGeneration != nil {
				return cfg.OnGeneration(report)
			}
			return nil
		},
	})
	if err != nil {
		return EvolutionResult{}, err
	}

	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return EvolutionResult{}, err
	}

	if err := p.store.SaveFitnessHistory(ctx, cfg.RunID, result.BestByGeneration); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, cfg.RunID, result.GenerationDiagnostics); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.store.SaveLineage(ctx, cfg.RunID, result.Lineage); err != nil {
		return EvolutionResult{}, err
	}

	topCount := cfg.TopCount
	if len(result.FinalPopulation) < topCount {
		topCount = len(result.FinalPopulation)
	}
	topFinal := append([]evo.ScoredGenome(nil), result.FinalPopulation[:topCount]...)
	if err := p.store.SaveTopGenomes(ctx, cfg.RunID, toModelTopGenomes(topFinal)); err != nil {
		return EvolutionResult{}, err
	}

	bestFinal := 0.0
	if len(topFinal) > 0 {
		bestFinal = topFinal[0].Fitness
	}
	if err := p.updateScapeSummary(ctx, cfg.ScapeName, bestFinal); err != nil {
		return EvolutionResult{}, err
	}

	return EvolutionResult{
		RunID:                 cfg.RunID,
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		BestFinalFitness:      bestFinal,
		StoppedEarly:          result.StoppedEarly,
		TopFinal:              topFinal,
		Lineage:               result.Lineage,
	}, nil
}

func (p *Polis) persistGeneration(ctx context.Context, report evo.GenerationReport) error {
	generation := report.Diagnostics.Generation
	ids := make([]string, 0, len(report.Ranked))
	results := make([]model.AgentResult, 0, len(report.Ranked))
	for _, scored := range report.Ranked {
		if err := p.store.SaveGenome(ctx, scored.Genome); err != nil {
			return err
		}
		ids = append(ids, scored.Genome.ID)
		results = append(results, toModelResult(scored))
	}

	version := model.VersionedRecord{SchemaVersion: storage.CurrentSchemaVersion, CodecVersion: storage.CurrentCodecVersion}
	if err := p.store.SavePopulation(ctx, model.Population{
		VersionedRecord: version,
		ID:              report.RunID,
		GenomeIDs:       ids,
		Generation:      generation,
	}); err != nil {
		return err
	}
	return p.store.SaveEpisode(ctx, model.EpisodeRecord{
		VersionedRecord: version,
		RunID:           report.RunID,
		Generation:      generation,
		Ticks:           report.Diagnostics.Ticks,
		Results:         results,
	})
}

// Replay races a stored genome alone on a registered scape.
func (p *Polis) Replay(ctx context.Context, scapeName, genomeID string) (scape.Result, error) {
	targetScape, err := p.lookupScape(scapeName)
	if err != nil {
		return scape.Result{}, err
	}
	genome, ok, err := p.store.GetGenome(ctx, genomeID)
	if err != nil {
		return scape.Result{}, err
	}
	if !ok {
		return scape.Result{}, fmt.Errorf("genome not found: %s", genomeID)
	}
	cortex, err := agent.NewCortex(genome.ID, genome)
	if err != nil {
		return scape.Result{}, err
	}
	results, err := targetScape.RunEpisode(ctx, &scape.EpisodeContext{RunID: "replay"}, []scape.Entrant{{ID: genome.ID, Controller: cortex}})
	if err != nil {
		return scape.Result{}, err
	}
	return results[0], nil
}

func (p *Polis) registerRun(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = struct{}{}
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func toModelTopGenomes(top []evo.ScoredGenome) []model.TopGenomeRecord {
	out := make([]model.TopGenomeRecord, 0, len(top))
	for i, item := range top {
		out = append(out, model.TopGenomeRecord{
			Rank:    i + 1,
			Fitness: item.Fitness,
			Genome:  item.Genome,
		})
	}
	return out
}

func toModelResult(scored evo.ScoredGenome) model.AgentResult {
	res := scored.Result
	return model.AgentResult{
		GenomeID: scored.Genome.ID,
		Fitness:  scored.Fitness,
		Finished: res.Finished,
		Alive:    res.Alive,
		Cause:    string(res.Cause),
		Distance: res.Distance,
		Ticks:    res.Ticks,
		Turns:    res.Turns,
		Color:    [3]int{int(res.Color.R), int(res.Color.G), int(res.Color.B)},
		FinalX:   res.Final.X,
		FinalY:   res.Final.Y,
	}
}

func (p *Polis) updateScapeSummary(ctx context.Context, scapeName string, fitness float64) error {
	summary, ok, err := p.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.ScapeSummary{
			VersionedRecord: model.VersionedRecord{
				SchemaVersion: storage.CurrentSchemaVersion,
				CodecVersion:  storage.CurrentCodecVersion,
			},
			Name:        scapeName,
			Description: fmt.Sprintf("best observed fitness for scape %s", scapeName),
			BestFitness: fitness,
		}
	}
	if fitness > summary.BestFitness {
		summary.BestFitness = fitness
	}
	return p.store.SaveScapeSummary(ctx, summary)
}
