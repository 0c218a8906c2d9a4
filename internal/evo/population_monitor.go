package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"radarrace/internal/agent"
	"radarrace/internal/genotype"
	"radarrace/internal/model"
	"radarrace/internal/nn"
	"radarrace/internal/scape"
)

type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
	Result  scape.Result
}

// GenerationReport is handed to MonitorConfig.OnGeneration after each
// generation is ranked.
type GenerationReport struct {
	RunID       string
	Diagnostics model.GenerationDiagnostics
	Ranked      []ScoredGenome
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []ScoredGenome
	Lineage               []model.LineageRecord
	StoppedEarly          bool
}

type MonitorConfig struct {
	Scape             scape.PopulationScape
	Mutation          Operator
	MutationPolicy    []WeightedMutation
	Selector          Selector
	PopulationSize    int
	EliteCount        int
	Generations       int
	MutationsPerChild int
	Seed              int64
	RunID             string
	// FitnessGoal ends the run after the first generation whose best fitness
	// reaches it. Zero or less disables the check.
	FitnessGoal  float64
	OnGeneration func(report GenerationReport) error
}

type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Scape == nil {
		return nil, fmt.Errorf("scape is required")
	}
	if cfg.Mutation == nil && len(cfg.MutationPolicy) == 0 {
		return nil, fmt.Errorf("mutation operator or policy is required")
	}
	positivePolicyWeight := false
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positivePolicyWeight = true
		}
	}
	if len(cfg.MutationPolicy) > 0 && !positivePolicyWeight {
		return nil, fmt.Errorf("mutation policy requires at least one positive weight")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount <= 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.MutationsPerChild <= 0 {
		cfg.MutationsPerChild = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = EliteSelector{}
	}

	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run races every generation in one shared episode, ranks it and breeds the
// next one from elites and mutated children.
func (m *PopulationMonitor) Run(ctx context.Context, initial []model.Genome) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}

	population := make([]model.Genome, len(initial))
	copy(population, initial)

	result := RunResult{
		BestByGeneration:      make([]float64, 0, m.cfg.Generations),
		GenerationDiagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.Generations),
		Lineage:               make([]model.LineageRecord, 0, len(initial)*(m.cfg.Generations+1)),
	}
	for _, genome := range population {
		result.Lineage = append(result.Lineage, lineageRecord(genome.ID, "", 1, "seed"))
	}

	// gen is 0-based; generation numbers in names, lineage and diagnostics
	// are the 1-based generation a genome is first raced in.
	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		scored, ticks, err := m.evaluatePopulation(ctx, population, gen+1)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen+1, err)
		}
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Fitness > scored[j].Fitness
		})

		diagnostics := summarizeGeneration(scored, gen+1, ticks)
		result.BestByGeneration = append(result.BestByGeneration, scored[0].Fitness)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diagnostics)
		result.FinalPopulation = scored

		if m.cfg.OnGeneration != nil {
			if err := m.cfg.OnGeneration(GenerationReport{RunID: m.cfg.RunID, Diagnostics: diagnostics, Ranked: scored}); err != nil {
				return RunResult{}, err
			}
		}

		if m.cfg.FitnessGoal > 0 && scored[0].Fitness >= m.cfg.FitnessGoal {
			result.StoppedEarly = gen+1 < m.cfg.Generations
			break
		}
		if gen+1 == m.cfg.Generations {
			break
		}

		var generationLineage []model.LineageRecord
		population, generationLineage, err = m.nextGeneration(ctx, scored, gen+2)
		if err != nil {
			return RunResult{}, err
		}
		result.Lineage = append(result.Lineage, generationLineage...)
	}

	return result, nil
}

func summarizeGeneration(scored []ScoredGenome, generation, ticks int) model.GenerationDiagnostics {
	if len(scored) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	fitness := make([]float64, len(scored))
	minFitness := scored[0].Fitness
	finished := 0
	for i, item := range scored {
		fitness[i] = item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		if item.Result.Finished {
			finished++
		}
	}
	mean, _ := nn.Avg(fitness)
	std, _ := nn.Std(fitness)

	return model.GenerationDiagnostics{
		Generation:  generation,
		BestFitness: scored[0].Fitness,
		MeanFitness: mean,
		MinFitness:  minFitness,
		FitnessStd:  std,
		Finished:    finished,
		Population:  len(scored),
		Ticks:       ticks,
	}
}

func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []model.Genome, generation int) ([]ScoredGenome, int, error) {
	entrants := make([]scape.Entrant, len(population))
	for i, genome := range population {
		cortex, err := agent.NewCortex(genome.ID, genome)
		if err != nil {
			return nil, 0, err
		}
		entrants[i] = scape.Entrant{ID: genome.ID, Controller: cortex}
	}

	ec := &scape.EpisodeContext{RunID: m.cfg.RunID, Generation: generation}
	results, err := m.cfg.Scape.RunEpisode(ctx, ec, entrants)
	if err != nil {
		return nil, 0, err
	}
	if len(results) != len(population) {
		return nil, 0, fmt.Errorf("scape %s returned %d results for %d entrants", m.cfg.Scape.Name(), len(results), len(population))
	}

	scored := make([]ScoredGenome, len(population))
	for i, res := range results {
		if res.AgentID != population[i].ID {
			return nil, 0, fmt.Errorf("scape %s result %d is for %s, want %s", m.cfg.Scape.Name(), i, res.AgentID, population[i].ID)
		}
		scored[i] = ScoredGenome{Genome: population[i], Fitness: float64(res.Fitness), Result: res}
	}
	return scored, ec.Stats.Tick, nil
}

// nextGeneration breeds the population raced in the given generation.
func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredGenome, generation int) ([]model.Genome, []model.LineageRecord, error) {
	next := make([]model.Genome, 0, m.cfg.PopulationSize)
	lineage := make([]model.LineageRecord, 0, m.cfg.PopulationSize)

	for i := 0; i < m.cfg.EliteCount; i++ {
		elite := genotype.CloneGenome(ranked[i].Genome)
		next = append(next, elite)
		lineage = append(lineage, lineageRecord(elite.ID, ranked[i].Genome.ID, generation, "elite_clone"))
	}

	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		parent, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
		if err != nil {
			return nil, nil, err
		}
		child, record, err := m.mutateFromParent(ctx, parent, generation, len(next))
		if err != nil {
			return nil, nil, err
		}
		next = append(next, child)
		lineage = append(lineage, record)
	}

	return next, lineage, nil
}

// ChildID names the genome bred at index in the given generation.
func ChildID(generation, index int) string {
	return fmt.Sprintf("g%d-i%d", generation, index)
}

func (m *PopulationMonitor) mutateFromParent(ctx context.Context, parent model.Genome, generation, nextIndex int) (model.Genome, model.LineageRecord, error) {
	mutated := genotype.CloneAs(parent, ChildID(generation, nextIndex), generation)

	operationNames := make([]string, 0, m.cfg.MutationsPerChild)
	for step := 0; step < m.cfg.MutationsPerChild; step++ {
		operator := m.chooseMutation()
		next, opErr := operator.Apply(ctx, mutated)
		operationName := operator.Name()
		if opErr != nil {
			if m.cfg.Mutation != nil && operator != m.cfg.Mutation {
				next, opErr = m.cfg.Mutation.Apply(ctx, mutated)
				operationName = m.cfg.Mutation.Name() + "(fallback)"
			}
		}
		if opErr != nil {
			if errors.Is(opErr, ErrNoSynapses) || errors.Is(opErr, ErrNoNeurons) || errors.Is(opErr, ErrNoMutationChoice) {
				operationNames = append(operationNames, "noop("+operator.Name()+")")
				continue
			}
			return model.Genome{}, model.LineageRecord{}, opErr
		}
		mutated = next
		operationNames = append(operationNames, operationName)
	}

	return mutated, lineageRecord(mutated.ID, parent.ID, generation, strings.Join(operationNames, "+")), nil
}

func lineageRecord(genomeID, parentID string, generation int, operation string) model.LineageRecord {
	return model.LineageRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: genotype.CurrentSchemaVersion, CodecVersion: genotype.CurrentCodecVersion},
		GenomeID:        genomeID,
		ParentID:        parentID,
		Generation:      generation,
		Operation:       operation,
	}
}

func (m *PopulationMonitor) chooseMutation() Operator {
	if len(m.cfg.MutationPolicy) == 0 {
		return m.cfg.Mutation
	}

	total := 0.0
	for _, item := range m.cfg.MutationPolicy {
		total += item.Weight
	}
	if total <= 0 {
		return m.cfg.Mutation
	}
	pick := m.rng.Float64() * total
	acc := 0.0
	for _, item := range m.cfg.MutationPolicy {
		acc += item.Weight
		if pick <= acc {
			return item.Operator
		}
	}
	return m.cfg.MutationPolicy[len(m.cfg.MutationPolicy)-1].Operator
}

// SeedPopulation builds size random racer genomes for the first generation.
func SeedPopulation(size int, cfg genotype.SeedConfig, rng *rand.Rand) ([]model.Genome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	out := make([]model.Genome, 0, size)
	for i := 0; i < size; i++ {
		genome, err := genotype.ConstructRacer(ChildID(1, i), 1, cfg, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, genome)
	}
	return out, nil
}
