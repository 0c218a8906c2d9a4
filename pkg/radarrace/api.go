package radarrace

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"radarrace/internal/evo"
	"radarrace/internal/genotype"
	"radarrace/internal/model"
	"radarrace/internal/nn"
	"radarrace/internal/platform"
	"radarrace/internal/scape"
	"radarrace/internal/stats"
	"radarrace/internal/storage"
	"radarrace/internal/track"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "radarrace.db"
	scapeName         = "race"
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
}

type Client struct {
	store storage.Store
	polis *platform.Polis

	runsDir    string
	exportsDir string
}

// RunRequest configures one evolution run. Zero values take the defaults
// listed in DefaultRunRequest, except HiddenNeurons where zero wires sensors
// straight to actuators.
type RunRequest struct {
	RunID string

	TrackPath   string
	TrackWidth  int
	TrackHeight int
	Palette     *track.Palette
	StartX      float64
	StartY      float64

	Population        int
	Generations       int
	EliteCount        int
	Selection         string
	MutationsPerChild int
	MaxDelta          float64
	MutationWeights   map[string]float64
	HiddenNeurons     int
	HiddenActivations []string
	OutputActivation  string
	WeightSpread      float64
	FitnessGoal       float64
	Seed              int64
	Workers           int

	// OnTick is called after every simulation tick.
	OnTick scape.Observer
	// OnGeneration is called after every ranked generation.
	OnGeneration func(diagnostics model.GenerationDiagnostics)
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
	Finished         int
	StoppedEarly     bool
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// QueryRequest selects a run either by id or as the most recent one.
type QueryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ReplayRequest struct {
	RunID  string
	Latest bool
	// GenomeID picks the genome to replay; empty replays the run's champion.
	GenomeID string
	OnTick   scape.Observer
}

type ReplayResult struct {
	RunID  string
	Result scape.Result
}

type ScapeSummaryItem struct {
	Name        string
	Description string
	BestFitness float64
}

// DefaultRunRequest returns the settings used for zero RunRequest fields.
func DefaultRunRequest() RunRequest {
	seed := genotype.DefaultSeedConfig()
	return RunRequest{
		TrackWidth:        track.DefaultWidth,
		TrackHeight:       track.DefaultHeight,
		StartX:            track.DefaultStartX,
		StartY:            track.DefaultStartY,
		Population:        20,
		Generations:       100,
		EliteCount:        4,
		Selection:         "elite",
		MutationsPerChild: 1,
		MaxDelta:          0.5,
		MutationWeights: map[string]float64{
			"perturb_weights_proportional": 3,
			"perturb_random_weight":        1,
			"perturb_random_bias":          1,
			"change_random_activation":     0.5,
		},
		HiddenNeurons:     seed.Hidden,
		HiddenActivations: seed.HiddenActivations,
		OutputActivation:  seed.OutputActivation,
		WeightSpread:      seed.WeightSpread,
		Workers:           1,
	}
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// LoadTrack loads the map at path, or the built-in course when path is empty.
func LoadTrack(path string, palette *track.Palette, width, height int) (*track.Track, error) {
	if width <= 0 {
		width = track.DefaultWidth
	}
	if height <= 0 {
		height = track.DefaultHeight
	}
	pal := track.DefaultPalette()
	if palette != nil {
		pal = *palette
	}
	if path == "" {
		return track.FromImage(track.DefaultCourse(), pal, width, height)
	}
	return track.Load(path, pal, width, height)
}

func withDefaults(req RunRequest) RunRequest {
	def := DefaultRunRequest()
	if req.TrackWidth <= 0 {
		req.TrackWidth = def.TrackWidth
	}
	if req.TrackHeight <= 0 {
		req.TrackHeight = def.TrackHeight
	}
	if req.StartX == 0 && req.StartY == 0 {
		req.StartX, req.StartY = def.StartX, def.StartY
	}
	if req.Population <= 0 {
		req.Population = def.Population
	}
	if req.Generations <= 0 {
		req.Generations = def.Generations
	}
	if req.EliteCount <= 0 {
		req.EliteCount = def.EliteCount
		if req.EliteCount > req.Population {
			req.EliteCount = req.Population
		}
	}
	if req.Selection == "" {
		req.Selection = def.Selection
	}
	if req.MutationsPerChild <= 0 {
		req.MutationsPerChild = def.MutationsPerChild
	}
	if req.MaxDelta <= 0 {
		req.MaxDelta = def.MaxDelta
	}
	if len(req.MutationWeights) == 0 {
		req.MutationWeights = def.MutationWeights
	}
	if len(req.HiddenActivations) == 0 {
		req.HiddenActivations = def.HiddenActivations
	}
	if req.OutputActivation == "" {
		req.OutputActivation = def.OutputActivation
	}
	if req.WeightSpread <= 0 {
		req.WeightSpread = def.WeightSpread
	}
	if req.Workers <= 0 {
		req.Workers = def.Workers
	}
	return req
}

func (c *Client) newRaceScape(req RunRequest, onTick scape.Observer) (*scape.RaceScape, error) {
	tr, err := LoadTrack(req.TrackPath, req.Palette, req.TrackWidth, req.TrackHeight)
	if err != nil {
		return nil, err
	}
	return scape.NewRaceScape(scape.RaceConfig{
		Track:    tr,
		Start:    &scape.Point{X: req.StartX, Y: req.StartY},
		Workers:  req.Workers,
		Seed:     req.Seed,
		Observer: onTick,
	})
}

// Run evolves racers on the requested track, persists the run in the store
// and writes its artifacts and run index entry.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req = withDefaults(req)

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	race, err := c.newRaceScape(req, req.OnTick)
	if err != nil {
		return RunSummary{}, err
	}
	if err := p.RegisterScape(race); err != nil {
		return RunSummary{}, err
	}

	rng := rand.New(rand.NewSource(req.Seed))
	params := evo.OperatorParams{Rand: rng, MaxDelta: req.MaxDelta, Activations: nn.ListActivations()}
	policy, err := evo.BuildMutationPolicy(req.MutationWeights, params)
	if err != nil {
		return RunSummary{}, err
	}
	selector, err := evo.SelectorByName(req.Selection)
	if err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = platform.NewRunID()
	}

	result, err := p.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:             runID,
		ScapeName:         race.Name(),
		PopulationSize:    req.Population,
		Generations:       req.Generations,
		EliteCount:        req.EliteCount,
		MutationsPerChild: req.MutationsPerChild,
		FitnessGoal:       req.FitnessGoal,
		Seed:              req.Seed,
		Mutation:          &evo.PerturbRandomWeight{Rand: rng, MaxDelta: req.MaxDelta},
		MutationPolicy:    policy,
		Selector:          selector,
		SeedGenome: genotype.SeedConfig{
			Hidden:            req.HiddenNeurons,
			HiddenActivations: req.HiddenActivations,
			OutputActivation:  req.OutputActivation,
			WeightSpread:      req.WeightSpread,
		},
		OnGeneration: func(report evo.GenerationReport) error {
			if req.OnGeneration != nil {
				req.OnGeneration(report.Diagnostics)
			}
			return nil
		},
	})
	if err != nil {
		return RunSummary{}, err
	}

	top, _, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	episodes, _, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}

	finished := 0
	if n := len(result.GenerationDiagnostics); n > 0 {
		finished = result.GenerationDiagnostics[n-1].Finished
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config:                runConfig(runID, req),
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      result.BestFinalFitness,
		StoppedEarly:          result.StoppedEarly,
		TopGenomes:            top,
		Lineage:               result.Lineage,
		Episodes:              episodes,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:            runID,
		Scape:            race.Name(),
		PopulationSize:   req.Population,
		Generations:      len(result.BestByGeneration),
		Seed:             req.Seed,
		Workers:          req.Workers,
		EliteCount:       req.EliteCount,
		FinalBestFitness: result.BestFinalFitness,
		Finished:         finished,
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFinalFitness,
		Finished:         finished,
		StoppedEarly:     result.StoppedEarly,
	}, nil
}

func runConfig(runID string, req RunRequest) stats.RunConfig {
	return stats.RunConfig{
		RunID:             runID,
		Scape:             scapeName,
		TrackPath:         req.TrackPath,
		TrackWidth:        req.TrackWidth,
		TrackHeight:       req.TrackHeight,
		Palette:           req.Palette,
		StartX:            req.StartX,
		StartY:            req.StartY,
		PopulationSize:    req.Population,
		Generations:       req.Generations,
		EliteCount:        req.EliteCount,
		Selection:         req.Selection,
		MutationsPerChild: req.MutationsPerChild,
		MaxDelta:          req.MaxDelta,
		MutationWeights:   req.MutationWeights,
		HiddenNeurons:     req.HiddenNeurons,
		HiddenActivations: req.HiddenActivations,
		OutputActivation:  req.OutputActivation,
		FitnessGoal:       req.FitnessGoal,
		Seed:              req.Seed,
		Workers:           req.Workers,
	}
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]stats.RunIndexEntry, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req QueryRequest) ([]float64, error) {
	runID, err := c.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err == nil && !ok {
		history, ok, err = stats.ReadFitnessSeries(c.runsDir, runID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return limit(history, req.Limit), nil
}

func (c *Client) Diagnostics(ctx context.Context, req QueryRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err == nil && !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.runsDir, runID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	return limit(diagnostics, req.Limit), nil
}

func (c *Client) TopGenomes(ctx context.Context, req QueryRequest) ([]model.TopGenomeRecord, error) {
	runID, err := c.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	top, ok, err := c.topGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	return limit(top, req.Limit), nil
}

func (c *Client) Lineage(ctx context.Context, req QueryRequest) ([]model.LineageRecord, error) {
	runID, err := c.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err == nil && !ok {
		lineage, ok, err = stats.ReadLineage(c.runsDir, runID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	return limit(lineage, req.Limit), nil
}

// Episodes returns per-generation race results, oldest generation first.
func (c *Client) Episodes(ctx context.Context, req QueryRequest) ([]model.EpisodeRecord, error) {
	runID, err := c.prepareQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	episodes, ok, err := c.store.GetEpisodes(ctx, runID)
	if err == nil && !ok {
		episodes, ok, err = stats.ReadEpisodes(c.runsDir, runID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("episodes not found for run id: %s", runID)
	}
	return limit(episodes, req.Limit), nil
}

func (c *Client) ScapeSummary(ctx context.Context) (ScapeSummaryItem, error) {
	if _, err := c.ensurePolis(ctx); err != nil {
		return ScapeSummaryItem{}, err
	}
	summary, ok, err := c.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return ScapeSummaryItem{}, err
	}
	if !ok {
		return ScapeSummaryItem{}, fmt.Errorf("scape summary not found: %s", scapeName)
	}
	return ScapeSummaryItem{
		Name:        summary.Name,
		Description: summary.Description,
		BestFitness: summary.BestFitness,
	}, nil
}

// Replay races one genome of a finished run alone on the run's track.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplayResult, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ReplayResult{}, err
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return ReplayResult{}, err
	}
	if !ok {
		return ReplayResult{}, fmt.Errorf("run config not found for run id: %s", runID)
	}

	genome, err := c.replayGenome(ctx, runID, req.GenomeID)
	if err != nil {
		return ReplayResult{}, err
	}
	if err := c.store.SaveGenome(ctx, genome); err != nil {
		return ReplayResult{}, err
	}

	race, err := c.newRaceScape(RunRequest{
		TrackPath:   cfg.TrackPath,
		TrackWidth:  cfg.TrackWidth,
		TrackHeight: cfg.TrackHeight,
		Palette:     cfg.Palette,
		StartX:      cfg.StartX,
		StartY:      cfg.StartY,
		Seed:        cfg.Seed,
		Workers:     1,
	}, req.OnTick)
	if err != nil {
		return ReplayResult{}, err
	}
	if err := p.RegisterScape(race); err != nil {
		return ReplayResult{}, err
	}

	result, err := p.Replay(ctx, race.Name(), genome.ID)
	if err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{RunID: runID, Result: result}, nil
}

func (c *Client) replayGenome(ctx context.Context, runID, genomeID string) (model.Genome, error) {
	top, ok, err := c.topGenomes(ctx, runID)
	if err != nil {
		return model.Genome{}, err
	}
	if genomeID == "" {
		if !ok || len(top) == 0 {
			return model.Genome{}, fmt.Errorf("top genomes not found for run id: %s", runID)
		}
		return top[0].Genome, nil
	}

	genome, found, err := c.store.GetGenome(ctx, genomeID)
	if err != nil {
		return model.Genome{}, err
	}
	if found {
		return genome, nil
	}
	for _, item := range top {
		if item.Genome.ID == genomeID {
			return item.Genome, nil
		}
	}
	return model.Genome{}, fmt.Errorf("genome %s not found for run id: %s", genomeID, runID)
}

func (c *Client) topGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err == nil && !ok {
		top, ok, err = stats.ReadTopGenomes(c.runsDir, runID)
	}
	return top, ok, err
}

func (c *Client) prepareQuery(ctx context.Context, req QueryRequest) (string, error) {
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return "", err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return "", err
	}
	return runID, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id or latest is required")
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return append([]T(nil), items...)
}
