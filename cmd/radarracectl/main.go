package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"radarrace/internal/model"
	"radarrace/internal/scape"
	"radarrace/internal/storage"
	"radarrace/internal/track"
	"radarrace/pkg/radarrace"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "replay":
		return runReplay(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "episodes":
		return runEpisodes(ctx, args[1:])
	case "scape-summary":
		return runScapeSummary(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "track":
		return runTrack(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are shared by every command that opens a client.
type clientFlags struct {
	storeKind *string
	dbPath    *string
	runsDir   *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", "radarrace.db", "sqlite database path"),
		runsDir:   fs.String("runs-dir", runsDir, "run artifacts directory"),
	}
}

func (f clientFlags) open() (*radarrace.Client, error) {
	return radarrace.New(radarrace.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		RunsDir:    *f.runsDir,
		ExportsDir: exportsDir,
	})
}

// queryFlags select a run by id or as the latest indexed one.
type queryFlags struct {
	clientFlags
	runID   *string
	latest  *bool
	limit   *int
	jsonOut *bool
}

func addQueryFlags(fs *flag.FlagSet, what string, defaultLimit int) queryFlags {
	return queryFlags{
		clientFlags: addClientFlags(fs),
		runID:       fs.String("run-id", "", "run id"),
		latest:      fs.Bool("latest", false, "use the most recent run from the run index"),
		limit:       fs.Int("limit", defaultLimit, fmt.Sprintf("max %s to print (<=0 for all)", what)),
		jsonOut:     fs.Bool("json", false, fmt.Sprintf("emit %s as JSON", what)),
	}
}

func (f queryFlags) request(command string) (radarrace.QueryRequest, error) {
	if *f.runID != "" && *f.latest {
		return radarrace.QueryRequest{}, errors.New("use either --run-id or --latest, not both")
	}
	if *f.runID == "" && !*f.latest {
		return radarrace.QueryRequest{}, fmt.Errorf("%s requires --run-id or --latest", command)
	}
	limit := *f.limit
	if limit < 0 {
		limit = 0
	}
	return radarrace.QueryRequest{RunID: *f.runID, Latest: *f.latest, Limit: limit}, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *cf.storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML run config overlaid on the built-in defaults")
	dumpConfig := fs.String("dump-config", "", "write the resolved run config to this path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	trackPath := fs.String("track", "", "PNG or BMP track map (empty uses the built-in course)")
	width := fs.Int("width", 0, "expected track width")
	height := fs.Int("height", 0, "expected track height")
	startX := fs.Float64("start-x", 0, "spawn x")
	startY := fs.Float64("start-y", 0, "spawn y")
	population := fs.Int("pop", 0, "population size")
	generations := fs.Int("gens", 0, "generation count")
	eliteCount := fs.Int("elites", 0, "elites kept per generation")
	selection := fs.String("selection", "", "parent selection: elite|tournament")
	mutations := fs.Int("mutations", 0, "mutations applied per child")
	maxDelta := fs.Float64("max-delta", 0, "maximum weight perturbation")
	hidden := fs.Int("hidden", 0, "hidden neurons in seed genomes (0 wires sensors to actuators)")
	fitnessGoal := fs.Float64("fitness-goal", 0, "early-stop best fitness goal (0 disables)")
	seed := fs.Int64("seed", 0, "rng seed")
	workers := fs.Int("workers", 0, "per-tick worker count")
	hud := fs.Bool("hud", false, "print a HUD line every --hud-every ticks")
	hudEvery := fs.Int("hud-every", 0, "ticks between HUD lines")
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	runsDirFlag := fs.String("runs-dir", runsDir, "run artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		return err
	}
	elitesSet := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "run-id":
			cfg.RunID = *runID
		case "track":
			cfg.Track.Path = *trackPath
		case "width":
			cfg.Track.Width = *width
		case "height":
			cfg.Track.Height = *height
		case "start-x":
			cfg.Track.StartX = *startX
		case "start-y":
			cfg.Track.StartY = *startY
		case "pop":
			cfg.Evolution.Population = *population
		case "gens":
			cfg.Evolution.Generations = *generations
		case "elites":
			cfg.Evolution.EliteCount = *eliteCount
			elitesSet = true
		case "selection":
			cfg.Evolution.Selection = *selection
		case "mutations":
			cfg.Evolution.MutationsPerChild = *mutations
		case "max-delta":
			cfg.Evolution.MaxDelta = *maxDelta
		case "hidden":
			cfg.Network.HiddenNeurons = *hidden
		case "fitness-goal":
			cfg.Evolution.FitnessGoal = *fitnessGoal
		case "seed":
			cfg.Evolution.Seed = *seed
		case "workers":
			cfg.Evolution.Workers = *workers
		case "hud":
			cfg.Output.HUD = *hud
		case "hud-every":
			cfg.Output.HUDEvery = *hudEvery
		case "store":
			cfg.Store.Kind = *storeKind
		case "db-path":
			cfg.Store.DBPath = *dbPath
		}
	})
	// A smaller -pop shrinks the default elite count unless -elites is given.
	if !elitesSet && cfg.Evolution.EliteCount > cfg.Evolution.Population {
		cfg.Evolution.EliteCount = cfg.Evolution.Population
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	if *dumpConfig != "" {
		if err := writeRunConfig(*dumpConfig, cfg); err != nil {
			return err
		}
	}

	client, err := radarrace.New(radarrace.Options{
		StoreKind:  cfg.Store.Kind,
		DBPath:     cfg.Store.DBPath,
		RunsDir:    *runsDirFlag,
		ExportsDir: exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := cfg.runRequest()
	req.OnGeneration = func(d model.GenerationDiagnostics) {
		fmt.Printf("generation=%d best=%.6f mean=%.6f min=%.6f finished=%d/%d ticks=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.Finished,
			d.Population,
			d.Ticks,
		)
	}
	if cfg.Output.HUD {
		req.OnTick = hudPrinter(cfg.Output.HUDEvery)
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run_id=%s generations=%d final_best_fitness=%.6f finished=%d stopped_early=%t artifacts=%s\n",
		summary.RunID,
		len(summary.BestByGeneration),
		summary.FinalBestFitness,
		summary.Finished,
		summary.StoppedEarly,
		summary.ArtifactsDir,
	)
	return nil
}

// hudPrinter prints the live episode stats every n ticks and on the last one.
func hudPrinter(every int) scape.Observer {
	if every <= 0 {
		every = 1
	}
	return func(ec *scape.EpisodeContext, status scape.Status) {
		if status.Tick%every != 0 && !status.Done {
			return
		}
		fmt.Printf("hud generation=%d tick=%d alive=%d finished=%d population=%d best=%.3f mean=%.3f\n",
			ec.Generation,
			ec.Stats.Tick,
			ec.Stats.Alive,
			ec.Stats.Finished,
			ec.Stats.Population,
			ec.Stats.BestFitness,
			ec.Stats.MeanFitness,
		)
	}
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "replay from the most recent run")
	genomeID := fs.String("genome-id", "", "genome to replay (empty uses the run champion)")
	hud := fs.Bool("hud", false, "print a HUD line every --hud-every ticks")
	hudEvery := fs.Int("hud-every", 60, "ticks between HUD lines")
	jsonOut := fs.Bool("json", false, "emit the replay result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("replay requires --run-id or --latest")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := radarrace.ReplayRequest{RunID: *runID, Latest: *latest, GenomeID: *genomeID}
	if *hud {
		req.OnTick = hudPrinter(*hudEvery)
	}
	replay, err := client.Replay(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return encodeJSON(replay)
	}

	res := replay.Result
	fmt.Printf("run_id=%s genome_id=%s fitness=%.6f finished=%t alive=%t cause=%s distance=%.3f ticks=%d turns=%d color=%s final_x=%.3f final_y=%.3f\n",
		replay.RunID,
		res.AgentID,
		float64(res.Fitness),
		res.Finished,
		res.Alive,
		causeOrNone(string(res.Cause)),
		res.Distance,
		res.Ticks,
		res.Turns,
		res.Color,
		res.Final.X,
		res.Final.Y,
	)
	return nil
}

func causeOrNone(cause string) string {
	if cause == "" {
		return "none"
	}
	return cause
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	runsDirFlag := fs.String("runs-dir", runsDir, "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := radarrace.New(radarrace.Options{StoreKind: "memory", RunsDir: *runsDirFlag, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.Runs(ctx, radarrace.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		return encodeJSON(entries)
	}

	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s scape=%s seed=%d pop=%d gens=%d elites=%d workers=%d final_best_fitness=%.6f finished=%d\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Scape,
			e.Seed,
			e.PopulationSize,
			e.Generations,
			e.EliteCount,
			e.Workers,
			e.FinalBestFitness,
			e.Finished,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	qf := addQueryFlags(fs, "generations", 0)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := qf.request("fitness")
	if err != nil {
		return err
	}

	client, err := qf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, req)
	if err != nil {
		return err
	}
	if *qf.jsonOut {
		return encodeJSON(history)
	}
	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	qf := addQueryFlags(fs, "generations", 0)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := qf.request("diagnostics")
	if err != nil {
		return err
	}

	client, err := qf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, req)
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}
	if *qf.jsonOut {
		return encodeJSON(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f min=%.6f std=%.6f finished=%d population=%d ticks=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.FitnessStd,
			d.Finished,
			d.Population,
			d.Ticks,
		)
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	qf := addQueryFlags(fs, "top genomes", 5)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := qf.request("top")
	if err != nil {
		return err
	}

	client, err := qf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopGenomes(ctx, req)
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Println("no top genomes")
		return nil
	}
	if *qf.jsonOut {
		return encodeJSON(top)
	}
	for _, item := range top {
		fmt.Printf("rank=%d fitness=%.6f genome_id=%s generation=%d neurons=%d synapses=%d\n",
			item.Rank,
			item.Fitness,
			item.Genome.ID,
			item.Genome.Generation,
			len(item.Genome.Neurons),
			len(item.Genome.Synapses),
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	qf := addQueryFlags(fs, "lineage records", 50)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := qf.request("lineage")
	if err != nil {
		return err
	}

	client, err := qf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, req)
	if err != nil {
		return err
	}
	if *qf.jsonOut {
		return encodeJSON(lineage)
	}
	for _, record := range lineage {
		parent := record.ParentID
		if parent == "" {
			parent = "none"
		}
		fmt.Printf("generation=%d genome_id=%s parent_id=%s operation=%s\n",
			record.Generation,
			record.GenomeID,
			parent,
			record.Operation,
		)
	}
	return nil
}

func runEpisodes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("episodes", flag.ContinueOnError)
	qf := addQueryFlags(fs, "episodes", 0)
	results := fs.Bool("results", false, "print every racer result, best first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := qf.request("episodes")
	if err != nil {
		return err
	}

	client, err := qf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	episodes, err := client.Episodes(ctx, req)
	if err != nil {
		return err
	}
	if *qf.jsonOut {
		return encodeJSON(episodes)
	}
	for _, episode := range episodes {
		finished := 0
		for _, res := range episode.Results {
			if res.Finished {
				finished++
			}
		}
		fmt.Printf("generation=%d ticks=%d racers=%d finished=%d\n",
			episode.Generation,
			episode.Ticks,
			len(episode.Results),
			finished,
		)
		if !*results {
			continue
		}
		ranked := append([]model.AgentResult(nil), episode.Results...)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Fitness > ranked[j].Fitness
		})
		for _, res := range ranked {
			fmt.Printf("  genome_id=%s fitness=%.6f finished=%t cause=%s distance=%.3f ticks=%d turns=%d color=rgb(%d,%d,%d)\n",
				res.GenomeID,
				res.Fitness,
				res.Finished,
				causeOrNone(res.Cause),
				res.Distance,
				res.Ticks,
				res.Turns,
				res.Color[0], res.Color[1], res.Color[2],
			)
		}
	}
	return nil
}

func runScapeSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scape-summary", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.ScapeSummary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("scape=%s description=%q best_fitness=%.6f\n", summary.Name, summary.Description, summary.BestFitness)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runsDirFlag := fs.String("runs-dir", runsDir, "run artifacts directory")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := radarrace.New(radarrace.Options{StoreKind: "memory", RunsDir: *runsDirFlag, ExportsDir: *outDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, radarrace.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

// runTrack inspects a track map, or writes the built-in course as a PNG.
func runTrack(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	path := fs.String("path", "", "PNG or BMP track map (empty inspects the built-in course)")
	width := fs.Int("width", 0, "expected track width (0 accepts the image size)")
	height := fs.Int("height", 0, "expected track height (0 accepts the image size)")
	strict := fs.Bool("strict", false, "reject colors outside the default palette")
	exportPath := fs.String("export", "", "write the built-in course as PNG to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *exportPath != "" {
		if *path != "" {
			return errors.New("use either --path or --export, not both")
		}
		f, err := os.Create(*exportPath)
		if err != nil {
			return err
		}
		if err := track.EncodePNG(f, track.DefaultCourse()); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("exported track=%s width=%d height=%d\n", *exportPath, track.DefaultWidth, track.DefaultHeight)
		return nil
	}

	palette := track.DefaultPalette()
	palette.Strict = *strict
	var (
		tr  *track.Track
		err error
	)
	if *path == "" {
		tr, err = track.FromImage(track.DefaultCourse(), palette, *width, *height)
	} else {
		tr, err = track.Load(*path, palette, *width, *height)
	}
	if err != nil {
		return err
	}

	census := tr.Census()
	name := *path
	if name == "" {
		name = "builtin"
	}
	fmt.Printf("track=%s width=%d height=%d free=%d wall=%d goal=%d goals=%v\n",
		name,
		tr.Width(),
		tr.Height(),
		census[track.Free],
		census[track.Wall],
		census[track.Goal],
		tr.GoalColors(),
	)
	return nil
}

func encodeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: radarracectl <init|run|replay|runs|fitness|diagnostics|top|lineage|episodes|scape-summary|export|track> [flags]", msg)
}
