package stats

import (
	"os"
	"path/filepath"
	"testing"

	"radarrace/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:           runID,
			Scape:           "radar-race",
			TrackWidth:      1920,
			TrackHeight:     1080,
			PopulationSize:  4,
			Generations:     3,
			EliteCount:      1,
			Selection:       "elite",
			MutationWeights: map[string]float64{"perturb_random_weight": 1},
			Seed:            1,
			Workers:         2,
		},
		BestByGeneration: []float64{-1500, 12000, 51200.5},
		GenerationDiagnostics: []model.GenerationDiagnostics{
			{Generation: 1, BestFitness: -1500, Population: 4, Ticks: 31},
			{Generation: 2, BestFitness: 12000, Population: 4, Ticks: 250},
			{Generation: 3, BestFitness: 51200.5, Finished: 1, Population: 4, Ticks: 400},
		},
		FinalBestFitness: 51200.5,
		TopGenomes:       []model.TopGenomeRecord{{Rank: 1, Fitness: 51200.5, Genome: model.Genome{ID: "g3-i1"}}},
		Lineage:          []model.LineageRecord{{GenomeID: "g0-i0", Generation: 0, Operation: "seed"}},
		Episodes: []model.EpisodeRecord{{
			RunID:      runID,
			Generation: 3,
			Ticks:      400,
			Results:    []model.AgentResult{{GenomeID: "g3-i1", Fitness: 51200.5, Finished: true, Alive: true}},
		}},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-123"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range runFiles {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, "run-123", outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range runFiles {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	if _, err := ExportRunArtifacts(baseDir, "missing", outDir); err == nil {
		t.Fatal("expected export error for unknown run")
	}
}

func TestReadBackRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	if _, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-1")); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.TrackWidth != 1920 || cfg.MutationWeights["perturb_random_weight"] != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	top, ok, err := ReadTopGenomes(baseDir, "run-1")
	if err != nil || !ok || len(top) != 1 || top[0].Genome.ID != "g3-i1" {
		t.Fatalf("unexpected top genomes: %+v ok=%t err=%v", top, ok, err)
	}

	episodes, ok, err := ReadEpisodes(baseDir, "run-1")
	if err != nil || !ok || len(episodes) != 1 || !episodes[0].Results[0].Finished {
		t.Fatalf("unexpected episodes: %+v ok=%t err=%v", episodes, ok, err)
	}

	diagnostics, ok, err := ReadGenerationDiagnostics(baseDir, "run-1")
	if err != nil || !ok || len(diagnostics) != 3 || diagnostics[2].Finished != 1 {
		t.Fatalf("unexpected diagnostics: %+v ok=%t err=%v", diagnostics, ok, err)
	}

	lineage, ok, err := ReadLineage(baseDir, "run-1")
	if err != nil || !ok || len(lineage) != 1 || lineage[0].Operation != "seed" {
		t.Fatalf("unexpected lineage: %+v ok=%t err=%v", lineage, ok, err)
	}

	series, ok, err := ReadFitnessSeries(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%t err=%v", ok, err)
	}
	if len(series) != 3 || series[2] != 51200.5 {
		t.Fatalf("unexpected series: %v", series)
	}

	if _, ok, err := ReadRunConfig(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing config, ok=%t err=%v", ok, err)
	}
}

func TestWriteRunConfigValidation(t *testing.T) {
	baseDir := t.TempDir()
	if err := WriteRunConfig(baseDir, " ", RunConfig{}); err == nil {
		t.Fatal("expected run id error")
	}
	if err := WriteRunConfig(baseDir, "run-1", RunConfig{RunID: "run-2"}); err == nil {
		t.Fatal("expected run id mismatch error")
	}
	if err := WriteRunConfig(baseDir, "run-1", RunConfig{Seed: 9}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil || !ok || cfg.RunID != "run-1" || cfg.Seed != 9 {
		t.Fatalf("unexpected config: %+v ok=%t err=%v", cfg, ok, err)
	}
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{}); err == nil {
		t.Fatal("expected run id error from WriteRunArtifacts")
	}
}

func TestRunIndexOrderingAndReplace(t *testing.T) {
	baseDir := t.TempDir()

	entries, err := ListRunIndex(baseDir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty index: %+v err=%v", entries, err)
	}

	for _, entry := range []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", FinalBestFitness: 1},
		{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z", FinalBestFitness: 2},
		{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z", FinalBestFitness: 3},
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", FinalBestFitness: 4},
	} {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[0].RunID != "c" || entries[1].RunID != "b" || entries[2].RunID != "a" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if entries[2].FinalBestFitness != 4 {
		t.Fatalf("expected replaced entry, got %+v", entries[2])
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestRunIndexTieOrderSurvivesLaterAppends(t *testing.T) {
	baseDir := t.TempDir()
	for _, entry := range []RunIndexEntry{
		{RunID: "first", CreatedAtUTC: "2026-03-01T00:00:00Z"},
		{RunID: "second", CreatedAtUTC: "2026-03-01T00:00:00Z"},
		{RunID: "old", CreatedAtUTC: "2026-02-01T00:00:00Z"},
		{RunID: "older", CreatedAtUTC: "2026-01-01T00:00:00Z"},
	} {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
		entries, err := ListRunIndex(baseDir)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) >= 2 && (entries[0].RunID != "second" || entries[1].RunID != "first") {
			t.Fatalf("tie order flipped after appending %s: %+v", entry.RunID, entries)
		}
	}

	raw, err := readRunIndex(baseDir)
	if err != nil {
		t.Fatalf("read raw index: %v", err)
	}
	want := []string{"first", "second", "old", "older"}
	if len(raw) != len(want) {
		t.Fatalf("unexpected raw index: %+v", raw)
	}
	for i, id := range want {
		if raw[i].RunID != id {
			t.Fatalf("index file not in append order: %+v", raw)
		}
	}
}
