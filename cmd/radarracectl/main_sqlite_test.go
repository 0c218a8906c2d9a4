//go:build sqlite

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"radarrace/pkg/radarrace"
)

func TestRunCommandSQLitePersistsAcrossClients(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runs := filepath.Join(dir, "runs")
	dbPath := filepath.Join(dir, "radarrace.db")

	args := []string{
		"run",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--runs-dir", runs,
		"--run-id", "sqlite-run",
		"--track", writeStripTrack(t, dir),
		"--width", "300",
		"--height", "200",
		"--start-x", "40",
		"--start-y", "100",
		"--pop", "5",
		"--gens", "2",
		"--elites", "1",
		"--seed", "3",
	}
	if err := run(ctx, args); err != nil {
		t.Fatalf("run command: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}

	// Remove the artifacts so queries must be served by the database.
	if err := os.RemoveAll(filepath.Join(runs, "sqlite-run")); err != nil {
		t.Fatalf("remove artifacts: %v", err)
	}

	client, err := radarrace.New(radarrace.Options{StoreKind: "sqlite", DBPath: dbPath, RunsDir: runs})
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, radarrace.QueryRequest{RunID: "sqlite-run"})
	if err != nil || len(history) != 2 {
		t.Fatalf("unexpected history: %v err=%v", history, err)
	}
	episodes, err := client.Episodes(ctx, radarrace.QueryRequest{RunID: "sqlite-run"})
	if err != nil || len(episodes) != 2 || len(episodes[1].Results) != 5 {
		t.Fatalf("unexpected episodes: %d err=%v", len(episodes), err)
	}
	top, err := client.TopGenomes(ctx, radarrace.QueryRequest{RunID: "sqlite-run", Limit: 1})
	if err != nil || len(top) != 1 || top[0].Fitness != history[1] {
		t.Fatalf("unexpected top genomes: %+v err=%v", top, err)
	}
}
