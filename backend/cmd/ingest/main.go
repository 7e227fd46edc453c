package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/internal/ingest"
	"cdr-graph/backend/internal/metrics"
	"cdr-graph/backend/internal/tabular"
	"cdr-graph/backend/pkg/config"
	"cdr-graph/backend/pkg/logger"
)

func main() {
	file := flag.String("file", "", "CSV or Excel file to ingest")
	dryRun := flag.Bool("dry-run", false, "Extract and report without writing to Neo4j")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall deadline for the ingest")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -file <path> [-dry-run] [-timeout 10m]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	table, err := readTable(*file)
	if err != nil {
		log.Fatal("Failed to read table", zap.String("file", *file), zap.Error(err))
	}

	var result *ingest.Result
	if *dryRun {
		result, err = newService(cfg, graph.NewMemoryStore()).DryRun(ctx, table)
	} else {
		result, err = ingestNeo4j(ctx, cfg, table)
	}
	if err != nil {
		log.Fatal("Ingest failed", zap.String("file", *file), zap.Error(err))
	}

	if err := printResult(os.Stdout, filepath.Base(*file), result); err != nil {
		log.Fatal("Failed to write summary", zap.Error(err))
	}
}

func readTable(path string) (*tabular.Table, error) {
	if !tabular.Supported(path) {
		return nil, tabular.UnsupportedError(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tabular.Read(filepath.Base(path), f)
}

func newService(cfg *config.Config, store graph.Store) *ingest.Service {
	writer := graph.NewWriter(store, graph.WriterOptions{
		Timeout:     cfg.WriteTimeout,
		Concurrency: cfg.WriteConcurrency,
	})
	return ingest.NewService(writer, ingest.Options{
		Workers: cfg.ExtractWorkers,
		Metrics: metrics.DefaultRegistry(),
	})
}

func ingestNeo4j(ctx context.Context, cfg *config.Config, table *tabular.Table) (*ingest.Result, error) {
	driver, err := graph.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer driver.Close(context.Background())

	return newService(cfg, graph.NewRepository(driver, cfg.Neo4jDatabase)).Ingest(ctx, table)
}

func printResult(w io.Writer, name string, result *ingest.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		File string `json:"file"`
		*ingest.Result
	}{File: name, Result: result})
}
