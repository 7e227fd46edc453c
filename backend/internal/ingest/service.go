// Package ingest turns a parsed table into graph writes: detect the record
// type, extract every row, fold the rows into one batch and persist it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cdr-graph/backend/internal/extract"
	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/internal/metrics"
	"cdr-graph/backend/internal/schema"
	"cdr-graph/backend/internal/tabular"
	apperrors "cdr-graph/backend/pkg/errors"
	"cdr-graph/backend/pkg/logger"
)

// DefaultWorkers is the extraction parallelism when none is configured.
const DefaultWorkers = 4

// minChunk keeps tiny tables on a single worker.
const minChunk = 256

// BatchWriter persists a batch. *graph.Writer satisfies it.
type BatchWriter interface {
	Write(ctx context.Context, batch *graph.Batch) (*graph.WriteReport, error)
}

// Options configures a Service.
type Options struct {
	Workers int
	Metrics *metrics.Registry
	Logger  *zap.Logger
}

// Service runs the ingestion pipeline.
type Service struct {
	writer  BatchWriter
	workers int
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewService creates a pipeline that writes through w.
func NewService(w BatchWriter, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Service{
		writer:  w,
		workers: opts.Workers,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Plan is the outcome of detection and extraction, before any write.
type Plan struct {
	FileType    schema.RecordType
	Columns     []string
	RecordCount int
	Batch       *graph.Batch
}

// Result summarizes one ingested file.
type Result struct {
	FileType     schema.RecordType `json:"file_type"`
	RecordCount  int               `json:"record_count"`
	Columns      []string          `json:"columns"`
	NodeCount    int               `json:"nodes"`
	EdgeCount    int               `json:"relationships"`
	NodesByLabel map[string]int    `json:"nodes_by_label"`
	EdgesByGroup map[string]int    `json:"relationships_by_group"`
	Warnings     []graph.Warning   `json:"warnings"`
	Duration     time.Duration     `json:"duration"`
	DryRun       bool              `json:"dry_run,omitempty"`
}

// Plan detects the record type and builds the batch without writing it.
// An unrecognized column set fails with *errors.ErrUnrecognizedFileType.
func (s *Service) Plan(ctx context.Context, table *tabular.Table) (*Plan, error) {
	columns := table.Columns()
	fileType := schema.DetectColumns(columns)
	if !fileType.Known() {
		if s.metrics != nil {
			s.metrics.RecordRejected()
		}
		s.logger.Info("Rejected file with unknown columns",
			zap.String("file", table.Name),
			zap.Strings("columns", columns),
		)
		return nil, apperrors.NewUnrecognizedFileType(columns)
	}

	acc, err := s.accumulate(ctx, fileType, table)
	if err != nil {
		return nil, err
	}
	batch := acc.Batch()

	s.logger.Info("File planned",
		zap.String("file", table.Name),
		zap.String("file_type", fileType.String()),
		zap.Int("records", table.Len()),
		zap.Int("nodes", batch.NodeCount()),
		zap.Int("relationships", batch.EdgeCount()),
		zap.Int("warnings", len(batch.Warnings)),
	)
	return &Plan{
		FileType:    fileType,
		Columns:     columns,
		RecordCount: table.Len(),
		Batch:       batch,
	}, nil
}

// Ingest plans the table and writes the batch. A write failure is returned
// as *errors.ErrGraphWriteFailed; groups committed before it stay applied.
func (s *Service) Ingest(ctx context.Context, table *tabular.Table) (*Result, error) {
	start := time.Now()
	plan, err := s.Plan(ctx, table)
	if err != nil {
		return nil, err
	}

	if _, err := s.writer.Write(ctx, plan.Batch); err != nil {
		var writeErr *apperrors.ErrGraphWriteFailed
		if s.metrics != nil && errors.As(err, &writeErr) {
			s.metrics.RecordWriteFailure(plan.FileType.String(), writeErr.Phase, writeErr.Retryable)
		}
		return nil, fmt.Errorf("write %s batch from %s: %w", plan.FileType, table.Name, err)
	}

	result := plan.result(time.Since(start))
	if s.metrics != nil {
		s.metrics.RecordIngest(result.FileType.String(), result.RecordCount, result.NodesByLabel, result.EdgesByGroup, result.Duration)
		for _, w := range result.Warnings {
			s.metrics.RecordWarning(string(w.Kind))
		}
	}
	return result, nil
}

// DryRun plans the table and reports what Ingest would write.
func (s *Service) DryRun(ctx context.Context, table *tabular.Table) (*Result, error) {
	start := time.Now()
	plan, err := s.Plan(ctx, table)
	if err != nil {
		return nil, err
	}
	result := plan.result(time.Since(start))
	result.DryRun = true
	return result, nil
}

func (p *Plan) result(d time.Duration) *Result {
	warnings := p.Batch.Warnings
	if warnings == nil {
		warnings = []graph.Warning{}
	}
	return &Result{
		FileType:     p.FileType,
		RecordCount:  p.RecordCount,
		Columns:      p.Columns,
		NodeCount:    p.Batch.NodeCount(),
		EdgeCount:    p.Batch.EdgeCount(),
		NodesByLabel: p.Batch.NodesByLabel(),
		EdgesByGroup: p.Batch.EdgesByGroup(),
		Warnings:     warnings,
		Duration:     d,
	}
}

// accumulate extracts contiguous row chunks in parallel, each into its own
// accumulator, and merges the partials in chunk order so the batch matches a
// sequential pass.
func (s *Service) accumulate(ctx context.Context, fileType schema.RecordType, table *tabular.Table) (*graph.Accumulator, error) {
	chunks := chunkBounds(table.Len(), s.workers)
	partials := make([]*graph.Accumulator, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			acc := graph.NewAccumulator(s.logger)
			for row := c[0]; row < c[1]; row++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				ex, err := extract.ExtractRow(fileType, table.Row(row))
				if err != nil {
					return fmt.Errorf("row %d: %w", row, err)
				}
				acc.AddRow(row, ex.Nodes, ex.Edges)
			}
			partials[i] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := graph.NewAccumulator(s.logger)
	for _, p := range partials {
		out.Merge(p)
	}
	return out, nil
}

// chunkBounds splits n rows into at most workers half-open ranges.
func chunkBounds(n, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	size := (n + workers - 1) / workers
	if size < minChunk {
		size = minChunk
	}
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
