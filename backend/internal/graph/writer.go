package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "cdr-graph/backend/pkg/errors"
	"cdr-graph/backend/pkg/logger"
)

// Write phases
const (
	PhaseNodes = "node"
	PhaseEdges = "edge"
)

// DefaultWriteTimeout bounds a single write group when no timeout is configured.
const DefaultWriteTimeout = 60 * time.Second

// WriterOptions tunes a Writer.
type WriterOptions struct {
	// Timeout bounds each write group.
	Timeout time.Duration
	// Concurrency is the number of groups in flight within one phase.
	Concurrency int
	Logger      *zap.Logger
}

// WriteReport summarizes a completed write.
type WriteReport struct {
	NodeGroups    int           `json:"node_groups"`
	EdgeGroups    int           `json:"edge_groups"`
	Nodes         int           `json:"nodes"`
	Relationships int           `json:"relationships"`
	Duration      time.Duration `json:"duration"`
}

// Writer persists batches: every node group first, then every relationship
// group. There is no rollback across groups; a failed write leaves earlier
// groups applied and the whole batch can be replayed because every group is
// an idempotent merge.
type Writer struct {
	store       Store
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewWriter creates a writer over store.
func NewWriter(store Store, opts WriterOptions) *Writer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWriteTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Writer{
		store:       store,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// retryable is implemented by store errors that know whether replaying helps.
type retryable interface {
	Retryable() bool
}

// Write applies the batch. The edge phase starts only after every node group
// has been committed; if any node group fails no relationship is attempted.
func (w *Writer) Write(ctx context.Context, batch *Batch) (*WriteReport, error) {
	start := time.Now()
	report := &WriteReport{}
	var committed atomic.Int64

	nodeGroups := make([]groupTask, 0, len(batch.Nodes))
	for _, g := range batch.Nodes {
		if len(g.IDs) == 0 {
			continue
		}
		g := g
		nodeGroups = append(nodeGroups, groupTask{name: g.Label, fn: func(ctx context.Context) error {
			return w.store.MergeNodes(ctx, g.Label, g.IDs)
		}})
		report.NodeGroups++
		report.Nodes += len(g.IDs)
	}
	if err := w.runPhase(ctx, PhaseNodes, nodeGroups, &committed); err != nil {
		return nil, err
	}

	edgeGroups := make([]groupTask, 0, len(batch.Edges))
	for _, g := range batch.Edges {
		if len(g.Relationships) == 0 {
			continue
		}
		g := g
		edgeGroups = append(edgeGroups, groupTask{name: g.Key.String(), fn: func(ctx context.Context) error {
			return w.store.MergeRelationships(ctx, g.Key, g.Relationships)
		}})
		report.EdgeGroups++
		report.Relationships += len(g.Relationships)
	}
	if err := w.runPhase(ctx, PhaseEdges, edgeGroups, &committed); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	w.logger.Info("Batch written",
		zap.Int("node_groups", report.NodeGroups),
		zap.Int("nodes", report.Nodes),
		zap.Int("edge_groups", report.EdgeGroups),
		zap.Int("relationships", report.Relationships),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

type groupTask struct {
	name string
	fn   func(context.Context) error
}

// groupError carries the name of the group whose store call failed.
type groupError struct {
	name string
	err  error
}

func (e *groupError) Error() string { return e.name + ": " + e.err.Error() }
func (e *groupError) Unwrap() error { return e.err }

// runPhase runs the groups of one phase and waits for all of them. The
// failure is classified only after every in-flight sibling has returned, so
// Partial reflects groups that committed after the first error.
func (w *Writer) runPhase(ctx context.Context, phase string, tasks []groupTask, committed *atomic.Int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := w.run(gctx, phase, t.name, t.fn); err != nil {
				return &groupError{name: t.name, err: err}
			}
			committed.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		return nil
	}
	// errgroup keeps the first error; siblings cancelled after it are dropped.
	failed := &groupError{err: err}
	errors.As(err, &failed)
	return w.failure(ctx, phase, failed.name, committed.Load() > 0, failed.err)
}

// run executes one group under the per-group timeout.
func (w *Writer) run(ctx context.Context, phase, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	groupCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := fn(groupCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = apperrors.NewContextTimeout(fmt.Sprintf("%s merge %s", phase, name), w.timeout, err)
	}

	w.logger.Debug("Write group finished",
		zap.String("phase", phase),
		zap.String("group", name),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	return err
}

func (w *Writer) failure(parent context.Context, phase, name string, partial bool, err error) error {
	canRetry := true
	var r retryable
	if errors.As(err, &r) {
		canRetry = r.Retryable()
	}
	var timeout *apperrors.ErrContextTimeout
	if errors.As(err, &timeout) {
		canRetry = true
	} else if parent.Err() != nil {
		// Caller cancelled; replaying is still safe.
		canRetry = true
	}

	w.logger.Error("Write group failed",
		zap.String("phase", phase),
		zap.String("group", name),
		zap.Bool("partial", partial),
		zap.Bool("retryable", canRetry),
		zap.Error(err),
	)
	return apperrors.NewGraphWriteFailed(phase, name, partial, canRetry, err)
}
