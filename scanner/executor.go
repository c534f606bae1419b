package scanner

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"fpetkovski/parquet-scan/dataset"
	"fpetkovski/parquet-scan/iterator"
)

// Visitor receives the batches of a scan. It is called concurrently for
// different tasks and sequentially for the batches of one task. task is the
// position of the task in the scan. The batch is released once the visitor
// returns; visitors keeping it must retain it.
type Visitor func(task int, batch arrow.Record) error

type Option func(*Executor)

func WithLogger(logger log.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Executor) { e.metrics = newMetrics(reg) }
}

// WithConcurrency sets the maximum number of tasks executed at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// WithReadahead reads up to n batches of every task ahead of the visitor.
func WithReadahead(n int) Option {
	return func(e *Executor) { e.readahead = n }
}

// WithTolerateErrors logs and skips fragments and tasks which fail instead
// of aborting the scan.
func WithTolerateErrors(tolerate bool) Option {
	return func(e *Executor) { e.tolerateErrors = tolerate }
}

// Executor pulls scan tasks and executes them concurrently.
type Executor struct {
	logger  log.Logger
	metrics *metrics

	concurrency    int
	readahead      int
	tolerateErrors bool
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:      log.NewNopLogger(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newMetrics(nil)
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	return e
}

// Execute drains tasks into visit. Tasks are pulled on the calling goroutine
// and only when an execution slot is free. The tasks iterator is closed
// before Execute returns.
func (e *Executor) Execute(ctx context.Context, tasks iterator.Iterator[dataset.ScanTask], visit Visitor) error {
	defer tasks.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var pullErr error
	for i := 0; gctx.Err() == nil; i++ {
		task, err := tasks.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.metrics.fragmentErrors.Inc()
			if e.tolerateErrors {
				level.Warn(e.logger).Log("msg", "skipping fragment", "err", err)
				continue
			}
			pullErr = err
			cancel()
			break
		}

		i, task := i, task
		g.Go(func() error {
			return e.execute(gctx, i, task, visit)
		})
	}

	err := g.Wait()
	if pullErr != nil {
		return pullErr
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Executor) execute(ctx context.Context, index int, task dataset.ScanTask, visit Visitor) error {
	batches, err := task.Execute()
	if err != nil {
		return e.taskFailed(index, err)
	}
	if e.readahead > 0 {
		batches = iterator.NewReadahead(batches, e.readahead, func(batch arrow.Record) {
			batch.Release()
		})
	}
	defer batches.Close()

	var numBatches int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := batches.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return e.taskFailed(index, err)
		}

		numBatches++
		e.metrics.batches.Inc()
		e.metrics.rows.Add(float64(batch.NumRows()))
		err = visit(index, batch)
		batch.Release()
		if err != nil {
			return err
		}
	}

	level.Debug(e.logger).Log("msg", "scan task done", "task", index, "batches", numBatches)
	e.metrics.tasks.WithLabelValues("success").Inc()
	return nil
}

func (e *Executor) taskFailed(index int, err error) error {
	e.metrics.tasks.WithLabelValues("failure").Inc()
	if e.tolerateErrors {
		level.Warn(e.logger).Log("msg", "skipping failed scan task", "task", index, "err", err)
		return nil
	}
	return errors.Wrapf(err, "executing scan task %d", index)
}
