package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/taskferry/internal/log"
	"github.com/mattjoyce/taskferry/internal/queue"
)

const (
	// DefaultTimeout is passed as timeout, result TTL and TTL on every job.
	// A year is long enough that the queue's own expiry never ends a job.
	DefaultTimeout = 365 * 24 * time.Hour

	// DefaultBatchSize is the number of SQL statements sent per insert job.
	DefaultBatchSize = 25

	// DefaultSleepTime is the interval between polls in WaitFor.
	DefaultSleepTime = 5 * time.Second

	tracerName = "github.com/mattjoyce/taskferry/internal/dispatch"
)

// TaskDescriptor holds the named parameters for one unit of work. It is sent
// to the worker unmodified as the job's keyword arguments.
type TaskDescriptor map[string]any

// Backends names the callables workers resolve for each kind of work.
type Backends struct {
	RunStatements string
	MatrixBuilder string
	TrainTester   string
	Subsetter     string
}

// DefaultBackends returns the callable names registered by the stock workers.
func DefaultBackends() Backends {
	return Backends{
		RunStatements: "db.run_statements",
		MatrixBuilder: "matrix_builder.build_matrix",
		TrainTester:   "model_train_tester.process_task",
		Subsetter:     "subsetter.process_task",
	}
}

// Config controls batching, polling and job durations.
type Config struct {
	// SleepTime is the pause between polls. Zero means DefaultSleepTime.
	SleepTime time.Duration
	// BatchSize bounds the statements per insert job. Zero means DefaultBatchSize.
	BatchSize int
	// JobTimeout replaces DefaultTimeout for every job. Zero means DefaultTimeout.
	JobTimeout time.Duration
	// DBRef names the database connection workers use for SQL batches.
	DBRef string
	// Backends overrides individual callable names; empty fields keep the default.
	Backends Backends
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for submit and wait spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithLogger sets the logger used for poll reports.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher submits work to a queue and blocks until all of it has finished
// or failed.
type Dispatcher struct {
	client QueueClient
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Dispatcher over client.
func New(client QueueClient, cfg Config, opts ...Option) (*Dispatcher, error) {
	if client == nil {
		return nil, errors.New("queue client is required")
	}

	if cfg.SleepTime <= 0 {
		cfg.SleepTime = DefaultSleepTime
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultTimeout
	}
	cfg.Backends = mergeBackends(cfg.Backends, DefaultBackends())

	d := &Dispatcher{
		client: client,
		cfg:    cfg,
		logger: log.WithComponent("dispatch"),
		tracer: otel.Tracer(tracerName),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func mergeBackends(b, defaults Backends) Backends {
	if b.RunStatements == "" {
		b.RunStatements = defaults.RunStatements
	}
	if b.MatrixBuilder == "" {
		b.MatrixBuilder = defaults.MatrixBuilder
	}
	if b.TrainTester == "" {
		b.TrainTester = defaults.TrainTester
	}
	if b.Subsetter == "" {
		b.Subsetter = defaults.Subsetter
	}
	return b
}

// Config returns the effective configuration after defaults were applied.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// ProcessInserts runs statements through the SQL runner in batches and waits
// for every batch. Results are discarded; the statements' effects are the
// point.
func (d *Dispatcher) ProcessInserts(ctx context.Context, statements []string) error {
	batches := Batch(statements, d.cfg.BatchSize)

	ctx, span := d.tracer.Start(ctx, "dispatch.submit",
		trace.WithAttributes(
			attribute.String("function", d.cfg.Backends.RunStatements),
			attribute.Int("job_count", len(batches)),
			attribute.Int("statement_count", len(statements)),
		))
	defer span.End()

	jobs := make([]JobHandle, 0, len(batches))
	for i, batch := range batches {
		job, err := d.enqueue(ctx, queue.EnqueueRequest{
			Func:        d.cfg.Backends.RunStatements,
			Args:        []any{batch, d.cfg.DBRef},
			Description: fmt.Sprintf("%s: batch %d/%d (%d statements)", d.cfg.Backends.RunStatements, i+1, len(batches), len(batch)),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			return fmt.Errorf("enqueue insert batch %d/%d: %w", i+1, len(batches), err)
		}
		jobs = append(jobs, job)
	}

	_, err := d.WaitFor(ctx, jobs)
	return err
}

// ProcessMatrixBuildTasks submits one matrix build per descriptor. Keys
// (matrix uuids) are not sent; descriptors go out in ascending key order and
// results come back in that order.
func (d *Dispatcher) ProcessMatrixBuildTasks(ctx context.Context, tasks map[string]TaskDescriptor) ([]json.RawMessage, error) {
	keys := slices.Sorted(maps.Keys(tasks))
	ordered := make([]TaskDescriptor, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, tasks[k])
	}
	return d.SubmitKeyedTasks(ctx, d.cfg.Backends.MatrixBuilder, ordered)
}

// ProcessTrainTestTasks submits one train/test job per descriptor.
func (d *Dispatcher) ProcessTrainTestTasks(ctx context.Context, tasks []TaskDescriptor) ([]json.RawMessage, error) {
	return d.SubmitKeyedTasks(ctx, d.cfg.Backends.TrainTester, tasks)
}

// ProcessSubsetTasks submits one subset job per descriptor.
func (d *Dispatcher) ProcessSubsetTasks(ctx context.Context, tasks []TaskDescriptor) ([]json.RawMessage, error) {
	return d.SubmitKeyedTasks(ctx, d.cfg.Backends.Subsetter, tasks)
}

// SubmitKeyedTasks enqueues fn once per descriptor, with the descriptor's
// fields as keyword arguments, and waits for all of them. The result slice
// has one entry per task in input order; failed jobs leave a nil entry.
func (d *Dispatcher) SubmitKeyedTasks(ctx context.Context, fn string, tasks []TaskDescriptor) ([]json.RawMessage, error) {
	if fn == "" {
		return nil, errors.New("function name is empty")
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.submit",
		trace.WithAttributes(
			attribute.String("function", fn),
			attribute.Int("job_count", len(tasks)),
		))
	defer span.End()

	jobs := make([]JobHandle, 0, len(tasks))
	for i, task := range tasks {
		job, err := d.enqueue(ctx, queue.EnqueueRequest{
			Func:        fn,
			Kwargs:      task,
			Description: fmt.Sprintf("%s: task %d/%d", fn, i+1, len(tasks)),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			return nil, fmt.Errorf("enqueue %s task %d/%d: %w", fn, i+1, len(tasks), err)
		}
		jobs = append(jobs, job)
	}

	return d.WaitFor(ctx, jobs)
}

// enqueue stamps the fixed job durations onto req and submits it.
func (d *Dispatcher) enqueue(ctx context.Context, req queue.EnqueueRequest) (JobHandle, error) {
	req.Timeout = d.cfg.JobTimeout
	req.ResultTTL = d.cfg.JobTimeout
	req.TTL = d.cfg.JobTimeout

	job, err := d.client.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("job enqueued", "job_id", job.JobID(), "func", req.Func)
	return job, nil
}

// WaitFor polls jobs until every one has finished or failed, then returns
// their results in input order with nil for failed jobs. It only returns
// early when ctx is done.
func (d *Dispatcher) WaitFor(ctx context.Context, jobs []JobHandle) ([]json.RawMessage, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.wait_for",
		trace.WithAttributes(attribute.Int("job_count", len(jobs))))
	defer span.End()

	// Jobs whose row disappeared (pruned or deleted); reported once.
	vanished := make([]bool, len(jobs))

	for poll := 1; ; poll++ {
		var done, failed, pending int
		for i, job := range jobs {
			if err := job.Refresh(ctx); err != nil {
				// Status unknown this round; try again next poll.
				switch {
				case errors.Is(err, queue.ErrJobNotFound):
					if !vanished[i] {
						vanished[i] = true
						d.logger.Error("job no longer in queue; it will stay pending", "job_id", job.JobID())
					}
				default:
					d.logger.Warn("job refresh failed", "job_id", job.JobID(), "error", err)
				}
				pending++
				continue
			}
			switch {
			case job.IsFinished():
				done++
			case job.IsFailed():
				failed++
			default:
				pending++
			}
		}

		d.logger.Info("job report", "done", done, "failed", failed, "pending", pending)
		span.AddEvent("poll", trace.WithAttributes(
			attribute.Int("poll", poll),
			attribute.Int("done", done),
			attribute.Int("failed", failed),
			attribute.Int("pending", pending),
		))

		if pending == 0 {
			d.logger.Info("all jobs completed or failed, returning")
			results := make([]json.RawMessage, len(jobs))
			for i, job := range jobs {
				if job.IsFinished() {
					results[i] = job.Result()
				}
			}
			return results, nil
		}

		d.logger.Info("sleeping", "sleep", d.cfg.SleepTime.String())
		if err := d.sleep(ctx, d.cfg.SleepTime); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "wait abandoned")
			return nil, fmt.Errorf("wait for %d jobs (%d pending): %w", len(jobs), pending, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
