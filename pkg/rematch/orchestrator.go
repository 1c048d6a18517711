package rematch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/metrics"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/google/uuid"
)

const (
	// DefaultConcurrency is the number of workers resolving products
	DefaultConcurrency = 32

	// DefaultRetries is how many times a retryable failure is retried per product
	DefaultRetries = 2

	// DefaultTimeout bounds a single ResolveProduct attempt
	DefaultTimeout = 20 * time.Second

	// DefaultReportInterval is the minimum gap between two progress reports
	DefaultReportInterval = 1500 * time.Millisecond

	// DefaultBackoff is the first retry delay; it doubles per attempt
	DefaultBackoff = 300 * time.Millisecond

	DefaultBatchSize    = 1000
	DefaultMaxFailedIDs = 1000

	// LockKey guards against two bulk runs at once
	LockKey = "ingredient-manager:rematch"
)

var errLimitReached = errors.New("limit reached")

// State is the lifecycle of one run.
type State string

const (
	StateInit               State = "init"
	StateDraining           State = "draining"
	StateStreaming          State = "streaming"
	StateDrainingCompletion State = "draining_completion"
	StateDone               State = "done"
)

type Resolver interface {
	ResolveProduct(ctx context.Context, productID string) (*matching.ProductResolution, error)
}

type ProductSource interface {
	// IterateIDs walks product ids in ascending order by keyset cursor.
	IterateIDs(ctx context.Context, batchSize int, fn func(ids []uuid.UUID) error) error
	Count(ctx context.Context) (int64, error)
}

// Dropper removes every match record before a run.
type Dropper interface {
	Truncate(ctx context.Context) error
	DeleteAll(ctx context.Context) (int64, error)
}

// Locker hands out a lease on key; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type Options struct {
	Concurrency    int
	Retries        int
	Timeout        time.Duration
	ReportInterval time.Duration
	Backoff        time.Duration
	BatchSize      int
	MaxFailedIDs   int
	// Limit stops enqueuing after that many ids; zero means all products.
	Limit int
	// DryRun streams and counts ids without dropping or resolving anything.
	DryRun bool
	NoDrop bool
	// LockTTL is the lease taken on LockKey when a Locker is configured.
	LockTTL time.Duration
	// OnProgress receives every progress report, the final one included.
	OnProgress func(Progress)
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = DefaultReportInterval
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxFailedIDs <= 0 {
		o.MaxFailedIDs = DefaultMaxFailedIDs
	}
	if o.LockTTL <= 0 {
		o.LockTTL = time.Hour
	}
	return o
}

// Progress is one report of a running or finished run.
type Progress struct {
	State      State   `json:"state"`
	Total      int64   `json:"total"`
	Processed  int64   `json:"processed"`
	Succeeded  int64   `json:"succeeded"`
	Failed     int64   `json:"failed"`
	Remaining  int64   `json:"remaining"`
	Rate       float64 `json:"rate"`
	ETASeconds float64 `json:"eta_seconds"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

type Result struct {
	Total     int64    `json:"total"`
	Processed int64    `json:"processed"`
	Succeeded int64    `json:"succeeded"`
	Failed    int64    `json:"failed"`
	FailedIDs []string `json:"failed_ids"`
	ElapsedMs int64    `json:"elapsed_ms"`
	DryRun    bool     `json:"dry_run"`
}

// Orchestrator re-resolves every product with a fixed worker pool fed by a single producer.
type Orchestrator struct {
	resolver Resolver
	products ProductSource
	dropper  Dropper
	locker   Locker
	logger   ectologger.Logger
}

// NewOrchestrator builds an orchestrator. locker may be nil when a single process runs bulk jobs.
func NewOrchestrator(logger ectologger.Logger, resolver Resolver, products ProductSource, dropper Dropper, locker Locker) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		products: products,
		dropper:  dropper,
		locker:   locker,
		logger:   logger,
	}
}

// run holds the shared state of one Run call.
type run struct {
	opts      Options
	start     time.Time
	total     int64
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	state     atomic.Value

	mu        sync.Mutex
	failedIDs []string
}

func (r *run) setState(s State) {
	r.state.Store(s)
}

func (r *run) progress() Progress {
	elapsed := time.Since(r.start)
	p := Progress{
		State:     r.state.Load().(State),
		Total:     r.total,
		Processed: r.processed.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		ElapsedMs: elapsed.Milliseconds(),
	}
	p.Remaining = max(0, p.Total-p.Processed)
	p.Rate = float64(p.Processed) / max(elapsed.Seconds(), 1e-3)
	p.ETASeconds = float64(p.Remaining) / max(0.1, p.Rate)
	return p
}

func (r *run) fail(id string) {
	r.failed.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.failedIDs) < r.opts.MaxFailedIDs {
		r.failedIDs = append(r.failedIDs, id)
	}
}

func (r *run) result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	failedIDs := append([]string{}, r.failedIDs...)
	return &Result{
		Total:     r.total,
		Processed: r.processed.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		FailedIDs: failedIDs,
		ElapsedMs: time.Since(r.start).Milliseconds(),
		DryRun:    r.opts.DryRun,
	}
}

// Run drops existing match records (unless NoDrop or DryRun), then resolves every product. A
// product that keeps failing is counted and skipped; it never stops the pool. The returned error is
// set only when the run itself could not complete.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "rematch.Orchestrator.Run")
	defer span.End()

	r := &run{opts: opts.withDefaults(), start: time.Now()}
	r.setState(StateInit)

	if o.locker != nil && !r.opts.DryRun {
		unlock, err := o.locker.Lock(ctx, LockKey, r.opts.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				o.logger.WithContext(ctx).WithError(err).Warn("Failed to release rematch lock")
			}
		}()
	}

	total, err := o.products.Count(ctx)
	if err != nil {
		return nil, err
	}
	if r.opts.Limit > 0 {
		total = min(total, int64(r.opts.Limit))
	}
	r.total = total

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"total":       total,
		"concurrency": r.opts.Concurrency,
		"retries":     r.opts.Retries,
		"timeout":     r.opts.Timeout.String(),
		"limit":       r.opts.Limit,
		"dry_run":     r.opts.DryRun,
		"no_drop":     r.opts.NoDrop,
	}).Info("Starting rematch")

	r.setState(StateDraining)
	if err := o.drop(ctx, r.opts); err != nil {
		return nil, err
	}

	r.setState(StateStreaming)
	ids := make(chan string, 2*r.opts.Concurrency)

	var producerErr error
	go func() {
		defer close(ids)
		producerErr = o.produce(ctx, r.opts, ids)
	}()

	stopReporter := o.startReporter(ctx, r)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if ctx.Err() != nil {
					continue
				}
				o.process(ctx, r, id)
			}
		}()
	}

	// ids is closed once the producer returns, so after Wait producerErr is settled
	wg.Wait()
	r.setState(StateDrainingCompletion)
	stopReporter()

	r.setState(StateDone)
	o.report(ctx, r)
	result := r.result()

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"total":      result.Total,
		"processed":  result.Processed,
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
		"elapsed_ms": result.ElapsedMs,
	}).Info("Rematch finished")

	if err := ctx.Err(); err != nil {
		return result, errkind.Wrap(errkind.Timeout, err, "rematch interrupted")
	}
	if producerErr != nil {
		o.logger.WithContext(ctx).WithError(producerErr).Error("Failed to stream product ids")
		return result, producerErr
	}
	return result, nil
}

// drop clears match records with TRUNCATE, falling back to DELETE.
func (o *Orchestrator) drop(ctx context.Context, opts Options) error {
	if opts.DryRun || opts.NoDrop {
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"dry_run": opts.DryRun,
			"no_drop": opts.NoDrop,
		}).Info("Skipping match record drop")
		return nil
	}

	err := o.dropper.Truncate(ctx)
	if err == nil {
		o.logger.WithContext(ctx).Info("Truncated match records")
		return nil
	}

	o.logger.WithContext(ctx).WithError(err).Warn("Truncate failed, falling back to delete")
	deleted, err := o.dropper.DeleteAll(ctx)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to delete match records")
		return err
	}
	o.logger.WithContext(ctx).WithField("deleted", deleted).Info("Deleted match records")
	return nil
}

func (o *Orchestrator) produce(ctx context.Context, opts Options, ids chan<- string) error {
	enqueued := 0
	err := o.products.IterateIDs(ctx, opts.BatchSize, func(batch []uuid.UUID) error {
		for _, id := range batch {
			if opts.Limit > 0 && enqueued >= opts.Limit {
				return errLimitReached
			}
			select {
			case ids <- id.String():
				enqueued++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if errors.Is(err, errLimitReached) || (err != nil && ctx.Err() != nil) {
		return nil
	}
	return err
}

// process resolves one product, retrying retryable failures with exponential backoff.
func (o *Orchestrator) process(ctx context.Context, r *run, id string) {
	metrics.RematchInFlight.Inc()
	defer metrics.RematchInFlight.Dec()
	defer r.processed.Add(1)

	if r.opts.DryRun {
		r.succeeded.Add(1)
		metrics.RecordRematchItem("dry_run")
		return
	}

	for attempt := 0; ; attempt++ {
		itemCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		_, err := o.resolver.ResolveProduct(itemCtx, id)
		cancel()

		if err == nil {
			r.succeeded.Add(1)
			metrics.RecordRematchItem("succeeded")
			return
		}

		if attempt >= r.opts.Retries || !errkind.IsRetryable(err) || ctx.Err() != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"product_id": id,
				"attempts":   attempt + 1,
				"kind":       errkind.Of(err),
			}).Warn("Product rematch failed")
			r.fail(id)
			metrics.RecordRematchItem("failed")
			return
		}

		metrics.RematchRetriesTotal.Inc()
		backoff := r.opts.Backoff * time.Duration(1<<attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
	}
}

func (o *Orchestrator) startReporter(ctx context.Context, r *run) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.opts.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.report(ctx, r)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (o *Orchestrator) report(ctx context.Context, r *run) {
	p := r.progress()
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"state":       p.State,
		"processed":   p.Processed,
		"total":       p.Total,
		"succeeded":   p.Succeeded,
		"failed":      p.Failed,
		"rate":        p.Rate,
		"remaining":   p.Remaining,
		"eta_seconds": p.ETASeconds,
	}).Info("Rematch progress")
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(p)
	}
}
