// Package dispatch turns broker deliveries into executions on the worker pool
// and reconciles their outcome with the broker and the status store.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/backoff"
	"github.com/LexiconIndonesia/media-render-service/common/config"
	"github.com/LexiconIndonesia/media-render-service/common/messaging"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/status"
	"github.com/LexiconIndonesia/media-render-service/common/work"
	"github.com/rs/zerolog/log"
)

// Executor performs one job. Every error it returns is treated as retryable.
type Executor interface {
	Execute(ctx context.Context, job models.Job) (models.Result, error)
}

// EventRecorder receives job lifecycle events. It must not block for long
// and never fails the caller.
type EventRecorder interface {
	Record(ctx context.Context, event models.JobEvent)
}

// Lease keeps other processes from running a job this process is running.
// *work.LeaseManager implements it.
type Lease interface {
	Claim(ctx context.Context, jobID string) (bool, error)
	Extend(ctx context.Context, jobID string) (bool, error)
	Release(ctx context.Context, jobID string) error
}

// Options is the retry, timeout and bookkeeping policy of a dispatcher
type Options struct {
	MaxAttempts    int
	Backoff        backoff.Strategy
	AttemptTimeout time.Duration

	// Terminal status writes are retried; progress writes are not.
	TerminalWriteAttempts int
	TerminalWriteBackoff  backoff.Strategy

	// How often a running job tells the broker it is still alive. Zero disables it.
	HeartbeatInterval time.Duration

	Lease  Lease
	Events EventRecorder
}

// OptionsFromConfig builds the policy from the Worker config section
func OptionsFromConfig(cfg config.Config) Options {
	w := cfg.Worker
	return Options{
		MaxAttempts: w.MaxAttempts,
		Backoff: &backoff.Exponential{
			Initial:    w.InitialBackoff,
			Multiplier: w.BackoffMultiplier,
		},
		AttemptTimeout:        w.AttemptTimeout,
		TerminalWriteAttempts: w.TerminalWriteAttempts,
		TerminalWriteBackoff:  backoff.NewExponential(200*time.Millisecond, 5*time.Second),
		HeartbeatInterval:     w.HeartbeatInterval,
	}
}

type noopEvents struct{}

func (noopEvents) Record(context.Context, models.JobEvent) {}

// Dispatcher owns the active job set and the assignment of jobs to pool
// slots. Handle is safe for concurrent use.
type Dispatcher struct {
	pool  *work.Pool
	exec  Executor
	store status.Store
	opts  Options

	mu      sync.Mutex
	active  map[string]struct{}
	closing bool
	wg      sync.WaitGroup

	// cancelled only when shutdown gives up waiting
	runCtx context.Context
	abort  context.CancelFunc
}

// New creates a dispatcher that runs jobs on pool with exec
func New(pool *work.Pool, exec Executor, store status.Store, opts Options) *Dispatcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewExponential(time.Second, 0)
	}
	if opts.TerminalWriteAttempts < 1 {
		opts.TerminalWriteAttempts = 1
	}
	if opts.TerminalWriteBackoff == nil {
		opts.TerminalWriteBackoff = backoff.NewExponential(200*time.Millisecond, 5*time.Second)
	}
	if opts.Events == nil {
		opts.Events = noopEvents{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		pool:   pool,
		exec:   exec,
		store:  store,
		opts:   opts,
		active: make(map[string]struct{}),
		runCtx: ctx,
		abort:  cancel,
	}
}

// Run feeds deliveries from src into Handle until ctx is done
func (d *Dispatcher) Run(ctx context.Context, src messaging.Source) error {
	return src.Consume(ctx, d.Handle)
}

// Handle takes ownership of a delivery and settles it exactly once. It
// returns as soon as the job is either rejected or handed to a slot.
func (d *Dispatcher) Handle(dl *messaging.Delivery) {
	job, err := models.DecodeJob(dl.Data())
	if err != nil {
		d.reject(dl, err)
		return
	}

	logger := log.With().Str("jobID", job.ID).Logger()

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.requeue(dl, job.ID, "shutting down")
		return
	}
	if _, busy := d.active[job.ID]; busy {
		d.mu.Unlock()
		logger.Debug().Msg("Job already running, requeueing duplicate delivery")
		d.requeue(dl, job.ID, "duplicate delivery")
		return
	}
	slot, ok := d.pool.TryAcquire(job.ID)
	if !ok {
		d.mu.Unlock()
		logger.Debug().Msg("No free slot, requeueing")
		d.requeue(dl, job.ID, "no free slot")
		return
	}
	d.active[job.ID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.release(job.ID, slot)

		leased := false
		if d.opts.Lease != nil {
			// a lease backend outage runs the job unleased; the in-process
			// active set still prevents local duplicates
			claimed, err := d.opts.Lease.Claim(d.runCtx, job.ID)
			switch {
			case err != nil:
				logger.Error().Err(err).Msg("Lease claim failed, running without lease")
			case !claimed:
				d.requeue(dl, job.ID, "leased by another worker")
				return
			default:
				leased = true
				defer d.releaseLease(job.ID)
			}
		}

		d.process(dl, job, slot, leased)
	}()
}

func (d *Dispatcher) release(jobID string, slot *work.Slot) {
	d.mu.Lock()
	delete(d.active, jobID)
	d.mu.Unlock()
	d.pool.Release(slot)
}

func (d *Dispatcher) releaseLease(jobID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.runCtx), 5*time.Second)
	defer cancel()
	if err := d.opts.Lease.Release(ctx, jobID); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("Failed to release lease")
	}
}

// reject discards a delivery that can never be processed. The failure is
// recorded when the job id could be recovered from the body.
func (d *Dispatcher) reject(dl *messaging.Delivery, err error) {
	var malformed *models.MalformedJobError
	jobID := ""
	if errors.As(err, &malformed) {
		jobID = malformed.JobID
	}

	if jobID == "" {
		log.Error().Err(err).Int("bytes", len(dl.Data())).Msg("Discarding malformed delivery")
		settle(dl.Nack(false), "", "term")
		return
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.requeue(dl, jobID, "shutting down")
		return
	}
	// a live attempt owns the status of its id
	_, running := d.active[jobID]
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.opts.Events.Record(d.runCtx, models.JobEvent{
			JobID:     jobID,
			EventType: models.EventJobRejected,
			Message:   err.Error(),
		})
		if running {
			log.Warn().Str("jobID", jobID).Msg("Malformed delivery for a running job, leaving its status")
		} else {
			d.writeTerminal(models.FailedStatus(jobID))
		}
		settle(dl.Nack(false), jobID, "term")
	}()
}

func (d *Dispatcher) requeue(dl *messaging.Delivery, jobID, reason string) {
	if jobID != "" {
		d.opts.Events.Record(d.runCtx, models.JobEvent{
			JobID:     jobID,
			EventType: models.EventJobRequeued,
			Message:   reason,
		})
	}
	settle(dl.Nack(true), jobID, "nak")
}

func settle(err error, jobID, op string) {
	if err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Str("op", op).Msg("Failed to settle delivery")
	}
}

// Active returns the ids of the jobs currently holding a slot
func (d *Dispatcher) Active() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	return ids
}

// Slots returns a snapshot of the pool slots
func (d *Dispatcher) Slots() []work.SlotInfo {
	return d.pool.Slots()
}

// Stats returns the pool statistics
func (d *Dispatcher) Stats() work.PoolStats {
	return d.pool.Stats()
}

// Wait blocks until every accepted delivery has been settled and its slot
// released. Callers must not Handle new deliveries concurrently.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first the remaining attempts are cancelled and their deliveries requeued.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.pool.Stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All render jobs finished")
		return nil
	case <-ctx.Done():
		log.Warn().Strs("jobs", d.Active()).Msg("Shutdown grace period expired, cancelling running jobs")
		d.abort()
		<-done
		return ctx.Err()
	}
}
