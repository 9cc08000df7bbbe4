package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/backoff"
	"github.com/LexiconIndonesia/media-render-service/common/media"
	"github.com/LexiconIndonesia/media-render-service/common/messaging"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/work"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// process runs the job under the retry policy and settles the delivery
func (d *Dispatcher) process(dl *messaging.Delivery, job models.Job, slot *work.Slot, leased bool) {
	ctx := d.runCtx
	logger := log.With().Str("jobID", job.ID).Int("slot", slot.Index()).Logger()

	if err := d.store.Upsert(ctx, models.ProcessingStatus(job.ID, 0)); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark job processing")
	}
	d.opts.Events.Record(ctx, models.JobEvent{
		JobID:     job.ID,
		EventType: models.EventJobStarted,
		Details: map[string]any{
			"kind":          job.Kind(),
			"priority":      job.Priority,
			"num_delivered": dl.NumDelivered(),
		},
	})
	logger.Info().Str("kind", string(job.Kind())).Msg("Job started")

	stopHeartbeat := d.heartbeat(dl, job.ID, leased)
	defer stopHeartbeat()

	started := time.Now()
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		progress := &progressWriter{d: d, jobID: job.ID}
		attemptCtx := media.WithProgress(ctx, progress.report)

		res := work.RunWithTimeout(attemptCtx, d.opts.AttemptTimeout, func(ctx context.Context) (models.Result, error) {
			return d.exec.Execute(ctx, job)
		})
		progress.close()

		if res.IsSuccess() {
			d.complete(dl, job, res.Result, attempt, time.Since(started), logger)
			return
		}
		if ctx.Err() != nil {
			d.abandon(dl, job.ID, attempt, logger)
			return
		}

		lastErr = res.Error
		d.attemptFailed(job.ID, attempt, res, logger)

		if attempt < d.opts.MaxAttempts {
			if err := backoff.Sleep(ctx, d.opts.Backoff.Delay(attempt)); err != nil {
				d.abandon(dl, job.ID, attempt, logger)
				return
			}
		}
	}

	d.fail(dl, job, lastErr, logger)
}

func (d *Dispatcher) attemptFailed(jobID string, attempt int, res work.TaskResult[models.Result], logger zerolog.Logger) {
	event := models.EventAttemptFailed
	if errors.Is(res.Error, work.ErrTaskTimeout) {
		event = models.EventAttemptTimeout
	}
	logger.Warn().
		Err(res.Error).
		Int("attempt", attempt).
		Int("maxAttempts", d.opts.MaxAttempts).
		Dur("took", res.Duration).
		Msg("Attempt failed")

	d.opts.Events.Record(d.runCtx, models.JobEvent{
		JobID:     jobID,
		EventType: event,
		Attempt:   attempt,
		Message:   res.Error.Error(),
		Details:   map[string]any{"duration_ms": res.Duration.Milliseconds()},
	})
}

func (d *Dispatcher) complete(dl *messaging.Delivery, job models.Job, result models.Result, attempt int, took time.Duration, logger zerolog.Logger) {
	body, err := result.ToJson()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode result")
	}

	d.writeTerminal(models.CompletedStatus(job.ID, body))
	settle(dl.Ack(), job.ID, "ack")

	d.opts.Events.Record(d.runCtx, models.JobEvent{
		JobID:     job.ID,
		EventType: models.EventJobCompleted,
		Attempt:   attempt,
		Details: map[string]any{
			"object_name": result.ObjectName,
			"duration_ms": took.Milliseconds(),
		},
	})
	logger.Info().Int("attempt", attempt).Dur("took", took).Str("object", result.ObjectName).Msg("Job completed")
}

func (d *Dispatcher) fail(dl *messaging.Delivery, job models.Job, lastErr error, logger zerolog.Logger) {
	d.writeTerminal(models.FailedStatus(job.ID))
	settle(dl.Nack(false), job.ID, "term")

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	d.opts.Events.Record(d.runCtx, models.JobEvent{
		JobID:     job.ID,
		EventType: models.EventJobFailed,
		Attempt:   d.opts.MaxAttempts,
		Message:   msg,
	})
	logger.Error().Err(lastErr).Int("attempts", d.opts.MaxAttempts).Msg("Job failed")
}

// abandon hands a job cancelled by shutdown back to the broker without
// touching its status
func (d *Dispatcher) abandon(dl *messaging.Delivery, jobID string, attempt int, logger zerolog.Logger) {
	logger.Warn().Int("attempt", attempt).Msg("Job cancelled by shutdown, requeueing")
	d.requeue(dl, jobID, "cancelled by shutdown")
}

// writeTerminal persists a final status, retrying with backoff. It runs
// detached from shutdown cancellation.
func (d *Dispatcher) writeTerminal(st models.JobStatus) {
	ctx := context.WithoutCancel(d.runCtx)
	err := backoff.Retry(ctx, d.opts.TerminalWriteAttempts, d.opts.TerminalWriteBackoff, func(ctx context.Context, attempt int) error {
		err := d.store.Upsert(ctx, st)
		if err != nil && attempt < d.opts.TerminalWriteAttempts {
			log.Warn().Err(err).Str("jobID", st.JobID).Int("attempt", attempt).Msg("Terminal status write failed, retrying")
		}
		return err
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("jobID", st.JobID).
			Str("state", string(st.State)).
			Int("attempts", d.opts.TerminalWriteAttempts).
			Msg("Giving up on terminal status write")
	}
}

// heartbeat keeps the delivery and the lease alive until the returned func is called
func (d *Dispatcher) heartbeat(dl *messaging.Delivery, jobID string, leased bool) func() {
	if d.opts.HeartbeatInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = dl.InProgress()
				if leased {
					if ok, err := d.opts.Lease.Extend(d.runCtx, jobID); err != nil || !ok {
						log.Warn().Err(err).Str("jobID", jobID).Msg("Failed to extend lease")
					}
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// progressWriter persists progress reported by one attempt. Once closed it
// drops reports, so an abandoned attempt can never overwrite later state.
type progressWriter struct {
	d      *Dispatcher
	jobID  string
	mu     sync.Mutex
	last   int
	closed bool
}

func (p *progressWriter) report(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || percent <= p.last || percent >= 100 {
		return
	}
	p.last = percent

	if err := p.d.store.Upsert(p.d.runCtx, models.ProcessingStatus(p.jobID, percent)); err != nil {
		log.Warn().Err(err).Str("jobID", p.jobID).Int("progress", percent).Msg("Failed to persist progress")
	}
}

// close waits for an in-flight write to finish
func (p *progressWriter) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
