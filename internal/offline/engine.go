package offline

import (
	"context"
	"errors"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/infra"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EngineConfig tunes the retry policy.
type EngineConfig struct {
	MaxAttempts int           // per-order attempts before requiring manual retry
	BaseBackoff time.Duration // first retry delay, doubled per attempt
	MaxBackoff  time.Duration // backoff cap
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts: 8,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  5 * time.Minute,
	}
}

// Summary reports the outcome of one drain cycle.
type Summary struct {
	Synced    int
	Duplicate int
	Conflict  int
	Failed    int
	Skipped   int
}

// Engine drains the durable queue to the server, preserving creation order.
// It is single-flight by design: one order in transit at a time, so a later
// order can never race an earlier one on shared inventory.
type Engine struct {
	queue  Queue
	client SyncClient
	cb     *infra.CircuitBreaker
	cfg    EngineConfig
}

// NewEngine opens the engine over a queue and transport, and re-queues any
// record stranded in SYNCING by a previous crash: the outcome of that request
// is unknown, so it goes back to PENDING and the server's idempotency check
// arbitrates on the next attempt.
func NewEngine(queue Queue, client SyncClient, cb *infra.CircuitBreaker, cfg EngineConfig) (*Engine, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultEngineConfig()
	}
	e := &Engine{queue: queue, client: client, cb: cb, cfg: cfg}

	records, err := e.queue.ScanInOrder()
	if err != nil {
		return nil, err
	}
	for i := range records {
		rec := &records[i]
		if rec.Status == StatusSyncing {
			rec.Status = StatusPending
			if err := e.queue.Update(rec); err != nil {
				return nil, err
			}
			log.Warn().Str("offline_id", rec.OfflineID).Msg("offline: re-queued record stranded in syncing")
		}
	}
	return e, nil
}

// Enqueue durably stores a locally-created order as PENDING. The offline_id
// is assigned here when absent and is stable across all retries.
func (e *Engine) Enqueue(order dto.CreateOrderRequest) (*Record, error) {
	if order.OfflineID == nil || *order.OfflineID == "" {
		id := uuid.NewString()
		order.OfflineID = &id
	}
	if order.CreatedOffline == nil {
		now := time.Now().UTC().Format(time.RFC3339)
		order.CreatedOffline = &now
	}

	rec := &Record{
		OfflineID: *order.OfflineID,
		Order:     order,
		Status:    StatusPending,
	}
	if err := e.queue.Insert(rec); err != nil {
		return nil, err
	}
	log.Info().Str("offline_id", rec.OfflineID).Msg("offline: order enqueued")
	return rec, nil
}

// SyncAll drains PENDING records oldest-first. Policy is skip-and-continue: a
// failed order is scheduled for retry and the drain moves on, so one bad
// order never wedges the queue. Ordering of *applications* is still
// preserved — an order is only marked SYNCED by the server applying it, and
// the drain is strictly sequential.
func (e *Engine) SyncAll(ctx context.Context) (Summary, error) {
	var sum Summary

	records, err := e.queue.ScanInOrder()
	if err != nil {
		return sum, err
	}

	now := time.Now()
	for i := range records {
		rec := &records[i]
		if rec.Status != StatusPending {
			continue
		}
		if rec.NextAttemptAt.After(now) {
			sum.Skipped++
			continue
		}

		if err := ctx.Err(); err != nil {
			return sum, err
		}

		// Fast-fail the rest of the cycle when the breaker is open — the
		// server is down and every remaining order would fail identically.
		if e.cb != nil && e.cb.State() == infra.CBOpen {
			sum.Skipped++
			continue
		}

		rec.Status = StatusSyncing
		if err := e.queue.Update(rec); err != nil {
			return sum, err
		}

		result, err := e.submit(ctx, rec)
		if err != nil {
			// Only a dead parent context aborts the drain. A deadline error
			// with the parent still live is the transport's per-request
			// timeout, and that is an ordinary retryable failure — folding it
			// into the abort path would wedge the whole queue behind one
			// stalling order.
			if ctx.Err() != nil {
				// Aborted mid-drain: outcome unknown, back to PENDING without
				// counting an attempt against the order.
				rec.Status = StatusPending
				_ = e.queue.Update(rec)
				return sum, ctx.Err()
			}
			e.markFailed(rec, err)
			sum.Failed++
			continue
		}

		e.applyResult(rec, result, &sum)
	}

	return sum, nil
}

func (e *Engine) submit(ctx context.Context, rec *Record) (*dto.SyncResult, error) {
	if e.cb == nil {
		return e.client.SubmitOrder(ctx, rec.Order)
	}
	var result *dto.SyncResult
	err := e.cb.Execute(func() error {
		r, err := e.client.SubmitOrder(ctx, rec.Order)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (e *Engine) applyResult(rec *Record, result *dto.SyncResult, sum *Summary) {
	switch result.Status {
	case dto.SyncCreated, dto.SyncDuplicate:
		rec.Status = StatusSynced
		rec.ServerID = result.ServerID
		rec.LastError = nil
		if result.Status == dto.SyncDuplicate {
			sum.Duplicate++
		} else {
			sum.Synced++
		}
		log.Info().Str("offline_id", rec.OfflineID).Str("result", result.Status).Msg("offline: order synced")

	case dto.SyncConflict:
		// Terminal pending manual review — the server holds different
		// authoritative state for this key.
		rec.Status = StatusConflict
		rec.ServerID = result.ServerID
		rec.LastError = result.Reason
		sum.Conflict++
		log.Warn().Str("offline_id", rec.OfflineID).Msg("offline: conflict, awaiting operator acknowledgment")

	case dto.SyncRejected:
		// Validation rejection cannot succeed on automatic retry. Exhaust the
		// attempts so only a manual RetryFailed resubmits it.
		rec.Status = StatusFailed
		rec.Attempts = e.cfg.MaxAttempts
		msg := "rejected by server validation"
		if len(result.Errors) > 0 {
			for f, m := range result.Errors {
				msg = f + ": " + m
				break
			}
		}
		rec.LastError = &msg
		sum.Failed++
		log.Error().Str("offline_id", rec.OfflineID).Str("error", msg).Msg("offline: order rejected")

	default:
		e.markFailed(rec, errors.New("unknown sync result: "+result.Status))
		sum.Failed++
	}

	if err := e.queue.Update(rec); err != nil {
		log.Error().Err(err).Str("offline_id", rec.OfflineID).Msg("offline: failed to persist record state")
	}
}

// markFailed schedules a retry with exponential backoff. Once attempts are
// exhausted the record stays FAILED until RetryFailed is invoked manually.
func (e *Engine) markFailed(rec *Record, cause error) {
	rec.Attempts++
	msg := cause.Error()
	rec.LastError = &msg

	if rec.Attempts >= e.cfg.MaxAttempts {
		rec.Status = StatusFailed
		rec.NextAttemptAt = time.Time{}
		log.Error().Str("offline_id", rec.OfflineID).Int("attempts", rec.Attempts).Msg("offline: retries exhausted, manual intervention required")
	} else {
		rec.Status = StatusPending
		rec.NextAttemptAt = time.Now().Add(e.backoff(rec.Attempts))
		log.Warn().
			Str("offline_id", rec.OfflineID).
			Int("attempts", rec.Attempts).
			Time("next_attempt_at", rec.NextAttemptAt).
			Msg("offline: sync failed, retry scheduled")
	}

	if err := e.queue.Update(rec); err != nil {
		log.Error().Err(err).Str("offline_id", rec.OfflineID).Msg("offline: failed to persist record state")
	}
}

func (e *Engine) backoff(attempts int) time.Duration {
	d := e.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= e.cfg.MaxBackoff {
			return e.cfg.MaxBackoff
		}
	}
	return d
}

// ─── Queue inspection & manual recovery ──────────────────────────────────────

// Counts returns how many records sit in each non-terminal state. The POS UI
// surfaces these so the operator always sees the pending backlog.
func (e *Engine) Counts() (pending, failed, conflicts int, err error) {
	records, err := e.queue.ScanInOrder()
	if err != nil {
		return 0, 0, 0, err
	}
	for i := range records {
		switch records[i].Status {
		case StatusPending, StatusSyncing:
			pending++
		case StatusFailed:
			failed++
		case StatusConflict:
			conflicts++
		}
	}
	return pending, failed, conflicts, nil
}

// RetryFailed resets every FAILED record to PENDING with a clean attempt
// budget — the operator's manual retry.
func (e *Engine) RetryFailed() (int, error) {
	records, err := e.queue.ScanInOrder()
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range records {
		rec := &records[i]
		if rec.Status != StatusFailed {
			continue
		}
		rec.Status = StatusPending
		rec.Attempts = 0
		rec.NextAttemptAt = time.Time{}
		if err := e.queue.Update(rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Acknowledge removes a CONFLICT record after operator review. Conflicts are
// never auto-resolved — this is the only way out of the state.
func (e *Engine) Acknowledge(offlineID string) error {
	rec, err := e.queue.Get(offlineID)
	if err != nil {
		return err
	}
	if rec.Status != StatusConflict {
		return errors.New("offline: record is not in conflict state")
	}
	return e.queue.Delete(offlineID)
}

// Prune deletes SYNCED records older than the retention window. Synced
// records are kept around briefly as a local receipt trail.
func (e *Engine) Prune(retention time.Duration) (int, error) {
	records, err := e.queue.ScanInOrder()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-retention)
	n := 0
	for i := range records {
		rec := &records[i]
		if rec.Status == StatusSynced && rec.UpdatedAt.Before(cutoff) {
			if err := e.queue.Delete(rec.OfflineID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
