package worker

// Jobs that exhaust their retry budget land in a dead letter list, one per
// source queue (dlq:{queue}), where they wait for manual inspection. The
// health endpoint reports the combined depth so a growing DLQ is visible.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DLQEntry wraps a dead job with enough context to diagnose it without
// replaying: where it came from, what it carried, and why it kept failing.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      time.Time       `json:"failed_at"`
	Attempts      int             `json:"attempts"`
}

// SendToDLQ parks a job that exhausted its attempts. Best-effort: a DLQ push
// failure is logged, never propagated — the job is already lost to retries.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue, jobType string, payload json.RawMessage, reason string, attempts int) {
	entry := DLQEntry{
		OriginalQueue: queue,
		JobType:       jobType,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      time.Now().UTC(),
		Attempts:      attempts,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: marshal entry")
		return
	}
	if err := rdb.LPush(ctx, DLQPrefix+queue, data).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: push")
		return
	}

	log.Warn().
		Str("queue", queue).
		Str("job_type", jobType).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: job parked for manual inspection")
}

// DLQLength reports the depth of one queue's dead letter list.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}

// RequeueDLQ moves every parked entry of a queue back onto its source queue
// with a fresh attempt budget — the manual recovery path after the underlying
// fault (SMTP outage, missing storage path) is fixed.
func RequeueDLQ(ctx context.Context, rdb *redis.Client, queue string) (int, error) {
	n := 0
	for {
		raw, err := rdb.RPop(ctx, DLQPrefix+queue).Result()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		var entry DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			log.Error().Err(err).Str("queue", queue).Msg("dlq: dropping unreadable entry")
			continue
		}

		job := Job{Type: entry.JobType, Payload: entry.Payload}
		data, err := json.Marshal(job)
		if err != nil {
			return n, err
		}
		if err := rdb.LPush(ctx, queue, data).Err(); err != nil {
			return n, err
		}
		n++
	}
}
