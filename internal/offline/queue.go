// Package offline implements the terminal-side sync engine: a durable queue
// of locally-created orders and the drain loop that replays them to the
// server. The queue must survive process restarts — orders recorded while
// offline are money.
package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
)

// Status is the sync state of a queued order.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSyncing  Status = "syncing"
	StatusSynced   Status = "synced"
	StatusFailed   Status = "failed"
	StatusConflict Status = "conflict"
)

// Record is one durably queued offline order. Seq preserves creation order
// across restarts — the drain always replays oldest first.
type Record struct {
	OfflineID     string                 `json:"offline_id"`
	Seq           uint64                 `json:"seq"`
	Order         dto.CreateOrderRequest `json:"order"`
	Status        Status                 `json:"status"`
	Attempts      int                    `json:"attempts"`
	NextAttemptAt time.Time              `json:"next_attempt_at"`
	ServerID      *string                `json:"server_id,omitempty"`
	LastError     *string                `json:"last_error,omitempty"`
	EnqueuedAt    time.Time              `json:"enqueued_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Queue is the durable local storage contract: keyed by offline_id, supports
// insert, update, delete, and full scan in creation order. Implementations
// must persist across process restarts.
type Queue interface {
	Insert(rec *Record) error
	Get(offlineID string) (*Record, error)
	Update(rec *Record) error
	Delete(offlineID string) error
	ScanInOrder() ([]Record, error)
}

// ─── File-backed implementation ──────────────────────────────────────────────
// One JSON document per record plus a persisted sequence counter. Writes go
// through a temp file + rename so a crash never leaves a half-written record.

const seqFile = "_seq"

type FileQueue struct {
	dir string
	mu  sync.Mutex
	seq uint64
}

// NewFileQueue opens (or creates) the queue directory and restores the
// sequence counter.
func NewFileQueue(dir string) (*FileQueue, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("offline queue: create dir: %w", err)
	}
	q := &FileQueue{dir: dir}

	if data, err := os.ReadFile(filepath.Join(dir, seqFile)); err == nil {
		if n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64); err == nil {
			q.seq = n
		}
	}
	return q, nil
}

func (q *FileQueue) path(offlineID string) string {
	return filepath.Join(q.dir, offlineID+".json")
}

func (q *FileQueue) Insert(rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := os.Stat(q.path(rec.OfflineID)); err == nil {
		return fmt.Errorf("offline queue: record %s already exists", rec.OfflineID)
	}

	q.seq++
	rec.Seq = q.seq
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()

	if err := q.writeFile(filepath.Join(q.dir, seqFile), []byte(strconv.FormatUint(q.seq, 10))); err != nil {
		return err
	}
	return q.writeRecord(rec)
}

func (q *FileQueue) Get(offlineID string) (*Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readRecord(q.path(offlineID))
}

func (q *FileQueue) Update(rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := os.Stat(q.path(rec.OfflineID)); err != nil {
		return fmt.Errorf("offline queue: record %s not found", rec.OfflineID)
	}
	rec.UpdatedAt = time.Now()
	return q.writeRecord(rec)
}

func (q *FileQueue) Delete(offlineID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return os.Remove(q.path(offlineID))
}

// ScanInOrder returns every record sorted by insertion sequence (oldest
// first). The scan never mutates — filtering happens in the engine.
func (q *FileQueue) ScanInOrder() ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("offline queue: scan: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := q.readRecord(filepath.Join(q.dir, e.Name()))
		if err != nil {
			// A torn record should never happen given atomic writes; skip
			// rather than wedge the whole drain.
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

func (q *FileQueue) writeRecord(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("offline queue: marshal %s: %w", rec.OfflineID, err)
	}
	return q.writeFile(q.path(rec.OfflineID), data)
}

func (q *FileQueue) readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("offline queue: read: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("offline queue: unmarshal %s: %w", path, err)
	}
	return &rec, nil
}

// writeFile writes atomically: temp file in the same dir, fsync, rename.
func (q *FileQueue) writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(q.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
