package service

import (
	"context"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// syncLockTTL bounds how long an offline_id stays locked if a server crashes
// mid-apply. The DB unique constraint covers the gap.
const syncLockTTL = 30 * time.Second

// SyncService is the server half of the offline sync protocol: it applies a
// batch of offline orders strictly in client creation order and answers, per
// offline_id, with created / duplicate / conflict / rejected.
type SyncService interface {
	ApplyBatch(ctx context.Context, operatorID uuid.UUID, req dto.SyncBatchRequest) (*dto.SyncBatchResponse, error)
}

type syncService struct {
	orders     OrderService
	rdb        *redis.Client
	dispatcher *worker.Dispatcher
}

// NewSyncService wires the sync protocol. rdb and dispatcher may be nil in
// unit tests — the DB unique constraint alone still guarantees idempotency.
func NewSyncService(orders OrderService, rdb *redis.Client, dispatcher *worker.Dispatcher) SyncService {
	return &syncService{orders: orders, rdb: rdb, dispatcher: dispatcher}
}

// ApplyBatch drains the batch sequentially. One entry's conflict or rejection
// never blocks the entries after it; an internal error aborts the batch (all
// committed entries stay committed — the client re-checks idempotency on
// retry).
func (s *syncService) ApplyBatch(ctx context.Context, operatorID uuid.UUID, req dto.SyncBatchRequest) (*dto.SyncBatchResponse, error) {
	results := make([]dto.SyncResult, 0, len(req.Orders))

	for _, orderReq := range req.Orders {
		res, err := s.applyOne(ctx, operatorID, orderReq)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}

	return &dto.SyncBatchResponse{Results: results}, nil
}

func (s *syncService) applyOne(ctx context.Context, operatorID uuid.UUID, req dto.CreateOrderRequest) (*dto.SyncResult, error) {
	if req.OfflineID == nil || *req.OfflineID == "" {
		return &dto.SyncResult{
			Status: dto.SyncRejected,
			Errors: map[string]string{"offline_id": "required for sync"},
		}, nil
	}
	offlineID := *req.OfflineID

	// Per-key serialization. Best-effort: when the lock is held by another
	// server the apply proceeds anyway and the offline_id unique constraint
	// arbitrates — at most one of the two transactions commits the order.
	unlock := s.lock(ctx, offlineID)
	defer unlock()

	// Known offline_id → duplicate or conflict, never a re-apply.
	if existing, err := s.orders.FindByOfflineID(ctx, offlineID); err == nil && existing != nil {
		return s.resolveExisting(ctx, offlineID, req, existing), nil
	}

	resp, err := s.orders.Create(ctx, operatorID, req)
	if err == nil {
		return &dto.SyncResult{
			OfflineID: offlineID,
			Status:    dto.SyncCreated,
			ServerID:  &resp.ID,
		}, nil
	}

	// The unique-constraint backstop fired: a concurrent submission won the
	// race. Whole transaction rolled back, so no double decrement — re-read
	// and answer as duplicate/conflict.
	if IsUniqueViolation(err) {
		if existing, ferr := s.orders.FindByOfflineID(ctx, offlineID); ferr == nil && existing != nil {
			return s.resolveExisting(ctx, offlineID, req, existing), nil
		}
	}

	if ae, ok := err.(*apierror.Error); ok {
		switch ae.Kind {
		case apierror.KindValidation, apierror.KindNotFound:
			errs := ae.Fields
			if errs == nil {
				errs = map[string]string{"detail": ae.Msg}
			}
			return &dto.SyncResult{OfflineID: offlineID, Status: dto.SyncRejected, Errors: errs}, nil
		case apierror.KindConflict:
			// Insufficient stock or a closed session: inventory/ledger state
			// moved past this order. Surfaced, never force-applied.
			reason := ae.Msg
			s.alertConflict(ctx, offlineID, reason)
			return &dto.SyncResult{OfflineID: offlineID, Status: dto.SyncConflict, Reason: &reason}, nil
		}
	}

	// Unexpected failure — abort the batch; the client retries with backoff.
	return nil, err
}

// resolveExisting distinguishes an idempotent resubmission from a replay of
// the same key with different content.
func (s *syncService) resolveExisting(ctx context.Context, offlineID string, req dto.CreateOrderRequest, existing *model.Order) *dto.SyncResult {
	serverID := existing.ID.String()

	if existing.Fingerprint != nil && *existing.Fingerprint == Fingerprint(req) {
		log.Debug().Str("offline_id", offlineID).Msg("sync: duplicate submission, returning prior result")
		return &dto.SyncResult{OfflineID: offlineID, Status: dto.SyncDuplicate, ServerID: &serverID}
	}

	reason := "offline_id already applied with different contents"
	s.alertConflict(ctx, offlineID, reason)
	return &dto.SyncResult{OfflineID: offlineID, Status: dto.SyncConflict, ServerID: &serverID, Reason: &reason}
}

// lock takes the per-offline_id Redis lock and returns its release func.
// A nil client (unit tests) or a held lock degrades to a no-op.
func (s *syncService) lock(ctx context.Context, offlineID string) func() {
	if s.rdb == nil {
		return func() {}
	}
	key := "sync:lock:" + offlineID
	ok, err := s.rdb.SetNX(ctx, key, 1, syncLockTTL).Result()
	if err != nil || !ok {
		return func() {}
	}
	return func() { s.rdb.Del(context.Background(), key) }
}

func (s *syncService) alertConflict(ctx context.Context, offlineID, reason string) {
	log.Warn().Str("offline_id", offlineID).Str("reason", reason).Msg("sync: conflict surfaced for operator review")
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.EnqueueConflictAlert(ctx, map[string]string{
		"offline_id": offlineID,
		"reason":     reason,
	})
}
