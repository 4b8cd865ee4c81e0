package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/repository"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DrawerService owns the session state machine (OPEN → CLOSED, terminal) and
// the balance-reconciliation algorithm. All money math is decimal fixed-point.
type DrawerService interface {
	Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenDrawerRequest) (*dto.SessionResponse, error)
	Close(ctx context.Context, operatorID uuid.UUID, req dto.CloseDrawerRequest) (*dto.SessionResponse, error)
	AddMovement(ctx context.Context, operatorID uuid.UUID, req dto.MovementRequest) (*dto.MovementResponse, error)
	Report(ctx context.Context, sessionID uuid.UUID) (*dto.SessionResponse, error)
	Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionResponse, error)
	History(ctx context.Context, page, limit int) ([]dto.SessionResponse, int64, error)
	ListMovements(ctx context.Context, sessionID uuid.UUID, filter dto.MovementFilter) ([]dto.MovementResponse, int64, error)
	Statistics(ctx context.Context, sessionID uuid.UUID) (*dto.StatisticsResponse, error)

	// RecordCashSaleTx / RecordCashRefundTx are called by OrderService inside
	// the order transaction — never user-invocable directly.
	RecordCashSaleTx(tx *gorm.DB, sessionID, operatorID uuid.UUID, amount decimal.Decimal, ref *uuid.UUID) error
	RecordCashRefundTx(tx *gorm.DB, sessionID, operatorID uuid.UUID, amount decimal.Decimal, ref *uuid.UUID) error

	// RequireOpen is called by OrderService to validate the target session.
	RequireOpen(ctx context.Context, sessionID uuid.UUID) error
}

type drawerService struct {
	repo       repository.DrawerRepository
	dispatcher *worker.Dispatcher
}

// NewDrawerService wires the session manager. dispatcher may be nil (unit
// tests) — closing then simply skips the async Z-report job.
func NewDrawerService(repo repository.DrawerRepository, dispatcher *worker.Dispatcher) DrawerService {
	return &drawerService{repo: repo, dispatcher: dispatcher}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// lockSession loads the session under a row lock when running against a real
// DB, or plainly in unit test mode.
func (s *drawerService) lockSession(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.DrawerSession, error) {
	if tx == nil {
		sess, err := s.repo.FindSessionByID(ctx, id)
		if err != nil {
			return nil, apierror.NotFound("drawer session not found")
		}
		return sess, nil
	}
	sess, err := s.repo.LockSessionTx(tx, id)
	if err != nil {
		return nil, apierror.NotFound("drawer session not found")
	}
	return sess, nil
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *drawerService) Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenDrawerRequest) (*dto.SessionResponse, error) {
	if req.OpeningBalance.IsNegative() {
		return nil, apierror.Validation("opening balance cannot be negative")
	}

	// Guard: exactly one OPEN session per operator. The partial unique index
	// on (operator_id) WHERE closed_at IS NULL backs this up under races.
	if existing, err := s.repo.FindOpenByOperator(ctx, operatorID); err == nil && existing != nil {
		return nil, apierror.Conflict("operator already has an open drawer session")
	}

	session := &model.DrawerSession{
		OperatorID:     operatorID,
		OpeningBalance: req.OpeningBalance,
		CashSales:      decimal.Zero,
		CashRefunds:    decimal.Zero,
		CashIn:         decimal.Zero,
		CashOut:        decimal.Zero,
		Status:         model.SessionOpen,
		Notes:          req.Notes,
		OpenedAt:       time.Now(),
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if tx == nil {
			if err := s.repo.CreateSession(ctx, session); err != nil {
				return err
			}
		} else {
			if err := s.repo.CreateSessionTx(tx, session); err != nil {
				return err
			}
		}
		// Initial float entry. Ledger entry only — the opening balance is
		// already counted as opening_balance, not as cash_in.
		if session.OpeningBalance.IsPositive() {
			mov := &model.CashMovement{
				SessionID:  session.ID,
				Type:       model.MovementIn,
				Amount:     session.OpeningBalance,
				Reason:     model.ReasonOpeningFloat,
				OperatorID: operatorID,
			}
			return s.createMovement(ctx, tx, mov)
		}
		return nil
	})
	if txErr != nil {
		// Two opens raced past the pre-check: the partial unique index on
		// (operator_id) WHERE closed_at IS NULL fired. Same answer as the
		// sequential case.
		if IsUniqueViolation(txErr) {
			return nil, apierror.Conflict("operator already has an open drawer session")
		}
		return nil, txErr
	}

	return sessionToResponse(session), nil
}

// ── AddMovement ───────────────────────────────────────────────────────────────
// Manual cash in / out. Movements are immutable — there is no update or delete.

func (s *drawerService) AddMovement(ctx context.Context, operatorID uuid.UUID, req dto.MovementRequest) (*dto.MovementResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apierror.Validation("amount must be strictly positive")
	}
	if req.Type != model.MovementIn && req.Type != model.MovementOut {
		return nil, apierror.Validation("type must be 'in' or 'out'")
	}
	if !model.ManualReasons[req.Reason] {
		return nil, apierror.Validation(fmt.Sprintf("reason %q is not valid for a manual movement", req.Reason))
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apierror.Validation("invalid session_id")
	}

	var mov *model.CashMovement
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		session, err := s.lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return apierror.Conflict("drawer session is closed")
		}

		mov = &model.CashMovement{
			SessionID:  session.ID,
			Type:       req.Type,
			Amount:     req.Amount,
			Reason:     req.Reason,
			OperatorID: operatorID,
			Notes:      req.Notes,
		}
		if err := s.createMovement(ctx, tx, mov); err != nil {
			return err
		}

		// Running totals — read-modify-write, safe under the row lock.
		if req.Type == model.MovementIn {
			session.CashIn = session.CashIn.Add(req.Amount)
		} else {
			session.CashOut = session.CashOut.Add(req.Amount)
		}
		return s.updateSession(ctx, tx, session)
	})
	if txErr != nil {
		return nil, txErr
	}

	return movementToResponse(mov), nil
}

// ── RecordCashSaleTx / RecordCashRefundTx ────────────────────────────────────

func (s *drawerService) RecordCashSaleTx(tx *gorm.DB, sessionID, operatorID uuid.UUID, amount decimal.Decimal, ref *uuid.UUID) error {
	session, err := s.lockSession(context.Background(), tx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return apierror.Conflict("drawer session is closed")
	}

	mov := &model.CashMovement{
		SessionID:   session.ID,
		Type:        model.MovementIn,
		Amount:      amount,
		Reason:      model.ReasonCashSale,
		OperatorID:  operatorID,
		ReferenceID: ref,
	}
	if err := s.createMovement(context.Background(), tx, mov); err != nil {
		return err
	}

	session.CashSales = session.CashSales.Add(amount)
	return s.updateSession(context.Background(), tx, session)
}

func (s *drawerService) RecordCashRefundTx(tx *gorm.DB, sessionID, operatorID uuid.UUID, amount decimal.Decimal, ref *uuid.UUID) error {
	session, err := s.lockSession(context.Background(), tx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return apierror.Conflict("drawer session is closed")
	}

	mov := &model.CashMovement{
		SessionID:   session.ID,
		Type:        model.MovementOut,
		Amount:      amount,
		Reason:      model.ReasonRefund,
		OperatorID:  operatorID,
		ReferenceID: ref,
	}
	if err := s.createMovement(context.Background(), tx, mov); err != nil {
		return err
	}

	session.CashRefunds = session.CashRefunds.Add(amount)
	return s.updateSession(context.Background(), tx, session)
}

// ── Close ─────────────────────────────────────────────────────────────────────
// Computes the expected balance AFTER receiving the counted amount (blind
// count), freezes expected/discrepancy, and transitions the session to its
// terminal CLOSED state.

func (s *drawerService) Close(ctx context.Context, operatorID uuid.UUID, req dto.CloseDrawerRequest) (*dto.SessionResponse, error) {
	if req.ClosingBalance.IsNegative() {
		return nil, apierror.Validation("closing balance cannot be negative")
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apierror.Validation("invalid session_id")
	}

	var session *model.DrawerSession
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		session, err = s.lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return apierror.Conflict("drawer session is already closed")
		}

		// expected = opening + cash_sales + cash_in - cash_out - cash_refunds
		expected := session.OpeningBalance.
			Add(session.CashSales).
			Add(session.CashIn).
			Sub(session.CashOut).
			Sub(session.CashRefunds)
		discrepancy := req.ClosingBalance.Sub(expected)

		classification := classifyDiscrepancy(discrepancy)
		severity := classifySeverity(discrepancy, expected)

		// A critical deviation requires supervisor notes before the session
		// can be closed.
		if severity == model.SeverityCritical && (req.Notes == nil || *req.Notes == "") {
			return apierror.Validation("critical discrepancy: supervisor notes are required")
		}

		// Final float entry, ledger only — excluded from cash_out totals.
		if req.ClosingBalance.IsPositive() {
			mov := &model.CashMovement{
				SessionID:  session.ID,
				Type:       model.MovementOut,
				Amount:     req.ClosingBalance,
				Reason:     model.ReasonClosingFloat,
				OperatorID: operatorID,
			}
			if err := s.createMovement(ctx, tx, mov); err != nil {
				return err
			}
		}

		now := time.Now()
		closing := req.ClosingBalance
		session.ClosingBalance = &closing
		session.ExpectedBalance = &expected
		session.Discrepancy = &discrepancy
		session.Classification = &classification
		session.Severity = &severity
		session.Status = model.SessionClosed
		session.ClosedAt = &now
		if req.Notes != nil {
			session.Notes = req.Notes
		}
		return s.updateSession(ctx, tx, session)
	})
	if txErr != nil {
		return nil, txErr
	}

	// Async Z-report job — best-effort, fire & forget.
	if s.dispatcher != nil {
		_ = s.dispatcher.EnqueueSessionReport(ctx, map[string]string{
			"session_id": session.ID.String(),
		})
	}

	return sessionToResponse(session), nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *drawerService) Report(ctx context.Context, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, apierror.NotFound("drawer session not found")
	}
	return sessionToResponse(session), nil
}

func (s *drawerService) Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil || session == nil {
		return nil, apierror.NotFound("no open drawer session")
	}
	return sessionToResponse(session), nil
}

func (s *drawerService) History(ctx context.Context, page, limit int) ([]dto.SessionResponse, int64, error) {
	sessions, total, err := s.repo.ListClosedSessions(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, *sessionToResponse(&sessions[i]))
	}
	return out, total, nil
}

func (s *drawerService) ListMovements(ctx context.Context, sessionID uuid.UUID, filter dto.MovementFilter) ([]dto.MovementResponse, int64, error) {
	movs, total, err := s.repo.ListMovements(ctx, sessionID, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]dto.MovementResponse, 0, len(movs))
	for i := range movs {
		out = append(out, *movementToResponse(&movs[i]))
	}
	return out, total, nil
}

func (s *drawerService) Statistics(ctx context.Context, sessionID uuid.UUID) (*dto.StatisticsResponse, error) {
	return s.repo.Statistics(ctx, sessionID)
}

func (s *drawerService) RequireOpen(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return apierror.NotFound("drawer session not found")
	}
	if !session.IsOpen() {
		return apierror.Conflict("no open drawer session")
	}
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *drawerService) createMovement(_ context.Context, tx *gorm.DB, m *model.CashMovement) error {
	return s.repo.CreateMovementTx(tx, m)
}

func (s *drawerService) updateSession(_ context.Context, tx *gorm.DB, sess *model.DrawerSession) error {
	return s.repo.UpdateSessionTx(tx, sess)
}

// classifyDiscrepancy returns "exact" | "over" | "short".
// Exact equality is the baseline — no epsilon. Decimal arithmetic is exact so
// a zero discrepancy really is zero.
func classifyDiscrepancy(d decimal.Decimal) string {
	switch {
	case d.IsPositive():
		return model.DiscrepancyOver
	case d.IsNegative():
		return model.DiscrepancyShort
	default:
		return model.DiscrepancyExact
	}
}

// classifySeverity returns "normal" | "warning" | "critical" from |discrepancy|
// as a percentage of the expected balance.
// normal: <= 1%, warning: <= 5%, critical: > 5%.
func classifySeverity(d, expected decimal.Decimal) string {
	if d.IsZero() {
		return model.SeverityNormal
	}
	if expected.IsZero() {
		// Any discrepancy against a zero expected balance is critical.
		return model.SeverityCritical
	}
	pct := d.Div(expected).Mul(decimal.NewFromInt(100)).Abs()
	one := decimal.NewFromInt(1)
	five := decimal.NewFromInt(5)
	switch {
	case pct.LessThanOrEqual(one):
		return model.SeverityNormal
	case pct.LessThanOrEqual(five):
		return model.SeverityWarning
	default:
		return model.SeverityCritical
	}
}

func sessionToResponse(s *model.DrawerSession) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		SessionID:       s.ID.String(),
		OperatorID:      s.OperatorID.String(),
		OpeningBalance:  s.OpeningBalance,
		CashSales:       s.CashSales,
		CashRefunds:     s.CashRefunds,
		CashIn:          s.CashIn,
		CashOut:         s.CashOut,
		ExpectedBalance: s.ExpectedBalance,
		ClosingBalance:  s.ClosingBalance,
		Status:          s.Status,
		Notes:           s.Notes,
		OpenedAt:        s.OpenedAt.UTC().Format(time.RFC3339),
	}
	if s.Discrepancy != nil && s.Classification != nil {
		severity := model.SeverityNormal
		if s.Severity != nil {
			severity = *s.Severity
		}
		resp.Discrepancy = &dto.DiscrepancyResponse{
			Amount:         *s.Discrepancy,
			Classification: *s.Classification,
			Severity:       severity,
		}
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

func movementToResponse(m *model.CashMovement) *dto.MovementResponse {
	return &dto.MovementResponse{
		ID:        m.ID.String(),
		SessionID: m.SessionID.String(),
		Type:      m.Type,
		Amount:    m.Amount,
		Reason:    m.Reason,
		Notes:     m.Notes,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
