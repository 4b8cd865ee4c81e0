package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── In-memory DrawerRepository ───────────────────────────────────────────────

type memDrawerRepo struct {
	sessions  map[uuid.UUID]*model.DrawerSession
	movements []model.CashMovement
}

func newMemDrawerRepo() *memDrawerRepo {
	return &memDrawerRepo{sessions: make(map[uuid.UUID]*model.DrawerSession)}
}

func (r *memDrawerRepo) DB() *gorm.DB { return nil }

func (r *memDrawerRepo) CreateSession(_ context.Context, s *model.DrawerSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memDrawerRepo) CreateSessionTx(_ *gorm.DB, s *model.DrawerSession) error {
	return r.CreateSession(context.Background(), s)
}

func (r *memDrawerRepo) FindSessionByID(_ context.Context, id uuid.UUID) (*model.DrawerSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *memDrawerRepo) FindOpenByOperator(_ context.Context, operatorID uuid.UUID) (*model.DrawerSession, error) {
	for _, s := range r.sessions {
		if s.OperatorID == operatorID && s.IsOpen() {
			return s, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memDrawerRepo) ListClosedSessions(_ context.Context, page, limit int) ([]model.DrawerSession, int64, error) {
	var closed []model.DrawerSession
	for _, s := range r.sessions {
		if !s.IsOpen() {
			closed = append(closed, *s)
		}
	}
	total := int64(len(closed))
	start := (page - 1) * limit
	if start >= len(closed) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(closed) {
		end = len(closed)
	}
	return closed[start:end], total, nil
}

func (r *memDrawerRepo) LockSessionTx(_ *gorm.DB, id uuid.UUID) (*model.DrawerSession, error) {
	return r.FindSessionByID(context.Background(), id)
}

func (r *memDrawerRepo) UpdateSessionTx(_ *gorm.DB, s *model.DrawerSession) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *memDrawerRepo) CreateMovementTx(_ *gorm.DB, m *model.CashMovement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	r.movements = append(r.movements, *m)
	return nil
}

func (r *memDrawerRepo) ListMovements(_ context.Context, sessionID uuid.UUID, filter dto.MovementFilter) ([]model.CashMovement, int64, error) {
	var out []model.CashMovement
	for _, m := range r.movements {
		if m.SessionID != sessionID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.Reason != "" && m.Reason != filter.Reason {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

func (r *memDrawerRepo) Statistics(_ context.Context, sessionID uuid.UUID) (*dto.StatisticsResponse, error) {
	stats := &dto.StatisticsResponse{TotalIn: decimal.Zero, TotalOut: decimal.Zero}
	for _, m := range r.movements {
		if m.SessionID != sessionID {
			continue
		}
		if m.Type == model.MovementIn {
			stats.TotalIn = stats.TotalIn.Add(m.Amount)
			stats.CountIn++
		} else {
			stats.TotalOut = stats.TotalOut.Add(m.Amount)
			stats.CountOut++
		}
	}
	return stats, nil
}

var _ repository.DrawerRepository = (*memDrawerRepo)(nil)

func openSession(t *testing.T, svc DrawerService, operatorID uuid.UUID, opening float64) uuid.UUID {
	t.Helper()
	resp, err := svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(opening),
	})
	require.NoError(t, err)
	return uuid.MustParse(resp.SessionID)
}

// ── Open ─────────────────────────────────────────────────────────────────────

func TestOpenDrawer(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionOpen, resp.Status)
	assert.Equal(t, "100", resp.OpeningBalance.String())
	assert.Nil(t, resp.ClosedAt)

	// Opening float lands in the ledger but not in the cash_in total.
	require.Len(t, repo.movements, 1)
	assert.Equal(t, model.ReasonOpeningFloat, repo.movements[0].Reason)
	assert.True(t, resp.CashIn.IsZero())
}

func TestOpenDrawerSecondSessionRejected(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()

	openSession(t, svc, operatorID, 100)

	_, err := svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(50),
	})
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindConflict))

	// A different operator is unaffected.
	_, err = svc.Open(context.Background(), uuid.New(), dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(50),
	})
	assert.NoError(t, err)
}

// racedDrawerRepo simulates two opens passing the pre-check concurrently: the
// lookup always misses, so the partial unique index on
// (operator_id) WHERE closed_at IS NULL is what rejects the second insert.
type racedDrawerRepo struct {
	*memDrawerRepo
}

func (r *racedDrawerRepo) FindOpenByOperator(context.Context, uuid.UUID) (*model.DrawerSession, error) {
	return nil, errors.New("not found")
}

func (r *racedDrawerRepo) CreateSession(ctx context.Context, s *model.DrawerSession) error {
	for _, existing := range r.sessions {
		if existing.OperatorID == s.OperatorID && existing.IsOpen() {
			return errors.New("duplicate key value violates unique constraint (SQLSTATE 23505)")
		}
	}
	return r.memDrawerRepo.CreateSession(ctx, s)
}

func (r *racedDrawerRepo) CreateSessionTx(_ *gorm.DB, s *model.DrawerSession) error {
	return r.CreateSession(context.Background(), s)
}

func TestOpenDrawerRacedUniqueViolationAnswersConflict(t *testing.T) {
	repo := &racedDrawerRepo{memDrawerRepo: newMemDrawerRepo()}
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()

	_, err := svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)

	// The loser of the race gets the same answer as the sequential case,
	// not a raw database error.
	_, err = svc.Open(context.Background(), operatorID, dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(50),
	})
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindConflict))
	assert.Len(t, repo.sessions, 1)
}

func TestOpenDrawerNegativeBalance(t *testing.T) {
	svc := NewDrawerService(newMemDrawerRepo(), nil)

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenDrawerRequest{
		OpeningBalance: decimal.NewFromFloat(-1),
	})
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindValidation))
}

// ── Movements ────────────────────────────────────────────────────────────────

func TestAddMovementUpdatesTotals(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
		SessionID: sessionID.String(),
		Type:      model.MovementIn,
		Amount:    decimal.NewFromFloat(50),
		Reason:    model.ReasonChangeFund,
	})
	require.NoError(t, err)

	_, err = svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
		SessionID: sessionID.String(),
		Type:      model.MovementOut,
		Amount:    decimal.NewFromFloat(10),
		Reason:    model.ReasonExpense,
	})
	require.NoError(t, err)

	session := repo.sessions[sessionID]
	assert.Equal(t, "50", session.CashIn.String())
	assert.Equal(t, "10", session.CashOut.String())
}

func TestAddMovementRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	for _, amount := range []float64{0, -5} {
		_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
			SessionID: sessionID.String(),
			Type:      model.MovementIn,
			Amount:    decimal.NewFromFloat(amount),
			Reason:    model.ReasonOther,
		})
		require.Error(t, err)
		assert.True(t, apierror.IsKind(err, apierror.KindValidation))
	}
}

func TestAddMovementRejectsReservedReasons(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	for _, reason := range []string{model.ReasonOpeningFloat, model.ReasonClosingFloat, model.ReasonCashSale} {
		_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
			SessionID: sessionID.String(),
			Type:      model.MovementIn,
			Amount:    decimal.NewFromFloat(5),
			Reason:    reason,
		})
		require.Error(t, err, "reason %s must be reserved", reason)
		assert.True(t, apierror.IsKind(err, apierror.KindValidation))
	}
}

func TestAddMovementOnClosedSession(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	_, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)

	_, err = svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
		SessionID: sessionID.String(),
		Type:      model.MovementIn,
		Amount:    decimal.NewFromFloat(5),
		Reason:    model.ReasonOther,
	})
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindConflict))
}

// ── Close / reconciliation ───────────────────────────────────────────────────

func TestCloseExpectedBalanceFormula(t *testing.T) {
	// opening 100 + sales 50 - refunds 10 + in 0 - out 5 → expected 135.
	// Counted 130 → discrepancy -5, short.
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	require.NoError(t, svc.RecordCashSaleTx(nil, sessionID, operatorID, decimal.NewFromFloat(50), nil))
	require.NoError(t, svc.RecordCashRefundTx(nil, sessionID, operatorID, decimal.NewFromFloat(10), nil))
	_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
		SessionID: sessionID.String(),
		Type:      model.MovementOut,
		Amount:    decimal.NewFromFloat(5),
		Reason:    model.ReasonExpense,
	})
	require.NoError(t, err)

	resp, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(130),
	})
	require.NoError(t, err)

	require.NotNil(t, resp.ExpectedBalance)
	assert.Equal(t, "135", resp.ExpectedBalance.String())
	require.NotNil(t, resp.Discrepancy)
	assert.Equal(t, "-5", resp.Discrepancy.Amount.String())
	assert.Equal(t, model.DiscrepancyShort, resp.Discrepancy.Classification)
	assert.Equal(t, model.SessionClosed, resp.Status)
	assert.NotNil(t, resp.ClosedAt)
}

func TestCloseExactMatch(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 200)

	resp, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(200),
	})
	require.NoError(t, err)
	assert.Equal(t, model.DiscrepancyExact, resp.Discrepancy.Classification)
	assert.True(t, resp.Discrepancy.Amount.IsZero())
	assert.Equal(t, model.SeverityNormal, resp.Discrepancy.Severity)
}

func TestCloseOverage(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 200)

	resp, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(205),
	})
	require.NoError(t, err)
	assert.Equal(t, model.DiscrepancyOver, resp.Discrepancy.Classification)
	assert.Equal(t, "5", resp.Discrepancy.Amount.String())
}

func TestCloseIsTerminal(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	first, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)
	frozen := *first.ExpectedBalance

	_, err = svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(999),
	})
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindConflict))

	// Frozen results survive the rejected second attempt.
	session := repo.sessions[sessionID]
	assert.Equal(t, frozen.String(), session.ExpectedBalance.String())
}

func TestCloseCriticalRequiresNotes(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 1000)

	// Counted 900 → -10% → critical. Without notes the close is refused.
	_, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(900),
	})
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindValidation))

	notes := "shortfall investigated with shift supervisor"
	resp, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
		SessionID:      sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(900),
		Notes:          &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityCritical, resp.Discrepancy.Severity)
}

func TestCloseSeverityBands(t *testing.T) {
	cases := []struct {
		name     string
		counted  float64
		severity string
	}{
		{"within one percent", 995, model.SeverityNormal},
		{"within five percent", 960, model.SeverityWarning},
		{"beyond five percent over", 1100, model.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemDrawerRepo()
			svc := NewDrawerService(repo, nil)
			operatorID := uuid.New()
			sessionID := openSession(t, svc, operatorID, 1000)

			notes := "counted twice, discrepancy confirmed"
			resp, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
				SessionID:      sessionID.String(),
				ClosingBalance: decimal.NewFromFloat(tc.counted),
				Notes:          &notes,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.severity, resp.Discrepancy.Severity)
		})
	}
}

// The reconciliation identity must hold for any interleaving of sales,
// refunds, and manual movements: closing at the expected balance always
// classifies as exact.
func TestCloseRandomizedLedgerReconciles(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		repo := newMemDrawerRepo()
		svc := NewDrawerService(repo, nil)
		operatorID := uuid.New()
		sessionID := openSession(t, svc, operatorID, 500)

		expected := decimal.NewFromInt(500)
		for i := 0; i < 30; i++ {
			amount := decimal.NewFromInt(int64(rng.Intn(200) + 1))
			op := rng.Intn(4)
			// Keep the running expectation non-negative so the close stays valid.
			if (op == 1 || op == 3) && expected.LessThan(amount) {
				op = 0
			}
			switch op {
			case 0:
				require.NoError(t, svc.RecordCashSaleTx(nil, sessionID, operatorID, amount, nil))
				expected = expected.Add(amount)
			case 1:
				require.NoError(t, svc.RecordCashRefundTx(nil, sessionID, operatorID, amount, nil))
				expected = expected.Sub(amount)
			case 2:
				_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
					SessionID: sessionID.String(),
					Type:      model.MovementIn,
					Amount:    amount,
					Reason:    model.ReasonPettyCash,
				})
				require.NoError(t, err)
				expected = expected.Add(amount)
			case 3:
				_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
					SessionID: sessionID.String(),
					Type:      model.MovementOut,
					Amount:    amount,
					Reason:    model.ReasonBankDeposit,
				})
				require.NoError(t, err)
				expected = expected.Sub(amount)
			}
		}

		notes := "randomized run"
		resp, err := svc.Close(context.Background(), operatorID, dto.CloseDrawerRequest{
			SessionID:      sessionID.String(),
			ClosingBalance: expected,
			Notes:          &notes,
		})
		require.NoError(t, err)
		assert.Equal(t, expected.String(), resp.ExpectedBalance.String())
		assert.Equal(t, model.DiscrepancyExact, resp.Discrepancy.Classification)
	}
}

// ── Queries ──────────────────────────────────────────────────────────────────

func TestActiveSession(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()

	_, err := svc.Active(context.Background(), operatorID)
	require.Error(t, err)
	assert.True(t, apierror.IsKind(err, apierror.KindNotFound))

	sessionID := openSession(t, svc, operatorID, 100)
	resp, err := svc.Active(context.Background(), operatorID)
	require.NoError(t, err)
	assert.Equal(t, sessionID.String(), resp.SessionID)
}

func TestStatisticsCountsDirections(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
		SessionID: sessionID.String(),
		Type:      model.MovementOut,
		Amount:    decimal.NewFromFloat(25),
		Reason:    model.ReasonExpense,
	})
	require.NoError(t, err)

	stats, err := svc.Statistics(context.Background(), sessionID)
	require.NoError(t, err)
	// opening float (in) + manual out
	assert.Equal(t, int64(1), stats.CountIn)
	assert.Equal(t, int64(1), stats.CountOut)
	assert.Equal(t, "100", stats.TotalIn.String())
	assert.Equal(t, "25", stats.TotalOut.String())
}

func TestListMovementsFilterByType(t *testing.T) {
	repo := newMemDrawerRepo()
	svc := NewDrawerService(repo, nil)
	operatorID := uuid.New()
	sessionID := openSession(t, svc, operatorID, 100)

	_, err := svc.AddMovement(context.Background(), operatorID, dto.MovementRequest{
		SessionID: sessionID.String(),
		Type:      model.MovementOut,
		Amount:    decimal.NewFromFloat(25),
		Reason:    model.ReasonExpense,
	})
	require.NoError(t, err)

	out, total, err := svc.ListMovements(context.Background(), sessionID, dto.MovementFilter{
		Type: model.MovementOut, Page: 1, Limit: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, out, 1)
	assert.Equal(t, model.ReasonExpense, out[0].Reason)
}
