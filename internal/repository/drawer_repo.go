package repository

import (
	"context"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DrawerRepository is the data access contract for drawer sessions and the
// movement ledger. Services depend on this interface, not on the concrete
// GORM implementation, so the reconciliation algorithm is testable without a
// database.
type DrawerRepository interface {
	CreateSession(ctx context.Context, s *model.DrawerSession) error
	CreateSessionTx(tx *gorm.DB, s *model.DrawerSession) error
	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.DrawerSession, error)
	FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.DrawerSession, error)
	ListClosedSessions(ctx context.Context, page, limit int) ([]model.DrawerSession, int64, error)

	// LockSessionTx loads the session with a SELECT ... FOR UPDATE row lock.
	// Every running-total mutation goes through this — the session is a
	// single-writer resource.
	LockSessionTx(tx *gorm.DB, id uuid.UUID) (*model.DrawerSession, error)
	UpdateSessionTx(tx *gorm.DB, s *model.DrawerSession) error
	CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error

	ListMovements(ctx context.Context, sessionID uuid.UUID, filter dto.MovementFilter) ([]model.CashMovement, int64, error)
	Statistics(ctx context.Context, sessionID uuid.UUID) (*dto.StatisticsResponse, error)

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type drawerRepo struct{ db *gorm.DB }

func NewDrawerRepository(db *gorm.DB) DrawerRepository { return &drawerRepo{db: db} }

func (r *drawerRepo) DB() *gorm.DB { return r.db }

func (r *drawerRepo) CreateSession(ctx context.Context, s *model.DrawerSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *drawerRepo) CreateSessionTx(tx *gorm.DB, s *model.DrawerSession) error {
	return tx.Create(s).Error
}

func (r *drawerRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.DrawerSession, error) {
	var s model.DrawerSession
	err := r.db.WithContext(ctx).First(&s, id).Error
	return &s, err
}

func (r *drawerRepo) FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.DrawerSession, error) {
	var s model.DrawerSession
	err := r.db.WithContext(ctx).
		Where("operator_id = ? AND closed_at IS NULL", operatorID).
		First(&s).Error
	return &s, err
}

func (r *drawerRepo) ListClosedSessions(ctx context.Context, page, limit int) ([]model.DrawerSession, int64, error) {
	var sessions []model.DrawerSession
	var total int64

	q := r.db.WithContext(ctx).Model(&model.DrawerSession{}).Where("closed_at IS NOT NULL")
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := q.Order("closed_at DESC").Limit(limit).Offset(offset).Find(&sessions).Error
	return sessions, total, err
}

func (r *drawerRepo) LockSessionTx(tx *gorm.DB, id uuid.UUID) (*model.DrawerSession, error) {
	var s model.DrawerSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	return &s, err
}

func (r *drawerRepo) UpdateSessionTx(tx *gorm.DB, s *model.DrawerSession) error {
	return tx.Save(s).Error
}

func (r *drawerRepo) CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error {
	return tx.Create(m).Error
}

func (r *drawerRepo) ListMovements(ctx context.Context, sessionID uuid.UUID, filter dto.MovementFilter) ([]model.CashMovement, int64, error) {
	var movs []model.CashMovement
	var total int64

	q := r.db.WithContext(ctx).Model(&model.CashMovement{}).Where("session_id = ?", sessionID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Reason != "" {
		q = q.Where("reason = ?", filter.Reason)
	}
	if filter.Text != "" {
		q = q.Where("notes ILIKE ?", "%"+filter.Text+"%")
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := q.Order("created_at DESC").Limit(filter.Limit).Offset(offset).Find(&movs).Error
	return movs, total, err
}

func (r *drawerRepo) Statistics(ctx context.Context, sessionID uuid.UUID) (*dto.StatisticsResponse, error) {
	type row struct {
		Type  string
		Total decimal.Decimal
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.CashMovement{}).
		Select("type, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("session_id = ?", sessionID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &dto.StatisticsResponse{TotalIn: decimal.Zero, TotalOut: decimal.Zero}
	for _, r := range rows {
		switch r.Type {
		case model.MovementIn:
			stats.TotalIn = r.Total
			stats.CountIn = r.Count
		case model.MovementOut:
			stats.TotalOut = r.Total
			stats.CountOut = r.Count
		}
	}
	return stats, nil
}
