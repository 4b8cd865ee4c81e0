package repository

import (
	"context"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	CreateTx(tx *gorm.DB, o *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// FindByOfflineID resolves the idempotency key. gorm.ErrRecordNotFound
	// means the offline_id has never been applied.
	FindByOfflineID(ctx context.Context, offlineID string) (*model.Order, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error
	NextTicketNumberTx(tx *gorm.DB) (int, error)
	DB() *gorm.DB
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository { return &orderRepo{db: db} }

func (r *orderRepo) DB() *gorm.DB { return r.db }

func (r *orderRepo) CreateTx(tx *gorm.DB, o *model.Order) error {
	return tx.Create(o).Error
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Preload("Items.Product").Preload("Payments").First(&o, id).Error
	return &o, err
}

func (r *orderRepo) FindByOfflineID(ctx context.Context, offlineID string) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Preload("Items.Product").Preload("Payments").
		Where("offline_id = ?", offlineID).First(&o).Error
	return &o, err
}

func (r *orderRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return tx.Model(&model.Order{}).Where("id = ?", id).Update("status", status).Error
}

func (r *orderRepo) NextTicketNumberTx(tx *gorm.DB) (int, error) {
	// PostgreSQL sequence gives atomic ticket numbers under concurrency.
	var num int
	err := tx.Raw("SELECT nextval('orders_ticket_number_seq')").Scan(&num).Error
	return num, err
}
