package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderCompleted = "completed"
	OrderVoided    = "voided"
)

// Payment methods.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

// Order is a completed sale. Orders created offline carry an OfflineID — the
// client-generated idempotency key — and a Fingerprint of their content so a
// resubmission with the same key can be told apart from a conflicting one.
type Order struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TicketNumber int       `gorm:"not null;uniqueIndex"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;index"`
	OperatorID   uuid.UUID `gorm:"type:uuid;not null"`
	// OfflineID is unique across all orders — the DB constraint is the last
	// line of defense against concurrent duplicate application.
	OfflineID *string `gorm:"uniqueIndex"`
	// Fingerprint is a SHA-256 over the canonical order content (items, totals,
	// payment method). Same OfflineID + same Fingerprint = duplicate; same
	// OfflineID + different Fingerprint = conflict.
	Fingerprint *string         `gorm:"type:varchar(64)"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Tax         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Discount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status      string          `gorm:"type:varchar(20);not null;default:'completed'"`
	CustomerRef *string
	// CreatedOffline records the client clock at local creation time.
	CreatedOffline *time.Time
	CreatedAt      time.Time

	Items    []OrderItem    `gorm:"foreignKey:OrderID"`
	Payments []OrderPayment `gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

type OrderPayment struct {
	ID      uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method  string          `gorm:"type:varchar(20);not null"`
	Amount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}
