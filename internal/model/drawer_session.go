package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session statuses. A session is OPEN iff ClosedAt is null; Status mirrors it
// for cheap filtering.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// Discrepancy classifications computed at close.
const (
	DiscrepancyExact = "exact"
	DiscrepancyOver  = "over"
	DiscrepancyShort = "short"
)

// Discrepancy severities (percentage of expected balance).
// normal: |pct| <= 1%, warning: <= 5%, critical: > 5%.
const (
	SeverityNormal   = "normal"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// DrawerSession represents the lifecycle of a cash drawer between an operator
// opening and closing it. Running totals (CashSales, CashRefunds, CashIn,
// CashOut) are read-modify-write and must only be mutated under a row lock —
// see repository.DrawerRepository.LockSessionTx.
type DrawerSession struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OperatorID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// ClosingBalance is the operator's counted amount, set exactly once at close.
	ClosingBalance *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// ExpectedBalance is computed at close:
	// opening + cash_sales + cash_in - cash_out - cash_refunds.
	ExpectedBalance *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// Discrepancy = closing - expected. Frozen once the session is CLOSED.
	Discrepancy *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CashSales   decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	CashRefunds decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	CashIn      decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	CashOut     decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	Status      string           `gorm:"type:varchar(20);not null;default:'open';index"`
	// Classification: "exact" | "over" | "short" — set at close.
	Classification *string `gorm:"type:varchar(20)"`
	// Severity: "normal" | "warning" | "critical" based on |discrepancy| as a
	// percentage of the expected balance.
	Severity *string `gorm:"type:varchar(20)"`
	Notes    *string
	OpenedAt time.Time
	ClosedAt *time.Time

	Movements []CashMovement `gorm:"foreignKey:SessionID"`
}

// IsOpen reports whether the session can still accept movements.
func (s *DrawerSession) IsOpen() bool { return s.ClosedAt == nil }
