package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movement directions. Amount is always strictly positive; direction carries
// the sign.
const (
	MovementIn  = "in"
	MovementOut = "out"
)

// Movement reasons. OpeningFloat and ClosingFloat are reserved for the session
// lifecycle and rejected on manual movements.
const (
	ReasonOpeningFloat = "opening_float"
	ReasonClosingFloat = "closing_float"
	ReasonBankDeposit  = "bank_deposit"
	ReasonExpense      = "expense"
	ReasonRefund       = "refund"
	ReasonCorrection   = "correction"
	ReasonPettyCash    = "petty_cash"
	ReasonChangeFund   = "change_fund"
	ReasonCashSale     = "cash_sale"
	ReasonOther        = "other"
)

// CashMovement is an immutable entry in the drawer ledger.
// Movements are NEVER modified or deleted — corrections create inverse entries.
// Creation order is the ledger order.
type CashMovement struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Type       string          `gorm:"type:varchar(10);not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Reason     string          `gorm:"type:varchar(30);not null;index"`
	OperatorID uuid.UUID       `gorm:"type:uuid;not null"`
	Notes      *string
	// ReferenceID links to the originating order or adjustment, when any.
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time
}

// ManualReasons are the reasons an operator may select for a manual movement.
var ManualReasons = map[string]bool{
	ReasonBankDeposit: true,
	ReasonExpense:     true,
	ReasonRefund:      true,
	ReasonCorrection:  true,
	ReasonPettyCash:   true,
	ReasonChangeFund:  true,
	ReasonOther:       true,
}
