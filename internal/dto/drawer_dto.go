package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenDrawerRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"min=0"`
	Notes          *string         `json:"notes"`
}

type CloseDrawerRequest struct {
	SessionID      string          `json:"session_id"      validate:"required,uuid"`
	ClosingBalance decimal.Decimal `json:"closing_balance" validate:"min=0"`
	Notes          *string         `json:"notes"`
}

type MovementRequest struct {
	SessionID string          `json:"session_id" validate:"required,uuid"`
	Type      string          `json:"type"       validate:"required,oneof=in out"`
	Amount    decimal.Decimal `json:"amount"     validate:"required,gt=0"`
	Reason    string          `json:"reason"     validate:"required,oneof=bank_deposit expense refund correction petty_cash change_fund other"`
	Notes     *string         `json:"notes"`
}

// MovementFilter is bound from the query string of GET /v1/drawer/:id/movements.
// Filtering is a pure narrowing — it never mutates the ledger.
type MovementFilter struct {
	Type   string `form:"type"   validate:"omitempty,oneof=in out"`
	Reason string `form:"reason"`
	Text   string `form:"text"`
	Page   int    `form:"page,default=1"   validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MovementResponse struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Notes     *string         `json:"notes"`
	CreatedAt string          `json:"created_at"`
}

type DiscrepancyResponse struct {
	Amount decimal.Decimal `json:"amount"`
	// Classification: "exact" | "over" | "short"
	Classification string `json:"classification"`
	// Severity: "normal" | "warning" | "critical" (pct of expected balance)
	Severity string `json:"severity"`
}

type SessionResponse struct {
	SessionID       string               `json:"session_id"`
	OperatorID      string               `json:"operator_id"`
	OpeningBalance  decimal.Decimal      `json:"opening_balance"`
	CashSales       decimal.Decimal      `json:"cash_sales"`
	CashRefunds     decimal.Decimal      `json:"cash_refunds"`
	CashIn          decimal.Decimal      `json:"cash_in"`
	CashOut         decimal.Decimal      `json:"cash_out"`
	ExpectedBalance *decimal.Decimal     `json:"expected_balance"`
	ClosingBalance  *decimal.Decimal     `json:"closing_balance"`
	Discrepancy     *DiscrepancyResponse `json:"discrepancy"`
	Status          string               `json:"status"`
	Notes           *string              `json:"notes"`
	OpenedAt        string               `json:"opened_at"`
	ClosedAt        *string              `json:"closed_at"`
}

// StatisticsResponse is derived on demand from the ledger, never cached.
type StatisticsResponse struct {
	TotalIn  decimal.Decimal `json:"total_in"`
	TotalOut decimal.Decimal `json:"total_out"`
	CountIn  int64           `json:"count_in"`
	CountOut int64           `json:"count_out"`
}
