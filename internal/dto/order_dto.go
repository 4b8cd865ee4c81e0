package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"   validate:"required,min=1"`
}

type OrderPaymentRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash card transfer"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type CreateOrderRequest struct {
	SessionID string                `json:"session_id" validate:"required,uuid"`
	Items     []OrderItemRequest    `json:"items"      validate:"required,min=1,dive"`
	Payments  []OrderPaymentRequest `json:"payments"   validate:"required,min=1,dive"`
	Discount  decimal.Decimal       `json:"discount"   validate:"min=0"`
	// OfflineID is set by the terminal when the order was created offline.
	OfflineID *string `json:"offline_id" validate:"omitempty,uuid"`
	// CreatedOffline is the client clock at local creation (RFC 3339).
	CreatedOffline *string `json:"created_offline"`
	CustomerRef    *string `json:"customer_ref"`
}

type VoidOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type OrderItemResponse struct {
	Product   string          `json:"product"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID           string                `json:"id"`
	TicketNumber int                   `json:"ticket_number"`
	SessionID    string                `json:"session_id"`
	Items        []OrderItemResponse   `json:"items"`
	Payments     []OrderPaymentRequest `json:"payments"`
	Subtotal     decimal.Decimal       `json:"subtotal"`
	Discount     decimal.Decimal       `json:"discount"`
	Total        decimal.Decimal       `json:"total"`
	Change       decimal.Decimal       `json:"change"`
	Status       string                `json:"status"`
	OfflineID    *string               `json:"offline_id"`
	CreatedAt    string                `json:"created_at"`
}
