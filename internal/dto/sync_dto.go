package dto

// Sync result statuses, one per offline_id in a batch response.
const (
	SyncCreated   = "created"
	SyncDuplicate = "duplicate"
	SyncConflict  = "conflict"
	SyncRejected  = "rejected"
)

// SyncBatchRequest carries offline orders in client creation order. The server
// applies them in this order to preserve the causal ordering of stock
// decrements.
type SyncBatchRequest struct {
	Orders []CreateOrderRequest `json:"orders" validate:"required,min=1,dive"`
}

// SyncResult is the per-offline_id outcome of a batch application.
//   - created:   new order applied, ServerID set
//   - duplicate: offline_id already applied, prior ServerID returned, no
//     stock re-decrement (an idempotent no-op, not an error)
//   - conflict:  offline_id known but content differs, or stock already
//     mutated past the order's needs; nothing applied
//   - rejected:  validation failure, nothing applied
type SyncResult struct {
	OfflineID string            `json:"offline_id"`
	Status    string            `json:"status"`
	ServerID  *string           `json:"server_id,omitempty"`
	Reason    *string           `json:"reason,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type SyncBatchResponse struct {
	Results []SyncResult `json:"results"`
}
