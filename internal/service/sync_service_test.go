package service

import (
	"context"
	"testing"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncFixture(t *testing.T, stock int, price float64) (*orderFixture, SyncService) {
	t.Helper()
	f := newOrderFixture(t, stock, price)
	return f, NewSyncService(f.orders, nil, nil)
}

func offlineRequest(f *orderFixture, qty int, paid float64) dto.CreateOrderRequest {
	req := f.request(qty, paid)
	id := uuid.NewString()
	req.OfflineID = &id
	return req
}

func TestSyncBatchCreates(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)

	req := dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{
		offlineRequest(f, 2, 50),
		offlineRequest(f, 1, 25),
	}}

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID, req)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	for i, res := range resp.Results {
		assert.Equal(t, dto.SyncCreated, res.Status, "entry %d", i)
		assert.NotNil(t, res.ServerID)
		assert.Equal(t, *req.Orders[i].OfflineID, res.OfflineID)
	}

	// Applied in submission order: ticket numbers follow batch order.
	assert.Equal(t, 7, f.products.products[f.productID].Stock)
	first := f.repo.orders[f.repo.byOffline[*req.Orders[0].OfflineID]]
	second := f.repo.orders[f.repo.byOffline[*req.Orders[1].OfflineID]]
	assert.Less(t, first.TicketNumber, second.TicketNumber)
}

func TestSyncBatchDuplicateIsIdempotent(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)
	order := offlineRequest(f, 2, 50)

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{order}})
	require.NoError(t, err)
	require.Equal(t, dto.SyncCreated, resp.Results[0].Status)
	serverID := *resp.Results[0].ServerID

	// Replay of the identical order: duplicate, same server id, and the
	// stock is not decremented a second time.
	resp, err = svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{order}})
	require.NoError(t, err)
	require.Equal(t, dto.SyncDuplicate, resp.Results[0].Status)
	assert.Equal(t, serverID, *resp.Results[0].ServerID)
	assert.Equal(t, 8, f.products.products[f.productID].Stock)
}

func TestSyncBatchConflictOnDivergentContent(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)
	order := offlineRequest(f, 2, 50)

	_, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{order}})
	require.NoError(t, err)

	// Same offline_id, different content — must be surfaced, never merged
	// and never re-applied.
	altered := f.request(4, 100)
	altered.OfflineID = order.OfflineID

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{altered}})
	require.NoError(t, err)
	require.Equal(t, dto.SyncConflict, resp.Results[0].Status)
	require.NotNil(t, resp.Results[0].Reason)
	assert.Equal(t, 8, f.products.products[f.productID].Stock)
	assert.Len(t, f.repo.orders, 1)
}

func TestSyncBatchRejectsMissingOfflineID(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{f.request(1, 25)}})
	require.NoError(t, err)
	require.Equal(t, dto.SyncRejected, resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Errors, "offline_id")
}

func TestSyncBatchRejectedValidation(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)

	// Unknown product — rejected with field errors, nothing mutated.
	bad := offlineRequest(f, 1, 25)
	bad.Items[0].ProductID = uuid.NewString()

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{bad}})
	require.NoError(t, err)
	require.Equal(t, dto.SyncRejected, resp.Results[0].Status)
	assert.NotEmpty(t, resp.Results[0].Errors)
	assert.Equal(t, 10, f.products.products[f.productID].Stock)
}

func TestSyncBatchRejectsEmptyItems(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)

	empty := offlineRequest(f, 1, 25)
	empty.Items = nil

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{empty}})
	require.NoError(t, err)
	require.Equal(t, dto.SyncRejected, resp.Results[0].Status)
	assert.NotEmpty(t, resp.Results[0].Errors)

	// No trace: no order, no stock movement, no drawer credit.
	assert.Empty(t, f.repo.orders)
	assert.Empty(t, f.stock.movements)
	assert.Equal(t, 10, f.products.products[f.productID].Stock)
	assert.True(t, f.drawers.sessions[f.sessionID].CashSales.IsZero())
}

func TestSyncBatchStockConflictDoesNotBlockRest(t *testing.T) {
	f, svc := newSyncFixture(t, 3, 25)

	over := offlineRequest(f, 5, 200) // exceeds stock → conflict
	ok := offlineRequest(f, 2, 50)

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{over, ok}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, dto.SyncConflict, resp.Results[0].Status)
	assert.Equal(t, dto.SyncCreated, resp.Results[1].Status)
	assert.Equal(t, 1, f.products.products[f.productID].Stock)
}

func TestSyncBatchClosedSessionConflicts(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)
	_, err := f.drawer.Close(context.Background(), f.operatorID, dto.CloseDrawerRequest{
		SessionID:      f.sessionID.String(),
		ClosingBalance: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)

	resp, err := svc.ApplyBatch(context.Background(), f.operatorID,
		dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{offlineRequest(f, 1, 25)}})
	require.NoError(t, err)
	assert.Equal(t, dto.SyncConflict, resp.Results[0].Status)
}

func TestSyncBatchCashSalesCreditDrawerOnce(t *testing.T) {
	f, svc := newSyncFixture(t, 10, 25)
	order := offlineRequest(f, 2, 50)

	for i := 0; i < 3; i++ {
		_, err := svc.ApplyBatch(context.Background(), f.operatorID,
			dto.SyncBatchRequest{Orders: []dto.CreateOrderRequest{order}})
		require.NoError(t, err)
	}

	session := f.drawers.sessions[f.sessionID]
	assert.Equal(t, "50", session.CashSales.String())
	assert.Equal(t, model.SessionOpen, session.Status)
}
