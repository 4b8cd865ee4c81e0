package handler

import (
	"net/http"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/middleware"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct {
	svc  service.OrderService
	sync service.SyncService
}

func NewOrderHandler(svc service.OrderService, sync service.SyncService) *OrderHandler {
	return &OrderHandler{svc: svc, sync: sync}
}

// Create registers a sale online, decrementing stock and crediting the
// drawer session in one transaction.
// POST /v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	resp, err := h.svc.Create(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Void cancels a completed order, restoring stock and debiting the session.
// DELETE /v1/orders/:id
func (h *OrderHandler) Void(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid order id"))
		return
	}
	var req dto.VoidOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	if err := h.svc.Void(c.Request.Context(), id, operatorID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncBatch applies offline orders idempotently, in submission order.
// The whole batch answers 200; per-entry outcomes live in the results array
// so the terminal can settle each queued record independently.
// POST /v1/orders/sync-batch
func (h *OrderHandler) SyncBatch(c *gin.Context) {
	var req dto.SyncBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	resp, err := h.sync.ApplyBatch(c.Request.Context(), operatorID, req)
	if err != nil {
		// An infrastructure failure mid-batch: nothing committed past the
		// point of failure, client retries the remainder and idempotency
		// resolves anything that did land.
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
