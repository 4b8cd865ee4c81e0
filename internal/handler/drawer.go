package handler

import (
	"net/http"
	"strconv"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/middleware"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DrawerHandler struct{ svc service.DrawerService }

func NewDrawerHandler(svc service.DrawerService) *DrawerHandler { return &DrawerHandler{svc: svc} }

// Open starts a new drawer session for the authenticated operator.
// POST /v1/drawer/open
func (h *DrawerHandler) Open(c *gin.Context) {
	var req dto.OpenDrawerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	resp, err := h.svc.Open(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close reconciles the declared closing balance and closes the session.
// POST /v1/drawer/close
func (h *DrawerHandler) Close(c *gin.Context) {
	var req dto.CloseDrawerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	resp, err := h.svc.Close(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Movement records a manual cash in/out against an open session.
// POST /v1/drawer/movement
func (h *DrawerHandler) Movement(c *gin.Context) {
	var req dto.MovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	resp, err := h.svc.AddMovement(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Active returns the operator's currently open session, 404 when none.
// GET /v1/drawer/active
func (h *DrawerHandler) Active(c *gin.Context) {
	claims := middleware.GetClaims(c)
	operatorID, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("invalid operator identity"))
		return
	}

	resp, err := h.svc.Active(c.Request.Context(), operatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History lists closed sessions, newest first. Supervisor only.
// GET /v1/drawer/history?page=&limit=
func (h *DrawerHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sessions, total, err := h.svc.History(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// Report returns the full session report including reconciliation results.
// GET /v1/drawer/:id/report
func (h *DrawerHandler) Report(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	resp, err := h.svc.Report(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Movements lists a session's ledger with optional type/reason/text filters.
// GET /v1/drawer/:id/movements
func (h *DrawerHandler) Movements(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	var filter dto.MovementFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid filter: "+err.Error()))
		return
	}
	if err := validate.Struct(filter); err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.New("invalid filter values"))
		return
	}

	movements, total, err := h.svc.ListMovements(c.Request.Context(), id, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"movements": movements,
		"total":     total,
		"page":      filter.Page,
		"limit":     filter.Limit,
	})
}

// Statistics aggregates movement totals and counts for a session.
// GET /v1/drawer/:id/statistics
func (h *DrawerHandler) Statistics(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session id"))
		return
	}
	resp, err := h.svc.Statistics(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
