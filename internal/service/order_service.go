package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/apierror"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/dto"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderService applies sales against inventory and the drawer ledger. Every
// apply is one ACID transaction: order + items + payments created, stock
// decremented, audit rows written, session totals updated — all or nothing.
type OrderService interface {
	Create(ctx context.Context, operatorID uuid.UUID, req dto.CreateOrderRequest) (*dto.OrderResponse, error)
	Void(ctx context.Context, id uuid.UUID, operatorID uuid.UUID, reason string) error
	FindByOfflineID(ctx context.Context, offlineID string) (*model.Order, error)
}

type orderService struct {
	repo        repository.OrderRepository
	productRepo repository.ProductRepository
	stockRepo   repository.StockMovementRepository
	drawer      DrawerService
}

func NewOrderService(
	repo repository.OrderRepository,
	productRepo repository.ProductRepository,
	stockRepo repository.StockMovementRepository,
	drawer DrawerService,
) OrderService {
	return &orderService{
		repo:        repo,
		productRepo: productRepo,
		stockRepo:   stockRepo,
		drawer:      drawer,
	}
}

// ── Create ────────────────────────────────────────────────────────────────────
//  1. Validate the target session is open
//  2. Deduplicate by offline_id (resubmission returns the prior result)
//  3. Resolve products and compute totals (pre-flight, outside the TX)
//  4. BEGIN TX: ticket number, order + items + payments, conditional stock
//     decrements, stock audit rows, cash movements / session totals
//  5. COMMIT

func (s *orderService) Create(ctx context.Context, operatorID uuid.UUID, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apierror.Validation("invalid session_id")
	}
	if len(req.Items) == 0 {
		return nil, apierror.Validation("order must contain at least one item")
	}
	if req.Discount.IsNegative() {
		return nil, apierror.Validation("discount cannot be negative")
	}

	if err := s.drawer.RequireOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	// Idempotency pre-check. The unique index on offline_id is the backstop
	// for the race where two submissions pass this check concurrently. The
	// prior result is only returned for identical content — a replay of the
	// key against different content is a conflict, never silently answered
	// with the other submission's order.
	if req.OfflineID != nil {
		if existing, err := s.repo.FindByOfflineID(ctx, *req.OfflineID); err == nil {
			if existing.Fingerprint != nil && *existing.Fingerprint != Fingerprint(req) {
				return nil, apierror.Conflict("offline_id already applied with different contents")
			}
			return orderToResponse(existing), nil
		}
	}

	type resolvedItem struct {
		productID uuid.UUID
		name      string
		price     decimal.Decimal
		quantity  int
		subtotal  decimal.Decimal
	}

	var resolved []resolvedItem
	subtotal := decimal.Zero

	for _, item := range req.Items {
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, apierror.Validation("invalid product_id")
		}
		if item.Quantity <= 0 {
			return nil, apierror.Validation("item quantity must be strictly positive")
		}
		p, err := s.productRepo.FindByID(ctx, pid)
		if err != nil {
			return nil, apierror.Validation(fmt.Sprintf("product %s not found", item.ProductID))
		}
		if !p.Active {
			return nil, apierror.Validation(fmt.Sprintf("product %s is inactive", p.Name))
		}
		lineSubtotal := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineSubtotal)
		resolved = append(resolved, resolvedItem{
			productID: pid,
			name:      p.Name,
			price:     p.Price,
			quantity:  item.Quantity,
			subtotal:  lineSubtotal,
		})
	}

	total := subtotal.Sub(req.Discount)
	if !total.IsPositive() {
		return nil, apierror.Validation("order total must be strictly positive")
	}

	totalPayments := decimal.Zero
	for _, p := range req.Payments {
		if !p.Amount.IsPositive() {
			return nil, apierror.Validation("payment amount must be strictly positive")
		}
		totalPayments = totalPayments.Add(p.Amount)
	}
	if totalPayments.LessThan(total) {
		return nil, apierror.Validation("total payments are insufficient")
	}
	change := totalPayments.Sub(total)

	var createdOffline *time.Time
	if req.CreatedOffline != nil {
		if t, err := time.Parse(time.RFC3339, *req.CreatedOffline); err == nil {
			createdOffline = &t
		}
	}

	var order model.Order
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		ticketNum, err := s.repo.NextTicketNumberTx(tx)
		if err != nil {
			return err
		}

		order = model.Order{
			TicketNumber:   ticketNum,
			SessionID:      sessionID,
			OperatorID:     operatorID,
			OfflineID:      req.OfflineID,
			Subtotal:       subtotal,
			Discount:       req.Discount,
			Total:          total,
			Status:         model.OrderCompleted,
			CustomerRef:    req.CustomerRef,
			CreatedOffline: createdOffline,
		}
		if req.OfflineID != nil {
			fp := Fingerprint(req)
			order.Fingerprint = &fp
		}

		for _, r := range resolved {
			order.Items = append(order.Items, model.OrderItem{
				ProductID: r.productID,
				Quantity:  r.quantity,
				UnitPrice: r.price,
				Subtotal:  r.subtotal,
			})
		}
		for _, p := range req.Payments {
			order.Payments = append(order.Payments, model.OrderPayment{
				Method: p.Method,
				Amount: p.Amount,
			})
		}

		if err := s.repo.CreateTx(tx, &order); err != nil {
			return err
		}

		// Stock decrements, exactly once per line item. The conditional
		// UPDATE enforces non-negativity under concurrency; a rejected
		// decrement rolls back the whole order.
		for _, r := range resolved {
			before := 0
			if prod, err := s.productRepo.FindByIDTx(tx, r.productID); err == nil && prod != nil {
				before = prod.Stock
			}

			ok, err := s.productRepo.DecrementStockTx(tx, r.productID, r.quantity)
			if err != nil {
				return err
			}
			if !ok {
				return apierror.Conflict(fmt.Sprintf("insufficient stock for %s", r.name))
			}

			ref := order.ID
			if err := s.stockRepo.CreateTx(tx, &model.StockMovement{
				ProductID:   r.productID,
				Type:        "sale",
				Quantity:    -r.quantity,
				StockBefore: before,
				StockAfter:  before - r.quantity,
				Reason:      fmt.Sprintf("Order #%d", ticketNum),
				ReferenceID: &ref,
			}); err != nil {
				return err
			}
		}

		// Cash payments feed the drawer's cash_sales running total and leave
		// a ledger entry each, under the session row lock.
		for _, p := range req.Payments {
			if p.Method != model.PaymentCash {
				continue
			}
			if err := s.drawer.RecordCashSaleTx(tx, sessionID, operatorID, p.Amount, &order.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	resp := orderToResponse(&order)
	resp.Change = change
	for i, r := range resolved {
		resp.Items[i].Product = r.name
	}
	return resp, nil
}

// ── Void ──────────────────────────────────────────────────────────────────────
// Restores stock and records inverse ledger entries. Nothing is ever mutated
// or deleted — a void leaves a full audit trail.

func (s *orderService) Void(ctx context.Context, id uuid.UUID, operatorID uuid.UUID, reason string) error {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return apierror.NotFound("order not found")
	}
	if order.Status == model.OrderVoided {
		return apierror.Conflict("order is already voided")
	}

	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		for _, item := range order.Items {
			before := 0
			if prod, err := s.productRepo.FindByIDTx(tx, item.ProductID); err == nil && prod != nil {
				before = prod.Stock
			}

			if err := s.productRepo.IncrementStockTx(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}

			ref := order.ID
			if err := s.stockRepo.CreateTx(tx, &model.StockMovement{
				ProductID:   item.ProductID,
				Type:        "void_restore",
				Quantity:    item.Quantity,
				StockBefore: before,
				StockAfter:  before + item.Quantity,
				Reason:      fmt.Sprintf("Void order #%d — %s", order.TicketNumber, reason),
				ReferenceID: &ref,
			}); err != nil {
				return err
			}
		}

		for _, p := range order.Payments {
			if p.Method != model.PaymentCash {
				continue
			}
			if err := s.drawer.RecordCashRefundTx(tx, order.SessionID, operatorID, p.Amount, &order.ID); err != nil {
				return err
			}
		}

		return s.repo.UpdateStatusTx(tx, id, model.OrderVoided)
	})
}

func (s *orderService) FindByOfflineID(ctx context.Context, offlineID string) (*model.Order, error) {
	return s.repo.FindByOfflineID(ctx, offlineID)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Fingerprint hashes the canonical order content. Two submissions with the
// same offline_id are the same order iff their fingerprints match; a mismatch
// means the client is replaying a key against different content (conflict).
func Fingerprint(req dto.CreateOrderRequest) string {
	var b strings.Builder
	b.WriteString(req.SessionID)
	for _, item := range req.Items {
		fmt.Fprintf(&b, "|%s:%d", item.ProductID, item.Quantity)
	}
	for _, p := range req.Payments {
		fmt.Fprintf(&b, "|%s:%s", p.Method, p.Amount.StringFixed(2))
	}
	fmt.Fprintf(&b, "|%s", req.Discount.StringFixed(2))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// IsUniqueViolation reports whether err is the Postgres duplicate-key error —
// the offline_id backstop firing under a concurrent double submission.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "SQLSTATE 23505")
}

func orderToResponse(o *model.Order) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		ID:           o.ID.String(),
		TicketNumber: o.TicketNumber,
		SessionID:    o.SessionID.String(),
		Subtotal:     o.Subtotal,
		Discount:     o.Discount,
		Total:        o.Total,
		Change:       decimal.Zero,
		Status:       o.Status,
		OfflineID:    o.OfflineID,
		CreatedAt:    o.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, item := range o.Items {
		name := ""
		if item.Product != nil {
			name = item.Product.Name
		}
		resp.Items = append(resp.Items, dto.OrderItemResponse{
			Product:   name,
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	for _, p := range o.Payments {
		resp.Payments = append(resp.Payments, dto.OrderPaymentRequest{
			Method: p.Method,
			Amount: p.Amount,
		})
	}
	return resp
}
