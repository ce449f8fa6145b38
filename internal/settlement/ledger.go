// Package settlement bills orders: invoices, payments (including abonos) and
// refunds, each tied to a movement of the operator's cash session.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/audit"
	"restoran-pos/internal/billing"
	"restoran-pos/internal/cashflow"
	"restoran-pos/internal/catalog"
	"restoran-pos/internal/events"
	"restoran-pos/internal/models"
	"restoran-pos/internal/orders"
	"restoran-pos/internal/production"
	"restoran-pos/internal/tables"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Ledger struct {
	db      *gorm.DB
	catalog *catalog.Gateway
	tables  *tables.Synchronizer
	machine *production.Machine
	cash    *cashflow.Manager
	taxRate decimal.Decimal
	pub     events.Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewLedger(
	db *gorm.DB,
	g *catalog.Gateway,
	ts *tables.Synchronizer,
	machine *production.Machine,
	cash *cashflow.Manager,
	taxRate decimal.Decimal,
	pub events.Publisher,
	log *zap.Logger,
) *Ledger {
	return &Ledger{
		db:      db,
		catalog: g,
		tables:  ts,
		machine: machine,
		cash:    cash,
		taxRate: taxRate,
		pub:     pub,
		log:     log,
		now:     time.Now,
	}
}

// EnsureInvoice returns the order's invoice, issuing it from the order totals when
// there is none yet. An invoice whose balance is already covered is settled.
func (l *Ledger) EnsureInvoice(ctx context.Context, orderID, branchID uint) (*models.Invoice, error) {
	var (
		inv   *models.Invoice
		batch events.Batch
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := l.lockOrder(tx, orderID, branchID)
		if err != nil {
			return err
		}
		if inv, err = l.ensureInvoiceTx(tx, order); err != nil {
			return err
		}
		_, err = l.settleIfCovered(tx, order, inv, &batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	batch.Flush(ctx, l.pub, l.log)
	l.log.Info("invoice ensured", zap.Uint("order_id", orderID), zap.Uint("invoice_id", inv.ID))
	return inv, nil
}

// ensureInvoiceTx keeps an issued invoice in step with the order total; lines can
// still be added between abonos. Settled and voided invoices are returned as they are.
func (l *Ledger) ensureInvoiceTx(tx *gorm.DB, order *models.Order) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.Where("order_id = ?", order.ID).First(&inv).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	found := err == nil

	if found && inv.State != models.InvoiceIssued && inv.State != models.InvoiceDraft {
		return &inv, nil
	}
	if !order.State.IsOpen() {
		return nil, apperr.InvalidStatef("order %d is %s", order.ID, order.State)
	}

	if !order.Total.IsPositive() {
		return nil, apperr.Validationf("order %d has nothing to bill", order.ID)
	}

	if !found {
		net, tax := billing.SplitTax(order.Total, l.taxRate)
		now := l.now()
		inv = models.Invoice{
			OrderID:  order.ID,
			BranchID: order.BranchID,
			State:    models.InvoiceIssued,
			Subtotal: net,
			Tax:      tax,
			Total:    order.Total,
			TaxRate:  l.taxRate,
			IssuedAt: &now,
		}
		if err := tx.Create(&inv).Error; err != nil {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		return &inv, nil
	}

	synced, err := billing.SyncInvoice(tx, order)
	if err != nil {
		return nil, err
	}
	inv = *synced
	if inv.State == models.InvoiceDraft {
		now := l.now()
		updates := map[string]any{"state": models.InvoiceIssued}
		if inv.IssuedAt == nil {
			updates["issued_at"] = now
			inv.IssuedAt = &now
		}
		if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("issue invoice: %w", err)
		}
		inv.State = models.InvoiceIssued
	}
	return &inv, nil
}

// settleIfCovered settles an issued invoice that already has payments covering its
// total. Order totals never drop below the amount paid, so this catches a total
// lowered to exactly that amount.
func (l *Ledger) settleIfCovered(tx *gorm.DB, order *models.Order, inv *models.Invoice, batch *events.Batch) (bool, error) {
	if inv.State != models.InvoiceIssued || !order.State.IsOpen() {
		return false, nil
	}
	payments, err := paymentsOf(tx, inv.ID)
	if err != nil {
		return false, err
	}
	if len(payments) == 0 || inv.Total.GreaterThan(billing.Paid(payments)) {
		return false, nil
	}
	if err := l.settle(tx, order, inv, l.now(), batch); err != nil {
		return false, err
	}
	return true, nil
}

type PaymentRequest struct {
	OrderID         uint
	BranchID        uint
	OperatorID      uint
	PaymentMethodID uint
	Amount          decimal.Decimal
	Reference       string
	IsPartial       bool
}

type PaymentResult struct {
	Payment   models.Payment  `json:"payment"`
	Invoice   models.Invoice  `json:"invoice"`
	Settled   bool            `json:"settled"`
	Remaining decimal.Decimal `json:"remaining"`
	Change    decimal.Decimal `json:"change"`
}

// RegisterPayment applies a payment to the order's invoice. Reaching the total
// settles the invoice, delivers the order and frees its table in the same
// transaction. A partial payment above the balance is accepted and the excess is
// returned as change.
func (l *Ledger) RegisterPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("payment amount must be positive")
	}
	if req.PaymentMethodID == 0 {
		return nil, apperr.Validation("payment_method_id is required")
	}
	req.Amount = req.Amount.Round(2)

	var (
		res   PaymentResult
		batch events.Batch
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := l.lockOrder(tx, req.OrderID, req.BranchID)
		if err != nil {
			return err
		}
		if !order.State.IsOpen() {
			return apperr.InvalidStatef("order %d is %s", order.ID, order.State)
		}
		method, err := l.catalog.PaymentMethod(tx, req.PaymentMethodID)
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validationf("payment method %d does not exist", req.PaymentMethodID)
		}
		if err != nil {
			return err
		}
		if !method.Active {
			return apperr.Validationf("payment method %s is not accepted", method.Name)
		}

		inv, err := l.ensureInvoiceTx(tx, order)
		if err != nil {
			return err
		}
		settled, err := l.settleIfCovered(tx, order, inv, &batch)
		if err != nil {
			return err
		}
		if settled {
			// nothing left to take, the whole amount goes back
			res = PaymentResult{Invoice: *inv, Settled: true, Remaining: decimal.Zero, Change: req.Amount}
			return nil
		}
		payments, err := paymentsOf(tx, inv.ID)
		if err != nil {
			return err
		}
		remaining := inv.Total.Sub(billing.Paid(payments))

		change := decimal.Zero
		if req.Amount.GreaterThan(remaining) {
			if !req.IsPartial {
				return apperr.Overpaymentf("payment of %s exceeds the balance of %s", req.Amount.StringFixed(2), remaining.StringFixed(2))
			}
			change = req.Amount.Sub(remaining)
		}
		applied := req.Amount.Sub(change)

		session, err := l.cash.OpenSessionTx(tx, req.OperatorID, order.BranchID)
		if err != nil {
			return err
		}
		mv, err := l.cash.RecordTx(tx, session, req.OperatorID, cashflow.MovementInput{
			Direction:       models.CashIn,
			Kind:            models.MovementSale,
			Amount:          applied,
			Concept:         fmt.Sprintf("order #%d payment (%s)", order.ID, method.Code),
			OrderID:         &order.ID,
			PaymentMethodID: &method.ID,
		})
		if err != nil {
			return err
		}

		now := l.now()
		p := models.Payment{
			InvoiceID:       inv.ID,
			OrderID:         order.ID,
			PaymentMethodID: method.ID,
			OperatorID:      req.OperatorID,
			Amount:          req.Amount,
			Change:          change,
			Reference:       strings.TrimSpace(req.Reference),
			IsPartial:       req.IsPartial,
			CashMovementID:  mv.ID,
			PaidAt:          now,
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		remaining = remaining.Sub(applied)

		if err := audit.Write(tx, audit.Entry{
			BranchID:    &order.BranchID,
			UserID:      req.OperatorID,
			EntityType:  "payment",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("payment %s on order #%d", applied.StringFixed(2), order.ID),
			After:       p,
		}); err != nil {
			return err
		}

		if !remaining.IsPositive() {
			if err := l.settle(tx, order, inv, now, &batch); err != nil {
				return err
			}
			res.Settled = true
			remaining = decimal.Zero
		}

		res.Payment = p
		res.Invoice = *inv
		res.Remaining = remaining
		res.Change = change
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(ctx, l.pub, l.log)
	l.log.Info("payment registered",
		zap.Uint("order_id", req.OrderID),
		zap.Uint("payment_id", res.Payment.ID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Bool("settled", res.Settled),
		zap.String("remaining", res.Remaining.StringFixed(2)),
	)
	return &res, nil
}

func (l *Ledger) settle(tx *gorm.DB, order *models.Order, inv *models.Invoice, now time.Time, batch *events.Batch) error {
	if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"state":      models.InvoiceSettled,
		"settled_at": now,
	}).Error; err != nil {
		return fmt.Errorf("settle invoice: %w", err)
	}
	inv.State = models.InvoiceSettled
	inv.SettledAt = &now

	if err := l.machine.DeliverOrderTickets(tx, order.ID); err != nil {
		return err
	}
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"state":     models.OrderDelivered,
		"closed_at": now,
	}).Error; err != nil {
		return fmt.Errorf("deliver order: %w", err)
	}
	order.State = models.OrderDelivered
	order.ClosedAt = &now

	batch.Add(events.New(events.OrderSettled, order.BranchID, events.OrderSettledPayload{
		OrderID:   order.ID,
		InvoiceID: inv.ID,
		Total:     inv.Total.StringFixed(2),
	}))
	return l.release(tx, order, batch)
}

func (l *Ledger) release(tx *gorm.DB, order *models.Order, batch *events.Batch) error {
	if order.TableID == nil {
		return nil
	}
	released, err := l.tables.Release(tx, *order.TableID, order.ID)
	if err != nil {
		return err
	}
	if released {
		batch.Add(events.New(events.TableReleased, order.BranchID, events.TableReleasedPayload{
			TableID: *order.TableID,
			OrderID: order.ID,
		}))
	}
	return nil
}

type RefundRequest struct {
	OrderID    uint
	BranchID   uint
	OperatorID uint
	Reason     string
	Amount     decimal.Decimal
}

type RefundResult struct {
	Invoice  models.Invoice      `json:"invoice"`
	Order    models.Order        `json:"order"`
	Movement models.CashMovement `json:"movement"`
}

// Refund gives money back on a paid order and voids it with its invoice and open
// tickets. The money leaves through the acting operator's open session.
func (l *Ledger) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return nil, apperr.Validation("a reason is required for a refund")
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("refund amount must be positive")
	}
	req.Amount = req.Amount.Round(2)

	var (
		res   RefundResult
		batch events.Batch
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := l.lockOrder(tx, req.OrderID, req.BranchID)
		if err != nil {
			return err
		}
		var inv models.Invoice
		if err := tx.Where("order_id = ?", order.ID).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.InvalidStatef("order %d has no invoice to refund", order.ID)
			}
			return fmt.Errorf("load invoice: %w", err)
		}
		if inv.State == models.InvoiceVoided {
			return apperr.InvalidStatef("invoice %d is already voided", inv.ID)
		}
		payments, err := paymentsOf(tx, inv.ID)
		if err != nil {
			return err
		}
		paid := billing.Paid(payments)
		if len(payments) == 0 {
			return apperr.InvalidStatef("order %d has no payments to refund", order.ID)
		}
		if req.Amount.GreaterThan(paid) {
			return apperr.Validationf("refund of %s exceeds the %s paid", req.Amount.StringFixed(2), paid.StringFixed(2))
		}

		session, err := l.cash.OpenSessionTx(tx, req.OperatorID, order.BranchID)
		if err != nil {
			return err
		}
		mv, err := l.cash.RecordTx(tx, session, req.OperatorID, cashflow.MovementInput{
			Direction: models.CashOut,
			Kind:      models.MovementRefund,
			Amount:    req.Amount,
			Concept:   fmt.Sprintf("order #%d refund: %s", order.ID, req.Reason),
			OrderID:   &order.ID,
		})
		if err != nil {
			return err
		}

		before := struct {
			Order   models.Order   `json:"order"`
			Invoice models.Invoice `json:"invoice"`
		}{*order, inv}

		now := l.now()
		if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
			"state":     models.InvoiceVoided,
			"voided_at": now,
		}).Error; err != nil {
			return fmt.Errorf("void invoice: %w", err)
		}
		inv.State = models.InvoiceVoided
		inv.VoidedAt = &now

		if _, err := l.machine.VoidOrderTickets(tx, order.ID); err != nil {
			return err
		}
		updates := map[string]any{"state": models.OrderVoided, "void_reason": req.Reason}
		if order.ClosedAt == nil {
			updates["closed_at"] = now
			order.ClosedAt = &now
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("void order: %w", err)
		}
		order.State = models.OrderVoided
		order.VoidReason = req.Reason

		if err := l.release(tx, order, &batch); err != nil {
			return err
		}

		if err := audit.Write(tx, audit.Entry{
			BranchID:    &order.BranchID,
			UserID:      req.OperatorID,
			EntityType:  "refund",
			EntityID:    order.ID,
			Action:      models.AuditActionVoid,
			Description: fmt.Sprintf("refund %s on order #%d: %s", req.Amount.StringFixed(2), order.ID, req.Reason),
			Before:      before,
			After:       mv,
		}); err != nil {
			return err
		}

		res = RefundResult{Invoice: inv, Order: *order, Movement: *mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(ctx, l.pub, l.log)
	l.log.Info("order refunded",
		zap.Uint("order_id", req.OrderID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Uint("movement_id", res.Movement.ID),
	)
	return &res, nil
}

type Summary struct {
	OrderID    uint              `json:"order_id"`
	OrderState models.OrderState `json:"order_state"`
	OrderTotal decimal.Decimal   `json:"order_total"`
	Invoice    *models.Invoice   `json:"invoice"`
	Payments   []models.Payment  `json:"payments"`
	Paid       decimal.Decimal   `json:"paid"`
	Remaining  decimal.Decimal   `json:"remaining"`
}

// Summary is the cashier's view of an order's balance.
func (l *Ledger) Summary(ctx context.Context, orderID, branchID uint) (*Summary, error) {
	db := l.db.WithContext(ctx)
	var order models.Order
	if err := db.First(&order, orderID).Error; err != nil || order.BranchID != branchID {
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("load order: %w", err)
	}

	out := &Summary{
		OrderID:    order.ID,
		OrderState: order.State,
		OrderTotal: order.Total,
		Paid:       decimal.Zero,
		Remaining:  order.Total,
	}
	var inv models.Invoice
	err := db.Where("order_id = ?", order.ID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	payments, err := paymentsOf(db, inv.ID)
	if err != nil {
		return nil, err
	}
	out.Invoice = &inv
	out.Payments = payments
	out.Paid = billing.Paid(payments)
	if inv.State == models.InvoiceIssued {
		out.Remaining = decimal.Max(order.Total.Sub(out.Paid), decimal.Zero)
	} else {
		out.Remaining = decimal.Zero
	}
	return out, nil
}

// lockOrder takes the table lock (when the order has one) before the order lock.
func (l *Ledger) lockOrder(tx *gorm.DB, orderID, branchID uint) (*models.Order, error) {
	var probe models.Order
	if err := tx.First(&probe, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if probe.BranchID != branchID {
		return nil, apperr.NotFoundf("order %d not found", orderID)
	}
	if probe.TableID != nil {
		if _, err := l.tables.Lock(tx, *probe.TableID); err != nil {
			return nil, err
		}
	}
	return orders.Lock(tx, orderID)
}

func paymentsOf(db *gorm.DB, invoiceID uint) ([]models.Payment, error) {
	var rows []models.Payment
	if err := db.Where("invoice_id = ?", invoiceID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return rows, nil
}
