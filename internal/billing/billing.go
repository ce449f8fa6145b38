// Package billing holds the money rules shared by orders, production and
// settlement: line and order totals, the tax split and the balance already paid.
package billing

import (
	"errors"
	"fmt"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineSubtotal is quantity × (unit price + modifier deltas).
func LineSubtotal(qty int, unitPrice decimal.Decimal, mods []models.OrderLineModifier) decimal.Decimal {
	unit := unitPrice
	for _, m := range mods {
		unit = unit.Add(m.PriceDelta)
	}
	return unit.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

// Recalculate is the order total: the sum of the line subtotals as stored.
func Recalculate(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// SplitTax breaks a tax-inclusive total into net and tax.
func SplitTax(total, rate decimal.Decimal) (net, tax decimal.Decimal) {
	net = total.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
	return net, total.Sub(net)
}

// Paid is what the payments applied against the invoice, change excluded.
func Paid(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Applied())
	}
	return total
}

// PaidOnOrder sums the payments applied to the order's live invoice.
func PaidOnOrder(tx *gorm.DB, orderID uint) (decimal.Decimal, error) {
	var payments []models.Payment
	err := tx.Model(&models.Payment{}).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("payments.order_id = ? AND invoices.state <> ?", orderID, models.InvoiceVoided).
		Find(&payments).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("load order payments: %w", err)
	}
	return Paid(payments), nil
}

// RefreshTotal recomputes the order total from its lines and carries it onto an
// issued invoice. The order lock must be held. A total below what was already
// paid is refused, the guest would be owed money on an order still running.
func RefreshTotal(tx *gorm.DB, order *models.Order) error {
	var lines []models.OrderLine
	if err := tx.Where("order_id = ?", order.ID).Find(&lines).Error; err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	total := Recalculate(lines)

	paid, err := PaidOnOrder(tx, order.ID)
	if err != nil {
		return err
	}
	if total.LessThan(paid) {
		return apperr.InvalidStatef("order %d already has %s paid, its total cannot drop to %s",
			order.ID, paid.StringFixed(2), total.StringFixed(2))
	}

	if !total.Equal(order.Total) {
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("total", total).Error; err != nil {
			return fmt.Errorf("update order total: %w", err)
		}
	}
	order.Total = total
	_, err = SyncInvoice(tx, order)
	return err
}

// SyncInvoice re-snapshots a draft or issued invoice from the order total at the
// rate the invoice was issued with. It returns nil when the order has no invoice.
func SyncInvoice(tx *gorm.DB, order *models.Order) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.Where("order_id = ?", order.ID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv.State != models.InvoiceIssued && inv.State != models.InvoiceDraft {
		return &inv, nil
	}
	if inv.Total.Equal(order.Total) {
		return &inv, nil
	}

	net, tax := SplitTax(order.Total, inv.TaxRate)
	if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"subtotal": net,
		"tax":      tax,
		"total":    order.Total,
	}).Error; err != nil {
		return nil, fmt.Errorf("refresh invoice: %w", err)
	}
	inv.Subtotal, inv.Tax, inv.Total = net, tax, order.Total
	return &inv, nil
}
