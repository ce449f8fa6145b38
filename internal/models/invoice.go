package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceState string

const (
	InvoiceDraft   InvoiceState = "draft"
	InvoiceIssued  InvoiceState = "issued"
	InvoiceSettled InvoiceState = "settled"
	InvoiceVoided  InvoiceState = "voided"
)

// Invoice snapshots the order totals when it is issued. Prices are tax inclusive.
type Invoice struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"uniqueIndex;not null" json:"order_id"`
	BranchID  uint            `gorm:"index;not null" json:"branch_id"`
	State     InvoiceState    `gorm:"size:20;not null" json:"state"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Tax       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"tax_rate"`
	IssuedAt  *time.Time      `json:"issued_at"`
	SettledAt *time.Time      `json:"settled_at"`
	VoidedAt  *time.Time      `json:"voided_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Payments []Payment `gorm:"foreignKey:InvoiceID" json:"payments"`
}

type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	InvoiceID       uint            `gorm:"index;not null" json:"invoice_id"`
	OrderID         uint            `gorm:"index;not null" json:"order_id"`
	PaymentMethodID uint            `gorm:"not null" json:"payment_method_id"`
	OperatorID      uint            `gorm:"not null" json:"operator_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Change          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"change"` // tendered above the balance
	Reference       string          `gorm:"size:100" json:"reference"`
	IsPartial       bool            `gorm:"not null" json:"is_partial"`
	CashMovementID  uint            `gorm:"not null" json:"cash_movement_id"`
	PaidAt          time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Applied is the part of the payment that counts against the invoice.
func (p Payment) Applied() decimal.Decimal {
	return p.Amount.Sub(p.Change)
}
