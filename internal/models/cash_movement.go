package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashDirection string

const (
	CashIn  CashDirection = "in"
	CashOut CashDirection = "out"
)

type CashMovementKind string

const (
	MovementSale      CashMovementKind = "sale"       // one per payment
	MovementRefund    CashMovementKind = "refund"     // one per refund
	MovementManualIn  CashMovementKind = "manual_in"  // float top-up etc.
	MovementManualOut CashMovementKind = "manual_out" // petty cash withdrawal etc.
)

// CashMovement is an immutable till ledger entry. Corrections are new entries.
type CashMovement struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	BranchID        uint             `gorm:"index;not null" json:"branch_id"`
	SessionID       uint             `gorm:"index;not null" json:"session_id"`
	Direction       CashDirection    `gorm:"size:10;not null" json:"direction"`
	Kind            CashMovementKind `gorm:"size:20;not null" json:"kind"`
	Amount          decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"amount"`
	Concept         string           `gorm:"size:255" json:"concept"`
	OrderID         *uint            `gorm:"index" json:"order_id"`
	PaymentMethodID *uint            `json:"payment_method_id"`
	OperatorID      uint             `gorm:"not null" json:"operator_id"`
	OccurredAt      time.Time        `gorm:"index;not null" json:"occurred_at"`
	CreatedAt       time.Time        `json:"created_at"`
}
