package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderOpen             OrderState = "open"
	OrderSentToProduction OrderState = "sent_to_production"
	OrderInPreparation    OrderState = "in_preparation"
	OrderReadyForDelivery OrderState = "ready_for_delivery"
	OrderDelivered        OrderState = "delivered"
	OrderVoided           OrderState = "voided"
)

// OpenOrderStates is the open family: every state an order can hold while the
// table visit is still running.
var OpenOrderStates = []OrderState{
	OrderOpen,
	OrderSentToProduction,
	OrderInPreparation,
	OrderReadyForDelivery,
}

func (s OrderState) IsOpen() bool {
	for _, o := range OpenOrderStates {
		if s == o {
			return true
		}
	}
	return false
}

type OrderChannel string

const (
	ChannelDineIn   OrderChannel = "dine_in"
	ChannelTakeaway OrderChannel = "takeaway"
	ChannelDelivery OrderChannel = "delivery"
)

type Order struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	BranchID   uint            `gorm:"index;not null" json:"branch_id"`
	TableID    *uint           `gorm:"index" json:"table_id"`
	ServerID   uint            `gorm:"index;not null" json:"server_id"`
	Channel    OrderChannel    `gorm:"size:20;not null" json:"channel"`
	State      OrderState      `gorm:"size:30;index;not null" json:"state"`
	Total      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	VoidReason string          `gorm:"size:255" json:"void_reason,omitempty"`
	ClosedAt   *time.Time      `json:"closed_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"lines"`
}

type OrderLine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"index;not null" json:"order_id"`
	ProductID uint            `gorm:"index;not null" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"` // snapshot at add time
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Note      string          `gorm:"size:255" json:"note"`
	State     ProductionState `gorm:"size:20;not null" json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Modifiers []OrderLineModifier `gorm:"foreignKey:OrderLineID" json:"modifiers"`
}

// OrderLineModifier is an option on a line ("extra cheese") with its own price delta
// applied per unit.
type OrderLineModifier struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderLineID uint            `gorm:"index;not null" json:"order_line_id"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	PriceDelta  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price_delta"`
	CreatedAt   time.Time       `json:"created_at"`
}
