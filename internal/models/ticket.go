package models

import (
	"time"

	"gorm.io/gorm"
)

// ProductionState is shared by tickets, ticket items and order lines. Lines and items
// never hold ProductionVoided; the ticket carries it.
type ProductionState string

const (
	ProductionPending       ProductionState = "pending"
	ProductionInPreparation ProductionState = "in_preparation"
	ProductionReady         ProductionState = "ready"
	ProductionDelivered     ProductionState = "delivered"
	ProductionVoided        ProductionState = "voided"
)

// Ticket is a comanda: the part of one order routed to one station.
type Ticket struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"index;not null" json:"order_id"`
	StationID   uint            `gorm:"index;not null" json:"station_id"`
	State       ProductionState `gorm:"size:20;index;not null" json:"state"`
	ReadyAt     *time.Time      `json:"ready_at"`
	DeliveredAt *time.Time      `json:"delivered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Items []TicketItem `gorm:"foreignKey:TicketID" json:"items"`
}

// TicketItem rows are never removed. Units taken back before a station started
// them are soft-deleted so the history survives.
type TicketItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TicketID    uint            `gorm:"index;not null" json:"ticket_id"`
	OrderLineID uint            `gorm:"index;not null" json:"order_line_id"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Note        string          `gorm:"size:255" json:"note"`
	State       ProductionState `gorm:"size:20;not null" json:"state"`
	StartedAt   *time.Time      `json:"started_at"`
	ReadyAt     *time.Time      `json:"ready_at"`
	DeliveredAt *time.Time      `json:"delivered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}
