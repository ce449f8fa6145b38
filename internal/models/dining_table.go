package models

import "time"

type TableState string

const (
	TableAvailable TableState = "available"
	TableOccupied  TableState = "occupied"
	TablePrecheck  TableState = "precheck"
	TableClosed    TableState = "closed" // out of service
)

type DiningTable struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	BranchID       uint       `gorm:"index;not null" json:"branch_id"`
	ZoneID         *uint      `gorm:"index" json:"zone_id"`
	Label          string     `gorm:"size:50;not null" json:"label"`
	Capacity       int        `gorm:"not null;default:0" json:"capacity"`
	State          TableState `gorm:"size:20;not null;default:'available'" json:"state"`
	CurrentOrderID *uint      `json:"current_order_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
