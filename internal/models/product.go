package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable menu item. Price is the current catalog price; order lines
// keep their own snapshot.
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	BranchID  uint            `gorm:"index;not null" json:"branch_id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	StationID *uint           `gorm:"index" json:"station_id"`
	Active    bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
