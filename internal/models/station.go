package models

import "time"

type StationKind string

const (
	StationKitchen StationKind = "kitchen"
	StationBar     StationKind = "bar"
	StationOther   StationKind = "other"
)

// Station is a preparation point owning a queue of production tickets.
type Station struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	BranchID  uint        `gorm:"index;not null" json:"branch_id"`
	Name      string      `gorm:"size:100;not null" json:"name"`
	Kind      StationKind `gorm:"size:20;not null" json:"kind"`
	Active    bool        `gorm:"not null;default:true" json:"active"`
	SortOrder int         `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
