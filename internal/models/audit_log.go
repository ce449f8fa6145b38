package models

import "time"

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionVoid   AuditAction = "void"
	AuditActionClose  AuditAction = "close"
)

// AuditLog rows are append-only. Settlement history is never rewritten, so there is
// no undo.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	BranchID *uint `gorm:"index" json:"branch_id"`

	UserID uint `gorm:"index" json:"user_id"`

	// "order", "payment", "refund", "cash_session", ...
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action AuditAction `gorm:"size:20" json:"action"`

	Description string `gorm:"size:255" json:"description"`

	BeforeData string `gorm:"type:text" json:"before_data"`
	AfterData  string `gorm:"type:text" json:"after_data"`
}
