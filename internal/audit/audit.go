package audit

import (
	"encoding/json"
	"fmt"

	"restoran-pos/internal/models"

	"gorm.io/gorm"
)

type Entry struct {
	BranchID    *uint
	UserID      uint
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Write appends an audit row using tx, so the row commits or rolls back with the
// change it describes.
func Write(tx *gorm.DB, e Entry) error {
	row := models.AuditLog{
		BranchID:    e.BranchID,
		UserID:      e.UserID,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Description: e.Description,
		BeforeData:  marshal(e.Before),
		AfterData:   marshal(e.After),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func marshal(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

type Filter struct {
	BranchID   *uint
	UserID     uint
	EntityType string
	EntityID   uint
}

func List(db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.Model(&models.AuditLog{})
	if f.BranchID != nil {
		q = q.Where("branch_id = ?", *f.BranchID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
