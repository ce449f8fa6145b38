package audit

import (
	"restoran-pos/internal/auth"
	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	BranchID    *uint              `json:"branch_id"`
	UserID      uint               `json:"user_id"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	Before      string             `json:"before"`
	After       string             `json:"after"`
}

// GET /api/audit-logs?entity_type=order&entity_id=1&user_id=3
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}

		f := Filter{
			BranchID:   &op.BranchID,
			EntityType: c.Query("entity_type"),
		}
		if uid := c.QueryInt("user_id"); uid > 0 {
			f.UserID = uint(uid)
		}
		if eid := c.QueryInt("entity_id"); eid > 0 {
			f.EntityID = uint(eid)
		}

		logs, err := List(db.WithContext(c.UserContext()), f)
		if err != nil {
			return err
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				BranchID:    l.BranchID,
				UserID:      l.UserID,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				Before:      l.BeforeData,
				After:       l.AfterData,
			})
		}
		return c.JSON(resp)
	}
}
