package cashflow

import (
	"fmt"

	"restoran-pos/internal/auth"
	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type OpenSessionRequest struct {
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

type CreateMovementRequest struct {
	Direction models.CashDirection    `json:"direction"` // "in" | "out"
	Kind      models.CashMovementKind `json:"kind"`      // "manual_in" | "manual_out"
	Amount    decimal.Decimal         `json:"amount"`
	Concept   string                  `json:"concept"`
}

type CloseSessionRequest struct {
	Counted decimal.Decimal `json:"counted"`
	Notes   string          `json:"notes"`
}

func sessionID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid cash session id")
	}
	return uint(id), nil
}

// POST /api/cash-sessions
func OpenSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		var body OpenSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		s, err := m.Open(c.UserContext(), OpenRequest{
			BranchID:     op.BranchID,
			OperatorID:   op.UserID,
			OpeningFloat: body.OpeningFloat,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(s)
	}
}

// GET /api/cash-sessions/current
func CurrentSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		s, err := m.Current(c.UserContext(), op.UserID, op.BranchID)
		if err != nil {
			return err
		}
		rep, err := m.Report(c.UserContext(), s.ID, op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(rep)
	}
}

// GET /api/cash-sessions/:id
func SessionReportHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := sessionID(c)
		if err != nil {
			return err
		}
		rep, err := m.Report(c.UserContext(), id, op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(rep)
	}
}

// POST /api/cash-sessions/:id/movements
func CreateMovementHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := sessionID(c)
		if err != nil {
			return err
		}
		var body CreateMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		mv, err := m.RecordMovement(c.UserContext(), RecordRequest{
			SessionID:  id,
			BranchID:   op.BranchID,
			OperatorID: op.UserID,
			MovementInput: MovementInput{
				Direction: body.Direction,
				Kind:      body.Kind,
				Amount:    body.Amount,
				Concept:   body.Concept,
			},
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(mv)
	}
}

// GET /api/cash-sessions/:id/movements
func ListMovementsHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := sessionID(c)
		if err != nil {
			return err
		}
		rows, err := m.Movements(c.UserContext(), id, op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// POST /api/cash-sessions/:id/begin-close
func BeginCloseHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := sessionID(c)
		if err != nil {
			return err
		}
		s, err := m.BeginClose(c.UserContext(), id, op.BranchID, op.UserID)
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// POST /api/cash-sessions/:id/close
func CloseSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := sessionID(c)
		if err != nil {
			return err
		}
		var body CloseSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		cc, err := m.Close(c.UserContext(), CloseRequest{
			SessionID:  id,
			BranchID:   op.BranchID,
			OperatorID: op.UserID,
			Counted:    body.Counted,
			Notes:      body.Notes,
		})
		if err != nil {
			return err
		}
		return c.JSON(cc)
	}
}

// GET /api/cash-sessions/:id/export
func ExportCloseHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := sessionID(c)
		if err != nil {
			return err
		}
		buf, err := m.ExportClose(c.UserContext(), id, op.BranchID)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="cash-close-%d.xlsx"`, id))
		return c.Send(buf.Bytes())
	}
}
