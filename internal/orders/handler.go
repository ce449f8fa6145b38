package orders

import (
	"strings"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/auth"
	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
)

type SubmitLinesRequest struct {
	Channel models.OrderChannel `json:"channel"`
	TableID *uint               `json:"table_id"`
	OrderID *uint               `json:"order_id"`
	Lines   []LineInput         `json:"lines"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// POST /api/orders/lines
func SubmitLinesHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		var body SubmitLinesRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		res, err := m.SubmitLines(c.UserContext(), SubmitRequest{
			BranchID: op.BranchID,
			ServerID: op.UserID,
			Channel:  body.Channel,
			TableID:  body.TableID,
			OrderID:  body.OrderID,
			Lines:    body.Lines,
		})
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if res.Created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(res)
	}
}

// GET /api/orders?state=open,in_preparation
func ListOrdersHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		var states []models.OrderState
		for _, s := range strings.Split(c.Query("state"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				states = append(states, models.OrderState(s))
			}
		}
		rows, err := m.List(c.UserContext(), op.BranchID, states)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/orders/:id
func GetOrderHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
		}
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		o, err := m.Get(c.UserContext(), uint(id))
		if err != nil {
			return err
		}
		if o.BranchID != op.BranchID {
			return apperr.NotFoundf("order %d not found", id)
		}
		return c.JSON(o)
	}
}

// GET /api/tables/:id/order
func TableOrderHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid table id")
		}
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		o, err := m.OpenOrderForTable(c.UserContext(), uint(id))
		if err != nil {
			return err
		}
		if o.BranchID != op.BranchID {
			return apperr.NotFoundf("table %d has no open order", id)
		}
		return c.JSON(o)
	}
}

// POST /api/orders/:id/cancel
func CancelOrderHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
		}
		var body CancelOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, err := m.Cancel(c.UserContext(), CancelRequest{
			OrderID:    uint(id),
			BranchID:   op.BranchID,
			OperatorID: op.UserID,
			Reason:     body.Reason,
		})
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}
