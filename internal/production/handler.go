package production

import (
	"context"
	"strings"

	"restoran-pos/internal/auth"
	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
)

type TransitionRequest struct {
	State models.ProductionState `json:"state"`
}

func parseStates(raw string) []models.ProductionState {
	var out []models.ProductionState
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, models.ProductionState(s))
		}
	}
	return out
}

// GET /api/stations/:id/tickets?states=pending,in_preparation
func StationQueueHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid station id")
		}
		if err := scope(c, m.CheckStationBranch, uint(id)); err != nil {
			return err
		}
		rows, err := m.StationQueue(c.UserContext(), uint(id), parseStates(c.Query("states")))
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/orders/:id/tickets
func OrderTicketsHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
		}
		if err := scope(c, m.CheckOrderBranch, uint(id)); err != nil {
			return err
		}
		rows, err := m.OrderTickets(c.UserContext(), uint(id))
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// POST /api/tickets/:id/transition
func TransitionTicketHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid ticket id")
		}
		if err := scope(c, m.CheckTicketBranch, uint(id)); err != nil {
			return err
		}
		var body TransitionRequest
		if err := c.BodyParser(&body); err != nil || body.State == "" {
			return fiber.NewError(fiber.StatusBadRequest, "state is required")
		}
		res, err := m.TransitionTicket(c.UserContext(), uint(id), body.State)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// POST /api/ticket-items/:id/transition
func TransitionItemHandler(m *Machine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid ticket item id")
		}
		if err := scope(c, m.CheckItemBranch, uint(id)); err != nil {
			return err
		}
		var body TransitionRequest
		if err := c.BodyParser(&body); err != nil || body.State == "" {
			return fiber.NewError(fiber.StatusBadRequest, "state is required")
		}
		res, err := m.TransitionItem(c.UserContext(), uint(id), body.State)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

func scope(c *fiber.Ctx, check func(context.Context, uint, uint) error, id uint) error {
	op, err := auth.Operator(c)
	if err != nil {
		return err
	}
	return check(c.UserContext(), id, op.BranchID)
}
