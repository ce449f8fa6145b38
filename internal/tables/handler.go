package tables

import (
	"restoran-pos/internal/apperr"
	"restoran-pos/internal/auth"
	"restoran-pos/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateTableRequest struct {
	ZoneID   *uint  `json:"zone_id"`
	Label    string `json:"label"`
	Capacity int    `json:"capacity"`
}

// POST /api/tables
func CreateTableHandler(s *Synchronizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		var body CreateTableRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		t, err := s.Create(c.UserContext(), CreateRequest{
			BranchID: op.BranchID,
			ZoneID:   body.ZoneID,
			Label:    body.Label,
			Capacity: body.Capacity,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	}
}

// GET /api/tables?zone_id=2
func ListTablesHandler(s *Synchronizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		var zoneID *uint
		if z := c.QueryInt("zone_id"); z > 0 {
			v := uint(z)
			zoneID = &v
		}
		rows, err := s.List(c.UserContext(), op.BranchID, zoneID)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/tables/:id
func GetTableHandler(s *Synchronizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := ownTable(c, s)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// POST /api/tables/:id/precheck
func PrecheckHandler(s *Synchronizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		own, err := ownTable(c, s)
		if err != nil {
			return err
		}
		t, err := s.RequestPrecheck(c.UserContext(), own.ID)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// POST /api/tables/:id/out-of-service and /api/tables/:id/in-service
func ServiceStateHandler(s *Synchronizer, outOfService bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		own, err := ownTable(c, s)
		if err != nil {
			return err
		}
		t, err := s.SetOutOfService(c.UserContext(), own.ID, outOfService)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// ownTable loads the :id table; tables of other branches read as not found.
func ownTable(c *fiber.Ctx, s *Synchronizer) (*models.DiningTable, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid table id")
	}
	op, err := auth.Operator(c)
	if err != nil {
		return nil, err
	}
	t, err := s.Get(c.UserContext(), uint(id))
	if err != nil {
		return nil, err
	}
	if t.BranchID != op.BranchID {
		return nil, apperr.NotFoundf("table %d not found", id)
	}
	return t, nil
}
