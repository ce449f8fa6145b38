package catalog

import (
	"restoran-pos/internal/auth"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GET /api/catalog/products
func ListProductsHandler(db *gorm.DB, g *Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		rows, err := g.ListProducts(db.WithContext(c.UserContext()), op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/catalog/stations
func ListStationsHandler(db *gorm.DB, g *Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		rows, err := g.ActiveStations(db.WithContext(c.UserContext()), op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/catalog/payment-methods
func ListPaymentMethodsHandler(db *gorm.DB, g *Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := g.PaymentMethods(db.WithContext(c.UserContext()))
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}
