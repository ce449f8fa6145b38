package settlement

import (
	"restoran-pos/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type RegisterPaymentRequest struct {
	PaymentMethodID uint            `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference"`
	IsPartial       bool            `json:"is_partial"` // abono
}

type RefundOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func orderID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}
	return uint(id), nil
}

// POST /api/orders/:id/invoice
func EnsureInvoiceHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := orderID(c)
		if err != nil {
			return err
		}
		inv, err := l.EnsureInvoice(c.UserContext(), id, op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(inv)
	}
}

// GET /api/orders/:id/settlement
func SummaryHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := orderID(c)
		if err != nil {
			return err
		}
		sum, err := l.Summary(c.UserContext(), id, op.BranchID)
		if err != nil {
			return err
		}
		return c.JSON(sum)
	}
}

// POST /api/orders/:id/payments
func RegisterPaymentHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := orderID(c)
		if err != nil {
			return err
		}
		var body RegisterPaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		res, err := l.RegisterPayment(c.UserContext(), PaymentRequest{
			OrderID:         id,
			BranchID:        op.BranchID,
			OperatorID:      op.UserID,
			PaymentMethodID: body.PaymentMethodID,
			Amount:          body.Amount,
			Reference:       body.Reference,
			IsPartial:       body.IsPartial,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// POST /api/orders/:id/refund
func RefundHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, err := auth.Operator(c)
		if err != nil {
			return err
		}
		id, err := orderID(c)
		if err != nil {
			return err
		}
		var body RefundOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		res, err := l.Refund(c.UserContext(), RefundRequest{
			OrderID:    id,
			BranchID:   op.BranchID,
			OperatorID: op.UserID,
			Reason:     body.Reason,
			Amount:     body.Amount,
		})
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
