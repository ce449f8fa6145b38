package billing

import (
	"testing"
	"time"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/database/dbtest"
	"restoran-pos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustCreate(t *testing.T, db *gorm.DB, v any) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatal(err)
	}
}

func TestRecalculate(t *testing.T) {
	mods := []models.OrderLineModifier{{Name: "Extra", PriceDelta: d("0.75")}}
	lines := []models.OrderLine{
		{Subtotal: LineSubtotal(2, d("3.10"), mods)},
		{Subtotal: LineSubtotal(1, decimal.NewFromInt(5), nil)},
	}
	if want := d("12.70"); !Recalculate(lines).Equal(want) {
		t.Errorf("Recalculate = %s, want %s", Recalculate(lines), want)
	}
	if !Recalculate(nil).IsZero() {
		t.Errorf("empty order must total zero")
	}
	if !LineSubtotal(0, d("9.99"), mods).IsZero() {
		t.Errorf("a line with no units costs nothing")
	}
}

func TestSplitTax(t *testing.T) {
	net, tax := SplitTax(d("119"), d("0.19"))
	if !net.Equal(d("100")) || !tax.Equal(d("19")) {
		t.Errorf("got net %s tax %s", net, tax)
	}
	net, tax = SplitTax(d("10"), d("0.19"))
	if !net.Add(tax).Equal(d("10")) {
		t.Errorf("net + tax must equal the total, got %s + %s", net, tax)
	}
}

type fixture struct {
	db    *gorm.DB
	order models.Order
	line  models.OrderLine
	inv   models.Invoice
}

// newFixture stores an order of 3 × 19.00 with an issued invoice and a 40.00 abono.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{db: db}
	f.order = models.Order{BranchID: 1, ServerID: 7, Channel: models.ChannelTakeaway, State: models.OrderOpen, Total: d("57")}
	mustCreate(t, db, &f.order)
	f.line = models.OrderLine{OrderID: f.order.ID, ProductID: 1, Quantity: 3, UnitPrice: d("19"), Subtotal: d("57"), State: models.ProductionPending}
	mustCreate(t, db, &f.line)
	net, tax := SplitTax(d("57"), d("0.19"))
	f.inv = models.Invoice{OrderID: f.order.ID, BranchID: 1, State: models.InvoiceIssued, Subtotal: net, Tax: tax, Total: d("57"), TaxRate: d("0.19")}
	mustCreate(t, db, &f.inv)
	mustCreate(t, db, &models.Payment{
		InvoiceID: f.inv.ID, OrderID: f.order.ID, PaymentMethodID: 1, OperatorID: 9,
		Amount: d("50"), Change: d("10"), IsPartial: true, CashMovementID: 1, PaidAt: time.Now(),
	})
	return f
}

func (f *fixture) setQuantity(t *testing.T, qty int) {
	t.Helper()
	err := f.db.Model(&models.OrderLine{}).Where("id = ?", f.line.ID).Updates(map[string]any{
		"quantity": qty,
		"subtotal": LineSubtotal(qty, f.line.UnitPrice, nil),
	}).Error
	if err != nil {
		t.Fatal(err)
	}
}

func TestPaidOnOrder(t *testing.T) {
	f := newFixture(t)
	paid, err := PaidOnOrder(f.db, f.order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.Equal(d("40")) {
		t.Errorf("paid = %s, want 40 (change excluded)", paid)
	}

	if err := f.db.Model(&models.Invoice{}).Where("id = ?", f.inv.ID).Update("state", models.InvoiceVoided).Error; err != nil {
		t.Fatal(err)
	}
	paid, err = PaidOnOrder(f.db, f.order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.IsZero() {
		t.Errorf("payments of a voided invoice no longer count, got %s", paid)
	}
}

func TestRefreshTotal(t *testing.T) {
	t.Run("raise carries onto the invoice", func(t *testing.T) {
		f := newFixture(t)
		f.setQuantity(t, 4)
		if err := RefreshTotal(f.db, &f.order); err != nil {
			t.Fatal(err)
		}
		var inv models.Invoice
		f.db.First(&inv, f.inv.ID)
		if !f.order.Total.Equal(d("76")) || !inv.Total.Equal(d("76")) || !inv.Subtotal.Add(inv.Tax).Equal(inv.Total) {
			t.Errorf("order %s invoice %+v", f.order.Total, inv)
		}
	})

	t.Run("drop below the amount paid is refused", func(t *testing.T) {
		f := newFixture(t)
		f.setQuantity(t, 2) // 38 < 40 paid
		err := RefreshTotal(f.db, &f.order)
		if !apperr.Is(err, apperr.KindInvalidState) {
			t.Fatalf("expected InvalidState, got %v", err)
		}
		var o models.Order
		f.db.First(&o, f.order.ID)
		if !o.Total.Equal(d("57")) {
			t.Errorf("total must be untouched, got %s", o.Total)
		}
	})

	t.Run("settled invoice is left alone", func(t *testing.T) {
		f := newFixture(t)
		if err := f.db.Model(&models.Invoice{}).Where("id = ?", f.inv.ID).Update("state", models.InvoiceSettled).Error; err != nil {
			t.Fatal(err)
		}
		f.setQuantity(t, 5)
		if err := RefreshTotal(f.db, &f.order); err != nil {
			t.Fatal(err)
		}
		var inv models.Invoice
		f.db.First(&inv, f.inv.ID)
		if !inv.Total.Equal(d("57")) {
			t.Errorf("settled snapshot changed to %s", inv.Total)
		}
	})
}
