package production

import (
	"context"
	"testing"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/database/dbtest"
	"restoran-pos/internal/events"
	"restoran-pos/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	m       *Machine
	rec     *events.Recorder
	order   models.Order
	line    models.OrderLine
	ticket  *models.Ticket
	station models.Station
}

// newFixture seeds one open order with one line and a pending ticket holding two
// items for that line.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	rec := &events.Recorder{}
	f := &fixture{db: db, m: NewMachine(db, rec, zap.NewNop()), rec: rec}

	f.station = models.Station{BranchID: 1, Name: "Grill", Kind: models.StationKitchen, Active: true}
	if err := db.Create(&f.station).Error; err != nil {
		t.Fatal(err)
	}
	f.order = models.Order{BranchID: 1, ServerID: 7, Channel: models.ChannelDineIn, State: models.OrderOpen, Total: decimal.Zero}
	if err := db.Create(&f.order).Error; err != nil {
		t.Fatal(err)
	}
	f.line = models.OrderLine{OrderID: f.order.ID, ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(10),
		Subtotal: decimal.NewFromInt(30), State: models.ProductionPending}
	if err := db.Create(&f.line).Error; err != nil {
		t.Fatal(err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		tk, created, err := f.m.EnsureTicket(tx, f.order.ID, f.station.ID)
		if err != nil {
			return err
		}
		if !created {
			t.Errorf("expected a new ticket")
		}
		if _, err := f.m.AddItem(tx, tk, f.line.ID, 2, ""); err != nil {
			return err
		}
		if _, err := f.m.AddItem(tx, tk, f.line.ID, 1, "no onion"); err != nil {
			return err
		}
		f.ticket = tk
		return f.m.SyncOrderState(tx, &f.order)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func (f *fixture) items(t *testing.T) []models.TicketItem {
	t.Helper()
	var items []models.TicketItem
	if err := f.db.Where("ticket_id = ?", f.ticket.ID).Order("id asc").Find(&items).Error; err != nil {
		t.Fatal(err)
	}
	return items
}

func (f *fixture) reloadOrder(t *testing.T) models.Order {
	t.Helper()
	var o models.Order
	if err := f.db.First(&o, f.order.ID).Error; err != nil {
		t.Fatal(err)
	}
	return o
}

func TestEnsureTicket_ReusesLiveTicket(t *testing.T) {
	f := newFixture(t)
	if f.reloadOrder(t).State != models.OrderSentToProduction {
		t.Fatalf("expected sent_to_production after first ticket")
	}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		tk, created, err := f.m.EnsureTicket(tx, f.order.ID, f.station.ID)
		if err != nil {
			return err
		}
		if created || tk.ID != f.ticket.ID {
			t.Errorf("expected ticket %d to be reused, got %d (created=%v)", f.ticket.ID, tk.ID, created)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTransitionItem_PromotesOnlyWhenAllDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	items := f.items(t)

	res, err := f.m.TransitionItem(ctx, items[0].ID, models.ProductionInPreparation)
	if err != nil {
		t.Fatalf("start item: %v", err)
	}
	if res.Ticket.State != models.ProductionInPreparation {
		t.Errorf("first started item should start the ticket, got %s", res.Ticket.State)
	}
	if f.reloadOrder(t).State != models.OrderInPreparation {
		t.Errorf("expected order in_preparation")
	}

	res, err = f.m.TransitionItem(ctx, items[0].ID, models.ProductionReady)
	if err != nil {
		t.Fatal(err)
	}
	if res.Promoted || res.Ticket.State == models.ProductionReady {
		t.Fatalf("ticket must not be ready while item %d is pending", items[1].ID)
	}
	if len(f.rec.OfType(events.TicketReady)) != 0 {
		t.Fatalf("no ticket_ready expected yet")
	}

	if _, err := f.m.TransitionItem(ctx, items[1].ID, models.ProductionInPreparation); err != nil {
		t.Fatal(err)
	}
	res, err = f.m.TransitionItem(ctx, items[1].ID, models.ProductionReady)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Promoted || res.Ticket.State != models.ProductionReady || res.Ticket.ReadyAt == nil {
		t.Fatalf("expected promotion to ready, got %+v", res.Ticket)
	}
	if got := len(f.rec.OfType(events.TicketReady)); got != 1 {
		t.Errorf("expected one ticket_ready event, got %d", got)
	}
	if f.reloadOrder(t).State != models.OrderReadyForDelivery {
		t.Errorf("expected order ready_for_delivery")
	}

	var line models.OrderLine
	f.db.First(&line, f.line.ID)
	if line.State != models.ProductionReady {
		t.Errorf("expected line ready, got %s", line.State)
	}
}

func TestTransitionItem_RejectsSkips(t *testing.T) {
	f := newFixture(t)
	items := f.items(t)
	_, err := f.m.TransitionItem(context.Background(), items[0].ID, models.ProductionDelivered)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if _, err := f.m.TransitionItem(context.Background(), 9999, models.ProductionReady); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestTransitionTicket_ItemsFollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionReady); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("pending -> ready must be rejected, got %v", err)
	}
	if _, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionInPreparation); err != nil {
		t.Fatal(err)
	}
	res, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionReady)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ticket.State != models.ProductionReady {
		t.Fatalf("expected ready, got %s", res.Ticket.State)
	}
	for _, it := range f.items(t) {
		if it.State != models.ProductionReady || it.StartedAt == nil || it.ReadyAt == nil {
			t.Errorf("item %d not advanced with timestamps: %+v", it.ID, it)
		}
	}
	if got := len(f.rec.OfType(events.TicketReady)); got != 1 {
		t.Errorf("expected one ticket_ready event, got %d", got)
	}

	if _, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionDelivered); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionVoided); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("delivered ticket cannot be voided, got %v", err)
	}
}

func TestAddItem_ReopensReadyTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionInPreparation); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.TransitionTicket(ctx, f.ticket.ID, models.ProductionReady); err != nil {
		t.Fatal(err)
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		tk, created, err := f.m.EnsureTicket(tx, f.order.ID, f.station.ID)
		if err != nil {
			return err
		}
		if created {
			t.Errorf("ready ticket is still live and should be reused")
		}
		if _, err := f.m.AddItem(tx, tk, f.line.ID, 1, ""); err != nil {
			return err
		}
		if tk.State != models.ProductionInPreparation {
			t.Errorf("expected ticket back in preparation, got %s", tk.State)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestShrinkPending(t *testing.T) {
	f := newFixture(t)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.m.ShrinkPending(tx, f.line.ID, 4)
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState when removing more than pending, got %v", err)
	}

	// newest item (qty 1) goes first, then one unit off the older one
	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.m.ShrinkPending(tx, f.line.ID, 2)
	})
	if err != nil {
		t.Fatal(err)
	}
	items := f.items(t)
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("expected one item with qty 1, got %+v", items)
	}

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.m.ShrinkPending(tx, f.line.ID, 1)
	})
	if err != nil {
		t.Fatal(err)
	}
	var tk models.Ticket
	f.db.First(&tk, f.ticket.ID)
	if tk.State != models.ProductionVoided {
		t.Errorf("emptied ticket should be voided, got %s", tk.State)
	}

	if left := f.items(t); len(left) != 0 {
		t.Errorf("removed items must not show, got %+v", left)
	}
	var kept []models.TicketItem
	if err := f.db.Unscoped().Where("ticket_id = ?", f.ticket.ID).Find(&kept).Error; err != nil {
		t.Fatal(err)
	}
	if len(kept) != 2 {
		t.Fatalf("expected both item rows kept, got %d", len(kept))
	}
	for _, it := range kept {
		if !it.DeletedAt.Valid {
			t.Errorf("item %d should be marked removed", it.ID)
		}
	}
}

func TestTransitionTicket_VoidUnbillsLines(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("total", decimal.NewFromInt(30)).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.TransitionTicket(context.Background(), f.ticket.ID, models.ProductionVoided); err != nil {
		t.Fatal(err)
	}
	var line models.OrderLine
	f.db.First(&line, f.line.ID)
	if line.Quantity != 0 || !line.Subtotal.IsZero() {
		t.Errorf("voided units must leave the line, got qty %d subtotal %s", line.Quantity, line.Subtotal)
	}
	o := f.reloadOrder(t)
	if !o.Total.IsZero() || o.State != models.OrderOpen {
		t.Errorf("expected an open order with nothing billed, got %s %s", o.State, o.Total)
	}
	if n := len(f.items(t)); n != 2 {
		t.Errorf("items of a voided ticket stay on it, got %d", n)
	}
}

func TestTransitionTicket_VoidKeepsPaidUnits(t *testing.T) {
	f := newFixture(t)
	inv := models.Invoice{OrderID: f.order.ID, BranchID: 1, State: models.InvoiceIssued,
		Subtotal: decimal.NewFromInt(30), Tax: decimal.Zero, Total: decimal.NewFromInt(30), TaxRate: decimal.Zero}
	if err := f.db.Create(&inv).Error; err != nil {
		t.Fatal(err)
	}
	p := models.Payment{InvoiceID: inv.ID, OrderID: f.order.ID, PaymentMethodID: 1, OperatorID: 9,
		Amount: decimal.NewFromInt(10), Change: decimal.Zero, IsPartial: true, CashMovementID: 1}
	if err := f.db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}

	_, err := f.m.TransitionTicket(context.Background(), f.ticket.ID, models.ProductionVoided)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("voiding paid units must go through a refund, got %v", err)
	}
	var tk models.Ticket
	f.db.First(&tk, f.ticket.ID)
	if tk.State == models.ProductionVoided {
		t.Errorf("ticket must stay live after the rejected void")
	}
}

func TestTransitionTicket_MissingOrder(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Delete(&models.Order{}, f.order.ID).Error; err != nil {
		t.Fatal(err)
	}
	_, err := f.m.TransitionTicket(context.Background(), f.ticket.ID, models.ProductionInPreparation)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestShrinkPending_StartedWorkStays(t *testing.T) {
	f := newFixture(t)
	items := f.items(t)
	if _, err := f.m.TransitionItem(context.Background(), items[0].ID, models.ProductionInPreparation); err != nil {
		t.Fatal(err)
	}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.m.ShrinkPending(tx, f.line.ID, 2)
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestVoidOrderTickets(t *testing.T) {
	f := newFixture(t)
	var ids []uint
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = f.m.VoidOrderTickets(tx, f.order.ID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != f.ticket.ID {
		t.Fatalf("expected ticket %d voided, got %v", f.ticket.ID, ids)
	}
	queue, err := f.m.StationQueue(context.Background(), f.station.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 0 {
		t.Errorf("voided tickets must leave the station queue, got %d", len(queue))
	}
}

func TestStationQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	queue, err := f.m.StationQueue(ctx, f.station.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 || len(queue[0].Items) != 2 {
		t.Fatalf("unexpected queue %+v", queue)
	}

	ready, err := f.m.StationQueue(ctx, f.station.ID, []models.ProductionState{models.ProductionReady})
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 0 {
		t.Errorf("expected no ready tickets, got %d", len(ready))
	}

	tickets, err := f.m.OrderTickets(ctx, f.order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 1 {
		t.Errorf("expected 1 ticket for the order, got %d", len(tickets))
	}
}

func TestTransitionTicket_ClosedOrder(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("state", models.OrderVoided).Error; err != nil {
		t.Fatal(err)
	}
	_, err := f.m.TransitionTicket(context.Background(), f.ticket.ID, models.ProductionInPreparation)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState for a voided order, got %v", err)
	}
}
