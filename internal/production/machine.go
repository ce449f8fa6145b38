// Package production routes order lines to stations and drives the comanda
// (ticket) and ticket item lifecycle.
package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/billing"
	"restoran-pos/internal/events"
	"restoran-pos/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Machine struct {
	db  *gorm.DB
	pub events.Publisher
	log *zap.Logger
	now func() time.Time
}

func NewMachine(db *gorm.DB, pub events.Publisher, log *zap.Logger) *Machine {
	return &Machine{db: db, pub: pub, log: log, now: time.Now}
}

// TransitionResult is what a kitchen terminal gets back after moving a ticket or item.
type TransitionResult struct {
	Ticket   models.Ticket      `json:"ticket"`
	Item     *models.TicketItem `json:"item,omitempty"`
	Promoted bool               `json:"promoted"` // ticket became ready by inference
}

// EnsureTicket returns the live ticket for the (order, station) pair, opening a pending
// one when there is none. The caller holds the order lock.
func (m *Machine) EnsureTicket(tx *gorm.DB, orderID, stationID uint) (*models.Ticket, bool, error) {
	var t models.Ticket
	err := tx.Where("order_id = ? AND station_id = ? AND state NOT IN ?", orderID, stationID,
		[]models.ProductionState{models.ProductionDelivered, models.ProductionVoided}).
		First(&t).Error
	if err == nil {
		return &t, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find ticket: %w", err)
	}

	t = models.Ticket{OrderID: orderID, StationID: stationID, State: models.ProductionPending}
	if err := tx.Create(&t).Error; err != nil {
		return nil, false, fmt.Errorf("create ticket: %w", err)
	}
	return &t, true, nil
}

// AddItem appends a pending item. A ticket that was already ready goes back to
// in_preparation since it now has unfinished work.
func (m *Machine) AddItem(tx *gorm.DB, t *models.Ticket, orderLineID uint, quantity int, note string) (*models.TicketItem, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("ticket item quantity must be positive")
	}
	if !isLive(t.State) {
		return nil, apperr.InvalidStatef("ticket %d is %s", t.ID, t.State)
	}
	item := models.TicketItem{
		TicketID:    t.ID,
		OrderLineID: orderLineID,
		Quantity:    quantity,
		Note:        note,
		State:       models.ProductionPending,
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create ticket item: %w", err)
	}
	if t.State == models.ProductionReady {
		if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Updates(map[string]any{
			"state":    models.ProductionInPreparation,
			"ready_at": nil,
		}).Error; err != nil {
			return nil, fmt.Errorf("reopen ticket: %w", err)
		}
		t.State = models.ProductionInPreparation
		t.ReadyAt = nil
	}
	return &item, nil
}

// ShrinkPending removes qty units of an order line that have not reached a station yet,
// newest items first. Work already started cannot be taken back.
func (m *Machine) ShrinkPending(tx *gorm.DB, orderLineID uint, qty int) error {
	var items []models.TicketItem
	err := tx.Select("ticket_items.*").
		Joins("JOIN tickets ON tickets.id = ticket_items.ticket_id").
		Where("ticket_items.order_line_id = ? AND ticket_items.state = ? AND tickets.state NOT IN ?",
			orderLineID, models.ProductionPending,
			[]models.ProductionState{models.ProductionDelivered, models.ProductionVoided}).
		Order("ticket_items.id desc").
		Find(&items).Error
	if err != nil {
		return fmt.Errorf("load pending items: %w", err)
	}

	available := 0
	for _, it := range items {
		available += it.Quantity
	}
	if available < qty {
		return apperr.InvalidStatef("only %d unit(s) of line %d are still pending, cannot remove %d", available, orderLineID, qty)
	}

	touched := map[uint]bool{}
	for _, it := range items {
		if qty == 0 {
			break
		}
		take := min(it.Quantity, qty)
		qty -= take
		touched[it.TicketID] = true
		if take == it.Quantity {
			// soft delete, the row stays for the ticket history
			if err := tx.Delete(&models.TicketItem{}, it.ID).Error; err != nil {
				return fmt.Errorf("remove ticket item: %w", err)
			}
			continue
		}
		if err := tx.Model(&models.TicketItem{}).Where("id = ?", it.ID).
			Update("quantity", it.Quantity-take).Error; err != nil {
			return fmt.Errorf("shrink ticket item: %w", err)
		}
	}

	for ticketID := range touched {
		var t models.Ticket
		if err := tx.Preload("Items").First(&t, ticketID).Error; err != nil {
			return fmt.Errorf("reload ticket: %w", err)
		}
		if len(t.Items) == 0 {
			if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Update("state", models.ProductionVoided).Error; err != nil {
				return fmt.Errorf("void empty ticket: %w", err)
			}
			continue
		}
		if _, err := m.promoteIfDone(tx, &t); err != nil {
			return err
		}
	}
	return nil
}

// TransitionTicket applies a requested ticket transition. Items follow the ticket.
func (m *Machine) TransitionTicket(ctx context.Context, ticketID uint, next models.ProductionState) (*TransitionResult, error) {
	var (
		res   TransitionResult
		batch events.Batch
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, t, err := m.lockTicket(tx, ticketID)
		if err != nil {
			return err
		}
		if !CanTransitionTicket(t.State, next) {
			return apperr.InvalidStatef("ticket %d cannot go from %s to %s", t.ID, t.State, next)
		}

		now := m.now()
		updates := map[string]any{"state": next}
		switch next {
		case models.ProductionReady:
			updates["ready_at"] = now
		case models.ProductionDelivered:
			updates["delivered_at"] = now
		}
		if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		t.State = next

		if next == models.ProductionVoided {
			if err := m.unbill(tx, order, t.Items); err != nil {
				return err
			}
		} else {
			for i := range t.Items {
				if err := m.advanceItemTo(tx, &t.Items[i], next, now); err != nil {
					return err
				}
			}
		}
		if err := m.syncLines(tx, t.Items); err != nil {
			return err
		}
		if err := m.SyncOrderState(tx, order); err != nil {
			return err
		}
		if next == models.ProductionReady {
			batch.Add(readyEvent(order, t))
		}
		res.Ticket = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	batch.Flush(ctx, m.pub, m.log)
	m.log.Info("ticket transitioned",
		zap.Uint("ticket_id", ticketID),
		zap.String("state", string(next)),
	)
	return &res, nil
}

// TransitionItem applies a requested item transition, then infers the ticket state:
// the first started item starts the ticket, and the ticket becomes ready once every
// item is ready or delivered.
func (m *Machine) TransitionItem(ctx context.Context, itemID uint, next models.ProductionState) (*TransitionResult, error) {
	var (
		res   TransitionResult
		batch events.Batch
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var probe models.TicketItem
		if err := tx.First(&probe, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("ticket item %d not found", itemID)
			}
			return fmt.Errorf("load ticket item: %w", err)
		}
		order, t, err := m.lockTicket(tx, probe.TicketID)
		if err != nil {
			return err
		}
		if !isLive(t.State) {
			return apperr.InvalidStatef("ticket %d is %s", t.ID, t.State)
		}

		var item *models.TicketItem
		for i := range t.Items {
			if t.Items[i].ID == itemID {
				item = &t.Items[i]
			}
		}
		if item == nil {
			return apperr.NotFoundf("ticket item %d not found", itemID)
		}
		if !CanTransitionItem(item.State, next) {
			return apperr.InvalidStatef("ticket item %d cannot go from %s to %s", item.ID, item.State, next)
		}
		now := m.now()
		if err := m.setItemState(tx, item, next, now); err != nil {
			return err
		}

		if t.State == models.ProductionPending && next != models.ProductionPending {
			if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Update("state", models.ProductionInPreparation).Error; err != nil {
				return fmt.Errorf("start ticket: %w", err)
			}
			t.State = models.ProductionInPreparation
		}
		promoted, err := m.promoteIfDone(tx, t)
		if err != nil {
			return err
		}
		if err := m.syncLines(tx, []models.TicketItem{*item}); err != nil {
			return err
		}
		if err := m.SyncOrderState(tx, order); err != nil {
			return err
		}
		if promoted {
			batch.Add(readyEvent(order, t))
		}
		res = TransitionResult{Ticket: *t, Item: item, Promoted: promoted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	batch.Flush(ctx, m.pub, m.log)
	m.log.Info("ticket item transitioned",
		zap.Uint("item_id", itemID),
		zap.String("state", string(next)),
		zap.Bool("ticket_promoted", res.Promoted),
	)
	return &res, nil
}

// VoidOrderTickets voids every live ticket of the order and returns their ids.
func (m *Machine) VoidOrderTickets(tx *gorm.DB, orderID uint) ([]uint, error) {
	var ids []uint
	err := tx.Model(&models.Ticket{}).
		Where("order_id = ? AND state NOT IN ?", orderID,
			[]models.ProductionState{models.ProductionDelivered, models.ProductionVoided}).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find live tickets: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := tx.Model(&models.Ticket{}).Where("id IN ?", ids).
		Update("state", models.ProductionVoided).Error; err != nil {
		return nil, fmt.Errorf("void tickets: %w", err)
	}
	return ids, nil
}

// DeliverOrderTickets closes out every live ticket of a paid order as delivered,
// stamping the steps its items skipped.
func (m *Machine) DeliverOrderTickets(tx *gorm.DB, orderID uint) error {
	var live []models.Ticket
	err := tx.Preload("Items").
		Where("order_id = ? AND state NOT IN ?", orderID,
			[]models.ProductionState{models.ProductionDelivered, models.ProductionVoided}).
		Find(&live).Error
	if err != nil {
		return fmt.Errorf("find live tickets: %w", err)
	}
	now := m.now()
	for i := range live {
		t := &live[i]
		for j := range t.Items {
			if err := m.advanceItemTo(tx, &t.Items[j], models.ProductionDelivered, now); err != nil {
				return err
			}
		}
		updates := map[string]any{"state": models.ProductionDelivered, "delivered_at": now}
		if t.ReadyAt == nil {
			updates["ready_at"] = now
		}
		if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("deliver ticket: %w", err)
		}
		if err := m.syncLines(tx, t.Items); err != nil {
			return err
		}
	}
	return nil
}

// SyncOrderState re-derives an open order's state from its tickets. Settled and voided
// orders are left alone.
func (m *Machine) SyncOrderState(tx *gorm.DB, order *models.Order) error {
	if !order.State.IsOpen() {
		return nil
	}
	var states []models.ProductionState
	if err := tx.Model(&models.Ticket{}).Where("order_id = ?", order.ID).
		Pluck("state", &states).Error; err != nil {
		return fmt.Errorf("load ticket states: %w", err)
	}
	next := deriveOrderState(states)
	if next == order.State {
		return nil
	}
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("state", next).Error; err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	order.State = next
	return nil
}

// StationQueue is the kitchen display view of one station.
func (m *Machine) StationQueue(ctx context.Context, stationID uint, states []models.ProductionState) ([]models.Ticket, error) {
	if len(states) == 0 {
		states = []models.ProductionState{
			models.ProductionPending,
			models.ProductionInPreparation,
			models.ProductionReady,
		}
	}
	var rows []models.Ticket
	err := m.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("station_id = ? AND state IN ?", stationID, states).
		Order("created_at asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("station queue: %w", err)
	}
	return rows, nil
}

func (m *Machine) OrderTickets(ctx context.Context, orderID uint) ([]models.Ticket, error) {
	var rows []models.Ticket
	err := m.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("order tickets: %w", err)
	}
	return rows, nil
}

// lockTicket takes the order lock first, then the ticket lock, and returns both with
// the ticket's items loaded.
func (m *Machine) lockTicket(tx *gorm.DB, ticketID uint) (*models.Order, *models.Ticket, error) {
	var probe models.Ticket
	if err := tx.First(&probe, ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFoundf("ticket %d not found", ticketID)
		}
		return nil, nil, fmt.Errorf("load ticket: %w", err)
	}

	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, probe.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFoundf("order %d of ticket %d not found", probe.OrderID, ticketID)
		}
		return nil, nil, fmt.Errorf("lock order: %w", err)
	}
	if !order.State.IsOpen() {
		return nil, nil, apperr.InvalidStatef("order %d is %s", order.ID, order.State)
	}

	var t models.Ticket
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&t, ticketID).Error
	if err != nil {
		return nil, nil, fmt.Errorf("lock ticket: %w", err)
	}
	return &order, &t, nil
}

// unbill takes the undelivered units of a voided ticket off their order lines and
// recomputes the order total. A later submission of the same quantity routes them again.
func (m *Machine) unbill(tx *gorm.DB, order *models.Order, items []models.TicketItem) error {
	voided := map[uint]int{}
	for _, it := range items {
		if it.State == models.ProductionDelivered {
			continue // already served, still charged
		}
		voided[it.OrderLineID] += it.Quantity
	}
	for lineID, qty := range voided {
		var line models.OrderLine
		if err := tx.Preload("Modifiers").First(&line, lineID).Error; err != nil {
			return fmt.Errorf("load order line: %w", err)
		}
		line.Quantity = max(line.Quantity-qty, 0)
		line.Subtotal = billing.LineSubtotal(line.Quantity, line.UnitPrice, line.Modifiers)
		if err := tx.Model(&models.OrderLine{}).Where("id = ?", line.ID).Updates(map[string]any{
			"quantity": line.Quantity,
			"subtotal": line.Subtotal,
		}).Error; err != nil {
			return fmt.Errorf("unbill order line: %w", err)
		}
	}
	return billing.RefreshTotal(tx, order)
}

// promoteIfDone moves a live, unfinished ticket to ready when all its items are done.
func (m *Machine) promoteIfDone(tx *gorm.DB, t *models.Ticket) (bool, error) {
	if t.State != models.ProductionPending && t.State != models.ProductionInPreparation {
		return false, nil
	}
	if !allDone(t.Items) {
		return false, nil
	}
	now := m.now()
	if err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Updates(map[string]any{
		"state":    models.ProductionReady,
		"ready_at": now,
	}).Error; err != nil {
		return false, fmt.Errorf("promote ticket: %w", err)
	}
	t.State = models.ProductionReady
	t.ReadyAt = &now
	return true, nil
}

// advanceItemTo walks an item forward until it reaches target, stamping every step.
func (m *Machine) advanceItemTo(tx *gorm.DB, it *models.TicketItem, target models.ProductionState, now time.Time) error {
	for rank[it.State] < rank[target] {
		if err := m.setItemState(tx, it, forward[it.State], now); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) setItemState(tx *gorm.DB, it *models.TicketItem, next models.ProductionState, now time.Time) error {
	updates := map[string]any{"state": next}
	switch next {
	case models.ProductionInPreparation:
		updates["started_at"] = now
		it.StartedAt = &now
	case models.ProductionReady:
		updates["ready_at"] = now
		it.ReadyAt = &now
	case models.ProductionDelivered:
		updates["delivered_at"] = now
		it.DeliveredAt = &now
	}
	if err := tx.Model(&models.TicketItem{}).Where("id = ?", it.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update ticket item: %w", err)
	}
	it.State = next
	return nil
}

// syncLines mirrors item progress onto the order lines the items belong to.
func (m *Machine) syncLines(tx *gorm.DB, items []models.TicketItem) error {
	seen := map[uint]bool{}
	for _, it := range items {
		if seen[it.OrderLineID] {
			continue
		}
		seen[it.OrderLineID] = true
		if err := m.SyncLineState(tx, it.OrderLineID); err != nil {
			return err
		}
	}
	return nil
}

// SyncLineState sets a line's state to the slowest of its items on non-voided tickets.
func (m *Machine) SyncLineState(tx *gorm.DB, orderLineID uint) error {
	var states []models.ProductionState
	err := tx.Model(&models.TicketItem{}).
		Joins("JOIN tickets ON tickets.id = ticket_items.ticket_id").
		Where("ticket_items.order_line_id = ? AND tickets.state <> ?", orderLineID, models.ProductionVoided).
		Pluck("ticket_items.state", &states).Error
	if err != nil {
		return fmt.Errorf("load line item states: %w", err)
	}
	if err := tx.Model(&models.OrderLine{}).Where("id = ?", orderLineID).
		Update("state", leastAdvanced(states)).Error; err != nil {
		return fmt.Errorf("update line state: %w", err)
	}
	return nil
}

func readyEvent(order *models.Order, t *models.Ticket) events.Event {
	return events.New(events.TicketReady, order.BranchID, events.TicketReadyPayload{
		TicketID:  t.ID,
		OrderID:   order.ID,
		StationID: t.StationID,
	})
}
