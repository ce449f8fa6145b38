// Package orders owns the order aggregate: line merging, totals and cancellation.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/audit"
	"restoran-pos/internal/billing"
	"restoran-pos/internal/catalog"
	"restoran-pos/internal/events"
	"restoran-pos/internal/models"
	"restoran-pos/internal/production"
	"restoran-pos/internal/tables"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Manager struct {
	db      *gorm.DB
	catalog *catalog.Gateway
	tables  *tables.Synchronizer
	router  *production.Router
	machine *production.Machine
	pub     events.Publisher
	log     *zap.Logger
}

func NewManager(
	db *gorm.DB,
	g *catalog.Gateway,
	ts *tables.Synchronizer,
	router *production.Router,
	machine *production.Machine,
	pub events.Publisher,
	log *zap.Logger,
) *Manager {
	return &Manager{db: db, catalog: g, tables: ts, router: router, machine: machine, pub: pub, log: log}
}

type ModifierInput struct {
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

type LineInput struct {
	ProductID uint            `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Note      string          `json:"note"`
	Modifiers []ModifierInput `json:"modifiers"`
}

type SubmitRequest struct {
	BranchID uint
	ServerID uint
	Channel  models.OrderChannel
	TableID  *uint // dine_in
	OrderID  *uint // takeaway/delivery: add to this open order instead of a new one
	Lines    []LineInput
}

// RoutedLine is one quantity delta sent to a station.
type RoutedLine struct {
	LineID    uint `json:"line_id"`
	StationID uint `json:"station_id"`
	TicketID  uint `json:"ticket_id"`
	Quantity  int  `json:"quantity"`
}

type SubmitResult struct {
	Order   models.Order `json:"order"`
	Created bool         `json:"created"`
	Routed  []RoutedLine `json:"routed"`
}

func (r *SubmitRequest) validate() error {
	if r.Channel == "" {
		r.Channel = models.ChannelDineIn
	}
	switch r.Channel {
	case models.ChannelDineIn:
		if r.TableID == nil || *r.TableID == 0 {
			return apperr.Validation("table_id is required for dine-in orders")
		}
		if r.OrderID != nil {
			return apperr.Validation("dine-in orders are found by table, order_id is not accepted")
		}
	case models.ChannelTakeaway, models.ChannelDelivery:
		if r.TableID != nil {
			return apperr.Validationf("%s orders have no table", r.Channel)
		}
	default:
		return apperr.Validationf("unknown channel %q", r.Channel)
	}
	if len(r.Lines) == 0 {
		return apperr.Validation("at least one line is required")
	}
	for i, l := range r.Lines {
		if l.ProductID == 0 {
			return apperr.Validationf("line %d: product_id is required", i+1)
		}
		if l.Quantity <= 0 {
			return apperr.Validationf("line %d: quantity must be positive", i+1)
		}
		for _, mod := range l.Modifiers {
			if strings.TrimSpace(mod.Name) == "" {
				return apperr.Validationf("line %d: modifier name is required", i+1)
			}
		}
	}
	return nil
}

// SubmitLines merges the submitted lines into the open order of the table (creating
// it when there is none) and routes every quantity increase to its station. A line
// for a product already on the order sets that line's quantity, so resubmitting the
// same request changes nothing.
func (m *Manager) SubmitLines(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		res   SubmitResult
		batch events.Batch
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, created, err := m.resolveOrder(tx, req)
		if err != nil {
			return err
		}
		res.Created = created

		ids := make([]uint, 0, len(req.Lines))
		for _, l := range req.Lines {
			ids = append(ids, l.ProductID)
		}
		products, err := m.catalog.Products(tx, ids)
		if err != nil {
			return err
		}

		var lines []models.OrderLine
		if err := tx.Preload("Modifiers").Where("order_id = ?", order.ID).Find(&lines).Error; err != nil {
			return fmt.Errorf("load order lines: %w", err)
		}
		byProduct := make(map[uint]*models.OrderLine, len(lines))
		for i := range lines {
			byProduct[lines[i].ProductID] = &lines[i]
		}

		for _, in := range req.Lines {
			p, ok := products[in.ProductID]
			if !ok || p.BranchID != req.BranchID {
				return apperr.Validationf("product %d does not exist", in.ProductID)
			}
			if !p.Active {
				return apperr.Validationf("product %s is not available", p.Name)
			}

			line, delta, err := m.mergeLine(tx, order.ID, byProduct[p.ID], p, in)
			if err != nil {
				return err
			}
			byProduct[p.ID] = line

			switch {
			case delta > 0:
				stationID, err := m.router.Resolve(tx, req.BranchID, &p)
				if err != nil {
					return err
				}
				ticket, _, err := m.machine.EnsureTicket(tx, order.ID, stationID)
				if err != nil {
					return err
				}
				if _, err := m.machine.AddItem(tx, ticket, line.ID, delta, line.Note); err != nil {
					return err
				}
				res.Routed = append(res.Routed, RoutedLine{
					LineID:    line.ID,
					StationID: stationID,
					TicketID:  ticket.ID,
					Quantity:  delta,
				})
			case delta < 0:
				if err := m.machine.ShrinkPending(tx, line.ID, -delta); err != nil {
					return err
				}
			default:
				continue
			}
			if err := m.machine.SyncLineState(tx, line.ID); err != nil {
				return err
			}
		}

		if err := billing.RefreshTotal(tx, order); err != nil {
			return err
		}
		if err := m.machine.SyncOrderState(tx, order); err != nil {
			return err
		}

		loaded, err := load(tx, order.ID)
		if err != nil {
			return err
		}
		res.Order = *loaded

		if len(res.Routed) > 0 {
			added := make([]events.LineAdded, 0, len(res.Routed))
			for _, r := range res.Routed {
				added = append(added, events.LineAdded{
					OrderLineID: r.LineID,
					ProductID:   byLineID(loaded.Lines, r.LineID).ProductID,
					TicketID:    r.TicketID,
					StationID:   r.StationID,
					Quantity:    r.Quantity,
				})
			}
			batch.Add(events.New(events.LinesAdded, order.BranchID, events.LinesAddedPayload{
				OrderID: order.ID,
				TableID: order.TableID,
				Lines:   added,
			}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(ctx, m.pub, m.log)
	m.log.Info("order lines submitted",
		zap.Uint("order_id", res.Order.ID),
		zap.Bool("created", res.Created),
		zap.Int("routed", len(res.Routed)),
		zap.String("total", res.Order.Total.StringFixed(2)),
	)
	return &res, nil
}

// resolveOrder finds or opens the order the submission goes to, holding the table
// lock (dine-in) and the order lock for the rest of tx.
func (m *Manager) resolveOrder(tx *gorm.DB, req SubmitRequest) (*models.Order, bool, error) {
	if req.Channel != models.ChannelDineIn {
		if req.OrderID != nil {
			order, err := Lock(tx, *req.OrderID)
			if err != nil {
				return nil, false, err
			}
			if order.BranchID != req.BranchID || order.Channel != req.Channel {
				return nil, false, apperr.Validationf("order %d is not a %s order of this branch", order.ID, req.Channel)
			}
			if !order.State.IsOpen() {
				return nil, false, apperr.InvalidStatef("order %d is %s", order.ID, order.State)
			}
			return order, false, nil
		}
		order, err := m.create(tx, req)
		return order, true, err
	}

	table, err := m.tables.Lock(tx, *req.TableID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, false, apperr.Validationf("table %d does not exist", *req.TableID)
	}
	if err != nil {
		return nil, false, err
	}
	if table.BranchID != req.BranchID {
		return nil, false, apperr.Validationf("table %d does not exist", table.ID)
	}

	var order models.Order
	created := false
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("table_id = ? AND state IN ?", table.ID, models.OpenOrderStates).
		First(&order).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		o, err := m.create(tx, req)
		if err != nil {
			return nil, false, err
		}
		order, created = *o, true
	case err != nil:
		return nil, false, fmt.Errorf("find open order: %w", err)
	}

	if err := m.tables.Occupy(tx, table, order.ID); err != nil {
		return nil, false, err
	}
	return &order, created, nil
}

func (m *Manager) create(tx *gorm.DB, req SubmitRequest) (*models.Order, error) {
	order := models.Order{
		BranchID: req.BranchID,
		TableID:  req.TableID,
		ServerID: req.ServerID,
		Channel:  req.Channel,
		State:    models.OrderOpen,
		Total:    decimal.Zero,
	}
	if err := tx.Create(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.InvalidStatef("table %d already has an open order", *req.TableID)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &order, nil
}

// mergeLine applies one submitted line and returns the stored line with the quantity
// change that production has to follow.
func (m *Manager) mergeLine(tx *gorm.DB, orderID uint, existing *models.OrderLine, p models.Product, in LineInput) (*models.OrderLine, int, error) {
	note := strings.TrimSpace(in.Note)

	if existing == nil {
		line := models.OrderLine{
			OrderID:   orderID,
			ProductID: p.ID,
			Quantity:  in.Quantity,
			UnitPrice: p.Price,
			Note:      note,
			State:     models.ProductionPending,
		}
		seen := make(map[string]bool, len(in.Modifiers))
		for _, mod := range in.Modifiers {
			name := strings.TrimSpace(mod.Name)
			if seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			line.Modifiers = append(line.Modifiers, models.OrderLineModifier{
				Name:       name,
				PriceDelta: mod.PriceDelta,
			})
		}
		line.Subtotal = billing.LineSubtotal(line.Quantity, line.UnitPrice, line.Modifiers)
		if err := tx.Create(&line).Error; err != nil {
			return nil, 0, fmt.Errorf("create order line: %w", err)
		}
		return &line, line.Quantity, nil
	}

	line := *existing
	delta := in.Quantity - line.Quantity

	known := make(map[string]bool, len(line.Modifiers))
	for _, mod := range line.Modifiers {
		known[strings.ToLower(mod.Name)] = true
	}
	for _, mod := range in.Modifiers {
		name := strings.TrimSpace(mod.Name)
		if known[strings.ToLower(name)] {
			continue
		}
		known[strings.ToLower(name)] = true
		row := models.OrderLineModifier{OrderLineID: line.ID, Name: name, PriceDelta: mod.PriceDelta}
		if err := tx.Create(&row).Error; err != nil {
			return nil, 0, fmt.Errorf("add modifier: %w", err)
		}
		line.Modifiers = append(line.Modifiers, row)
	}

	line.Quantity = in.Quantity
	if note != "" {
		line.Note = note
	}
	line.Subtotal = billing.LineSubtotal(line.Quantity, line.UnitPrice, line.Modifiers)
	err := tx.Model(&models.OrderLine{}).Where("id = ?", line.ID).Updates(map[string]any{
		"quantity": line.Quantity,
		"note":     line.Note,
		"subtotal": line.Subtotal,
	}).Error
	if err != nil {
		return nil, 0, fmt.Errorf("update order line: %w", err)
	}
	return &line, delta, nil
}

type CancelRequest struct {
	OrderID    uint
	BranchID   uint
	OperatorID uint
	Reason     string
}

// Cancel voids an unpaid order with its tickets and frees its table. Paid orders go
// through a refund instead.
func (m *Manager) Cancel(ctx context.Context, req CancelRequest) (*models.Order, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return nil, apperr.Validation("a reason is required to cancel an order")
	}

	var (
		out   *models.Order
		batch events.Batch
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var probe models.Order
		if err := tx.First(&probe, req.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("order %d not found", req.OrderID)
			}
			return fmt.Errorf("load order: %w", err)
		}
		if probe.BranchID != req.BranchID {
			return apperr.NotFoundf("order %d not found", req.OrderID)
		}
		if probe.TableID != nil {
			if _, err := m.tables.Lock(tx, *probe.TableID); err != nil {
				return err
			}
		}
		order, err := Lock(tx, req.OrderID)
		if err != nil {
			return err
		}
		if !order.State.IsOpen() {
			return apperr.InvalidStatef("order %d is already %s", order.ID, order.State)
		}

		var paid int64
		if err := tx.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&paid).Error; err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if paid > 0 {
			return apperr.InvalidStatef("order %d has payments, refund it instead", order.ID)
		}

		before := *order
		if _, err := m.machine.VoidOrderTickets(tx, order.ID); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
			"state":       models.OrderVoided,
			"void_reason": req.Reason,
			"closed_at":   now,
		}).Error; err != nil {
			return fmt.Errorf("void order: %w", err)
		}
		if err := tx.Model(&models.Invoice{}).
			Where("order_id = ? AND state IN ?", order.ID, []models.InvoiceState{models.InvoiceDraft, models.InvoiceIssued}).
			Updates(map[string]any{"state": models.InvoiceVoided, "voided_at": now}).Error; err != nil {
			return fmt.Errorf("void invoice: %w", err)
		}
		order.State = models.OrderVoided
		order.VoidReason = req.Reason
		order.ClosedAt = &now

		if order.TableID != nil {
			released, err := m.tables.Release(tx, *order.TableID, order.ID)
			if err != nil {
				return err
			}
			if released {
				batch.Add(events.New(events.TableReleased, order.BranchID, events.TableReleasedPayload{
					TableID: *order.TableID,
					OrderID: order.ID,
				}))
			}
		}

		branchID := order.BranchID
		if err := audit.Write(tx, audit.Entry{
			BranchID:    &branchID,
			UserID:      req.OperatorID,
			EntityType:  "order",
			EntityID:    order.ID,
			Action:      models.AuditActionVoid,
			Description: "order cancelled: " + req.Reason,
			Before:      before,
			After:       order,
		}); err != nil {
			return err
		}

		out, err = load(tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	batch.Flush(ctx, m.pub, m.log)
	m.log.Info("order cancelled", zap.Uint("order_id", req.OrderID), zap.Uint("operator_id", req.OperatorID))
	return out, nil
}

// Lock loads the order with a row lock held until tx ends.
func Lock(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var o models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("order %d not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &o, nil
}

func (m *Manager) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	return load(m.db.WithContext(ctx), orderID)
}

// OpenOrderForTable returns the open-family order currently at the table.
func (m *Manager) OpenOrderForTable(ctx context.Context, tableID uint) (*models.Order, error) {
	var o models.Order
	err := m.db.WithContext(ctx).
		Where("table_id = ? AND state IN ?", tableID, models.OpenOrderStates).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("table %d has no open order", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("find open order: %w", err)
	}
	return load(m.db.WithContext(ctx), o.ID)
}

// List returns the branch's orders, newest first. No states means all of them.
func (m *Manager) List(ctx context.Context, branchID uint, states []models.OrderState) ([]models.Order, error) {
	q := m.db.WithContext(ctx).Where("branch_id = ?", branchID)
	if len(states) > 0 {
		q = q.Where("state IN ?", states)
	}
	var rows []models.Order
	if err := q.Order("id desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return rows, nil
}

func load(db *gorm.DB, orderID uint) (*models.Order, error) {
	var o models.Order
	err := db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Lines.Modifiers", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("order %d not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &o, nil
}

func byLineID(lines []models.OrderLine, id uint) models.OrderLine {
	for _, l := range lines {
		if l.ID == id {
			return l
		}
	}
	return models.OrderLine{}
}
