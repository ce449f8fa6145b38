// Package events carries the notifications other parts of the restaurant react to:
// kitchen displays, table maps, stock deduction. Delivery is best effort; clients
// still poll the read models.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	LinesAdded    Type = "lines_added"
	TicketReady   Type = "ticket_ready"
	OrderSettled  Type = "order_settled"
	TableReleased Type = "table_released"
)

type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	BranchID   uint      `json:"branch_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func New(t Type, branchID uint, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		BranchID:   branchID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Payloads.

type LineAdded struct {
	OrderLineID uint `json:"order_line_id"`
	ProductID   uint `json:"product_id"`
	TicketID    uint `json:"ticket_id"`
	StationID   uint `json:"station_id"`
	Quantity    int  `json:"quantity"`
}

type LinesAddedPayload struct {
	OrderID uint        `json:"order_id"`
	TableID *uint       `json:"table_id"`
	Lines   []LineAdded `json:"lines"`
}

type TicketReadyPayload struct {
	TicketID  uint `json:"ticket_id"`
	OrderID   uint `json:"order_id"`
	StationID uint `json:"station_id"`
}

type OrderSettledPayload struct {
	OrderID   uint   `json:"order_id"`
	InvoiceID uint   `json:"invoice_id"`
	Total     string `json:"total"`
}

type TableReleasedPayload struct {
	TableID uint `json:"table_id"`
	OrderID uint `json:"order_id"`
}

// Batch collects events raised inside a transaction. Flush after commit only.
type Batch struct {
	events []Event
}

func (b *Batch) Add(ev Event) {
	b.events = append(b.events, ev)
}

func (b *Batch) Events() []Event {
	return b.events
}

// Flush publishes every collected event. Failures are logged and do not undo the
// committed change.
func (b *Batch) Flush(ctx context.Context, pub Publisher, log *zap.Logger) {
	for _, ev := range b.events {
		if err := pub.Publish(ctx, ev); err != nil {
			log.Warn("event publish failed",
				zap.String("event_type", string(ev.Type)),
				zap.String("event_id", ev.ID.String()),
				zap.Error(err),
			)
		}
	}
	b.events = nil
}

// LogPublisher only logs. Used when no broker is configured.
type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Log.Info("domain event",
		zap.String("event_type", string(ev.Type)),
		zap.String("event_id", ev.ID.String()),
		zap.Uint("branch_id", ev.BranchID),
	)
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
