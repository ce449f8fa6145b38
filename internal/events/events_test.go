package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestBatch_FlushPublishesInOrder(t *testing.T) {
	rec := &Recorder{}
	var b Batch
	b.Add(New(LinesAdded, 1, nil))
	b.Add(New(TicketReady, 1, nil))

	b.Flush(context.Background(), rec, zap.NewNop())

	got := rec.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != LinesAdded || got[1].Type != TicketReady {
		t.Errorf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
	if len(b.Events()) != 0 {
		t.Error("expected batch to be empty after flush")
	}
}

func TestBatch_FlushLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := &failingPublisher{}
	var b Batch
	b.Add(New(OrderSettled, 1, nil))
	b.Add(New(TableReleased, 1, nil))

	b.Flush(context.Background(), pub, zap.New(core))

	if pub.calls != 2 {
		t.Errorf("expected every event to be attempted, got %d calls", pub.calls)
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 warnings, got %d", logs.Len())
	}
}

func TestRecorder_OfType(t *testing.T) {
	rec := &Recorder{}
	_ = rec.Publish(context.Background(), New(TableReleased, 1, nil))
	_ = rec.Publish(context.Background(), New(OrderSettled, 1, nil))

	if n := len(rec.OfType(TableReleased)); n != 1 {
		t.Errorf("expected 1 table_released, got %d", n)
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Error("expected reset to clear events")
	}
}

func TestRoutingKey(t *testing.T) {
	if got := RoutingKey(OrderSettled); got != "restaurant.order_settled" {
		t.Errorf("unexpected routing key %q", got)
	}
}

func TestNew_AssignsIdentity(t *testing.T) {
	a := New(LinesAdded, 3, nil)
	b := New(LinesAdded, 3, nil)
	if a.ID == b.ID {
		t.Error("expected distinct event ids")
	}
	if a.BranchID != 3 || a.OccurredAt.IsZero() {
		t.Errorf("unexpected event %+v", a)
	}
}
