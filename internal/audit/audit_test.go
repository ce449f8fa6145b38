package audit

import (
	"testing"

	"restoran-pos/internal/database/dbtest"
	"restoran-pos/internal/models"
)

func TestWriteAndList(t *testing.T) {
	db := dbtest.Open(t)
	b1, b2 := uint(1), uint(2)

	entries := []Entry{
		{BranchID: &b1, UserID: 7, EntityType: "order", EntityID: 10, Action: models.AuditActionVoid,
			Description: "guest left", Before: map[string]string{"state": "open"}, After: map[string]string{"state": "voided"}},
		{BranchID: &b1, UserID: 9, EntityType: "payment", EntityID: 3, Action: models.AuditActionCreate},
		{BranchID: &b2, UserID: 9, EntityType: "order", EntityID: 11, Action: models.AuditActionVoid},
	}
	for _, e := range entries {
		if err := Write(db, e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	tests := []struct {
		name string
		f    Filter
		want int
	}{
		{"branch", Filter{BranchID: &b1}, 2},
		{"branch and entity type", Filter{BranchID: &b1, EntityType: "order"}, 1},
		{"user across branches", Filter{UserID: 9}, 2},
		{"entity id", Filter{EntityType: "order", EntityID: 11}, 1},
		{"no match", Filter{BranchID: &b2, EntityType: "payment"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := List(db, tt.f)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(logs) != tt.want {
				t.Fatalf("expected %d rows, got %d", tt.want, len(logs))
			}
		})
	}

	logs, err := List(db, Filter{BranchID: &b1, EntityType: "order"})
	if err != nil {
		t.Fatal(err)
	}
	if logs[0].BeforeData != `{"state":"open"}` || logs[0].AfterData != `{"state":"voided"}` {
		t.Fatalf("unexpected snapshots %q / %q", logs[0].BeforeData, logs[0].AfterData)
	}
	if logs[0].Description != "guest left" {
		t.Fatalf("description = %q", logs[0].Description)
	}
}

func TestMarshalNil(t *testing.T) {
	if got := marshal(nil); got != "null" {
		t.Fatalf("marshal(nil) = %q", got)
	}
}
