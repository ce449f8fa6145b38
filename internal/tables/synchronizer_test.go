package tables

import (
	"context"
	"testing"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/database/dbtest"
	"restoran-pos/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *Synchronizer, *models.DiningTable) {
	t.Helper()
	db := dbtest.Open(t)
	s := NewSynchronizer(db, zap.NewNop())
	tbl, err := s.Create(context.Background(), CreateRequest{BranchID: 1, Label: "T1", Capacity: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return db, s, tbl
}

func reload(t *testing.T, db *gorm.DB, id uint) models.DiningTable {
	t.Helper()
	var tbl models.DiningTable
	if err := db.First(&tbl, id).Error; err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestCreate_Validation(t *testing.T) {
	_, s, _ := setup(t)
	if _, err := s.Create(context.Background(), CreateRequest{BranchID: 1, Label: "  "}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for blank label, got %v", err)
	}
	if _, err := s.Create(context.Background(), CreateRequest{BranchID: 1, Label: "X", Capacity: -1}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for negative capacity, got %v", err)
	}
}

func TestOccupyAndRelease(t *testing.T) {
	db, s, tbl := setup(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.Lock(tx, tbl.ID)
		if err != nil {
			return err
		}
		return s.Occupy(tx, locked, 10)
	})
	if err != nil {
		t.Fatalf("occupy: %v", err)
	}
	got := reload(t, db, tbl.ID)
	if got.State != models.TableOccupied || got.CurrentOrderID == nil || *got.CurrentOrderID != 10 {
		t.Fatalf("expected occupied by order 10, got %+v", got)
	}

	// another order cannot take the table
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.Lock(tx, tbl.ID)
		if err != nil {
			return err
		}
		return s.Occupy(tx, locked, 11)
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}

	// releasing for a different order is a no-op
	var released bool
	err = db.Transaction(func(tx *gorm.DB) error {
		released, err = s.Release(tx, tbl.ID, 11)
		return err
	})
	if err != nil || released {
		t.Fatalf("expected no release for foreign order, got released=%v err=%v", released, err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		released, err = s.Release(tx, tbl.ID, 10)
		return err
	})
	if err != nil || !released {
		t.Fatalf("expected release, got released=%v err=%v", released, err)
	}
	got = reload(t, db, tbl.ID)
	if got.State != models.TableAvailable || got.CurrentOrderID != nil {
		t.Errorf("expected available and unbound, got %+v", got)
	}
}

func TestRequestPrecheck(t *testing.T) {
	db, s, tbl := setup(t)
	ctx := context.Background()

	if _, err := s.RequestPrecheck(ctx, tbl.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected InvalidState on available table, got %v", err)
	}

	_ = db.Transaction(func(tx *gorm.DB) error {
		locked, _ := s.Lock(tx, tbl.ID)
		return s.Occupy(tx, locked, 5)
	})
	res, err := s.RequestPrecheck(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("RequestPrecheck: %v", err)
	}
	if res.State != models.TablePrecheck {
		t.Errorf("expected precheck, got %s", res.State)
	}

	// more lines for the same order bring it back to occupied
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.Lock(tx, tbl.ID)
		if err != nil {
			return err
		}
		return s.Occupy(tx, locked, 5)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := reload(t, db, tbl.ID); got.State != models.TableOccupied {
		t.Errorf("expected occupied, got %s", got.State)
	}
}

func TestSetOutOfService(t *testing.T) {
	db, s, tbl := setup(t)
	ctx := context.Background()

	res, err := s.SetOutOfService(ctx, tbl.ID, true)
	if err != nil {
		t.Fatalf("SetOutOfService: %v", err)
	}
	if res.State != models.TableClosed {
		t.Fatalf("expected closed, got %s", res.State)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.Lock(tx, tbl.ID)
		if err != nil {
			return err
		}
		return s.Occupy(tx, locked, 1)
	})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("expected closed table to reject orders, got %v", err)
	}

	if _, err := s.SetOutOfService(ctx, tbl.ID, false); err != nil {
		t.Fatalf("back in service: %v", err)
	}
	if _, err := s.SetOutOfService(ctx, 999, true); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestList_FiltersByZone(t *testing.T) {
	_, s, _ := setup(t)
	ctx := context.Background()
	zone := uint(3)
	if _, err := s.Create(ctx, CreateRequest{BranchID: 1, ZoneID: &zone, Label: "Patio 1"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 tables, got %d", len(all))
	}
	patio, err := s.List(ctx, 1, &zone)
	if err != nil {
		t.Fatal(err)
	}
	if len(patio) != 1 || patio[0].Label != "Patio 1" {
		t.Errorf("unexpected zone filter result %+v", patio)
	}
}
