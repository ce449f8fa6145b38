package catalog

import (
	"testing"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/database/dbtest"
	"restoran-pos/internal/models"

	"github.com/shopspring/decimal"
)

func TestGateway_ProductNotFound(t *testing.T) {
	db := dbtest.Open(t)
	_, err := NewGateway().Product(db, 42)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGateway_ActiveStationsOrdered(t *testing.T) {
	db := dbtest.Open(t)
	stations := []models.Station{
		{BranchID: 1, Name: "Bar", Kind: models.StationBar, Active: true, SortOrder: 2},
		{BranchID: 1, Name: "Grill", Kind: models.StationKitchen, Active: true, SortOrder: 1},
		{BranchID: 1, Name: "Old", Kind: models.StationOther, Active: true, SortOrder: 0},
		{BranchID: 2, Name: "Other branch", Kind: models.StationKitchen, Active: true},
	}
	for i := range stations {
		if err := db.Create(&stations[i]).Error; err != nil {
			t.Fatal(err)
		}
	}
	// gorm skips zero-value bools with a default on create; deactivate explicitly.
	if err := db.Model(&stations[2]).Update("active", false).Error; err != nil {
		t.Fatal(err)
	}

	got, err := NewGateway().ActiveStations(db, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active stations, got %d", len(got))
	}
	if got[0].Name != "Grill" || got[1].Name != "Bar" {
		t.Errorf("unexpected order: %s, %s", got[0].Name, got[1].Name)
	}
}

func TestGateway_ProductsByID(t *testing.T) {
	db := dbtest.Open(t)
	p := models.Product{BranchID: 1, Name: "Soup", Price: decimal.NewFromInt(12), Active: true}
	if err := db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}

	got, err := NewGateway().Products(db, []uint{p.ID, 999})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 product, got %d", len(got))
	}
	if !got[p.ID].Price.Equal(decimal.NewFromInt(12)) {
		t.Errorf("unexpected price %s", got[p.ID].Price)
	}
}
