// Package tables owns dining table occupancy. Table state follows the orders that
// reference the table; nothing outside this package writes it.
package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Synchronizer struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSynchronizer(db *gorm.DB, log *zap.Logger) *Synchronizer {
	return &Synchronizer{db: db, log: log}
}

// Lock loads the table with a row lock held until tx ends. Concurrent submissions to
// the same table queue here.
func (s *Synchronizer) Lock(tx *gorm.DB, tableID uint) (*models.DiningTable, error) {
	var t models.DiningTable
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, tableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("table %d not found", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock table: %w", err)
	}
	return &t, nil
}

// Occupy binds the table to orderID. Precheck tables go back to occupied when more
// lines arrive.
func (s *Synchronizer) Occupy(tx *gorm.DB, t *models.DiningTable, orderID uint) error {
	switch t.State {
	case models.TableClosed:
		return apperr.InvalidStatef("table %s is out of service", t.Label)
	case models.TableOccupied, models.TablePrecheck:
		if t.CurrentOrderID != nil && *t.CurrentOrderID != orderID {
			return apperr.InvalidStatef("table %s is held by order %d", t.Label, *t.CurrentOrderID)
		}
	}
	if t.State == models.TableOccupied && t.CurrentOrderID != nil {
		return nil
	}
	err := tx.Model(t).Updates(map[string]any{
		"state":            models.TableOccupied,
		"current_order_id": orderID,
	}).Error
	if err != nil {
		return fmt.Errorf("occupy table: %w", err)
	}
	t.State = models.TableOccupied
	t.CurrentOrderID = &orderID
	return nil
}

// Release frees the table once orderID reaches delivered or voided. It reports whether
// the table actually changed.
func (s *Synchronizer) Release(tx *gorm.DB, tableID, orderID uint) (bool, error) {
	t, err := s.Lock(tx, tableID)
	if err != nil {
		return false, err
	}
	if t.CurrentOrderID == nil || *t.CurrentOrderID != orderID {
		return false, nil
	}
	err = tx.Model(t).Updates(map[string]any{
		"state":            models.TableAvailable,
		"current_order_id": nil,
	}).Error
	if err != nil {
		return false, fmt.Errorf("release table: %w", err)
	}
	return true, nil
}

// RequestPrecheck marks an occupied table as waiting for the bill.
func (s *Synchronizer) RequestPrecheck(ctx context.Context, tableID uint) (*models.DiningTable, error) {
	var out *models.DiningTable
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.Lock(tx, tableID)
		if err != nil {
			return err
		}
		if t.State != models.TableOccupied {
			return apperr.InvalidStatef("table %s is %s, only occupied tables can request the bill", t.Label, t.State)
		}
		if err := tx.Model(t).Update("state", models.TablePrecheck).Error; err != nil {
			return fmt.Errorf("precheck table: %w", err)
		}
		t.State = models.TablePrecheck
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("table precheck requested", zap.Uint("table_id", tableID))
	return out, nil
}

// SetOutOfService toggles a free table between available and closed.
func (s *Synchronizer) SetOutOfService(ctx context.Context, tableID uint, out bool) (*models.DiningTable, error) {
	var res *models.DiningTable
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.Lock(tx, tableID)
		if err != nil {
			return err
		}
		from, to := models.TableAvailable, models.TableClosed
		if !out {
			from, to = models.TableClosed, models.TableAvailable
		}
		if t.State != from {
			return apperr.InvalidStatef("table %s is %s, expected %s", t.Label, t.State, from)
		}
		if err := tx.Model(t).Update("state", to).Error; err != nil {
			return fmt.Errorf("update table: %w", err)
		}
		t.State = to
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("table service state changed", zap.Uint("table_id", tableID), zap.Bool("out_of_service", out))
	return res, nil
}

type CreateRequest struct {
	BranchID uint
	ZoneID   *uint
	Label    string
	Capacity int
}

func (s *Synchronizer) Create(ctx context.Context, req CreateRequest) (*models.DiningTable, error) {
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		return nil, apperr.Validation("table label is required")
	}
	if req.Capacity < 0 {
		return nil, apperr.Validation("capacity must not be negative")
	}
	t := models.DiningTable{
		BranchID: req.BranchID,
		ZoneID:   req.ZoneID,
		Label:    req.Label,
		Capacity: req.Capacity,
		State:    models.TableAvailable,
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	s.log.Info("table created", zap.Uint("table_id", t.ID), zap.String("label", t.Label))
	return &t, nil
}

func (s *Synchronizer) Get(ctx context.Context, tableID uint) (*models.DiningTable, error) {
	var t models.DiningTable
	err := s.db.WithContext(ctx).First(&t, tableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("table %d not found", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return &t, nil
}

func (s *Synchronizer) List(ctx context.Context, branchID uint, zoneID *uint) ([]models.DiningTable, error) {
	q := s.db.WithContext(ctx).Where("branch_id = ?", branchID)
	if zoneID != nil {
		q = q.Where("zone_id = ?", *zoneID)
	}
	var rows []models.DiningTable
	if err := q.Order("label asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return rows, nil
}
