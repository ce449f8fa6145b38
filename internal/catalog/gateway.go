// Package catalog is the read-only view of the reference data owned by the catalog
// and site directory: products, stations, payment methods.
package catalog

import (
	"errors"
	"fmt"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/models"

	"gorm.io/gorm"
)

// Gateway reads reference data through whatever handle it is given, so lookups made
// inside a transaction see the same snapshot as the writes around them.
type Gateway struct{}

func NewGateway() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Product(tx *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	if err := tx.First(&p, id).Error; err != nil {
		return nil, notFound(err, "product %d not found", id)
	}
	return &p, nil
}

// Products returns the products keyed by id. Missing ids are simply absent.
func (g *Gateway) Products(tx *gorm.DB, ids []uint) (map[uint]models.Product, error) {
	out := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (g *Gateway) ListProducts(tx *gorm.DB, branchID uint) ([]models.Product, error) {
	var rows []models.Product
	if err := tx.Where("branch_id = ? AND active = ?", branchID, true).Order("name asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return rows, nil
}

func (g *Gateway) Station(tx *gorm.DB, id uint) (*models.Station, error) {
	var s models.Station
	if err := tx.First(&s, id).Error; err != nil {
		return nil, notFound(err, "station %d not found", id)
	}
	return &s, nil
}

// ActiveStations lists a branch's active stations in routing preference order.
func (g *Gateway) ActiveStations(tx *gorm.DB, branchID uint) ([]models.Station, error) {
	var rows []models.Station
	err := tx.Where("branch_id = ? AND active = ?", branchID, true).
		Order("sort_order asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return rows, nil
}

func (g *Gateway) PaymentMethod(tx *gorm.DB, id uint) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	if err := tx.First(&m, id).Error; err != nil {
		return nil, notFound(err, "payment method %d not found", id)
	}
	return &m, nil
}

func (g *Gateway) PaymentMethods(tx *gorm.DB) ([]models.PaymentMethod, error) {
	var rows []models.PaymentMethod
	if err := tx.Where("active = ?", true).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return rows, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf(format, args...)
	}
	return fmt.Errorf("catalog lookup: %w", err)
}
