package production

import (
	"context"
	"fmt"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/models"

	"gorm.io/gorm"
)

// Kitchen terminals address tickets, items and stations by id alone; these checks keep
// them inside the operator's branch. Anything outside it reads as not found.

func (m *Machine) CheckOrderBranch(ctx context.Context, orderID, branchID uint) error {
	return exists("order", orderID, m.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND branch_id = ?", orderID, branchID))
}

func (m *Machine) CheckStationBranch(ctx context.Context, stationID, branchID uint) error {
	return exists("station", stationID, m.db.WithContext(ctx).Model(&models.Station{}).
		Where("id = ? AND branch_id = ?", stationID, branchID))
}

func (m *Machine) CheckTicketBranch(ctx context.Context, ticketID, branchID uint) error {
	return exists("ticket", ticketID, m.db.WithContext(ctx).Model(&models.Ticket{}).
		Joins("JOIN orders ON orders.id = tickets.order_id").
		Where("tickets.id = ? AND orders.branch_id = ?", ticketID, branchID))
}

func (m *Machine) CheckItemBranch(ctx context.Context, itemID, branchID uint) error {
	return exists("ticket item", itemID, m.db.WithContext(ctx).Model(&models.TicketItem{}).
		Joins("JOIN tickets ON tickets.id = ticket_items.ticket_id").
		Joins("JOIN orders ON orders.id = tickets.order_id").
		Where("ticket_items.id = ? AND orders.branch_id = ?", itemID, branchID))
}

func exists(what string, id uint, q *gorm.DB) error {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("check %s branch: %w", what, err)
	}
	if n == 0 {
		return apperr.NotFoundf("%s %d not found", what, id)
	}
	return nil
}
