package cashflow

import (
	"bytes"
	"context"
	"fmt"

	"restoran-pos/internal/apperr"

	"github.com/xuri/excelize/v2"
)

const (
	closeSheet     = "Close"
	movementsSheet = "Movements"
)

// ExportClose renders a closed session as an xlsx workbook: the reconciliation on
// the first sheet and every movement on the second.
func (m *Manager) ExportClose(ctx context.Context, sessionID, branchID uint) (*bytes.Buffer, error) {
	rep, err := m.Report(ctx, sessionID, branchID)
	if err != nil {
		return nil, err
	}
	if rep.Close == nil {
		return nil, apperr.InvalidStatef("cash session %d is not closed yet", sessionID)
	}
	cc := rep.Close

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", closeSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]any{
		{"Session", rep.Session.ID},
		{"Branch", rep.Session.BranchID},
		{"Operator", rep.Session.OperatorID},
		{"Opened at", rep.Session.OpenedAt.Format("2006-01-02 15:04")},
		{"Closed at", cc.ClosedAt.Format("2006-01-02 15:04")},
		{"Opening float", cc.Opening.InexactFloat64()},
		{"Total in", cc.TotalIn.InexactFloat64()},
		{"Total out", cc.TotalOut.InexactFloat64()},
		{"Expected", cc.Expected.InexactFloat64()},
		{"Counted", cc.Counted.InexactFloat64()},
		{"Variance", cc.Variance.InexactFloat64()},
		{"Variance %", cc.VariancePct.InexactFloat64()},
		{"Classification", string(cc.Classification)},
		{"Notes", cc.Notes},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(closeSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}

	if _, err := f.NewSheet(movementsSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	header := []any{"ID", "Occurred at", "Kind", "Direction", "Amount", "Concept", "Order", "Payment method"}
	if err := f.SetSheetRow(movementsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, mv := range rep.Movements {
		var orderID, methodID any
		if mv.OrderID != nil {
			orderID = *mv.OrderID
		}
		if mv.PaymentMethodID != nil {
			methodID = *mv.PaymentMethodID
		}
		row := []any{
			mv.ID,
			mv.OccurredAt.Format("2006-01-02 15:04:05"),
			string(mv.Kind),
			string(mv.Direction),
			mv.Amount.InexactFloat64(),
			mv.Concept,
			orderID,
			methodID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(movementsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write movement: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}
