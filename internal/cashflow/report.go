package cashflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"restoran-pos/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MethodTotal struct {
	PaymentMethodID *uint           `json:"payment_method_id"` // nil for manual movements
	In              decimal.Decimal `json:"in"`
	Out             decimal.Decimal `json:"out"`
}

// SessionReport is the till view of one session: running totals while open, the
// reconciliation once closed.
type SessionReport struct {
	Session   models.CashSession                          `json:"session"`
	TotalIn   decimal.Decimal                             `json:"total_in"`
	TotalOut  decimal.Decimal                             `json:"total_out"`
	Expected  decimal.Decimal                             `json:"expected"`
	ByMethod  []MethodTotal                               `json:"by_method"`
	ByKind    map[models.CashMovementKind]decimal.Decimal `json:"by_kind"`
	Movements []models.CashMovement                       `json:"movements"`
	Close     *models.CashClose                           `json:"close,omitempty"`
}

func (m *Manager) Report(ctx context.Context, sessionID, branchID uint) (*SessionReport, error) {
	s, err := m.Session(ctx, sessionID, branchID)
	if err != nil {
		return nil, err
	}
	movs, err := m.Movements(ctx, sessionID, branchID)
	if err != nil {
		return nil, err
	}

	in, out := Totals(movs)
	rep := &SessionReport{
		Session:   *s,
		TotalIn:   in,
		TotalOut:  out,
		Expected:  s.OpeningFloat.Add(in).Sub(out),
		ByMethod:  byMethod(movs),
		ByKind:    map[models.CashMovementKind]decimal.Decimal{},
		Movements: movs,
	}

	for _, mv := range movs {
		rep.ByKind[mv.Kind] = rep.ByKind[mv.Kind].Add(mv.Amount)
	}

	var cc models.CashClose
	err = m.db.WithContext(ctx).Where("session_id = ?", s.ID).First(&cc).Error
	switch {
	case err == nil:
		rep.Close = &cc
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load cash close: %w", err)
	}
	return rep, nil
}

func byMethod(movs []models.CashMovement) []MethodTotal {
	idx := map[uint]int{}
	var out []MethodTotal
	for _, mv := range movs {
		var key uint
		if mv.PaymentMethodID != nil {
			key = *mv.PaymentMethodID
		}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, MethodTotal{PaymentMethodID: mv.PaymentMethodID, In: decimal.Zero, Out: decimal.Zero})
		}
		if mv.Direction == models.CashIn {
			out[i].In = out[i].In.Add(mv.Amount)
		} else {
			out[i].Out = out[i].Out.Add(mv.Amount)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return methodKey(out[a]) < methodKey(out[b])
	})
	return out
}

func methodKey(t MethodTotal) uint {
	if t.PaymentMethodID == nil {
		return 0
	}
	return *t.PaymentMethodID
}
