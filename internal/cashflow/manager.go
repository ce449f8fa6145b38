// Package cashflow runs the till: cash sessions, their movements and the close
// reconciliation.
package cashflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/audit"
	"restoran-pos/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var hundred = decimal.NewFromInt(100)

// Thresholds classify a close variance, in percent of the expected amount.
type Thresholds struct {
	WarnPct     decimal.Decimal
	CriticalPct decimal.Decimal
}

type Manager struct {
	db         *gorm.DB
	thresholds Thresholds
	log        *zap.Logger
	now        func() time.Time
}

func NewManager(db *gorm.DB, thresholds Thresholds, log *zap.Logger) *Manager {
	return &Manager{db: db, thresholds: thresholds, log: log, now: time.Now}
}

type OpenRequest struct {
	BranchID     uint
	OperatorID   uint
	OpeningFloat decimal.Decimal
}

// Open starts a session for the operator at the branch. One unclosed session per
// operator and branch.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*models.CashSession, error) {
	if req.OpeningFloat.IsNegative() {
		return nil, apperr.Validation("opening float must not be negative")
	}

	var s models.CashSession
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CashSession{}).
			Where("branch_id = ? AND operator_id = ? AND state <> ?", req.BranchID, req.OperatorID, models.CashSessionClosed).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check open session: %w", err)
		}
		if count > 0 {
			return apperr.SessionAlreadyOpen("operator already has an open cash session at this branch")
		}

		s = models.CashSession{
			BranchID:     req.BranchID,
			OperatorID:   req.OperatorID,
			State:        models.CashSessionOpen,
			OpeningFloat: req.OpeningFloat.Round(2),
			OpenedAt:     m.now(),
		}
		if err := tx.Create(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.SessionAlreadyOpen("operator already has an open cash session at this branch")
			}
			return fmt.Errorf("create cash session: %w", err)
		}

		return audit.Write(tx, audit.Entry{
			BranchID:    &s.BranchID,
			UserID:      req.OperatorID,
			EntityType:  "cash_session",
			EntityID:    s.ID,
			Action:      models.AuditActionCreate,
			Description: "cash session opened with float " + s.OpeningFloat.StringFixed(2),
			After:       s,
		})
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("cash session opened",
		zap.Uint("session_id", s.ID),
		zap.Uint("operator_id", s.OperatorID),
		zap.String("opening_float", s.OpeningFloat.StringFixed(2)),
	)
	return &s, nil
}

// Current is the operator's unclosed session at the branch, open or closing.
func (m *Manager) Current(ctx context.Context, operatorID, branchID uint) (*models.CashSession, error) {
	var s models.CashSession
	err := m.db.WithContext(ctx).
		Where("branch_id = ? AND operator_id = ? AND state <> ?", branchID, operatorID, models.CashSessionClosed).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NoOpenSession("operator has no open cash session at this branch")
	}
	if err != nil {
		return nil, fmt.Errorf("current session: %w", err)
	}
	return &s, nil
}

// OpenSessionTx locks the operator's session for the rest of tx. Sessions that are
// closing no longer take movements.
func (m *Manager) OpenSessionTx(tx *gorm.DB, operatorID, branchID uint) (*models.CashSession, error) {
	var s models.CashSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("branch_id = ? AND operator_id = ? AND state = ?", branchID, operatorID, models.CashSessionOpen).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NoOpenSession("operator has no open cash session at this branch")
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return &s, nil
}

type MovementInput struct {
	Direction       models.CashDirection
	Kind            models.CashMovementKind
	Amount          decimal.Decimal
	Concept         string
	OrderID         *uint
	PaymentMethodID *uint
}

func (in MovementInput) validate() error {
	if !in.Amount.IsPositive() {
		return apperr.Validation("movement amount must be positive")
	}
	var want models.CashDirection
	switch in.Kind {
	case models.MovementSale, models.MovementManualIn:
		want = models.CashIn
	case models.MovementRefund, models.MovementManualOut:
		want = models.CashOut
	default:
		return apperr.Validationf("unknown movement kind %q", in.Kind)
	}
	if in.Direction != want {
		return apperr.Validationf("a %s movement must be %s", in.Kind, want)
	}
	return nil
}

// RecordTx appends a movement to a session the caller has locked with OpenSessionTx
// or lockSession.
func (m *Manager) RecordTx(tx *gorm.DB, s *models.CashSession, operatorID uint, in MovementInput) (*models.CashMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if s.State != models.CashSessionOpen {
		return nil, apperr.InvalidStatef("cash session %d is %s", s.ID, s.State)
	}
	mv := models.CashMovement{
		BranchID:        s.BranchID,
		SessionID:       s.ID,
		Direction:       in.Direction,
		Kind:            in.Kind,
		Amount:          in.Amount.Round(2),
		Concept:         strings.TrimSpace(in.Concept),
		OrderID:         in.OrderID,
		PaymentMethodID: in.PaymentMethodID,
		OperatorID:      operatorID,
		OccurredAt:      m.now(),
	}
	if err := tx.Create(&mv).Error; err != nil {
		return nil, fmt.Errorf("create cash movement: %w", err)
	}
	return &mv, nil
}

type RecordRequest struct {
	SessionID  uint
	BranchID   uint
	OperatorID uint
	MovementInput
}

// RecordMovement is the manual till entry (float top-up, petty cash). Sales and
// refunds are written by the settlement ledger together with their payment.
func (m *Manager) RecordMovement(ctx context.Context, req RecordRequest) (*models.CashMovement, error) {
	if req.Kind != models.MovementManualIn && req.Kind != models.MovementManualOut {
		return nil, apperr.Validation("only manual_in and manual_out movements can be recorded directly")
	}
	if strings.TrimSpace(req.Concept) == "" {
		return nil, apperr.Validation("concept is required")
	}

	var mv *models.CashMovement
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, req.SessionID, req.BranchID)
		if err != nil {
			return err
		}
		mv, err = m.RecordTx(tx, s, req.OperatorID, req.MovementInput)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("cash movement recorded",
		zap.Uint("session_id", mv.SessionID),
		zap.Uint("movement_id", mv.ID),
		zap.String("direction", string(mv.Direction)),
		zap.String("amount", mv.Amount.StringFixed(2)),
	)
	return mv, nil
}

// BeginClose stops the session from taking movements while the drawer is counted.
func (m *Manager) BeginClose(ctx context.Context, sessionID, branchID, operatorID uint) (*models.CashSession, error) {
	var s *models.CashSession
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if s, err = lockSession(tx, sessionID, branchID); err != nil {
			return err
		}
		if s.State != models.CashSessionOpen {
			return apperr.InvalidStatef("cash session %d is %s", s.ID, s.State)
		}
		if err := tx.Model(&models.CashSession{}).Where("id = ?", s.ID).
			Update("state", models.CashSessionClosing).Error; err != nil {
			return fmt.Errorf("begin close: %w", err)
		}
		s.State = models.CashSessionClosing
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("cash session closing", zap.Uint("session_id", sessionID), zap.Uint("operator_id", operatorID))
	return s, nil
}

type CloseRequest struct {
	SessionID  uint
	BranchID   uint
	OperatorID uint
	Counted    decimal.Decimal
	Notes      string
}

// Close reconciles the counted drawer against opening + in − out and closes the
// session for good.
func (m *Manager) Close(ctx context.Context, req CloseRequest) (*models.CashClose, error) {
	if req.Counted.IsNegative() {
		return nil, apperr.Validation("counted amount must not be negative")
	}

	var cc models.CashClose
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, req.SessionID, req.BranchID)
		if err != nil {
			return err
		}
		if s.State == models.CashSessionClosed {
			return apperr.InvalidStatef("cash session %d is already closed", s.ID)
		}

		var movs []models.CashMovement
		if err := tx.Where("session_id = ?", s.ID).Find(&movs).Error; err != nil {
			return fmt.Errorf("load movements: %w", err)
		}
		totalIn, totalOut := Totals(movs)
		expected := s.OpeningFloat.Add(totalIn).Sub(totalOut)
		counted := req.Counted.Round(2)
		variance := counted.Sub(expected)
		pct := VariancePct(variance, expected)

		now := m.now()
		cc = models.CashClose{
			SessionID:      s.ID,
			Opening:        s.OpeningFloat,
			TotalIn:        totalIn,
			TotalOut:       totalOut,
			Expected:       expected,
			Counted:        counted,
			Variance:       variance,
			VariancePct:    pct,
			Classification: m.classify(pct),
			Notes:          strings.TrimSpace(req.Notes),
			ClosedBy:       req.OperatorID,
			ClosedAt:       now,
		}
		if err := tx.Create(&cc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.InvalidStatef("cash session %d is already closed", s.ID)
			}
			return fmt.Errorf("create cash close: %w", err)
		}
		before := *s
		if err := tx.Model(&models.CashSession{}).Where("id = ?", s.ID).Updates(map[string]any{
			"state":     models.CashSessionClosed,
			"closed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("close session: %w", err)
		}

		return audit.Write(tx, audit.Entry{
			BranchID:    &s.BranchID,
			UserID:      req.OperatorID,
			EntityType:  "cash_session",
			EntityID:    s.ID,
			Action:      models.AuditActionClose,
			Description: fmt.Sprintf("cash session closed, variance %s (%s)", variance.StringFixed(2), cc.Classification),
			Before:      before,
			After:       cc,
		})
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Uint("session_id", req.SessionID),
		zap.String("expected", cc.Expected.StringFixed(2)),
		zap.String("counted", cc.Counted.StringFixed(2)),
		zap.String("variance", cc.Variance.StringFixed(2)),
	}
	if cc.Classification == models.VarianceCritical {
		m.log.Warn("cash session closed with critical variance", fields...)
	} else {
		m.log.Info("cash session closed", fields...)
	}
	return &cc, nil
}

func (m *Manager) Movements(ctx context.Context, sessionID, branchID uint) ([]models.CashMovement, error) {
	if _, err := m.Session(ctx, sessionID, branchID); err != nil {
		return nil, err
	}
	var rows []models.CashMovement
	if err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("occurred_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return rows, nil
}

func (m *Manager) Session(ctx context.Context, sessionID, branchID uint) (*models.CashSession, error) {
	var s models.CashSession
	err := m.db.WithContext(ctx).First(&s, sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && s.BranchID != branchID) {
		return nil, apperr.NotFoundf("cash session %d not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &s, nil
}

func lockSession(tx *gorm.DB, sessionID, branchID uint) (*models.CashSession, error) {
	var s models.CashSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && s.BranchID != branchID) {
		return nil, apperr.NotFoundf("cash session %d not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return &s, nil
}

// Totals sums the in and out sides of a movement list.
func Totals(movs []models.CashMovement) (in, out decimal.Decimal) {
	in, out = decimal.Zero, decimal.Zero
	for _, mv := range movs {
		if mv.Direction == models.CashIn {
			in = in.Add(mv.Amount)
		} else {
			out = out.Add(mv.Amount)
		}
	}
	return in, out
}

// VariancePct is |variance| as a percentage of expected. Any variance against an
// expected amount of zero counts as 100%.
func VariancePct(variance, expected decimal.Decimal) decimal.Decimal {
	if variance.IsZero() {
		return decimal.Zero
	}
	if !expected.IsPositive() {
		return hundred
	}
	return variance.Abs().Div(expected).Mul(hundred).Round(2)
}

func (m *Manager) classify(pct decimal.Decimal) models.VarianceClass {
	switch {
	case pct.GreaterThan(m.thresholds.CriticalPct):
		return models.VarianceCritical
	case pct.GreaterThan(m.thresholds.WarnPct):
		return models.VarianceWarning
	default:
		return models.VarianceNormal
	}
}
