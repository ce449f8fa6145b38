package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashSessionState string

const (
	CashSessionOpen    CashSessionState = "open"
	CashSessionClosing CashSessionState = "closing"
	CashSessionClosed  CashSessionState = "closed"
)

// CashSession is one operator's till period at a branch.
type CashSession struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	BranchID     uint             `gorm:"index;not null" json:"branch_id"`
	OperatorID   uint             `gorm:"index;not null" json:"operator_id"`
	State        CashSessionState `gorm:"size:20;not null" json:"state"`
	OpeningFloat decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"opening_float"`
	OpenedAt     time.Time        `gorm:"not null" json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type VarianceClass string

const (
	VarianceNormal   VarianceClass = "normal"
	VarianceWarning  VarianceClass = "warning"
	VarianceCritical VarianceClass = "critical"
)

// CashClose is the reconciliation written when a session closes.
type CashClose struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	SessionID      uint            `gorm:"uniqueIndex;not null" json:"session_id"`
	Opening        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"opening"`
	TotalIn        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_in"`
	TotalOut       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_out"`
	Expected       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"expected"`
	Counted        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"counted"`
	Variance       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"variance"`
	VariancePct    decimal.Decimal `gorm:"type:decimal(7,2);not null" json:"variance_pct"`
	Classification VarianceClass   `gorm:"size:20;not null" json:"classification"`
	Notes          string          `gorm:"size:500" json:"notes"`
	ClosedBy       uint            `gorm:"not null" json:"closed_by"`
	ClosedAt       time.Time       `gorm:"not null" json:"closed_at"`
	CreatedAt      time.Time       `json:"created_at"`
}
