package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementState string

const (
	StateUnsettled         SettlementState = "unsettled"          // "Sin Validar"
	StatePendingValidation SettlementState = "pending_validation" // "Por Validar"
	StateValidated         SettlementState = "validated"          // "Validado"
	StateObserved          SettlementState = "observed"           // evidence rejected
)

// SettlementBatch is an abono: a payment submitted with evidence and waiting for review.
type SettlementBatch struct {
	ID        uint            `gorm:"primaryKey"`
	Code      string          `gorm:"size:20;uniqueIndex;not null"`
	ScopeKind ScopeKind       `gorm:"size:20;not null"`
	ScopeID   uint            `gorm:"index;not null"`
	CourierID uint            `gorm:"index;not null"`
	State     SettlementState `gorm:"size:30;index;not null"`

	EvidenceRef string          `gorm:"size:500;not null"`
	TotalGross  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TotalFee    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TotalNet    decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	Observation    string `gorm:"size:500"`
	FundsConfirmed bool   `gorm:"not null;default:false"`
	SubmittedBy    uint   `gorm:"not null"`
	ReviewedBy     *uint
	ReviewedAt     *time.Time

	Version   int `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []SettlementBatchItem `gorm:"foreignKey:BatchID"`
}

func (b SettlementBatch) Scope() Scope { return Scope{Kind: b.ScopeKind, ID: b.ScopeID} }

// SettlementBatchItem keeps batch membership even after an observed batch releases its orders.
type SettlementBatchItem struct {
	ID            uint            `gorm:"primaryKey"`
	BatchID       uint            `gorm:"index;not null"`
	OrderID       uint            `gorm:"index;not null"`
	Order         Order           `gorm:"foreignKey:OrderID"`
	GrossSnapshot decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	FeeSnapshot   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt     time.Time
}
