package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash             PaymentMethod = "cash"              // collected by the rider
	PaymentDigitalCourier   PaymentMethod = "digital_courier"   // yape/plin/transfer to the courier
	PaymentDigitalEcommerce PaymentMethod = "digital_ecommerce" // paid straight to the ecommerce
	PaymentOther            PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentDigitalCourier, PaymentDigitalEcommerce, PaymentOther:
		return true
	}
	return false
}

// Reconcilable reports whether the collected amount enters the gross total of a cuadre.
// Orders paid through "other" channels still carry their fees.
func (m PaymentMethod) Reconcilable() bool {
	switch m {
	case PaymentCash, PaymentDigitalCourier, PaymentDigitalEcommerce:
		return true
	}
	return false
}

// Order is a delivered order as seen by the settlement ledger.
type Order struct {
	ID             uint            `gorm:"primaryKey"`
	Code           string          `gorm:"size:40;uniqueIndex;not null"`
	DeliveryDate   time.Time       `gorm:"index;not null"` // UTC midnight
	ClientName     string          `gorm:"size:150"`
	ClientDistrict string          `gorm:"size:100"`
	PaymentMethod  PaymentMethod   `gorm:"size:30;not null"`
	GrossAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	RiderFee                 decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	SuggestedRiderFee        decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	RiderFeeOverrideReason   string              `gorm:"size:255"`
	CourierFee               decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	SuggestedCourierFee      decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	CourierFeeOverrideReason string              `gorm:"size:255"`

	Settled   bool `gorm:"index;not null;default:false"`
	SettledAt *time.Time
	SettledBy *uint
	BatchID   *uint `gorm:"index"`

	CourierID uint  `gorm:"index;not null"`
	SedeID    uint  `gorm:"index;not null"`
	RiderID   *uint `gorm:"index"`

	Version   int `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementState returns where the order sits in the cuadre lifecycle.
func (o Order) SettlementState() SettlementState {
	switch {
	case o.Settled:
		return StateValidated
	case o.BatchID != nil:
		return StatePendingValidation
	default:
		return StateUnsettled
	}
}

// TotalFee is rider fee plus courier fee; null fees count as zero.
func (o Order) TotalFee() decimal.Decimal {
	return o.RiderFee.Decimal.Add(o.CourierFee.Decimal)
}

func (o Order) FeesComputed() bool {
	return o.RiderFee.Valid && o.CourierFee.Valid
}
