// Package fee derives the rider and courier service fees of a delivered order.
package fee

import (
	"fmt"
	"math"
	"strings"

	"cuadre-backend/internal/models"

	"github.com/shopspring/decimal"
)

// InvalidFeeError is returned for negative or non-finite fees and for overrides
// that come without a reason.
type InvalidFeeError struct {
	Field  string
	Reason string
}

func (e *InvalidFeeError) Error() string {
	return fmt.Sprintf("invalid fee %s: %s", e.Field, e.Reason)
}

// Reasons carried by InvalidFeeError.
const (
	ReasonNegative        = "must not be negative"
	ReasonNotFinite       = "must be a finite number"
	ReasonMissingOverride = "override requires a reason"
	ReasonPrecision       = "must have at most 2 decimals"
)

// Suggestion is what the platform would charge for an order.
type Suggestion struct {
	Rider   decimal.Decimal
	Courier decimal.Decimal
}

// Policy suggests fees from order attributes.
type Policy interface {
	Suggest(o models.Order) Suggestion
}

// FlatPolicy charges the same price per delivered order.
type FlatPolicy struct {
	Rider   decimal.Decimal
	Courier decimal.Decimal
}

func (p FlatPolicy) Suggest(models.Order) Suggestion {
	return Suggestion{Rider: p.Rider, Courier: p.Courier}
}

// Override replaces one or both fees. Nil fields keep the fee already stored on the
// order (with its reason), or the suggestion when the order has none.
type Override struct {
	RiderFee   *decimal.Decimal
	CourierFee *decimal.Decimal
	Reason     string
}

type Result struct {
	RiderFee            decimal.Decimal
	CourierFee          decimal.Decimal
	SuggestedRiderFee   decimal.Decimal
	SuggestedCourierFee decimal.Decimal
	RiderReason         string // empty unless RiderFee differs from the suggestion
	CourierReason       string
}

func (r Result) Total() decimal.Decimal { return r.RiderFee.Add(r.CourierFee) }

func (r Result) RiderOverridden() bool   { return !r.RiderFee.Equal(r.SuggestedRiderFee) }
func (r Result) CourierOverridden() bool { return !r.CourierFee.Equal(r.SuggestedCourierFee) }

// Apply writes the result onto the order's fee columns.
func (r Result) Apply(o *models.Order) {
	o.RiderFee = decimal.NewNullDecimal(r.RiderFee)
	o.SuggestedRiderFee = decimal.NewNullDecimal(r.SuggestedRiderFee)
	o.RiderFeeOverrideReason = r.RiderReason
	o.CourierFee = decimal.NewNullDecimal(r.CourierFee)
	o.SuggestedCourierFee = decimal.NewNullDecimal(r.SuggestedCourierFee)
	o.CourierFeeOverrideReason = r.CourierReason
}

type Calculator struct {
	policy Policy
}

func NewCalculator(p Policy) *Calculator {
	return &Calculator{policy: p}
}

func (c *Calculator) Suggest(o models.Order) Suggestion {
	return c.policy.Suggest(o)
}

// Compute returns the fees for o. It has no side effects.
func (c *Calculator) Compute(o models.Order, ov *Override) (Result, error) {
	s := c.policy.Suggest(o)
	if err := nonNegative("suggested_rider_fee", s.Rider); err != nil {
		return Result{}, err
	}
	if err := nonNegative("suggested_courier_fee", s.Courier); err != nil {
		return Result{}, err
	}

	res := Result{
		RiderFee:            s.Rider,
		CourierFee:          s.Courier,
		SuggestedRiderFee:   s.Rider,
		SuggestedCourierFee: s.Courier,
	}
	if ov == nil {
		return res, nil
	}

	if ov.RiderFee == nil && o.RiderFee.Valid {
		res.RiderFee = o.RiderFee.Decimal
		if res.RiderOverridden() {
			res.RiderReason = o.RiderFeeOverrideReason
		}
	}
	if ov.CourierFee == nil && o.CourierFee.Valid {
		res.CourierFee = o.CourierFee.Decimal
		if res.CourierOverridden() {
			res.CourierReason = o.CourierFeeOverrideReason
		}
	}

	reason := strings.TrimSpace(ov.Reason)

	if ov.RiderFee != nil {
		if err := checkAmount("rider_fee", *ov.RiderFee); err != nil {
			return Result{}, err
		}
		res.RiderFee = *ov.RiderFee
		res.RiderReason = ""
		if res.RiderOverridden() {
			if reason == "" {
				return Result{}, &InvalidFeeError{Field: "rider_fee", Reason: ReasonMissingOverride}
			}
			res.RiderReason = reason
		}
	}

	if ov.CourierFee != nil {
		if err := checkAmount("courier_fee", *ov.CourierFee); err != nil {
			return Result{}, err
		}
		res.CourierFee = *ov.CourierFee
		res.CourierReason = ""
		if res.CourierOverridden() {
			if reason == "" {
				return Result{}, &InvalidFeeError{Field: "courier_fee", Reason: ReasonMissingOverride}
			}
			res.CourierReason = reason
		}
	}

	return res, nil
}

// Ensure fills null fees of o with the suggestion and reports whether anything changed.
// Fees already set are left alone.
func (c *Calculator) Ensure(o *models.Order) bool {
	if o.FeesComputed() {
		return false
	}
	s := c.policy.Suggest(*o)
	if !o.RiderFee.Valid {
		o.RiderFee = decimal.NewNullDecimal(s.Rider)
		o.SuggestedRiderFee = decimal.NewNullDecimal(s.Rider)
	}
	if !o.CourierFee.Valid {
		o.CourierFee = decimal.NewNullDecimal(s.Courier)
		o.SuggestedCourierFee = decimal.NewNullDecimal(s.Courier)
	}
	return true
}

// FromFloat converts a float input (spreadsheet cells, legacy clients) into a fee amount.
func FromFloat(field string, v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, &InvalidFeeError{Field: field, Reason: ReasonNotFinite}
	}
	d := decimal.NewFromFloat(v).Round(2)
	if err := nonNegative(field, d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// checkAmount accepts non-negative amounts with at most two decimals.
func checkAmount(field string, d decimal.Decimal) error {
	if err := nonNegative(field, d); err != nil {
		return err
	}
	if !d.Equal(d.Round(2)) {
		return &InvalidFeeError{Field: field, Reason: ReasonPrecision}
	}
	return nil
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &InvalidFeeError{Field: field, Reason: ReasonNegative}
	}
	return nil
}
