package settlement

import (
	"sort"
	"time"

	"cuadre-backend/internal/fee"
	"cuadre-backend/internal/models"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Totals is the single place where a cuadre is valued. Gross only counts
// reconcilable payment methods; fees are counted for every order.
type Totals struct {
	OrderCount int             `json:"order_count"`
	Gross      decimal.Decimal `json:"gross_total"`
	RiderFee   decimal.Decimal `json:"rider_fee_total"`
	CourierFee decimal.Decimal `json:"courier_fee_total"`
	Fee        decimal.Decimal `json:"fee_total"`
	Net        decimal.Decimal `json:"net_total"`
}

func (t *Totals) Add(o models.Order) {
	t.OrderCount++
	if o.PaymentMethod.Reconcilable() {
		t.Gross = t.Gross.Add(o.GrossAmount)
	}
	t.RiderFee = t.RiderFee.Add(o.RiderFee.Decimal)
	t.CourierFee = t.CourierFee.Add(o.CourierFee.Decimal)
	t.Fee = t.RiderFee.Add(t.CourierFee)
	t.Net = t.Gross.Sub(t.Fee)
}

func TotalsOf(orders []models.Order) Totals {
	var t Totals
	for _, o := range orders {
		t.Add(o)
	}
	return t
}

type MethodTotal struct {
	Method     models.PaymentMethod `json:"method"`
	OrderCount int                  `json:"order_count"`
	Amount     decimal.Decimal      `json:"amount"`
}

type DailySummary struct {
	Date         time.Time              `json:"-"`
	Day          string                 `json:"date"`
	SettledCount int                    `json:"settled_count"`
	PendingCount int                    `json:"pending_count"`
	State        models.SettlementState `json:"state"`
	ByMethod     []MethodTotal          `json:"by_method"`
	OrderIDs     []uint                 `json:"order_ids"`
	Totals
}

// SummaryOptions replaces the filters the dashboard used to keep in local storage.
type SummaryOptions struct {
	Scope *models.Scope
	From  time.Time // inclusive, zero means open
	To    time.Time // inclusive, zero means open
	// Policy values orders whose fees were never computed. Nil counts them as zero.
	Policy fee.Policy
}

func (opts SummaryOptions) includes(o models.Order) bool {
	if opts.Scope != nil && !opts.Scope.Matches(o) {
		return false
	}
	d := DayOf(o.DeliveryDate)
	if !opts.From.IsZero() && d.Before(DayOf(opts.From)) {
		return false
	}
	if !opts.To.IsZero() && d.After(DayOf(opts.To)) {
		return false
	}
	return true
}

// Summarize groups orders by delivery date, oldest first.
func Summarize(orders []models.Order, opts SummaryOptions) []DailySummary {
	byDay := make(map[time.Time]*DailySummary)
	methodIdx := make(map[time.Time]map[models.PaymentMethod]int)

	for _, o := range orders {
		if !opts.includes(o) {
			continue
		}
		o = valued(o, opts.Policy)
		d := DayOf(o.DeliveryDate)

		s, ok := byDay[d]
		if !ok {
			s = &DailySummary{Date: d, Day: d.Format(dateLayout)}
			byDay[d] = s
			methodIdx[d] = make(map[models.PaymentMethod]int)
		}
		s.Add(o)
		s.OrderIDs = append(s.OrderIDs, o.ID)
		switch o.SettlementState() {
		case models.StateValidated:
			s.SettledCount++
		case models.StatePendingValidation:
			s.PendingCount++
		}

		i, ok := methodIdx[d][o.PaymentMethod]
		if !ok {
			i = len(s.ByMethod)
			methodIdx[d][o.PaymentMethod] = i
			s.ByMethod = append(s.ByMethod, MethodTotal{Method: o.PaymentMethod})
		}
		s.ByMethod[i].OrderCount++
		s.ByMethod[i].Amount = s.ByMethod[i].Amount.Add(o.GrossAmount)
	}

	out := make([]DailySummary, 0, len(byDay))
	for _, s := range byDay {
		s.State = models.StateUnsettled
		if s.SettledCount == s.OrderCount {
			s.State = models.StateValidated
		}
		sort.Slice(s.ByMethod, func(i, j int) bool { return s.ByMethod[i].Method < s.ByMethod[j].Method })
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ExpandDays turns a day selection into the ids of the orders still open on those days.
// Fully validated days and orders already sitting in a batch are skipped, so a stale
// client selecting them gets a no-op instead of an error.
func ExpandDays(orders []models.Order, days []time.Time) []uint {
	want := make(map[time.Time]bool, len(days))
	for _, d := range days {
		want[DayOf(d)] = true
	}

	var ids []uint
	for _, s := range Summarize(orders, SummaryOptions{}) {
		if !want[s.Date] || s.State == models.StateValidated {
			continue
		}
		for _, o := range orders {
			if DayOf(o.DeliveryDate).Equal(s.Date) && o.SettlementState() == models.StateUnsettled {
				ids = append(ids, o.ID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BatchSummary values an abono from the orders it contains.
type BatchSummary struct {
	Totals
	Days []DailySummary `json:"days"`
}

func SummarizeBatch(orders []models.Order) BatchSummary {
	return BatchSummary{
		Totals: TotalsOf(orders),
		Days:   Summarize(orders, SummaryOptions{}),
	}
}

// DayOf truncates t to its calendar date in UTC.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func valued(o models.Order, p fee.Policy) models.Order {
	if p == nil || o.FeesComputed() {
		return o
	}
	s := p.Suggest(o)
	if !o.RiderFee.Valid {
		o.RiderFee = decimal.NewNullDecimal(s.Rider)
	}
	if !o.CourierFee.Valid {
		o.CourierFee = decimal.NewNullDecimal(s.Courier)
	}
	return o
}
