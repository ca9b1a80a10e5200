// Package dashboard serves chart data for the cuadre dashboards.
package dashboard

import (
	"sort"
	"time"

	"cuadre-backend/internal/auth"
	"cuadre-backend/internal/database"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/settlement"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type ChartPoint struct {
	Label            string          `json:"label"` // day / week start / month start
	Cash             decimal.Decimal `json:"cash"`
	DigitalCourier   decimal.Decimal `json:"digital_courier"`
	DigitalEcommerce decimal.Decimal `json:"digital_ecommerce"`
	Other            decimal.Decimal `json:"other"`
	settlement.Totals
}

type ChartResponse struct {
	Scope       models.Scope      `json:"scope"`
	Period      string            `json:"period"` // daily | weekly | monthly
	From        string            `json:"from"`
	To          string            `json:"to"`
	Points      []ChartPoint      `json:"points"`
	GrandTotals settlement.Totals `json:"grand_totals"`
}

// GET /api/dashboard/collections-chart?period=daily&count=7&scope=sede&scope_id=1
func CollectionsChartHandler(svc *settlement.Service, loc *time.Location) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		requested, err := auth.ParseScope(c.Query("scope"), c.Query("scope_id"))
		if err != nil {
			return err
		}
		scope, err := auth.ResolveScope(database.DB, id, requested)
		if err != nil {
			return err
		}

		period := c.Query("period", "daily")
		count := c.QueryInt("count", 0)
		if count < 0 || count > 366 {
			return fiber.NewError(fiber.StatusBadRequest, "count inválido")
		}

		start, end := Window(period, count, time.Now().In(loc))
		if start.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "period inválido (daily|weekly|monthly)")
		}

		days, err := svc.Summary(c.UserContext(), scope, start, end)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo calcular el gráfico")
		}

		points := Bucket(period, days)

		return c.JSON(ChartResponse{
			Scope:       scope,
			Period:      period,
			From:        start.Format("2006-01-02"),
			To:          end.Format("2006-01-02"),
			Points:      points,
			GrandTotals: settlement.GrandTotal(days),
		})
	}
}

// Window returns the first and last delivery dates covered by count periods ending at now.
// A zero start means the period is unknown. count 0 picks the default for the period.
func Window(period string, count int, now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case "daily":
		if count == 0 {
			count = 7
		}
		return today.AddDate(0, 0, -(count - 1)), today
	case "weekly":
		if count == 0 {
			count = 8
		}
		return weekStart(today).AddDate(0, 0, -7*(count-1)), today
	case "monthly":
		if count == 0 {
			count = 12
		}
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, -(count - 1), 0), today
	}
	return time.Time{}, time.Time{}
}

// Bucket folds daily summaries into chart points, oldest first.
func Bucket(period string, days []settlement.DailySummary) []ChartPoint {
	byLabel := make(map[time.Time]*ChartPoint)

	for _, d := range days {
		key := d.Date
		switch period {
		case "weekly":
			key = weekStart(d.Date)
		case "monthly":
			key = time.Date(d.Date.Year(), d.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		}

		p, ok := byLabel[key]
		if !ok {
			p = &ChartPoint{Label: key.Format("2006-01-02")}
			byLabel[key] = p
		}
		for _, m := range d.ByMethod {
			switch m.Method {
			case models.PaymentCash:
				p.Cash = p.Cash.Add(m.Amount)
			case models.PaymentDigitalCourier:
				p.DigitalCourier = p.DigitalCourier.Add(m.Amount)
			case models.PaymentDigitalEcommerce:
				p.DigitalEcommerce = p.DigitalEcommerce.Add(m.Amount)
			case models.PaymentOther:
				p.Other = p.Other.Add(m.Amount)
			}
		}
		p.OrderCount += d.OrderCount
		p.Gross = p.Gross.Add(d.Gross)
		p.RiderFee = p.RiderFee.Add(d.RiderFee)
		p.CourierFee = p.CourierFee.Add(d.CourierFee)
		p.Fee = p.RiderFee.Add(p.CourierFee)
		p.Net = p.Gross.Sub(p.Fee)
	}

	keys := make([]time.Time, 0, len(byLabel))
	for k := range byLabel {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	points := make([]ChartPoint, 0, len(keys))
	for _, k := range keys {
		points = append(points, *byLabel[k])
	}
	return points
}

// weekStart returns the Monday of t's week.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
