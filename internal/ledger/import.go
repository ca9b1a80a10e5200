package ledger

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cuadre-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Expected column order of an import sheet:
// CODIGO | FECHA ENTREGA | CLIENTE | DISTRITO | METODO PAGO | MONTO | SEDE | MOTORIZADO
const importColumns = 8

type RowError struct {
	Row     int    `json:"row,omitempty"` // sheet row, 0 when the error is not tied to one
	Message string `json:"message"`
}

// ParseSheet reads the first sheet of an .xlsx file into orders. Rows that cannot be
// parsed are reported and skipped; the caller decides whether to accept a partial file.
// CourierID is left for the caller to resolve from the sede.
func ParseSheet(r io.Reader, loc *time.Location) ([]models.Order, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("excel file could not be read: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("sheet could not be read: %w", err)
	}

	start := 0
	if len(rows) > 0 && len(rows[0]) > 0 && isHeader(rows[0][0]) {
		start = 1
	}

	var (
		orders  []models.Order
		rowErrs []RowError
	)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		o, err := parseRow(row, loc)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		orders = append(orders, o)
	}
	return orders, rowErrs, nil
}

func parseRow(row []string, loc *time.Location) (models.Order, error) {
	cells := make([]string, importColumns)
	for i := 0; i < importColumns && i < len(row); i++ {
		cells[i] = strings.TrimSpace(row[i])
	}

	var o models.Order
	if cells[0] == "" {
		return o, fmt.Errorf("código vacío")
	}
	o.Code = cells[0]

	d, err := time.ParseInLocation("2006-01-02", cells[1], loc)
	if err != nil {
		return o, fmt.Errorf("fecha inválida %q, formato YYYY-MM-DD", cells[1])
	}
	o.DeliveryDate = day(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC))

	o.ClientName = cells[2]
	o.ClientDistrict = cells[3]

	m, ok := ParsePaymentMethod(cells[4])
	if !ok {
		return o, fmt.Errorf("método de pago desconocido %q", cells[4])
	}
	o.PaymentMethod = m

	amount, err := ParseAmount(cells[5])
	if err != nil {
		return o, err
	}
	o.GrossAmount = amount

	sede, err := strconv.ParseUint(cells[6], 10, 64)
	if err != nil || sede == 0 {
		return o, fmt.Errorf("sede inválida %q", cells[6])
	}
	o.SedeID = uint(sede)

	if cells[7] != "" {
		rider, err := strconv.ParseUint(cells[7], 10, 64)
		if err != nil || rider == 0 {
			return o, fmt.Errorf("motorizado inválido %q", cells[7])
		}
		rid := uint(rider)
		o.RiderID = &rid
	}
	return o, nil
}

// ParsePaymentMethod accepts the API values and the labels used on the dashboards.
func ParsePaymentMethod(s string) (models.PaymentMethod, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "efectivo", "contraentrega":
		return models.PaymentCash, true
	case "yape", "plin", "transferencia", "digital courier", "pago courier":
		return models.PaymentDigitalCourier, true
	case "pago ecommerce", "digital ecommerce", "pasarela":
		return models.PaymentDigitalEcommerce, true
	case "otro", "otros":
		return models.PaymentOther, true
	}
	m := models.PaymentMethod(v)
	return m, m.Valid()
}

// ParseAmount reads amounts such as "S/ 1,250.50" or "35.9".
func ParseAmount(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(v, "S/.")
	v = strings.TrimPrefix(v, "S/")
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("monto inválido %q", s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("monto negativo %q", s)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Decimal{}, fmt.Errorf("monto con más de 2 decimales %q", s)
	}
	return d, nil
}

func isHeader(cell string) bool {
	c := strings.ToUpper(strings.TrimSpace(cell))
	return strings.Contains(c, "CODIGO") || strings.Contains(c, "CÓDIGO") || c == "CODE"
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
