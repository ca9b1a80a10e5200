package settlement

import (
	"fmt"
	"io"

	"cuadre-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Cuadre"

var exportHeader = []any{"FECHA", "PEDIDOS", "LIQUIDADOS", "POR VALIDAR", "ESTADO", "MONTO BRUTO", "SERVICIO MOTORIZADO", "SERVICIO COURIER", "SERVICIO TOTAL", "NETO"}

var stateLabels = map[models.SettlementState]string{
	models.StateUnsettled:         "Sin Validar",
	models.StatePendingValidation: "Por Validar",
	models.StateValidated:         "Validado",
	models.StateObserved:          "Observado",
}

// WriteSummary renders the daily cuadre of a scope as an .xlsx workbook with a total row.
func WriteSummary(w io.Writer, scope models.Scope, days []DailySummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}

	title := fmt.Sprintf("Cuadre de saldo %s %d", scope.Kind, scope.ID)
	if err := f.SetCellValue(exportSheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A3", &exportHeader); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	_ = f.SetCellStyle(exportSheet, "A1", "A1", bold)
	_ = f.SetCellStyle(exportSheet, "A3", "J3", bold)

	row := 4
	for _, d := range days {
		cells := []any{
			d.Day, d.OrderCount, d.SettledCount, d.PendingCount, stateLabels[d.State],
			amount(d.Gross), amount(d.RiderFee), amount(d.CourierFee), amount(d.Fee), amount(d.Net),
		}
		if err := f.SetSheetRow(exportSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		row++
	}
	total := GrandTotal(days)

	totalRow := []any{"TOTAL", total.OrderCount, nil, nil, nil,
		amount(total.Gross), amount(total.RiderFee), amount(total.CourierFee), amount(total.Fee), amount(total.Net)}
	if err := f.SetSheetRow(exportSheet, fmt.Sprintf("A%d", row), &totalRow); err != nil {
		return err
	}
	_ = f.SetCellStyle(exportSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), bold)
	_ = f.SetCellStyle(exportSheet, "F4", fmt.Sprintf("J%d", row), money)
	_ = f.SetColWidth(exportSheet, "A", "A", 14)
	_ = f.SetColWidth(exportSheet, "F", "J", 18)

	_, err = f.WriteTo(w)
	return err
}

func amount(d decimal.Decimal) float64 {
	v, _ := d.Round(2).Float64()
	return v
}
