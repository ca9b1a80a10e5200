package settlement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cuadre-backend/internal/auth"
	"cuadre-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New()
	api := app.Group("/api", auth.JWTMiddleware(testSecret))

	api.Get("/settlements/summary", SummaryHandler(f.svc))
	api.Get("/settlements/summary/export", ExportSummaryHandler(f.svc))
	api.Get("/settlements", ListBatchesHandler(f.svc))
	api.Get("/settlements/:id", GetBatchHandler(f.svc))
	api.Post("/settlements/submit", auth.RequireRole(models.RoleCourier, models.RoleEcommerce, models.RoleRider), SubmitHandler(f.svc))
	api.Post("/settlements/mark-settled", auth.RequireRole(models.RoleAdmin, models.RoleCourier), MarkSettledHandler(f.svc))
	api.Post("/settlements/:id/validate", auth.RequireRole(models.RoleAdmin, models.RoleCourier), ValidateHandler(f.svc))
	api.Post("/settlements/:id/observe", auth.RequireRole(models.RoleAdmin, models.RoleCourier), ObserveHandler(f.svc))
	api.Post("/orders/:id/fee", auth.RequireRole(models.RoleAdmin, models.RoleCourier), UpdateFeeHandler(f.svc))
	return app
}

func tokenFor(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, &u)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestSettlementFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	a := f.order(t, "H-1", "2024-03-01", models.PaymentCash, "100", "", "")
	b := f.order(t, "H-2", "2024-03-01", models.PaymentOther, "50", "4", "1")

	shop := tokenFor(t, models.User{ID: 40, Name: "Tienda", Role: models.RoleEcommerce, SedeID: &f.sede.ID})
	staff := tokenFor(t, models.User{ID: 41, Name: "Operador", Role: models.RoleCourier, CourierID: &f.courier.ID})

	rival := models.Courier{Name: "Flash"}
	mustCreate(t, f.db, &rival)
	stranger := tokenFor(t, models.User{ID: 42, Name: "Otro", Role: models.RoleCourier, CourierID: &rival.ID})

	resp, _ := call(t, app, "POST", "/api/settlements/submit", shop, fiber.Map{"order_ids": []uint{a.ID, b.ID}})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("submit without evidence = %d", resp.StatusCode)
	}

	resp, data := call(t, app, "POST", "/api/settlements/submit", shop, fiber.Map{
		"order_ids":    []uint{a.ID, b.ID},
		"evidence_ref": "evidence/2024/03/voucher.jpg",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("submit = %d %s", resp.StatusCode, data)
	}
	var batch BatchResponse
	if err := json.Unmarshal(data, &batch); err != nil {
		t.Fatal(err)
	}
	if batch.State != models.StatePendingValidation || len(batch.OrderIDs) != 2 || !batch.Summary.Net.Equal(dec("85")) {
		t.Errorf("batch = %+v", batch)
	}

	validatePath := fmt.Sprintf("/api/settlements/%d/validate", batch.ID)
	tests := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"ecommerce cannot validate", shop, fiber.Map{"confirm": true}, fiber.StatusForbidden},
		{"other courier", stranger, fiber.Map{"confirm": true}, fiber.StatusNotFound},
		{"missing confirmation", staff, fiber.Map{"confirm": false}, fiber.StatusBadRequest},
		{"validate", staff, fiber.Map{"confirm": true}, fiber.StatusOK},
		{"validate twice", staff, fiber.Map{"confirm": true}, fiber.StatusConflict},
	}
	for _, tt := range tests {
		resp, data := call(t, app, "POST", validatePath, tt.token, tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, resp.StatusCode, tt.want, data)
		}
	}

	resp, _ = call(t, app, "POST", "/api/settlements/mark-settled", staff, fiber.Map{"order_ids": []uint{a.ID}, "confirm": true})
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("mark-settled on validated order = %d", resp.StatusCode)
	}

	resp, data = call(t, app, "POST", "/api/settlements/submit", shop, fiber.Map{
		"days":         []string{"2024-03-01"},
		"evidence_ref": "evidence/2024/03/voucher-2.jpg",
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("submit of a validated day = %d %s", resp.StatusCode, data)
	}

	resp, _ = call(t, app, "GET", fmt.Sprintf("/api/settlements/%d", batch.ID), stranger, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("foreign batch detail = %d", resp.StatusCode)
	}

	resp, data = call(t, app, "GET", "/api/settlements?state=validated", shop, nil)
	var list []BatchResponse
	if resp.StatusCode != fiber.StatusOK || json.Unmarshal(data, &list) != nil || len(list) != 1 {
		t.Errorf("list = %d %s", resp.StatusCode, data)
	}
}

func TestSummaryAndExportOverHTTP(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	f.order(t, "S-1", "2024-03-01", models.PaymentCash, "100", "8", "2")
	f.order(t, "S-2", "2024-03-02", models.PaymentDigitalCourier, "40", "8", "2")

	staff := tokenFor(t, models.User{ID: 41, Role: models.RoleCourier, CourierID: &f.courier.ID})
	query := fmt.Sprintf("?scope=sede&scope_id=%d&from=2024-03-02", f.sede.ID)

	resp, data := call(t, app, "GET", "/api/settlements/summary"+query, staff, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("summary = %d %s", resp.StatusCode, data)
	}
	var out struct {
		Days   []DailySummary `json:"days"`
		Totals Totals         `json:"totals"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Days) != 1 || out.Days[0].Day != "2024-03-02" || !out.Totals.Net.Equal(dec("30")) {
		t.Errorf("summary = %s", data)
	}

	resp, _ = call(t, app, "GET", "/api/settlements/summary?from=2024-03-05&to=2024-03-01", staff, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("inverted range = %d", resp.StatusCode)
	}

	resp, data = call(t, app, "GET", "/api/settlements/summary/export"+query, staff, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("export = %d", resp.StatusCode)
	}
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export is not a workbook: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	// title, blank, header, one day, total
	if len(rows) != 5 || rows[3][0] != "2024-03-02" || rows[4][0] != "TOTAL" {
		t.Errorf("rows = %v", rows)
	}
}

func TestUpdateFeeOverHTTP(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	o := f.order(t, "U-1", "2024-03-01", models.PaymentCash, "100", "", "")
	staff := tokenFor(t, models.User{ID: 41, Role: models.RoleCourier, CourierID: &f.courier.ID})
	path := fmt.Sprintf("/api/orders/%d/fee", o.ID)

	resp, _ := call(t, app, "POST", path, staff, fiber.Map{"rider_fee": "11.50"})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("override without reason = %d", resp.StatusCode)
	}
	resp, _ = call(t, app, "POST", path, staff, fiber.Map{"courier_fee": -1, "reason": "x"})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("negative fee = %d", resp.StatusCode)
	}

	resp, _ = call(t, app, "POST", path, staff, fiber.Map{"rider_fee": "11.505", "reason": "lluvia"})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("three decimals = %d", resp.StatusCode)
	}

	resp, data := call(t, app, "POST", path, staff, fiber.Map{"rider_fee": 11.5, "reason": "lluvia"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update fee = %d %s", resp.StatusCode, data)
	}
	var res OrderFeeResponse
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.TotalFee.Equal(dec("13.5")) || !res.RiderOverridden || res.CourierOverridden {
		t.Errorf("fee response = %+v", res)
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err       error
		want      int
		retryable bool
	}{
		{&ConfirmationRequiredError{}, fiber.StatusBadRequest, false},
		{&ScopeMismatchError{OrderID: 1}, fiber.StatusForbidden, false},
		{&NotFoundError{Entity: entityOrder, ID: 3}, fiber.StatusNotFound, false},
		{&AlreadySettledError{OrderIDs: []uint{1, 2}}, fiber.StatusConflict, false},
		{&InvalidStateTransitionError{Entity: entityBatch, From: models.StateValidated, Event: EventValidate}, fiber.StatusConflict, false},
		{&PersistenceError{Op: "submit", Err: errors.New("deadlock"), Retryable: true}, fiber.StatusServiceUnavailable, true},
		{&PersistenceError{Op: "submit", Err: errors.New("disk full")}, fiber.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		app := fiber.New()
		err := tt.err
		app.Get("/", func(c *fiber.Ctx) error { return respondError(c, err) })

		resp, err2 := app.Test(httptest.NewRequest("GET", "/", nil))
		if err2 != nil {
			t.Fatal(err2)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%T: status = %d, want %d", tt.err, resp.StatusCode, tt.want)
		}
		if tt.retryable {
			var body map[string]any
			_ = json.NewDecoder(resp.Body).Decode(&body)
			if body["retryable"] != true {
				t.Errorf("%T: body = %v", tt.err, body)
			}
		}
	}
}
