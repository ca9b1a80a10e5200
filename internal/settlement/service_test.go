package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cuadre-backend/internal/dbtest"
	"cuadre-backend/internal/fee"
	"cuadre-backend/internal/ledger"
	"cuadre-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     *Service
	courier models.Courier
	sede    models.Sede
	other   models.Sede
	rider   models.User
	actor   Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	f := &fixture{db: db}
	f.courier = models.Courier{Name: "Rayo"}
	mustCreate(t, db, &f.courier)
	f.sede = models.Sede{CourierID: f.courier.ID, Name: "Lima Centro"}
	mustCreate(t, db, &f.sede)
	f.other = models.Sede{CourierID: f.courier.ID, Name: "Surco"}
	mustCreate(t, db, &f.other)
	f.rider = models.User{Name: "Moto", Email: "moto@rayo.pe", PasswordHash: "x", Role: models.RoleRider, CourierID: &f.courier.ID}
	mustCreate(t, db, &f.rider)

	calc := fee.NewCalculator(fee.FlatPolicy{Rider: dec("8"), Courier: dec("2")})
	f.svc = NewService(db, calc)
	f.actor = Actor{UserID: 1, Name: "Revisor"}
	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v any) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) time.Time {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// order stores an open order of the fixture sede. Empty fees stay null.
func (f *fixture) order(t *testing.T, code, day string, method models.PaymentMethod, gross, riderFee, courierFee string) models.Order {
	t.Helper()
	o := models.Order{
		Code:          code,
		DeliveryDate:  date(day),
		PaymentMethod: method,
		GrossAmount:   dec(gross),
		CourierID:     f.courier.ID,
		SedeID:        f.sede.ID,
		RiderID:       &f.rider.ID,
	}
	if riderFee != "" {
		o.RiderFee = decimal.NewNullDecimal(dec(riderFee))
		o.SuggestedRiderFee = o.RiderFee
	}
	if courierFee != "" {
		o.CourierFee = decimal.NewNullDecimal(dec(courierFee))
		o.SuggestedCourierFee = o.CourierFee
	}
	if err := ledger.New(f.db).Create(context.Background(), &o); err != nil {
		t.Fatalf("create order %s: %v", code, err)
	}
	return o
}

func (f *fixture) sedeScope() models.Scope {
	return models.Scope{Kind: models.ScopeSede, ID: f.sede.ID}
}

func (f *fixture) reload(t *testing.T, id uint) models.Order {
	t.Helper()
	o, err := ledger.New(f.db).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("reload order %d: %v", id, err)
	}
	return o
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSubmitValidateLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "A-1", "2024-03-01", models.PaymentCash, "100", "", "")
	b := f.order(t, "A-2", "2024-03-01", models.PaymentOther, "50", "4", "1")

	view, err := f.svc.Submit(ctx, SubmitInput{
		Actor:       f.actor,
		Scope:       f.sedeScope(),
		OrderIDs:    []uint{b.ID, a.ID, a.ID},
		EvidenceRef: "evidence/voucher-1.jpg",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if view.Batch.State != models.StatePendingValidation {
		t.Fatalf("batch state = %s", view.Batch.State)
	}
	if len(view.Batch.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(view.Batch.Items))
	}
	if !view.Summary.Gross.Equal(dec("100")) || !view.Summary.Fee.Equal(dec("15")) || !view.Summary.Net.Equal(dec("85")) {
		t.Errorf("summary = %+v", view.Summary.Totals)
	}

	got := f.reload(t, a.ID)
	if got.SettlementState() != models.StatePendingValidation {
		t.Errorf("order state = %s", got.SettlementState())
	}
	if !got.RiderFee.Valid || !got.RiderFee.Decimal.Equal(dec("8")) {
		t.Errorf("null fee not frozen: %+v", got.RiderFee)
	}

	_, err = f.svc.Validate(ctx, ValidateInput{Actor: f.actor, BatchID: view.Batch.ID})
	var cr *ConfirmationRequiredError
	if !errors.As(err, &cr) {
		t.Fatalf("Validate without confirmation: %v", err)
	}

	validated, err := f.svc.Validate(ctx, ValidateInput{Actor: f.actor, BatchID: view.Batch.ID, Confirm: true})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if validated.Batch.State != models.StateValidated || !validated.Batch.FundsConfirmed {
		t.Errorf("batch after validate = %s confirmed=%v", validated.Batch.State, validated.Batch.FundsConfirmed)
	}
	for _, id := range []uint{a.ID, b.ID} {
		o := f.reload(t, id)
		if !o.Settled || o.SettledAt == nil || o.SettledBy == nil {
			t.Errorf("order %d not settled: %+v", id, o)
		}
	}

	_, err = f.svc.Validate(ctx, ValidateInput{Actor: f.actor, BatchID: view.Batch.ID, Confirm: true})
	var ist *InvalidStateTransitionError
	if !errors.As(err, &ist) || ist.From != models.StateValidated {
		t.Fatalf("second Validate: %v", err)
	}
	_, err = f.svc.Observe(ctx, ObserveInput{Actor: f.actor, BatchID: view.Batch.ID, Reason: "late"})
	if !errors.As(err, &ist) {
		t.Fatalf("Observe after validate: %v", err)
	}

	if n := f.count(t, &models.AuditLog{}, "entity_type = ?", entityBatch); n != 2 {
		t.Errorf("batch audit rows = %d, want 2", n)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "P-1", "2024-03-01", models.PaymentCash, "20", "", "")

	_, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, EvidenceRef: "  "})
	var er *EvidenceRequiredError
	if !errors.As(err, &er) {
		t.Fatalf("missing evidence: %v", err)
	}

	_, err = f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), EvidenceRef: "x"})
	var es *EmptySelectionError
	if !errors.As(err, &es) {
		t.Fatalf("empty selection: %v", err)
	}

	_, err = f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID, 9999}, EvidenceRef: "x"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != 9999 {
		t.Fatalf("unknown order: %v", err)
	}

	foreign := models.Scope{Kind: models.ScopeSede, ID: f.other.ID}
	_, err = f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: foreign, OrderIDs: []uint{a.ID}, EvidenceRef: "x"})
	var sm *ScopeMismatchError
	if !errors.As(err, &sm) || sm.OrderID != a.ID {
		t.Fatalf("scope mismatch: %v", err)
	}

	if n := f.count(t, &models.SettlementBatch{}, ""); n != 0 {
		t.Errorf("batches created by failed submits: %d", n)
	}
	if got := f.reload(t, a.ID); got.SettlementState() != models.StateUnsettled || got.FeesComputed() {
		t.Errorf("order touched by failed submits: %+v", got)
	}

	if _, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, EvidenceRef: "x"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, EvidenceRef: "y"})
	var ist *InvalidStateTransitionError
	if !errors.As(err, &ist) || ist.From != models.StatePendingValidation {
		t.Fatalf("double submit: %v", err)
	}
}

func TestSubmitByDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.order(t, "D-1", "2024-03-01", models.PaymentCash, "10", "1", "1")
	open1 := f.order(t, "D-2", "2024-03-02", models.PaymentCash, "30", "1", "1")
	open2 := f.order(t, "D-3", "2024-03-02", models.PaymentDigitalCourier, "40", "1", "1")
	f.order(t, "D-4", "2024-03-03", models.PaymentCash, "99", "1", "1")

	if _, err := f.svc.MarkSettled(ctx, MarkSettledInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{done.ID}, Confirm: true}); err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}

	view, err := f.svc.Submit(ctx, SubmitInput{
		Actor:       f.actor,
		Scope:       f.sedeScope(),
		Days:        []time.Time{date("2024-03-01"), date("2024-03-02")},
		EvidenceRef: "x",
	})
	if err != nil {
		t.Fatalf("Submit by days: %v", err)
	}
	var ids []uint
	for _, it := range view.Batch.Items {
		ids = append(ids, it.OrderID)
	}
	if len(ids) != 2 || ids[0] != open1.ID || ids[1] != open2.ID {
		t.Errorf("batch orders = %v, want [%d %d]", ids, open1.ID, open2.ID)
	}

	batches := f.count(t, &models.SettlementBatch{}, "")
	for _, days := range [][]time.Time{
		{date("2024-03-01")},                     // validated
		{date("2024-03-02")},                     // already pending
		{date("2024-03-01"), date("2024-03-02")}, // both
	} {
		stale, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), Days: days, EvidenceRef: "x"})
		if err != nil || stale.Batch.ID != 0 {
			t.Errorf("stale days %v: batch %d, err %v", days, stale.Batch.ID, err)
		}
	}
	if n := f.count(t, &models.SettlementBatch{}, ""); n != batches {
		t.Errorf("stale day selection created batches: %d -> %d", batches, n)
	}
}

// move reassigns an order to another sede and rider. A zero rider clears it.
func (f *fixture) move(t *testing.T, o models.Order, sedeID, riderID uint) {
	t.Helper()
	var rider any
	if riderID != 0 {
		rider = riderID
	}
	if err := f.db.Model(&models.Order{}).Where("id = ?", o.ID).
		Updates(map[string]any{"sede_id": sedeID, "rider_id": rider}).Error; err != nil {
		t.Fatalf("move order %d: %v", o.ID, err)
	}
}

func TestSelectionMustShareRiderOrSede(t *testing.T) {
	type arrangeFunc func(t *testing.T, f *fixture, a, b models.Order, other models.User)

	tests := []struct {
		name      string
		arrange   arrangeFunc
		wantScope func(f *fixture, other models.User) models.Scope // nil means the selection is rejected
	}{
		{
			name: "different sedes and riders",
			arrange: func(t *testing.T, f *fixture, a, b models.Order, other models.User) {
				f.move(t, b, f.other.ID, other.ID)
			},
		},
		{
			name: "different sedes without rider",
			arrange: func(t *testing.T, f *fixture, a, b models.Order, other models.User) {
				f.move(t, a, f.sede.ID, 0)
				f.move(t, b, f.other.ID, 0)
			},
		},
		{
			name: "same rider across sedes",
			arrange: func(t *testing.T, f *fixture, a, b models.Order, other models.User) {
				f.move(t, b, f.other.ID, f.rider.ID)
			},
			wantScope: func(f *fixture, other models.User) models.Scope {
				return models.Scope{Kind: models.ScopeRider, ID: f.rider.ID}
			},
		},
		{
			name: "same sede with different riders",
			arrange: func(t *testing.T, f *fixture, a, b models.Order, other models.User) {
				f.move(t, b, f.sede.ID, other.ID)
			},
			wantScope: func(f *fixture, other models.User) models.Scope { return f.sedeScope() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			company := models.Scope{Kind: models.ScopeCourier, ID: f.courier.ID}
			other := models.User{Name: "Veloz", Email: "veloz@rayo.pe", PasswordHash: "x", Role: models.RoleRider, CourierID: &f.courier.ID}
			mustCreate(t, f.db, &other)

			a := f.order(t, "S-1", "2024-03-01", models.PaymentCash, "100", "8", "2")
			b := f.order(t, "S-2", "2024-03-01", models.PaymentCash, "50", "8", "2")
			c := f.order(t, "S-3", "2024-03-01", models.PaymentCash, "100", "8", "2")
			d := f.order(t, "S-4", "2024-03-01", models.PaymentCash, "50", "8", "2")
			tt.arrange(t, f, a, b, other)
			tt.arrange(t, f, c, d, other)

			_, settleErr := f.svc.MarkSettled(ctx, MarkSettledInput{Actor: f.actor, Scope: company, OrderIDs: []uint{a.ID, b.ID}, Confirm: true})
			view, submitErr := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: company, OrderIDs: []uint{c.ID, d.ID}, EvidenceRef: "x"})

			if tt.wantScope == nil {
				var sm *ScopeMismatchError
				if !errors.As(settleErr, &sm) {
					t.Errorf("MarkSettled: err = %v, want ScopeMismatchError", settleErr)
				}
				if !errors.As(submitErr, &sm) {
					t.Errorf("Submit: err = %v, want ScopeMismatchError", submitErr)
				}
				if n := f.count(t, &models.Order{}, "settled = ? OR batch_id IS NOT NULL", true); n != 0 {
					t.Errorf("%d orders changed by a mixed selection", n)
				}
				return
			}

			if settleErr != nil || submitErr != nil {
				t.Fatalf("MarkSettled: %v, Submit: %v", settleErr, submitErr)
			}
			want := tt.wantScope(f, other)
			if got := (models.Scope{Kind: view.Batch.ScopeKind, ID: view.Batch.ScopeID}); got != want {
				t.Errorf("batch scope = %s, want %s", got, want)
			}
		})
	}
}

func TestObserveReleasesOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "O-1", "2024-03-01", models.PaymentCash, "60", "", "")

	view, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, EvidenceRef: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = f.svc.Observe(ctx, ObserveInput{Actor: f.actor, BatchID: view.Batch.ID, Reason: " "})
	var or *ObservationRequiredError
	if !errors.As(err, &or) {
		t.Fatalf("Observe without reason: %v", err)
	}

	observed, err := f.svc.Observe(ctx, ObserveInput{Actor: f.actor, BatchID: view.Batch.ID, Reason: "voucher ilegible"})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if observed.Batch.State != models.StateObserved || observed.Batch.Observation != "voucher ilegible" {
		t.Errorf("batch = %+v", observed.Batch)
	}
	if got := f.reload(t, a.ID); got.SettlementState() != models.StateUnsettled {
		t.Errorf("order state after observe = %s", got.SettlementState())
	}

	_, err = f.svc.Validate(ctx, ValidateInput{Actor: f.actor, BatchID: view.Batch.ID, Confirm: true})
	var ist *InvalidStateTransitionError
	if !errors.As(err, &ist) || ist.From != models.StateObserved {
		t.Fatalf("validate observed batch: %v", err)
	}

	again, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, EvidenceRef: "voucher-2"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.Batch.ID == view.Batch.ID {
		t.Error("observed batch reused")
	}
}

func TestValidateUnknownBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Validate(context.Background(), ValidateInput{Actor: f.actor, BatchID: 42, Confirm: true})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Entity != entityBatch {
		t.Fatalf("err = %v", err)
	}
}

func TestMarkSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "M-1", "2024-03-01", models.PaymentCash, "100", "", "")
	b := f.order(t, "M-2", "2024-03-01", models.PaymentOther, "50", "4", "1")

	in := MarkSettledInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID, b.ID}}
	_, err := f.svc.MarkSettled(ctx, in)
	var cr *ConfirmationRequiredError
	if !errors.As(err, &cr) {
		t.Fatalf("without confirmation: %v", err)
	}

	in.Confirm = true
	res, err := f.svc.MarkSettled(ctx, in)
	if err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}
	if res.SettledCount != 2 || !res.TotalGross.Equal(dec("100")) || !res.TotalFee.Equal(dec("15")) || !res.TotalNet.Equal(dec("85")) {
		t.Errorf("result = %+v", res)
	}

	_, err = f.svc.MarkSettled(ctx, in)
	var as *AlreadySettledError
	if !errors.As(err, &as) || len(as.OrderIDs) != 2 {
		t.Fatalf("second MarkSettled: %v", err)
	}

	days, err := f.svc.Summary(ctx, f.sedeScope(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(days) != 1 || days[0].State != models.StateValidated || !days[0].Fee.Equal(dec("15")) {
		t.Errorf("summary after settle = %+v", days)
	}
}

func TestMarkSettledIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	settled := f.order(t, "X-1", "2024-03-01", models.PaymentCash, "10", "1", "1")
	fresh := f.order(t, "X-2", "2024-03-01", models.PaymentCash, "10", "1", "1")
	pending := f.order(t, "X-3", "2024-03-01", models.PaymentCash, "10", "1", "1")

	if _, err := f.svc.MarkSettled(ctx, MarkSettledInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{settled.ID}, Confirm: true}); err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}
	if _, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{pending.ID}, EvidenceRef: "x"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := f.svc.MarkSettled(ctx, MarkSettledInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{fresh.ID, settled.ID}, Confirm: true})
	var as *AlreadySettledError
	if !errors.As(err, &as) || len(as.OrderIDs) != 1 || as.OrderIDs[0] != settled.ID {
		t.Fatalf("mixed selection: %v", err)
	}
	if got := f.reload(t, fresh.ID); got.Settled {
		t.Error("fresh order settled by a failed call")
	}

	_, err = f.svc.MarkSettled(ctx, MarkSettledInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{fresh.ID, pending.ID}, Confirm: true})
	var ist *InvalidStateTransitionError
	if !errors.As(err, &ist) || ist.ID != pending.ID {
		t.Fatalf("pending order in selection: %v", err)
	}
	if got := f.reload(t, fresh.ID); got.Settled {
		t.Error("fresh order settled by a failed call")
	}
}

func TestMarkSettledConcurrent(t *testing.T) {
	f := newFixture(t)
	a := f.order(t, "C-1", "2024-03-01", models.PaymentCash, "10", "", "")
	b := f.order(t, "C-2", "2024-03-01", models.PaymentCash, "20", "", "")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.MarkSettled(context.Background(), MarkSettledInput{
				Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID, b.ID}, Confirm: true,
			})
			mu.Lock()
			defer mu.Unlock()
			var as *AlreadySettledError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &as):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 || len(others) != 0 {
		t.Fatalf("successes=%d conflicts=%d others=%v", successes, conflicts, others)
	}
	if n := f.count(t, &models.AuditLog{}, "action = ?", models.AuditActionSettle); n != 1 {
		t.Errorf("settle audit rows = %d, want 1", n)
	}
}

func TestUpdateFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "F-1", "2024-03-01", models.PaymentCash, "100", "", "")
	twelve := dec("12")

	_, _, err := f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID, RiderFee: &twelve})
	var fe *fee.InvalidFeeError
	if !errors.As(err, &fe) {
		t.Fatalf("override without reason: %v", err)
	}

	o, res, err := f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID, RiderFee: &twelve, Reason: "zona lejana"})
	if err != nil {
		t.Fatalf("UpdateFee: %v", err)
	}
	if !res.Total().Equal(dec("14")) || o.RiderFeeOverrideReason != "zona lejana" || o.Version != 2 {
		t.Errorf("order = %+v result = %+v", o, res)
	}
	stored := f.reload(t, a.ID)
	if !stored.RiderFee.Decimal.Equal(twelve) || !stored.SuggestedRiderFee.Decimal.Equal(dec("8")) {
		t.Errorf("stored fees = %v / %v", stored.RiderFee, stored.SuggestedRiderFee)
	}

	foreign := models.Scope{Kind: models.ScopeSede, ID: f.other.ID}
	_, _, err = f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, Scope: &foreign, OrderID: a.ID})
	var sm *ScopeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("foreign scope: %v", err)
	}

	if _, err := f.svc.MarkSettled(ctx, MarkSettledInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, Confirm: true}); err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}
	_, _, err = f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID})
	var as *AlreadySettledError
	if !errors.As(err, &as) {
		t.Fatalf("fee edit after settle: %v", err)
	}
	if got := f.reload(t, a.ID); !got.RiderFee.Decimal.Equal(twelve) {
		t.Errorf("settled fee changed to %v", got.RiderFee)
	}
}

func TestUpdateFeeKeepsOtherOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "K-1", "2024-03-01", models.PaymentCash, "100", "", "")
	five, three := dec("5"), dec("3")

	if _, _, err := f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID, RiderFee: &five, Reason: "zona cercana"}); err != nil {
		t.Fatalf("rider override: %v", err)
	}
	if _, _, err := f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID, CourierFee: &three, Reason: "promo"}); err != nil {
		t.Fatalf("courier override: %v", err)
	}

	got := f.reload(t, a.ID)
	if !got.RiderFee.Decimal.Equal(five) || got.RiderFeeOverrideReason != "zona cercana" {
		t.Errorf("rider override lost: %v %q", got.RiderFee, got.RiderFeeOverrideReason)
	}
	if !got.CourierFee.Decimal.Equal(three) || got.CourierFeeOverrideReason != "promo" {
		t.Errorf("courier fee = %v %q", got.CourierFee, got.CourierFeeOverrideReason)
	}

	precise := dec("2.505")
	_, _, err := f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID, CourierFee: &precise, Reason: "x"})
	var fe *fee.InvalidFeeError
	if !errors.As(err, &fe) || fe.Reason != fee.ReasonPrecision {
		t.Fatalf("three decimals: %v", err)
	}

	if _, _, err := f.svc.UpdateFee(ctx, UpdateFeeInput{Actor: f.actor, OrderID: a.ID}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got = f.reload(t, a.ID)
	if !got.TotalFee().Equal(dec("10")) || got.RiderFeeOverrideReason != "" || got.CourierFeeOverrideReason != "" {
		t.Errorf("reset to suggestion = %v/%v", got.RiderFee, got.CourierFee)
	}
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.order(t, "L-1", "2024-03-01", models.PaymentCash, "10", "1", "1")
	b := f.order(t, "L-2", "2024-03-02", models.PaymentCash, "10", "1", "1")

	first, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{a.ID}, EvidenceRef: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Submit(ctx, SubmitInput{Actor: f.actor, Scope: f.sedeScope(), OrderIDs: []uint{b.ID}, EvidenceRef: "y"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Validate(ctx, ValidateInput{Actor: f.actor, BatchID: first.Batch.ID, Confirm: true}); err != nil {
		t.Fatal(err)
	}

	all, err := f.svc.List(ctx, f.sedeScope(), "")
	if err != nil || len(all) != 2 {
		t.Fatalf("List all = %d, %v", len(all), err)
	}
	pending, err := f.svc.List(ctx, f.sedeScope(), models.StatePendingValidation)
	if err != nil || len(pending) != 1 || pending[0].Batch.Items[0].OrderID != b.ID {
		t.Fatalf("List pending = %+v, %v", pending, err)
	}
	byCourier, err := f.svc.List(ctx, models.Scope{Kind: models.ScopeCourier, ID: f.courier.ID}, "")
	if err != nil || len(byCourier) != 2 {
		t.Fatalf("List by courier = %d, %v", len(byCourier), err)
	}

	got, err := f.svc.Get(ctx, first.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary.OrderCount != 1 || len(got.Summary.Days) != 1 || got.Summary.Days[0].State != models.StateValidated {
		t.Errorf("Get summary = %+v", got.Summary)
	}
}
