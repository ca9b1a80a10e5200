package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cuadre-backend/internal/audit"
	"cuadre-backend/internal/fee"
	"cuadre-backend/internal/ledger"
	"cuadre-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	entityBatch = "settlement_batch"
	entityOrder = "order"
)

// Actor is the authenticated caller performing a change.
type Actor struct {
	UserID uint
	Name   string
}

type Service struct {
	db   *gorm.DB
	calc *fee.Calculator
	now  func() time.Time
}

func NewService(db *gorm.DB, calc *fee.Calculator) *Service {
	return &Service{db: db, calc: calc, now: time.Now}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Summary returns the daily cuadre of a scope between from and to (inclusive).
func (s *Service) Summary(ctx context.Context, scope models.Scope, from, to time.Time) ([]DailySummary, error) {
	orders, err := ledger.New(s.db).Find(ctx, ledger.Filter{Scope: &scope, From: from, To: to})
	if err != nil {
		return nil, wrapStorage("summary", err)
	}
	return Summarize(orders, SummaryOptions{Scope: &scope, From: from, To: to, Policy: s.policy()}), nil
}

type BatchView struct {
	Batch   models.SettlementBatch
	Summary BatchSummary
}

func (s *Service) Get(ctx context.Context, id uint) (BatchView, error) {
	var b models.SettlementBatch
	err := withItems(s.db.WithContext(ctx)).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return BatchView{}, &NotFoundError{Entity: entityBatch, ID: id}
	}
	if err != nil {
		return BatchView{}, wrapStorage("get batch", err)
	}
	return view(b), nil
}

// List returns the batches of a scope, newest first. Empty state lists every state.
func (s *Service) List(ctx context.Context, scope models.Scope, state models.SettlementState) ([]BatchView, error) {
	q := withItems(s.db.WithContext(ctx))
	if scope.Kind == models.ScopeCourier {
		q = q.Where("courier_id = ?", scope.ID)
	} else {
		q = q.Where("scope_kind = ? AND scope_id = ?", scope.Kind, scope.ID)
	}
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var batches []models.SettlementBatch
	if err := q.Order("created_at desc, id desc").Find(&batches).Error; err != nil {
		return nil, wrapStorage("list batches", err)
	}
	out := make([]BatchView, 0, len(batches))
	for _, b := range batches {
		out = append(out, view(b))
	}
	return out, nil
}

func withItems(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_id") }).Preload("Items.Order")
}

func view(b models.SettlementBatch) BatchView {
	orders := make([]models.Order, 0, len(b.Items))
	for _, it := range b.Items {
		orders = append(orders, it.Order)
	}
	return BatchView{Batch: b, Summary: SummarizeBatch(orders)}
}

// ---------------------------------------------------------------------------
// Submit: Unsettled -> PendingValidation
// ---------------------------------------------------------------------------

type SubmitInput struct {
	Actor       Actor
	Scope       models.Scope
	OrderIDs    []uint
	Days        []time.Time // alternative selection: every open order of those days
	EvidenceRef string
}

// Submit opens a batch for the selected orders. A day selection whose days are already
// validated or pending resolves to nothing and returns a zero BatchView with no error.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (BatchView, error) {
	ref := strings.TrimSpace(in.EvidenceRef)
	if ref == "" {
		return BatchView{}, &EvidenceRequiredError{}
	}
	if len(in.OrderIDs) == 0 && len(in.Days) == 0 {
		return BatchView{}, &EmptySelectionError{}
	}

	ctx = context.WithoutCancel(ctx)
	var batchID uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := uniqueIDs(in.OrderIDs)
		if len(in.Days) > 0 {
			dayIDs, err := s.openOrdersOfDays(tx, in.Scope, in.Days)
			if err != nil {
				return err
			}
			if len(ids) == 0 && len(dayIDs) == 0 {
				return nil
			}
			ids = uniqueIDs(append(ids, dayIDs...))
		}
		if len(ids) == 0 {
			return &EmptySelectionError{}
		}

		orders, err := lockOrders(tx, ids)
		if err != nil {
			return err
		}
		scope, err := checkSelectable(orders, in.Scope, EventSubmit)
		if err != nil {
			return err
		}
		if err := s.freezeFees(tx, orders); err != nil {
			return err
		}

		state, err := transition(entityBatch, 0, models.StateUnsettled, EventSubmit)
		if err != nil {
			return err
		}

		totals := TotalsOf(orders)
		batch := models.SettlementBatch{
			Code:        newBatchCode(),
			ScopeKind:   scope.Kind,
			ScopeID:     scope.ID,
			CourierID:   orders[0].CourierID,
			State:       state,
			EvidenceRef: ref,
			TotalGross:  totals.Gross,
			TotalFee:    totals.Fee,
			TotalNet:    totals.Net,
			SubmittedBy: in.Actor.UserID,
			Version:     1,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		batchID = batch.ID

		items := make([]models.SettlementBatchItem, 0, len(orders))
		for _, o := range orders {
			items = append(items, models.SettlementBatchItem{
				BatchID:       batch.ID,
				OrderID:       o.ID,
				GrossSnapshot: o.GrossAmount,
				FeeSnapshot:   o.TotalFee(),
			})
		}
		if err := tx.Omit("Order").Create(&items).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Order{}).
			Where("id IN ? AND settled = ? AND batch_id IS NULL", ids, false).
			Updates(map[string]any{
				"batch_id":   batch.ID,
				"version":    gorm.Expr("version + 1"),
				"updated_at": s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return &InvalidStateTransitionError{Entity: entityOrder, From: models.StatePendingValidation, Event: EventSubmit}
		}

		return audit.WriteLog(tx, audit.LogOptions{
			CourierID:   &batch.CourierID,
			UserID:      in.Actor.UserID,
			UserName:    in.Actor.Name,
			EntityType:  entityBatch,
			EntityID:    batch.ID,
			Action:      models.AuditActionSubmit,
			Description: fmt.Sprintf("Abono %s enviado: %d pedidos, neto %s", batch.Code, len(orders), totals.Net.StringFixed(2)),
			After:       map[string]any{"order_ids": ids, "evidence_ref": ref, "totals": totals},
		})
	})
	if err != nil {
		return BatchView{}, wrapStorage("submit", err)
	}
	if batchID == 0 {
		return BatchView{}, nil
	}
	return s.Get(ctx, batchID)
}

func (s *Service) openOrdersOfDays(tx *gorm.DB, scope models.Scope, days []time.Time) ([]uint, error) {
	from, to := DayOf(days[0]), DayOf(days[0])
	for _, d := range days[1:] {
		d = DayOf(d)
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	var orders []models.Order
	q := ledger.Filter{Scope: &scope, From: from, To: to}.Apply(tx.Model(&models.Order{}))
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return ExpandDays(orders, days), nil
}

// ---------------------------------------------------------------------------
// Validate: PendingValidation -> Validated
// ---------------------------------------------------------------------------

type ValidateInput struct {
	Actor   Actor
	BatchID uint
	Confirm bool // reviewer checked that the funds arrived
}

func (s *Service) Validate(ctx context.Context, in ValidateInput) (BatchView, error) {
	if !in.Confirm {
		return BatchView{}, &ConfirmationRequiredError{}
	}

	ctx = context.WithoutCancel(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := lockBatch(tx, in.BatchID)
		if err != nil {
			return err
		}
		to, err := transition(entityBatch, batch.ID, batch.State, EventValidate)
		if err != nil {
			return err
		}

		orders, err := s.members(tx, batch.ID)
		if err != nil {
			return err
		}
		var settled []uint
		for _, o := range orders {
			if o.Settled {
				settled = append(settled, o.ID)
			}
		}
		if len(settled) > 0 {
			return &AlreadySettledError{OrderIDs: settled}
		}

		now := s.now()
		res := tx.Model(&models.Order{}).
			Where("batch_id = ? AND settled = ?", batch.ID, false).
			Updates(map[string]any{
				"settled":    true,
				"settled_at": now,
				"settled_by": in.Actor.UserID,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(orders)) {
			return &AlreadySettledError{OrderIDs: orderIDs(orders)}
		}

		totals := TotalsOf(orders)
		if err := s.moveBatch(tx, batch, to, map[string]any{
			"funds_confirmed": true,
			"reviewed_by":     in.Actor.UserID,
			"reviewed_at":     now,
			"total_gross":     totals.Gross,
			"total_fee":       totals.Fee,
			"total_net":       totals.Net,
		}); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			CourierID:   &batch.CourierID,
			UserID:      in.Actor.UserID,
			UserName:    in.Actor.Name,
			EntityType:  entityBatch,
			EntityID:    batch.ID,
			Action:      models.AuditActionValidate,
			Description: fmt.Sprintf("Abono %s validado: %d pedidos liquidados", batch.Code, len(orders)),
			Before:      map[string]any{"state": batch.State},
			After:       map[string]any{"state": to, "totals": totals},
		})
	})
	if err != nil {
		return BatchView{}, wrapStorage("validate", err)
	}
	return s.Get(ctx, in.BatchID)
}

// ---------------------------------------------------------------------------
// Observe: PendingValidation -> Observed
// ---------------------------------------------------------------------------

type ObserveInput struct {
	Actor   Actor
	BatchID uint
	Reason  string
}

// Observe rejects the evidence of a batch. Its orders go back to the selectable pool
// and a new batch has to be submitted for them.
func (s *Service) Observe(ctx context.Context, in ObserveInput) (BatchView, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return BatchView{}, &ObservationRequiredError{}
	}

	ctx = context.WithoutCancel(ctx)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := lockBatch(tx, in.BatchID)
		if err != nil {
			return err
		}
		to, err := transition(entityBatch, batch.ID, batch.State, EventObserve)
		if err != nil {
			return err
		}

		now := s.now()
		if err := tx.Model(&models.Order{}).
			Where("batch_id = ? AND settled = ?", batch.ID, false).
			Updates(map[string]any{
				"batch_id":   nil,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		if err := s.moveBatch(tx, batch, to, map[string]any{
			"observation": reason,
			"reviewed_by": in.Actor.UserID,
			"reviewed_at": now,
		}); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			CourierID:   &batch.CourierID,
			UserID:      in.Actor.UserID,
			UserName:    in.Actor.Name,
			EntityType:  entityBatch,
			EntityID:    batch.ID,
			Action:      models.AuditActionObserve,
			Description: fmt.Sprintf("Abono %s observado: %s", batch.Code, reason),
			Before:      map[string]any{"state": batch.State},
			After:       map[string]any{"state": to, "observation": reason},
		})
	})
	if err != nil {
		return BatchView{}, wrapStorage("observe", err)
	}
	return s.Get(ctx, in.BatchID)
}

// ---------------------------------------------------------------------------
// MarkSettled: bulk settlement without an abono
// ---------------------------------------------------------------------------

type MarkSettledInput struct {
	Actor    Actor
	Scope    models.Scope
	OrderIDs []uint
	Confirm  bool
}

type MarkSettledResult struct {
	SettledCount int             `json:"settled_count"`
	TotalFee     decimal.Decimal `json:"total_fee"`
	TotalGross   decimal.Decimal `json:"total_gross"`
	TotalNet     decimal.Decimal `json:"total_net"`
}

// MarkSettled settles every selected order or none of them. A selection containing an
// order that is already settled fails as a whole with AlreadySettledError.
func (s *Service) MarkSettled(ctx context.Context, in MarkSettledInput) (MarkSettledResult, error) {
	if !in.Confirm {
		return MarkSettledResult{}, &ConfirmationRequiredError{}
	}
	ids := uniqueIDs(in.OrderIDs)
	if len(ids) == 0 {
		return MarkSettledResult{}, &EmptySelectionError{}
	}

	ctx = context.WithoutCancel(ctx)
	var result MarkSettledResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders, err := lockOrders(tx, ids)
		if err != nil {
			return err
		}
		scope, err := checkSelectable(orders, in.Scope, EventValidate)
		if err != nil {
			return err
		}

		now := s.now()
		for i := range orders {
			o := &orders[i]
			s.calc.Ensure(o)
			res := tx.Model(&models.Order{}).
				Where("id = ? AND settled = ? AND batch_id IS NULL AND version = ?", o.ID, false, o.Version).
				Updates(map[string]any{
					"rider_fee":             o.RiderFee,
					"suggested_rider_fee":   o.SuggestedRiderFee,
					"courier_fee":           o.CourierFee,
					"suggested_courier_fee": o.SuggestedCourierFee,
					"settled":               true,
					"settled_at":            now,
					"settled_by":            in.Actor.UserID,
					"version":               o.Version + 1,
					"updated_at":            now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return &AlreadySettledError{OrderIDs: []uint{o.ID}}
			}
		}

		totals := TotalsOf(orders)
		result = MarkSettledResult{
			SettledCount: len(orders),
			TotalFee:     totals.Fee,
			TotalGross:   totals.Gross,
			TotalNet:     totals.Net,
		}

		courierID := orders[0].CourierID
		return audit.WriteLog(tx, audit.LogOptions{
			CourierID:   &courierID,
			UserID:      in.Actor.UserID,
			UserName:    in.Actor.Name,
			EntityType:  entityOrder,
			EntityID:    orders[0].ID,
			Action:      models.AuditActionSettle,
			Description: fmt.Sprintf("%d pedidos liquidados (%s), servicio %s", len(orders), scope, totals.Fee.StringFixed(2)),
			After:       map[string]any{"order_ids": ids, "totals": totals},
		})
	})
	if err != nil {
		return MarkSettledResult{}, wrapStorage("mark settled", err)
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// UpdateFee
// ---------------------------------------------------------------------------

type UpdateFeeInput struct {
	Actor      Actor
	Scope      *models.Scope // caller scope; nil skips the check (admin)
	OrderID    uint
	RiderFee   *decimal.Decimal
	CourierFee *decimal.Decimal
	Reason     string
}

// UpdateFee recomputes the fees of an order that is still open. A fee left out of the
// input keeps its stored value and reason; without any fee in the input the order goes
// back to the suggested values.
func (s *Service) UpdateFee(ctx context.Context, in UpdateFeeInput) (models.Order, fee.Result, error) {
	ctx = context.WithoutCancel(ctx)
	var (
		order models.Order
		res   fee.Result
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders, err := lockOrders(tx, []uint{in.OrderID})
		if err != nil {
			return err
		}
		order = orders[0]
		if in.Scope != nil && !in.Scope.Matches(order) {
			return &ScopeMismatchError{OrderID: order.ID, Expected: *in.Scope}
		}
		switch order.SettlementState() {
		case models.StateValidated:
			return &AlreadySettledError{OrderIDs: []uint{order.ID}}
		case models.StatePendingValidation:
			return &InvalidStateTransitionError{Entity: entityOrder, ID: order.ID, From: models.StatePendingValidation, Event: "edit_fee"}
		}

		var ov *fee.Override
		if in.RiderFee != nil || in.CourierFee != nil {
			ov = &fee.Override{RiderFee: in.RiderFee, CourierFee: in.CourierFee, Reason: in.Reason}
		}
		res, err = s.calc.Compute(order, ov)
		if err != nil {
			return err
		}

		before := feeSnapshot(order)
		res.Apply(&order)

		upd := tx.Model(&models.Order{}).
			Where("id = ? AND settled = ? AND batch_id IS NULL AND version = ?", order.ID, false, order.Version).
			Updates(map[string]any{
				"rider_fee":                   order.RiderFee,
				"suggested_rider_fee":         order.SuggestedRiderFee,
				"rider_fee_override_reason":   order.RiderFeeOverrideReason,
				"courier_fee":                 order.CourierFee,
				"suggested_courier_fee":       order.SuggestedCourierFee,
				"courier_fee_override_reason": order.CourierFeeOverrideReason,
				"version":                     order.Version + 1,
				"updated_at":                  s.now(),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected != 1 {
			return &AlreadySettledError{OrderIDs: []uint{order.ID}}
		}
		order.Version++

		return audit.WriteLog(tx, audit.LogOptions{
			CourierID:   &order.CourierID,
			UserID:      in.Actor.UserID,
			UserName:    in.Actor.Name,
			EntityType:  entityOrder,
			EntityID:    order.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Servicio del pedido %s: %s (sugerido %s)", order.Code, res.Total().StringFixed(2), res.SuggestedRiderFee.Add(res.SuggestedCourierFee).StringFixed(2)),
			Before:      before,
			After:       feeSnapshot(order),
		})
	})
	if err != nil {
		return models.Order{}, fee.Result{}, wrapStorage("update fee", err)
	}
	return order, res, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *Service) policy() fee.Policy {
	return policyFunc(s.calc.Suggest)
}

type policyFunc func(models.Order) fee.Suggestion

func (f policyFunc) Suggest(o models.Order) fee.Suggestion { return f(o) }

// freezeFees stores the suggestion on orders whose fees were never computed, so the
// batch totals are backed by persisted values.
func (s *Service) freezeFees(tx *gorm.DB, orders []models.Order) error {
	for i := range orders {
		o := &orders[i]
		if !s.calc.Ensure(o) {
			continue
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]any{
			"rider_fee":             o.RiderFee,
			"suggested_rider_fee":   o.SuggestedRiderFee,
			"courier_fee":           o.CourierFee,
			"suggested_courier_fee": o.SuggestedCourierFee,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) members(tx *gorm.DB, batchID uint) ([]models.Order, error) {
	var memberIDs []uint
	if err := tx.Model(&models.SettlementBatchItem{}).
		Where("batch_id = ?", batchID).
		Order("order_id").
		Pluck("order_id", &memberIDs).Error; err != nil {
		return nil, err
	}
	if len(memberIDs) == 0 {
		return nil, &InvalidStateTransitionError{Entity: entityBatch, ID: batchID, From: models.StatePendingValidation, Event: EventValidate}
	}
	orders, err := lockOrders(tx, memberIDs)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Settled {
			continue
		}
		if o.BatchID == nil || *o.BatchID != batchID {
			return nil, &InvalidStateTransitionError{Entity: entityOrder, ID: o.ID, From: o.SettlementState(), Event: EventValidate}
		}
	}
	return orders, nil
}

// moveBatch applies a state change guarded by the state and version read under lock.
func (s *Service) moveBatch(tx *gorm.DB, b models.SettlementBatch, to models.SettlementState, extra map[string]any) error {
	upd := map[string]any{
		"state":      to,
		"version":    b.Version + 1,
		"updated_at": s.now(),
	}
	for k, v := range extra {
		upd[k] = v
	}
	res := tx.Model(&models.SettlementBatch{}).
		Where("id = ? AND state = ? AND version = ?", b.ID, b.State, b.Version).
		Updates(upd)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return &InvalidStateTransitionError{Entity: entityBatch, ID: b.ID, From: b.State, Event: eventFor(to)}
	}
	return nil
}

func eventFor(to models.SettlementState) Event {
	switch to {
	case models.StateValidated:
		return EventValidate
	case models.StateObserved:
		return EventObserve
	}
	return EventSubmit
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect has row locks.
// SQLite serialises writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func lockBatch(tx *gorm.DB, id uint) (models.SettlementBatch, error) {
	var b models.SettlementBatch
	err := forUpdate(tx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b, &NotFoundError{Entity: entityBatch, ID: id}
	}
	return b, err
}

// lockOrders reads ids under row locks, in id order to keep lock acquisition deadlock free.
func lockOrders(tx *gorm.DB, ids []uint) ([]models.Order, error) {
	var orders []models.Order
	if err := forUpdate(tx).Where("id IN ?", ids).Order("id").Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(orders) != len(ids) {
		found := make(map[uint]bool, len(orders))
		for _, o := range orders {
			found[o.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, &NotFoundError{Entity: entityOrder, ID: id}
			}
		}
	}
	return orders, nil
}

// checkSelectable runs every precondition before anything is written:
// scope first, then already settled orders, then orders held by another batch.
// It returns the scope the selection settles under, which is always a single rider or
// a single sede; a courier-wide scope is narrowed to the one its orders share.
func checkSelectable(orders []models.Order, scope models.Scope, ev Event) (models.Scope, error) {
	for _, o := range orders {
		if !scope.Matches(o) {
			return models.Scope{}, &ScopeMismatchError{OrderID: o.ID, Expected: scope}
		}
	}
	narrowed, err := sharedScope(orders, scope)
	if err != nil {
		return models.Scope{}, err
	}
	var settled []uint
	for _, o := range orders {
		if o.Settled {
			settled = append(settled, o.ID)
		}
	}
	if len(settled) > 0 {
		return models.Scope{}, &AlreadySettledError{OrderIDs: settled}
	}
	for _, o := range orders {
		if o.BatchID != nil {
			return models.Scope{}, &InvalidStateTransitionError{Entity: entityOrder, ID: o.ID, From: models.StatePendingValidation, Event: ev}
		}
	}
	return narrowed, nil
}

// sharedScope picks the rider, or failing that the sede, common to every order.
func sharedScope(orders []models.Order, scope models.Scope) (models.Scope, error) {
	if scope.Kind != models.ScopeCourier {
		return scope, nil
	}
	first := orders[0]
	if first.RiderID != nil {
		same := true
		for _, o := range orders[1:] {
			if o.RiderID == nil || *o.RiderID != *first.RiderID {
				same = false
				break
			}
		}
		if same {
			return models.Scope{Kind: models.ScopeRider, ID: *first.RiderID}, nil
		}
	}
	for _, o := range orders[1:] {
		if o.SedeID != first.SedeID {
			return models.Scope{}, &ScopeMismatchError{OrderID: o.ID, Expected: models.Scope{Kind: models.ScopeSede, ID: first.SedeID}}
		}
	}
	return models.Scope{Kind: models.ScopeSede, ID: first.SedeID}, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func orderIDs(orders []models.Order) []uint {
	ids := make([]uint, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func newBatchCode() string {
	return "AB-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func feeSnapshot(o models.Order) map[string]any {
	return map[string]any{
		"rider_fee":                   o.RiderFee,
		"suggested_rider_fee":         o.SuggestedRiderFee,
		"rider_fee_override_reason":   o.RiderFeeOverrideReason,
		"courier_fee":                 o.CourierFee,
		"suggested_courier_fee":       o.SuggestedCourierFee,
		"courier_fee_override_reason": o.CourierFeeOverrideReason,
	}
}
