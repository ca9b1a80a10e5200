package settlement

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"cuadre-backend/internal/auth"
	"cuadre-backend/internal/fee"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SubmitRequest struct {
	Scope       string   `json:"scope"`
	ScopeID     *uint    `json:"scope_id"`
	OrderIDs    []uint   `json:"order_ids"`
	Days        []string `json:"days" validate:"dive,datetime=2006-01-02"`
	EvidenceRef string   `json:"evidence_ref"`
}

type ValidateRequest struct {
	Confirm bool `json:"confirm"`
}

type ObserveRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type MarkSettledRequest struct {
	Scope    string `json:"scope"`
	ScopeID  *uint  `json:"scope_id"`
	OrderIDs []uint `json:"order_ids"`
	Confirm  bool   `json:"confirm"`
}

type UpdateFeeRequest struct {
	RiderFee   *decimal.Decimal `json:"rider_fee"`
	CourierFee *decimal.Decimal `json:"courier_fee"`
	Reason     string           `json:"reason" validate:"max=255"`
}

type BatchResponse struct {
	ID             uint                   `json:"id"`
	Code           string                 `json:"code"`
	Scope          models.Scope           `json:"scope"`
	CourierID      uint                   `json:"courier_id"`
	State          models.SettlementState `json:"state"`
	EvidenceRef    string                 `json:"evidence_ref"`
	Observation    string                 `json:"observation,omitempty"`
	FundsConfirmed bool                   `json:"funds_confirmed"`
	SubmittedBy    uint                   `json:"submitted_by"`
	ReviewedBy     *uint                  `json:"reviewed_by"`
	ReviewedAt     *string                `json:"reviewed_at"`
	CreatedAt      string                 `json:"created_at"`
	OrderIDs       []uint                 `json:"order_ids"`
	Summary        BatchSummary           `json:"summary"`
}

type OrderFeeResponse struct {
	OrderID             uint            `json:"order_id"`
	RiderFee            decimal.Decimal `json:"rider_fee"`
	SuggestedRiderFee   decimal.Decimal `json:"suggested_rider_fee"`
	CourierFee          decimal.Decimal `json:"courier_fee"`
	SuggestedCourierFee decimal.Decimal `json:"suggested_courier_fee"`
	TotalFee            decimal.Decimal `json:"total_fee"`
	RiderOverridden     bool            `json:"rider_overridden"`
	CourierOverridden   bool            `json:"courier_overridden"`
	Reason              string          `json:"reason,omitempty"`
	Version             int             `json:"version"`
}

// ----------------------------------------
// CUADRE
// ----------------------------------------

// GET /api/settlements/summary?scope=&scope_id=&from=&to=
func SummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, from, to, err := summaryQuery(c, svc)
		if err != nil {
			return err
		}
		days, err := svc.Summary(c.UserContext(), scope, from, to)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"scope":  scope,
			"days":   days,
			"totals": GrandTotal(days),
		})
	}
}

func summaryQuery(c *fiber.Ctx, svc *Service) (models.Scope, time.Time, time.Time, error) {
	id, err := auth.IdentityFrom(c)
	if err != nil {
		return models.Scope{}, time.Time{}, time.Time{}, err
	}
	requested, err := auth.ParseScope(c.Query("scope"), c.Query("scope_id"))
	if err != nil {
		return models.Scope{}, time.Time{}, time.Time{}, err
	}
	scope, err := auth.ResolveScope(svc.db, id, requested)
	if err != nil {
		return models.Scope{}, time.Time{}, time.Time{}, err
	}
	from, err := parseDay("from", c.Query("from"))
	if err != nil {
		return models.Scope{}, time.Time{}, time.Time{}, err
	}
	to, err := parseDay("to", c.Query("to"))
	if err != nil {
		return models.Scope{}, time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return models.Scope{}, time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "'to' no puede ser anterior a 'from'")
	}
	return scope, from, to, nil
}

// GrandTotal sums daily summaries without revaluing any order.
func GrandTotal(days []DailySummary) Totals {
	var t Totals
	for _, d := range days {
		t.OrderCount += d.OrderCount
		t.Gross = t.Gross.Add(d.Gross)
		t.RiderFee = t.RiderFee.Add(d.RiderFee)
		t.CourierFee = t.CourierFee.Add(d.CourierFee)
	}
	t.Fee = t.RiderFee.Add(t.CourierFee)
	t.Net = t.Gross.Sub(t.Fee)
	return t
}

// GET /api/settlements/summary/export
func ExportSummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, from, to, err := summaryQuery(c, svc)
		if err != nil {
			return err
		}
		days, err := svc.Summary(c.UserContext(), scope, from, to)
		if err != nil {
			return respondError(c, err)
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="cuadre-%s-%d.xlsx"`, scope.Kind, scope.ID))
		if err := WriteSummary(c.Response().BodyWriter(), scope, days); err != nil {
			log.Printf("summary export failed: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el Excel")
		}
		return nil
	}
}

// ----------------------------------------
// ABONOS
// ----------------------------------------

// POST /api/settlements/submit
func SubmitHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var body SubmitRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}
		requested, err := auth.ParseScope(body.Scope, idString(body.ScopeID))
		if err != nil {
			return err
		}
		scope, err := auth.ResolveScope(svc.db, id, requested)
		if err != nil {
			return err
		}

		days := make([]time.Time, 0, len(body.Days))
		for _, raw := range body.Days {
			d, err := parseDay("days", raw)
			if err != nil {
				return err
			}
			days = append(days, d)
		}

		v, err := svc.Submit(c.UserContext(), SubmitInput{
			Actor:       actorOf(id),
			Scope:       scope,
			OrderIDs:    body.OrderIDs,
			Days:        days,
			EvidenceRef: body.EvidenceRef,
		})
		if err != nil {
			return respondError(c, err)
		}
		if v.Batch.ID == 0 {
			// every selected day is already validated or waiting in another abono
			return c.JSON(fiber.Map{
				"batch":   nil,
				"message": "Los días seleccionados no tienen pedidos pendientes de abono",
			})
		}
		return c.Status(fiber.StatusCreated).JSON(toBatchResponse(v))
	}
}

// GET /api/settlements?state=&scope=&scope_id=
func ListBatchesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		requested, err := auth.ParseScope(c.Query("scope"), c.Query("scope_id"))
		if err != nil {
			return err
		}
		scope, err := auth.ResolveScope(svc.db, id, requested)
		if err != nil {
			return err
		}

		state := models.SettlementState(c.Query("state"))
		switch state {
		case "", models.StatePendingValidation, models.StateValidated, models.StateObserved:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "state inválido (pending_validation|validated|observed)")
		}

		views, err := svc.List(c.UserContext(), scope, state)
		if err != nil {
			return respondError(c, err)
		}
		res := make([]BatchResponse, 0, len(views))
		for _, v := range views {
			res = append(res, toBatchResponse(v))
		}
		return c.JSON(res)
	}
}

// GET /api/settlements/:id
func GetBatchHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		batchID, err := paramID(c)
		if err != nil {
			return err
		}
		v, err := svc.Get(c.UserContext(), batchID)
		if err != nil {
			return respondError(c, err)
		}
		if !canSee(id, v.Batch) {
			// same answer as a missing batch
			return fiber.NewError(fiber.StatusNotFound, "Abono no encontrado")
		}
		return c.JSON(toBatchResponse(v))
	}
}

// POST /api/settlements/:id/validate
func ValidateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, batchID, err := reviewTarget(c, svc)
		if err != nil {
			return err
		}
		var body ValidateRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}
		v, err := svc.Validate(c.UserContext(), ValidateInput{Actor: actorOf(id), BatchID: batchID, Confirm: body.Confirm})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(toBatchResponse(v))
	}
}

// POST /api/settlements/:id/observe
func ObserveHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, batchID, err := reviewTarget(c, svc)
		if err != nil {
			return err
		}
		var body ObserveRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}
		v, err := svc.Observe(c.UserContext(), ObserveInput{Actor: actorOf(id), BatchID: batchID, Reason: body.Reason})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(toBatchResponse(v))
	}
}

// reviewTarget resolves the batch being reviewed. Courier staff only review their own company.
func reviewTarget(c *fiber.Ctx, svc *Service) (auth.Identity, uint, error) {
	id, err := auth.IdentityFrom(c)
	if err != nil {
		return id, 0, err
	}
	batchID, err := paramID(c)
	if err != nil {
		return id, 0, err
	}
	if id.Role == models.RoleAdmin {
		return id, batchID, nil
	}
	var b models.SettlementBatch
	if err := svc.db.WithContext(c.UserContext()).Select("id", "courier_id").First(&b, "id = ?", batchID).Error; err != nil {
		return id, 0, respondError(c, notFound(err, entityBatch, batchID))
	}
	if id.CourierID == nil || *id.CourierID != b.CourierID {
		return id, 0, fiber.NewError(fiber.StatusNotFound, "Abono no encontrado")
	}
	return id, batchID, nil
}

// ----------------------------------------
// LIQUIDACIÓN DIRECTA Y SERVICIO
// ----------------------------------------

// POST /api/settlements/mark-settled
func MarkSettledHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var body MarkSettledRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}
		requested, err := auth.ParseScope(body.Scope, idString(body.ScopeID))
		if err != nil {
			return err
		}
		scope, err := auth.ResolveScope(svc.db, id, requested)
		if err != nil {
			return err
		}

		res, err := svc.MarkSettled(c.UserContext(), MarkSettledInput{
			Actor:    actorOf(id),
			Scope:    scope,
			OrderIDs: body.OrderIDs,
			Confirm:  body.Confirm,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// POST /api/orders/:id/fee
func UpdateFeeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		orderID, err := paramID(c)
		if err != nil {
			return err
		}
		var body UpdateFeeRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		in := UpdateFeeInput{
			Actor:      actorOf(id),
			OrderID:    orderID,
			RiderFee:   body.RiderFee,
			CourierFee: body.CourierFee,
			Reason:     body.Reason,
		}
		if id.Role != models.RoleAdmin {
			if id.CourierID == nil {
				return fiber.NewError(fiber.StatusForbidden, "Usuario sin courier asignado")
			}
			in.Scope = &models.Scope{Kind: models.ScopeCourier, ID: *id.CourierID}
		}

		o, res, err := svc.UpdateFee(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(OrderFeeResponse{
			OrderID:             o.ID,
			RiderFee:            res.RiderFee,
			SuggestedRiderFee:   res.SuggestedRiderFee,
			CourierFee:          res.CourierFee,
			SuggestedCourierFee: res.SuggestedCourierFee,
			TotalFee:            res.Total(),
			RiderOverridden:     res.RiderOverridden(),
			CourierOverridden:   res.CourierOverridden(),
			Reason:              strings.TrimSpace(body.Reason),
			Version:             o.Version,
		})
	}
}

// ----------------------------------------
// helpers
// ----------------------------------------

// respondError maps service errors onto HTTP statuses. Transient storage failures answer
// 503 with retryable=true so clients can repeat the same request.
func respondError(c *fiber.Ctx, err error) error {
	var (
		ist *InvalidStateTransitionError
		cr  *ConfirmationRequiredError
		sm  *ScopeMismatchError
		as  *AlreadySettledError
		er  *EvidenceRequiredError
		or  *ObservationRequiredError
		es  *EmptySelectionError
		nf  *NotFoundError
		fe  *fee.InvalidFeeError
		pe  *PersistenceError
	)
	switch {
	case errors.As(err, &fe):
		return fiber.NewError(fiber.StatusBadRequest, feeMessage(fe))
	case errors.As(err, &cr):
		return fiber.NewError(fiber.StatusBadRequest, "Debe confirmar que verificó la llegada de los fondos")
	case errors.As(err, &er):
		return fiber.NewError(fiber.StatusBadRequest, "Debe adjuntar el comprobante del abono")
	case errors.As(err, &or):
		return fiber.NewError(fiber.StatusBadRequest, "Debe indicar el motivo de la observación")
	case errors.As(err, &es):
		return fiber.NewError(fiber.StatusBadRequest, "No hay pedidos pendientes en la selección")
	case errors.As(err, &sm):
		return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("El pedido %d no pertenece al cuadre seleccionado", sm.OrderID))
	case errors.As(err, &nf):
		if nf.Entity == entityBatch {
			return fiber.NewError(fiber.StatusNotFound, "Abono no encontrado")
		}
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("Pedido %d no encontrado", nf.ID))
	case errors.As(err, &as):
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("Pedidos ya liquidados: %s", joinIDs(as.OrderIDs)))
	case errors.As(err, &ist):
		return fiber.NewError(fiber.StatusConflict, transitionMessage(ist))
	case errors.As(err, &pe) && pe.Retryable:
		log.Printf("[WARN] %v", pe)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "Base de datos ocupada, intente nuevamente",
			"retryable": true,
		})
	}
	log.Printf("settlement error: %v", err)
	return fiber.NewError(fiber.StatusInternalServerError, "Error de base de datos")
}

func feeMessage(fe *fee.InvalidFeeError) string {
	switch fe.Reason {
	case fee.ReasonNegative:
		return fmt.Sprintf("%s no puede ser negativo", fe.Field)
	case fee.ReasonNotFinite:
		return fmt.Sprintf("%s debe ser un número válido", fe.Field)
	case fee.ReasonMissingOverride:
		return "Debe indicar el motivo al cambiar el servicio sugerido"
	case fee.ReasonPrecision:
		return fmt.Sprintf("%s admite como máximo 2 decimales", fe.Field)
	}
	return fe.Error()
}

func transitionMessage(e *InvalidStateTransitionError) string {
	if e.Entity == entityOrder {
		return fmt.Sprintf("El pedido %d ya está en un abono por validar", e.ID)
	}
	switch e.From {
	case models.StateValidated:
		return "El abono ya fue validado"
	case models.StateObserved:
		return "El abono fue observado, debe enviarse uno nuevo"
	}
	return fmt.Sprintf("Operación %s no permitida en estado %s", e.Event, e.From)
}

func notFound(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return wrapStorage("load "+entity, err)
}

func canSee(id auth.Identity, b models.SettlementBatch) bool {
	switch id.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCourier:
		return id.CourierID != nil && *id.CourierID == b.CourierID
	case models.RoleEcommerce:
		return id.SedeID != nil && b.ScopeKind == models.ScopeSede && b.ScopeID == *id.SedeID
	case models.RoleRider:
		return b.ScopeKind == models.ScopeRider && b.ScopeID == id.UserID
	}
	return false
}

func toBatchResponse(v BatchView) BatchResponse {
	b := v.Batch
	res := BatchResponse{
		ID:             b.ID,
		Code:           b.Code,
		Scope:          b.Scope(),
		CourierID:      b.CourierID,
		State:          b.State,
		EvidenceRef:    b.EvidenceRef,
		Observation:    b.Observation,
		FundsConfirmed: b.FundsConfirmed,
		SubmittedBy:    b.SubmittedBy,
		ReviewedBy:     b.ReviewedBy,
		CreatedAt:      b.CreatedAt.Format("2006-01-02 15:04:05"),
		OrderIDs:       make([]uint, 0, len(b.Items)),
		Summary:        v.Summary,
	}
	if b.ReviewedAt != nil {
		s := b.ReviewedAt.Format("2006-01-02 15:04:05")
		res.ReviewedAt = &s
	}
	for _, it := range b.Items {
		res.OrderIDs = append(res.OrderIDs, it.OrderID)
	}
	return res
}

func actorOf(id auth.Identity) Actor {
	return Actor{UserID: id.UserID, Name: id.Name}
}

func paramID(c *fiber.Ctx) (uint, error) {
	n, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "id inválido")
	}
	return uint(n), nil
}

func parseDay(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s debe tener el formato YYYY-MM-DD", field))
	}
	return d, nil
}

func idString(p *uint) string {
	if p == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*p), 10)
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ", ")
}
