package ledger

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"cuadre-backend/internal/audit"
	"cuadre-backend/internal/auth"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateOrderRequest struct {
	Code           string          `json:"code" validate:"required,max=40"`
	DeliveryDate   string          `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	ClientName     string          `json:"client_name" validate:"max=150"`
	ClientDistrict string          `json:"client_district" validate:"max=100"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	SedeID         uint            `json:"sede_id" validate:"required"`
	RiderID        *uint           `json:"rider_id"`
}

type OrderResponse struct {
	ID                  uint                   `json:"id"`
	Code                string                 `json:"code"`
	DeliveryDate        string                 `json:"delivery_date"`
	ClientName          string                 `json:"client_name"`
	ClientDistrict      string                 `json:"client_district"`
	PaymentMethod       models.PaymentMethod   `json:"payment_method"`
	GrossAmount         decimal.Decimal        `json:"gross_amount"`
	RiderFee            decimal.NullDecimal    `json:"rider_fee"`
	SuggestedRiderFee   decimal.NullDecimal    `json:"suggested_rider_fee"`
	CourierFee          decimal.NullDecimal    `json:"courier_fee"`
	SuggestedCourierFee decimal.NullDecimal    `json:"suggested_courier_fee"`
	State               models.SettlementState `json:"state"`
	BatchID             *uint                  `json:"batch_id"`
	CourierID           uint                   `json:"courier_id"`
	SedeID              uint                   `json:"sede_id"`
	RiderID             *uint                  `json:"rider_id"`
	Version             int                    `json:"version"`
}

func toOrderResponse(o models.Order) OrderResponse {
	return OrderResponse{
		ID:                  o.ID,
		Code:                o.Code,
		DeliveryDate:        o.DeliveryDate.Format("2006-01-02"),
		ClientName:          o.ClientName,
		ClientDistrict:      o.ClientDistrict,
		PaymentMethod:       o.PaymentMethod,
		GrossAmount:         o.GrossAmount,
		RiderFee:            o.RiderFee,
		SuggestedRiderFee:   o.SuggestedRiderFee,
		CourierFee:          o.CourierFee,
		SuggestedCourierFee: o.SuggestedCourierFee,
		State:               o.SettlementState(),
		BatchID:             o.BatchID,
		CourierID:           o.CourierID,
		SedeID:              o.SedeID,
		RiderID:             o.RiderID,
		Version:             o.Version,
	}
}

// POST /api/orders
func CreateOrderHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		var body CreateOrderRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		method, ok := ParsePaymentMethod(body.PaymentMethod)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "payment_method inválido (cash|digital_courier|digital_ecommerce|other)")
		}
		if body.GrossAmount.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "gross_amount no puede ser negativo")
		}
		if !body.GrossAmount.Equal(body.GrossAmount.Round(2)) {
			return fiber.NewError(fiber.StatusBadRequest, "gross_amount admite como máximo 2 decimales")
		}
		d, _ := time.Parse("2006-01-02", body.DeliveryDate)

		o := models.Order{
			Code:           strings.TrimSpace(body.Code),
			DeliveryDate:   d,
			ClientName:     strings.TrimSpace(body.ClientName),
			ClientDistrict: strings.TrimSpace(body.ClientDistrict),
			PaymentMethod:  method,
			GrossAmount:    body.GrossAmount,
			SedeID:         body.SedeID,
			RiderID:        body.RiderID,
		}

		owners := newOwnership(l.db, id)
		if err := owners.attach(&o); err != nil {
			return err
		}
		if err := l.uniqueCodes(c, []string{o.Code}); err != nil {
			return err
		}

		err = l.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := New(tx).Create(c.UserContext(), &o); err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				CourierID:   &o.CourierID,
				UserID:      id.UserID,
				UserName:    id.Name,
				EntityType:  "order",
				EntityID:    o.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Pedido %s registrado (%s, %s)", o.Code, o.PaymentMethod, o.GrossAmount.StringFixed(2)),
				After:       toOrderResponse(o),
			})
		})
		if err != nil {
			return storageError(err, "No se pudo registrar el pedido")
		}
		return c.Status(fiber.StatusCreated).JSON(toOrderResponse(o))
	}
}

// POST /api/orders/import (multipart, field "file")
// The whole file is rejected when any row is invalid.
func ImportOrdersHandler(l *Ledger, loc *time.Location) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "No se pudo leer el archivo: "+err.Error())
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Solo se aceptan archivos .xlsx")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo abrir el archivo")
		}
		defer file.Close()

		orders, rowErrs, err := ParseSheet(file, loc)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		owners := newOwnership(l.db, id)
		seen := make(map[string]bool, len(orders))
		for i := range orders {
			code := orders[i].Code
			if seen[code] {
				rowErrs = append(rowErrs, RowError{Message: fmt.Sprintf("pedido %s: código repetido en el archivo", code)})
				continue
			}
			seen[code] = true
			if err := owners.attach(&orders[i]); err != nil {
				var fe *fiber.Error
				if errors.As(err, &fe) && fe.Code != fiber.StatusInternalServerError {
					rowErrs = append(rowErrs, RowError{Message: fmt.Sprintf("pedido %s: %s", code, fe.Message)})
					continue
				}
				return err
			}
		}
		if len(rowErrs) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "El archivo tiene filas inválidas, no se importó ningún pedido",
				"errors": rowErrs,
			})
		}
		if len(orders) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "El archivo no contiene pedidos")
		}

		all := make([]string, 0, len(orders))
		for _, o := range orders {
			all = append(all, o.Code)
		}
		if err := l.uniqueCodes(c, all); err != nil {
			return err
		}

		err = l.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := New(tx).CreateMany(c.UserContext(), orders); err != nil {
				return err
			}
			courierID := orders[0].CourierID
			return audit.WriteLog(tx, audit.LogOptions{
				CourierID:   &courierID,
				UserID:      id.UserID,
				UserName:    id.Name,
				EntityType:  "order",
				EntityID:    orders[0].ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("%d pedidos importados desde %s", len(orders), fileHeader.Filename),
			})
		})
		if err != nil {
			return storageError(err, "No se pudieron importar los pedidos")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"imported": len(orders)})
	}
}

// GET /api/orders?scope=&scope_id=&from=&to=&settled=
func ListOrdersHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.IdentityFrom(c)
		if err != nil {
			return err
		}
		requested, err := auth.ParseScope(c.Query("scope"), c.Query("scope_id"))
		if err != nil {
			return err
		}
		scope, err := auth.ResolveScope(l.db, id, requested)
		if err != nil {
			return err
		}

		f := Filter{Scope: &scope}
		for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
			if raw := c.Query(key); raw != "" {
				d, err := time.Parse("2006-01-02", raw)
				if err != nil {
					return fiber.NewError(fiber.StatusBadRequest, key+" debe tener el formato YYYY-MM-DD")
				}
				*dst = d
			}
		}
		if raw := c.Query("settled"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "settled debe ser true o false")
			}
			f.Settled = &v
		}

		orders, err := l.Find(c.UserContext(), f)
		if err != nil {
			log.Printf("list orders: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los pedidos")
		}
		res := make([]OrderResponse, 0, len(orders))
		for _, o := range orders {
			res = append(res, toOrderResponse(o))
		}
		return c.JSON(res)
	}
}

// ownership resolves the courier of each order from its sede and checks the caller may
// register orders there. Lookups are cached per request.
type ownership struct {
	db     *gorm.DB
	caller auth.Identity
	sedes  map[uint]models.Sede
	riders map[uint]models.User
}

func newOwnership(db *gorm.DB, caller auth.Identity) *ownership {
	return &ownership{db: db, caller: caller, sedes: map[uint]models.Sede{}, riders: map[uint]models.User{}}
}

func (w *ownership) attach(o *models.Order) error {
	sede, ok := w.sedes[o.SedeID]
	if !ok {
		if err := w.db.First(&sede, "id = ?", o.SedeID).Error; err != nil {
			return lookupError(err, fmt.Sprintf("Sede %d no encontrada", o.SedeID))
		}
		w.sedes[o.SedeID] = sede
	}
	if w.caller.Role != models.RoleAdmin && (w.caller.CourierID == nil || *w.caller.CourierID != sede.CourierID) {
		return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("La sede %d no pertenece a su courier", sede.ID))
	}
	o.CourierID = sede.CourierID

	if o.RiderID == nil {
		return nil
	}
	rider, ok := w.riders[*o.RiderID]
	if !ok {
		if err := w.db.First(&rider, "id = ? AND role = ?", *o.RiderID, models.RoleRider).Error; err != nil {
			return lookupError(err, fmt.Sprintf("Motorizado %d no encontrado", *o.RiderID))
		}
		w.riders[*o.RiderID] = rider
	}
	if rider.CourierID == nil || *rider.CourierID != sede.CourierID {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("El motorizado %d no pertenece al courier de la sede", rider.ID))
	}
	return nil
}

func (l *Ledger) uniqueCodes(c *fiber.Ctx, codes []string) error {
	var taken []string
	if err := l.db.WithContext(c.UserContext()).Model(&models.Order{}).
		Where("code IN ?", codes).Pluck("code", &taken).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Error de base de datos")
	}
	if len(taken) > 0 {
		return fiber.NewError(fiber.StatusConflict, "Códigos ya registrados: "+strings.Join(taken, ", "))
	}
	return nil
}

func lookupError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, msg)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Error de base de datos")
}

func storageError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fiber.NewError(fiber.StatusConflict, "Código de pedido ya registrado")
	}
	log.Printf("%s: %v", msg, err)
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}
