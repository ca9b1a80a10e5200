package admin

import (
	"strings"

	"cuadre-backend/internal/database"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type CourierResponse struct {
	ID        uint           `json:"id"`
	Name      string         `json:"name"`
	TaxID     string         `json:"tax_id"`
	Phone     string         `json:"phone"`
	Sedes     []SedeResponse `json:"sedes,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type CreateCourierRequest struct {
	Name  string  `json:"name" validate:"required,max=100"`
	TaxID string  `json:"tax_id" validate:"omitempty,numeric,len=11"` // RUC
	Phone *string `json:"phone"`
}

type UpdateCourierRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	TaxID *string `json:"tax_id" validate:"omitempty,numeric,len=11"`
	Phone *string `json:"phone"`
}

func toCourierResponse(c models.Courier) CourierResponse {
	res := CourierResponse{
		ID:        c.ID,
		Name:      c.Name,
		TaxID:     c.TaxID,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	for _, s := range c.Sedes {
		res.Sedes = append(res.Sedes, toSedeResponse(s))
	}
	return res
}

// ----------------------------------------
// COURIER CRUD
// ----------------------------------------

func CreateCourierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCourierRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		courier := models.Courier{
			Name:  strings.TrimSpace(body.Name),
			TaxID: body.TaxID,
		}
		if courier.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "El nombre del courier no puede estar vacío")
		}
		if body.Phone != nil {
			courier.Phone = strings.TrimSpace(*body.Phone)
		}

		var exist int64
		database.DB.Model(&models.Courier{}).Where("name = ?", courier.Name).Count(&exist)
		if exist > 0 {
			return fiber.NewError(fiber.StatusConflict, "Ya existe un courier con ese nombre")
		}

		if err := database.DB.Create(&courier).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear el courier")
		}
		return c.Status(fiber.StatusCreated).JSON(toCourierResponse(courier))
	}
}

func ListCouriersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var couriers []models.Courier
		if err := database.DB.Preload("Sedes").Order("name").Find(&couriers).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los couriers")
		}

		res := make([]CourierResponse, 0, len(couriers))
		for _, cr := range couriers {
			res = append(res, toCourierResponse(cr))
		}
		return c.JSON(res)
	}
}

func GetCourierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var courier models.Courier
		if err := database.DB.Preload("Sedes").First(&courier, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Courier no encontrado")
		}
		return c.JSON(toCourierResponse(courier))
	}
}

func UpdateCourierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var courier models.Courier
		if err := database.DB.First(&courier, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Courier no encontrado")
		}

		var body UpdateCourierRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "El nombre del courier no puede estar vacío")
			}
			courier.Name = name
		}
		if body.TaxID != nil {
			courier.TaxID = *body.TaxID
		}
		if body.Phone != nil {
			courier.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Save(&courier).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo actualizar el courier")
		}
		return c.JSON(toCourierResponse(courier))
	}
}

// A courier with orders keeps its history; only empty companies can be removed.
func DeleteCourierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var orders int64
		database.DB.Model(&models.Order{}).Where("courier_id = ?", id).Count(&orders)
		if orders > 0 {
			return fiber.NewError(fiber.StatusConflict, "El courier tiene pedidos registrados")
		}
		var sedes int64
		database.DB.Model(&models.Sede{}).Where("courier_id = ?", id).Count(&sedes)
		if sedes > 0 {
			return fiber.NewError(fiber.StatusConflict, "Elimine primero las sedes del courier")
		}

		if err := database.DB.Delete(&models.Courier{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo eliminar el courier")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
