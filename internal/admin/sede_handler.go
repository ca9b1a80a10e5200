package admin

import (
	"strings"

	"cuadre-backend/internal/database"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type SedeResponse struct {
	ID        uint   `json:"id"`
	CourierID uint   `json:"courier_id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

type CreateSedeRequest struct {
	CourierID uint    `json:"courier_id" validate:"required"`
	Name      string  `json:"name" validate:"required,max=100"`
	Address   string  `json:"address" validate:"max=255"`
	Phone     *string `json:"phone"`
}

type UpdateSedeRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=100"`
	Address *string `json:"address" validate:"omitempty,max=255"`
	Phone   *string `json:"phone"`
}

type CreateSedeUserRequest struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required,oneof=courier ecommerce rider"`
}

type UserResponse struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	CourierID *uint           `json:"courier_id"`
	SedeID    *uint           `json:"sede_id"`
	CreatedAt string          `json:"created_at"`
}

func toSedeResponse(s models.Sede) SedeResponse {
	return SedeResponse{
		ID:        s.ID,
		CourierID: s.CourierID,
		Name:      s.Name,
		Address:   s.Address,
		Phone:     s.Phone,
		CreatedAt: s.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// SEDE CRUD
// ----------------------------------------

func CreateSedeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSedeRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		var courier models.Courier
		if err := database.DB.First(&courier, "id = ?", body.CourierID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Courier no encontrado")
		}

		sede := models.Sede{
			CourierID: courier.ID,
			Name:      strings.TrimSpace(body.Name),
			Address:   strings.TrimSpace(body.Address),
		}
		if sede.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "El nombre de la sede no puede estar vacío")
		}
		if body.Phone != nil {
			sede.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Create(&sede).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear la sede")
		}
		return c.Status(fiber.StatusCreated).JSON(toSedeResponse(sede))
	}
}

// GET /api/admin/sedes?courier_id=
func ListSedesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Order("courier_id, name")
		if courierID := c.Query("courier_id"); courierID != "" {
			q = q.Where("courier_id = ?", courierID)
		}

		var sedes []models.Sede
		if err := q.Find(&sedes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar las sedes")
		}

		res := make([]SedeResponse, 0, len(sedes))
		for _, s := range sedes {
			res = append(res, toSedeResponse(s))
		}
		return c.JSON(res)
	}
}

func GetSedeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sede models.Sede
		if err := database.DB.First(&sede, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sede no encontrada")
		}
		return c.JSON(toSedeResponse(sede))
	}
}

func UpdateSedeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sede models.Sede
		if err := database.DB.First(&sede, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sede no encontrada")
		}

		var body UpdateSedeRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "El nombre de la sede no puede estar vacío")
			}
			sede.Name = name
		}
		if body.Address != nil {
			sede.Address = strings.TrimSpace(*body.Address)
		}
		if body.Phone != nil {
			sede.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Save(&sede).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo actualizar la sede")
		}
		return c.JSON(toSedeResponse(sede))
	}
}

func DeleteSedeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var orders int64
		database.DB.Model(&models.Order{}).Where("sede_id = ?", id).Count(&orders)
		if orders > 0 {
			return fiber.NewError(fiber.StatusConflict, "La sede tiene pedidos registrados")
		}

		if err := database.DB.Delete(&models.Sede{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo eliminar la sede")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// USUARIOS DE SEDE
// POST /api/admin/sedes/:id/users
// ----------------------------------------

// CreateSedeUserHandler registers courier staff, ecommerce clients and riders under a sede.
// Every user gets the courier of the sede; ecommerce users are also pinned to the sede.
func CreateSedeUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sede models.Sede
		if err := database.DB.First(&sede, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sede no encontrada")
		}

		var body CreateSedeUserRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Name = strings.TrimSpace(body.Name)

		var exist int64
		database.DB.Model(&models.User{}).Where("email = ?", body.Email).Count(&exist)
		if exist > 0 {
			return fiber.NewError(fiber.StatusConflict, "El email ya está registrado")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo procesar la contraseña")
		}

		courierID := sede.CourierID
		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
			CourierID:    &courierID,
		}
		if body.Role == models.RoleEcommerce || body.Role == models.RoleRider {
			user.SedeID = &sede.ID
		}

		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear el usuario")
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

// GET /api/admin/sedes/:id/users
func ListSedeUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sede models.Sede
		if err := database.DB.First(&sede, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sede no encontrada")
		}

		var users []models.User
		if err := database.DB.
			Where("sede_id = ? OR (courier_id = ? AND role = ?)", sede.ID, sede.CourierID, models.RoleCourier).
			Order("created_at DESC").
			Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los usuarios")
		}

		res := make([]UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, toUserResponse(u))
		}
		return c.JSON(res)
	}
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CourierID: u.CourierID,
		SedeID:    u.SedeID,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
