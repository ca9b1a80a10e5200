package auth

import (
	"strings"

	"cuadre-backend/internal/config"
	"cuadre-backend/internal/database"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type RegisterAdminRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/register-admin
// Only works while no admin exists.
func RegisterAdminHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var count int64
		database.DB.Model(&models.User{}).
			Where("role = ?", models.RoleAdmin).
			Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "Ya existe un administrador")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo procesar la contraseña")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		}

		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear el usuario")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		})
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := validation.BodyParser(c, &body); err != nil {
			return err
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := database.DB.Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":         user.ID,
				"name":       user.Name,
				"email":      user.Email,
				"role":       user.Role,
				"courier_id": user.CourierID,
				"sede_id":    user.SedeID,
			},
		})
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := IdentityFrom(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := database.DB.Preload("Courier").Preload("Sede").First(&user, id.UserID).Error; err != nil {
			// token is still valid, answer with what it carries
			return c.JSON(fiber.Map{
				"user_id":    id.UserID,
				"role":       id.Role,
				"courier_id": id.CourierID,
				"sede_id":    id.SedeID,
			})
		}

		response := fiber.Map{
			"user_id":    user.ID,
			"name":       user.Name,
			"email":      user.Email,
			"role":       user.Role,
			"courier_id": user.CourierID,
			"sede_id":    user.SedeID,
		}
		if user.Courier != nil {
			response["courier"] = fiber.Map{"id": user.Courier.ID, "name": user.Courier.Name}
		}
		if user.Sede != nil {
			response["sede"] = fiber.Map{
				"id":      user.Sede.ID,
				"name":    user.Sede.Name,
				"address": user.Sede.Address,
				"phone":   user.Sede.Phone,
			}
		}

		return c.JSON(response)
	}
}
