package auth

import (
	"errors"
	"fmt"

	"cuadre-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Identity is the caller as established by JWTMiddleware.
type Identity struct {
	UserID    uint
	Name      string
	Role      models.UserRole
	CourierID *uint
	SedeID    *uint
}

func IdentityFrom(c *fiber.Ctx) (Identity, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusForbidden, "No se pudo obtener el usuario")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusForbidden, "No se pudo obtener el rol")
	}
	id := Identity{UserID: userID, Role: role}
	id.Name, _ = c.Locals(CtxUserNameKey).(string)
	if p, ok := c.Locals(CtxCourierIDKey).(*uint); ok && p != nil {
		id.CourierID = p
	}
	if p, ok := c.Locals(CtxSedeIDKey).(*uint); ok && p != nil {
		id.SedeID = p
	}
	return id, nil
}

// ParseScope reads ?scope=rider|sede|courier&scope_id=N. Both empty returns nil.
func ParseScope(kind, rawID string) (*models.Scope, error) {
	if kind == "" && rawID == "" {
		return nil, nil
	}
	k := models.ScopeKind(kind)
	if !k.Valid() {
		return nil, fiber.NewError(fiber.StatusBadRequest, "scope inválido (rider|sede|courier)")
	}
	var id uint
	if _, err := fmt.Sscan(rawID, &id); err != nil || id == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "scope_id inválido")
	}
	return &models.Scope{Kind: k, ID: id}, nil
}

// ResolveScope decides which scope the caller works on.
// Riders and ecommerce users are pinned to their own scope; courier staff may pick any
// scope inside their company; admins must name one.
func ResolveScope(db *gorm.DB, id Identity, requested *models.Scope) (models.Scope, error) {
	switch id.Role {
	case models.RoleRider:
		own := models.Scope{Kind: models.ScopeRider, ID: id.UserID}
		if requested != nil && *requested != own {
			return models.Scope{}, fiber.NewError(fiber.StatusForbidden, "Solo puede consultar su propio cuadre")
		}
		return own, nil

	case models.RoleEcommerce:
		if id.SedeID == nil {
			return models.Scope{}, fiber.NewError(fiber.StatusForbidden, "Usuario sin sede asignada")
		}
		own := models.Scope{Kind: models.ScopeSede, ID: *id.SedeID}
		if requested != nil && *requested != own {
			return models.Scope{}, fiber.NewError(fiber.StatusForbidden, "Solo puede consultar su propia sede")
		}
		return own, nil

	case models.RoleCourier:
		if id.CourierID == nil {
			return models.Scope{}, fiber.NewError(fiber.StatusForbidden, "Usuario sin courier asignado")
		}
		if requested == nil {
			return models.Scope{Kind: models.ScopeCourier, ID: *id.CourierID}, nil
		}
		owner, err := scopeCourier(db, *requested)
		if err != nil {
			return models.Scope{}, err
		}
		if owner != *id.CourierID {
			return models.Scope{}, fiber.NewError(fiber.StatusForbidden, "El scope no pertenece a su courier")
		}
		return *requested, nil

	case models.RoleAdmin:
		if requested == nil {
			return models.Scope{}, fiber.NewError(fiber.StatusBadRequest, "scope y scope_id son obligatorios")
		}
		return *requested, nil
	}
	return models.Scope{}, fiber.NewError(fiber.StatusForbidden, "Rol desconocido")
}

// scopeCourier returns the courier company that owns the scope.
func scopeCourier(db *gorm.DB, s models.Scope) (uint, error) {
	switch s.Kind {
	case models.ScopeCourier:
		return s.ID, nil
	case models.ScopeSede:
		var sede models.Sede
		if err := db.First(&sede, "id = ?", s.ID).Error; err != nil {
			return 0, notFoundOr500(err, "Sede no encontrada")
		}
		return sede.CourierID, nil
	case models.ScopeRider:
		var rider models.User
		if err := db.First(&rider, "id = ? AND role = ?", s.ID, models.RoleRider).Error; err != nil {
			return 0, notFoundOr500(err, "Motorizado no encontrado")
		}
		if rider.CourierID == nil {
			return 0, fiber.NewError(fiber.StatusForbidden, "Motorizado sin courier asignado")
		}
		return *rider.CourierID, nil
	}
	return 0, fiber.NewError(fiber.StatusBadRequest, "scope inválido")
}

func notFoundOr500(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, msg)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Error de base de datos")
}
