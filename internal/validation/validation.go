package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

type FieldErrors map[string]string

// Struct validates dst and returns FieldErrors (nil when valid).
func Struct(dst any) FieldErrors {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	out := FieldErrors{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}
	out["_"] = "Datos inválidos"
	return out
}

// BodyParser parses the request body into dst and validates it.
func BodyParser(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
	}
	if fields := Struct(dst); fields != nil {
		return fiber.NewError(fiber.StatusBadRequest, fields.String())
	}
	return nil
}

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "es obligatorio"
	case "email":
		return "email inválido"
	case "min":
		return "mínimo " + param
	case "max":
		return "máximo " + param
	case "oneof":
		return "debe ser uno de: " + param
	case "gt":
		return "debe ser mayor que " + param
	case "datetime":
		return "formato de fecha inválido (" + param + ")"
	default:
		return "valor inválido"
	}
}
