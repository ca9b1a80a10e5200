package storage

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

const maxEvidenceSize = 10 << 20

// POST /api/evidence (multipart, field "file")
// Stores a proof of payment and returns the reference to send with /settlements/submit.
func UploadEvidenceHandler(store Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Debe adjuntar el archivo en el campo 'file'")
		}
		if AllowedExt(fileHeader.Filename) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Solo se aceptan imágenes (png, jpg, webp) o pdf")
		}
		if fileHeader.Size > maxEvidenceSize {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "El comprobante no puede superar los 10 MB")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo abrir el archivo")
		}
		defer file.Close()

		res, err := store.Put(c.UserContext(), file, PutInput{
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Size:        fileHeader.Size,
		})
		if err != nil {
			log.Printf("evidence upload failed: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo guardar el comprobante")
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}
