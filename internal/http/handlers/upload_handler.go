package handlers

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"

	"biciadmin/internal/log"
	"biciadmin/internal/storage"
	"biciadmin/internal/validate"
)

// maxUploadFiles limits a single multipart request; the admin UI sends at
// most one product's gallery per request.
const maxUploadFiles = 5

type UploadHandler struct {
	Uploads *storage.Uploads
}

type uploadedImage struct {
	Filename string `json:"filename"`
	Src      string `json:"src"`
	Original string `json:"originalName"`
}

// Upload accepts up to maxUploadFiles image files under the "images" field
// and stores each under a unique name inside the uploads root.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid multipart form"})
	}
	files := form.File["images"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No images provided"})
	}
	if len(files) > maxUploadFiles {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Too many images (max 5)"})
	}

	saved := make([]uploadedImage, 0, len(files))
	for _, fh := range files {
		if !validate.ImageExt(fh.Filename) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Only image files are allowed (jpg, jpeg, png, gif)",
			})
		}
		src, err := fh.Open()
		if err != nil {
			log.Error(c, "uploads.save", err, map[string]any{"file": fh.Filename})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store image"})
		}
		stored, public, err := h.Uploads.Save(fh.Filename, src)
		src.Close()
		if errors.Is(err, storage.ErrUnsafePath) {
			log.Security(c, "uploads.rejected", map[string]any{"file": fh.Filename})
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid filename"})
		}
		if err != nil {
			log.Error(c, "uploads.save", err, map[string]any{"file": fh.Filename})
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store image"})
		}
		saved = append(saved, uploadedImage{Filename: stored, Src: public, Original: fh.Filename})
	}

	log.Info(c, "uploads.saved", map[string]any{"count": len(saved)})
	return c.JSON(fiber.Map{"images": saved})
}

// Delete removes a stored image by its stored filename.
func (h *UploadHandler) Delete(c *fiber.Ctx) error {
	name := c.Params("filename")
	if !validate.ImageExt(name) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid filename"})
	}
	err := h.Uploads.Delete(name)
	if errors.Is(err, storage.ErrUnsafePath) {
		log.Security(c, "uploads.delete.rejected", map[string]any{"file": name})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid filename"})
	}
	if errors.Is(err, os.ErrNotExist) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Image not found"})
	}
	if err != nil {
		log.Error(c, "uploads.delete", err, map[string]any{"file": name})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete image"})
	}
	return c.JSON(fiber.Map{"success": true})
}
