package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"biciadmin/internal/log"
	"biciadmin/internal/meli"
	"biciadmin/internal/repos"
	"biciadmin/internal/validate"
)

type MigrateHandler struct {
	Products  *repos.ProductRepo
	Tokens    *meli.TokenStore
	Submitter *meli.Submitter
	Batch     *meli.Orchestrator
}

// Migrate pushes one configured product to MercadoLibre.
func (h *MigrateHandler) Migrate(c *fiber.Ctx) error {
	if !h.Tokens.HasAccessToken() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "No autenticado con MercadoLibre. Conecte su cuenta primero.",
		})
	}
	id, ok := validate.ID(c.Params("productId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "Producto no encontrado"})
	}
	product, err := h.Products.Get(id)
	if errors.Is(err, repos.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "Producto no encontrado"})
	}
	if err != nil {
		log.Error(c, "ml.migrate", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "Error al cargar el producto"})
	}

	result, err := h.Submitter.Submit(c.Context(), product)
	if err != nil {
		return h.submitError(c, id, err)
	}

	log.Info(c, "ml.migrate.ok", map[string]any{"id": id, "item": result.ItemID})
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   fmt.Sprintf("Producto migrado exitosamente a MercadoLibre (%s)", result.ItemID),
		"mlItemId":  result.ItemID,
		"permalink": result.Permalink,
		"product":   product,
	})
}

type batchMigrateRequest struct {
	ProductIDs []int `json:"productIds"`
}

// BatchMigrate submits several products sequentially and reports per-product
// outcomes. The response is 200 even when every item failed; callers read
// successful/failed to decide what to show.
func (h *MigrateHandler) BatchMigrate(c *fiber.Ctx) error {
	if !h.Tokens.HasAccessToken() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "No autenticado con MercadoLibre. Conecte su cuenta primero.",
		})
	}
	var req batchMigrateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Se requiere una lista de IDs de productos",
		})
	}
	if len(req.ProductIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Se requiere una lista de IDs de productos",
		})
	}

	result := h.Batch.Run(c.Context(), req.ProductIDs)
	log.Info(c, "ml.batch", map[string]any{
		"total": result.Total, "ok": len(result.Successful), "failed": len(result.Failed),
	})
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    fmt.Sprintf("Migración completada: %d exitosos, %d fallidos", len(result.Successful), len(result.Failed)),
		"successful": result.Successful,
		"failed":     result.Failed,
		"total":      result.Total,
	})
}

func (h *MigrateHandler) submitError(c *fiber.Ctx, id int, err error) error {
	switch {
	case errors.Is(err, meli.ErrNotAuthenticated), errors.Is(err, meli.ErrAuthenticationFailed):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "No autenticado con MercadoLibre. Conecte su cuenta primero.",
		})
	case errors.Is(err, meli.ErrNotConfigured):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Producto no configurado para MercadoLibre",
		})
	case errors.Is(err, meli.ErrAlreadyMigrated):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Producto ya migrado",
		})
	}

	var rejected *meli.ListingRejectedError
	if errors.As(err, &rejected) {
		log.Warn(c, "ml.migrate.rejected", map[string]any{"id": id, "message": rejected.Message})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":        false,
			"error":          rejected.Error(),
			"mlErrorCode":    rejected.Code,
			"mlErrorDetails": rejected.Details,
			"requestPayload": rejected.Payload,
		})
	}

	log.Error(c, "ml.migrate", err, map[string]any{"id": id})
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Error al migrar el producto",
	})
}
