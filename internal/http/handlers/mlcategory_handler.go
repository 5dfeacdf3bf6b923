package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"biciadmin/internal/log"
	"biciadmin/internal/meli"
)

type MLCategoryHandler struct {
	Resolver *meli.Resolver
}

type predictRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Predict runs the category prediction pipeline for a product title. The
// resolver never fails outright; degraded results come back with Success
// false inside the body, so this endpoint always answers 200 for valid input.
func (h *MLCategoryHandler) Predict(c *fiber.Ctx) error {
	var req predictRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "El título del producto es requerido"})
	}
	result := h.Resolver.Predict(c.Context(), req.Title, req.Description)
	return c.JSON(result)
}

func (h *MLCategoryHandler) Roots(c *fiber.Ctx) error {
	cats, err := h.Resolver.Roots(c.Context())
	if err != nil {
		return h.apiError(c, "ml.categories.roots", err)
	}
	return c.JSON(fiber.Map{"success": true, "categories": cats, "total": len(cats)})
}

func (h *MLCategoryHandler) Search(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "El parámetro de búsqueda es requerido"})
	}
	hits, total, err := h.Resolver.Search(c.Context(), q)
	if err != nil {
		return h.apiError(c, "ml.categories.search", err)
	}
	return c.JSON(fiber.Map{"success": true, "query": q, "results": hits, "total": total})
}

func (h *MLCategoryHandler) Details(c *fiber.Ctx) error {
	details, err := h.Resolver.Details(c.Context(), c.Params("categoryId"))
	if err != nil {
		return h.apiError(c, "ml.categories.details", err)
	}
	return c.JSON(fiber.Map{"success": true, "category": details})
}

func (h *MLCategoryHandler) Attributes(c *fiber.Ctx) error {
	set, err := h.Resolver.Attributes(c.Context(), c.Params("categoryId"))
	if err != nil {
		return h.apiError(c, "ml.categories.attributes", err)
	}
	return c.JSON(fiber.Map{"success": true, "attributes": set})
}

func (h *MLCategoryHandler) Hierarchy(c *fiber.Ctx) error {
	hier, err := h.Resolver.Hierarchy(c.Context(), c.Params("categoryId"))
	if err != nil {
		return h.apiError(c, "ml.categories.hierarchy", err)
	}
	return c.JSON(fiber.Map{"success": true, "hierarchy": hier})
}

func (h *MLCategoryHandler) Validate(c *fiber.Ctx) error {
	validation, details, err := h.Resolver.ValidateForListing(c.Context(), c.Params("categoryId"))
	if err != nil {
		return h.apiError(c, "ml.categories.validate", err)
	}
	return c.JSON(fiber.Map{"success": true, "validation": validation, "category": details})
}

func (h *MLCategoryHandler) apiError(c *fiber.Ctx, action string, err error) error {
	if errors.Is(err, meli.ErrNotAuthenticated) || errors.Is(err, meli.ErrAuthenticationFailed) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "No autenticado con MercadoLibre",
		})
	}
	var apiErr *meli.APIError
	if errors.As(err, &apiErr) && apiErr.Status == fiber.StatusNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Categoría no encontrada",
		})
	}
	log.Error(c, action, err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Error al consultar MercadoLibre",
	})
}
