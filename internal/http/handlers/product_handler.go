package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"biciadmin/internal/domain"
	"biciadmin/internal/log"
	"biciadmin/internal/repos"
	"biciadmin/internal/storage"
	"biciadmin/internal/validate"
)

type ProductHandler struct {
	Products *repos.ProductRepo
	Uploads  *storage.Uploads
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	products, err := h.Products.List()
	if err != nil {
		log.Error(c, "products.list", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load products"})
	}
	return c.JSON(products)
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	}
	p, err := h.Products.Get(id)
	if errors.Is(err, repos.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	}
	if err != nil {
		log.Error(c, "products.get", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load product"})
	}
	return c.JSON(p)
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var p domain.Product
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product body"})
	}
	if p.Name.Es == "" || len(p.Variants) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing required product fields (name, variants with price)",
		})
	}
	if p.Images == nil {
		p.Images = []domain.ProductImage{}
	}
	if err := h.Products.Create(&p); err != nil {
		log.Error(c, "products.create", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save new product"})
	}
	log.Info(c, "products.create", map[string]any{"id": p.ID})
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	}
	existing, err := h.Products.Get(id)
	if errors.Is(err, repos.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	}
	if err != nil {
		log.Error(c, "products.update", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process product update"})
	}

	var p domain.Product
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product body"})
	}
	if p.Name.Es == "" || len(p.Variants) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing required product fields (name, variants with price)",
		})
	}
	p.ID = id
	if p.Images == nil {
		p.Images = []domain.ProductImage{}
	}
	// Migration state survives catalog edits.
	if p.MercadoLibreConfig == nil {
		p.MercadoLibreConfig = existing.MercadoLibreConfig
	}
	if err := h.Products.Update(&p); err != nil {
		log.Error(c, "products.update", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update product"})
	}
	return c.JSON(p)
}

// MLConfigGet returns the stored marketplace configuration for a product.
func (h *ProductHandler) MLConfigGet(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("productId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Producto no encontrado"})
	}
	p, err := h.Products.Get(id)
	if errors.Is(err, repos.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Producto no encontrado"})
	}
	if err != nil {
		log.Error(c, "products.mlconfig.get", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error al cargar la configuración"})
	}
	return c.JSON(fiber.Map{"success": true, "config": p.MercadoLibreConfig})
}

// MLConfigSet stores the marketplace configuration chosen in the admin UI.
// Saving a new configuration never clears an existing migration record.
func (h *ProductHandler) MLConfigSet(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("productId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Producto no encontrado"})
	}
	p, err := h.Products.Get(id)
	if errors.Is(err, repos.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Producto no encontrado"})
	}
	if err != nil {
		log.Error(c, "products.mlconfig.set", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error al guardar la configuración"})
	}

	var cfg domain.MigrationConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Configuración inválida"})
	}
	if cfg.Category.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Debe seleccionar una categoría de MercadoLibre"})
	}
	if !validate.Price(cfg.Pricing.Price) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "El precio debe ser mayor a cero"})
	}
	cfg.Inventory.AvailableQuantity = validate.Qty(cfg.Inventory.AvailableQuantity)
	cfg.Identifiers.Gtin = strings.TrimSpace(cfg.Identifiers.Gtin)
	if cfg.Identifiers.Gtin != "" && !validate.GTIN(cfg.Identifiers.Gtin) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "GTIN inválido: debe contener 8, 12, 13 o 14 dígitos"})
	}
	cfg.Configured = true
	if p.MercadoLibreConfig != nil {
		cfg.Migrated = p.MercadoLibreConfig.Migrated
		cfg.MlItemID = p.MercadoLibreConfig.MlItemID
		cfg.MlPermalink = p.MercadoLibreConfig.MlPermalink
		cfg.MigratedAt = p.MercadoLibreConfig.MigratedAt
	}
	p.MercadoLibreConfig = &cfg

	if err := h.Products.Update(p); err != nil {
		log.Error(c, "products.mlconfig.set", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error al guardar la configuración"})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Configuración de MercadoLibre guardada",
		"product": p,
	})
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	}
	p, err := h.Products.Get(id)
	if errors.Is(err, repos.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	}
	if err != nil {
		log.Error(c, "products.delete", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process product deletion"})
	}

	// Best effort: a stale image file never blocks catalog deletion.
	for _, img := range p.Images {
		if img.Filename == "" {
			continue
		}
		if err := h.Uploads.Delete(img.Filename); err != nil {
			log.Warn(c, "products.delete.image", map[string]any{"file": img.Filename, "err": err.Error()})
		}
	}

	if err := h.Products.Delete(id); err != nil {
		log.Error(c, "products.delete", err, map[string]any{"id": id})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete product"})
	}
	log.Info(c, "products.delete", map[string]any{"id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
