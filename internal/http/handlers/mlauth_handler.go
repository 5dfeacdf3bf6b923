package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"biciadmin/internal/log"
	"biciadmin/internal/meli"
)

type MLAuthHandler struct {
	Tokens *meli.TokenStore
	API    *meli.Client
}

// AuthURL hands the admin UI the MercadoLibre consent URL for the single
// configured application. Each call issues a fresh state value.
func (h *MLAuthHandler) AuthURL(c *fiber.Ctx) error {
	url, state := h.Tokens.AuthorizationURL()
	return c.JSON(fiber.Map{"success": true, "authUrl": url, "state": state})
}

// Callback completes the authorization-code flow and redirects back to the
// admin UI. Errors travel as query parameters so the UI can show them.
func (h *MLAuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if c.Query("error") != "" {
		log.Warn(c, "ml.auth.denied", map[string]any{"error": c.Query("error")})
		return c.Redirect("/admin?ml_error=access_denied")
	}
	if code == "" {
		return c.Redirect("/admin?ml_error=missing_code")
	}
	_, err := h.Tokens.ExchangeCode(c.Context(), code, state)
	if errors.Is(err, meli.ErrInvalidState) {
		log.Security(c, "ml.auth.bad_state", map[string]any{"state": state})
		return c.Redirect("/admin?ml_error=invalid_state")
	}
	if err != nil {
		log.Error(c, "ml.auth.exchange", err, nil)
		return c.Redirect("/admin?ml_error=token_exchange_failed")
	}
	log.Info(c, "ml.auth.connected", nil)
	return c.Redirect("/admin?ml_success=true")
}

func (h *MLAuthHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.Tokens.Info())
}

func (h *MLAuthHandler) Refresh(c *fiber.Ctx) error {
	if _, err := h.Tokens.Refresh(c.Context()); err != nil {
		if errors.Is(err, meli.ErrNoRefreshToken) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "No hay sesión de MercadoLibre activa",
			})
		}
		log.Error(c, "ml.auth.refresh", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "No se pudo renovar el token de MercadoLibre",
		})
	}
	return c.JSON(fiber.Map{"success": true, "token": h.Tokens.Info()})
}

func (h *MLAuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.Tokens.Clear(); err != nil {
		log.Error(c, "ml.auth.logout", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "No se pudo cerrar la sesión",
		})
	}
	log.Info(c, "ml.auth.disconnected", nil)
	return c.JSON(fiber.Map{"success": true})
}

// User proxies the authenticated seller profile, mostly so the admin UI can
// show who is connected.
func (h *MLAuthHandler) User(c *fiber.Ctx) error {
	var user map[string]any
	if err := h.API.GetJSON(c.Context(), "/users/me", &user); err != nil {
		return h.apiError(c, "ml.auth.user", err)
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}

// Marketplace returns the Colombian site descriptor used by the listing form
// (currencies, listing types).
func (h *MLAuthHandler) Marketplace(c *fiber.Ctx) error {
	var site map[string]any
	if err := h.API.GetJSON(c.Context(), "/sites/"+meli.SiteID, &site); err != nil {
		return h.apiError(c, "ml.marketplace", err)
	}
	return c.JSON(fiber.Map{"success": true, "site": site})
}

func (h *MLAuthHandler) apiError(c *fiber.Ctx, action string, err error) error {
	if errors.Is(err, meli.ErrNotAuthenticated) || errors.Is(err, meli.ErrAuthenticationFailed) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "No autenticado con MercadoLibre",
		})
	}
	log.Error(c, action, err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Error al consultar MercadoLibre",
	})
}
