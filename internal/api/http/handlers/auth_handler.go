package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/playlist-gateway/internal/api/dto"
	"github.com/spec-kit/playlist-gateway/internal/config"
	"github.com/spec-kit/playlist-gateway/internal/service"
)

// AuthHandler exposes login and logout.
type AuthHandler struct {
	auth   *service.AuthService
	cookie config.AuthConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{auth: authService, cookie: cfg}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.AccessToken == "" {
		return fiber.NewError(http.StatusBadRequest, "access_token required")
	}

	result, err := h.auth.Login(c.UserContext(), req.AccessToken)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.SessionCookieName,
		Value:    result.SessionID,
		Path:     "/",
		MaxAge:   int(h.cookie.SessionTTL().Seconds()),
		Secure:   h.cookie.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.UserResponse{ID: result.SubjectID, DisplayName: result.DisplayName},
			"auth": dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt},
		},
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.UserContext(), c.Cookies(h.cookie.SessionCookieName)); err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   h.cookie.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.SendStatus(http.StatusNoContent)
}
