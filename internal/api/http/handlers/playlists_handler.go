package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/playlist-gateway/internal/api/dto"
	"github.com/spec-kit/playlist-gateway/internal/auth"
	"github.com/spec-kit/playlist-gateway/internal/service"
	apperrors "github.com/spec-kit/playlist-gateway/pkg/util/errorutil"
)

// PlaylistsHandler serves user-scoped endpoints.
type PlaylistsHandler struct {
	playlists *service.PlaylistService
}

// NewPlaylistsHandler constructs handler.
func NewPlaylistsHandler(playlists *service.PlaylistService) *PlaylistsHandler {
	return &PlaylistsHandler{playlists: playlists}
}

// Me handles GET /api/me.
func (h *PlaylistsHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromFiber(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	profile, err := h.playlists.Profile(c.UserContext(), identity)
	if err != nil {
		return err
	}

	resp := dto.UserResponse{ID: profile.SubjectID, DisplayName: profile.DisplayName}
	if profile.User != nil {
		resp.Email = profile.User.Email
		lastLogin := profile.User.LastLoginAt
		resp.LastLoginAt = &lastLogin
	}
	return c.JSON(fiber.Map{"data": resp})
}

// List handles GET /api/playlists.
func (h *PlaylistsHandler) List(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromFiber(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	body, err := h.playlists.Playlists(c.UserContext(), identity, limit, offset)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(http.StatusOK).Send(body)
}
