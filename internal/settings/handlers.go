package settings

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for settings.
type Handlers struct {
	service *Service
}

// NewHandlers creates new settings handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the settings routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Get)
	g.PUT("", h.Update)
}

// Get returns the effective settings.
// GET /api/v1/settings
func (h *Handlers) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Current())
}

// Update persists setting overrides. Changes apply on the next start.
// PUT /api/v1/settings
func (h *Handlers) Update(c echo.Context) error {
	var body struct {
		InstallRoot *string  `json:"installRoot"`
		MinScore    *float64 `json:"minScore"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	if body.InstallRoot != nil {
		if err := h.service.SetInstallRoot(ctx, *body.InstallRoot); err != nil {
			return settingError(c, err)
		}
	}
	if body.MinScore != nil {
		if err := h.service.SetMinScore(ctx, *body.MinScore); err != nil {
			return settingError(c, err)
		}
	}
	return c.JSON(http.StatusOK, h.service.Current())
}

func settingError(c echo.Context, err error) error {
	if errors.Is(err, ErrInvalidValue) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
