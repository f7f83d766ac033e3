package acquisition

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for acquisition operations.
type Handlers struct {
	manager *Manager
}

// NewHandlers creates new acquisition handlers.
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers the acquisition routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Start)
	g.GET("/:id", h.Get)
	g.POST("/:id/install", h.ConfirmInstall)
	g.POST("/:id/confirm-risk", h.ConfirmRisk)
	g.POST("/:id/cancel", h.Cancel)
	g.DELETE("/:id", h.Remove)
}

// List returns all active jobs.
// GET /api/v1/acquisitions
func (h *Handlers) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.List())
}

// Start begins an acquisition for a chosen candidate.
// POST /api/v1/acquisitions
func (h *Handlers) Start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	view, err := h.manager.Start(req)
	if errors.Is(err, ErrNoLink) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, view)
}

// Get returns one job by id.
// GET /api/v1/acquisitions/:id
func (h *Handlers) Get(c echo.Context) error {
	view, err := h.manager.Get(c.Param("id"))
	if errors.Is(err, ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, view)
}

// ConfirmInstall advances a ReadyToInstall job into its install phase.
// POST /api/v1/acquisitions/:id/install
func (h *Handlers) ConfirmInstall(c echo.Context) error {
	return h.simpleAction(c, h.manager.ConfirmInstall)
}

// ConfirmRisk answers a pending malicious-hash warning.
// POST /api/v1/acquisitions/:id/confirm-risk
func (h *Handlers) ConfirmRisk(c echo.Context) error {
	var body struct {
		Accept bool `json:"accept"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	return h.simpleAction(c, func(id string) error {
		return h.manager.ConfirmRisk(id, body.Accept)
	})
}

// Cancel requests cancellation of a job.
// POST /api/v1/acquisitions/:id/cancel
func (h *Handlers) Cancel(c echo.Context) error {
	return h.simpleAction(c, h.manager.Cancel)
}

// Remove drops a terminal job from the active set.
// DELETE /api/v1/acquisitions/:id
func (h *Handlers) Remove(c echo.Context) error {
	return h.simpleAction(c, h.manager.Remove)
}

func (h *Handlers) simpleAction(c echo.Context, action func(id string) error) error {
	err := action(c.Param("id"))
	switch {
	case errors.Is(err, ErrJobNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrWrongState):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
