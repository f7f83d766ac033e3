package library

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for library operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new library handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the library routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/rescan", h.Rescan)
	g.GET("/history", h.History)
}

// List returns installed games, optionally fuzzy-filtered by ?query=.
// GET /api/v1/library
func (h *Handlers) List(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("query"))

	var games []InstalledGameRecord
	var err error
	if query != "" {
		games, err = h.service.Search(c.Request().Context(), query)
	} else {
		games, err = h.service.ListInstalledGames(c.Request().Context())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if games == nil {
		games = []InstalledGameRecord{}
	}
	return c.JSON(http.StatusOK, games)
}

// Rescan triggers an immediate install-root rescan.
// POST /api/v1/library/rescan
func (h *Handlers) Rescan(c echo.Context) error {
	games, err := h.service.Rescan(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]int{"games": len(games)})
}

// History returns recent acquisition history.
// GET /api/v1/library/history?limit=50
func (h *Handlers) History(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	records, err := h.service.History(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if records == nil {
		records = []AcquisitionRecord{}
	}
	return c.JSON(http.StatusOK, records)
}
