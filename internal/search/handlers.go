package search

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for search operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new search handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the search routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Search)
	g.GET("/sources", h.SourceStatuses)
}

// Search handles game search requests.
// GET /api/v1/search?query=...
func (h *Handlers) Search(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("query"))
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "query parameter is required",
		})
	}

	result, err := h.service.Search(c.Request().Context(), query)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, result)
}

// SourceStatuses returns health records for all search sources.
// GET /api/v1/search/sources
func (h *Handlers) SourceStatuses(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.SourceStatuses())
}
