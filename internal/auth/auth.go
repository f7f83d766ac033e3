// Package auth provides optional password login with JWT sessions for the
// local API. With no password hash configured the API is open, which is the
// normal mode for a single-user desktop install.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials means the password did not match.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Config holds the auth settings.
type Config struct {
	JWTSecret    string
	PasswordHash string // bcrypt; empty disables auth
	TokenTTL     time.Duration
}

// Service issues and validates session tokens.
type Service struct {
	config Config
	logger zerolog.Logger
}

// NewService creates the auth service.
func NewService(config Config, logger zerolog.Logger) *Service {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	return &Service{
		config: config,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Enabled reports whether the API requires login.
func (s *Service) Enabled() bool {
	return s.config.PasswordHash != ""
}

// Login verifies the password and returns a signed session token.
func (s *Service) Login(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Msg("Failed login attempt")
		return "", ErrInvalidCredentials
	}

	claims := jwt.RegisteredClaims{
		Subject:   "gamedock",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", err
	}

	s.logger.Info().Msg("Login succeeded")
	return signed, nil
}

// validate parses and checks a session token.
func (s *Service) validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("auth: unexpected signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("auth: invalid token")
	}
	return nil
}

// Middleware rejects requests without a valid Bearer token. A no-op when
// auth is disabled.
func (s *Service) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.Enabled() {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing token"})
			}
			if err := s.validate(tokenString); err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			return next(c)
		}
	}
}

// Handlers provides the login endpoint.
type Handlers struct {
	service *Service
}

// NewHandlers creates new auth handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the auth routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.GET("/status", h.Status)
}

// Login exchanges a password for a session token.
// POST /api/v1/auth/login
func (h *Handlers) Login(c echo.Context) error {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	token, err := h.service.Login(body.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// Status reports whether auth is enabled.
// GET /api/v1/auth/status
func (h *Handlers) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"enabled": h.service.Enabled()})
}
