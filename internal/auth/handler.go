package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"cabinet-admin/internal/config"
	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users      store.UserStore
	tokens     store.TokenStore
	resolver   PermissionResolver
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users store.UserStore, tokens store.TokenStore, resolver PermissionResolver, cfg config.AuthConfig) *AuthHandler {
	h := &AuthHandler{
		users:      users,
		tokens:     tokens,
		resolver:   resolver,
		jwtSecret:  cfg.JWTSecret,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
	if h.accessTTL <= 0 {
		h.accessTTL = AccessTokenTTL
	}
	if h.refreshTTL <= 0 {
		h.refreshTTL = RefreshTokenTTL
	}
	return h
}

// Login handles POST /cabinet/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.UserContext()

	user, err := h.users.GetUserByEmail(ctx, body.Email)
	if errors.Is(err, store.ErrNotFound) {
		return engine.UnauthorizedError("Invalid email or password")
	}
	if err != nil {
		return err
	}
	if !user.Active {
		return engine.UnauthorizedError("Account is disabled")
	}
	if !CheckPassword(body.Password, user.PasswordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}
	log.WithField("user", user.ID).Info("admin logged in")
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /cabinet/auth/refresh. The used token is consumed.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.UserContext()

	userID, err := h.tokens.ConsumeRefreshToken(ctx, body.RefreshToken)
	if errors.Is(err, store.ErrNotFound) {
		return engine.UnauthorizedError("Invalid or expired refresh token")
	}
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.UnauthorizedError("Invalid refresh token")
	}
	if err != nil {
		return err
	}
	if !user.Active {
		return engine.UnauthorizedError("Account is disabled")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /cabinet/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	if err := h.tokens.DeleteRefreshToken(c.UserContext(), body.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /cabinet/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	return c.JSON(fiber.Map{"data": user})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler, authMW fiber.Handler) {
	auth := app.Group("/cabinet/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
	auth.Get("/me", authMW, h.Me)
}

func (h *AuthHandler) generateTokenPair(ctx context.Context, user *store.AdminUser) (*TokenPair, error) {
	identity := &metadata.UserContext{ID: user.ID, RoleIDs: user.RoleIDs}
	if h.resolver != nil {
		eff, err := h.resolver.Resolve(ctx, user.RoleIDs)
		if err != nil {
			return nil, err
		}
		identity.Permissions = eff.Permissions
		identity.Level = eff.Level
	}

	accessToken, err := GenerateAccessToken(identity, h.jwtSecret, h.accessTTL)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken, err := h.tokens.CreateRefreshToken(ctx, user.ID, h.refreshTTL)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(h.accessTTL.Seconds()),
	}, nil
}
