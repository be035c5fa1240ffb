package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"strata-backend/internal/apperr"
	"strata-backend/internal/store"
)

// Handler serves the authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	if body.Email == "" || body.Password == "" {
		return apperr.Unauthorized("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return apperr.Unauthorized("Invalid email or password")
	}

	active, _ := user["active"].(bool)
	if !active {
		return apperr.Unauthorized("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return apperr.Unauthorized("Invalid email or password")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Tokens rotate on use.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	if body.RefreshToken == "" {
		return apperr.Unauthorized("Refresh token is required")
	}

	ctx := c.Context()

	row, err := store.QueryRowMap(ctx, h.store.Pool,
		`SELECT rt.id::text AS token_id, u.id::text AS id, u.email, u.name, u.cargo,
		        u.tenant, u.roles, u.active, u.password_hash, rt.expires_at
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = $1`, body.RefreshToken)
	if err != nil {
		return apperr.Unauthorized("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		_, _ = store.Exec(ctx, h.store.Pool,
			"DELETE FROM _refresh_tokens WHERE token = $1", body.RefreshToken)
		return apperr.Unauthorized("Refresh token expired")
	}

	active, _ := row["active"].(bool)
	if !active {
		return apperr.Unauthorized("Account is disabled")
	}

	_, _ = store.Exec(ctx, h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE id = $1", row["token_id"])

	pair, err := h.generateTokenPair(ctx, row)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	if body.RefreshToken == "" {
		return apperr.Unauthorized("Refresh token is required")
	}

	_, _ = store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE token = $1", body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return store.QueryRowMap(ctx, h.store.Pool,
		`SELECT id::text AS id, email, name, cargo, tenant, password_hash, roles, active
		 FROM _users WHERE email = $1`, email)
}

func (h *Handler) generateTokenPair(ctx context.Context, user map[string]any) (*TokenPair, error) {
	userID := asString(user["id"])
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Email:            asString(user["email"]),
		Name:             asString(user["name"]),
		Cargo:            asString(user["cargo"]),
		Tenant:           asString(user["tenant"]),
		Roles:            extractRoles(user["roles"]),
	}

	accessToken, err := GenerateAccessToken(claims, h.jwtSecret)
	if err != nil {
		return nil, apperr.New("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	_, err = store.Exec(ctx, h.store.Pool,
		`INSERT INTO _refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, refreshToken, expiresAt)
	if err != nil {
		return nil, apperr.New("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func extractRoles(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		result := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return []string{}
	}
}
