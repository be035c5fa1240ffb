package trail

import (
	"github.com/gofiber/fiber/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/auth"
)

// Handler serves manual trail execution.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Run handles POST /api/trails/run.
func (h *Handler) Run(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	var body struct {
		TrailID string         `json:"trail_id"`
		Context map[string]any `json:"context"`
		Payload map[string]any `json:"payload"` // older clients
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	if body.TrailID == "" {
		return apperr.New("INVALID_PAYLOAD", 400, "trail_id is required")
	}
	trigger := body.Context
	if trigger == nil {
		trigger = body.Payload
	}
	if trigger == nil {
		trigger = map[string]any{}
	}

	result, err := h.service.RunByID(c.Context(), user.Tenant, body.TrailID, trigger, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// RegisterRoutes registers the trail endpoints behind the auth middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/trails", authMW)
	grp.Post("/run", h.Run)
}
