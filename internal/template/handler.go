package template

import (
	"github.com/gofiber/fiber/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/auth"
	"strata-backend/internal/metadata"
)

// Handler serves template snapshot/apply and tenant provisioning.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /api/templates.
func (h *Handler) List(c *fiber.Ctx) error {
	rows, err := h.service.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// FromTenant handles POST /api/templates/from_tenant: snapshot the caller's
// tenant and persist it under a name.
func (h *Handler) FromTenant(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	if body.Name == "" {
		return apperr.New("VALIDATION_FAILED", 422, "name is required")
	}

	doc, err := h.service.Snapshot(c.Context(), user.Tenant)
	if err != nil {
		return err
	}
	doc.Name = body.Name

	id, err := h.service.Save(c.Context(), user.Tenant, body.Name, doc)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"id": id, "template": doc}})
}

// Provision handles POST /api/companies: apply a template to a fresh tenant.
// The template comes either by id or inline.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var body struct {
		Tenant     string `json:"tenant"`
		TemplateID string `json:"template_id,omitempty"`
		Template   *Doc   `json:"template,omitempty"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	if err := metadata.ValidateSlug(body.Tenant); err != nil {
		return apperr.InvalidSlug(body.Tenant)
	}

	doc := body.Template
	if doc == nil {
		if body.TemplateID == "" {
			return apperr.New("VALIDATION_FAILED", 422, "a template_id or inline template is required")
		}
		loaded, err := h.service.Load(c.Context(), body.TemplateID)
		if err != nil {
			return err
		}
		doc = loaded
	}

	if err := h.service.Apply(c.Context(), body.Tenant, doc); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"tenant": body.Tenant}})
}

// RegisterRoutes registers the template endpoints; all are admin-only.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api", authMW, auth.RequireAdmin())
	grp.Get("/templates", h.List)
	grp.Post("/templates/from_tenant", h.FromTenant)
	grp.Post("/companies", h.Provision)
}
