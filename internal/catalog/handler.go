package catalog

import (
	"github.com/gofiber/fiber/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/auth"
	"strata-backend/internal/metadata"
)

// Handler serves the catalog management endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// --- entities ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	reg, err := h.service.Registry(c.Context(), auth.GetTenant(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reg.AllEntities()})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	reg, err := h.service.Registry(c.Context(), auth.GetTenant(c))
	if err != nil {
		return err
	}
	entity := reg.GetEntity(c.Params("slug"))
	if entity == nil {
		return apperr.UnknownEntity(c.Params("slug"))
	}
	return c.JSON(fiber.Map{"data": entity})
}

func (h *Handler) CreateEntity(c *fiber.Ctx) error {
	var entity metadata.Entity
	if err := c.BodyParser(&entity); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.CreateEntity(c.Context(), auth.GetTenant(c), &entity)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateEntity(c *fiber.Ctx) error {
	var patch EntityPatch
	if err := c.BodyParser(&patch); err != nil {
		return apperr.InvalidPayload()
	}
	updated, err := h.service.UpdateEntity(c.Context(), auth.GetTenant(c), c.Params("slug"), &patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	if err := h.service.DeleteEntity(c.Context(), auth.GetTenant(c), c.Params("slug")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"slug": c.Params("slug"), "deleted": true}})
}

// --- fields ---

func (h *Handler) AddField(c *fiber.Ctx) error {
	var field metadata.Field
	if err := c.BodyParser(&field); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.AddField(c.Context(), auth.GetTenant(c), c.Params("slug"), &field)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateField(c *fiber.Ctx) error {
	var patch FieldPatch
	if err := c.BodyParser(&patch); err != nil {
		return apperr.InvalidPayload()
	}
	updated, err := h.service.UpdateField(c.Context(), auth.GetTenant(c),
		c.Params("slug"), c.Params("name"), &patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

func (h *Handler) DeleteField(c *fiber.Ctx) error {
	if err := h.service.DeleteField(c.Context(), auth.GetTenant(c),
		c.Params("slug"), c.Params("name")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"name": c.Params("name"), "deleted": true}})
}

// --- navigation ---

func (h *Handler) GetNavigation(c *fiber.Ctx) error {
	reg, err := h.service.Registry(c.Context(), auth.GetTenant(c))
	if err != nil {
		return err
	}
	groups, pages := reg.Navigation()
	if groups == nil {
		groups = []*metadata.NavGroup{}
	}
	if pages == nil {
		pages = []*metadata.NavPage{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"groups": groups, "pages": pages}})
}

func (h *Handler) CreateNavGroup(c *fiber.Ctx) error {
	var group metadata.NavGroup
	if err := c.BodyParser(&group); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.CreateNavGroup(c.Context(), auth.GetTenant(c), &group)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateNavGroup(c *fiber.Ctx) error {
	var group metadata.NavGroup
	if err := c.BodyParser(&group); err != nil {
		return apperr.InvalidPayload()
	}
	group.ID = c.Params("id")
	if err := h.service.UpdateNavGroup(c.Context(), auth.GetTenant(c), &group); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": group})
}

func (h *Handler) DeleteNavGroup(c *fiber.Ctx) error {
	if err := h.service.DeleteNavGroup(c.Context(), auth.GetTenant(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "deleted": true}})
}

type navPageBody struct {
	metadata.NavPage
	EntitySlug string `json:"entity_slug,omitempty"`
}

func (h *Handler) CreateNavPage(c *fiber.Ctx) error {
	var body navPageBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.CreateNavPage(c.Context(), auth.GetTenant(c), &body.NavPage, body.EntitySlug)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateNavPage(c *fiber.Ctx) error {
	var page metadata.NavPage
	if err := c.BodyParser(&page); err != nil {
		return apperr.InvalidPayload()
	}
	page.ID = c.Params("id")
	if err := h.service.UpdateNavPage(c.Context(), auth.GetTenant(c), &page); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": page})
}

func (h *Handler) DeleteNavPage(c *fiber.Ctx) error {
	if err := h.service.DeleteNavPage(c.Context(), auth.GetTenant(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "deleted": true}})
}

// --- actions ---

func (h *Handler) ListActions(c *fiber.Ctx) error {
	rows, err := h.service.ListActions(c.Context(), auth.GetTenant(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) CreateAction(c *fiber.Ctx) error {
	var act metadata.Action
	if err := c.BodyParser(&act); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.CreateAction(c.Context(), auth.GetTenant(c), &act)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateAction(c *fiber.Ctx) error {
	var act metadata.Action
	if err := c.BodyParser(&act); err != nil {
		return apperr.InvalidPayload()
	}
	act.ID = c.Params("id")
	if err := h.service.UpdateAction(c.Context(), auth.GetTenant(c), &act); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": act})
}

func (h *Handler) DeleteAction(c *fiber.Ctx) error {
	if err := h.service.DeleteAction(c.Context(), auth.GetTenant(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "deleted": true}})
}

// --- trails ---

func (h *Handler) ListTrails(c *fiber.Ctx) error {
	reg, err := h.service.Registry(c.Context(), auth.GetTenant(c))
	if err != nil {
		return err
	}
	trails := reg.AllTrails()
	if trails == nil {
		trails = []*metadata.Trail{}
	}
	return c.JSON(fiber.Map{"data": trails})
}

func (h *Handler) CreateTrail(c *fiber.Ctx) error {
	var t metadata.Trail
	if err := c.BodyParser(&t); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.CreateTrail(c.Context(), auth.GetTenant(c), &t)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateTrail(c *fiber.Ctx) error {
	var t metadata.Trail
	if err := c.BodyParser(&t); err != nil {
		return apperr.InvalidPayload()
	}
	t.ID = c.Params("id")
	if err := h.service.UpdateTrail(c.Context(), auth.GetTenant(c), &t); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": t})
}

func (h *Handler) DeleteTrail(c *fiber.Ctx) error {
	if err := h.service.DeleteTrail(c.Context(), auth.GetTenant(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "deleted": true}})
}

// --- subscriptions ---

func (h *Handler) ListSubscriptions(c *fiber.Ctx) error {
	rows, err := h.service.ListSubscriptions(c.Context(), auth.GetTenant(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) CreateSubscription(c *fiber.Ctx) error {
	var sub metadata.Subscription
	if err := c.BodyParser(&sub); err != nil {
		return apperr.InvalidPayload()
	}
	created, err := h.service.CreateSubscription(c.Context(), auth.GetTenant(c), &sub)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) UpdateSubscription(c *fiber.Ctx) error {
	var sub metadata.Subscription
	if err := c.BodyParser(&sub); err != nil {
		return apperr.InvalidPayload()
	}
	sub.ID = c.Params("id")
	if err := h.service.UpdateSubscription(c.Context(), auth.GetTenant(c), &sub); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sub})
}

func (h *Handler) DeleteSubscription(c *fiber.Ctx) error {
	if err := h.service.DeleteSubscription(c.Context(), auth.GetTenant(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "deleted": true}})
}

// RegisterRoutes registers the catalog endpoints. Everything mutating the
// catalog requires the admin role.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/catalog", authMW, auth.RequireAdmin())

	grp.Get("/entities", h.ListEntities)
	grp.Get("/entities/:slug", h.GetEntity)
	grp.Post("/entities", h.CreateEntity)
	grp.Patch("/entities/:slug", h.UpdateEntity)
	grp.Delete("/entities/:slug", h.DeleteEntity)

	grp.Post("/entities/:slug/fields", h.AddField)
	grp.Patch("/entities/:slug/fields/:name", h.UpdateField)
	grp.Delete("/entities/:slug/fields/:name", h.DeleteField)

	grp.Get("/navigation", h.GetNavigation)
	grp.Post("/nav/groups", h.CreateNavGroup)
	grp.Put("/nav/groups/:id", h.UpdateNavGroup)
	grp.Delete("/nav/groups/:id", h.DeleteNavGroup)
	grp.Post("/nav/pages", h.CreateNavPage)
	grp.Put("/nav/pages/:id", h.UpdateNavPage)
	grp.Delete("/nav/pages/:id", h.DeleteNavPage)

	grp.Get("/actions", h.ListActions)
	grp.Post("/actions", h.CreateAction)
	grp.Put("/actions/:id", h.UpdateAction)
	grp.Delete("/actions/:id", h.DeleteAction)

	grp.Get("/trails", h.ListTrails)
	grp.Post("/trails", h.CreateTrail)
	grp.Put("/trails/:id", h.UpdateTrail)
	grp.Delete("/trails/:id", h.DeleteTrail)

	grp.Get("/subscriptions", h.ListSubscriptions)
	grp.Post("/subscriptions", h.CreateSubscription)
	grp.Put("/subscriptions/:id", h.UpdateSubscription)
	grp.Delete("/subscriptions/:id", h.DeleteSubscription)
}
