package record

import (
	"github.com/gofiber/fiber/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/auth"
)

// Handler serves the record CRUD endpoints under /api/object/:entity.
type Handler struct {
	records *Store
}

func NewHandler(records *Store) *Handler {
	return &Handler{records: records}
}

// reserved query parameters; everything else is treated as a field filter.
var reservedParams = map[string]bool{"limit": true, "offset": true, "q": true}

// List handles GET /api/object/:entity.
func (h *Handler) List(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	filters := map[string]string{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		if !reservedParams[string(key)] {
			filters[string(key)] = string(value)
		}
	})

	rows, err := h.records.List(c.Context(), user.Tenant, c.Params("entity"),
		filters, c.Query("q"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetByID handles GET /api/object/:entity/:id.
func (h *Handler) GetByID(c *fiber.Ctx) error {
	user := auth.GetUser(c)
	row, err := h.records.Get(c.Context(), user.Tenant, c.Params("entity"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/object/:entity.
func (h *Handler) Create(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}

	row, err := h.records.Create(c.Context(), user.Tenant, c.Params("entity"), body, user)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// Update handles PUT /api/object/:entity/:id.
func (h *Handler) Update(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return apperr.InvalidPayload()
	}

	row, err := h.records.Update(c.Context(), user.Tenant, c.Params("entity"), c.Params("id"), body, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Delete handles DELETE /api/object/:entity/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	user := auth.GetUser(c)
	if err := h.records.Delete(c.Context(), user.Tenant, c.Params("entity"), c.Params("id"), user); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Deleted"})
}

// RegisterRoutes registers record routes behind the auth middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/object", authMW)
	grp.Get("/:entity", h.List)
	grp.Post("/:entity", h.Create)
	grp.Get("/:entity/:id", h.GetByID)
	grp.Put("/:entity/:id", h.Update)
	grp.Delete("/:entity/:id", h.Delete)
}
