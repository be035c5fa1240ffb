package action

import (
	"github.com/gofiber/fiber/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/auth"
	"strata-backend/internal/formula"
	"strata-backend/internal/metadata"
)

// Handler exposes direct action execution: configured actions by id and
// virtual-hook actions by key.
type Handler struct {
	executor *Executor
	catalog  *metadata.Catalog
}

func NewHandler(executor *Executor, catalog *metadata.Catalog) *Handler {
	return &Handler{executor: executor, catalog: catalog}
}

// Execute handles POST /api/actions/:id/execute. The request body becomes
// the evaluation payload for config resolution.
func (h *Handler) Execute(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	reg, err := h.catalog.Tenant(c.Context(), user.Tenant)
	if err != nil {
		return err
	}
	act := reg.GetAction(c.Params("id"))
	if act == nil {
		return apperr.NotFound("action", c.Params("id"))
	}

	return h.run(c, user.Tenant, user, act)
}

// ExecuteHook handles POST /api/actions/virtual/:tenant/:hook. Hooks carry
// no credentials; the tenant rides in the path and the action runs with no
// user context.
func (h *Handler) ExecuteHook(c *fiber.Ctx) error {
	tenant := c.Params("tenant")

	reg, err := h.catalog.Tenant(c.Context(), tenant)
	if err != nil {
		return err
	}
	act := reg.GetActionByHook(c.Params("hook"))
	if act == nil {
		return apperr.NotFound("virtual hook", c.Params("hook"))
	}

	return h.run(c, tenant, nil, act)
}

func (h *Handler) run(c *fiber.Ctx, tenant string, user *metadata.UserContext, act *metadata.Action) error {
	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return apperr.InvalidPayload()
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	fctx := &formula.Context{Tenant: tenant, Payload: payload, User: user}
	config := ResolveConfig(c.Context(), h.executor.engine, fctx, act.Config)

	result, err := h.executor.Execute(c.Context(), tenant, act.ActionType, config, payload, user)
	if err != nil {
		// The action contract reports failures in-band.
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"data": result})
	}
	return c.JSON(fiber.Map{"data": result})
}

// RegisterRoutes registers the action endpoints. Configured actions sit
// behind the auth middleware; virtual hooks are open by contract.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/actions", authMW)
	grp.Post("/:id/execute", h.Execute)

	app.Post("/api/actions/virtual/:tenant/:hook", h.ExecuteHook)
}
