package admin

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"cabinet-admin/internal/auth"
	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/form"
	"cabinet-admin/internal/instrument"
	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/metrics"
	"cabinet-admin/internal/permission"
	"cabinet-admin/internal/store"
)

type Handler struct {
	roles     store.RoleStore
	policies  store.PolicyStore
	registry  *metadata.Registry
	resolver  *engine.Resolver
	evaluator *engine.PolicyEvaluator
	exprs     engine.ExpressionEvaluator
	audit     instrument.Recorder
	metrics   *metrics.Metrics
}

// Deps groups the collaborators of Handler. Audit and Metrics may be nil.
type Deps struct {
	Roles     store.RoleStore
	Policies  store.PolicyStore
	Registry  *metadata.Registry
	Resolver  *engine.Resolver
	Evaluator *engine.PolicyEvaluator
	Exprs     engine.ExpressionEvaluator
	Audit     instrument.Recorder
	Metrics   *metrics.Metrics
}

func NewHandler(d Deps) *Handler {
	if d.Audit == nil {
		d.Audit = instrument.NoopRecorder{}
	}
	if d.Exprs == nil {
		d.Exprs = engine.NewExprLangEvaluator()
	}
	return &Handler{
		roles:     d.Roles,
		policies:  d.Policies,
		registry:  d.Registry,
		resolver:  d.Resolver,
		evaluator: d.Evaluator,
		exprs:     d.Exprs,
		audit:     d.Audit,
		metrics:   d.Metrics,
	}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	admin := app.Group("/cabinet/admin", authMW)
	perm := auth.RequirePermission

	admin.Get("/permission-registry", perm("roles", "read"), h.PermissionRegistry)

	admin.Get("/roles", perm("roles", "read"), h.ListRoles)
	admin.Get("/roles/presets", perm("roles", "read"), h.ListPresets)
	admin.Post("/roles/preview", perm("roles", "read"), h.PreviewMatrix)
	admin.Get("/roles/:id", perm("roles", "read"), h.GetRole)
	admin.Post("/roles", perm("roles", "create"), h.CreateRole)
	admin.Put("/roles/:id", perm("roles", "edit"), h.UpdateRole)
	admin.Delete("/roles/:id", perm("roles", "delete"), h.DeleteRole)

	admin.Get("/policies", perm("policies", "read"), h.ListPolicies)
	admin.Post("/policies/evaluate", perm("policies", "read"), h.Evaluate)
	admin.Get("/policies/:id", perm("policies", "read"), h.GetPolicy)
	admin.Post("/policies", perm("policies", "create"), h.CreatePolicy)
	admin.Put("/policies/:id", perm("policies", "edit"), h.UpdatePolicy)
	admin.Delete("/policies/:id", perm("policies", "delete"), h.DeletePolicy)
}

// --- Registry Endpoints ---

func (h *Handler) PermissionRegistry(c *fiber.Ctx) error {
	return c.JSON(h.registry.Sections())
}

func (h *Handler) ListPresets(c *fiber.Ctx) error {
	out := make(map[string][]string, len(form.Presets))
	for _, key := range form.PresetKeys() {
		out[key], _ = form.Preset(key)
	}
	return c.JSON(out)
}

// PreviewMatrix handles POST /cabinet/admin/roles/preview. It renders the
// selection state of every registry section for a permission list.
func (h *Handler) PreviewMatrix(c *fiber.Ctx) error {
	var body struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.BadRequestError("Invalid JSON body")
	}
	selected := permission.Normalize(body.Permissions)
	unknown := permission.Unknown(h.registry, selected)
	if unknown == nil {
		unknown = []string{}
	}
	return c.JSON(fiber.Map{
		"rows":    permission.NewMatrix(h.registry.Sections(), selected).Rows(),
		"unknown": unknown,
	})
}

// --- Role Endpoints ---

func (h *Handler) ListRoles(c *fiber.Ctx) error {
	roles, err := h.roles.ListRoles(c.UserContext())
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	return c.JSON(roles)
}

func (h *Handler) GetRole(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	role, err := h.roles.GetRole(c.UserContext(), id)
	if err != nil {
		return storeError(err, "Role", id)
	}
	return c.JSON(role)
}

func (h *Handler) CreateRole(c *fiber.Ctx) error {
	user := auth.GetUser(c)
	var p metadata.RolePayload
	if err := c.BodyParser(&p); err != nil {
		return engine.BadRequestError("Invalid JSON body")
	}
	normalizeRole(&p)
	if details := validateRole(&p, h.registry); len(details) > 0 {
		return engine.ValidationError(details)
	}
	if err := h.checkGrant(user, p); err != nil {
		return err
	}

	role, err := h.roles.CreateRole(c.UserContext(), p)
	if err != nil {
		return storeError(err, "Role", p.Name)
	}
	h.resolver.Invalidate(role.ID)
	h.record(user, "create", "role", role.ID, fiber.Map{"name": role.Name, "level": role.Level})
	return c.Status(fiber.StatusCreated).JSON(role)
}

func (h *Handler) UpdateRole(c *fiber.Ctx) error {
	user := auth.GetUser(c)
	id, err := paramID(c)
	if err != nil {
		return err
	}
	existing, err := h.roles.GetRole(c.UserContext(), id)
	if err != nil {
		return storeError(err, "Role", id)
	}
	if existing.IsSystem {
		return engine.ConflictError("System roles cannot be modified")
	}
	if err := engine.CheckRoleLevel(user, existing.Level); err != nil {
		return err
	}

	var p metadata.RolePayload
	if err := c.BodyParser(&p); err != nil {
		return engine.BadRequestError("Invalid JSON body")
	}
	normalizeRole(&p)
	if details := validateRole(&p, h.registry); len(details) > 0 {
		return engine.ValidationError(details)
	}
	if err := h.checkGrant(user, p); err != nil {
		return err
	}

	role, err := h.roles.UpdateRole(c.UserContext(), id, p)
	if err != nil {
		return storeError(err, "Role", id)
	}
	h.resolver.Invalidate(id)
	h.record(user, "update", "role", id, fiber.Map{"name": role.Name, "level": role.Level, "permissions": role.Permissions})
	return c.JSON(role)
}

func (h *Handler) DeleteRole(c *fiber.Ctx) error {
	user := auth.GetUser(c)
	id, err := paramID(c)
	if err != nil {
		return err
	}
	existing, err := h.roles.GetRole(c.UserContext(), id)
	if err != nil {
		return storeError(err, "Role", id)
	}
	if existing.IsSystem {
		return engine.ConflictError("System roles cannot be deleted")
	}
	if err := engine.CheckRoleLevel(user, existing.Level); err != nil {
		return err
	}

	if err := h.roles.DeleteRole(c.UserContext(), id); err != nil {
		return storeError(err, "Role", id)
	}
	h.resolver.Invalidate(id)
	h.record(user, "delete", "role", id, fiber.Map{"name": existing.Name})
	return c.JSON(fiber.Map{"id": id, "deleted": true})
}

// checkGrant rejects a role the caller could not hold themselves: its level
// must be below theirs and each permission must already be granted to them.
func (h *Handler) checkGrant(user *metadata.UserContext, p metadata.RolePayload) error {
	if err := engine.CheckRoleLevel(user, p.Level); err != nil {
		return err
	}
	for _, perm := range p.Permissions {
		if !permission.Grants(user.Permissions, permission.Permission(perm)) {
			return engine.ForbiddenError("Cannot grant " + perm)
		}
	}
	return nil
}

// --- Policy Endpoints ---

func (h *Handler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.policies.ListPolicies(c.UserContext())
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}
	engine.OrderPolicies(policies)
	return c.JSON(policies)
}

func (h *Handler) GetPolicy(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	p, err := h.policies.GetPolicy(c.UserContext(), id)
	if err != nil {
		return storeError(err, "Policy", id)
	}
	return c.JSON(p)
}

func (h *Handler) CreatePolicy(c *fiber.Ctx) error {
	p, err := h.parsePolicy(c)
	if err != nil {
		return err
	}
	created, err := h.policies.CreatePolicy(c.UserContext(), p)
	if err != nil {
		return storeError(err, "Policy", p.Name)
	}
	h.record(auth.GetUser(c), "create", "policy", created.ID, fiber.Map{"name": created.Name, "effect": created.Effect})
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *Handler) UpdatePolicy(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if _, err := h.policies.GetPolicy(c.UserContext(), id); err != nil {
		return storeError(err, "Policy", id)
	}
	p, err := h.parsePolicy(c)
	if err != nil {
		return err
	}
	updated, err := h.policies.UpdatePolicy(c.UserContext(), id, p)
	if err != nil {
		return storeError(err, "Policy", id)
	}
	h.record(auth.GetUser(c), "update", "policy", id, fiber.Map{"name": updated.Name, "effect": updated.Effect})
	return c.JSON(updated)
}

func (h *Handler) DeletePolicy(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.policies.DeletePolicy(c.UserContext(), id); err != nil {
		return storeError(err, "Policy", id)
	}
	h.record(auth.GetUser(c), "delete", "policy", id, nil)
	return c.JSON(fiber.Map{"id": id, "deleted": true})
}

func (h *Handler) parsePolicy(c *fiber.Ctx) (metadata.PolicyPayload, error) {
	var p metadata.PolicyPayload
	if err := c.BodyParser(&p); err != nil {
		return p, engine.BadRequestError("Invalid JSON body")
	}
	normalizePolicy(&p)
	details := validatePolicy(&p, h.registry, h.exprs)
	if scope, ok := p.Conditions.RoleScope(); ok {
		if _, err := h.roles.GetRole(c.UserContext(), int64(scope)); errors.Is(err, store.ErrNotFound) {
			details = append(details, engine.ErrorDetail{Field: "conditions.role_id", Rule: "exists", Message: "role not found"})
		} else if err != nil {
			return p, err
		}
	}
	if len(details) > 0 {
		return p, engine.ValidationError(details)
	}
	return p, nil
}

// Evaluate handles POST /cabinet/admin/policies/evaluate. It is a dry run:
// role_ids, when given, replace the caller's own roles.
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	var body struct {
		Section string         `json:"section"`
		Action  string         `json:"action"`
		IP      string         `json:"ip"`
		At      *time.Time     `json:"at"`
		RoleIDs []int64        `json:"role_ids"`
		Attrs   map[string]any `json:"attrs"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.BadRequestError("Invalid JSON body")
	}
	if body.Section == "" || body.Action == "" {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "section", Rule: "required", Message: "section and action are required"}})
	}

	caller := auth.GetUser(c)
	subject := *caller
	if body.RoleIDs != nil {
		eff, err := h.resolver.Resolve(c.UserContext(), body.RoleIDs)
		if err != nil {
			return err
		}
		subject.RoleIDs = body.RoleIDs
		subject.Permissions = eff.Permissions
		subject.Level = eff.Level
	}

	req := engine.AccessRequest{
		User:    &subject,
		Section: body.Section,
		Action:  body.Action,
		IP:      body.IP,
		Attrs:   body.Attrs,
	}
	if body.At != nil {
		req.At = *body.At
	}
	decision, err := h.evaluator.Evaluate(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.metrics.ObserveDecision(string(decision.Effect), decision.Reason)
	return c.JSON(decision)
}

// --- helpers ---

func (h *Handler) record(user *metadata.UserContext, action, entity string, id int64, details fiber.Map) {
	actor := ""
	if user != nil {
		actor = user.ID
	}
	h.audit.Record(store.AuditEvent{
		Actor:    actor,
		Action:   entity + "." + action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Details:  details,
	})
	h.metrics.ObserveMutation(entity, action)
	log.WithFields(log.Fields{"actor": actor, "entity": entity, "id": id}).Infof("%s %s", entity, action)
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, engine.BadRequestError("Invalid id: " + c.Params("id"))
	}
	return id, nil
}

func storeError(err error, entity string, id any) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return engine.NotFoundError(entity, id)
	case errors.Is(err, store.ErrConflict):
		return engine.ConflictError(fmt.Sprintf("%s %v already exists", entity, id))
	default:
		return err
	}
}
