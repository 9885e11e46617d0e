package instrument

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"cabinet-admin/internal/store"
)

type auditLister interface {
	ListAuditEvents(ctx context.Context, f store.AuditFilter) ([]store.AuditEvent, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	store auditLister
}

func NewAuditHandler(s auditLister) *AuditHandler {
	return &AuditHandler{store: s}
}

// List handles GET /cabinet/admin/audit
func (h *AuditHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("per_page", "50"))
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	events, err := h.store.ListAuditEvents(c.UserContext(), store.AuditFilter{
		Actor:  c.Query("actor"),
		Action: c.Query("action"),
		Entity: c.Query("entity"),
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": events})
}
