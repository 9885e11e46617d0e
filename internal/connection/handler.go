package connection

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"cabinet-admin/internal/auth"
	"cabinet-admin/internal/config"
	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/instrument"
	"cabinet-admin/internal/store"
)

// Source holds the current app config and reloads it from disk on demand.
type Source struct {
	mu   sync.RWMutex
	path string
	cfg  *AppConfig
}

// NewSource loads path when it is set. An empty path yields an empty
// config that reports no subscription.
func NewSource(path string) (*Source, error) {
	s := &Source{path: path, cfg: &AppConfig{}}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticSource serves a fixed config.
func NewStaticSource(cfg *AppConfig) *Source {
	return &Source{cfg: cfg}
}

func (s *Source) Current() *AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the config file. The previous config stays in place on
// error.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := LoadAppConfig(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	log.WithField("path", s.path).Infof("Loaded app config: %d platforms", len(cfg.Platforms))
	return nil
}

type Handler struct {
	source *Source
	cfg    config.ConnectionConfig
	audit  instrument.Recorder
}

func NewHandler(source *Source, cfg config.ConnectionConfig, audit instrument.Recorder) *Handler {
	if audit == nil {
		audit = instrument.NoopRecorder{}
	}
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = DefaultRedirectPath
	}
	return &Handler{source: source, cfg: cfg, audit: audit}
}

// RegisterConnectionRoutes mounts the caller-facing view and the admin
// endpoints for the app config.
func RegisterConnectionRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	app.Get("/cabinet/connection", authMW, h.View)

	apps := app.Group("/cabinet/admin/apps", authMW)
	apps.Get("/config", auth.RequirePermission("apps", "read"), h.Config)
	apps.Post("/reload", auth.RequirePermission("apps", "edit"), h.Reload)
}

// View handles GET /cabinet/connection?platform=&app=&lang=.
func (h *Handler) View(c *fiber.Ctx) error {
	user := auth.GetUser(c)
	username := ""
	if user != nil {
		username = user.ID
	}

	lang := c.Query("lang")
	if lang == "" {
		lang = primaryLanguage(c.Get(fiber.HeaderAcceptLanguage))
	}

	req := Request{
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		Platform:     c.Query("platform"),
		App:          c.Query("app"),
		Lang:         lang,
		Username:     username,
		Origin:       c.BaseURL(),
		RedirectPath: h.cfg.RedirectPath,
	}
	if h.cfg.SubscriptionURL != "" {
		req.SubscriptionURL = ResolveTemplate(h.cfg.SubscriptionURL, TemplateVars{Username: username})
	}
	return c.JSON(Resolve(h.source.Current(), req))
}

// Config handles GET /cabinet/admin/apps/config.
func (h *Handler) Config(c *fiber.Ctx) error {
	return c.JSON(h.source.Current())
}

// Reload handles POST /cabinet/admin/apps/reload.
func (h *Handler) Reload(c *fiber.Ctx) error {
	if err := h.source.Reload(); err != nil {
		log.Errorf("reload app config: %v", err)
		return engine.NewAppError("RELOAD_FAILED", 422, err.Error())
	}
	actor := ""
	if user := auth.GetUser(c); user != nil {
		actor = user.ID
	}
	h.audit.Record(store.AuditEvent{Actor: actor, Action: "apps.reload", Entity: "apps"})
	return c.JSON(fiber.Map{"platforms": len(h.source.Current().Platforms)})
}

// primaryLanguage returns the primary subtag of the first Accept-Language
// entry, e.g. "ru" for "ru-RU,ru;q=0.9".
func primaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	first, _, _ = strings.Cut(strings.TrimSpace(first), "-")
	if first == "*" {
		return ""
	}
	return strings.ToLower(first)
}
