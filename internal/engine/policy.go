package engine

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
	"cabinet-admin/internal/ratelimit"
)

// PolicySource lists the active access policies.
type PolicySource interface {
	ListPolicies(ctx context.Context) ([]metadata.AccessPolicy, error)
}

// AccessRequest describes one access attempt.
type AccessRequest struct {
	User    *metadata.UserContext `json:"-"`
	Section string                `json:"section"`
	Action  string                `json:"action"`
	IP      string                `json:"ip,omitempty"`
	At      time.Time             `json:"at,omitempty"`
	Attrs   map[string]any        `json:"attrs,omitempty"`
}

// Decision reasons.
const (
	ReasonPolicy      = "policy"
	ReasonRateLimited = "rate_limited"
	ReasonRoleGrant   = "role_grant"
	ReasonNoGrant     = "no_grant"
)

type Decision struct {
	Allowed    bool            `json:"allowed"`
	Effect     metadata.Effect `json:"effect"`
	Reason     string          `json:"reason"`
	PolicyID   *int64          `json:"policy_id,omitempty"`
	PolicyName string          `json:"policy_name,omitempty"`
}

type PolicyEvaluatorConfig struct {
	Location   *time.Location
	RateWindow time.Duration
}

// PolicyEvaluator decides access from access policies, falling back to the
// caller's role grants when no policy applies.
type PolicyEvaluator struct {
	policies PolicySource
	counter  ratelimit.Counter
	exprs    ExpressionEvaluator
	loc      *time.Location
	window   time.Duration
	now      func() time.Time
}

func NewPolicyEvaluator(src PolicySource, counter ratelimit.Counter, exprs ExpressionEvaluator, cfg PolicyEvaluatorConfig) *PolicyEvaluator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if exprs == nil {
		exprs = NewExprLangEvaluator()
	}
	return &PolicyEvaluator{
		policies: src,
		counter:  counter,
		exprs:    exprs,
		loc:      cfg.Location,
		window:   cfg.RateWindow,
		now:      time.Now,
	}
}

// Evaluate returns the access decision for req.
func (e *PolicyEvaluator) Evaluate(ctx context.Context, req AccessRequest) (Decision, error) {
	if req.User == nil {
		return Decision{}, UnauthorizedError("Authentication required")
	}
	if req.At.IsZero() {
		req.At = e.now()
	}
	if req.IP == "" {
		req.IP = req.User.IP
	}

	list, err := e.policies.ListPolicies(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("list policies: %w", err)
	}
	OrderPolicies(list)

	for i := range list {
		p := &list[i]
		if !e.applies(p, req) {
			continue
		}
		id := p.ID
		d := Decision{Effect: p.Effect, Reason: ReasonPolicy, PolicyID: &id, PolicyName: p.Name}
		if p.Effect == metadata.EffectDeny {
			return d, nil
		}
		if limit, ok := p.Conditions.RateLimit(); ok && limit > 0 && e.counter != nil {
			key := "policy:" + strconv.FormatInt(p.ID, 10) + ":" + req.User.ID
			n, err := e.counter.Incr(ctx, key, e.window)
			if err != nil {
				return Decision{}, fmt.Errorf("rate limit: %w", err)
			}
			if n > int64(limit) {
				d.Effect = metadata.EffectDeny
				d.Reason = ReasonRateLimited
				return d, nil
			}
		}
		d.Allowed = true
		return d, nil
	}

	if permission.Grants(req.User.Permissions, permission.New(req.Section, req.Action)) {
		return Decision{Allowed: true, Effect: metadata.EffectAllow, Reason: ReasonRoleGrant}, nil
	}
	return Decision{Effect: metadata.EffectDeny, Reason: ReasonNoGrant}, nil
}

// OrderPolicies sorts by priority descending; deny sorts before allow at
// equal priority, then by id.
func OrderPolicies(list []metadata.AccessPolicy) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Effect != b.Effect {
			return a.Effect == metadata.EffectDeny
		}
		return a.ID < b.ID
	})
}

func (e *PolicyEvaluator) applies(p *metadata.AccessPolicy, req AccessRequest) bool {
	if !p.IsActive {
		return false
	}
	if p.Resource != permission.WildcardAction && p.Resource != req.Section {
		return false
	}
	if !containsAction(p.Actions(), req.Action) {
		return false
	}
	if scope, ok := p.Conditions.RoleScope(); ok && !req.User.HasRole(int64(scope)) {
		return false
	}
	if tr, ok := p.Conditions.TimeRange(); ok && !e.inWindow(tr, req.At) {
		return false
	}
	if ips, ok := p.Conditions.IPWhitelist(); ok && !IPAllowed(ips, req.IP) {
		return false
	}
	if ex, ok := p.Conditions.Expression(); ok && strings.TrimSpace(string(ex)) != "" {
		match, err := e.exprs.EvaluateBool(string(ex), e.env(req))
		if err != nil {
			log.WithField("policy", p.ID).Warnf("policy expression failed: %v", err)
			return false
		}
		if !match {
			return false
		}
	}
	return true
}

func (e *PolicyEvaluator) env(req AccessRequest) map[string]any {
	at := req.At.In(e.loc)
	attrs := req.Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"user": map[string]any{
			"id":          req.User.ID,
			"level":       req.User.Level,
			"role_ids":    req.User.RoleIDs,
			"permissions": req.User.Permissions,
		},
		"section": req.Section,
		"action":  req.Action,
		"ip":      req.IP,
		"hour":    at.Hour(),
		"weekday": int(at.Weekday()),
		"attrs":   attrs,
	}
}

func (e *PolicyEvaluator) inWindow(tr metadata.TimeRange, at time.Time) bool {
	start, err1 := ParseClock(tr.Start)
	end, err2 := ParseClock(tr.End)
	if err1 != nil || err2 != nil {
		return false
	}
	local := at.In(e.loc)
	return InWindow(start, end, local.Hour()*60+local.Minute())
}

// InWindow reports whether minute-of-day m falls in [start, end). A start
// after end wraps past midnight; start equal to end covers the whole day.
func InWindow(start, end, m int) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return m >= start && m < end
	default:
		return m >= start || m < end
	}
}

// ParseClock parses HH:MM into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IPAllowed reports whether ip matches one of the addresses or CIDR blocks.
// An empty list allows everything.
func IPAllowed(list []string, ip string) bool {
	if len(list) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range list {
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil && a.Unmap() == addr {
			return true
		}
	}
	return false
}

// ValidIPEntry reports whether s is an address or CIDR block.
func ValidIPEntry(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func containsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action || a == permission.WildcardAction {
			return true
		}
	}
	return false
}
