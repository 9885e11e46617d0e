package admin

import (
	"fmt"
	"regexp"
	"strings"

	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// normalizeRole trims text fields, dedupes permissions and fills the
// default colour.
func normalizeRole(p *metadata.RolePayload) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if d == "" {
			p.Description = nil
		} else {
			p.Description = &d
		}
	}
	p.Permissions = permission.Normalize(p.Permissions)
	if p.Color == "" {
		p.Color = metadata.RoleColors[0]
	}
}

func validateRole(p *metadata.RolePayload, reg *metadata.Registry) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	if p.Name == "" {
		details = append(details, engine.ErrorDetail{Field: "name", Rule: "required", Message: "name is required"})
	}
	if p.Level < metadata.MinRoleLevel || p.Level > metadata.MaxRoleLevel {
		details = append(details, engine.ErrorDetail{
			Field: "level", Rule: "range",
			Message: fmt.Sprintf("level must be between %d and %d", metadata.MinRoleLevel, metadata.MaxRoleLevel),
		})
	}
	if !colorPattern.MatchString(p.Color) {
		details = append(details, engine.ErrorDetail{Field: "color", Rule: "format", Message: "color must be #rrggbb"})
	}
	for _, bad := range permission.Unknown(reg, p.Permissions) {
		details = append(details, engine.ErrorDetail{Field: "permissions", Rule: "unknown", Message: "unknown permission " + bad})
	}
	return details
}

func normalizePolicy(p *metadata.PolicyPayload) {
	p.Name = strings.TrimSpace(p.Name)
	p.Resource = strings.TrimSpace(p.Resource)
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if d == "" {
			p.Description = nil
		} else {
			p.Description = &d
		}
	}
	p.Action = metadata.JoinActions(permission.Normalize(metadata.SplitActions(p.Action)))
	if p.Conditions == nil {
		p.Conditions = metadata.Conditions{}
	}
}

func validatePolicy(p *metadata.PolicyPayload, reg *metadata.Registry, exprs engine.ExpressionEvaluator) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	add := func(field, rule, msg string) {
		details = append(details, engine.ErrorDetail{Field: field, Rule: rule, Message: msg})
	}

	if p.Name == "" {
		add("name", "required", "name is required")
	}
	if !p.Effect.Valid() {
		add("effect", "enum", "effect must be allow or deny")
	}

	wildcardResource := p.Resource == permission.WildcardAction
	switch {
	case p.Resource == "":
		add("resource", "required", "resource is required")
	case !wildcardResource && !reg.HasSection(p.Resource):
		add("resource", "unknown", "unknown resource "+p.Resource)
	}

	actions := metadata.SplitActions(p.Action)
	if len(actions) == 0 {
		add("action", "required", "at least one action is required")
	}
	if p.Resource != "" && !wildcardResource && reg.HasSection(p.Resource) {
		for _, a := range actions {
			if a != permission.WildcardAction && !reg.HasAction(p.Resource, a) {
				add("action", "unknown", fmt.Sprintf("unknown action %s for %s", a, p.Resource))
			}
		}
	}

	if p.Priority < metadata.MinPolicyPriority || p.Priority > metadata.MaxPolicyPriority {
		add("priority", "range", fmt.Sprintf("priority must be between %d and %d", metadata.MinPolicyPriority, metadata.MaxPolicyPriority))
	}

	if tr, ok := p.Conditions.TimeRange(); ok {
		if _, err := engine.ParseClock(tr.Start); err != nil {
			add("conditions.time_range.start", "format", "start must be HH:MM")
		}
		if _, err := engine.ParseClock(tr.End); err != nil {
			add("conditions.time_range.end", "format", "end must be HH:MM")
		}
	}
	if ips, ok := p.Conditions.IPWhitelist(); ok {
		for _, ip := range ips {
			if !engine.ValidIPEntry(ip) {
				add("conditions.ip_whitelist", "format", "invalid address "+ip)
			}
		}
	}
	if rl, ok := p.Conditions.RateLimit(); ok && rl <= 0 {
		add("conditions.rate_limit", "range", "rate_limit must be positive")
	}
	if ex, ok := p.Conditions.Expression(); ok {
		if err := exprs.Compile(string(ex)); err != nil {
			add("conditions.expression", "syntax", err.Error())
		}
	}
	return details
}
