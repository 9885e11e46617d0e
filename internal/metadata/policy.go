package metadata

import (
	"strings"
	"time"
)

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Valid reports whether e is allow or deny.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

const (
	MinPolicyPriority = 0
	MaxPolicyPriority = 999
)

// AccessPolicy is an allow/deny rule over a resource section and a
// comma-joined list of its actions.
type AccessPolicy struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Effect      Effect     `json:"effect"`
	Resource    string     `json:"resource"`
	Action      string     `json:"action"`
	Conditions  Conditions `json:"conditions"`
	Priority    int        `json:"priority"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Actions splits the stored action string into its trimmed, non-empty parts.
func (p *AccessPolicy) Actions() []string {
	return SplitActions(p.Action)
}

// PolicyPayload is the body of create and update requests.
type PolicyPayload struct {
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Effect      Effect     `json:"effect"`
	Resource    string     `json:"resource"`
	Action      string     `json:"action"`
	Conditions  Conditions `json:"conditions"`
	Priority    int        `json:"priority"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// SplitActions normalizes a comma-joined action string.
func SplitActions(action string) []string {
	if action == "" {
		return nil
	}
	parts := strings.Split(action, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinActions is the inverse of SplitActions.
func JoinActions(actions []string) string {
	return strings.Join(actions, ",")
}
