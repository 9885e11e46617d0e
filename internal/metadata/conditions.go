package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

type ConditionKind string

const (
	ConditionTimeRange   ConditionKind = "time_range"
	ConditionIPWhitelist ConditionKind = "ip_whitelist"
	ConditionRateLimit   ConditionKind = "rate_limit"
	ConditionExpression  ConditionKind = "expression"
	ConditionRoleScope   ConditionKind = "role_id"
)

// Condition is one optional constraint attached to an access policy.
type Condition interface {
	Kind() ConditionKind
}

// TimeRange limits a policy to a daily HH:MM window.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (TimeRange) Kind() ConditionKind { return ConditionTimeRange }

// IPWhitelist limits a policy to the listed addresses or CIDR blocks.
type IPWhitelist []string

func (IPWhitelist) Kind() ConditionKind { return ConditionIPWhitelist }

// RateLimit caps how many times per window a caller can be granted by the policy.
type RateLimit int

func (RateLimit) Kind() ConditionKind { return ConditionRateLimit }

// Expression is an expr-lang predicate over the request environment.
type Expression string

func (Expression) Kind() ConditionKind { return ConditionExpression }

// RoleScope binds a policy to a single role. Without it the policy is global.
type RoleScope int64

func (RoleScope) Kind() ConditionKind { return ConditionRoleScope }

// Conditions holds at most one condition per kind. On the wire it is the
// free-form object {"time_range": {...}, "ip_whitelist": [...], ...}.
type Conditions map[ConditionKind]Condition

// Set stores c, replacing any condition of the same kind.
func (cs Conditions) Set(c Condition) {
	cs[c.Kind()] = c
}

// Kinds returns the present kinds in a stable order.
func (cs Conditions) Kinds() []ConditionKind {
	kinds := make([]ConditionKind, 0, len(cs))
	for k := range cs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (cs Conditions) TimeRange() (TimeRange, bool) {
	c, ok := cs[ConditionTimeRange].(TimeRange)
	return c, ok
}

func (cs Conditions) IPWhitelist() (IPWhitelist, bool) {
	c, ok := cs[ConditionIPWhitelist].(IPWhitelist)
	return c, ok
}

func (cs Conditions) RateLimit() (RateLimit, bool) {
	c, ok := cs[ConditionRateLimit].(RateLimit)
	return c, ok
}

func (cs Conditions) Expression() (Expression, bool) {
	c, ok := cs[ConditionExpression].(Expression)
	return c, ok
}

func (cs Conditions) RoleScope() (RoleScope, bool) {
	c, ok := cs[ConditionRoleScope].(RoleScope)
	return c, ok
}

func (cs Conditions) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(cs))
	for kind, c := range cs {
		switch v := c.(type) {
		case TimeRange:
			out[string(kind)] = v
		case IPWhitelist:
			out[string(kind)] = []string(v)
		case RateLimit:
			out[string(kind)] = int(v)
		case Expression:
			out[string(kind)] = string(v)
		case RoleScope:
			out[string(kind)] = int64(v)
		default:
			return nil, fmt.Errorf("unsupported condition %T", c)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any JSON object. Entries with an unknown key or a
// value of the wrong shape are dropped.
func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*cs = ParseConditions(raw)
	return nil
}

// ParseConditions converts a decoded JSON object into typed conditions.
func ParseConditions(raw map[string]any) Conditions {
	cs := Conditions{}
	if tr, ok := raw[string(ConditionTimeRange)].(map[string]any); ok {
		start, okStart := tr["start"].(string)
		end, okEnd := tr["end"].(string)
		if okStart && okEnd {
			cs.Set(TimeRange{Start: start, End: end})
		}
	}
	if list, ok := raw[string(ConditionIPWhitelist)].([]any); ok {
		ips := IPWhitelist{}
		for _, item := range list {
			if s, ok := item.(string); ok {
				ips = append(ips, s)
			}
		}
		cs.Set(ips)
	}
	if n, ok := raw[string(ConditionRateLimit)].(float64); ok && isWhole(n) {
		cs.Set(RateLimit(int(n)))
	}
	if e, ok := raw[string(ConditionExpression)].(string); ok && e != "" {
		cs.Set(Expression(e))
	}
	if id, ok := raw[string(ConditionRoleScope)].(float64); ok && isWhole(id) {
		cs.Set(RoleScope(int64(id)))
	}
	return cs
}

// isWhole reports whether n is an integer that fits in an int64.
func isWhole(n float64) bool {
	return n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64
}
