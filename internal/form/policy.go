package form

import (
	"context"
	"slices"
	"strings"

	"cabinet-admin/internal/metadata"
)

// PolicyAPI is the subset of the admin API the policy editor talks to.
type PolicyAPI interface {
	CreatePolicy(ctx context.Context, payload metadata.PolicyPayload) (*metadata.AccessPolicy, error)
	UpdatePolicy(ctx context.Context, id int64, payload metadata.PolicyPayload) (*metadata.AccessPolicy, error)
	DeletePolicy(ctx context.Context, id int64) error
}

const (
	DefaultRateLimit  = 100
	defaultRangeStart = "09:00"
	defaultRangeEnd   = "18:00"
)

// ConditionsEnabled tracks which condition editors are switched on. Values of
// disabled conditions are kept so toggling back restores them.
type ConditionsEnabled struct {
	TimeRange   bool
	IPWhitelist bool
	RateLimit   bool
	Expression  bool
}

type PolicyFormData struct {
	Name        string
	Description string
	Effect      metadata.Effect
	Resource    string
	Actions     []string
	RoleID      *int64
	Priority    int

	TimeRange   metadata.TimeRange
	IPWhitelist []string
	RateLimit   int
	Expression  string
	Enabled     ConditionsEnabled
}

func initialPolicyForm() PolicyFormData {
	return PolicyFormData{
		Effect:      metadata.EffectAllow,
		Actions:     []string{},
		TimeRange:   metadata.TimeRange{Start: defaultRangeStart, End: defaultRangeEnd},
		IPWhitelist: []string{},
		RateLimit:   DefaultRateLimit,
	}
}

// PolicyForm owns one access policy draft. It is not safe for concurrent use.
type PolicyForm struct {
	api     PolicyAPI
	editing *metadata.AccessPolicy
	data    PolicyFormData
	errKey  ErrorKey
}

func NewPolicyForm(api PolicyAPI) *PolicyForm {
	return &PolicyForm{api: api, data: initialPolicyForm()}
}

// EditPolicyForm starts a draft from a stored policy. Exactly the conditions
// present on the policy are enabled; the others keep their defaults.
func EditPolicyForm(api PolicyAPI, p *metadata.AccessPolicy) *PolicyForm {
	data := initialPolicyForm()
	data.Name = p.Name
	if p.Description != nil {
		data.Description = *p.Description
	}
	data.Effect = p.Effect
	data.Resource = p.Resource
	data.Actions = p.Actions()
	if data.Actions == nil {
		data.Actions = []string{}
	}
	data.Priority = p.Priority

	if role, ok := p.Conditions.RoleScope(); ok {
		id := int64(role)
		data.RoleID = &id
	}
	if tr, ok := p.Conditions.TimeRange(); ok {
		data.TimeRange = tr
		data.Enabled.TimeRange = true
	}
	if ips, ok := p.Conditions.IPWhitelist(); ok {
		data.IPWhitelist = append([]string{}, ips...)
		data.Enabled.IPWhitelist = len(ips) > 0
	}
	if n, ok := p.Conditions.RateLimit(); ok {
		data.RateLimit = int(n)
		data.Enabled.RateLimit = true
	}
	if e, ok := p.Conditions.Expression(); ok {
		data.Expression = string(e)
		data.Enabled.Expression = true
	}
	return &PolicyForm{api: api, editing: p, data: data}
}

// Data returns a copy of the draft.
func (f *PolicyForm) Data() PolicyFormData {
	d := f.data
	d.Actions = append([]string{}, f.data.Actions...)
	d.IPWhitelist = append([]string{}, f.data.IPWhitelist...)
	if f.data.RoleID != nil {
		id := *f.data.RoleID
		d.RoleID = &id
	}
	return d
}

func (f *PolicyForm) Editing() bool      { return f.editing != nil }
func (f *PolicyForm) ErrorKey() ErrorKey { return f.errKey }

func (f *PolicyForm) SetName(name string)               { f.data.Name = name }
func (f *PolicyForm) SetDescription(description string) { f.data.Description = description }

func (f *PolicyForm) SetEffect(effect metadata.Effect) bool {
	if !effect.Valid() {
		return false
	}
	f.data.Effect = effect
	return true
}

// SetResource switches the resource section and clears the action selection.
func (f *PolicyForm) SetResource(resource string) {
	f.data.Resource = resource
	f.data.Actions = []string{}
}

// ResourceActions lists the actions offered for the chosen resource.
func (f *PolicyForm) ResourceActions(reg *metadata.Registry) []string {
	if f.data.Resource == "" {
		return nil
	}
	s, ok := reg.Section(f.data.Resource)
	if !ok {
		return nil
	}
	return s.Actions
}

func (f *PolicyForm) ToggleAction(action string) {
	if i := slices.Index(f.data.Actions, action); i >= 0 {
		f.data.Actions = slices.Delete(f.data.Actions, i, i+1)
		return
	}
	f.data.Actions = append(f.data.Actions, action)
}

// SetRole scopes the policy to a role; nil makes it global.
func (f *PolicyForm) SetRole(id *int64) {
	if id == nil {
		f.data.RoleID = nil
		return
	}
	v := *id
	f.data.RoleID = &v
}

func (f *PolicyForm) SetPriority(priority int) {
	f.data.Priority = min(metadata.MaxPolicyPriority, max(metadata.MinPolicyPriority, priority))
}

// EnableCondition switches a condition editor on or off. Role scope is not a
// toggleable condition and is ignored here.
func (f *PolicyForm) EnableCondition(kind metadata.ConditionKind, on bool) {
	switch kind {
	case metadata.ConditionTimeRange:
		f.data.Enabled.TimeRange = on
	case metadata.ConditionIPWhitelist:
		f.data.Enabled.IPWhitelist = on
	case metadata.ConditionRateLimit:
		f.data.Enabled.RateLimit = on
	case metadata.ConditionExpression:
		f.data.Enabled.Expression = on
	}
}

func (f *PolicyForm) SetTimeRange(start, end string) {
	f.data.TimeRange = metadata.TimeRange{Start: start, End: end}
}

func (f *PolicyForm) SetRateLimit(n int) { f.data.RateLimit = max(0, n) }

func (f *PolicyForm) SetExpression(expr string) { f.data.Expression = strings.TrimSpace(expr) }

// AddIP commits a tag typed into the IP input. Trailing commas are stripped;
// blank and duplicate values are ignored.
func (f *PolicyForm) AddIP(raw string) bool {
	ip := strings.TrimRight(strings.TrimSpace(raw), ",")
	ip = strings.TrimSpace(ip)
	if ip == "" || slices.Contains(f.data.IPWhitelist, ip) {
		return false
	}
	f.data.IPWhitelist = append(f.data.IPWhitelist, ip)
	return true
}

func (f *PolicyForm) RemoveIP(ip string) {
	f.data.IPWhitelist = slices.DeleteFunc(f.data.IPWhitelist, func(v string) bool { return v == ip })
}

// PopIP removes the last tag, as backspace on an empty input does.
func (f *PolicyForm) PopIP() {
	if n := len(f.data.IPWhitelist); n > 0 {
		f.data.IPWhitelist = f.data.IPWhitelist[:n-1]
	}
}

// BuildConditionsPayload serializes only the enabled conditions. An enabled
// but empty IP whitelist is omitted.
func (f *PolicyForm) BuildConditionsPayload() metadata.Conditions {
	cs := metadata.Conditions{}
	d := f.data
	if d.Enabled.TimeRange {
		cs.Set(d.TimeRange)
	}
	if d.Enabled.IPWhitelist && len(d.IPWhitelist) > 0 {
		cs.Set(metadata.IPWhitelist(append([]string{}, d.IPWhitelist...)))
	}
	if d.Enabled.RateLimit {
		cs.Set(metadata.RateLimit(d.RateLimit))
	}
	if d.Enabled.Expression && d.Expression != "" {
		cs.Set(metadata.Expression(d.Expression))
	}
	if d.RoleID != nil {
		cs.Set(metadata.RoleScope(*d.RoleID))
	}
	return cs
}

func (f *PolicyForm) Payload() metadata.PolicyPayload {
	p := metadata.PolicyPayload{
		Name:       strings.TrimSpace(f.data.Name),
		Effect:     f.data.Effect,
		Resource:   f.data.Resource,
		Action:     metadata.JoinActions(f.data.Actions),
		Conditions: f.BuildConditionsPayload(),
		Priority:   f.data.Priority,
	}
	if d := strings.TrimSpace(f.data.Description); d != "" {
		p.Description = &d
	}
	return p
}

// Submit validates name, resource and actions in that order, then creates or
// updates the policy.
func (f *PolicyForm) Submit(ctx context.Context) (*metadata.AccessPolicy, error) {
	f.errKey = ""
	switch {
	case strings.TrimSpace(f.data.Name) == "":
		return nil, f.fail(ErrNameRequired, nil)
	case f.data.Resource == "":
		return nil, f.fail(ErrResourceRequired, nil)
	case len(f.data.Actions) == 0:
		return nil, f.fail(ErrActionsRequired, nil)
	}

	payload := f.Payload()
	if f.editing != nil {
		p, err := f.api.UpdatePolicy(ctx, f.editing.ID, payload)
		if err != nil {
			return nil, f.fail(ErrUpdateFailed, err)
		}
		return p, nil
	}
	p, err := f.api.CreatePolicy(ctx, payload)
	if err != nil {
		return nil, f.fail(ErrCreateFailed, err)
	}
	return p, nil
}

func (f *PolicyForm) Delete(ctx context.Context) error {
	f.errKey = ""
	if f.editing == nil {
		return f.fail(ErrNotEditing, nil)
	}
	if err := f.api.DeletePolicy(ctx, f.editing.ID); err != nil {
		return f.fail(ErrDeleteFailed, err)
	}
	return nil
}

func (f *PolicyForm) fail(key ErrorKey, err error) error {
	f.errKey = key
	return &Error{Key: key, Err: err}
}
