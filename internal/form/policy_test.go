package form

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabinet-admin/internal/metadata"
)

func TestPolicyForm_ValidationOrder(t *testing.T) {
	api := newFakeAPI()
	f := NewPolicyForm(api)

	_, err := f.Submit(context.Background())
	assert.Equal(t, ErrNameRequired, KeyOf(err))

	f.SetName("Night shift")
	_, err = f.Submit(context.Background())
	assert.Equal(t, ErrResourceRequired, KeyOf(err))

	f.SetResource("tickets")
	_, err = f.Submit(context.Background())
	assert.Equal(t, ErrActionsRequired, KeyOf(err))
	assert.Zero(t, api.calls())
}

func TestPolicyForm_SetResourceClearsActions(t *testing.T) {
	f := NewPolicyForm(newFakeAPI())
	f.SetResource("tickets")
	f.ToggleAction("read")
	f.ToggleAction("reply")
	f.ToggleAction("read")
	assert.Equal(t, []string{"reply"}, f.Data().Actions)

	f.SetResource("users")
	assert.Empty(t, f.Data().Actions)
}

func TestPolicyForm_ResourceActions(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.Load([]metadata.PermissionSection{{Section: "tickets", Actions: []string{"read", "close"}}})
	f := NewPolicyForm(newFakeAPI())
	assert.Nil(t, f.ResourceActions(reg))
	f.SetResource("tickets")
	assert.Equal(t, []string{"read", "close"}, f.ResourceActions(reg))
	f.SetResource("ghost")
	assert.Nil(t, f.ResourceActions(reg))
}

func TestPolicyForm_OnlyEnabledConditionsSerialized(t *testing.T) {
	f := NewPolicyForm(newFakeAPI())
	assert.Empty(t, f.BuildConditionsPayload())

	f.EnableCondition(metadata.ConditionIPWhitelist, true)
	assert.Empty(t, f.BuildConditionsPayload(), "empty whitelist is omitted")

	f.AddIP("10.0.0.1")
	f.EnableCondition(metadata.ConditionRateLimit, true)
	f.SetRateLimit(30)
	f.SetTimeRange("22:00", "06:00")

	cs := f.BuildConditionsPayload()
	assert.Len(t, cs, 2)
	ips, _ := cs.IPWhitelist()
	assert.Equal(t, metadata.IPWhitelist{"10.0.0.1"}, ips)
	n, _ := cs.RateLimit()
	assert.Equal(t, metadata.RateLimit(30), n)
	_, ok := cs.TimeRange()
	assert.False(t, ok)

	f.EnableCondition(metadata.ConditionTimeRange, true)
	tr, ok := f.BuildConditionsPayload().TimeRange()
	require.True(t, ok)
	assert.Equal(t, metadata.TimeRange{Start: "22:00", End: "06:00"}, tr)

	f.EnableCondition(metadata.ConditionRateLimit, false)
	assert.Equal(t, 30, f.Data().RateLimit, "disabled value is kept")
}

func TestPolicyForm_IPTagInput(t *testing.T) {
	f := NewPolicyForm(newFakeAPI())
	assert.True(t, f.AddIP(" 10.0.0.1,, "))
	assert.False(t, f.AddIP("10.0.0.1"))
	assert.False(t, f.AddIP(" , "))
	assert.True(t, f.AddIP("192.168.0.0/24"))
	assert.True(t, f.AddIP("172.16.0.9"))

	f.RemoveIP("192.168.0.0/24")
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.9"}, f.Data().IPWhitelist)

	f.PopIP()
	f.PopIP()
	f.PopIP()
	assert.Empty(t, f.Data().IPWhitelist)
}

func TestPolicyForm_SubmitCreate(t *testing.T) {
	api := newFakeAPI()
	f := NewPolicyForm(api)
	f.SetName(" Block support at night ")
	require.True(t, f.SetEffect(metadata.EffectDeny))
	assert.False(t, f.SetEffect("maybe"))
	f.SetResource("tickets")
	f.ToggleAction("reply")
	f.ToggleAction("close")
	f.SetPriority(-5)
	role := int64(3)
	f.SetRole(&role)
	role = 99

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, api.createdPolicies, 1)

	p := api.createdPolicies[0]
	assert.Equal(t, "Block support at night", p.Name)
	assert.Equal(t, metadata.EffectDeny, p.Effect)
	assert.Equal(t, "reply,close", p.Action)
	assert.Equal(t, 0, p.Priority)
	scope, ok := p.Conditions.RoleScope()
	require.True(t, ok)
	assert.Equal(t, metadata.RoleScope(3), scope)
}

func TestEditPolicyForm_ParsesStoredPolicy(t *testing.T) {
	cs := metadata.Conditions{}
	cs.Set(metadata.IPWhitelist{})
	cs.Set(metadata.RateLimit(5))
	cs.Set(metadata.RoleScope(2))
	stored := &metadata.AccessPolicy{
		ID: 11, Name: "Limit", Effect: metadata.EffectAllow, Resource: "users",
		Action: "read, edit", Conditions: cs, Priority: 40,
	}

	api := newFakeAPI()
	f := EditPolicyForm(api, stored)
	d := f.Data()
	assert.Equal(t, []string{"read", "edit"}, d.Actions)
	assert.Equal(t, ConditionsEnabled{RateLimit: true}, d.Enabled)
	assert.Equal(t, 5, d.RateLimit)
	assert.Equal(t, metadata.TimeRange{Start: "09:00", End: "18:00"}, d.TimeRange)
	require.NotNil(t, d.RoleID)
	assert.Equal(t, int64(2), *d.RoleID)

	f.SetRole(nil)
	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	got := api.updatedPolicies[11]
	_, scoped := got.Conditions.RoleScope()
	assert.False(t, scoped)
	assert.Equal(t, "read,edit", got.Action)
}

func TestPolicyForm_FailureKeys(t *testing.T) {
	api := newFakeAPI()
	api.err = errors.New("500")

	f := NewPolicyForm(api)
	f.SetName("p")
	f.SetResource("users")
	f.ToggleAction("read")
	_, err := f.Submit(context.Background())
	assert.Equal(t, ErrCreateFailed, KeyOf(err))

	e := EditPolicyForm(api, &metadata.AccessPolicy{ID: 1, Name: "p", Resource: "users", Action: "read"})
	_, err = e.Submit(context.Background())
	assert.Equal(t, ErrUpdateFailed, KeyOf(err))
	assert.Equal(t, ErrDeleteFailed, KeyOf(e.Delete(context.Background())))
}
