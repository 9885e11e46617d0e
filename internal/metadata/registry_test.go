package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadMergesDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]PermissionSection{
		{Section: "tickets", Actions: []string{"read", "reply"}},
		{Section: "users", Actions: []string{"read"}},
		{Section: "tickets", Actions: []string{"reply", "close"}},
		{Section: "", Actions: []string{"ignored"}},
	})

	sections := reg.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, "tickets", sections[0].Section)
	assert.Equal(t, []string{"read", "reply", "close"}, sections[0].Actions)
	assert.True(t, reg.HasAction("tickets", "close"))
	assert.False(t, reg.HasAction("users", "close"))
	assert.False(t, reg.HasSection("billing"))
}

func TestRegistry_SectionsAreCopies(t *testing.T) {
	reg := NewRegistry()
	reg.Load([]PermissionSection{{Section: "stats", Actions: []string{"read"}}})

	s, ok := reg.Section("stats")
	require.True(t, ok)
	s.Actions[0] = "mutated"

	again, _ := reg.Section("stats")
	assert.Equal(t, []string{"read"}, again.Actions)
}

func TestDefaultCatalog_CoversPresetSections(t *testing.T) {
	reg := NewRegistry()
	reg.Load(DefaultCatalog())
	for _, name := range []string{"users", "tickets", "ban_system", "campaigns", "broadcasts", "promocodes", "promo_offers", "promo_groups", "stats", "pinned_messages", "wheel", "roles", "policies"} {
		assert.True(t, reg.HasSection(name), name)
	}
	assert.Equal(t, "apps", reg.SectionNames()[0])
}

func TestUserContext(t *testing.T) {
	u := &UserContext{RoleIDs: []int64{3}, Permissions: []string{"tickets:*"}}
	assert.True(t, u.HasRole(3))
	assert.False(t, u.HasRole(4))
	assert.False(t, u.IsSuperuser())
	u.Permissions = append(u.Permissions, "*:*")
	assert.True(t, u.IsSuperuser())
}
