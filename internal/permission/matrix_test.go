package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabinet-admin/internal/metadata"
)

var ticketActions = []string{"read", "reply", "close"}

func TestToggle_TicketScenario(t *testing.T) {
	var selected []string

	selected = TogglePermission(selected, "tickets:read")
	assert.Equal(t, []string{"tickets:read"}, selected)
	assert.True(t, IsSectionPartiallySelected(selected, "tickets", ticketActions))
	assert.Equal(t, StatePartial, SectionState(selected, "tickets", ticketActions))

	selected = ToggleSection(selected, "tickets", ticketActions)
	assert.Equal(t, []string{"tickets:*"}, selected)
	assert.True(t, IsSectionFullySelected(selected, "tickets", ticketActions))

	selected = ToggleSection(selected, "tickets", ticketActions)
	assert.Empty(t, selected)
	assert.Equal(t, StateNone, SectionState(selected, "tickets", ticketActions))
}

func TestIsSectionFullySelected_LiteralOrWildcard(t *testing.T) {
	literal := []string{"tickets:read", "tickets:reply", "tickets:close"}
	assert.True(t, IsSectionFullySelected(literal, "tickets", ticketActions))
	assert.False(t, IsSectionPartiallySelected(literal, "tickets", ticketActions))

	assert.True(t, IsSectionFullySelected([]string{"tickets:*"}, "tickets", ticketActions))
	assert.False(t, IsSectionFullySelected([]string{"tickets:read", "tickets:close"}, "tickets", ticketActions))
	assert.False(t, IsSectionFullySelected([]string{"users:*"}, "tickets", ticketActions))
}

func TestIsPermSelected_WildcardCoversEveryAction(t *testing.T) {
	selected := []string{"users:read", "tickets:*"}
	for _, a := range ticketActions {
		assert.True(t, IsPermSelected(selected, "tickets", a), a)
	}
	assert.True(t, IsPermSelected(selected, "users", "read"))
	assert.False(t, IsPermSelected(selected, "users", "edit"))
}

func TestToggleSection_PartialPromotesAndDropsResiduals(t *testing.T) {
	selected := []string{"users:read", "tickets:reply", "tickets:legacy", "stats:read"}
	out := ToggleSection(selected, "tickets", ticketActions)
	assert.Equal(t, []string{"users:read", "stats:read", "tickets:*"}, out)
	assert.Equal(t, []string{"users:read", "tickets:reply", "tickets:legacy", "stats:read"}, selected, "input must not be modified")
}

func TestToggleSection_FullClearKeepsUnlistedEntries(t *testing.T) {
	selected := []string{"tickets:read", "tickets:reply", "tickets:close", "tickets:legacy", "tickets:*", "users:read"}
	out := ToggleSection(selected, "tickets", ticketActions)
	assert.Equal(t, []string{"tickets:legacy", "users:read"}, out)
}

func TestTogglePermission_DoesNotContractWildcard(t *testing.T) {
	selected := []string{"tickets:*"}
	out := TogglePermission(selected, "tickets:read")
	assert.Equal(t, []string{"tickets:*", "tickets:read"}, out)
	assert.True(t, IsPermSelected(out, "tickets", "read"))

	out = TogglePermission(out, "tickets:read")
	assert.Equal(t, []string{"tickets:*"}, out)
	assert.True(t, IsPermSelected(out, "tickets", "read"), "wildcard still dominates")
}

func TestEmptyCatalogSection(t *testing.T) {
	assert.True(t, IsSectionFullySelected([]string{}, "wheel", []string{}))
	assert.True(t, IsSectionFullySelected([]string{"wheel:*"}, "wheel", nil))
	assert.False(t, IsSectionPartiallySelected([]string{"wheel:*"}, "wheel", nil))
	assert.Equal(t, StateFull, SectionState(nil, "wheel", nil))

	// Full sections clear on toggle, so an empty catalog never gains a wildcard.
	assert.Equal(t, []string{}, ToggleSection([]string{}, "wheel", nil))
	assert.Equal(t, []string{"users:read"}, ToggleSection([]string{"wheel:*", "users:read"}, "wheel", nil))
}

func TestMatrix_Rows(t *testing.T) {
	sections := []metadata.PermissionSection{
		{Section: "tickets", Actions: ticketActions},
		{Section: "users", Actions: []string{"read", "edit"}},
		{Section: "stats", Actions: []string{"read"}},
	}
	rows := NewMatrix(sections, []string{"tickets:*", "users:read"}).Rows()
	require.Len(t, rows, 3)

	assert.Equal(t, StateFull, rows[0].State)
	assert.Equal(t, 3, rows[0].SelectedCount)
	assert.True(t, rows[0].Actions[1].Implied)

	assert.Equal(t, StatePartial, rows[1].State)
	assert.Equal(t, 1, rows[1].SelectedCount)
	assert.Equal(t, 2, rows[1].Total)
	assert.True(t, rows[1].Actions[0].Selected)
	assert.False(t, rows[1].Actions[0].Implied)
	assert.False(t, rows[1].Actions[1].Selected)

	assert.Equal(t, StateNone, rows[2].State)
}

func TestUnknown(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.Load([]metadata.PermissionSection{{Section: "tickets", Actions: ticketActions}})
	bad := Unknown(reg, []string{"tickets:read", "tickets:*", "*:*", "tickets:fly", "billing:*", "nocolon", "tickets:"})
	assert.Equal(t, []string{"tickets:fly", "billing:*", "nocolon", "tickets:"}, bad)
}
