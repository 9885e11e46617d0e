package permission

import (
	"slices"
	"strings"

	"cabinet-admin/internal/metadata"
)

// State is the tri-state of a section checkbox.
type State string

const (
	StateNone    State = "none"
	StatePartial State = "partial"
	StateFull    State = "full"
)

// IsPermSelected reports whether section:action is covered, either literally
// or by section:*. Effective selection must always go through this check.
func IsPermSelected(selected []string, section, action string) bool {
	perm := string(New(section, action))
	wildcard := string(Wildcard(section))
	for _, p := range selected {
		if p == perm || p == wildcard {
			return true
		}
	}
	return false
}

// IsSectionFullySelected reports whether every catalog action is covered.
// A section without declared actions is always full.
func IsSectionFullySelected(selected []string, section string, actions []string) bool {
	for _, a := range actions {
		if !IsPermSelected(selected, section, a) {
			return false
		}
	}
	return true
}

// IsSectionPartiallySelected reports whether some but not all catalog actions
// are covered.
func IsSectionPartiallySelected(selected []string, section string, actions []string) bool {
	for _, a := range actions {
		if IsPermSelected(selected, section, a) {
			return !IsSectionFullySelected(selected, section, actions)
		}
	}
	return false
}

// SectionState folds the two predicates above into one value.
func SectionState(selected []string, section string, actions []string) State {
	switch {
	case IsSectionFullySelected(selected, section, actions):
		return StateFull
	case IsSectionPartiallySelected(selected, section, actions):
		return StatePartial
	default:
		return StateNone
	}
}

// ToggleSection clears a fully selected section, or replaces every entry of
// the section with a single wildcard. A partial section therefore jumps to
// full. The input slice is not modified.
func ToggleSection(selected []string, section string, actions []string) []string {
	if IsSectionFullySelected(selected, section, actions) {
		drop := make(map[string]struct{}, len(actions)+1)
		for _, a := range actions {
			drop[string(New(section, a))] = struct{}{}
		}
		drop[string(Wildcard(section))] = struct{}{}

		out := make([]string, 0, len(selected))
		for _, p := range selected {
			if _, ok := drop[p]; !ok {
				out = append(out, p)
			}
		}
		return out
	}

	prefix := section + ":"
	out := make([]string, 0, len(selected)+1)
	for _, p := range selected {
		if !strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return append(out, string(Wildcard(section)))
}

// TogglePermission flips the literal presence of perm. Wildcards are neither
// expanded nor contracted, so removing an action covered by section:* has no
// effective result until the wildcard itself is cleared.
func TogglePermission(selected []string, perm string) []string {
	out := make([]string, 0, len(selected)+1)
	found := false
	for _, p := range selected {
		if p == perm {
			found = true
			continue
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, perm)
	}
	return out
}

// ActionCell is one toggle in a matrix row.
type ActionCell struct {
	Action   string `json:"action"`
	Selected bool   `json:"selected"`
	// Implied is set when only the section wildcard covers the action.
	Implied bool `json:"implied"`
}

// Row is the rendered state of one registry section.
type Row struct {
	Section       string       `json:"section"`
	State         State        `json:"state"`
	SelectedCount int          `json:"selected_count"`
	Total         int          `json:"total"`
	Actions       []ActionCell `json:"actions"`
}

// Matrix binds a permission catalog to a selection for rendering.
type Matrix struct {
	sections []metadata.PermissionSection
	selected []string
}

func NewMatrix(sections []metadata.PermissionSection, selected []string) *Matrix {
	return &Matrix{sections: sections, selected: selected}
}

// Rows returns one row per catalog section, in catalog order.
func (m *Matrix) Rows() []Row {
	rows := make([]Row, 0, len(m.sections))
	for _, s := range m.sections {
		rows = append(rows, m.row(s))
	}
	return rows
}

func (m *Matrix) row(s metadata.PermissionSection) Row {
	r := Row{
		Section: s.Section,
		State:   SectionState(m.selected, s.Section, s.Actions),
		Total:   len(s.Actions),
		Actions: make([]ActionCell, 0, len(s.Actions)),
	}
	for _, a := range s.Actions {
		sel := IsPermSelected(m.selected, s.Section, a)
		literal := slices.Contains(m.selected, string(New(s.Section, a)))
		if sel {
			r.SelectedCount++
		}
		r.Actions = append(r.Actions, ActionCell{Action: a, Selected: sel, Implied: sel && !literal})
	}
	return r
}

// Unknown returns selected entries that name no catalog section or action.
// Wildcards for known sections and the superuser grant are accepted.
func Unknown(reg *metadata.Registry, selected []string) []string {
	var bad []string
	for _, p := range selected {
		perm := Permission(p)
		if perm == Superuser {
			continue
		}
		section, action := perm.Parse()
		if section == "" || action == "" || !reg.HasSection(section) {
			bad = append(bad, p)
			continue
		}
		if action != WildcardAction && !reg.HasAction(section, action) {
			bad = append(bad, p)
		}
	}
	return bad
}
