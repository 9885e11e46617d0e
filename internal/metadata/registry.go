package metadata

import (
	"sort"
	"sync"
)

// PermissionSection is a server-declared catalog entry: a section and the
// actions that can be granted on it.
type PermissionSection struct {
	Section string   `json:"section" yaml:"section"`
	Actions []string `json:"actions" yaml:"actions"`
}

// HasAction reports whether action is declared for the section.
func (s PermissionSection) HasAction(action string) bool {
	for _, a := range s.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Registry holds the permission catalog. Readers never see a partially
// loaded catalog.
type Registry struct {
	mu       sync.RWMutex
	sections map[string]PermissionSection
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		sections: make(map[string]PermissionSection),
	}
}

// Section returns the catalog entry for name.
func (r *Registry) Section(name string) (PermissionSection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sections[name]
	if !ok {
		return PermissionSection{}, false
	}
	return cloneSection(s), true
}

// HasSection reports whether name is a known section.
func (r *Registry) HasSection(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sections[name]
	return ok
}

// HasAction reports whether section declares action.
func (r *Registry) HasAction(section, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sections[section]
	return ok && s.HasAction(action)
}

// Sections returns all sections in load order. The result is a copy.
func (r *Registry) Sections() []PermissionSection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PermissionSection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, cloneSection(r.sections[name]))
	}
	return out
}

// SectionNames returns the section names sorted alphabetically.
func (r *Registry) SectionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Load replaces the catalog. Duplicate sections are merged, keeping the
// first declaration order of their actions.
func (r *Registry) Load(sections []PermissionSection) {
	merged := make(map[string]PermissionSection, len(sections))
	var order []string
	for _, s := range sections {
		if s.Section == "" {
			continue
		}
		existing, ok := merged[s.Section]
		if !ok {
			order = append(order, s.Section)
			existing = PermissionSection{Section: s.Section}
		}
		for _, a := range s.Actions {
			if a != "" && !existing.HasAction(a) {
				existing.Actions = append(existing.Actions, a)
			}
		}
		merged[s.Section] = existing
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections = merged
	r.order = order
}

func cloneSection(s PermissionSection) PermissionSection {
	return PermissionSection{Section: s.Section, Actions: append([]string(nil), s.Actions...)}
}
