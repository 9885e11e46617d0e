// Package permission implements the "section:action" grant strings used by
// cabinet roles and the matrix logic that edits them.
package permission

import "strings"

// WildcardAction grants every current and future action of a section.
const WildcardAction = "*"

// Superuser matches every permission.
const Superuser Permission = "*:*"

// Permission is "<section>:<action>" or "<section>:*".
type Permission string

func New(section, action string) Permission {
	return Permission(section + ":" + action)
}

// Wildcard returns "<section>:*".
func Wildcard(section string) Permission {
	return New(section, WildcardAction)
}

// Parse splits the permission at the first colon. Malformed values yield
// empty parts.
func (p Permission) Parse() (section, action string) {
	section, action, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return section, action
}

// Section returns the section part.
func (p Permission) Section() string {
	s, _ := p.Parse()
	return s
}

func (p Permission) IsWildcard() bool {
	_, a := p.Parse()
	return a == WildcardAction
}

// Valid reports whether both parts are non-empty.
func (p Permission) Valid() bool {
	s, a := p.Parse()
	return s != "" && a != ""
}

// Matches reports whether holding p grants requested: exact match, section
// wildcard, or the superuser grant.
func (p Permission) Matches(requested Permission) bool {
	if p == Superuser || p == requested {
		return true
	}
	s, a := p.Parse()
	rs, _ := requested.Parse()
	return a == WildcardAction && s != "" && s == rs
}

// Grants reports whether any permission in held grants requested.
func Grants(held []string, requested Permission) bool {
	for _, h := range held {
		if Permission(h).Matches(requested) {
			return true
		}
	}
	return false
}

// Normalize trims and dedupes a permission list, keeping first occurrences.
// Blank entries are dropped.
func Normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, p := range list {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
