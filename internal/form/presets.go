package form

import "sort"

// Presets are fixed permission bundles that overwrite a role draft.
var Presets = map[string][]string{
	"moderator": {"users:read", "users:edit", "users:block", "tickets:*", "ban_system:*"},
	"marketer": {
		"campaigns:*",
		"broadcasts:*",
		"promocodes:*",
		"promo_offers:*",
		"promo_groups:*",
		"stats:read",
		"pinned_messages:*",
		"wheel:*",
	},
	"support": {"tickets:read", "tickets:reply", "users:read"},
}

// PresetKeys returns the preset names sorted alphabetically.
func PresetKeys() []string {
	keys := make([]string, 0, len(Presets))
	for k := range Presets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Preset returns a copy of the named bundle.
func Preset(key string) ([]string, bool) {
	p, ok := Presets[key]
	if !ok {
		return nil, false
	}
	return append([]string(nil), p...), true
}
