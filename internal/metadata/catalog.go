package metadata

// DefaultCatalog is the permission catalog the cabinet ships with.
func DefaultCatalog() []PermissionSection {
	return []PermissionSection{
		{Section: "users", Actions: []string{"read", "edit", "block", "delete", "balance"}},
		{Section: "tickets", Actions: []string{"read", "reply", "close", "assign"}},
		{Section: "ban_system", Actions: []string{"read", "ban", "unban"}},
		{Section: "campaigns", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "broadcasts", Actions: []string{"read", "create", "send", "delete"}},
		{Section: "promocodes", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "promo_offers", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "promo_groups", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "stats", Actions: []string{"read", "export"}},
		{Section: "pinned_messages", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "wheel", Actions: []string{"read", "edit"}},
		{Section: "settings", Actions: []string{"read", "edit"}},
		{Section: "roles", Actions: []string{"read", "create", "edit", "delete", "assign"}},
		{Section: "policies", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "tariffs", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "servers", Actions: []string{"read", "edit", "sync"}},
		{Section: "payments", Actions: []string{"read", "refund"}},
		{Section: "payment_methods", Actions: []string{"read", "edit"}},
		{Section: "email_templates", Actions: []string{"read", "edit", "test"}},
		{Section: "apps", Actions: []string{"read", "edit"}},
		{Section: "personal_vpn", Actions: []string{"read", "edit"}},
		{Section: "traffic", Actions: []string{"read", "export"}},
		{Section: "partners", Actions: []string{"read", "create", "edit"}},
		{Section: "polls", Actions: []string{"read", "create", "edit", "delete"}},
		{Section: "audit", Actions: []string{"read"}},
	}
}
