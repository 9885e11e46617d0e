package connection

import (
	"net/url"
	"strings"
)

const (
	SubscriptionLinkTemplate = "{{SUBSCRIPTION_LINK}}"
	UsernameTemplate         = "{{USERNAME}}"
)

var dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

// TemplateVars holds the values substituted into link templates.
type TemplateVars struct {
	SubscriptionURL string
	Username        string
}

// HasTemplates reports whether s contains any known placeholder.
func HasTemplates(s string) bool {
	return strings.Contains(s, SubscriptionLinkTemplate) || strings.Contains(s, UsernameTemplate)
}

// ResolveTemplate substitutes every placeholder in s. A missing username
// resolves to an empty string.
func ResolveTemplate(s string, vars TemplateVars) string {
	r := strings.NewReplacer(
		SubscriptionLinkTemplate, vars.SubscriptionURL,
		UsernameTemplate, vars.Username,
	)
	return r.Replace(s)
}

// resolveURL fills templates only when a subscription URL is known.
func resolveURL(s string, vars TemplateVars) string {
	if !HasTemplates(s) || vars.SubscriptionURL == "" {
		return s
	}
	return ResolveTemplate(s, vars)
}

// IsValidExternalURL accepts http and https links only.
func IsValidExternalURL(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" || hasDangerousScheme(lower) {
		return false
	}
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsValidDeepLink accepts any scheme://... link that is not a script or
// local-file scheme.
func IsValidDeepLink(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" || hasDangerousScheme(lower) {
		return false
	}
	return strings.Contains(lower, "://")
}

func hasDangerousScheme(lower string) bool {
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// RedirectURL wraps a deep link in the redirect page served at
// origin+path, which desktop browsers need to hand custom schemes to the OS.
func RedirectURL(origin, path, link, lang string) string {
	if lang == "" {
		lang = "en"
	}
	return strings.TrimRight(origin, "/") + path +
		"?url=" + url.QueryEscape(link) + "&lang=" + url.QueryEscape(lang)
}
