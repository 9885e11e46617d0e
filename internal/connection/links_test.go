package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplates(t *testing.T) {
	vars := TemplateVars{SubscriptionURL: "https://s/u/1", Username: "neo"}

	assert.True(t, HasTemplates("x://{{USERNAME}}"))
	assert.False(t, HasTemplates("x://plain"))
	assert.Equal(t, "happ://add/https://s/u/1#neo", ResolveTemplate("happ://add/{{SUBSCRIPTION_LINK}}#{{USERNAME}}", vars))
	assert.Equal(t, "a//b", ResolveTemplate("a/{{USERNAME}}/b", TemplateVars{}))

	// without a subscription URL links are left untouched
	assert.Equal(t, "happ://add/{{SUBSCRIPTION_LINK}}", resolveURL("happ://add/{{SUBSCRIPTION_LINK}}", TemplateVars{Username: "neo"}))
}

func TestLinkValidation(t *testing.T) {
	assert.True(t, IsValidDeepLink("happ://add/x"))
	assert.True(t, IsValidDeepLink("  HTTPS://example.com"))
	assert.False(t, IsValidDeepLink("JavaScript://alert(1)"))
	assert.False(t, IsValidDeepLink("data://text"))
	assert.False(t, IsValidDeepLink("file:///etc/passwd"))
	assert.False(t, IsValidDeepLink("no-scheme"))
	assert.False(t, IsValidDeepLink(""))

	assert.True(t, IsValidExternalURL("https://apps.apple.com"))
	assert.True(t, IsValidExternalURL("http://x"))
	assert.False(t, IsValidExternalURL("ftp://x"))
	assert.False(t, IsValidExternalURL("vbscript:msgbox"))
	assert.False(t, IsValidExternalURL("happ://add"))
}

func TestRedirectURL(t *testing.T) {
	got := RedirectURL("https://cab.example.com/", DefaultRedirectPath, "happ://add/https://s/u?a=1&b=2", "")
	assert.Equal(t, "https://cab.example.com/miniapp/redirect.html?url=happ%3A%2F%2Fadd%2Fhttps%3A%2F%2Fs%2Fu%3Fa%3D1%26b%3D2&lang=en", got)
}
