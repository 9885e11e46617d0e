package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Parse(t *testing.T) {
	s, a := Permission("tickets:reply").Parse()
	assert.Equal(t, "tickets", s)
	assert.Equal(t, "reply", a)

	s, a = Permission("broken").Parse()
	assert.Empty(t, s)
	assert.Empty(t, a)

	assert.True(t, Wildcard("users").IsWildcard())
	assert.False(t, New("users", "read").IsWildcard())
	assert.False(t, Permission(":read").Valid())
}

func TestPermission_Matches(t *testing.T) {
	cases := []struct {
		held, requested Permission
		want            bool
	}{
		{"tickets:read", "tickets:read", true},
		{"tickets:*", "tickets:close", true},
		{"tickets:*", "users:read", false},
		{"tickets:read", "tickets:reply", false},
		{"*:*", "anything:at_all", true},
		{"*:read", "users:read", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.held.Matches(tc.requested), "%s vs %s", tc.held, tc.requested)
	}
}

func TestGrants(t *testing.T) {
	held := []string{"users:read", "tickets:*"}
	assert.True(t, Grants(held, "tickets:assign"))
	assert.False(t, Grants(held, "users:edit"))
	assert.False(t, Grants(nil, "users:read"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a:b", "c:*"}, Normalize([]string{" a:b", "", "c:*", "a:b"}))
	assert.Empty(t, Normalize(nil))
}
