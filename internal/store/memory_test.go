package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cabinet-admin/internal/metadata"
)

func TestMemory_BootstrapSeedsSuperadmin(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Bootstrap(ctx, Seed{Email: "admin@localhost", Password: "changeme"}))
	require.NoError(t, m.Bootstrap(ctx, Seed{Email: "other@localhost", Password: "x"}))

	u, err := m.GetUserByEmail(ctx, "ADMIN@localhost")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("changeme")))
	require.Len(t, u.RoleIDs, 1)

	role, err := m.GetRole(ctx, u.RoleIDs[0])
	require.NoError(t, err)
	assert.True(t, role.IsSystem)
	assert.Equal(t, []string{"*:*"}, role.Permissions)
	assert.Equal(t, 1, role.UserCount)

	_, err = m.GetUserByEmail(ctx, "other@localhost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_RoleLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	low, err := m.CreateRole(ctx, metadata.RolePayload{Name: "Support", Level: 10, Permissions: []string{"tickets:read"}})
	require.NoError(t, err)
	high, err := m.CreateRole(ctx, metadata.RolePayload{Name: "Moderator", Level: 60})
	require.NoError(t, err)
	assert.NotNil(t, high.Permissions)

	_, err = m.CreateRole(ctx, metadata.RolePayload{Name: "Support"})
	assert.True(t, errors.Is(err, ErrConflict))

	roles, err := m.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, high.ID, roles[0].ID)

	inactive := false
	updated, err := m.UpdateRole(ctx, low.ID, metadata.RolePayload{Name: "Support", Level: 20, Permissions: []string{"tickets:*"}, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Level)
	assert.False(t, updated.IsActive)

	updated.Permissions[0] = "mutated"
	again, _ := m.GetRole(ctx, low.ID)
	assert.Equal(t, "tickets:*", again.Permissions[0])

	_, err = m.AddUser("a@b.c", "pw", []int64{low.ID, high.ID})
	require.NoError(t, err)
	require.NoError(t, m.DeleteRole(ctx, low.ID))
	u, _ := m.GetUserByEmail(ctx, "a@b.c")
	assert.Equal(t, []int64{high.ID}, u.RoleIDs)

	assert.ErrorIs(t, m.DeleteRole(ctx, low.ID), ErrNotFound)
	_, err = m.UpdateRole(ctx, 999, metadata.RolePayload{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_PoliciesSortedByPriority(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	conds := metadata.Conditions{}
	conds.Set(metadata.IPWhitelist{"10.0.0.1"})

	_, err := m.CreatePolicy(ctx, metadata.PolicyPayload{Name: "a", Effect: metadata.EffectAllow, Resource: "users", Action: "read", Priority: 5})
	require.NoError(t, err)
	p, err := m.CreatePolicy(ctx, metadata.PolicyPayload{Name: "b", Effect: metadata.EffectDeny, Resource: "users", Action: "edit", Priority: 50, Conditions: conds})
	require.NoError(t, err)
	assert.True(t, p.IsActive)

	list, err := m.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Name)

	ips, ok := list[0].Conditions.IPWhitelist()
	require.True(t, ok)
	ips[0] = "mutated"
	fresh, _ := m.GetPolicy(ctx, p.ID)
	got, _ := fresh.Conditions.IPWhitelist()
	assert.Equal(t, "10.0.0.1", got[0])

	require.NoError(t, m.DeletePolicy(ctx, p.ID))
	assert.ErrorIs(t, m.DeletePolicy(ctx, p.ID), ErrNotFound)
}

func TestMemory_RefreshTokens(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	tok, err := m.CreateRefreshToken(ctx, "u1", time.Hour)
	require.NoError(t, err)
	uid, err := m.ConsumeRefreshToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = m.ConsumeRefreshToken(ctx, tok)
	assert.ErrorIs(t, err, ErrNotFound)

	old, _ := m.CreateRefreshToken(ctx, "u1", time.Minute)
	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	n, err := m.DeleteExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = m.ConsumeRefreshToken(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Audit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, m.InsertAuditEvents(ctx, []AuditEvent{
		{ID: "1", Action: "role.create", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "2", Action: "role.update", CreatedAt: now},
	}))

	events, err := m.ListAuditEvents(ctx, AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].ID)

	events, err = m.ListAuditEvents(ctx, AuditFilter{Action: "role.create"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].ID)

	n, err := m.DeleteAuditBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
