package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"cabinet-admin/internal/metadata"
)

type refreshToken struct {
	userID    string
	expiresAt time.Time
}

// Memory is an in-process Repository. Returned values are copies.
type Memory struct {
	mu       sync.RWMutex
	roles    map[int64]metadata.Role
	policies map[int64]metadata.AccessPolicy
	users    map[string]AdminUser
	tokens   map[string]refreshToken
	audit    []AuditEvent
	nextRole int64
	nextPol  int64
	now      func() time.Time
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		roles:    make(map[int64]metadata.Role),
		policies: make(map[int64]metadata.AccessPolicy),
		users:    make(map[string]AdminUser),
		tokens:   make(map[string]refreshToken),
		now:      time.Now,
	}
}

func (m *Memory) Close() {}

func (m *Memory) Bootstrap(ctx context.Context, seed Seed) error {
	m.mu.RLock()
	n := len(m.users)
	m.mu.RUnlock()
	if n > 0 {
		return nil
	}

	role, err := m.CreateRole(ctx, SuperadminRole)
	if err != nil {
		return err
	}
	m.mu.Lock()
	r := m.roles[role.ID]
	r.IsSystem = true
	m.roles[role.ID] = r
	m.mu.Unlock()

	if _, err := m.AddUser(seed.Email, seed.Password, []int64{role.ID}); err != nil {
		return err
	}
	log.Warnf("Default admin user created (%s) - change the password immediately.", seed.Email)
	return nil
}

// AddUser creates an admin user with a bcrypt-hashed password.
func (m *Memory) AddUser(email, password string, roleIDs []int64) (*AdminUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrConflict
		}
	}
	u := AdminUser{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		RoleIDs:      append([]int64(nil), roleIDs...),
		Active:       true,
		CreatedAt:    m.now(),
	}
	m.users[u.ID] = u
	return &u, nil
}

// MarkSystem flags a role as system-managed.
func (m *Memory) MarkSystem(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.roles[id]; ok {
		r.IsSystem = true
		m.roles[id] = r
	}
}

func (m *Memory) userCount(id int64) int {
	n := 0
	for _, u := range m.users {
		for _, rid := range u.RoleIDs {
			if rid == id {
				n++
				break
			}
		}
	}
	return n
}

func copyRole(r metadata.Role) metadata.Role {
	r.Permissions = append([]string{}, r.Permissions...)
	if r.Description != nil {
		d := *r.Description
		r.Description = &d
	}
	return r
}

func (m *Memory) nameTaken(name string, except int64) bool {
	for id, r := range m.roles {
		if id != except && r.Name == name {
			return true
		}
	}
	return false
}

func (m *Memory) ListRoles(_ context.Context) ([]metadata.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roles := make([]metadata.Role, 0, len(m.roles))
	for _, r := range m.roles {
		r = copyRole(r)
		r.UserCount = m.userCount(r.ID)
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Level != roles[j].Level {
			return roles[i].Level > roles[j].Level
		}
		return roles[i].ID < roles[j].ID
	})
	return roles, nil
}

func (m *Memory) GetRole(_ context.Context, id int64) (*metadata.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = copyRole(r)
	r.UserCount = m.userCount(id)
	return &r, nil
}

func (m *Memory) CreateRole(ctx context.Context, p metadata.RolePayload) (*metadata.Role, error) {
	m.mu.Lock()
	if m.nameTaken(p.Name, 0) {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	m.nextRole++
	now := m.now()
	r := metadata.Role{
		ID:        m.nextRole,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyRolePayload(&r, p)
	m.roles[r.ID] = copyRole(r)
	m.mu.Unlock()
	return m.GetRole(ctx, r.ID)
}

func (m *Memory) UpdateRole(ctx context.Context, id int64, p metadata.RolePayload) (*metadata.Role, error) {
	m.mu.Lock()
	r, ok := m.roles[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if m.nameTaken(p.Name, id) {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	applyRolePayload(&r, p)
	r.UpdatedAt = m.now()
	m.roles[id] = copyRole(r)
	m.mu.Unlock()
	return m.GetRole(ctx, id)
}

func applyRolePayload(r *metadata.Role, p metadata.RolePayload) {
	r.Name = p.Name
	r.Description = p.Description
	r.Level = p.Level
	r.Color = p.Color
	r.Permissions = nonNil(p.Permissions)
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
}

func (m *Memory) DeleteRole(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	for uid, u := range m.users {
		kept := u.RoleIDs[:0:0]
		for _, rid := range u.RoleIDs {
			if rid != id {
				kept = append(kept, rid)
			}
		}
		u.RoleIDs = kept
		m.users[uid] = u
	}
	return nil
}

func copyPolicy(p metadata.AccessPolicy) metadata.AccessPolicy {
	conds := make(metadata.Conditions, len(p.Conditions))
	for k, v := range p.Conditions {
		if ips, ok := v.(metadata.IPWhitelist); ok {
			v = append(metadata.IPWhitelist{}, ips...)
		}
		conds[k] = v
	}
	p.Conditions = conds
	if p.Description != nil {
		d := *p.Description
		p.Description = &d
	}
	return p
}

func (m *Memory) ListPolicies(_ context.Context) ([]metadata.AccessPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]metadata.AccessPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, copyPolicy(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetPolicy(_ context.Context, id int64) (*metadata.AccessPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = copyPolicy(p)
	return &p, nil
}

func (m *Memory) CreatePolicy(ctx context.Context, in metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	m.mu.Lock()
	m.nextPol++
	now := m.now()
	p := metadata.AccessPolicy{ID: m.nextPol, IsActive: true, CreatedAt: now, UpdatedAt: now}
	applyPolicyPayload(&p, in)
	m.policies[p.ID] = copyPolicy(p)
	m.mu.Unlock()
	return m.GetPolicy(ctx, p.ID)
}

func (m *Memory) UpdatePolicy(ctx context.Context, id int64, in metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	m.mu.Lock()
	p, ok := m.policies[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	applyPolicyPayload(&p, in)
	p.UpdatedAt = m.now()
	m.policies[id] = copyPolicy(p)
	m.mu.Unlock()
	return m.GetPolicy(ctx, id)
}

func applyPolicyPayload(p *metadata.AccessPolicy, in metadata.PolicyPayload) {
	p.Name = in.Name
	p.Description = in.Description
	p.Effect = in.Effect
	p.Resource = in.Resource
	p.Action = in.Action
	p.Conditions = in.Conditions
	p.Priority = in.Priority
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

func (m *Memory) DeletePolicy(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[id]; !ok {
		return ErrNotFound
	}
	delete(m.policies, id)
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*AdminUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u.RoleIDs = append([]int64(nil), u.RoleIDs...)
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetUser(_ context.Context, id string) (*AdminUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.RoleIDs = append([]int64(nil), u.RoleIDs...)
	return &u, nil
}

func (m *Memory) CreateRefreshToken(_ context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	m.tokens[token] = refreshToken{userID: userID, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return token, nil
}

func (m *Memory) ConsumeRefreshToken(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	delete(m.tokens, token)
	if m.now().After(t.expiresAt) {
		return "", ErrNotFound
	}
	return t.userID, nil
}

func (m *Memory) DeleteRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.tokens, token)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteExpiredTokens(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for k, t := range m.tokens {
		if now.After(t.expiresAt) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertAuditEvents(_ context.Context, events []AuditEvent) error {
	m.mu.Lock()
	m.audit = append(m.audit, events...)
	m.mu.Unlock()
	return nil
}

// ListAuditEvents returns the newest events first.
func (m *Memory) ListAuditEvents(_ context.Context, f AuditFilter) ([]AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AuditEvent, 0, len(m.audit))
	for i := len(m.audit) - 1; i >= 0; i-- {
		if !f.match(m.audit[i]) {
			continue
		}
		out = append(out, m.audit[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) DeleteAuditBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audit[:0]
	var n int64
	for _, e := range m.audit {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.audit = kept
	return n, nil
}
