package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaj13/libcache"
	_ "github.com/shaj13/libcache/lru"

	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
	"cabinet-admin/internal/store"
)

// RoleLookup loads a single role by id.
type RoleLookup interface {
	GetRole(ctx context.Context, id int64) (*metadata.Role, error)
}

// Effective is the merged grant of a set of roles.
type Effective struct {
	Permissions []string
	Level       int
}

// Resolver turns role ids into effective permissions. Roles are cached
// individually so one role mutation only evicts that role.
type Resolver struct {
	roles RoleLookup
	cache libcache.Cache
}

func NewResolver(roles RoleLookup, size int, ttl time.Duration) *Resolver {
	if size <= 0 {
		size = 1000
	}
	cache := libcache.LRU.New(size)
	if ttl > 0 {
		cache.SetTTL(ttl)
		cache.RegisterOnExpired(func(key, _ interface{}) {
			cache.Delete(key)
		})
	}
	return &Resolver{roles: roles, cache: cache}
}

// Resolve merges the permissions of all active roles in ids and takes the
// highest level. Unknown role ids are skipped.
func (r *Resolver) Resolve(ctx context.Context, ids []int64) (Effective, error) {
	var eff Effective
	var perms []string
	for _, id := range ids {
		role, err := r.role(ctx, id)
		if err != nil {
			return Effective{}, err
		}
		if role == nil || !role.IsActive {
			continue
		}
		perms = append(perms, role.Permissions...)
		if role.Level > eff.Level {
			eff.Level = role.Level
		}
	}
	eff.Permissions = permission.Normalize(perms)
	return eff, nil
}

// Invalidate evicts one role from the cache.
func (r *Resolver) Invalidate(id int64) {
	r.cache.Delete(id)
}

// InvalidateAll empties the cache.
func (r *Resolver) InvalidateAll() {
	r.cache.Purge()
}

func (r *Resolver) role(ctx context.Context, id int64) (*metadata.Role, error) {
	if v, ok := r.cache.Load(id); ok {
		role, _ := v.(*metadata.Role)
		return role, nil
	}
	role, err := r.roles.GetRole(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// cache the miss too
		r.cache.Store(id, (*metadata.Role)(nil))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve role %d: %w", id, err)
	}
	r.cache.Store(id, role)
	return role, nil
}
