package form

import (
	"context"

	"cabinet-admin/internal/metadata"
)

type fakeAPI struct {
	err error

	createdRoles    []metadata.RolePayload
	updatedRoles    map[int64]metadata.RolePayload
	deletedRoles    []int64
	createdPolicies []metadata.PolicyPayload
	updatedPolicies map[int64]metadata.PolicyPayload
	deletedPolicies []int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		updatedRoles:    map[int64]metadata.RolePayload{},
		updatedPolicies: map[int64]metadata.PolicyPayload{},
	}
}

func (f *fakeAPI) calls() int {
	return len(f.createdRoles) + len(f.updatedRoles) + len(f.deletedRoles) +
		len(f.createdPolicies) + len(f.updatedPolicies) + len(f.deletedPolicies)
}

func (f *fakeAPI) CreateRole(_ context.Context, p metadata.RolePayload) (*metadata.Role, error) {
	f.createdRoles = append(f.createdRoles, p)
	if f.err != nil {
		return nil, f.err
	}
	return &metadata.Role{ID: int64(len(f.createdRoles)), Name: p.Name, Level: p.Level, Permissions: p.Permissions}, nil
}

func (f *fakeAPI) UpdateRole(_ context.Context, id int64, p metadata.RolePayload) (*metadata.Role, error) {
	f.updatedRoles[id] = p
	if f.err != nil {
		return nil, f.err
	}
	return &metadata.Role{ID: id, Name: p.Name, Level: p.Level, Permissions: p.Permissions}, nil
}

func (f *fakeAPI) DeleteRole(_ context.Context, id int64) error {
	f.deletedRoles = append(f.deletedRoles, id)
	return f.err
}

func (f *fakeAPI) CreatePolicy(_ context.Context, p metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	f.createdPolicies = append(f.createdPolicies, p)
	if f.err != nil {
		return nil, f.err
	}
	return &metadata.AccessPolicy{ID: int64(len(f.createdPolicies)), Name: p.Name, Action: p.Action}, nil
}

func (f *fakeAPI) UpdatePolicy(_ context.Context, id int64, p metadata.PolicyPayload) (*metadata.AccessPolicy, error) {
	f.updatedPolicies[id] = p
	if f.err != nil {
		return nil, f.err
	}
	return &metadata.AccessPolicy{ID: id, Name: p.Name, Action: p.Action}, nil
}

func (f *fakeAPI) DeletePolicy(_ context.Context, id int64) error {
	f.deletedPolicies = append(f.deletedPolicies, id)
	return f.err
}
