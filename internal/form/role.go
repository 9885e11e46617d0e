package form

import (
	"context"
	"slices"
	"strings"

	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
)

// RoleAPI is the subset of the admin API the role editor talks to.
type RoleAPI interface {
	CreateRole(ctx context.Context, payload metadata.RolePayload) (*metadata.Role, error)
	UpdateRole(ctx context.Context, id int64, payload metadata.RolePayload) (*metadata.Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

const DefaultRoleLevel = 50

// RoleFormData is the draft of a role being created or edited.
type RoleFormData struct {
	Name        string
	Description string
	Level       int
	Color       string
	Permissions []string
}

func initialRoleForm() RoleFormData {
	return RoleFormData{
		Level:       DefaultRoleLevel,
		Color:       metadata.RoleColors[0],
		Permissions: []string{},
	}
}

// RoleForm owns one draft. It is not safe for concurrent use.
type RoleForm struct {
	api     RoleAPI
	editing *metadata.Role
	data    RoleFormData
	errKey  ErrorKey
}

// NewRoleForm starts an empty create draft.
func NewRoleForm(api RoleAPI) *RoleForm {
	return &RoleForm{api: api, data: initialRoleForm()}
}

// EditRoleForm starts a draft from a stored role.
func EditRoleForm(api RoleAPI, role *metadata.Role) *RoleForm {
	data := RoleFormData{
		Name:        role.Name,
		Level:       role.Level,
		Color:       role.Color,
		Permissions: append([]string{}, role.Permissions...),
	}
	if role.Description != nil {
		data.Description = *role.Description
	}
	if data.Color == "" {
		data.Color = metadata.RoleColors[0]
	}
	return &RoleForm{api: api, editing: role, data: data}
}

// Data returns a copy of the draft.
func (f *RoleForm) Data() RoleFormData {
	d := f.data
	d.Permissions = append([]string{}, f.data.Permissions...)
	return d
}

func (f *RoleForm) Permissions() []string {
	return append([]string{}, f.data.Permissions...)
}

func (f *RoleForm) Editing() bool { return f.editing != nil }

// ErrorKey is the last error shown in the form, or "".
func (f *RoleForm) ErrorKey() ErrorKey { return f.errKey }

func (f *RoleForm) SetName(name string)               { f.data.Name = name }
func (f *RoleForm) SetDescription(description string) { f.data.Description = description }

// SetLevel clamps to the valid range.
func (f *RoleForm) SetLevel(level int) {
	f.data.Level = min(metadata.MaxRoleLevel, max(metadata.MinRoleLevel, level))
}

// SetColor accepts palette colours only.
func (f *RoleForm) SetColor(color string) bool {
	if !slices.Contains(metadata.RoleColors, color) {
		return false
	}
	f.data.Color = color
	return true
}

func (f *RoleForm) TogglePermission(perm string) {
	f.data.Permissions = permission.TogglePermission(f.data.Permissions, perm)
}

func (f *RoleForm) ToggleSection(section string, actions []string) {
	f.data.Permissions = permission.ToggleSection(f.data.Permissions, section, actions)
}

// ApplyPreset replaces the whole permission list with the named bundle.
func (f *RoleForm) ApplyPreset(key string) bool {
	perms, ok := Preset(key)
	if !ok {
		return false
	}
	f.data.Permissions = perms
	return true
}

// Matrix renders the draft against the registry.
func (f *RoleForm) Matrix(sections []metadata.PermissionSection) []permission.Row {
	return permission.NewMatrix(sections, f.data.Permissions).Rows()
}

// Payload builds the request body. Blank descriptions are sent as null.
func (f *RoleForm) Payload() metadata.RolePayload {
	p := metadata.RolePayload{
		Name:        strings.TrimSpace(f.data.Name),
		Level:       f.data.Level,
		Permissions: append([]string{}, f.data.Permissions...),
		Color:       f.data.Color,
	}
	if d := strings.TrimSpace(f.data.Description); d != "" {
		p.Description = &d
	}
	return p
}

// Submit validates the draft and creates or updates the role. On failure the
// draft is kept so the caller can retry.
func (f *RoleForm) Submit(ctx context.Context) (*metadata.Role, error) {
	f.errKey = ""
	payload := f.Payload()
	if payload.Name == "" {
		return nil, f.fail(ErrNameRequired, nil)
	}

	if f.editing != nil {
		role, err := f.api.UpdateRole(ctx, f.editing.ID, payload)
		if err != nil {
			return nil, f.fail(ErrUpdateFailed, err)
		}
		return role, nil
	}

	role, err := f.api.CreateRole(ctx, payload)
	if err != nil {
		return nil, f.fail(ErrCreateFailed, err)
	}
	return role, nil
}

// Delete removes the role being edited.
func (f *RoleForm) Delete(ctx context.Context) error {
	f.errKey = ""
	if f.editing == nil {
		return f.fail(ErrNotEditing, nil)
	}
	if err := f.api.DeleteRole(ctx, f.editing.ID); err != nil {
		return f.fail(ErrDeleteFailed, err)
	}
	return nil
}

func (f *RoleForm) fail(key ErrorKey, err error) error {
	f.errKey = key
	return &Error{Key: key, Err: err}
}
