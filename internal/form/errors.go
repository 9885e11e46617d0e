// Package form holds the draft state of the role and policy editors and the
// rules that turn a draft into an API payload.
package form

import (
	"errors"
	"fmt"
)

// ErrorKey names a form-local error message for the i18n layer.
type ErrorKey string

const (
	ErrNameRequired     ErrorKey = "nameRequired"
	ErrResourceRequired ErrorKey = "resourceRequired"
	ErrActionsRequired  ErrorKey = "actionsRequired"
	ErrCreateFailed     ErrorKey = "createFailed"
	ErrUpdateFailed     ErrorKey = "updateFailed"
	ErrDeleteFailed     ErrorKey = "deleteFailed"
	ErrNotEditing       ErrorKey = "notEditing"
)

// Error is returned by Submit and Delete. Validation errors carry no cause.
type Error struct {
	Key ErrorKey
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Key)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KeyOf extracts the ErrorKey from err, or "" when err is not a form error.
func KeyOf(err error) ErrorKey {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Key
	}
	return ""
}
