package models

import "errors"

var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a role-expiry notification already exists
	// for the same user, role and expiry date.
	ErrDuplicate = errors.New("duplicate notification")
)
