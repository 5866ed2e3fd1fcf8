package app

import "errors"

// Sentinel errors the HTTP layer maps to status codes and error codes.
var (
	ErrValidation     = errors.New("validation failed")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrOrderNotFound  = errors.New("order not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid email or password")
)
