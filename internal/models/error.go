package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Gate errors
	ErrInvalidCredential = errors.New("invalid or expired credential")

	// Entitlement errors
	ErrEntitlementUnresolvable = errors.New("entitlements could not be resolved")
	ErrAccountBlocked          = errors.New("account access is blocked")
)
