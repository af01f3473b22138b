package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the authorization gate denied the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrCompanyRequired indicates the request carried no tenant.
	ErrCompanyRequired = errors.New("company id required")
	// ErrConcurrencyConflict indicates a lock or unique-key race; safe to retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)
