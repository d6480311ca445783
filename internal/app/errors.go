package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound      = errors.New("not found")
	ErrFunnelInUse   = errors.New("funnel is referenced by projects or subprojects")
	ErrHasChildren   = errors.New("entity still has subprojects")
	ErrScopeMismatch = errors.New("funnel scope does not match entity type")
)
