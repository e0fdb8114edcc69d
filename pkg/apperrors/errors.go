package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrConfiguration         = errors.New("missing required configuration")
	ErrSchemaUnavailable     = errors.New("referenced table or column is not available")
	ErrSessionNotOpen        = errors.New("reconciliation session is not in progress")
	ErrUnresolvedDifferences = errors.New("session has unresolved differences")
	ErrRunConflict           = errors.New("a run for this property, period and document type is already in flight")
	ErrRunAbandoned          = errors.New("validation run was abandoned before completion")
)
