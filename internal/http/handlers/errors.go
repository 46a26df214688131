package handlers

// Stable, machine-readable error codes returned in ErrorResponse.Code.
// Clients branch on these rather than on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	ErrCodeInvalidThreshold = "invalid_threshold"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeNotImplemented   = "not_implemented"
	ErrCodeEvaluateFailed   = "evaluate_failed"
)
