package gateway

import (
	"errors"
)

var (
	// ErrAccessDenied means the workspace may not use AI at all: it is
	// blocked, or it has no keys of its own and global AI is disallowed.
	ErrAccessDenied       = errors.New("ai access denied")
	ErrWorkspaceSuspended = errors.New("workspace suspended")
	// ErrNoProvider means no usable backend could be built for the workspace.
	ErrNoProvider     = errors.New("no ai provider configured")
	ErrBudgetExceeded = errors.New("monthly ai token budget exceeded")
	ErrRateLimited    = errors.New("ai rate limit exceeded")

	// ErrQuotaUnavailable wraps limiter and usage-store failures during
	// admission. Calls fail closed, and the caller should retry later.
	ErrQuotaUnavailable = errors.New("ai quota check unavailable")
)

// IsAccessError reports configuration and policy failures that retrying
// will not fix.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrWorkspaceSuspended) ||
		errors.Is(err, ErrNoProvider) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrRateLimited)
}

// ErrorCode is the short code recorded in interaction metadata.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrWorkspaceSuspended):
		return "workspace_suspended"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNoProvider):
		return "no_provider"
	case errors.Is(err, ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "gateway_error"
	}
}
