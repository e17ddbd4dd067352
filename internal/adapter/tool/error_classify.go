package tool

import (
	"errors"
	"strings"

	"websearch/internal/domain"
)

// retryableSentinels lists domain errors for transient backend or network
// failures.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrProviderError,
	domain.ErrRateLimit,
	domain.ErrSearchFailed,
	domain.ErrLimitReached,
}

// permanentSentinels win over retryable ones found deeper in the chain.
var permanentSentinels = []error{
	domain.ErrInvalidInput,
	domain.ErrAuthInvalid,
	domain.ErrSSRFBlocked,
	domain.ErrPermissionDenied,
}

// retryablePatterns are matched case-insensitively against errors that carry
// no sentinel.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
}

// classifyToolError reports whether the tool call may succeed on retry.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}

	for _, sentinel := range permanentSentinels {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return false
}
