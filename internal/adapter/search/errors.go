package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"websearch/internal/domain"
)

const maxSearchBodySize = 1024 * 1024 // 1MB

// StatusError is returned when a search endpoint answers with a non-2xx status.
type StatusError struct {
	Backend string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.Backend, e.Code, http.StatusText(e.Code))
}

// Unwrap classifies throttling and gateway failures for retry decisions.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusTooManyRequests:
		return domain.ErrRateLimit
	case e.Code == http.StatusRequestTimeout || e.Code == http.StatusGatewayTimeout:
		return domain.ErrTimeout
	case e.Code >= 500:
		return domain.ErrProviderError
	}
	return nil
}

// isRetryable reports whether a failed search attempt may succeed if repeated.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsRetryableError(err) || errors.Is(err, domain.ErrProviderError) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// wrapFailure converts a backend failure into the search subsystem's error.
func wrapFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewSubSystemError("search", op, domain.ErrSearchFailed, err.Error())
}
