package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrSSRFBlocked        = fmt.Errorf("request to private/reserved IP blocked")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrSettingsInvalid    = fmt.Errorf("plugin settings invalid")
	ErrSearchFailed       = fmt.Errorf("web search failed")
	ErrFetchFailed        = fmt.Errorf("page fetch failed")
	ErrUnsupportedContent = fmt.Errorf("unsupported content type")
	ErrNoContent          = fmt.Errorf("no readable content")
	ErrCollectionNotFound = fmt.Errorf("vector memory collection not found")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")

	// Embedding / vector errors.
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed")
	ErrVectorStore     = fmt.Errorf("vector store operation failed")
	ErrVectorSearch    = fmt.Errorf("vector search failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Engine.Search")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "search", "extract"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"
	CodeSSRFBlocked        ErrorCode = "SSRF_BLOCKED"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeSettingsInvalid    ErrorCode = "SETTINGS_INVALID"
	CodeSearchFailed       ErrorCode = "SEARCH_FAILED"
	CodeFetchFailed        ErrorCode = "FETCH_FAILED"
	CodeUnsupportedContent ErrorCode = "UNSUPPORTED_CONTENT"
	CodeNoContent          ErrorCode = "NO_CONTENT"
	CodeCollectionNotFound ErrorCode = "COLLECTION_NOT_FOUND"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeEmbeddingFailed    ErrorCode = "EMBEDDING_FAILED"
	CodeVectorStore        ErrorCode = "VECTOR_STORE"
	CodeVectorSearch       ErrorCode = "VECTOR_SEARCH"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodePluginNotFound  ErrorCode = "PLUGIN_NOT_FOUND"
	CodePluginDuplicate ErrorCode = "PLUGIN_DUPLICATE"
	CodePluginPerm      ErrorCode = "PLUGIN_PERMISSION"
	CodeSearchTimeout   ErrorCode = "SEARCH_TIMEOUT"
	CodeFetchTimeout    ErrorCode = "FETCH_TIMEOUT"
	CodeSearchQuery     ErrorCode = "SEARCH_QUERY_INVALID"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrToolNotFound:       CodeToolNotFound,
	ErrToolFailure:        CodeToolFailure,
	ErrSSRFBlocked:        CodeSSRFBlocked,
	ErrConfigLoad:         CodeConfigLoad,
	ErrSettingsInvalid:    CodeSettingsInvalid,
	ErrSearchFailed:       CodeSearchFailed,
	ErrFetchFailed:        CodeFetchFailed,
	ErrUnsupportedContent: CodeUnsupportedContent,
	ErrNoContent:          CodeNoContent,
	ErrCollectionNotFound: CodeCollectionNotFound,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrEmbeddingFailed:    CodeEmbeddingFailed,
	ErrVectorStore:        CodeVectorStore,
	ErrVectorSearch:       CodeVectorSearch,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"plugin": CodePluginNotFound,
		"memory": CodeCollectionNotFound,
	},
	ErrDuplicate: {
		"plugin": CodePluginDuplicate,
	},
	ErrTimeout: {
		"search":  CodeSearchTimeout,
		"extract": CodeFetchTimeout,
	},
	ErrPermissionDenied: {
		"plugin": CodePluginPerm,
	},
	ErrInvalidInput: {
		"search": CodeSearchQuery,
		"plugin": CodeSettingsInvalid,
	},
	ErrProviderError: {
		"search":    CodeSearchFailed,
		"embedding": CodeEmbeddingFailed,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
