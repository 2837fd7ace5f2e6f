package domain

import (
	"errors"
	"fmt"
)

// Category sentinels shared by every subsystem.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the orchestration pipeline.
var (
	ErrConfigLoad     = fmt.Errorf("failed to load configuration")
	ErrConfiguration  = fmt.Errorf("invalid system configuration")
	ErrSystemNotFound = fmt.Errorf("system not found")
	ErrRouting        = fmt.Errorf("routing decision could not be parsed")
	ErrRefinement     = fmt.Errorf("response refinement failed")
	ErrKBFetch        = fmt.Errorf("knowledge base fetch failed")
	ErrCircuitOpen    = fmt.Errorf("circuit open")

	// Tool failures. These never escape the dispatch loop; they are
	// rendered into ToolResult.Error with their kind preserved.
	ErrToolNotFound   = fmt.Errorf("tool not found")
	ErrToolParameter  = fmt.Errorf("missing parameters")
	ErrToolHTTP       = fmt.Errorf("tool http request failed")
	ErrToolValidation = fmt.Errorf("tool request rejected")
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid    = fmt.Errorf("authentication failed")
	ErrBlockedAddress = fmt.Errorf("address not allowed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Route")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for API responses and logs.
type ErrorCode string

const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeDuplicate      ErrorCode = "DUPLICATE"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeProviderError  ErrorCode = "PROVIDER_ERROR"
	CodeConfigLoad     ErrorCode = "CONFIG_LOAD"
	CodeConfiguration  ErrorCode = "CONFIGURATION"
	CodeSystemNotFound ErrorCode = "SYSTEM_NOT_FOUND"
	CodeRouting        ErrorCode = "ROUTING"
	CodeRefinement     ErrorCode = "REFINEMENT"
	CodeKBFetch        ErrorCode = "KB_FETCH"
	CodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	CodeToolNotFound   ErrorCode = "TOOL_NOT_FOUND"
	CodeToolParameter  ErrorCode = "TOOL_PARAMETER"
	CodeToolHTTP       ErrorCode = "TOOL_HTTP"
	CodeToolValidation ErrorCode = "TOOL_VALIDATION"
	CodeRateLimit      ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid    ErrorCode = "AUTH_INVALID"
	CodeBlockedAddress ErrorCode = "BLOCKED_ADDRESS"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:       CodeNotFound,
	ErrDuplicate:      CodeDuplicate,
	ErrTimeout:        CodeTimeout,
	ErrInvalidInput:   CodeInvalidInput,
	ErrProviderError:  CodeProviderError,
	ErrConfigLoad:     CodeConfigLoad,
	ErrConfiguration:  CodeConfiguration,
	ErrSystemNotFound: CodeSystemNotFound,
	ErrRouting:        CodeRouting,
	ErrRefinement:     CodeRefinement,
	ErrKBFetch:        CodeKBFetch,
	ErrCircuitOpen:    CodeCircuitOpen,
	ErrToolNotFound:   CodeToolNotFound,
	ErrToolParameter:  CodeToolParameter,
	ErrToolHTTP:       CodeToolHTTP,
	ErrToolValidation: CodeToolValidation,
	ErrRateLimit:      CodeRateLimit,
	ErrAuthInvalid:    CodeAuthInvalid,
	ErrBlockedAddress: CodeBlockedAddress,
}

// errorCodeOrder fixes the lookup order for wrapped errors so that
// specific sentinels win over category sentinels.
var errorCodeOrder = []error{
	ErrSystemNotFound, ErrConfiguration, ErrRouting, ErrRefinement, ErrKBFetch,
	ErrCircuitOpen, ErrToolNotFound, ErrToolParameter, ErrToolHTTP, ErrToolValidation,
	ErrRateLimit, ErrAuthInvalid, ErrBlockedAddress, ErrConfigLoad,
	ErrNotFound, ErrDuplicate, ErrTimeout, ErrInvalidInput, ErrProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	for _, sentinel := range errorCodeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
