package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrToolNotFound      = fmt.Errorf("tool not found")
	ErrPromptNotFound    = fmt.Errorf("prompt not found")
	ErrResourceNotFound  = fmt.Errorf("resource not found")
	ErrProviderNotFound  = fmt.Errorf("llm provider not found")
	ErrMaxIterations     = fmt.Errorf("agent reached max iterations")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrRosterLoad        = fmt.Errorf("failed to load provider roster")
	ErrProviderConnect   = fmt.Errorf("provider connection failed")
	ErrCapabilityListing = fmt.Errorf("capability listing failed")
	ErrToolFailure       = fmt.Errorf("tool execution failed")
	ErrReleaseFailed     = fmt.Errorf("resource release failed")
	ErrPaperNotFound     = fmt.Errorf("paper not found")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.ExecutePrompt")
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
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderError)
}

// ErrorCode is a machine-parseable error category for logs.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodePromptNotFound    ErrorCode = "PROMPT_NOT_FOUND"
	CodeResourceNotFound  ErrorCode = "RESOURCE_NOT_FOUND"
	CodeProviderNotFound  ErrorCode = "PROVIDER_NOT_FOUND"
	CodeMaxIterations     ErrorCode = "MAX_ITERATIONS"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeRosterLoad        ErrorCode = "ROSTER_LOAD"
	CodeProviderConnect   ErrorCode = "PROVIDER_CONNECT"
	CodeCapabilityListing ErrorCode = "CAPABILITY_LISTING"
	CodeToolFailure       ErrorCode = "TOOL_FAILURE"
	CodeReleaseFailed     ErrorCode = "RELEASE_FAILED"
	CodePaperNotFound     ErrorCode = "PAPER_NOT_FOUND"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// Specific sentinels are checked before category sentinels.
var errorCodeMap = []struct {
	err  error
	code ErrorCode
}{
	{ErrToolNotFound, CodeToolNotFound},
	{ErrPromptNotFound, CodePromptNotFound},
	{ErrResourceNotFound, CodeResourceNotFound},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrMaxIterations, CodeMaxIterations},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrRosterLoad, CodeRosterLoad},
	{ErrProviderConnect, CodeProviderConnect},
	{ErrCapabilityListing, CodeCapabilityListing},
	{ErrToolFailure, CodeToolFailure},
	{ErrReleaseFailed, CodeReleaseFailed},
	{ErrPaperNotFound, CodePaperNotFound},
	{ErrContextOverflow, CodeContextOverflow},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrNotFound, CodeNotFound},
	{ErrTimeout, CodeTimeout},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrProviderError, CodeProviderError},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It walks the error chain with errors.Is; CodeUnknown if nothing matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, m := range errorCodeMap {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
