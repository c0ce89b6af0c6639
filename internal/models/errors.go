package models

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeValidation ErrorType = "validation"
)

// Error codes surfaced to callers. Individual agent failures never carry one of
// these out of the orchestrator; only the request-level codes do.
const (
	CodeAgentTimeout         = "AGENT_TIMEOUT"
	CodeAgentInvocationError = "AGENT_INVOCATION_ERROR"
	CodeNoApplicableAgent    = "NO_APPLICABLE_AGENT"
	CodeNoUsableOutput       = "NO_USABLE_OUTPUT"
)

type PipelineError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Type     ErrorType      `json:"type"`
	Cause    error          `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so sentinels compare across wrapped copies.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

func (e *PipelineError) WithCause(cause error) *PipelineError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *PipelineError) WithMetadata(key string, value any) *PipelineError {
	clone := *e
	clone.Metadata = make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		clone.Metadata[k] = v
	}
	clone.Metadata[key] = value
	return &clone
}

func newError(errType ErrorType, code, message string) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
		Type:    errType,
	}
}

func NewExternalError(code, message string) *PipelineError {
	return newError(ErrorTypeExternal, code, message)
}

func NewInternalError(code, message string) *PipelineError {
	return newError(ErrorTypeInternal, code, message)
}

func NewTimeoutError(code, message string) *PipelineError {
	return newError(ErrorTypeTimeout, code, message)
}

func NewValidationError(code, message string) *PipelineError {
	return newError(ErrorTypeValidation, code, message)
}

func WrapExternalError(service string, err error) *PipelineError {
	return NewExternalError(CodeAgentInvocationError,
		fmt.Sprintf("%s collaborator call failed", service)).WithCause(err)
}

var (
	ErrNoApplicableAgent = NewValidationError(CodeNoApplicableAgent, "prompt matched no agent trigger and no always-on agent exists")
	ErrNoUsableOutput    = NewInternalError(CodeNoUsableOutput, "no agent produced output")
)
