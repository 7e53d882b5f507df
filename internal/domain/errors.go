package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeCapacity         = "CAPACITY_ERROR"
)

// Not found errors
var (
	ErrKnowledgeNotFound = NewDomainError(ErrCodeNotFound, "knowledge item not found")
	ErrTaskNotFound      = NewDomainError(ErrCodeNotFound, "task not found")
	ErrChunkNotFound     = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrTenantNotFound    = NewDomainError(ErrCodeNotFound, "tenant not found")
	ErrAPIKeyNotFound    = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrTenantAlreadyExists    = NewDomainError(ErrCodeAlreadyExists, "tenant already exists")
	ErrKnowledgeAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "knowledge item already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Ingestion errors
var (
	// ErrCostExceedsCapacity marks a payload that can never be admitted: its
	// cost is larger than the pool's total budget. The task fails immediately
	// without entering the waiting queue.
	ErrCostExceedsCapacity = NewDomainError(ErrCodeCapacity, "payload cost exceeds pool capacity")
	ErrTaskNotRestartable  = NewDomainError(ErrCodeInvalidOperation, "task is not in a restartable state")
	ErrUnknownSourceType   = NewDomainError(ErrCodeValidation, "no loader registered for source type")
)
