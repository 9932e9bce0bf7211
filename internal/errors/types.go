package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Storage errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	ErrCodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"

	// Chat API errors. This set is closed: every failure coming back from
	// the chat platform is classified into exactly one of these.
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeForbidden  ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrCodeNetwork    ErrorCode = "NETWORK"
	ErrCodeChatAPI    ErrorCode = "CHAT_API"

	// Internal errors
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapRetryable wraps an error and marks it as retryable
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As finds the outermost AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Retryable
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetUserMessage extracts a user-friendly message from an error
func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}

// IsNotFound reports a "message/chat not found" class of failure
func IsNotFound(err error) bool {
	return err != nil && GetCode(err) == ErrCodeNotFound
}

// IsForbidden reports a missing-rights failure (forbidden or unauthorized)
func IsForbidden(err error) bool {
	return err != nil && GetCode(err) == ErrCodeForbidden
}

// IsBadRequest reports a request the platform rejected
func IsBadRequest(err error) bool {
	return err != nil && GetCode(err) == ErrCodeBadRequest
}

// IsNetwork reports a transient transport failure
func IsNetwork(err error) bool {
	return err != nil && GetCode(err) == ErrCodeNetwork
}

// IsChatAPI reports whether err came from the chat platform at all
func IsChatAPI(err error) bool {
	if err == nil {
		return false
	}
	switch GetCode(err) {
	case ErrCodeNotFound, ErrCodeForbidden, ErrCodeBadRequest, ErrCodeNetwork, ErrCodeChatAPI:
		return true
	default:
		return false
	}
}

// IsRejected reports an API rejection of the referenced chat: not found,
// forbidden or bad request
func IsRejected(err error) bool {
	return IsNotFound(err) || IsForbidden(err) || IsBadRequest(err)
}

// IsStorage reports a failure of the persistent store
func IsStorage(err error) bool {
	if err == nil {
		return false
	}
	switch GetCode(err) {
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return true
	default:
		return false
	}
}
