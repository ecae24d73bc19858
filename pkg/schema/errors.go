package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeCrypto         = "CRYPTO_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeEngine         = "ENGINE_ERROR"
	ErrCodeStore          = "STORE_ERROR"
	ErrCodeStoreRejected  = "STORE_REJECTED"
	ErrCodeIndex          = "INDEX_ERROR"
	ErrCodeIndexRejected  = "INDEX_REJECTED"
	ErrCodeTimeout        = "TIMEOUT_ERROR"
	ErrCodeRetryExhausted = "RETRY_EXHAUSTED"
)

// FlowError is the structured error type for all caseflow operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether an operation failing with this error is worth
// re-attempting. Provider rejections (bad request, access denied) and caller
// mistakes are not; transport and availability failures are.
func (e *FlowError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeValidation, ErrCodeCrypto, ErrCodeNotFound,
		ErrCodeStoreRejected, ErrCodeIndexRejected:
		return false
	default:
		return true
	}
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}
