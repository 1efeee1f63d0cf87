package realme

import "errors"

// ErrorCode classifies authentication failures. These codes are stable and
// intended for programmatic handling and log correlation; the user-facing
// message is always produced separately (see ErrorTranslator).
type ErrorCode string

const (
	ErrCodeInvalidIdentityValue  ErrorCode = "invalid_identity_value"
	ErrCodeFailedParsingIdentity ErrorCode = "failed_parsing_identity"
	ErrCodeMissingNameID         ErrorCode = "missing_nameid"
	ErrCodeMissingSessionIndex   ErrorCode = "missing_session_index"
	ErrCodeMissingAttributes     ErrorCode = "missing_attributes"
	ErrCodeNotAuthenticated      ErrorCode = "not_authenticated"
	ErrCodeAuthFailed            ErrorCode = "auth_failed"
	ErrCodeConfigInvalid         ErrorCode = "config_invalid"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// AuthError is a structured error with code, message, and optional cause.
// The message is operator-facing; it is never shown verbatim to end users.
type AuthError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// newAuthError creates an AuthError without a cause.
func newAuthError(code ErrorCode, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// wrapAuthError creates an AuthError wrapping a cause.
func wrapAuthError(code ErrorCode, message string, cause error) *AuthError {
	return &AuthError{Code: code, Message: message, Cause: cause}
}

// HasErrorCode reports whether err is an AuthError carrying the given code.
func HasErrorCode(err error, code ErrorCode) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}

// ErrNoResponse is returned by Engine.ParseResponse when the inbound request
// carries no SAMLResponse at all. This is a routine branch, not a failure:
// the visitor simply has not been to the identity provider yet, and the
// caller should initiate a login redirect.
var ErrNoResponse = errors.New("no SAML response present in request")
