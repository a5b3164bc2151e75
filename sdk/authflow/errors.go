package authflow

import (
	"errors"
	"fmt"
)

// FlowError describes a failure in one step of the authorization code flow.
// Kinds are compared with errors.Is against the exported sentinels below.
type FlowError struct {
	// Kind is the stable machine-readable identifier of the failure.
	Kind string
	// Message is a short human-readable description.
	Message string
	// Code is the process exit code the CLI uses for this kind.
	Code int
	// Detail carries provider supplied text (token endpoint or redirect error), if any.
	Detail string
	// Cause is the underlying error.
	Cause error
}

var (
	// ErrParseFailed reports a malformed client id, endpoint or redirect URL.
	ErrParseFailed = &FlowError{Kind: "parse_failed", Message: "invalid flow configuration", Code: 2}
	// ErrRandomFailed reports that the system random source could not be read.
	ErrRandomFailed = &FlowError{Kind: "random_failed", Message: "failed to read random bytes", Code: 3}
	// ErrFingerprintSetFailed reports that the fingerprint could not be persisted.
	ErrFingerprintSetFailed = &FlowError{Kind: "fingerprint_set_failed", Message: "fingerprint set failed", Code: 4}
	// ErrFingerprintGetFailed reports that no usable fingerprint could be read.
	ErrFingerprintGetFailed = &FlowError{Kind: "fingerprint_get_failed", Message: "fingerprint get failed", Code: 5}
	// ErrFingerprintClearFailed reports that a consumed fingerprint could not be removed.
	ErrFingerprintClearFailed = &FlowError{Kind: "fingerprint_clear_failed", Message: "fingerprint clear failed", Code: 6}
	// ErrDispatchFailed reports that the user agent could not be sent to the authorization endpoint.
	ErrDispatchFailed = &FlowError{Kind: "dispatch_failed", Message: "dispatch failed", Code: 7}
	// ErrStateMismatch reports that the returned state does not match the stored CSRF token.
	ErrStateMismatch = &FlowError{Kind: "state_mismatch", Message: "state mismatch", Code: 8}
	// ErrTokenExchangeFailed reports a network failure or a rejection from the token endpoint.
	ErrTokenExchangeFailed = &FlowError{Kind: "token_exchange_failed", Message: "token exchange failed", Code: 9}
	// ErrAuthorizationDenied reports an error returned by the provider on the redirect.
	ErrAuthorizationDenied = &FlowError{Kind: "authorization_denied", Message: "authorization denied", Code: 10}
	// ErrRedirectIncomplete reports a redirect without a code or a state parameter.
	ErrRedirectIncomplete = &FlowError{Kind: "redirect_incomplete", Message: "redirect is missing code or state", Code: 11}
	// ErrCallbackTimeout reports that no redirect reached the callback server in time.
	ErrCallbackTimeout = &FlowError{Kind: "callback_timeout", Message: "timed out waiting for redirect", Code: 12}
	// ErrCallbackServerFailed reports that the loopback callback server could not run.
	ErrCallbackServerFailed = &FlowError{Kind: "callback_server_failed", Message: "callback server failed", Code: 13}
)

var (
	// ErrFingerprintNotFound is returned by stores when their slot is empty.
	ErrFingerprintNotFound = errors.New("fingerprint not found")
	// ErrFingerprintCorrupt is returned by stores when the stored payload cannot be decoded.
	ErrFingerprintCorrupt = errors.New("fingerprint corrupt")
	// ErrNoNavigationTarget is returned by RedirectDispatcher when the context carries no response to redirect.
	ErrNoNavigationTarget = errors.New("no navigation target in context")
	// ErrBrowserUnavailable is returned by BrowserDispatcher when no browser can be launched.
	ErrBrowserUnavailable = errors.New("no browser available")
)

// NewFlowError returns a copy of base wrapping cause.
func NewFlowError(base *FlowError, cause error) *FlowError {
	return &FlowError{
		Kind:    base.Kind,
		Message: base.Message,
		Code:    base.Code,
		Cause:   cause,
	}
}

// newFlowErrorDetail is NewFlowError with provider supplied text attached.
func newFlowErrorDetail(base *FlowError, detail string, cause error) *FlowError {
	e := NewFlowError(base, cause)
	e.Detail = detail
	return e
}

func (e *FlowError) Error() string {
	if e == nil {
		return "authflow: <nil>"
	}
	msg := "authflow: " + e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FlowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any FlowError of the same kind.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first FlowError in err's chain, or "" when there is none.
func KindOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// UserFriendlyMessage renders err for display to an end user.
func UserFriendlyMessage(err error) string {
	var fe *FlowError
	if !errors.As(err, &fe) {
		if err == nil {
			return ""
		}
		return fmt.Sprintf("Authentication failed: %v", err)
	}
	switch fe.Kind {
	case ErrParseFailed.Kind:
		return "The login configuration is invalid. Check the client id, endpoints and redirect URI."
	case ErrFingerprintSetFailed.Kind:
		return "Could not save the login attempt. Check that the state storage is writable."
	case ErrFingerprintGetFailed.Kind:
		return "No pending login was found for this session. Start the login again."
	case ErrDispatchFailed.Kind:
		return "Could not open the identity provider. Open the login URL manually."
	case ErrStateMismatch.Kind:
		return "The login response did not match this session and was rejected. Start the login again."
	case ErrTokenExchangeFailed.Kind:
		if fe.Detail != "" {
			return "The identity provider rejected the login: " + fe.Detail
		}
		return "Could not obtain a token from the identity provider."
	case ErrAuthorizationDenied.Kind:
		if fe.Detail != "" {
			return "Authorization was denied: " + fe.Detail
		}
		return "Authorization was denied."
	case ErrCallbackTimeout.Kind:
		return "Timed out waiting for the browser to return. Start the login again."
	default:
		return fe.Error()
	}
}
