// Package errors maps authflow failures onto HTTP responses for the web host.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/router-for-me/authflow/sdk/authflow"
)

// AppError is the JSON error body returned by the web host.
type AppError struct {
	// HTTPStatusCode is the HTTP status code to return.
	HTTPStatusCode int `json:"-"`
	// Code is the flow error kind, or an internal code for non-flow failures.
	Code string `json:"code"`
	// Message is the user-facing error message.
	Message string `json:"message"`
	// Details carries provider supplied text, if any.
	Details map[string]interface{} `json:"details,omitempty"`
	// Err is the underlying error (not marshaled to JSON).
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON returns the JSON byte representation of the error.
func (e *AppError) ToJSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// New creates a new AppError.
func New(statusCode int, code, message string, err error) *AppError {
	return &AppError{
		HTTPStatusCode: statusCode,
		Code:           code,
		Message:        message,
		Err:            err,
	}
}

// statusByKind maps flow error kinds to HTTP statuses. Failures caused by the browser's
// request are 4xx; failures of our own collaborators are 5xx.
var statusByKind = map[string]int{
	authflow.ErrParseFailed.Kind:            http.StatusInternalServerError,
	authflow.ErrRandomFailed.Kind:           http.StatusInternalServerError,
	authflow.ErrFingerprintSetFailed.Kind:   http.StatusInternalServerError,
	authflow.ErrFingerprintGetFailed.Kind:   http.StatusBadRequest,
	authflow.ErrFingerprintClearFailed.Kind: http.StatusInternalServerError,
	authflow.ErrDispatchFailed.Kind:         http.StatusInternalServerError,
	authflow.ErrStateMismatch.Kind:          http.StatusForbidden,
	authflow.ErrTokenExchangeFailed.Kind:    http.StatusBadGateway,
	authflow.ErrAuthorizationDenied.Kind:    http.StatusUnauthorized,
	authflow.ErrRedirectIncomplete.Kind:     http.StatusBadRequest,
	authflow.ErrCallbackTimeout.Kind:        http.StatusGatewayTimeout,
	authflow.ErrCallbackServerFailed.Kind:   http.StatusInternalServerError,
}

// FromFlowError converts err into an AppError. Errors that are not flow errors become
// a 500 with code "internal_error".
func FromFlowError(err error) *AppError {
	if err == nil {
		return nil
	}
	var fe *authflow.FlowError
	if !stderrors.As(err, &fe) {
		return New(http.StatusInternalServerError, "internal_error", "internal error", err)
	}
	status, ok := statusByKind[fe.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	appErr := New(status, fe.Kind, authflow.UserFriendlyMessage(err), err)
	if fe.Detail != "" {
		appErr.Details = map[string]interface{}{"provider": fe.Detail}
	}
	return appErr
}
