package authflow

import (
	"fmt"
	"net/url"
	"strings"
)

// RedirectResult holds the parameters the provider appended to the redirect URI.
type RedirectResult struct {
	Code  AuthorizationCode
	State CSRFTokenState
	// Error and ErrorDescription are set when the provider refused the request.
	Error            string
	ErrorDescription string
}

// IsRedirect reports whether u carries authorization response parameters.
func IsRedirect(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Has("code") || q.Has("state") || q.Has("error")
}

// ParseRedirectQuery extracts the authorization response from query values.
func ParseRedirectQuery(q url.Values) RedirectResult {
	return RedirectResult{
		Code:             AuthorizationCode(q.Get("code")),
		State:            CSRFTokenState(q.Get("state")),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Err converts a provider error or an incomplete response into a FlowError.
func (r RedirectResult) Err() error {
	if r.Error != "" {
		detail := r.Error
		if r.ErrorDescription != "" {
			detail = fmt.Sprintf("%s: %s", r.Error, r.ErrorDescription)
		}
		return newFlowErrorDetail(ErrAuthorizationDenied, detail, nil)
	}
	var missing []string
	if r.Code == "" {
		missing = append(missing, "code")
	}
	if r.State == "" {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		return newFlowErrorDetail(ErrRedirectIncomplete, "missing "+strings.Join(missing, " and "), nil)
	}
	return nil
}

// ReadRedirect extracts the authorization code and state from the post-redirect URL.
func ReadRedirect(u *url.URL) (AuthorizationCode, CSRFTokenState, error) {
	if u == nil {
		return "", "", newFlowErrorDetail(ErrRedirectIncomplete, "no redirect URL", nil)
	}
	res := ParseRedirectQuery(u.Query())
	if err := res.Err(); err != nil {
		return "", "", err
	}
	return res.Code, res.State, nil
}

// ReadRedirectString parses raw and calls ReadRedirect.
func ReadRedirectString(raw string) (AuthorizationCode, CSRFTokenState, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", NewFlowError(ErrParseFailed, err)
	}
	return ReadRedirect(u)
}

// URL rebuilds the redirect URL on base with r's parameters.
func (r RedirectResult) URL(base *url.URL) *url.URL {
	u := &url.URL{}
	if base != nil {
		cp := *base
		u = &cp
	}
	q := url.Values{}
	if r.Code != "" {
		q.Set("code", string(r.Code))
	}
	if r.State != "" {
		q.Set("state", string(r.State))
	}
	if r.Error != "" {
		q.Set("error", r.Error)
	}
	if r.ErrorDescription != "" {
		q.Set("error_description", r.ErrorDescription)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u
}
