package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/router-for-me/authflow/sdk/authflow"
	"github.com/tidwall/sjson"
)

// maskToken keeps a short prefix and suffix so tokens can be told apart in output.
func maskToken(secret string) string {
	if len(secret) <= 12 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func tokenForDisplay(token *authflow.TokenResponse, showToken bool) string {
	if token == nil || token.AccessToken.IsZero() {
		return ""
	}
	if showToken {
		return token.AccessToken.Secret()
	}
	return maskToken(token.AccessToken.Secret())
}

// resultJSON renders the login outcome. The access token is masked unless showToken is set;
// refresh and ID tokens are never included.
func resultJSON(status authflow.Status, token *authflow.TokenResponse, showToken bool) (string, error) {
	out := `{}`
	var err error
	set := func(path string, value interface{}) {
		if err != nil {
			return
		}
		out, err = sjson.Set(out, path, value)
	}

	set("state", status.State)
	set("authenticated", status.Authenticated)
	if status.User != nil {
		set("user.sub", status.User.Subject)
		if status.User.Name != "" {
			set("user.name", status.User.Name)
		}
		if status.User.Email != "" {
			set("user.email", status.User.Email)
		}
	}
	if status.Error != "" {
		set("error.kind", status.ErrorKind)
		set("error.message", status.Error)
	}
	if token != nil {
		set("token.access_token", tokenForDisplay(token, showToken))
		set("token.token_type", token.TokenType)
		if token.Scope != "" {
			set("token.scope", token.Scope)
		}
		if !token.Expiry.IsZero() {
			set("token.expiry", token.Expiry.UTC().Format(time.RFC3339))
		}
		set("token.has_refresh_token", token.HasRefreshToken())
	}
	if err != nil {
		return "", fmt.Errorf("render result: %w", err)
	}
	return out, nil
}

func renderResult(w io.Writer, status authflow.Status, token *authflow.TokenResponse, asJSON, showToken bool) error {
	if asJSON {
		out, err := resultJSON(status, token, showToken)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, out)
		return err
	}

	var b strings.Builder
	if name := status.User.DisplayName(); name != "" {
		fmt.Fprintf(&b, "Logged in as %s\n", name)
	} else {
		b.WriteString("Logged in\n")
	}
	if token != nil {
		fmt.Fprintf(&b, "Access token: %s\n", tokenForDisplay(token, showToken))
		if !token.Expiry.IsZero() {
			fmt.Fprintf(&b, "Expires:      %s\n", token.Expiry.Local().Format(time.RFC1123))
		}
		if token.HasRefreshToken() {
			b.WriteString("Refresh token issued\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ExitCode maps err onto the process exit status: the flow error's code, 130 for a
// cancelled login, or 1.
func ExitCode(err error) int {
	var fe *authflow.FlowError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
