package authflow

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const redacted = "[REDACTED]"

// AccessToken wraps a bearer token. Its only way out is Secret; every formatting
// and encoding path renders a redacted placeholder.
type AccessToken struct {
	secret string
}

// NewAccessToken wraps value.
func NewAccessToken(value string) AccessToken {
	return AccessToken{secret: value}
}

// Secret returns the raw token.
func (t AccessToken) Secret() string { return t.secret }

// IsZero reports whether the token is empty.
func (t AccessToken) IsZero() bool { return t.secret == "" }

func (t AccessToken) String() string   { return redacted }
func (t AccessToken) GoString() string { return "authflow.AccessToken{" + redacted + "}" }

// MarshalJSON never emits the secret.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// TokenResponse is the parsed token endpoint response.
type TokenResponse struct {
	AccessToken  AccessToken `json:"access_token"`
	TokenType    string      `json:"token_type"`
	RefreshToken string      `json:"-"`
	IDToken      string      `json:"-"`
	Scope        string      `json:"scope,omitempty"`
	ExpiresIn    int64       `json:"expires_in,omitempty"`
	Expiry       time.Time   `json:"expiry,omitzero"`
}

// String summarizes the response without any token material.
func (r TokenResponse) String() string {
	return fmt.Sprintf("TokenResponse{TokenType: %q, Scope: %q, Expiry: %s, RefreshToken: %t, IDToken: %t}",
		r.TokenType, r.Scope, r.Expiry.Format(time.RFC3339), r.RefreshToken != "", r.IDToken != "")
}

// HasRefreshToken reports whether the provider issued a refresh token.
func (r *TokenResponse) HasRefreshToken() bool {
	return r != nil && r.RefreshToken != ""
}

func tokenResponseFromOAuth2(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  NewAccessToken(tok.AccessToken),
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		Expiry:       tok.Expiry,
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = v
	}
	if v, ok := tok.Extra("scope").(string); ok {
		resp.Scope = v
	}
	return resp
}
