package authflow

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// ScopeRead and ScopeWrite are always requested.
	ScopeRead  = "read"
	ScopeWrite = "write"
	// ScopeOfflineAccess asks the provider for a refresh token.
	ScopeOfflineAccess = "offline_access"

	// DefaultExchangeTimeout bounds the token endpoint request when no HTTP client is supplied.
	DefaultExchangeTimeout = 30 * time.Second
)

// ProviderConfig is the unvalidated description of an identity provider client.
type ProviderConfig struct {
	ClientID              string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURI           string
	// Scopes are requested in addition to read and write.
	Scopes []string
	// OfflineAccess requests offline_access so the provider issues a refresh token.
	OfflineAccess bool
}

// FlowConfig is a validated, immutable flow configuration.
type FlowConfig struct {
	clientID              string
	authorizationEndpoint *url.URL
	tokenEndpoint         *url.URL
	redirectURI           *url.URL
	scopes                []string
	httpClient            *http.Client
}

// FlowOption customizes a FlowConfig.
type FlowOption func(*FlowConfig)

// WithHTTPClient sets the client used for the token exchange.
// The client's redirect policy is replaced so the token endpoint cannot redirect the request.
func WithHTTPClient(client *http.Client) FlowOption {
	return func(c *FlowConfig) {
		if client == nil {
			return
		}
		cp := *client
		cp.CheckRedirect = noRedirects
		c.httpClient = &cp
	}
}

func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// ParseFlowConfig validates pc. Every failure is an ErrParseFailed.
func ParseFlowConfig(pc ProviderConfig, opts ...FlowOption) (*FlowConfig, error) {
	clientID := strings.TrimSpace(pc.ClientID)
	if clientID == "" {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("client id is required"))
	}
	authURL, err := parseEndpoint("authorization endpoint", pc.AuthorizationEndpoint)
	if err != nil {
		return nil, err
	}
	tokenURL, err := parseEndpoint("token endpoint", pc.TokenEndpoint)
	if err != nil {
		return nil, err
	}
	redirectURL, err := parseEndpoint("redirect uri", pc.RedirectURI)
	if err != nil {
		return nil, err
	}

	scopes := []string{ScopeRead, ScopeWrite}
	for _, s := range pc.Scopes {
		s = strings.TrimSpace(s)
		if s == "" || containsString(scopes, s) {
			continue
		}
		if strings.ContainsAny(s, " \t\n\"\\") {
			return nil, NewFlowError(ErrParseFailed, fmt.Errorf("invalid scope %q", s))
		}
		scopes = append(scopes, s)
	}
	if pc.OfflineAccess && !containsString(scopes, ScopeOfflineAccess) {
		scopes = append(scopes, ScopeOfflineAccess)
	}

	cfg := &FlowConfig{
		clientID:              clientID,
		authorizationEndpoint: authURL,
		tokenEndpoint:         tokenURL,
		redirectURI:           redirectURL,
		scopes:                scopes,
		httpClient: &http.Client{
			Timeout:       DefaultExchangeTimeout,
			CheckRedirect: noRedirects,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg, nil
}

func parseEndpoint(name, raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("%s is required", name))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("%s: %w", name, err))
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("%s must be an absolute URL: %q", name, raw))
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("%s has unsupported scheme %q", name, u.Scheme))
	}
	if u.Fragment != "" {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("%s must not contain a fragment", name))
	}
	return u, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ClientID returns the public client identifier.
func (c *FlowConfig) ClientID() string { return c.clientID }

// AuthorizationEndpoint returns a copy of the authorization endpoint URL.
func (c *FlowConfig) AuthorizationEndpoint() *url.URL { return cloneURL(c.authorizationEndpoint) }

// TokenEndpoint returns a copy of the token endpoint URL.
func (c *FlowConfig) TokenEndpoint() *url.URL { return cloneURL(c.tokenEndpoint) }

// RedirectURI returns a copy of the redirect URI.
func (c *FlowConfig) RedirectURI() *url.URL { return cloneURL(c.redirectURI) }

// Scopes returns the requested scopes in request order.
func (c *FlowConfig) Scopes() []string { return append([]string(nil), c.scopes...) }

// HTTPClient returns the client used for the token exchange.
func (c *FlowConfig) HTTPClient() *http.Client { return c.httpClient }

// oauth2Config maps the flow configuration onto a public client x/oauth2 config.
// No client secret is ever set; client_id travels in the request body.
func (c *FlowConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.clientID,
		RedirectURL: c.redirectURI.String(),
		Scopes:      c.Scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.authorizationEndpoint.String(),
			TokenURL:  c.tokenEndpoint.String(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	cp := *u
	if u.User != nil {
		user := *u.User
		cp.User = &user
	}
	return &cp
}
