package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"
)

// State is the authentication state of a Provider.
type State int

const (
	// StateUnauthenticated is the initial state and the state after Logout.
	StateUnauthenticated State = iota
	// StateAuthenticating is entered by Login and left when the redirect is handled.
	StateAuthenticating
	// StateAuthenticated means an access token is held.
	StateAuthenticated
	// StateError means the last attempt failed; Error returns the reason.
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of a Provider for rendering.
type Status struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	Loading       bool   `json:"loading"`
	User          *User  `json:"user,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// Provider drives one user's login through the authorization code flow and holds the result.
// It is safe for concurrent use. Concurrent Login calls share the store slot and the last
// write wins.
type Provider struct {
	cfg          *FlowConfig
	store        FingerprintStore
	dispatcher   Dispatcher
	exchangeOpts []ExchangeOption

	mu       sync.RWMutex
	state    State
	token    *TokenResponse
	user     *User
	err      error
	returnTo string
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithExchangeOptions passes opts to every token exchange the provider performs.
func WithExchangeOptions(opts ...ExchangeOption) ProviderOption {
	return func(p *Provider) {
		p.exchangeOpts = append(p.exchangeOpts, opts...)
	}
}

// NewProvider returns an unauthenticated provider.
func NewProvider(cfg *FlowConfig, store FingerprintStore, dispatcher Dispatcher, opts ...ProviderOption) (*Provider, error) {
	if cfg == nil {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("flow config is required"))
	}
	if store == nil || dispatcher == nil {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("store and dispatcher are required"))
	}
	p := &Provider{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Login starts a new attempt and dispatches the user agent to the provider.
// Any previously held token is dropped. On failure the provider enters StateError.
func (p *Provider) Login(ctx context.Context, opts ...RequestOption) error {
	p.mu.Lock()
	p.state = StateAuthenticating
	p.token = nil
	p.user = nil
	p.err = nil
	p.returnTo = ""
	p.mu.Unlock()

	if err := DispatchCodeRequest(ctx, p.cfg, p.store, p.dispatcher, opts...); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// HandleRedirect completes the attempt when u is the provider's redirect back to the
// application. It reports false and does nothing when u carries no authorization response.
func (p *Provider) HandleRedirect(ctx context.Context, u *url.URL) (bool, error) {
	if !IsRedirect(u) {
		return false, nil
	}

	p.mu.Lock()
	p.state = StateAuthenticating
	p.err = nil
	p.mu.Unlock()

	result := ParseRedirectQuery(u.Query())
	if err := result.Err(); err != nil {
		// Only an error answering our own request ends the pending attempt.
		if fp, errGet := p.store.Get(ctx); errGet == nil && fp != nil && fp.CSRFToken.Matches(result.State) {
			if errDiscard := p.discardFingerprint(ctx); errDiscard != nil {
				err = errors.Join(err, errDiscard)
			}
		}
		p.fail(err)
		return true, err
	}

	resp, fingerprint, err := exchangeCodeForToken(ctx, p.cfg, p.store, result.Code, result.State, p.exchangeOpts...)
	if err != nil {
		p.fail(err)
		return true, err
	}

	var user *User
	if resp.IDToken != "" {
		if user, err = UserFromIDToken(resp.IDToken); err != nil {
			log.Debugf("id token claims unavailable: %v", err)
			user = nil
		}
	}

	p.mu.Lock()
	p.state = StateAuthenticated
	p.token = resp
	p.user = user
	p.returnTo = fingerprint.ReturnTo
	p.mu.Unlock()
	return true, nil
}

// Logout forgets the token and any pending attempt. No revocation request is sent.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.state = StateUnauthenticated
	p.token = nil
	p.user = nil
	p.err = nil
	p.returnTo = ""
	p.mu.Unlock()

	return p.discardFingerprint(ctx)
}

func (p *Provider) discardFingerprint(ctx context.Context) error {
	clearer, ok := p.store.(FingerprintClearer)
	if !ok {
		return nil
	}
	if err := clearer.Clear(ctx); err != nil {
		return NewFlowError(ErrFingerprintClearFailed, err)
	}
	return nil
}

func (p *Provider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateError
	p.err = err
	p.token = nil
	p.user = nil
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// IsAuthenticated reports whether an access token is held.
func (p *Provider) IsAuthenticated() bool {
	return p.State() == StateAuthenticated
}

// IsLoading reports whether an attempt is in flight.
func (p *Provider) IsLoading() bool {
	return p.State() == StateAuthenticating
}

// Error returns the failure of the last attempt, or nil.
func (p *Provider) Error() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// User returns a copy of the signed-in user, or nil when unknown.
func (p *Provider) User() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// AccessToken returns the held access token.
func (p *Provider) AccessToken() (AccessToken, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil {
		return AccessToken{}, false
	}
	return p.token.AccessToken, true
}

// Token returns a copy of the full token response, or nil.
func (p *Provider) Token() *TokenResponse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil {
		return nil
	}
	t := *p.token
	return &t
}

// ReturnTo is the location recorded by WithReturnTo for the completed attempt.
func (p *Provider) ReturnTo() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.returnTo
}

// Status returns a snapshot of the provider.
func (p *Provider) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Status{
		State:         p.state.String(),
		Authenticated: p.state == StateAuthenticated,
		Loading:       p.state == StateAuthenticating,
	}
	if p.user != nil {
		u := *p.user
		st.User = &u
	}
	if p.err != nil {
		st.Error = UserFriendlyMessage(p.err)
		st.ErrorKind = KindOf(p.err)
	}
	return st
}
