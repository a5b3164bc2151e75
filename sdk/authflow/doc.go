// Package authflow implements the OAuth 2.0 authorization code flow with PKCE and a CSRF
// state check for public clients that cannot keep a client secret.
//
// A login is split across a redirect. DispatchCodeRequest generates a Fingerprint (CSRF
// token plus PKCE verifier), persists it in a FingerprintStore and sends the user agent
// to the authorization endpoint through a Dispatcher. When the provider redirects back,
// ReadRedirect extracts the code and state and ExchangeCodeForToken verifies the state,
// consumes the stored fingerprint and trades the code and verifier for a token.
//
// Provider wraps both halves in a small state machine for hosts that render login state.
// Store implementations live in the store subpackage.
package authflow
