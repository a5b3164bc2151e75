package authflow

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"golang.org/x/oauth2"
)

// csrfTokenBytes is the amount of entropy in a CSRF token.
const csrfTokenBytes = 32

// CSRFToken is the unguessable value sent as the state parameter of one login attempt.
type CSRFToken struct {
	secret string
}

// NewCSRFToken generates a fresh CSRF token from the system random source.
func NewCSRFToken() (CSRFToken, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return CSRFToken{}, NewFlowError(ErrRandomFailed, err)
	}
	return CSRFToken{secret: base64.RawURLEncoding.EncodeToString(b)}, nil
}

// CSRFTokenFromSecret rebuilds a token read back from storage.
func CSRFTokenFromSecret(secret string) CSRFToken {
	return CSRFToken{secret: secret}
}

// Secret returns the raw token value.
func (t CSRFToken) Secret() string {
	return t.secret
}

// Matches reports whether state equals the token, in constant time.
// An empty token or state never matches.
func (t CSRFToken) Matches(state CSRFTokenState) bool {
	if t.secret == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.secret), []byte(state)) == 1
}

// PKCEVerifier is the RFC 7636 code verifier of one login attempt.
// It is only ever sent to the token endpoint.
type PKCEVerifier struct {
	secret string
}

// NewPKCEVerifier generates a fresh 43 character verifier.
func NewPKCEVerifier() PKCEVerifier {
	return PKCEVerifier{secret: oauth2.GenerateVerifier()}
}

// PKCEVerifierFromSecret rebuilds a verifier read back from storage.
func PKCEVerifierFromSecret(secret string) PKCEVerifier {
	return PKCEVerifier{secret: secret}
}

// Secret returns the raw verifier value.
func (v PKCEVerifier) Secret() string {
	return v.secret
}

// Challenge returns the S256 code challenge, base64url(SHA256(verifier)) without padding.
func (v PKCEVerifier) Challenge() string {
	return oauth2.S256ChallengeFromVerifier(v.secret)
}

// Fingerprint pairs the CSRF token and PKCE verifier generated for one login attempt.
// It is persisted across the redirect and consumed once by the completer.
type Fingerprint struct {
	CSRFToken    CSRFToken
	PKCEVerifier PKCEVerifier
	// CreatedAt is when the attempt started.
	CreatedAt time.Time
	// ReturnTo is where the user agent was before the login started (optional).
	ReturnTo string
}

// NewFingerprint generates the secrets for a new login attempt.
func NewFingerprint() (*Fingerprint, error) {
	csrf, err := NewCSRFToken()
	if err != nil {
		return nil, err
	}
	return &Fingerprint{
		CSRFToken:    csrf,
		PKCEVerifier: NewPKCEVerifier(),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// ID returns a short, non-reversible identifier safe to log.
func (f *Fingerprint) ID() string {
	if f == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(f.CSRFToken.secret))
	return hex.EncodeToString(sum[:4])
}

// Equal reports whether both fingerprints carry the same secrets.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.CSRFToken.secret == other.CSRFToken.secret &&
		f.PKCEVerifier.secret == other.PKCEVerifier.secret &&
		f.ReturnTo == other.ReturnTo &&
		f.CreatedAt.Equal(other.CreatedAt)
}

// AuthorizationCode is the single-use code returned by the provider on the redirect.
type AuthorizationCode string

// CSRFTokenState is the state value returned by the provider on the redirect.
type CSRFTokenState string
