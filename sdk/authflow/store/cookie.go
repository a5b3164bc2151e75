package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/router-for-me/authflow/sdk/authflow"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	cookieKeyInfo    = "authflow fingerprint cookie v1"
	cookieNonceSize  = 24
	minCookieSecret  = 32
	DefaultCookieTTL = 10 * time.Minute
)

// CookieSealer encrypts and authenticates fingerprint cookies with NaCl secretbox.
// The box key is derived from the configured secret with HKDF-SHA256.
type CookieSealer struct {
	key [32]byte
}

// NewCookieSealer derives a sealing key from secret, which must be at least 32 bytes.
func NewCookieSealer(secret []byte) (*CookieSealer, error) {
	if len(secret) < minCookieSecret {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes", minCookieSecret)
	}
	s := &CookieSealer{}
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(cookieKeyInfo)), s.key[:]); err != nil {
		return nil, fmt.Errorf("derive cookie key: %w", err)
	}
	return s, nil
}

// Seal encrypts plaintext into a cookie-safe string.
func (s *CookieSealer) Seal(plaintext []byte) (string, error) {
	var nonce [cookieNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Tampered or foreign values fail.
func (s *CookieSealer) Open(value string) ([]byte, error) {
	box, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cookie: %w", err)
	}
	if len(box) < cookieNonceSize+secretbox.Overhead {
		return nil, errors.New("cookie too short")
	}
	var nonce [cookieNonceSize]byte
	copy(nonce[:], box[:cookieNonceSize])
	plaintext, ok := secretbox.Open(nil, box[cookieNonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("cookie authentication failed")
	}
	return plaintext, nil
}

// CookieOption customizes a CookieStore.
type CookieOption func(*CookieStore)

// WithCookieName overrides the cookie name (default authflow.DefaultStorageKey).
func WithCookieName(name string) CookieOption {
	return func(s *CookieStore) {
		if name != "" {
			s.name = name
		}
	}
}

// WithCookiePath scopes the cookie to path (default "/").
func WithCookiePath(path string) CookieOption {
	return func(s *CookieStore) {
		if path != "" {
			s.path = path
		}
	}
}

// WithCookieTTL sets the cookie lifetime.
func WithCookieTTL(ttl time.Duration) CookieOption {
	return func(s *CookieStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithInsecureCookie drops the Secure attribute, for plain-HTTP local development.
func WithInsecureCookie() CookieOption {
	return func(s *CookieStore) {
		s.secure = false
	}
}

// CookieStore keeps the fingerprint in a sealed HttpOnly, SameSite=Strict cookie on the
// user agent. It is bound to one request/response pair.
type CookieStore struct {
	sealer *CookieSealer
	w      http.ResponseWriter
	r      *http.Request
	name   string
	path   string
	ttl    time.Duration
	secure bool

	// pending is the payload written during this request; it shadows the request cookie.
	pending []byte
	cleared bool
}

// ForRequest returns a store reading cookies from r and writing them to w.
func (s *CookieSealer) ForRequest(w http.ResponseWriter, r *http.Request, opts ...CookieOption) *CookieStore {
	cs := &CookieStore{
		sealer: s,
		w:      w,
		r:      r,
		name:   authflow.DefaultStorageKey,
		path:   "/",
		ttl:    DefaultCookieTTL,
		secure: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cs)
		}
	}
	return cs
}

// Get implements authflow.FingerprintStore.
func (s *CookieStore) Get(_ context.Context) (*authflow.Fingerprint, error) {
	if s.pending != nil {
		return authflow.DecodeFingerprint(s.pending)
	}
	if s.cleared || s.r == nil {
		return nil, fmt.Errorf("cookie store: %w", authflow.ErrFingerprintNotFound)
	}
	c, err := s.r.Cookie(s.name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, fmt.Errorf("cookie store: %w", authflow.ErrFingerprintNotFound)
		}
		return nil, fmt.Errorf("cookie store: %w", err)
	}
	payload, err := s.sealer.Open(c.Value)
	if err != nil {
		return nil, fmt.Errorf("cookie store: %w: %v", authflow.ErrFingerprintCorrupt, err)
	}
	return authflow.DecodeFingerprint(payload)
}

// Set implements authflow.FingerprintStore.
func (s *CookieStore) Set(_ context.Context, fingerprint *authflow.Fingerprint) error {
	if s.w == nil {
		return errors.New("cookie store: no response writer")
	}
	payload, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("cookie store: %w", err)
	}
	value, err := s.sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("cookie store: %w", err)
	}
	http.SetCookie(s.w, s.cookie(value, int(s.ttl/time.Second)))
	s.pending = payload
	s.cleared = false
	return nil
}

// Clear implements authflow.FingerprintClearer by expiring the cookie.
func (s *CookieStore) Clear(_ context.Context) error {
	if s.w == nil {
		return errors.New("cookie store: no response writer")
	}
	http.SetCookie(s.w, s.cookie("", -1))
	s.pending = nil
	s.cleared = true
	return nil
}

func (s *CookieStore) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     s.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
