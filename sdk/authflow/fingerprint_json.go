package authflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultStorageKey is the key or slot name stores use when none is configured.
const DefaultStorageKey = "auth_app_state"

// fingerprintJSON is the persisted form of a Fingerprint.
type fingerprintJSON struct {
	CSRFToken    string `json:"csrf_token"`
	PKCEVerifier string `json:"pkce_verifier"`
	CreatedAt    string `json:"created_at,omitempty"`
	ReturnTo     string `json:"return_to,omitempty"`
}

// MarshalJSON encodes the fingerprint with both secrets as plain strings.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	raw := fingerprintJSON{
		CSRFToken:    f.CSRFToken.secret,
		PKCEVerifier: f.PKCEVerifier.secret,
		ReturnTo:     f.ReturnTo,
	}
	if !f.CreatedAt.IsZero() {
		raw.CreatedAt = f.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a persisted fingerprint. Both secrets are required.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var raw fingerprintJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.CSRFToken == "" {
		return fmt.Errorf("missing csrf_token")
	}
	if raw.PKCEVerifier == "" {
		return fmt.Errorf("missing pkce_verifier")
	}
	var createdAt time.Time
	if raw.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("invalid created_at: %w", err)
		}
		createdAt = t
	}
	*f = Fingerprint{
		CSRFToken:    CSRFTokenFromSecret(raw.CSRFToken),
		PKCEVerifier: PKCEVerifierFromSecret(raw.PKCEVerifier),
		CreatedAt:    createdAt,
		ReturnTo:     raw.ReturnTo,
	}
	return nil
}

// EncodeFingerprint serializes f for storage.
func EncodeFingerprint(f *Fingerprint) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("nil fingerprint")
	}
	return json.Marshal(f)
}

// DecodeFingerprint parses a stored payload. Any failure wraps ErrFingerprintCorrupt.
func DecodeFingerprint(data []byte) (*Fingerprint, error) {
	var f Fingerprint
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFingerprintCorrupt, err)
	}
	return &f, nil
}
