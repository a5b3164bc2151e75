package authflow

import "context"

// FingerprintStore persists the fingerprint of the in-flight login attempt across the
// redirect. A store is bound to one scope (a profile, a browser session) and holds a
// single slot: the last Set wins.
//
// Get reports an empty slot with an error wrapping ErrFingerprintNotFound and an
// undecodable payload with one wrapping ErrFingerprintCorrupt.
type FingerprintStore interface {
	Get(ctx context.Context) (*Fingerprint, error)
	Set(ctx context.Context, fingerprint *Fingerprint) error
}

// FingerprintClearer is implemented by stores that can empty their slot.
// The completer uses it to consume a fingerprint once its state has been verified.
type FingerprintClearer interface {
	Clear(ctx context.Context) error
}

// FingerprintTaker is implemented by stores that can read and empty their slot in one
// atomic step. When two redirects race for the same attempt, only one of them takes
// the fingerprint.
type FingerprintTaker interface {
	Take(ctx context.Context) (*Fingerprint, error)
}
