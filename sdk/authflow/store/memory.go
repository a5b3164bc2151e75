// Package store provides FingerprintStore implementations.
//
// Every store holds one slot per scope with last-write-wins semantics, keeps the
// fingerprint in its JSON wire form and reports an empty slot as
// authflow.ErrFingerprintNotFound.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/router-for-me/authflow/sdk/authflow"
)

// MemoryStore keeps the fingerprint in process memory. It suits hosts where the
// redirect is received by the same process that started the login.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements authflow.FingerprintStore.
func (s *MemoryStore) Get(_ context.Context) (*authflow.Fingerprint, error) {
	s.mu.Lock()
	payload := s.payload
	s.mu.Unlock()

	if payload == nil {
		return nil, fmt.Errorf("memory store: %w", authflow.ErrFingerprintNotFound)
	}
	return authflow.DecodeFingerprint(payload)
}

// Set implements authflow.FingerprintStore.
func (s *MemoryStore) Set(_ context.Context, fingerprint *authflow.Fingerprint) error {
	payload, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("memory store: %w", err)
	}
	s.mu.Lock()
	s.payload = payload
	s.mu.Unlock()
	return nil
}

// Clear implements authflow.FingerprintClearer.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.payload = nil
	s.mu.Unlock()
	return nil
}

// Take implements authflow.FingerprintTaker.
func (s *MemoryStore) Take(_ context.Context) (*authflow.Fingerprint, error) {
	s.mu.Lock()
	payload := s.payload
	s.payload = nil
	s.mu.Unlock()

	if payload == nil {
		return nil, fmt.Errorf("memory store: %w", authflow.ErrFingerprintNotFound)
	}
	return authflow.DecodeFingerprint(payload)
}
