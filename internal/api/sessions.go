package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/router-for-me/authflow/internal/metrics"
	"github.com/router-for-me/authflow/internal/storage"
	"github.com/router-for-me/authflow/sdk/authflow"
)

var errNoRequestStore = errors.New("no fingerprint store bound to request")

type requestStoreKey struct{}

func withRequestStore(ctx context.Context, st storage.Store) context.Context {
	return context.WithValue(ctx, requestStoreKey{}, st)
}

// requestStore forwards to the store bound to the current request. Providers outlive
// requests, while some backends (cookies) only exist for one request.
type requestStore struct{}

func (requestStore) current(ctx context.Context) (storage.Store, error) {
	st, ok := ctx.Value(requestStoreKey{}).(storage.Store)
	if !ok || st == nil {
		return nil, errNoRequestStore
	}
	return st, nil
}

func (s requestStore) Get(ctx context.Context) (*authflow.Fingerprint, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return st.Get(ctx)
}

func (s requestStore) Set(ctx context.Context, fingerprint *authflow.Fingerprint) error {
	st, err := s.current(ctx)
	if err != nil {
		return err
	}
	return st.Set(ctx, fingerprint)
}

func (s requestStore) Clear(ctx context.Context) error {
	st, err := s.current(ctx)
	if err != nil {
		return err
	}
	return st.Clear(ctx)
}

// Take uses the backend's atomic take when it has one.
func (s requestStore) Take(ctx context.Context) (*authflow.Fingerprint, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if taker, ok := st.(authflow.FingerprintTaker); ok {
		return taker.Take(ctx)
	}
	fingerprint, err := st.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err = st.Clear(ctx); err != nil {
		return nil, err
	}
	return fingerprint, nil
}

type sessionEntry struct {
	provider *authflow.Provider
	flow     *authflow.FlowConfig
	lastSeen time.Time
}

// sessionRegistry maps browser session IDs to their Provider.
type sessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{entries: make(map[string]*sessionEntry), now: time.Now}
}

// get returns the provider of id, creating one when the session is new or was created
// under a different flow configuration.
func (r *sessionRegistry) get(id string, flow *authflow.FlowConfig, newProvider func(*authflow.FlowConfig) (*authflow.Provider, error)) (*authflow.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok && e.flow == flow {
		e.lastSeen = r.now()
		return e.provider, nil
	}
	p, err := newProvider(flow)
	if err != nil {
		return nil, err
	}
	r.entries[id] = &sessionEntry{provider: p, flow: flow, lastSeen: r.now()}
	metrics.SetActiveSessions(len(r.entries))
	return p, nil
}

// peek returns the provider of id without creating one.
func (r *sessionRegistry) peek(id string) (*authflow.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.provider, true
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	metrics.SetActiveSessions(len(r.entries))
}

// sweep drops sessions idle for longer than ttl and returns their IDs.
func (r *sessionRegistry) sweep(ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-ttl)
	var removed []string
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	metrics.SetActiveSessions(len(r.entries))
	return removed
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
