// Package storage opens the fingerprint backend selected in the configuration and
// hands out per-scope stores. A scope is a CLI profile or a web session ID.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/authflow/internal/config"
	"github.com/router-for-me/authflow/sdk/authflow"
	"github.com/router-for-me/authflow/sdk/authflow/store"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidScope is returned for scopes that cannot safely name a slot.
var ErrInvalidScope = errors.New("invalid storage scope")

// ErrNoRequest is returned by the cookie backend when no request/response pair is supplied.
var ErrNoRequest = errors.New("cookie store requires an HTTP request")

var scopePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Store is a fingerprint store that can also be cleared.
type Store interface {
	authflow.FingerprintStore
	authflow.FingerprintClearer
}

// Backend hands out fingerprint stores for individual scopes.
type Backend struct {
	kind string
	scfg config.StoreConfig

	mu     sync.Mutex
	memory map[string]*store.MemoryStore

	sealer *store.CookieSealer
	sqlite *store.SQLiteDB
	redis  *redis.Client
	pg     *pgxpool.Pool
	object *minio.Client
}

// Open connects the backend named by cfg.Type.
func Open(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	b := &Backend{kind: strings.ToLower(strings.TrimSpace(cfg.Type)), scfg: cfg}
	if b.kind == "" {
		b.kind = config.StoreFile
	}

	var err error
	switch b.kind {
	case config.StoreMemory:
		b.memory = make(map[string]*store.MemoryStore)
	case config.StoreFile:
	case config.StoreCookie:
		b.sealer, err = store.NewCookieSealer([]byte(cfg.Secret))
	case config.StoreSQLite:
		path := cfg.Path
		if path == "" {
			path = "authflow.db"
		}
		b.sqlite, err = store.OpenSQLite(ctx, path)
	case config.StoreRedis:
		b.redis, err = store.NewRedisClient(ctx, cfg.RedisURL)
	case config.StorePostgres:
		b.pg, err = store.OpenPostgres(ctx, cfg.DSN)
	case config.StoreS3:
		var objCfg store.ObjectConfig
		objCfg, err = objectConfig(cfg)
		if err == nil {
			b.object, err = store.NewObjectClient(ctx, objCfg)
		}
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", b.kind, err)
	}
	log.Debugf("fingerprint store backend %s ready", b.kind)
	return b, nil
}

// objectConfig accepts endpoints with or without an http(s) scheme. A scheme overrides UseSSL.
func objectConfig(cfg config.StoreConfig) (store.ObjectConfig, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	useSSL := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return store.ObjectConfig{}, fmt.Errorf("parse object store endpoint %q: %w", cfg.Endpoint, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return store.ObjectConfig{}, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return store.ObjectConfig{}, fmt.Errorf("object store endpoint %q is missing host information", cfg.Endpoint)
		}
		endpoint = parsed.Host
	}
	return store.ObjectConfig{
		Endpoint:  strings.TrimRight(endpoint, "/"),
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		UseSSL:    useSSL,
	}, nil
}

// Kind returns the backend type.
func (b *Backend) Kind() string { return b.kind }

// PerRequest reports whether stores must be obtained per HTTP request (cookie backend).
func (b *Backend) PerRequest() bool { return b.kind == config.StoreCookie }

// ForScope returns the store for scope. w and r are only used by the cookie backend.
func (b *Backend) ForScope(scope string, w http.ResponseWriter, r *http.Request) (Store, error) {
	if !scopePattern.MatchString(scope) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	switch b.kind {
	case config.StoreMemory:
		b.mu.Lock()
		defer b.mu.Unlock()
		st, ok := b.memory[scope]
		if !ok {
			st = store.NewMemoryStore()
			b.memory[scope] = st
		}
		return st, nil
	case config.StoreFile:
		if b.scfg.Path == "" {
			path, err := store.DefaultFilePath(scope)
			if err != nil {
				return nil, err
			}
			return store.NewFileStore(path), nil
		}
		return store.NewFileStore(filepath.Join(b.scfg.Path, scope, authflow.DefaultStorageKey+".json")), nil
	case config.StoreCookie:
		if w == nil || r == nil {
			return nil, ErrNoRequest
		}
		var opts []store.CookieOption
		if ttl := b.scfg.StoreTTL(); ttl > 0 {
			opts = append(opts, store.WithCookieTTL(ttl))
		}
		if b.scfg.InsecureCookie {
			opts = append(opts, store.WithInsecureCookie())
		}
		return b.sealer.ForRequest(w, r, opts...), nil
	case config.StoreSQLite:
		return b.sqlite.Scope(scope), nil
	case config.StoreRedis:
		return store.NewRedisStore(b.redis, scope, b.scfg.StoreTTL()), nil
	case config.StorePostgres:
		return store.NewPostgresStore(b.pg, scope), nil
	case config.StoreS3:
		return store.NewObjectStore(b.object, b.scfg.Bucket, scope), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", b.kind)
	}
}

// Forget drops the in-memory slot of scope. Other backends rely on Clear or expiry.
func (b *Backend) Forget(scope string) {
	if b.kind != config.StoreMemory {
		return
	}
	b.mu.Lock()
	delete(b.memory, scope)
	b.mu.Unlock()
}

// Close releases backend connections.
func (b *Backend) Close() error {
	var errs []error
	if b.sqlite != nil {
		errs = append(errs, b.sqlite.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.pg != nil {
		b.pg.Close()
	}
	return errors.Join(errs...)
}
