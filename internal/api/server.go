// Package api provides the web host for the authorization code flow. Each browser session
// gets its own authflow.Provider; /login dispatches the browser to the identity provider
// and /callback completes the flow.
package api

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/router-for-me/authflow/internal/config"
	apperrors "github.com/router-for-me/authflow/internal/errors"
	"github.com/router-for-me/authflow/internal/logging"
	"github.com/router-for-me/authflow/internal/metrics"
	"github.com/router-for-me/authflow/internal/storage"
	"github.com/router-for-me/authflow/sdk/authflow"
	log "github.com/sirupsen/logrus"
)

const (
	sessionCookieName = "authflow_session"
	sessionIdleTTL    = time.Hour
	sweepInterval     = 5 * time.Minute
	bouncedParam      = "bounced"
)

const bouncePage = `<!doctype html><html><head><meta name="referrer" content="no-referrer">` +
	`<meta http-equiv="refresh" content="0;url=%[1]s"></head>` +
	`<body><a href="%[1]s">Continue</a></body></html>`

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithMiddleware appends engine middleware after the built-in logging and recovery.
func WithMiddleware(mw ...gin.HandlerFunc) ServerOption {
	return func(s *Server) {
		s.extraMiddleware = append(s.extraMiddleware, mw...)
	}
}

// Server is the authflow web host.
type Server struct {
	engine *gin.Engine
	server *http.Server

	// cfgHolder and flowHolder provide race-safe snapshots across config reloads.
	cfgHolder  atomic.Value
	flowHolder atomic.Value

	backend  *storage.Backend
	sessions *sessionRegistry

	extraMiddleware []gin.HandlerFunc
}

// NewServer creates the web host. backend supplies the fingerprint stores.
func NewServer(cfg *config.Config, backend *storage.Backend, opts ...ServerOption) (*Server, error) {
	if cfg == nil || backend == nil {
		return nil, errors.New("config and storage backend are required")
	}
	flow, err := cfg.FlowConfig()
	if err != nil {
		return nil, err
	}

	s := &Server{
		backend:  backend,
		sessions: newSessionRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfgHolder.Store(cfg)
	s.flowHolder.Store(flow)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.SetEnabled(cfg.Metrics.Enabled)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(metrics.PrometheusMiddleware())
	engine.Use(s.extraMiddleware...)
	s.engine = engine
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes(cfg *config.Config) {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/login", s.handleLogin)
	s.engine.GET("/callback", s.handleCallback)
	s.engine.POST("/logout", s.handleLogout)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/me", s.handleMe)
	s.engine.GET("/healthz", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = config.DefaultMetricsPath
	}
	s.engine.GET(metricsPath, func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		metrics.Handler()(c)
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving. It blocks until the server is stopped.
func (s *Server) Start() error {
	log.Infof("authflow web host listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("Stopping web host...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// SweepSessions drops idle sessions every interval until ctx is done.
func (s *Server) SweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.sessions.sweep(sessionIdleTTL) {
				s.backend.Forget(id)
			}
		}
	}
}

// UpdateConfig applies a reloaded configuration. A changed provider section starts new
// sessions on their next request; an invalid one is rejected and the old one kept.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	flow, err := cfg.FlowConfig()
	if err != nil {
		log.Warnf("ignoring reloaded config with invalid provider section: %v", err)
		return
	}
	old := s.getConfig()
	s.cfgHolder.Store(cfg)
	if old == nil || !sameProvider(old.Provider, cfg.Provider) {
		s.flowHolder.Store(flow)
		log.Info("provider configuration changed, new logins use the updated settings")
	}
	metrics.SetEnabled(cfg.Metrics.Enabled)
	logging.SetLogLevel(cfg.LogLevel)
}

func sameProvider(a, b config.ProviderConfig) bool {
	return a.ClientID == b.ClientID &&
		a.AuthorizationEndpoint == b.AuthorizationEndpoint &&
		a.TokenEndpoint == b.TokenEndpoint &&
		a.RedirectURI == b.RedirectURI &&
		strings.Join(a.Scopes, " ") == strings.Join(b.Scopes, " ") &&
		a.OfflineAccess == b.OfflineAccess &&
		a.TimeoutSeconds == b.TimeoutSeconds &&
		a.MaxAttemptAgeSeconds == b.MaxAttemptAgeSeconds
}

func (s *Server) getConfig() *config.Config {
	if v, ok := s.cfgHolder.Load().(*config.Config); ok {
		return v
	}
	return nil
}

func (s *Server) getFlow() *authflow.FlowConfig {
	if v, ok := s.flowHolder.Load().(*authflow.FlowConfig); ok {
		return v
	}
	return nil
}

func (s *Server) newProvider(flow *authflow.FlowConfig) (*authflow.Provider, error) {
	return authflow.NewProvider(flow, requestStore{}, authflow.RedirectDispatcher{Status: http.StatusSeeOther},
		authflow.WithExchangeOptions(s.getConfig().ExchangeOptions()...))
}

// sessionID returns the browser's session ID, issuing one when create is set.
func (s *Server) sessionID(c *gin.Context, create bool) (string, bool) {
	if id, err := c.Cookie(sessionCookieName); err == nil {
		if _, errParse := uuid.Parse(id); errParse == nil {
			return id, true
		}
	}
	if !create {
		return "", false
	}
	id := uuid.NewString()
	cfg := s.getConfig()
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   !cfg.Store.InsecureCookie,
		// Lax so the session survives the top-level redirect back from the provider.
		SameSite: http.SameSiteLaxMode,
	})
	return id, true
}

// requestContext binds the session's fingerprint store and the navigation target.
func (s *Server) requestContext(c *gin.Context, id string) (context.Context, error) {
	st, err := s.backend.ForScope(id, c.Writer, c.Request)
	if err != nil {
		return nil, err
	}
	ctx := withRequestStore(c.Request.Context(), st)
	return authflow.WithNavigationTarget(ctx, c.Writer, c.Request), nil
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	appErr := apperrors.FromFlowError(err)
	_ = c.Error(err)
	log.WithFields(log.Fields{
		"kind":       appErr.Code,
		"request_id": logging.GetGinRequestID(c),
	}).Warnf("flow request failed: %v", err)
	c.Header("Cache-Control", "no-store")
	c.Data(appErr.HTTPStatusCode, "application/json; charset=utf-8", appErr.ToJSON())
	c.Abort()
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.String(http.StatusOK, "authflow web host\n\nGET  /login   sign in\nGET  /status  session state\nPOST /logout  sign out\n")
}

func (s *Server) handleLogin(c *gin.Context) {
	id, _ := s.sessionID(c, true)
	provider, err := s.sessions.get(id, s.getFlow(), s.newProvider)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	ctx, err := s.requestContext(c, id)
	if err != nil {
		s.abortWithError(c, authflow.NewFlowError(authflow.ErrFingerprintSetFailed, err))
		return
	}

	var opts []authflow.RequestOption
	if rt := safeReturnTo(c.Query("return_to")); rt != "" {
		opts = append(opts, authflow.WithReturnTo(rt))
	}
	if err = provider.Login(ctx, opts...); err != nil {
		s.abortWithError(c, err)
	}
}

// safeReturnTo accepts only same-origin absolute paths.
func safeReturnTo(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	return raw
}

func (s *Server) handleCallback(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Referrer-Policy", "no-referrer")

	// SameSite=Strict fingerprint cookies are withheld on the cross-site redirect from the
	// provider. Re-navigating from our own page makes the request same-site.
	if s.backend.PerRequest() && c.Query(bouncedParam) == "" && authflow.IsRedirect(c.Request.URL) {
		q := c.Request.URL.Query()
		q.Set(bouncedParam, "1")
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(c.Writer, bouncePage, html.EscapeString(c.Request.URL.Path+"?"+q.Encode()))
		return
	}

	id, ok := s.sessionID(c, false)
	if !ok {
		s.abortWithError(c, authflow.NewFlowError(authflow.ErrFingerprintGetFailed, authflow.ErrFingerprintNotFound))
		return
	}
	// The pending attempt lives in the fingerprint store, so a session this process has
	// not seen (after a restart or on another replica) still completes.
	provider, err := s.sessions.get(id, s.getFlow(), s.newProvider)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	ctx, err := s.requestContext(c, id)
	if err != nil {
		s.abortWithError(c, authflow.NewFlowError(authflow.ErrFingerprintGetFailed, err))
		return
	}

	handled, err := provider.HandleRedirect(ctx, c.Request.URL)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !handled {
		s.abortWithError(c, authflow.NewFlowError(authflow.ErrRedirectIncomplete, nil))
		return
	}

	target := provider.ReturnTo()
	if target == "" {
		target = "/status"
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (s *Server) handleLogout(c *gin.Context) {
	id, ok := s.sessionID(c, false)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if provider, found := s.sessions.peek(id); found {
		ctx, err := s.requestContext(c, id)
		if err == nil {
			err = provider.Logout(ctx)
		}
		if err != nil {
			log.Warnf("logout could not clear the pending login: %v", err)
		}
	}
	s.sessions.remove(id)
	s.backend.Forget(id)
	http.SetCookie(c.Writer, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	status := authflow.Status{State: authflow.StateUnauthenticated.String()}
	if id, ok := s.sessionID(c, false); ok {
		if provider, found := s.sessions.peek(id); found {
			status = provider.Status()
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleMe(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	id, ok := s.sessionID(c, false)
	if ok {
		if provider, found := s.sessions.peek(id); found && provider.IsAuthenticated() {
			token := provider.Token()
			body := gin.H{"user": provider.User()}
			if token != nil {
				body["token_type"] = token.TokenType
				body["scope"] = token.Scope
				if !token.Expiry.IsZero() {
					body["expiry"] = token.Expiry.UTC().Format(time.RFC3339)
				}
			}
			c.JSON(http.StatusOK, body)
			return
		}
	}
	c.JSON(http.StatusUnauthorized, apperrors.New(http.StatusUnauthorized, "unauthenticated", "not signed in", nil))
}
