package authflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCallbackTimeout is how long WaitForRedirect waits when no timeout is given.
const DefaultCallbackTimeout = 5 * time.Minute

const callbackSuccessPage = "<html><body><h1>Authentication complete</h1><p>You can close this window and return to the application.</p></body></html>"

// CallbackServer is a loopback HTTP listener that receives the provider redirect for
// hosts without an address bar to read, such as command line tools.
type CallbackServer struct {
	addr       string
	path       string
	server     *http.Server
	listener   net.Listener
	resultChan chan RedirectResult
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// NewCallbackServer creates a server that listens on addr ("127.0.0.1:8085") and
// serves the redirect on path.
func NewCallbackServer(addr, path string) *CallbackServer {
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		addr:       addr,
		path:       path,
		resultChan: make(chan RedirectResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// NewCallbackServerForRedirect derives the listen address and path from a loopback redirect URI.
func NewCallbackServerForRedirect(redirectURI *url.URL) (*CallbackServer, error) {
	if redirectURI == nil {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("redirect uri is required"))
	}
	host := redirectURI.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("redirect uri %q is not a loopback address", redirectURI.String()))
	}
	port := redirectURI.Port()
	if port == "" {
		port = "80"
	}
	if host == "localhost" {
		host = "127.0.0.1"
	}
	return NewCallbackServer(net.JoinHostPort(host, port), redirectURI.Path), nil
}

// Start begins listening. The listener is bound before Start returns.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return NewFlowError(ErrCallbackServerFailed, fmt.Errorf("server is already running"))
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return NewFlowError(ErrCallbackServerFailed, fmt.Errorf("listen on %s: %w", s.addr, err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.listener = listener
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			select {
			case s.errorChan <- fmt.Errorf("callback server stopped: %w", errServe):
			default:
			}
		}
	}()

	log.Debugf("callback server listening on %s%s", listener.Addr(), s.path)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully stops the server.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil
	return err
}

// WaitForRedirect blocks until the redirect arrives, the timeout elapses or ctx ends.
// A timeout of zero uses DefaultCallbackTimeout.
func (s *CallbackServer) WaitForRedirect(ctx context.Context, timeout time.Duration) (RedirectResult, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return RedirectResult{}, NewFlowError(ErrCallbackServerFailed, err)
	case <-timer.C:
		return RedirectResult{}, NewFlowError(ErrCallbackTimeout, fmt.Errorf("no redirect after %s", timeout))
	case <-ctx.Done():
		return RedirectResult{}, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := ParseRedirectQuery(r.URL.Query())
	if err := result.Err(); err != nil {
		s.sendResult(result)
		http.Error(w, UserFriendlyMessage(err), http.StatusBadRequest)
		return
	}

	s.sendResult(result)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = fmt.Fprint(w, callbackSuccessPage)
}

func (s *CallbackServer) sendResult(result RedirectResult) {
	select {
	case s.resultChan <- result:
	default:
		log.Warn("redirect already received, dropping duplicate callback")
	}
}
