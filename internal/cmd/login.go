package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/router-for-me/authflow/internal/config"
	"github.com/router-for-me/authflow/internal/storage"
	"github.com/router-for-me/authflow/internal/tui"
	"github.com/router-for-me/authflow/sdk/authflow"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const callbackShutdownTimeout = 2 * time.Second

// LoginOptions contains options for the login commands.
type LoginOptions struct {
	// Profile names the fingerprint slot, so several identities can log in side by side.
	Profile string
	// NoBrowser prints the authorization URL instead of launching a browser.
	NoBrowser bool
	// Paste reads the redirect URL from In instead of running a loopback listener.
	Paste bool
	// TUI shows the interactive progress screen.
	TUI bool
	// JSON renders the result as JSON.
	JSON bool
	// ShowToken prints the raw access token.
	ShowToken bool

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (o *LoginOptions) normalize() {
	if o.Profile == "" {
		o.Profile = "default"
	}
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Err == nil {
		o.Err = os.Stderr
	}
}

// session bundles what every command needs: the validated flow configuration and the
// fingerprint slot of the selected profile.
type session struct {
	cfg     *config.Config
	flow    *authflow.FlowConfig
	backend *storage.Backend
	store   storage.Store
}

func openSession(ctx context.Context, cfg *config.Config, profile string) (*session, error) {
	flow, err := cfg.FlowConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Type == config.StoreCookie {
		return nil, authflow.NewFlowError(authflow.ErrParseFailed, errors.New("the cookie store is only available to the web host"))
	}
	backend, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, authflow.NewFlowError(authflow.ErrFingerprintSetFailed, err)
	}
	st, err := backend.ForScope(profile, nil, nil)
	if err != nil {
		_ = backend.Close()
		return nil, authflow.NewFlowError(authflow.ErrParseFailed, err)
	}
	return &session{cfg: cfg, flow: flow, backend: backend, store: st}, nil
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		log.Warnf("failed to close fingerprint store: %v", err)
	}
}

// DoLogin runs the whole flow: it dispatches the browser, receives the redirect on the
// loopback listener (or from pasted input) and exchanges the code for a token.
func DoLogin(ctx context.Context, cfg *config.Config, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	options.normalize()
	if options.TUI && options.Paste {
		return authflow.NewFlowError(authflow.ErrParseFailed, errors.New("the TUI cannot be combined with pasted redirects"))
	}

	s, err := openSession(ctx, cfg, options.Profile)
	if err != nil {
		return err
	}
	defer s.Close()

	if !options.TUI {
		status, token, errLogin := s.login(ctx, options, nil)
		if errLogin != nil {
			return errLogin
		}
		return renderResult(options.Out, status, token, options.JSON, options.ShowToken)
	}

	var token *authflow.TokenResponse
	status, err := tui.RunLogin(ctx, func(ctx context.Context, progress func(tui.Progress)) (authflow.Status, error) {
		st, tok, errLogin := s.login(ctx, options, progress)
		token = tok
		return st, errLogin
	}, authflow.NewBrowserDispatcher(), options.In, options.Err)
	if err != nil {
		return err
	}
	return renderResult(options.Out, status, token, options.JSON, options.ShowToken)
}

func (s *session) login(ctx context.Context, options *LoginOptions, progress func(tui.Progress)) (authflow.Status, *authflow.TokenResponse, error) {
	report := func(p tui.Progress) {
		if progress != nil {
			progress(p)
		}
	}
	report(tui.Progress{Phase: tui.PhaseStarting})

	provider, err := authflow.NewProvider(s.flow, s.store, s.dispatcher(options, report),
		authflow.WithExchangeOptions(s.cfg.ExchangeOptions()...))
	if err != nil {
		return authflow.Status{}, nil, err
	}

	var redirect *url.URL
	if options.Paste {
		if err = provider.Login(ctx); err != nil {
			return provider.Status(), nil, err
		}
		raw, errRead := readRedirectURL(options.In, options.Err)
		if errRead != nil {
			return provider.Status(), nil, authflow.NewFlowError(authflow.ErrRedirectIncomplete, errRead)
		}
		if redirect, err = url.Parse(raw); err != nil {
			return provider.Status(), nil, authflow.NewFlowError(authflow.ErrParseFailed, err)
		}
	} else {
		result, errWait := s.awaitRedirect(ctx, provider)
		if errWait != nil {
			return provider.Status(), nil, errWait
		}
		redirect = result.URL(s.flow.RedirectURI())
	}

	report(tui.Progress{Phase: tui.PhaseExchanging})
	handled, err := provider.HandleRedirect(ctx, redirect)
	if err != nil {
		return provider.Status(), nil, err
	}
	if !handled {
		return provider.Status(), nil, authflow.NewFlowError(authflow.ErrRedirectIncomplete, errors.New("the pasted URL carries no authorization response"))
	}
	return provider.Status(), provider.Token(), nil
}

// awaitRedirect starts the loopback listener, dispatches the code request and waits for
// the browser to come back. A failed dispatch cancels the wait.
func (s *session) awaitRedirect(ctx context.Context, provider *authflow.Provider) (authflow.RedirectResult, error) {
	var server *authflow.CallbackServer
	if listen := s.cfg.Callback.Listen; listen != "" {
		server = authflow.NewCallbackServer(listen, s.flow.RedirectURI().Path)
	} else {
		var err error
		if server, err = authflow.NewCallbackServerForRedirect(s.flow.RedirectURI()); err != nil {
			return authflow.RedirectResult{}, err
		}
	}
	if err := server.Start(); err != nil {
		return authflow.RedirectResult{}, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()
		if errStop := server.Stop(stopCtx); errStop != nil {
			log.Debugf("callback server stop: %v", errStop)
		}
	}()
	log.Debugf("callback server listening on %s", server.Addr())

	var result authflow.RedirectResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := server.WaitForRedirect(gctx, s.cfg.CallbackTimeout())
		result = r
		return err
	})
	g.Go(func() error {
		return provider.Login(gctx)
	})
	if err := g.Wait(); err != nil {
		return authflow.RedirectResult{}, err
	}
	return result, nil
}

func (s *session) dispatcher(options *LoginOptions, report func(tui.Progress)) authflow.Dispatcher {
	printer := authflow.PrintDispatcher{Out: options.Err}
	var inner authflow.Dispatcher
	switch {
	case options.TUI && options.NoBrowser:
		// The TUI already shows the URL.
		inner = authflow.DispatcherFunc(func(context.Context, *url.URL) error { return nil })
	case options.TUI:
		inner = authflow.FallbackDispatcher{
			Primary:  authflow.NewBrowserDispatcher(),
			Fallback: authflow.DispatcherFunc(func(context.Context, *url.URL) error { return nil }),
		}
	case options.NoBrowser:
		inner = printer
	default:
		inner = authflow.FallbackDispatcher{Primary: authflow.NewBrowserDispatcher(), Fallback: printer}
	}
	return authflow.DispatcherFunc(func(ctx context.Context, u *url.URL) error {
		report(tui.Progress{Phase: tui.PhaseAwaitingRedirect, AuthorizationURL: u.String()})
		return inner.Dispatch(ctx, u)
	})
}

// readRedirectURL prompts for the post-redirect URL. On a terminal the input is hidden
// since the URL carries the authorization code.
func readRedirectURL(in io.Reader, prompt io.Writer) (string, error) {
	_, _ = fmt.Fprint(prompt, "Paste the URL your browser was redirected to: ")
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read redirect URL: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read redirect URL: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no redirect URL entered")
	}
	return line, nil
}

// DoPrintURL stores a new fingerprint and prints the authorization URL. The login is
// finished later with DoExchange.
func DoPrintURL(ctx context.Context, cfg *config.Config, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	options.normalize()

	s, err := openSession(ctx, cfg, options.Profile)
	if err != nil {
		return err
	}
	defer s.Close()

	return authflow.DispatchCodeRequest(ctx, s.flow, s.store, authflow.DispatcherFunc(func(_ context.Context, u *url.URL) error {
		_, errWrite := fmt.Fprintln(options.Out, u.String())
		return errWrite
	}))
}

// DoExchange completes a login started with DoPrintURL using the redirect URL raw.
func DoExchange(ctx context.Context, cfg *config.Config, raw string, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	options.normalize()

	code, state, err := authflow.ReadRedirectString(raw)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, options.Profile)
	if err != nil {
		return err
	}
	defer s.Close()

	token, err := authflow.ExchangeCodeForToken(ctx, s.flow, s.store, code, state, cfg.ExchangeOptions()...)
	if err != nil {
		return err
	}
	status := authflow.Status{State: authflow.StateAuthenticated.String(), Authenticated: true}
	if token.IDToken != "" {
		if user, errUser := authflow.UserFromIDToken(token.IDToken); errUser == nil {
			status.User = user
		}
	}
	return renderResult(options.Out, status, token, options.JSON, options.ShowToken)
}

// DoLogout discards any pending login attempt of the profile.
func DoLogout(ctx context.Context, cfg *config.Config, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	options.normalize()

	s, err := openSession(ctx, cfg, options.Profile)
	if err != nil {
		return err
	}
	defer s.Close()

	provider, err := authflow.NewProvider(s.flow, s.store, authflow.PrintDispatcher{Out: options.Err})
	if err != nil {
		return err
	}
	if err = provider.Logout(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(options.Out, "Logged out of profile %s\n", options.Profile)
	return nil
}
