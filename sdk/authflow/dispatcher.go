package authflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"
)

// Dispatcher sends the user agent to the authorization URL.
// Implementations navigate the current user agent in place; they never open a second
// one for the primary flow, because the fingerprint store is scoped to the current one.
type Dispatcher interface {
	Dispatch(ctx context.Context, authorizationURL *url.URL) error
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(ctx context.Context, authorizationURL *url.URL) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, authorizationURL *url.URL) error {
	return f(ctx, authorizationURL)
}

// BrowserDispatcher opens the authorization URL in the system browser.
type BrowserDispatcher struct {
	// Open launches the browser. Nil means github.com/pkg/browser.OpenURL.
	Open func(url string) error
}

// NewBrowserDispatcher returns a dispatcher using the system browser.
func NewBrowserDispatcher() *BrowserDispatcher {
	return &BrowserDispatcher{}
}

// Dispatch opens u in the system browser.
func (d *BrowserDispatcher) Dispatch(ctx context.Context, u *url.URL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	open := browser.OpenURL
	if d != nil && d.Open != nil {
		open = d.Open
	}
	if err := open(u.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	log.Debug("opened system browser for authorization")
	return nil
}

type navigationTargetKey struct{}

type navigationTarget struct {
	w http.ResponseWriter
	r *http.Request
}

// WithNavigationTarget binds the response that a RedirectDispatcher will answer.
func WithNavigationTarget(ctx context.Context, w http.ResponseWriter, r *http.Request) context.Context {
	return context.WithValue(ctx, navigationTargetKey{}, navigationTarget{w: w, r: r})
}

// RedirectDispatcher navigates the requesting browser by answering the current
// request with 302 Found. The request is taken from the context, see WithNavigationTarget.
type RedirectDispatcher struct {
	// Status overrides the redirect status code. Zero means http.StatusFound.
	Status int
}

// Dispatch writes the redirect to the bound response.
func (d RedirectDispatcher) Dispatch(ctx context.Context, u *url.URL) error {
	target, ok := ctx.Value(navigationTargetKey{}).(navigationTarget)
	if !ok || target.w == nil || target.r == nil {
		return ErrNoNavigationTarget
	}
	status := d.Status
	if status == 0 {
		status = http.StatusFound
	}
	target.w.Header().Set("Cache-Control", "no-store")
	http.Redirect(target.w, target.r, u.String(), status)
	return nil
}

// PrintDispatcher writes the authorization URL for the user to open manually.
type PrintDispatcher struct {
	Out io.Writer
	// Prompt precedes the URL. Empty uses a default message.
	Prompt string
}

// Dispatch prints u.
func (d PrintDispatcher) Dispatch(_ context.Context, u *url.URL) error {
	if d.Out == nil {
		return fmt.Errorf("print dispatcher has no output")
	}
	prompt := d.Prompt
	if prompt == "" {
		prompt = "Please open this URL in your browser:"
	}
	_, err := fmt.Fprintf(d.Out, "%s\n\n%s\n\n", prompt, u.String())
	return err
}

// FallbackDispatcher tries Primary and, when it fails, Fallback.
type FallbackDispatcher struct {
	Primary  Dispatcher
	Fallback Dispatcher
}

// Dispatch runs the primary dispatcher and falls back on failure.
func (d FallbackDispatcher) Dispatch(ctx context.Context, u *url.URL) error {
	if d.Primary != nil {
		err := d.Primary.Dispatch(ctx, u)
		if err == nil {
			return nil
		}
		if d.Fallback == nil {
			return err
		}
		log.Warnf("primary dispatcher failed, falling back: %v", err)
	}
	if d.Fallback == nil {
		return fmt.Errorf("no dispatcher configured")
	}
	return d.Fallback.Dispatch(ctx, u)
}
