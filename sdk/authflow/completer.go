package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/authflow/internal/metrics"
	"github.com/router-for-me/authflow/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

// ErrFingerprintExpired is wrapped by ErrFingerprintGetFailed when the stored attempt is older than the allowed age.
var ErrFingerprintExpired = errors.New("fingerprint expired")

const maxErrorBodyLen = 512

type exchangeOptions struct {
	maxAge time.Duration
	now    func() time.Time
}

// ExchangeOption customizes ExchangeCodeForToken.
type ExchangeOption func(*exchangeOptions)

// WithMaxFingerprintAge rejects fingerprints created longer than d ago. Zero disables the check.
func WithMaxFingerprintAge(d time.Duration) ExchangeOption {
	return func(o *exchangeOptions) {
		o.maxAge = d
	}
}

// ExchangeCodeForToken completes a login attempt. It loads the stored fingerprint,
// checks state against its CSRF token before any network I/O, consumes the fingerprint
// and exchanges code plus the paired PKCE verifier at the token endpoint. Failures are
// never retried: the code and verifier are single use.
func ExchangeCodeForToken(ctx context.Context, cfg *FlowConfig, store FingerprintStore, code AuthorizationCode, state CSRFTokenState, opts ...ExchangeOption) (*TokenResponse, error) {
	resp, _, err := exchangeCodeForToken(ctx, cfg, store, code, state, opts...)
	return resp, err
}

func exchangeCodeForToken(ctx context.Context, cfg *FlowConfig, store FingerprintStore, code AuthorizationCode, state CSRFTokenState, opts ...ExchangeOption) (resp *TokenResponse, fingerprint *Fingerprint, err error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "authflow.ExchangeCodeForToken")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err))
		}
		metrics.ObserveTokenExchange(resultLabel(err), time.Since(start))
		span.End()
	}()

	if cfg == nil || store == nil {
		return nil, nil, NewFlowError(ErrParseFailed, fmt.Errorf("flow config and store are required"))
	}
	o := exchangeOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if code == "" {
		return nil, nil, newFlowErrorDetail(ErrRedirectIncomplete, "missing code", nil)
	}

	fingerprint, err = store.Get(ctx)
	if err != nil {
		return nil, nil, NewFlowError(ErrFingerprintGetFailed, err)
	}
	if fingerprint == nil {
		return nil, nil, NewFlowError(ErrFingerprintGetFailed, ErrFingerprintNotFound)
	}
	span.SetAttributes(attribute.String("authflow.fingerprint", fingerprint.ID()))

	if err = verifyState(fingerprint, state); err != nil {
		log.Warnf("rejected redirect for fingerprint %s: state does not match", fingerprint.ID())
		return nil, nil, err
	}
	if o.maxAge > 0 && !fingerprint.CreatedAt.IsZero() && o.now().Sub(fingerprint.CreatedAt) > o.maxAge {
		return nil, nil, NewFlowError(ErrFingerprintGetFailed, ErrFingerprintExpired)
	}

	if err = consumeFingerprint(ctx, store, fingerprint); err != nil {
		return nil, nil, err
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, cfg.httpClient)
	tok, err := cfg.oauth2Config().Exchange(
		exchangeCtx,
		string(code),
		oauth2.VerifierOption(fingerprint.PKCEVerifier.Secret()),
	)
	if err != nil {
		detail := describeExchangeError(err)
		log.Errorf("token exchange for fingerprint %s failed: %s", fingerprint.ID(), detail)
		return nil, nil, newFlowErrorDetail(ErrTokenExchangeFailed, detail, err)
	}

	log.Infof("token exchange for fingerprint %s succeeded", fingerprint.ID())
	return tokenResponseFromOAuth2(tok), fingerprint, nil
}

// verifyState is the CSRF check: the returned state must equal the stored token exactly.
func verifyState(fingerprint *Fingerprint, state CSRFTokenState) error {
	if !fingerprint.CSRFToken.Matches(state) {
		return NewFlowError(ErrStateMismatch, nil)
	}
	return nil
}

// consumeFingerprint empties the slot holding fingerprint. With a FingerprintTaker only the
// caller that takes the verified fingerprint may proceed; a newer attempt taken by mistake
// is put back.
func consumeFingerprint(ctx context.Context, store FingerprintStore, fingerprint *Fingerprint) error {
	switch s := store.(type) {
	case FingerprintTaker:
		taken, err := s.Take(ctx)
		if err != nil {
			if errors.Is(err, ErrFingerprintNotFound) {
				return NewFlowError(ErrFingerprintGetFailed, err)
			}
			return NewFlowError(ErrFingerprintClearFailed, err)
		}
		if fingerprint.Equal(taken) {
			return nil
		}
		if taken != nil {
			if errSet := store.Set(ctx, taken); errSet != nil {
				log.Warnf("could not restore fingerprint %s: %v", taken.ID(), errSet)
			}
		}
		log.Warnf("fingerprint %s was consumed by a concurrent redirect", fingerprint.ID())
		return NewFlowError(ErrFingerprintGetFailed, ErrFingerprintNotFound)
	case FingerprintClearer:
		if err := s.Clear(ctx); err != nil {
			return NewFlowError(ErrFingerprintClearFailed, err)
		}
	default:
		log.Warnf("fingerprint store %T cannot clear; fingerprint %s stays replayable", store, fingerprint.ID())
	}
	return nil
}

// describeExchangeError extracts the provider's error text from a failed exchange.
func describeExchangeError(err error) string {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return err.Error()
	}
	if rErr.ErrorCode != "" {
		if rErr.ErrorDescription != "" {
			return rErr.ErrorCode + ": " + rErr.ErrorDescription
		}
		return rErr.ErrorCode
	}

	body := strings.TrimSpace(string(rErr.Body))
	if gjson.Valid(body) {
		parsed := gjson.Parse(body)
		for _, path := range []string{"error.message", "error_description", "message", "error.code", "error"} {
			if v := parsed.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}

	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}
	body = string(util.RedactSensitiveJSON([]byte(body)))
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen]
	}
	if body == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, body)
}
