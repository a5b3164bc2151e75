package authflow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/router-for-me/authflow/internal/metrics"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

const tracerName = "github.com/router-for-me/authflow/sdk/authflow"

// RequestOption customizes a single DispatchCodeRequest call.
type RequestOption func(*Fingerprint)

// WithReturnTo records where the user agent should land after the flow completes.
func WithReturnTo(location string) RequestOption {
	return func(f *Fingerprint) {
		f.ReturnTo = location
	}
}

// BuildAuthorizationURL returns the authorization request URL for fingerprint.
// Only the S256 challenge of the verifier is included.
func BuildAuthorizationURL(cfg *FlowConfig, fingerprint *Fingerprint) (*url.URL, error) {
	if cfg == nil {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("flow config is required"))
	}
	if fingerprint == nil {
		return nil, NewFlowError(ErrParseFailed, fmt.Errorf("fingerprint is required"))
	}
	raw := cfg.oauth2Config().AuthCodeURL(
		fingerprint.CSRFToken.Secret(),
		oauth2.S256ChallengeOption(fingerprint.PKCEVerifier.Secret()),
	)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, NewFlowError(ErrParseFailed, err)
	}
	return u, nil
}

// DispatchCodeRequest starts a login attempt: it generates a fresh fingerprint, builds
// the authorization URL, persists the fingerprint and only then dispatches the user agent.
// When the store write fails the dispatcher is not called.
func DispatchCodeRequest(ctx context.Context, cfg *FlowConfig, store FingerprintStore, dispatcher Dispatcher, opts ...RequestOption) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "authflow.DispatchCodeRequest")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err))
		}
		metrics.ObserveCodeRequest(resultLabel(err))
		span.End()
	}()

	if store == nil || dispatcher == nil {
		return NewFlowError(ErrParseFailed, fmt.Errorf("store and dispatcher are required"))
	}

	fingerprint, err := NewFingerprint()
	if err != nil {
		return err
	}
	for _, opt := range opts {
		if opt != nil {
			opt(fingerprint)
		}
	}

	authURL, err := BuildAuthorizationURL(cfg, fingerprint)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("authflow.client_id", cfg.ClientID()),
		attribute.String("authflow.fingerprint", fingerprint.ID()),
	)

	if errSet := store.Set(ctx, fingerprint); errSet != nil {
		log.Errorf("failed to store fingerprint %s: %v", fingerprint.ID(), errSet)
		return NewFlowError(ErrFingerprintSetFailed, errSet)
	}
	log.Debugf("stored fingerprint %s", fingerprint.ID())

	if errDispatch := dispatcher.Dispatch(ctx, authURL); errDispatch != nil {
		log.Errorf("failed to dispatch authorization request: %v", errDispatch)
		return NewFlowError(ErrDispatchFailed, errDispatch)
	}
	log.Infof("authorization request dispatched to %s", cfg.authorizationEndpoint.Host)
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return kind
	}
	return "error"
}
