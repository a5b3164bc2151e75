package authflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func startCallbackServer(t *testing.T) *CallbackServer {
	t.Helper()
	s := NewCallbackServer("127.0.0.1:0", "/callback")
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestCallbackServer_ReceivesRedirect(t *testing.T) {
	s := startCallbackServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/callback?code=c0de&state=st4te")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %q", resp.StatusCode, body)
	}

	result, err := s.WaitForRedirect(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("WaitForRedirect() error = %v", err)
	}
	if result.Code != "c0de" || result.State != "st4te" {
		t.Errorf("result = %+v", result)
	}
}

func TestCallbackServer_ProviderError(t *testing.T) {
	s := startCallbackServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/callback?error=access_denied&state=s")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(string(body), "access_denied") {
		t.Errorf("body = %q", body)
	}

	result, err := s.WaitForRedirect(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("WaitForRedirect() error = %v", err)
	}
	if !errors.Is(result.Err(), ErrAuthorizationDenied) {
		t.Errorf("result.Err() = %v", result.Err())
	}
}

func TestCallbackServer_RejectsPost(t *testing.T) {
	s := startCallbackServer(t)
	resp, err := http.PostForm("http://"+s.Addr()+"/callback", url.Values{"code": {"c"}})
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestCallbackServer_Timeout(t *testing.T) {
	s := startCallbackServer(t)
	_, err := s.WaitForRedirect(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrCallbackTimeout) {
		t.Errorf("WaitForRedirect() error = %v, want ErrCallbackTimeout", err)
	}
}

func TestCallbackServer_ContextCanceled(t *testing.T) {
	s := startCallbackServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.WaitForRedirect(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForRedirect() error = %v, want context.Canceled", err)
	}
}

func TestCallbackServer_DoubleStart(t *testing.T) {
	s := startCallbackServer(t)
	if err := s.Start(); !errors.Is(err, ErrCallbackServerFailed) {
		t.Errorf("second Start() error = %v", err)
	}
}

func TestNewCallbackServerForRedirect(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantAddr string
		wantPath string
		wantErr  bool
	}{
		{name: "localhost", raw: "http://localhost:8085/oauth/callback", wantAddr: "127.0.0.1:8085", wantPath: "/oauth/callback"},
		{name: "ipv4 loopback", raw: "http://127.0.0.1:9000/cb", wantAddr: "127.0.0.1:9000", wantPath: "/cb"},
		{name: "ipv6 loopback", raw: "http://[::1]:9000/cb", wantAddr: "[::1]:9000", wantPath: "/cb"},
		{name: "remote host", raw: "https://app.example.com/callback", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _ := url.Parse(tt.raw)
			s, err := NewCallbackServerForRedirect(u)
			if tt.wantErr {
				if !errors.Is(err, ErrParseFailed) {
					t.Errorf("error = %v, want ErrParseFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if s.Addr() != tt.wantAddr || s.path != tt.wantPath {
				t.Errorf("got (%q, %q), want (%q, %q)", s.Addr(), s.path, tt.wantAddr, tt.wantPath)
			}
		})
	}
}
