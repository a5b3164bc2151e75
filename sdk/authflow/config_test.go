package authflow

import (
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"
)

func validProviderConfig() ProviderConfig {
	return ProviderConfig{
		ClientID:              "spa-client",
		AuthorizationEndpoint: "https://id.example.com/oauth/authorize",
		TokenEndpoint:         "https://id.example.com/oauth/token",
		RedirectURI:           "https://app.example.com/callback",
	}
}

func TestParseFlowConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
	}{
		{name: "empty client id", mutate: func(c *ProviderConfig) { c.ClientID = "  " }},
		{name: "missing authorization endpoint", mutate: func(c *ProviderConfig) { c.AuthorizationEndpoint = "" }},
		{name: "relative token endpoint", mutate: func(c *ProviderConfig) { c.TokenEndpoint = "/oauth/token" }},
		{name: "unsupported scheme", mutate: func(c *ProviderConfig) { c.TokenEndpoint = "ftp://id.example.com/token" }},
		{name: "malformed redirect", mutate: func(c *ProviderConfig) { c.RedirectURI = "http://[::1" }},
		{name: "redirect with fragment", mutate: func(c *ProviderConfig) { c.RedirectURI = "https://app.example.com/cb#x" }},
		{name: "missing host", mutate: func(c *ProviderConfig) { c.AuthorizationEndpoint = "https:///authorize" }},
		{name: "scope with space", mutate: func(c *ProviderConfig) { c.Scopes = []string{"profile email"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := validProviderConfig()
			tt.mutate(&pc)
			_, err := ParseFlowConfig(pc)
			if !errors.Is(err, ErrParseFailed) {
				t.Errorf("ParseFlowConfig() error = %v, want ErrParseFailed", err)
			}
		})
	}
}

func TestParseFlowConfig_Scopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		offline bool
		want    []string
	}{
		{name: "default", want: []string{"read", "write"}},
		{name: "offline access", offline: true, want: []string{"read", "write", "offline_access"}},
		{name: "extra scopes deduplicated", scopes: []string{"write", "profile", "profile", " "}, want: []string{"read", "write", "profile"}},
		{name: "offline listed explicitly", scopes: []string{"offline_access"}, offline: true, want: []string{"read", "write", "offline_access"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := validProviderConfig()
			pc.Scopes = tt.scopes
			pc.OfflineAccess = tt.offline
			cfg, err := ParseFlowConfig(pc)
			if err != nil {
				t.Fatalf("ParseFlowConfig() error = %v", err)
			}
			if got := cfg.Scopes(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Scopes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFlowConfig_Immutable(t *testing.T) {
	cfg, err := ParseFlowConfig(validProviderConfig())
	if err != nil {
		t.Fatalf("ParseFlowConfig() error = %v", err)
	}

	u := cfg.RedirectURI()
	u.Host = "evil.example.com"
	if cfg.RedirectURI().Host != "app.example.com" {
		t.Error("RedirectURI() exposes internal state")
	}

	scopes := cfg.Scopes()
	scopes[0] = "admin"
	if cfg.Scopes()[0] != "read" {
		t.Error("Scopes() exposes internal state")
	}
}

func TestWithHTTPClient_DisablesRedirects(t *testing.T) {
	base := &http.Client{Timeout: 5 * time.Second}
	cfg, err := ParseFlowConfig(validProviderConfig(), WithHTTPClient(base))
	if err != nil {
		t.Fatalf("ParseFlowConfig() error = %v", err)
	}
	client := cfg.HTTPClient()
	if client == base {
		t.Fatal("HTTPClient() returned the caller's client")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.CheckRedirect == nil || client.CheckRedirect(nil, nil) != http.ErrUseLastResponse {
		t.Error("token client follows redirects")
	}
	if base.CheckRedirect != nil {
		t.Error("caller's client was modified")
	}
}
