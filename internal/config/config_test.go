package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantPort  int
		wantHost  string
		wantStore string
		wantLevel string
	}{
		{
			name: "minimal valid config",
			yaml: `
port: 8080
`,
			wantPort:  8080,
			wantStore: StoreFile,
		},
		{
			name: "config with host and port",
			yaml: `
host: 127.0.0.1
port: 9000
`,
			wantPort:  9000,
			wantHost:  "127.0.0.1",
			wantStore: StoreFile,
		},
		{
			name: "debug overrides log level",
			yaml: `
debug: true
log-level: error
`,
			wantPort:  DefaultPort,
			wantStore: StoreFile,
			wantLevel: "debug",
		},
		{
			name: "store type is normalized",
			yaml: `
store:
  type: " Redis "
  redis-url: redis://localhost:6379/0
`,
			wantPort:  DefaultPort,
			wantStore: StoreRedis,
		},
		{
			name: "provider section",
			yaml: `
port: 8443
provider:
  client-id: cli
  authorization-endpoint: https://idp.example/authorize
  token-endpoint: https://idp.example/token
  redirect-uri: http://127.0.0.1:8765/callback
  scopes: [openid, profile]
  offline-access: true
`,
			wantPort:  8443,
			wantStore: StoreFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, "config.yaml", tt.yaml))
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("LoadConfig() Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("LoadConfig() Host = %v, want %v", cfg.Host, tt.wantHost)
			}
			if cfg.Store.Type != tt.wantStore {
				t.Errorf("LoadConfig() Store.Type = %q, want %q", cfg.Store.Type, tt.wantStore)
			}
			if cfg.LogLevel != tt.wantLevel {
				t.Errorf("LoadConfig() LogLevel = %q, want %q", cfg.LogLevel, tt.wantLevel)
			}
		})
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
port = 9100

[provider]
client-id = "cli"
scopes = ["openid", "email"]
max-attempt-age-seconds = 600

[store]
type = "sqlite"
path = "/tmp/authflow.db"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.Provider.ClientID != "cli" {
		t.Errorf("Provider.ClientID = %q, want cli", cfg.Provider.ClientID)
	}
	if got := strings.Join(cfg.Provider.Scopes, ","); got != "openid,email" {
		t.Errorf("Provider.Scopes = %q", got)
	}
	if cfg.Store.Type != StoreSQLite || cfg.Store.Path != "/tmp/authflow.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if opts := cfg.ExchangeOptions(); len(opts) != 1 {
		t.Errorf("ExchangeOptions() len = %d, want 1", len(opts))
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHFLOW_PORT", "7001")
	t.Setenv("AUTHFLOW_PROVIDER_CLIENT_ID", "from-env")
	t.Setenv("AUTHFLOW_PROVIDER_SCOPES", "openid,offline")
	t.Setenv("AUTHFLOW_STORE_TYPE", "memory")

	path := writeConfig(t, "config.yaml", `
port: 8080
provider:
  client-id: from-file
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want 7001", cfg.Port)
	}
	if cfg.Provider.ClientID != "from-env" {
		t.Errorf("Provider.ClientID = %q, want from-env", cfg.Provider.ClientID)
	}
	if len(cfg.Provider.Scopes) != 2 || cfg.Provider.Scopes[1] != "offline" {
		t.Errorf("Provider.Scopes = %v", cfg.Provider.Scopes)
	}
	if cfg.Store.Type != StoreMemory {
		t.Errorf("Store.Type = %q, want memory", cfg.Store.Type)
	}
}

func TestLoadConfig_EnvOverridesInvalid(t *testing.T) {
	t.Setenv("AUTHFLOW_PORT", "not-a-number")
	if _, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true); err == nil {
		t.Error("LoadConfigOptional() should fail on an unparsable env override")
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		optional bool
	}{
		{name: "empty file with optional false", content: "", optional: false},
		{name: "empty file with optional true", content: "", optional: true},
		{name: "whitespace only with optional false", content: "   \n \n   ", optional: false},
		{name: "whitespace only with optional true", content: "   \n \n   ", optional: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigOptional(writeConfig(t, "config.yaml", tt.content), tt.optional)
			if err != nil {
				t.Fatalf("LoadConfigOptional() error = %v", err)
			}
			if cfg == nil {
				t.Fatal("LoadConfigOptional() returned nil config without error")
			}
			if cfg.Port != DefaultPort {
				t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
			}
		})
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		optional bool
		wantErr  bool
	}{
		{
			name: "invalid yaml syntax",
			content: `
port: 8080
  invalid indentation
`,
			optional: false,
			wantErr:  true,
		},
		{
			name: "invalid yaml with optional true",
			content: `
port: 8080
  invalid indentation
`,
			optional: true,
			wantErr:  false, // Optional mode returns defaults on parse error
		},
		{
			name: "malformed yaml structure",
			content: `
port: [8080
`,
			optional: false,
			wantErr:  true,
		},
		{
			name:     "duplicate keys at same level",
			content:  "port: 8080\nport: 9090\n",
			optional: false,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigOptional(writeConfig(t, "config.yaml", tt.content), tt.optional)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfigOptional() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.optional && err == nil && cfg == nil {
				t.Error("LoadConfigOptional() with optional=true returned nil config")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	tests := []struct {
		name     string
		optional bool
		wantErr  bool
	}{
		{name: "missing file with optional false", optional: false, wantErr: true},
		{name: "missing file with optional true", optional: true, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

			cfg, err := LoadConfigOptional(configPath, tt.optional)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfigOptional() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.optional && cfg == nil {
				t.Error("LoadConfigOptional() with optional=true returned nil config for missing file")
			}
		})
	}
}

func TestValidateConfig_Port(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{name: "minimum valid port", port: 1},
		{name: "maximum valid port", port: 65535},
		{name: "common port 8080", port: 8080},
		{name: "high ephemeral port", port: 49152},
		{name: "zero port", port: 0, wantErr: true},
		{name: "negative port", port: -1, wantErr: true},
		{name: "port exceeds maximum", port: 65536, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateConfig(&Config{Port: tt.port})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_Store(t *testing.T) {
	tests := []struct {
		name         string
		store        StoreConfig
		wantErr      bool
		wantWarnings int
	}{
		{name: "memory", store: StoreConfig{Type: StoreMemory}},
		{name: "cookie with secret", store: StoreConfig{Type: StoreCookie, Secret: strings.Repeat("k", 32)}},
		{name: "cookie insecure warns", store: StoreConfig{Type: StoreCookie, Secret: strings.Repeat("k", 32), InsecureCookie: true}, wantWarnings: 1},
		{name: "cookie short secret", store: StoreConfig{Type: StoreCookie, Secret: "short"}, wantErr: true},
		{name: "redis without url", store: StoreConfig{Type: StoreRedis}, wantErr: true},
		{name: "postgres without dsn", store: StoreConfig{Type: StorePostgres}, wantErr: true},
		{name: "s3 without bucket", store: StoreConfig{Type: StoreS3, Endpoint: "localhost:9000"}, wantErr: true},
		{name: "s3 complete", store: StoreConfig{Type: StoreS3, Endpoint: "localhost:9000", Bucket: "authflow"}},
		{name: "unknown type", store: StoreConfig{Type: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings, err := ValidateConfig(&Config{Port: 8080, Store: tt.store})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(warnings) != tt.wantWarnings {
				t.Errorf("ValidateConfig() warnings = %v, want %d", warnings, tt.wantWarnings)
			}
		})
	}
}

func TestValidateConfig_PlainHTTPTokenEndpointWarns(t *testing.T) {
	cfg := &Config{Port: 8080, Provider: ProviderConfig{TokenEndpoint: "http://idp.local/token"}}
	warnings, err := ValidateConfig(cfg)
	if err != nil {
		t.Fatalf("ValidateConfig() error = %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("ValidateConfig() warnings = %v, want 1", warnings)
	}
}

func TestValidateConfig_NilConfig(t *testing.T) {
	_, err := ValidateConfig(nil)
	if err == nil {
		t.Error("ValidateConfig(nil) should return error")
	}
}

func TestConfig_FlowConfig(t *testing.T) {
	cfg := &Config{Provider: ProviderConfig{
		ClientID:              "cli",
		AuthorizationEndpoint: "https://idp.example/authorize",
		TokenEndpoint:         "https://idp.example/token",
		RedirectURI:           "http://127.0.0.1:8765/callback",
		Scopes:                []string{"openid"},
		TimeoutSeconds:        5,
	}}

	flow, err := cfg.FlowConfig()
	if err != nil {
		t.Fatalf("FlowConfig() error = %v", err)
	}
	if flow.ClientID() != "cli" {
		t.Errorf("ClientID() = %q, want cli", flow.ClientID())
	}
	if got := flow.HTTPClient().Timeout; got != 5*time.Second {
		t.Errorf("HTTPClient().Timeout = %v, want 5s", got)
	}

	cfg.Provider.TokenEndpoint = ""
	if _, err = cfg.FlowConfig(); err == nil {
		t.Error("FlowConfig() should reject a missing token endpoint")
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{}
	if got := cfg.CallbackTimeout(); got != DefaultCallbackTimeout {
		t.Errorf("CallbackTimeout() = %v, want %v", got, DefaultCallbackTimeout)
	}
	cfg.Callback.TimeoutSeconds = 30
	if got := cfg.CallbackTimeout(); got != 30*time.Second {
		t.Errorf("CallbackTimeout() = %v, want 30s", got)
	}
	if got := cfg.Store.StoreTTL(); got != 0 {
		t.Errorf("StoreTTL() = %v, want 0", got)
	}
	if opts := cfg.ExchangeOptions(); opts != nil {
		t.Errorf("ExchangeOptions() = %v, want nil", opts)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "config.yaml", "port: 8080\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("port: 9090\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Port != 9090 {
			t.Errorf("reloaded Port = %d, want 9090", cfg.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}
