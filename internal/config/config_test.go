// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
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

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:9090"
  shutdown_timeout: "15s"

database:
  path: "./test.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  token_ttl: "2h"

domain:
  root: "coco"

sessions:
  outbound_buffer: 64
  write_timeout: "3s"

ingest:
  dedupe_ttl: "30m"
  dedupe_max: 500

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 15*time.Second)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 2*time.Hour)
	}
	if cfg.Domain.Root != "coco" {
		t.Errorf("Domain.Root = %q, want %q", cfg.Domain.Root, "coco")
	}
	if cfg.Sessions.OutboundBuffer != 64 {
		t.Errorf("Sessions.OutboundBuffer = %d, want 64", cfg.Sessions.OutboundBuffer)
	}
	if cfg.Sessions.WriteTimeout != 3*time.Second {
		t.Errorf("Sessions.WriteTimeout = %v, want %v", cfg.Sessions.WriteTimeout, 3*time.Second)
	}
	if cfg.Ingest.DedupeTTL != 30*time.Minute {
		t.Errorf("Ingest.DedupeTTL = %v, want %v", cfg.Ingest.DedupeTTL, 30*time.Minute)
	}
	if cfg.Ingest.DedupeMax != 500 {
		t.Errorf("Ingest.DedupeMax = %d, want 500", cfg.Ingest.DedupeMax)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:7070"

[database]
path = "/var/lib/coco/coco.db"

[domain]
root = "coco"

[sessions]
write_timeout = "1s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:7070" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:7070")
	}
	if cfg.Database.Path != "/var/lib/coco/coco.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Domain.Root != "coco" {
		t.Errorf("Domain.Root = %q, want %q", cfg.Domain.Root, "coco")
	}
	if cfg.Sessions.WriteTimeout != time.Second {
		t.Errorf("Sessions.WriteTimeout = %v, want %v", cfg.Sessions.WriteTimeout, time.Second)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, DefaultTokenTTL)
	}
	if cfg.Sessions.OutboundBuffer != DefaultOutboundBuffer {
		t.Errorf("Sessions.OutboundBuffer = %d, want %d", cfg.Sessions.OutboundBuffer, DefaultOutboundBuffer)
	}
	if cfg.Sessions.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Sessions.WriteTimeout = %v, want %v", cfg.Sessions.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Ingest.DedupeTTL != DefaultDedupeTTL || cfg.Ingest.DedupeMax != DefaultDedupeMax {
		t.Errorf("Ingest = %+v, want defaults", cfg.Ingest)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty", cfg.Auth.JWTSecret)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_COCO_SECRET", "abcdefghijklmnopqrstuvwxyz012345")
	t.Setenv("TEST_COCO_ROOT", "greenhouse")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "${TEST_COCO_SECRET}"
domain:
  root: "${TEST_COCO_ROOT}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "abcdefghijklmnopqrstuvwxyz012345" {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
	if cfg.Domain.Root != "greenhouse" {
		t.Errorf("Domain.Root = %q, want %q", cfg.Domain.Root, "greenhouse")
	}
}

func TestLoad_DatabasePathFromEnv(t *testing.T) {
	t.Setenv("COCO_DB_PATH", "/tmp/override.db")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/override.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %q, want parse error", err.Error())
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", "[server\nhttp_addr = 1\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid TOML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %q, want parse error", err.Error())
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "bad token ttl",
			content: "database:\n  path: x.db\nauth:\n  token_ttl: \"forever\"\n",
			field:   "auth.token_ttl",
		},
		{
			name:    "bad write timeout",
			content: "database:\n  path: x.db\nsessions:\n  write_timeout: \"10\"\n",
			field:   "sessions.write_timeout",
		},
		{
			name:    "negative dedupe ttl",
			content: "database:\n  path: x.db\ningest:\n  dedupe_ttl: \"-1m\"\n",
			field:   "ingest.dedupe_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load() error = %q, want mention of %s", err.Error(), tt.field)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("COCO_A", "alpha")
	t.Setenv("COCO_B", "beta")

	tests := []struct {
		input string
		want  string
	}{
		{"no vars", "no vars"},
		{"${COCO_A}", "alpha"},
		{"${COCO_A}-${COCO_B}", "alpha-beta"},
		{"prefix ${COCO_UNSET_VAR} suffix", "prefix  suffix"},
		{"$COCO_A stays literal", "$COCO_A stays literal"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		wantErr       bool
		wantErrSubstr string
	}{
		{
			name: "minimal valid",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./test.db"},
			},
		},
		{
			name: "missing database path",
			cfg: Config{
				Server: ServerConfig{HTTPAddr: ":8080"},
			},
			wantErr:       true,
			wantErrSubstr: "database.path is required",
		},
		{
			name: "short jwt secret",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./test.db"},
				Auth:     AuthConfig{JWTSecret: "too-short"},
			},
			wantErr:       true,
			wantErrSubstr: "at least 32 bytes",
		},
		{
			name: "unknown log level",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./test.db"},
				Logging:  LoggingConfig{Level: "trace"},
			},
			wantErr:       true,
			wantErrSubstr: "logging.level",
		},
		{
			name: "unknown log format",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./test.db"},
				Logging:  LoggingConfig{Format: "xml"},
			},
			wantErr:       true,
			wantErrSubstr: "logging.format",
		},
		{
			name: "negative outbound buffer",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./test.db"},
				Sessions: SessionsConfig{OutboundBuffer: -1},
			},
			wantErr:       true,
			wantErrSubstr: "sessions.outbound_buffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
					return
				}
				if !strings.Contains(err.Error(), tt.wantErrSubstr) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_TailscaleConfig(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		wantErr       bool
		wantErrSubstr string
	}{
		{
			name: "tailscale enabled allows empty http address",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true, Hostname: "coco"},
				Database:  DatabaseConfig{Path: "./test.db"},
			},
		},
		{
			name: "tailscale enabled requires hostname",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true},
				Database:  DatabaseConfig{Path: "./test.db"},
			},
			wantErr:       true,
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name: "tailscale disabled requires http address",
			cfg: Config{
				Tailscale: TailscaleConfig{Hostname: "coco"},
				Database:  DatabaseConfig{Path: "./test.db"},
			},
			wantErr:       true,
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "tailscale with all options set",
			cfg: Config{
				Tailscale: TailscaleConfig{
					Enabled:   true,
					Hostname:  "coco",
					AuthKey:   "tskey-auth-xxx",
					StateDir:  "/tmp/ts-state",
					Ephemeral: true,
					HTTPS:     true,
				},
				Database: DatabaseConfig{Path: "./test.db"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
					return
				}
				if !strings.Contains(err.Error(), tt.wantErrSubstr) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
