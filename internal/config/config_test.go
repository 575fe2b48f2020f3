package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfig_Valid(t *testing.T) {
	yaml := `
max_instructions: 5000
timeout_grace: 10
max_proxy_depth: 4
log_level: debug
`
	cfg, err := ParseConfig([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxInstructions != 5000 {
		t.Errorf("max_instructions = %d, want 5000", cfg.MaxInstructions)
	}
	if cfg.TimeoutGrace != 10 {
		t.Errorf("timeout_grace = %d, want 10", cfg.TimeoutGrace)
	}
	if cfg.MaxProxyDepth != 4 {
		t.Errorf("max_proxy_depth = %d, want 4", cfg.MaxProxyDepth)
	}
	if cfg.LogLevel != LogLevelDebug {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("trace: true\n"), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxInstructions != DefaultMaxInstructions {
		t.Errorf("max_instructions = %d, want %d", cfg.MaxInstructions, DefaultMaxInstructions)
	}
	if cfg.TimeoutGrace != DefaultTimeoutGrace {
		t.Errorf("timeout_grace = %d, want %d", cfg.TimeoutGrace, DefaultTimeoutGrace)
	}
	if cfg.LogLevel != LogLevelTrace {
		t.Errorf("trace should force log_level trace, got %q", cfg.LogLevel)
	}
	if d := Default(); d.LogLevel != LogLevelWarn || d.MaxProxyDepth != DefaultMaxProxyDepth {
		t.Errorf("Default() = %+v", d)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative budget", "max_instructions: -1\n", "max_instructions must not be negative"},
		{"negative grace", "timeout_grace: -5\n", "timeout_grace must not be negative"},
		{"negative depth", "max_proxy_depth: -1\n", "max_proxy_depth must not be negative"},
		{"bad level", "log_level: loud\n", `unknown log_level "loud"`},
		{"bad yaml", "max_instructions: [1\n", "parsing test.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml), "test.yaml")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(cfgPath, []byte("max_instructions: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(subDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != cfgPath {
		t.Errorf("found = %q, want %q", found, cfgPath)
	}

	cfg, err := LoadConfig(found)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxInstructions != 10 {
		t.Errorf("max_instructions = %d, want 10", cfg.MaxInstructions)
	}

	other := t.TempDir()
	found, err = FindConfig(other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != "" {
		t.Errorf("expected no config, found %q", found)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config") {
		t.Fatalf("expected read error, got %v", err)
	}
}
