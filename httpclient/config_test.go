package httpclient

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Timeout)
	}
	if !strings.HasPrefix(cfg.UserAgent, "llmkit/") {
		t.Errorf("expected llmkit/ user agent, got %q", cfg.UserAgent)
	}
}

func TestConfig_ApplyDefaults_PreservesExisting(t *testing.T) {
	cfg := Config{Timeout: 10 * time.Second, UserAgent: "custom/1.0"}
	cfg.ApplyDefaults()
	if cfg.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", cfg.Timeout)
	}
	if cfg.UserAgent != "custom/1.0" {
		t.Errorf("expected custom user agent, got %q", cfg.UserAgent)
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	cfg := Config{Timeout: 10 * time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_Validate_InvalidTimeout(t *testing.T) {
	cfg := Config{Timeout: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestConfig_Validate_InvalidTLS(t *testing.T) {
	cfg := Config{
		Timeout: 10 * time.Second,
		TLS:     &TLSConfig{CertFile: "cert.pem"}, // missing KeyFile
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for mismatched TLS cert/key")
	}
}

func TestTLSConfig_Build_Empty(t *testing.T) {
	cfg := &TLSConfig{}
	built, err := cfg.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built != nil {
		t.Error("empty TLS config should build to nil")
	}
	if cfg.IsEnabled() {
		t.Error("empty TLS config should not be enabled")
	}
}

func TestTLSConfig_Build_SkipVerify(t *testing.T) {
	cfg := &TLSConfig{SkipVerify: true}
	built, err := cfg.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built == nil {
		t.Fatal("expected non-nil tls.Config")
	}
	if !built.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify=true")
	}
}
