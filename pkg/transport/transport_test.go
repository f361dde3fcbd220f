package transport

import (
	"crypto/tls"
	"testing"

	"github.com/devkeep/httpwire/pkg/tlsconfig"
)

func TestValidateConfigRejectsEmptyHost(t *testing.T) {
	err := validateConfig(Config{Scheme: "http", Port: 80})
	if err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestValidateConfigRejectsBadPort(t *testing.T) {
	err := validateConfig(Config{Scheme: "http", Host: "example.com", Port: 0})
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidateConfigRejectsConflictingSNI(t *testing.T) {
	err := validateConfig(Config{Scheme: "https", Host: "example.com", Port: 443, SNI: "alt.example.com", DisableSNI: true})
	if err == nil {
		t.Fatal("expected error for conflicting SNI options")
	}
}

func TestConfigureSNIPrefersExplicitServerName(t *testing.T) {
	cfg := &tls.Config{ServerName: "explicit.example.com"}
	ConfigureSNI(cfg, "custom.example.com", false, "fallback.example.com")
	if cfg.ServerName != "explicit.example.com" {
		t.Fatalf("ServerName = %q, want explicit.example.com", cfg.ServerName)
	}
}

func TestConfigureSNIDisabled(t *testing.T) {
	cfg := &tls.Config{}
	ConfigureSNI(cfg, "custom.example.com", true, "fallback.example.com")
	if cfg.ServerName != "" {
		t.Fatalf("ServerName = %q, want empty", cfg.ServerName)
	}
}

func TestConfigureSNIFallback(t *testing.T) {
	cfg := &tls.Config{}
	ConfigureSNI(cfg, "", false, "fallback.example.com")
	if cfg.ServerName != "fallback.example.com" {
		t.Fatalf("ServerName = %q, want fallback.example.com", cfg.ServerName)
	}
}

func TestTLSVersionString(t *testing.T) {
	if tlsconfig.GetVersionName(tls.VersionTLS13) != "TLS 1.3" {
		t.Fatal("expected TLS 1.3")
	}
}
