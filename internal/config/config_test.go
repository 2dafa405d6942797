package config

import (
	"strings"
	"testing"
)

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Transport != "stdio" {
		t.Errorf("transport = %q, want stdio", cfg.Server.Transport)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("http_addr = %q, want localhost default", cfg.Server.HTTPAddr)
	}
	if cfg.Session.RequestTimeout != "30s" {
		t.Errorf("request_timeout = %q, want 30s", cfg.Session.RequestTimeout)
	}
	if cfg.Session.SSEIdleTimeout != "30m" {
		t.Errorf("sse_idle_timeout = %q, want 30m", cfg.Session.SSEIdleTimeout)
	}
	if cfg.Session.MaxPayloadDump != 2048 {
		t.Errorf("max_payload_dump = %d, want 2048", cfg.Session.MaxPayloadDump)
	}
}

func TestDevModeDefaults(t *testing.T) {
	cfg := Config{DevMode: true}
	cfg.SetDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("dev mode log level = %q, want debug", cfg.Server.LogLevel)
	}
	if !cfg.Session.LogPayloads {
		t.Error("dev mode should enable payload logging")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}

func TestValidateRejectsBadTransport(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Server.Transport = "carrier-pigeon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid transport accepted")
	}
	if !strings.Contains(err.Error(), "must be one of") {
		t.Errorf("error message = %v", err)
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Session.RequestTimeout = "soon"

	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestValidateRejectsUnknownProtocolVersion(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Session.ProtocolVersion = "1999-12-31"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown protocol version accepted")
	}
	if !strings.Contains(err.Error(), "unsupported version") {
		t.Errorf("error message = %v", err)
	}
}

func TestValidateRejectsBadAddr(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Server.HTTPAddr = "not an addr"

	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid host:port accepted")
	}
}
