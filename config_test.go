package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BindAddr != bindAddrDefault {
		t.Fatalf("expected default bind addr, got %q", cfg.BindAddr)
	}
	if cfg.Limits.MaxFrameBytes != maxFrameBytesDefault {
		t.Fatalf("expected default max frame bytes, got %d", cfg.Limits.MaxFrameBytes)
	}
}

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	yamlContent := `
bind_addr: "0.0.0.0:9999"
timeouts:
  hello_ms: 7000
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:9999" {
		t.Fatalf("expected overridden bind addr, got %q", cfg.BindAddr)
	}
	if cfg.Timeouts.HelloMs != 7000 {
		t.Fatalf("expected overridden hello_ms, got %d", cfg.Timeouts.HelloMs)
	}
	// Untouched fields fall back to defaults.
	if cfg.Queues.ActionDepth != actionQueueDepthDefault {
		t.Fatalf("expected default action depth, got %d", cfg.Queues.ActionDepth)
	}
}

func TestConfigValidateRejectsUnknownCapability(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Capabilities = []string{"NOT_A_REAL_CAPABILITY"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validate to reject an unknown capability")
	}
}

func TestConfigCapabilitySetMatchesServerCapabilities(t *testing.T) {
	cfg := defaultConfig()
	set := cfg.capabilitySet()
	if !set.has(CapHelloAckV1) || !set.has(CapTelemetryV1) {
		t.Fatalf("expected default capability set to include core capabilities, got %v", set.names())
	}
}
