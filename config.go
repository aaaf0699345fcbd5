package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bridge's full configuration surface.
type Config struct {
	BindAddr string    `yaml:"bind_addr"`
	TLS      TLSConfig `yaml:"tls"`
	Limits   struct {
		MaxFrameBytes int `yaml:"max_frame_bytes"`
	} `yaml:"limits"`
	Timeouts struct {
		HelloMs          int `yaml:"hello_ms"`
		SendTelemetryMs  int `yaml:"send_telemetry_ms"`
		SendActionMs     int `yaml:"send_action_ms"`
		TransportSendMs  int `yaml:"transport_send_ms"`
		ActionDefaultTTL int `yaml:"action_default_ttl_ms"`
	} `yaml:"timeouts"`
	Queues struct {
		ActionDepth int `yaml:"action_depth"`
	} `yaml:"queues"`
	Server struct {
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"server"`
	Admin AdminConfig `yaml:"admin"`
}

// TLSConfig holds the PEM material paths for mutual TLS.
type TLSConfig struct {
	CAPath   string `yaml:"ca_path"`
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// AdminConfig configures the optional operational HTTP surface.
// Disabled (empty ListenAddr) by default — it carries no wire protocol
// semantics and exists purely for operator visibility.
type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// defaultConfig returns a Config populated with every documented default.
func defaultConfig() Config {
	var c Config
	c.BindAddr = bindAddrDefault
	c.Limits.MaxFrameBytes = maxFrameBytesDefault
	c.Timeouts.HelloMs = int(helloTimeoutDefault / time.Millisecond)
	c.Timeouts.SendTelemetryMs = int(sendTelemetryTimeoutDefault / time.Millisecond)
	c.Timeouts.SendActionMs = int(sendActionTimeoutDefault / time.Millisecond)
	c.Timeouts.TransportSendMs = int(transportSendTimeoutDefault / time.Millisecond)
	c.Timeouts.ActionDefaultTTL = int(actionDefaultTTLDefault / time.Millisecond)
	c.Queues.ActionDepth = actionQueueDepthDefault
	c.Server.Capabilities = []string{"TELEMETRY_V1", "TIMESYNC_V1", "HELLO_ACK_V1", "ACTION_V1"}
	return c
}

// loadConfig reads a YAML config file, applies defaults for anything left
// zero-valued, and validates the result. A missing path is not an error —
// the all-defaults configuration is still usable for local testing.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	loaded := defaultConfig()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := loaded.validate(); err != nil {
		return Config{}, fmt.Errorf("validating config %s: %w", path, err)
	}
	return loaded, nil
}

func (c *Config) validate() error {
	if c.BindAddr == "" {
		c.BindAddr = bindAddrDefault
	}
	if c.Limits.MaxFrameBytes <= 0 {
		c.Limits.MaxFrameBytes = maxFrameBytesDefault
	}
	if c.Timeouts.HelloMs <= 0 {
		c.Timeouts.HelloMs = int(helloTimeoutDefault / time.Millisecond)
	}
	if c.Timeouts.SendTelemetryMs <= 0 {
		c.Timeouts.SendTelemetryMs = int(sendTelemetryTimeoutDefault / time.Millisecond)
	}
	if c.Timeouts.SendActionMs <= 0 {
		c.Timeouts.SendActionMs = int(sendActionTimeoutDefault / time.Millisecond)
	}
	if c.Timeouts.TransportSendMs <= 0 {
		c.Timeouts.TransportSendMs = int(transportSendTimeoutDefault / time.Millisecond)
	}
	if c.Timeouts.ActionDefaultTTL <= 0 {
		c.Timeouts.ActionDefaultTTL = int(actionDefaultTTLDefault / time.Millisecond)
	}
	if c.Queues.ActionDepth <= 0 {
		c.Queues.ActionDepth = actionQueueDepthDefault
	}
	if len(c.Server.Capabilities) == 0 {
		c.Server.Capabilities = []string{"TELEMETRY_V1", "TIMESYNC_V1", "HELLO_ACK_V1", "ACTION_V1"}
	}
	for _, cap := range c.Server.Capabilities {
		if !validCapability(cap) {
			return fmt.Errorf("server.capabilities: unknown capability %q", cap)
		}
	}
	// TLS paths are required once the bridge actually binds (main enforces
	// this at startup, exit code 3); an empty TLSConfig is still valid for
	// unit tests that construct a Config without starting a listener.
	return nil
}

func (c Config) helloTimeout() time.Duration {
	return time.Duration(c.Timeouts.HelloMs) * time.Millisecond
}

func (c Config) sendTelemetryTimeout() time.Duration {
	return time.Duration(c.Timeouts.SendTelemetryMs) * time.Millisecond
}

func (c Config) sendActionTimeout() time.Duration {
	return time.Duration(c.Timeouts.SendActionMs) * time.Millisecond
}

func (c Config) transportSendTimeout() time.Duration {
	return time.Duration(c.Timeouts.TransportSendMs) * time.Millisecond
}

func (c Config) actionDefaultTTL() time.Duration {
	return time.Duration(c.Timeouts.ActionDefaultTTL) * time.Millisecond
}

func (c Config) capabilitySet() CapabilitySet {
	return newCapabilitySet(c.Server.Capabilities...)
}
