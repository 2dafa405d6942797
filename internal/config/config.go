// Package config provides configuration types for the mcpwire runtime and
// its demo server binary.
package config

// Config is the top-level configuration.
type Config struct {
	// Server configures the serve command.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Session configures per-session protocol behavior.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// DevMode enables development features (verbose logging, payload dumps).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the demo server's listener.
type ServerConfig struct {
	// Transport selects how the server speaks to its client.
	// Valid values: "stdio" or "http".
	Transport string `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=stdio http"`

	// HTTPAddr is the address the HTTP transport listens on.
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// MetricsAddr, when set, exposes Prometheus metrics on /metrics.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// SessionConfig configures protocol-level behavior of a session.
type SessionConfig struct {
	// RequestTimeout bounds outbound requests (e.g. "30s").
	// Defaults to "30s".
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,duration"`

	// SSEIdleTimeout is how long an HTTP session survives without traffic
	// (e.g. "30m"). Defaults to "30m".
	SSEIdleTimeout string `yaml:"sse_idle_timeout" mapstructure:"sse_idle_timeout" validate:"omitempty,duration"`

	// ProtocolVersion overrides the advertised protocol revision.
	// Must be one of the supported set when present.
	ProtocolVersion string `yaml:"protocol_version" mapstructure:"protocol_version"`

	// LogPayloads dumps wire traffic at debug level.
	LogPayloads bool `yaml:"log_payloads" mapstructure:"log_payloads"`

	// MaxPayloadDump caps how many bytes of each payload are logged.
	// Defaults to 2048.
	MaxPayloadDump int `yaml:"max_payload_dump" mapstructure:"max_payload_dump" validate:"omitempty,min=64"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	// Bind to localhost only; users who need network access must set
	// http_addr explicitly.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.DevMode {
		c.Server.LogLevel = "debug"
		c.Session.LogPayloads = true
	}

	if c.Session.RequestTimeout == "" {
		c.Session.RequestTimeout = "30s"
	}
	if c.Session.SSEIdleTimeout == "" {
		c.Session.SSEIdleTimeout = "30m"
	}
	if c.Session.MaxPayloadDump == 0 {
		c.Session.MaxPayloadDump = 2048
	}
}
