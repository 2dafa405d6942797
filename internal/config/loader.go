package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, mcpwire.yaml/.yml is searched in the
// standard locations. The search requires an explicit YAML extension so
// Viper cannot match the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Nothing found; let ReadInConfig return ConfigFileNotFoundError,
		// which callers handle gracefully (env-only mode).
		viper.SetConfigName("mcpwire")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MCPWIRE_SERVER_HTTP_ADDR etc.
	viper.SetEnvPrefix("MCPWIRE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an mcpwire config file
// with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcpwire"),
		"/etc/mcpwire",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcpwire"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment overrides.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.transport")
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.metrics_addr")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("session.request_timeout")
	_ = viper.BindEnv("session.sse_idle_timeout")
	_ = viper.BindEnv("session.protocol_version")
	_ = viper.BindEnv("session.log_payloads")
	_ = viper.BindEnv("session.max_payload_dump")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// in env-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
