// Package config loads gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	// SignaturePath is where the signature document is persisted
	SignaturePath string `yaml:"signaturePath"`

	// NATS configures the request/reply transport
	NATS NATSConfig `yaml:"nats"`

	// Executor configures operation execution
	Executor ExecutorConfig `yaml:"executor"`

	// Tracing configures the OTLP exporter
	Tracing TracingConfig `yaml:"tracing"`

	// SentryDSN enables error reporting when non-empty
	SentryDSN string `yaml:"sentryDsn"`
}

// NATSConfig holds transport settings.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Token   string `yaml:"token"`
}

// ExecutorConfig holds execution settings.
type ExecutorConfig struct {
	// MaxConcurrent bounds in-flight executions
	MaxConcurrent int `yaml:"maxConcurrent"`

	// CallTimeout bounds a single operation execution
	CallTimeout Duration `yaml:"callTimeout"`
}

// Duration wraps time.Duration so YAML configs can use forms like "30s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// TracingConfig holds exporter settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	Environment  string  `yaml:"environment"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		SignaturePath: "signature.json",
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "talaria.gateway",
		},
		Executor: ExecutorConfig{
			MaxConcurrent: 16,
			CallTimeout:   Duration(30 * time.Second),
		},
		Tracing: TracingConfig{
			Enabled:      false,
			OTLPEndpoint: "127.0.0.1:4318",
			Environment:  "development",
			SampleRatio:  1.0,
		},
	}
}

// Load reads a YAML config file, applies environment overrides and validates
// the result. An empty path loads defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TALARIA_SIGNATURE_PATH"); v != "" {
		cfg.SignaturePath = v
	}
	if v := os.Getenv("TALARIA_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("TALARIA_NATS_SUBJECT"); v != "" {
		cfg.NATS.Subject = v
	}
	if v := os.Getenv("TALARIA_NATS_TOKEN"); v != "" {
		cfg.NATS.Token = v
	}
	if v := os.Getenv("TALARIA_MAX_CONCURRENT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxConcurrent = parsed
		}
	}
	if v := os.Getenv("TALARIA_CALL_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Executor.CallTimeout = Duration(parsed)
		}
	}
	if v := os.Getenv("TALARIA_SENTRY_DSN"); v != "" {
		cfg.SentryDSN = v
	}
	if v := os.Getenv("TALARIA_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.OTLPEndpoint = v
	}
}

func (c Config) validate() error {
	if c.SignaturePath == "" {
		return fmt.Errorf("signaturePath cannot be empty")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url cannot be empty")
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject cannot be empty")
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.maxConcurrent must be positive")
	}
	if c.Executor.CallTimeout <= 0 {
		return fmt.Errorf("executor.callTimeout must be positive")
	}
	return nil
}
