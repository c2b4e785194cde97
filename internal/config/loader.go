package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per provider kind. Used by
// [Validate] to warn about unrecognised names without rejecting the config.
var ValidProviderNames = map[string][]string{
	"assess": {"azure"},
	"coach":  {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	if err := decodeStrict(data, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict decodes YAML rejecting unknown fields, so typos in the config
// file fail loudly instead of being silently ignored.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found; soft issues are
// logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	validateProviderName("assess", cfg.Providers.Assess.Name)
	if cfg.Providers.Assess.Name == "" {
		errs = append(errs, errors.New("providers.assess.name is required"))
	} else {
		errs = append(errs, validateAssessEntry("providers.assess", cfg.Providers.Assess)...)
	}
	for i, fb := range cfg.Providers.AssessFallbacks {
		prefix := fmt.Sprintf("providers.assess_fallbacks[%d]", i)
		validateProviderName("assess", fb.Name)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateAssessEntry(prefix, fb)...)
	}

	if cfg.Providers.Coach.Name != "" {
		validateProviderName("coach", cfg.Providers.Coach.Name)
		if cfg.Providers.Coach.APIKey == "" {
			errs = append(errs, errors.New("providers.coach.api_key is required when a coach is configured"))
		}
		if cfg.Providers.Coach.Model == "" {
			errs = append(errs, errors.New("providers.coach.model is required when a coach is configured"))
		}
	}

	if cfg.Content.PostgresDSN == "" {
		slog.Warn("content.postgres_dsn is empty; lessons are stored in memory and lost on restart")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// validateAssessEntry checks one assessment backend entry.
func validateAssessEntry(prefix string, e AssessEntry) []error {
	var errs []error
	if e.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s.api_key is required", prefix))
	}
	if e.Region == "" && e.Endpoint == "" {
		errs = append(errs, fmt.Errorf("%s needs either region or endpoint", prefix))
	}
	return errs
}

// validateProviderName warns when a provider name is not in the known list.
// Unknown names warn rather than fail.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known := ValidProviderNames[kind]
	if !slices.Contains(known, name) {
		slog.Warn("unrecognised provider name",
			"kind", kind, "name", name, "known", known)
	}
}
