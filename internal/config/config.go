// Package config provides the configuration schema and loader for the sori
// practice server.
package config

// LogLevel controls log verbosity for the sori server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for sori. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Content   ContentConfig   `yaml:"content"`
	Practice  PracticeConfig  `yaml:"practice"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the external services used for assessment and
// coaching.
type ProvidersConfig struct {
	// Assess is the primary pronunciation-assessment backend.
	Assess AssessEntry `yaml:"assess"`

	// AssessFallbacks are additional assessment backends tried, in order,
	// when the primary cannot establish a session.
	AssessFallbacks []AssessEntry `yaml:"assess_fallbacks"`

	// Coach configures feedback-tip generation. Optional; when the name is
	// empty no coach runs.
	Coach CoachEntry `yaml:"coach"`
}

// AssessEntry configures one pronunciation-assessment backend.
type AssessEntry struct {
	// Name selects the backend implementation. Currently "azure".
	Name string `yaml:"name"`

	// APIKey is the subscription key.
	APIKey string `yaml:"api_key"`

	// Region is the service region (e.g., "westeurope"). Ignored when
	// Endpoint is set.
	Region string `yaml:"region"`

	// Endpoint overrides the region-derived websocket endpoint.
	Endpoint string `yaml:"endpoint"`
}

// CoachEntry configures the feedback coach.
type CoachEntry struct {
	// Name selects the implementation. Currently "openai".
	Name string `yaml:"name"`

	// APIKey is the provider API key.
	APIKey string `yaml:"api_key"`

	// Model is the chat model used for tips (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}

// ContentConfig selects the lesson store.
type ContentConfig struct {
	// PostgresDSN is the lesson database connection string. When empty,
	// lessons are kept in memory and seeded from SeedDir.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SeedDir is a directory of lesson JSON files loaded into the store at
	// startup. Optional.
	SeedDir string `yaml:"seed_dir"`
}

// PracticeConfig tunes the practice pipeline.
type PracticeConfig struct {
	// Language is the default BCP-47 practice language tag. Default: "en-US".
	Language string `yaml:"language"`

	// EnableProsody requests stress/intonation scoring from the assessment
	// backend. Defaults to true when omitted; use [PracticeConfig.ProsodyEnabled]
	// to read the resolved value.
	EnableProsody *bool `yaml:"enable_prosody"`
}

// ProsodyEnabled resolves the EnableProsody pointer with its default.
func (p PracticeConfig) ProsodyEnabled() bool {
	if p.EnableProsody == nil {
		return true
	}
	return *p.EnableProsody
}
