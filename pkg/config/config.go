// Package config loads skillforge configuration from viper (flags, SKILLFORGE_*
// environment variables and config.yaml) into a typed Config.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Provider names understood by the completion factory
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Store types understood by the skill store factory
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

const (
	// DefaultModel is the DeepSeek chat model served at DefaultBaseURL
	DefaultModel = "deepseek-chat"
	// DefaultBaseURL is the OpenAI-compatible endpoint used when none is configured
	DefaultBaseURL = "https://api.deepseek.com"
)

// Temperatures holds the decoding temperature per call family
type Temperatures struct {
	SOP     float64 `mapstructure:"sop"`
	Compile float64 `mapstructure:"compile"`
	Invoke  float64 `mapstructure:"invoke"`
}

// RetryConfig controls retries of transient completion failures
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay"` // milliseconds
	MaxDelay     int    `mapstructure:"max_delay"`     // milliseconds
	BackoffType  string `mapstructure:"backoff_type"`  // fixed or exponential
}

// DefaultRetryConfig is applied when no retry attempts are configured
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 1000,
	MaxDelay:     10000,
	BackoffType:  "exponential",
}

// S3Config configures the object storage skill store
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// StoreConfig selects and configures the skill store backend
type StoreConfig struct {
	Type   string   `mapstructure:"type"`
	Dir    string   `mapstructure:"dir"`
	DBPath string   `mapstructure:"db_path"`
	S3     S3Config `mapstructure:"s3"`
}

// ChatConfig configures skill invocation
type ChatConfig struct {
	// MaxMessages bounds how many prior transcript messages are replayed per
	// invocation. Zero replays the whole transcript.
	MaxMessages int `mapstructure:"max_messages"`
}

// SOPConfig configures the SOP revision engine
type SOPConfig struct {
	// MaxHistory bounds the undo stack. Zero keeps every version.
	MaxHistory int `mapstructure:"max_history"`
}

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

// ServeConfig configures the HTTP API
type ServeConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

// Config is the full skillforge configuration
type Config struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature Temperatures  `mapstructure:"temperature"`
	Retry       RetryConfig   `mapstructure:"retry"`
	Store       StoreConfig   `mapstructure:"store"`
	SOP         SOPConfig     `mapstructure:"sop"`
	Chat        ChatConfig    `mapstructure:"chat"`
	Serve       ServeConfig   `mapstructure:"serve"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	PromptsDir  string        `mapstructure:"prompts_dir"` // optional *.tmpl overrides

	Profiles map[string]map[string]any `mapstructure:"profiles"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("temperature.sop", 0.3)
	v.SetDefault("temperature.compile", 0.2)
	v.SetDefault("temperature.invoke", 0.3)
	v.SetDefault("store.type", StoreJSON)
	v.SetDefault("store.dir", "skills")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.prefix", "skills")
	v.SetDefault("serve.host", "127.0.0.1")
	v.SetDefault("serve.port", 7860)
	v.SetDefault("serve.max_sessions", 256)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler", "ratio")
	v.SetDefault("tracing.ratio", 1.0)
}

// Load decodes the global viper instance
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes v into a Config, applies the active profile and fills in
// provider dependent defaults.
func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if name := v.GetString("profile"); name != "" && name != "default" {
		profile, ok := cfg.Profiles[name]
		if !ok {
			return cfg, errors.Errorf("profile %q not found", name)
		}
		if err := applyProfile(&cfg, profile); err != nil {
			return cfg, err
		}
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.Provider)
	}
	if cfg.BaseURL == "" && cfg.Provider == ProviderOpenAI {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = apiKeyFromEnv(cfg.Provider)
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryConfig
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreJSON
	}
	if cfg.Store.Type == StoreSQLite && cfg.Store.DBPath == "" {
		path, err := DefaultDBPath()
		if err != nil {
			return cfg, err
		}
		cfg.Store.DBPath = path
	}

	return cfg, nil
}

func applyProfile(cfg *Config, profile map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ZeroFields:       false,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}

	if err := decoder.Decode(profile); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}

	return nil
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-5"
	case ProviderGoogle:
		return "gemini-2.5-flash"
	default:
		return DefaultModel
	}
}

// apiKeyFromEnv looks up the conventional API key variables for provider
func apiKeyFromEnv(provider string) string {
	var names []string
	switch provider {
	case ProviderAnthropic:
		names = []string{"ANTHROPIC_API_KEY"}
	case ProviderGoogle:
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		names = []string{"DEEPSEEK_API_KEY", "OPENAI_API_KEY"}
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// BasePath returns the directory holding skillforge state, honouring
// SKILLFORGE_BASE_PATH.
func BasePath() (string, error) {
	if basePath := os.Getenv("SKILLFORGE_BASE_PATH"); basePath != "" {
		return basePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".skillforge"), nil
}

// DefaultDBPath returns the default path of the SQLite skill database
func DefaultDBPath() (string, error) {
	base, err := BasePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "skills.db"), nil
}
