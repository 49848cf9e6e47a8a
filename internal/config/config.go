package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete montage configuration
type Config struct {
	Negotiation NegotiationConfig `mapstructure:"negotiation" yaml:"negotiation"`
	Resilience  ResilienceConfig  `mapstructure:"resilience" yaml:"resilience"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch" yaml:"dispatch"`
	Providers   ProvidersConfig   `mapstructure:"providers" yaml:"providers"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	// Personas replaces the built-in persona catalog when non-empty.
	Personas []PersonaConfig `mapstructure:"personas" yaml:"personas,omitempty"`
	// Topics replaces the built-in topic catalog when non-empty.
	Topics []TopicConfig `mapstructure:"topics" yaml:"topics,omitempty"`
}

// NegotiationConfig controls the bounded-round persona negotiation
type NegotiationConfig struct {
	// MaxRounds is the maximum number of discussion rounds per topic (default: 3)
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`
	// HistoryWindow is how many prior rounds each persona sees (default: 2)
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// PersonaTimeoutMs is the hard timeout of one persona message call
	PersonaTimeoutMs int `mapstructure:"persona_timeout_ms" yaml:"persona_timeout_ms"`
	// MinPersonas and MaxPersonas bound the eligible persona subset per topic
	MinPersonas int `mapstructure:"min_personas" yaml:"min_personas"`
	MaxPersonas int `mapstructure:"max_personas" yaml:"max_personas"`
	// DefaultThreshold is the convergence threshold for topics without their own
	DefaultThreshold float64 `mapstructure:"default_threshold" yaml:"default_threshold"`
	// Thresholds overrides the convergence threshold per topic ID
	Thresholds map[string]float64 `mapstructure:"thresholds" yaml:"thresholds,omitempty"`
	// ParallelTopics bounds how many independent topics negotiate at once
	ParallelTopics int `mapstructure:"parallel_topics" yaml:"parallel_topics"`
	// TopK is how many of its favourite options a deliberative persona accepts
	TopK int `mapstructure:"top_k" yaml:"top_k"`
}

// ResilienceConfig controls retry, backoff and remediation of provider calls
type ResilienceConfig struct {
	// MaxAttempts is the number of attempts per provider on retryable failures (default: 3)
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// BaseDelayMs is the first backoff wait; each retry doubles it (default: 1000)
	BaseDelayMs int `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	// MaxDelayMs caps a single backoff wait (default: 8000)
	MaxDelayMs int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	// MaxRemediations is how many payload rewrites a policy failure may use (default: 3)
	MaxRemediations int `mapstructure:"max_remediations" yaml:"max_remediations"`
	// CallTimeoutMs is the hard timeout of one provider call
	CallTimeoutMs int `mapstructure:"call_timeout_ms" yaml:"call_timeout_ms"`
}

// DispatchConfig controls execution of generation requests
type DispatchConfig struct {
	// Concurrency bounds how many independent requests run at once (default: 4)
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// SegmentSeconds is the target length of one video segment (default: 10)
	SegmentSeconds int `mapstructure:"segment_seconds" yaml:"segment_seconds"`
}

// ProvidersConfig wires provider adapters into per-capability fallback chains
type ProvidersConfig struct {
	// Chains maps a capability (text, image, video, speech) to adapter names,
	// tried in order
	Chains map[string][]string `mapstructure:"chains" yaml:"chains"`
	// Remediator names the adapter used to rewrite rejected payloads
	Remediator string `mapstructure:"remediator" yaml:"remediator"`
	// Negotiator names the text adapter personas speak through.
	// Empty selects the offline deliberative generator.
	Negotiator string             `mapstructure:"negotiator" yaml:"negotiator"`
	Simulated  SimulatedConfig    `mapstructure:"simulated" yaml:"simulated"`
	HTTP       HTTPProviderConfig `mapstructure:"http" yaml:"http"`
}

// SimulatedConfig injects faults into the offline simulated adapter
type SimulatedConfig struct {
	// RetryableEvery fails every Nth call with a rate-limit error (0 = never)
	RetryableEvery int `mapstructure:"retryable_every" yaml:"retryable_every"`
	// PolicyTerms are words that make the simulated provider reject a prompt
	PolicyTerms []string `mapstructure:"policy_terms" yaml:"policy_terms,omitempty"`
	// Unavailable lists capabilities the simulated provider reports as down
	Unavailable []string `mapstructure:"unavailable" yaml:"unavailable,omitempty"`
	// LatencyMs is added to every simulated call
	LatencyMs int `mapstructure:"latency_ms" yaml:"latency_ms"`
}

// HTTPProviderConfig configures the JSON-over-HTTP provider adapter
type HTTPProviderConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	TimeoutMs int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether run logs are written to the session directory
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB rotates the log file past this size
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// StoreConfig controls where finished runs are persisted
type StoreConfig struct {
	// Path is the SQLite database file. Relative paths resolve against the
	// working directory; empty disables persistence.
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// PersonaConfig declares one persona of the catalog
type PersonaConfig struct {
	ID        string   `mapstructure:"id" yaml:"id"`
	Name      string   `mapstructure:"name" yaml:"name"`
	Expertise []string `mapstructure:"expertise" yaml:"expertise"`
	Weight    float64  `mapstructure:"weight" yaml:"weight"`
}

// TopicConfig declares one decision point of the topic catalog
type TopicConfig struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Title string `mapstructure:"title" yaml:"title"`
	// Expertise holds glob patterns matched against persona expertise tags
	Expertise []string `mapstructure:"expertise" yaml:"expertise"`
	Options   []string `mapstructure:"options" yaml:"options"`
	Default   string   `mapstructure:"default" yaml:"default"`
	Threshold float64  `mapstructure:"threshold" yaml:"threshold,omitempty"`
	Requires  []string `mapstructure:"requires" yaml:"requires,omitempty"`
}

// Capability names accepted in providers.chains
const (
	CapabilityText   = "text"
	CapabilityImage  = "image"
	CapabilityVideo  = "video"
	CapabilitySpeech = "speech"
)

// Adapter names accepted in providers.chains and providers.remediator
const (
	AdapterSimulated = "simulated"
	AdapterSynthetic = "synthetic"
	AdapterHTTP      = "http"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Negotiation: NegotiationConfig{
			MaxRounds:        3,
			HistoryWindow:    2,
			PersonaTimeoutMs: 30000,
			MinPersonas:      3,
			MaxPersonas:      6,
			DefaultThreshold: 0.75,
			Thresholds:       map[string]float64{},
			ParallelTopics:   2,
			TopK:             2,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:     3,
			BaseDelayMs:     1000,
			MaxDelayMs:      8000,
			MaxRemediations: 3,
			CallTimeoutMs:   120000,
		},
		Dispatch: DispatchConfig{
			Concurrency:    4,
			SegmentSeconds: 10,
		},
		Providers: ProvidersConfig{
			Chains: map[string][]string{
				CapabilityText:   {AdapterSimulated},
				CapabilityImage:  {AdapterSimulated},
				CapabilityVideo:  {AdapterSimulated},
				CapabilitySpeech: {AdapterSimulated},
			},
			Remediator: AdapterSimulated,
			Negotiator: "",
			HTTP: HTTPProviderConfig{
				TimeoutMs: 60000,
			},
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Store: StoreConfig{
			Path: filepath.Join(".montage", "runs.db"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// PersonaTimeout returns the persona call timeout as a time.Duration
func (c *NegotiationConfig) PersonaTimeout() time.Duration {
	return time.Duration(c.PersonaTimeoutMs) * time.Millisecond
}

// Threshold returns the convergence threshold configured for a topic, or
// fallback when the topic has no override. A non-positive fallback means
// DefaultThreshold.
func (c *NegotiationConfig) Threshold(topicID string, fallback float64) float64 {
	if v, ok := c.Thresholds[topicID]; ok {
		return v
	}
	if fallback > 0 {
		return fallback
	}
	return c.DefaultThreshold
}

// BaseDelay returns the first backoff wait as a time.Duration
func (c *ResilienceConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a time.Duration
func (c *ResilienceConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// CallTimeout returns the provider call timeout as a time.Duration (0 means none)
func (c *ResilienceConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// Timeout returns the HTTP client timeout as a time.Duration
func (c *HTTPProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SetDefaults registers default values with the global viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Negotiation defaults
	v.SetDefault("negotiation.max_rounds", defaults.Negotiation.MaxRounds)
	v.SetDefault("negotiation.history_window", defaults.Negotiation.HistoryWindow)
	v.SetDefault("negotiation.persona_timeout_ms", defaults.Negotiation.PersonaTimeoutMs)
	v.SetDefault("negotiation.min_personas", defaults.Negotiation.MinPersonas)
	v.SetDefault("negotiation.max_personas", defaults.Negotiation.MaxPersonas)
	v.SetDefault("negotiation.default_threshold", defaults.Negotiation.DefaultThreshold)
	v.SetDefault("negotiation.thresholds", defaults.Negotiation.Thresholds)
	v.SetDefault("negotiation.parallel_topics", defaults.Negotiation.ParallelTopics)
	v.SetDefault("negotiation.top_k", defaults.Negotiation.TopK)

	// Resilience defaults
	v.SetDefault("resilience.max_attempts", defaults.Resilience.MaxAttempts)
	v.SetDefault("resilience.base_delay_ms", defaults.Resilience.BaseDelayMs)
	v.SetDefault("resilience.max_delay_ms", defaults.Resilience.MaxDelayMs)
	v.SetDefault("resilience.max_remediations", defaults.Resilience.MaxRemediations)
	v.SetDefault("resilience.call_timeout_ms", defaults.Resilience.CallTimeoutMs)

	// Dispatch defaults
	v.SetDefault("dispatch.concurrency", defaults.Dispatch.Concurrency)
	v.SetDefault("dispatch.segment_seconds", defaults.Dispatch.SegmentSeconds)

	// Provider defaults
	v.SetDefault("providers.chains", defaults.Providers.Chains)
	v.SetDefault("providers.remediator", defaults.Providers.Remediator)
	v.SetDefault("providers.negotiator", defaults.Providers.Negotiator)
	v.SetDefault("providers.simulated.retryable_every", defaults.Providers.Simulated.RetryableEvery)
	v.SetDefault("providers.simulated.policy_terms", defaults.Providers.Simulated.PolicyTerms)
	v.SetDefault("providers.simulated.unavailable", defaults.Providers.Simulated.Unavailable)
	v.SetDefault("providers.simulated.latency_ms", defaults.Providers.Simulated.LatencyMs)
	v.SetDefault("providers.http.base_url", defaults.Providers.HTTP.BaseURL)
	v.SetDefault("providers.http.api_key", defaults.Providers.HTTP.APIKey)
	v.SetDefault("providers.http.timeout_ms", defaults.Providers.HTTP.TimeoutMs)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Store and server defaults
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("server.addr", defaults.Server.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from the given viper instance and
// validates it. Defaults are registered on v first, so keys missing from
// its config file fall back to Default. Tests use a private instance to
// avoid global state.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaultsOn(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if the
// loaded configuration does not validate.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "montage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".montage"
	}
	return filepath.Join(home, ".config", "montage")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidCapabilities returns the capability names accepted in providers.chains
func ValidCapabilities() []string {
	return []string{CapabilityText, CapabilityImage, CapabilityVideo, CapabilitySpeech}
}

// ValidAdapters returns the adapter names accepted in providers.chains
func ValidAdapters() []string {
	return []string{AdapterSimulated, AdapterSynthetic, AdapterHTTP}
}
