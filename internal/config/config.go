// Package config provides the configuration schema, loader, and provider
// registry for the Panelvox pipeline.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
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

// Backend selects the durable store implementation.
type Backend string

const (
	// BackendFile persists documents as JSON files on disk.
	BackendFile Backend = "file"

	// BackendPostgres persists documents as JSONB rows in PostgreSQL.
	BackendPostgres Backend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	return b == BackendFile || b == BackendPostgres
}

// Config is the root configuration structure for Panelvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Providers ProvidersConfig `yaml:"providers"`
	Voices    VoicesConfig    `yaml:"voices"`
	Store     StoreConfig     `yaml:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity. Defaults to "info".
	Level LogLevel `yaml:"level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// Vision analyzes page images (both passes).
	Vision ProviderEntry `yaml:"vision"`

	// LLM runs the scene-wide dialogue enhancement batch.
	LLM ProviderEntry `yaml:"llm"`

	// Speech synthesizes per-line audio.
	Speech ProviderEntry `yaml:"speech"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "openai",
	// "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	// Environment references like ${OPENAI_API_KEY} are expanded on load.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g. "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// VoicesConfig defines the categorized voice pools and the narrator voice.
type VoicesConfig struct {
	// Female and Male are the round-robin pools for automatic assignment.
	// Both must be non-empty: an empty pool aborts before any work.
	Female []string `yaml:"female"`
	Male   []string `yaml:"male"`

	// Narrator, when set, enables a narrator speaking each page's scene
	// description with this voice handle.
	Narrator string `yaml:"narrator"`
}

// StoreConfig holds durable-store settings for the registry, the consistency
// store, and scene results.
type StoreConfig struct {
	// Backend selects the implementation. Defaults to "file".
	Backend Backend `yaml:"backend"`

	// Dir is the document directory for the file backend. Defaults to "data".
	Dir string `yaml:"dir"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RegistryKey is the voice-registry document key. Defaults to
	// "voice_registry".
	RegistryKey string `yaml:"registry_key"`

	// ConsistencyKey is the consistency-store document key. Defaults to
	// "characters".
	ConsistencyKey string `yaml:"consistency_key"`

	// ScenePrefix prefixes per-scene result document keys. Defaults to
	// "scene_".
	ScenePrefix string `yaml:"scene_prefix"`
}

// PipelineConfig holds scene-processing settings.
type PipelineConfig struct {
	// PagesDir is the directory holding extracted page images
	// ({scene}_page_{n}.png).
	PagesDir string `yaml:"pages_dir"`

	// Cleanup deletes page images after a scene persists.
	Cleanup bool `yaml:"cleanup"`

	// RenderAudio synthesizes per-line audio for assembled pages. Requires a
	// speech provider.
	RenderAudio bool `yaml:"render_audio"`

	// Parallelism bounds concurrent synthesis calls. Defaults to 4.
	Parallelism int `yaml:"parallelism"`

	// RetryAttempts bounds per-page and per-line retries. Defaults to 3.
	RetryAttempts int `yaml:"retry_attempts"`
}

// StorageConfig configures the optional object-storage publisher. Publishing
// is enabled when URL, Key, and Bucket are all set.
type StorageConfig struct {
	URL    string `yaml:"url"`
	Key    string `yaml:"key"`
	Bucket string `yaml:"bucket"`
}

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vision": {"openai"},
	"llm":    {"openai", "anthropic", "gemini", "ollama", "mistral", "deepseek", "groq"},
	"speech": {"elevenlabs"},
}

// Load reads the YAML configuration file at path, expands ${ENV} references,
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := parse(os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	}))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// No environment expansion is applied; useful in tests.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg, err := parse(string(raw))
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(raw string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills the zero values that have documented defaults.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = LogInfo
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "data"
	}
	if c.Store.RegistryKey == "" {
		c.Store.RegistryKey = "voice_registry"
	}
	if c.Store.ConsistencyKey == "" {
		c.Store.ConsistencyKey = "characters"
	}
	if c.Store.ScenePrefix == "" {
		c.Store.ScenePrefix = "scene_"
	}
	if c.Pipeline.Parallelism <= 0 {
		c.Pipeline.Parallelism = 4
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = 3
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found; soft problems are
// logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	validateProviderName("vision", cfg.Providers.Vision.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)

	if cfg.Providers.Vision.Name == "" {
		errs = append(errs, errors.New("providers.vision.name is required; the analyzer cannot run without a vision provider"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; dialogue will ship unenhanced")
	}

	// An empty pool is a configuration error: assignment would fail mid-scene
	// otherwise, after work has already been spent.
	if len(cfg.Voices.Female) == 0 {
		errs = append(errs, errors.New("voices.female pool is empty"))
	}
	if len(cfg.Voices.Male) == 0 {
		errs = append(errs, errors.New("voices.male pool is empty"))
	}

	if !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == BackendPostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}

	if cfg.Pipeline.PagesDir == "" {
		errs = append(errs, errors.New("pipeline.pages_dir is required"))
	}
	if cfg.Pipeline.RenderAudio && cfg.Providers.Speech.Name == "" {
		errs = append(errs, errors.New("pipeline.render_audio requires providers.speech"))
	}
	if cfg.Voices.Narrator == "" {
		slog.Warn("voices.narrator is not set; scripts will carry no narration")
	}

	if (cfg.Storage.URL != "" || cfg.Storage.Key != "" || cfg.Storage.Bucket != "") &&
		(cfg.Storage.URL == "" || cfg.Storage.Key == "" || cfg.Storage.Bucket == "") {
		errs = append(errs, errors.New("storage requires url, key, and bucket together"))
	}

	return errors.Join(errs...)
}

// PublishEnabled reports whether the object-storage publisher is configured.
func (c *Config) PublishEnabled() bool {
	return c.Storage.URL != "" && c.Storage.Key != "" && c.Storage.Bucket != ""
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
