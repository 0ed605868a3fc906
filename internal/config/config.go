// Package config loads the relay's YAML configuration and applies
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// PublicDir is the static frontend root. Empty disables it.
	PublicDir string `yaml:"public_dir"`

	// UploadDir spools audio uploads. Empty means the OS temp dir.
	UploadDir string `yaml:"upload_dir"`

	// Timezone is the IANA zone date/time answers are rendered in.
	Timezone string `yaml:"timezone"`

	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Search     SearchConfig     `yaml:"search"`
	TTS        TTSConfig        `yaml:"tts"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

// CacheConfig controls the text and audio caches.
type CacheConfig struct {
	// Dir is the badger database directory. Empty keeps the caches in
	// memory only.
	Dir string `yaml:"dir"`

	// MaxEntries bounds each cache namespace.
	MaxEntries int `yaml:"max_entries"`
}

// StorageConfig selects the audio artifact store.
type StorageConfig struct {
	// Backend is "local" or "s3".
	Backend string `yaml:"backend"`

	// Dir is the local artifact directory.
	Dir string `yaml:"dir"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures the S3 artifact store.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// GeneratorConfig selects and tunes the generative backend.
type GeneratorConfig struct {
	// Provider is "openai" or "gemini".
	Provider string `yaml:"provider"`

	// APIKey is overridden by OPENAI_API_KEY or GEMINI_API_KEY.
	APIKey string `yaml:"api_key"`

	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// SearchConfig configures the SerpAPI collaborator.
type SearchConfig struct {
	// APIKey is overridden by SERPAPI_KEY. Required.
	APIKey string `yaml:"api_key"`

	Language string `yaml:"language"`
	Country  string `yaml:"country"`

	// ConfirmDerived asks the user before running a search the
	// classifier inferred (explicit "search:" requests always run).
	ConfirmDerived bool `yaml:"confirm_derived"`
}

// TTSConfig selects and tunes the speech synthesis provider.
type TTSConfig struct {
	// Provider is "google", "openai" or "" (voice answers disabled).
	Provider string `yaml:"provider"`

	// Language is the synthesis language code for Google Translate.
	Language string `yaml:"language"`

	// APIKey is for the OpenAI provider, overridden by OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`
	Voice string `yaml:"voice"`

	MaxPartRunes int `yaml:"max_part_runes"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TranscribeConfig selects the speech-to-text collaborator.
type TranscribeConfig struct {
	// Mode is "exec", "whisper" or "" (uploads disabled).
	Mode string `yaml:"mode"`

	// Command and Script configure the exec mode subprocess.
	Command string `yaml:"command"`
	Script  string `yaml:"script"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	// APIKey is for whisper mode, overridden by OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DispatchConfig tunes the session dispatcher.
type DispatchConfig struct {
	// GateTimeoutSeconds is the playback watchdog.
	GateTimeoutSeconds int `yaml:"gate_timeout_seconds"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:    ":3000",
		PublicDir: "public",
		Timezone:  "Europe/Berlin",
		Cache: CacheConfig{
			MaxEntries: 1000,
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     "audio",
		},
		Generator: GeneratorConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   500,
		},
		Search: SearchConfig{
			Language: "ru",
			Country:  "ru",
		},
		TTS: TTSConfig{
			Provider: "google",
			Language: "ru",
		},
		Transcribe: TranscribeConfig{
			Mode:    "exec",
			Command: "python3",
			Script:  "transcribe.py",
		},
		Dispatch: DispatchConfig{
			GateTimeoutSeconds: 30,
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. Path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Generator.Provider == "openai" {
			c.Generator.APIKey = v
		}
		if c.TTS.Provider == "openai" {
			c.TTS.APIKey = v
		}
		if c.Transcribe.Mode == "whisper" {
			c.Transcribe.APIKey = v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Generator.Provider == "gemini" {
		c.Generator.APIKey = v
	}
	if v := os.Getenv("SERPAPI_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch c.Generator.Provider {
	case "openai", "gemini":
		if c.Generator.APIKey == "" {
			return fmt.Errorf("config: generator provider %q requires an api key", c.Generator.Provider)
		}
	default:
		return fmt.Errorf("config: unknown generator provider %q", c.Generator.Provider)
	}

	if c.Search.APIKey == "" {
		return fmt.Errorf("config: web search requires an api key (SERPAPI_KEY)")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			return fmt.Errorf("config: local storage requires a directory")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("config: s3 storage requires a bucket")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	switch c.TTS.Provider {
	case "", "google":
	case "openai":
		if c.TTS.APIKey == "" {
			return fmt.Errorf("config: openai tts requires an api key")
		}
	default:
		return fmt.Errorf("config: unknown tts provider %q", c.TTS.Provider)
	}

	switch c.Transcribe.Mode {
	case "", "exec":
	case "whisper":
		if c.Transcribe.APIKey == "" {
			return fmt.Errorf("config: whisper transcription requires an api key")
		}
	default:
		return fmt.Errorf("config: unknown transcribe mode %q", c.Transcribe.Mode)
	}

	if c.Dispatch.GateTimeoutSeconds <= 0 {
		return fmt.Errorf("config: gate timeout must be positive")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// GateTimeout returns the playback watchdog as a duration.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.Dispatch.GateTimeoutSeconds) * time.Second
}

// TranscribeTimeout returns the transcription deadline, zero for the
// package default.
func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.Transcribe.TimeoutSeconds) * time.Second
}
