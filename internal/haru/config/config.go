// Package config loads the service configuration from a YAML document.
// Secrets (API keys) are never kept in the document; they come from the
// environment at startup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// MediaDir is the directory for generated image and audio blobs.
	MediaDir string `yaml:"mediaDir"`

	LLM          LLM          `yaml:"llm"`
	Image        Image        `yaml:"image"`
	Music        Music        `yaml:"music"`
	Conversation Conversation `yaml:"conversation"`
	Limits       Limits       `yaml:"limits"`
}

// LLM configures the chat/summary model backend.
type LLM struct {
	BaseURL        string `yaml:"baseURL"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Image configures the image generation backend.
type Image struct {
	BaseURL        string `yaml:"baseURL"`
	Model          string `yaml:"model"`
	Size           string `yaml:"size"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Music configures the background-music backend.
type Music struct {
	BaseURL         string `yaml:"baseURL"`
	DurationSeconds int    `yaml:"durationSeconds"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
}

// Conversation configures session behaviour. The phrase lists drive
// end-of-conversation detection; empty lists fall back to the built-in
// Korean defaults.
type Conversation struct {
	IdleTimeoutMinutes int      `yaml:"idleTimeoutMinutes"`
	UserEndPhrases     []string `yaml:"userEndPhrases"`
	AssistantEndCues   []string `yaml:"assistantEndCues"`
}

// Limits caps per-user request rates. Zero means the built-in default.
type Limits struct {
	ChatPerMinute       int `yaml:"chatPerMinute"`
	GenerationPerMinute int `yaml:"generationPerMinute"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config and validates it. It is the
// canonical entry point for loading configurations.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Database == "" {
		cfg.Database = "haru.db"
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "data/media"
	}
	if cfg.Conversation.IdleTimeoutMinutes == 0 {
		cfg.Conversation.IdleTimeoutMinutes = 30
	}
	if cfg.Limits.ChatPerMinute == 0 {
		cfg.Limits.ChatPerMinute = 30
	}
	if cfg.Limits.GenerationPerMinute == 0 {
		cfg.Limits.GenerationPerMinute = 10
	}
}

// Validate checks a Config for structural correctness. It returns the
// first validation error encountered, or nil if the config is valid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return fmt.Errorf("database must not be empty")
	}
	if strings.TrimSpace(cfg.MediaDir) == "" {
		return fmt.Errorf("mediaDir must not be empty")
	}

	if cfg.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("llm: timeoutSeconds must be >= 0")
	}
	if cfg.Image.TimeoutSeconds < 0 {
		return fmt.Errorf("image: timeoutSeconds must be >= 0")
	}
	if cfg.Music.TimeoutSeconds < 0 {
		return fmt.Errorf("music: timeoutSeconds must be >= 0")
	}
	if cfg.Music.DurationSeconds < 0 {
		return fmt.Errorf("music: durationSeconds must be >= 0")
	}

	if cfg.Conversation.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("conversation: idleTimeoutMinutes must be > 0")
	}
	for i, p := range cfg.Conversation.UserEndPhrases {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("conversation: userEndPhrases[%d] must not be empty", i)
		}
	}
	for i, p := range cfg.Conversation.AssistantEndCues {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("conversation: assistantEndCues[%d] must not be empty", i)
		}
	}

	if cfg.Limits.ChatPerMinute < 0 {
		return fmt.Errorf("limits: chatPerMinute must be >= 0")
	}
	if cfg.Limits.GenerationPerMinute < 0 {
		return fmt.Errorf("limits: generationPerMinute must be >= 0")
	}
	return nil
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Conversation) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}
