// Package config loads studio settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	// Music generation service
	APIURL string `mapstructure:"musicgen_api_url" validate:"required,url"`
	APIKey string `mapstructure:"musicgen_api_key"`

	// Server
	Port        int      `mapstructure:"studio_port" validate:"gt=0,lt=65536"`
	CORSOrigins []string `mapstructure:"studio_cors_origins" validate:"min=1"`
	LogLevel    string   `mapstructure:"studio_log_level" validate:"oneof=debug info warn error"`
	LogFormat   string   `mapstructure:"studio_log_format" validate:"oneof=json text"`

	// Task lifecycle
	PollInterval    time.Duration `mapstructure:"studio_poll_interval" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"studio_request_timeout" validate:"gt=0"`
	FetchTimeout    time.Duration `mapstructure:"studio_fetch_timeout" validate:"gt=0"`
	MaxPollFailures int           `mapstructure:"studio_max_poll_failures" validate:"gte=0"`
	TaskTimeout     time.Duration `mapstructure:"studio_task_timeout" validate:"gte=0"`
	SubmitPolicy    string        `mapstructure:"studio_submit_policy" validate:"oneof=supersede reject"`

	// Playback
	ExclusivePlayback bool `mapstructure:"studio_exclusive_playback"`

	// History
	RedisURL     string `mapstructure:"studio_redis_url" validate:"omitempty,url"`
	HistoryLimit int    `mapstructure:"studio_history_limit" validate:"gt=0"`

	// Prompt enhancement, disabled when OllamaURL is empty
	OllamaURL     string        `mapstructure:"studio_ollama_url" validate:"omitempty,url"`
	OllamaModel   string        `mapstructure:"studio_ollama_model" validate:"required_with=OllamaURL"`
	OllamaTimeout time.Duration `mapstructure:"studio_ollama_timeout" validate:"gt=0"`
}

var defaults = map[string]any{
	"musicgen_api_url":          "http://localhost:8000",
	"musicgen_api_key":          "",
	"studio_port":               8080,
	"studio_cors_origins":       []string{"http://localhost:3000"},
	"studio_log_level":          "info",
	"studio_log_format":         "json",
	"studio_poll_interval":      2 * time.Second,
	"studio_request_timeout":    15 * time.Second,
	"studio_fetch_timeout":      2 * time.Minute,
	"studio_max_poll_failures":  5,
	"studio_task_timeout":       10 * time.Minute,
	"studio_submit_policy":      "supersede",
	"studio_exclusive_playback": false,
	"studio_redis_url":          "",
	"studio_history_limit":      50,
	"studio_ollama_url":         "",
	"studio_ollama_model":       "qwen3:8b",
	"studio_ollama_timeout":     2 * time.Minute,
}

// Load reads configuration with environment variables taking precedence
// over the file named by STUDIO_CONFIG, which takes precedence over the
// defaults.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := v.GetString("studio_config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.SubmitPolicy = strings.ToLower(cfg.SubmitPolicy)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address for the studio server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// HistoryBackend names the history store in use.
func (c *Config) HistoryBackend() string {
	if c.RedisURL != "" {
		return "redis"
	}
	return "memory"
}
