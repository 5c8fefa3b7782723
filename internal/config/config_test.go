package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envVars = []string{
	"MUSICGEN_API_URL", "MUSICGEN_API_KEY",
	"STUDIO_PORT", "STUDIO_CORS_ORIGINS", "STUDIO_LOG_LEVEL", "STUDIO_LOG_FORMAT",
	"STUDIO_POLL_INTERVAL", "STUDIO_REQUEST_TIMEOUT", "STUDIO_FETCH_TIMEOUT",
	"STUDIO_MAX_POLL_FAILURES", "STUDIO_TASK_TIMEOUT", "STUDIO_SUBMIT_POLICY",
	"STUDIO_EXCLUSIVE_PLAYBACK", "STUDIO_REDIS_URL", "STUDIO_HISTORY_LIMIT",
	"STUDIO_OLLAMA_URL", "STUDIO_OLLAMA_MODEL", "STUDIO_OLLAMA_TIMEOUT", "STUDIO_CONFIG",
}

// clearEnv blanks every key; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIURL != "http://localhost:8000" {
		t.Errorf("APIURL = %q, want default", cfg.APIURL)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty default", cfg.APIKey)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
	if cfg.MaxPollFailures != 5 {
		t.Errorf("MaxPollFailures = %d, want 5", cfg.MaxPollFailures)
	}
	if cfg.TaskTimeout != 10*time.Minute {
		t.Errorf("TaskTimeout = %v, want 10m", cfg.TaskTimeout)
	}
	if cfg.SubmitPolicy != "supersede" {
		t.Errorf("SubmitPolicy = %q, want supersede", cfg.SubmitPolicy)
	}
	if cfg.OllamaTimeout != 2*time.Minute {
		t.Errorf("OllamaTimeout = %v, want 2m", cfg.OllamaTimeout)
	}
	if cfg.ExclusivePlayback {
		t.Error("ExclusivePlayback = true, want false")
	}
	if cfg.HistoryBackend() != "memory" {
		t.Errorf("HistoryBackend = %q, want memory", cfg.HistoryBackend())
	}
	if cfg.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", cfg.HistoryLimit)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("CORSOrigins = %v, want [http://localhost:3000]", cfg.CORSOrigins)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr())
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MUSICGEN_API_URL", "http://gpu-box:9000/")
	t.Setenv("MUSICGEN_API_KEY", "secret")
	t.Setenv("STUDIO_PORT", "3000")
	t.Setenv("STUDIO_POLL_INTERVAL", "500ms")
	t.Setenv("STUDIO_MAX_POLL_FAILURES", "0")
	t.Setenv("STUDIO_SUBMIT_POLICY", "REJECT")
	t.Setenv("STUDIO_EXCLUSIVE_PLAYBACK", "true")
	t.Setenv("STUDIO_REDIS_URL", "redis://redis:6379/0")
	t.Setenv("STUDIO_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("STUDIO_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIURL != "http://gpu-box:9000" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", cfg.APIURL)
	}
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", cfg.APIKey)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.MaxPollFailures != 0 {
		t.Errorf("MaxPollFailures = %d, want 0", cfg.MaxPollFailures)
	}
	if cfg.SubmitPolicy != "reject" {
		t.Errorf("SubmitPolicy = %q, want reject", cfg.SubmitPolicy)
	}
	if !cfg.ExclusivePlayback {
		t.Error("ExclusivePlayback = false, want true")
	}
	if cfg.HistoryBackend() != "redis" {
		t.Errorf("HistoryBackend = %q, want redis", cfg.HistoryBackend())
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "studio.yaml")
	body := "musicgen_api_url: http://file-host:8000\nstudio_port: 9090\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STUDIO_CONFIG", path)
	t.Setenv("STUDIO_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://file-host:8000" {
		t.Errorf("APIURL = %q, want value from file", cfg.APIURL)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want env to win over file", cfg.Port)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("STUDIO_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"STUDIO_PORT", "70000"},
		{"STUDIO_SUBMIT_POLICY", "queue"},
		{"STUDIO_LOG_LEVEL", "loud"},
		{"STUDIO_POLL_INTERVAL", "-1s"},
		{"STUDIO_MAX_POLL_FAILURES", "-2"},
		{"MUSICGEN_API_URL", "not a url"},
		{"STUDIO_HISTORY_LIMIT", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q: expected validation error", tt.key, tt.value)
			}
		})
	}
}
