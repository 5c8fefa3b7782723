package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when the model answers with nothing.
var ErrEmptyCompletion = errors.New("empty completion")

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL string
	Model   string
	// Timeout bounds one completion, including a cold model load.
	Timeout time.Duration
}

// OllamaClient completes prompts against an Ollama server's generate API.
type OllamaClient struct {
	cfg  OllamaConfig
	http *http.Client
}

// NewOllamaClient creates a client. A zero timeout selects two minutes.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &OllamaClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.cfg.Model
}

// Ping checks that the server answers its model listing.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	return nil
}

type completionRequest struct {
	Model   string    `json:"model"`
	Prompt  string    `json:"prompt"`
	System  string    `json:"system,omitempty"`
	Stream  bool      `json:"stream"`
	Options *Sampling `json:"options,omitempty"`
}

type completionResponse struct {
	Response string `json:"response"`
}

// Generate runs one non-streaming completion and returns the trimmed text.
func (c *OllamaClient) Generate(ctx context.Context, in Completion) (string, error) {
	body := completionRequest{
		Model:  c.cfg.Model,
		Prompt: in.Prompt,
		System: in.System,
	}
	if in.Sampling != (Sampling{}) {
		s := in.Sampling
		body.Options = &s
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode completion: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
