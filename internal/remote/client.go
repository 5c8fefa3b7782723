package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client communicates with the music generation REST API.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an API client. timeout bounds every single request.
func NewClient(apiURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "remote"),
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.apiURL
}

// WaitForHealthy blocks until the API responds to health checks.
func (c *Client) WaitForHealthy(ctx context.Context, interval time.Duration) error {
	c.logger.Info("waiting for generation API", "url", c.apiURL)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.Healthy(ctx) {
			c.logger.Info("generation API is healthy")
			return nil
		}
		c.logger.Warn("generation API not ready, retrying", "retry_in", interval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Healthy performs a single health probe.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/", nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Submit sends a generation request and returns the task handle.
func (c *Client) Submit(ctx context.Context, p Params) (string, error) {
	body := submitBody{
		Prompt:          p.Description,
		FreeInput:       p.Description,
		StructuredInput: p.Facets.Map(),
		Duration:        p.Duration,
		NumGenerations:  p.Count,
	}

	var (
		reader      io.Reader
		contentType string
	)
	if p.HasMelody() {
		buf, ct, err := multipartBody(body, p.MelodyName, p.Melody)
		if err != nil {
			return "", fmt.Errorf("build multipart request: %w", err)
		}
		reader, contentType = buf, ct
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
		reader, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/generate-music", reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", uuid.NewString())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var result submitResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("submit task: response carried no task_id")
	}

	c.logger.Debug("task submitted", "task_id", result.TaskID, "count", p.Count, "duration", p.Duration)
	return result.TaskID, nil
}

// Query fetches the current status of a task.
func (c *Client) Query(ctx context.Context, taskID string) (QueryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/api/task/"+url.PathEscape(taskID), nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("create poll request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query task: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return QueryResult{}, err
	}

	var raw queryResp
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return QueryResult{}, fmt.Errorf("decode task status: %w", err)
	}

	res := QueryResult{
		Status:   raw.Status,
		Progress: raw.Progress,
		Message:  raw.Message,
	}
	if raw.Status == StatusCompleted {
		res.Results = descriptors(raw)
	}
	return res, nil
}

// descriptors converts result items, falling back to the single file_url
// older service versions report.
func descriptors(raw queryResp) []AssetDescriptor {
	out := make([]AssetDescriptor, 0, len(raw.Results))
	for _, item := range raw.Results {
		name := item.Name
		if name == "" {
			name = path.Base(item.URL)
		}
		out = append(out, AssetDescriptor{Name: name, SourceURL: item.URL, Label: item.Prompt})
	}
	if len(out) == 0 && raw.FileURL != "" {
		out = append(out, AssetDescriptor{
			Name:      path.Base(raw.FileURL),
			SourceURL: raw.FileURL,
			Label:     raw.Message,
		})
	}
	return out
}

// FetchStream downloads the whole audio payload of an asset.
func (c *Client) FetchStream(ctx context.Context, asset AssetDescriptor) ([]byte, error) {
	ref := asset.SourceURL
	if ref == "" {
		ref = "/audio/" + url.PathEscape(asset.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Resolve(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio %s: %w", asset.Name, err)
	}
	return data, nil
}

// Attachment is an open download of a generated file.
type Attachment struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Size        int64
}

// Download opens the attachment endpoint for a generated file. The caller
// must close Body.
func (c *Client) Download(ctx context.Context, name string) (*Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/download/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	filename := name
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Attachment{
		Body:        resp.Body,
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Size:        resp.ContentLength,
	}, nil
}

// SaveTo downloads a generated file into dir and returns the written path.
func (c *Client) SaveTo(ctx context.Context, name, dir string) (string, error) {
	att, err := c.Download(ctx, name)
	if err != nil {
		return "", err
	}
	defer att.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	dst := filepath.Join(dir, att.Filename)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, att.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return dst, nil
}

// Resolve turns a service-relative reference into an absolute URL.
func (c *Client) Resolve(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.apiURL + ref
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// checkStatus converts non-2xx responses to *APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
}

func multipartBody(body submitBody, melodyName string, melody []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	structured, err := json.Marshal(body.StructuredInput)
	if err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"prompt", body.Prompt},
		{"free_input", body.FreeInput},
		{"structured_input", string(structured)},
		{"duration", strconv.Itoa(body.Duration)},
		{"num_generations", strconv.Itoa(body.NumGenerations)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if melodyName == "" {
		melodyName = "melody.wav"
	}
	part, err := w.CreateFormFile("melody", filepath.Base(melodyName))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(melody); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
