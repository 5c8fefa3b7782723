package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", 5*time.Second, testLogger())
}

func TestSubmitJSON(t *testing.T) {
	var got submitBody
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate-music", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"task_id":"t-1"}`))
	}))

	id, err := c.Submit(context.Background(), Params{
		Description: "rainy cafe",
		Facets:      Facets{Genre: "jazz", Mood: "  "},
		Duration:    10,
		Count:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)
	assert.Equal(t, "rainy cafe", got.FreeInput)
	assert.Equal(t, map[string]string{"genre": "jazz"}, got.StructuredInput)
	assert.Equal(t, 10, got.Duration)
	assert.Equal(t, 2, got.NumGenerations)
}

func TestSubmitMultipartWithMelody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hum", r.FormValue("free_input"))
		assert.Equal(t, "3", r.FormValue("num_generations"))
		assert.JSONEq(t, `{}`, r.FormValue("structured_input"))

		f, hdr, err := r.FormFile("melody")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "tune.wav", hdr.Filename)
		assert.Equal(t, []byte("RIFF"), data)
		w.Write([]byte(`{"task_id":"t-2"}`))
	}))

	id, err := c.Submit(context.Background(), Params{
		Description: "hum",
		Duration:    5,
		Count:       3,
		Melody:      []byte("RIFF"),
		MelodyName:  "/tmp/tune.wav",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-2", id)
}

func TestSubmitValidationDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"prompt is required"}`, "prompt is required"},
		{"field list", `{"detail":[{"loc":["body","duration"],"msg":"ensure this value is less than or equal to 30","type":"value_error"}]}`,
			"duration: ensure this value is less than or equal to 30"},
		{"plain text", `boom`, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(tt.body))
			}))

			_, err := c.Submit(context.Background(), Params{Description: "x", Duration: 10, Count: 1})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.True(t, apiErr.Validation())
			assert.Equal(t, tt.want, DetailOf(err))
		})
	}
}

func TestQueryStatuses(t *testing.T) {
	responses := map[string]string{
		"running": `{"status":"processing","progress":40,"message":""}`,
		"done":    `{"status":"completed","progress":100,"message":"ok","results":[{"name":"a.wav","url":"/audio/a.wav","prompt":"jazz piece"},{"url":"/audio/b.wav","prompt":"second"}]}`,
		"legacy":  `{"status":"completed","progress":100,"message":"Music generated successfully (1 variations)","file_url":"/audio/generated_music_x.wav"}`,
		"failed":  `{"status":"failed","progress":20,"message":"Error generating music: cuda"}`,
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		body, ok := responses[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Task not found"}`))
			return
		}
		w.Write([]byte(body))
	}))
	ctx := context.Background()

	res, err := c.Query(ctx, "running")
	require.NoError(t, err)
	assert.False(t, res.Terminal())
	assert.Equal(t, 40, res.Progress)
	assert.Empty(t, res.Results)

	res, err = c.Query(ctx, "done")
	require.NoError(t, err)
	assert.True(t, res.Terminal())
	assert.Equal(t, []AssetDescriptor{
		{Name: "a.wav", SourceURL: "/audio/a.wav", Label: "jazz piece"},
		{Name: "b.wav", SourceURL: "/audio/b.wav", Label: "second"},
	}, res.Results)

	res, err = c.Query(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "generated_music_x.wav", res.Results[0].Name)
	assert.Equal(t, "/audio/generated_music_x.wav", res.Results[0].SourceURL)

	res, err = c.Query(ctx, "failed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "Error generating music: cuda", res.Message)

	_, err = c.Query(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Task not found", DetailOf(err))
}

func TestFetchStreamResolvesRelative(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/a.wav":
			w.Write([]byte("pcm-a"))
		case "/audio/b.wav":
			w.Write([]byte("pcm-b"))
		default:
			http.NotFound(w, r)
		}
	}))

	data, err := c.FetchStream(context.Background(), AssetDescriptor{Name: "a.wav", SourceURL: "/audio/a.wav"})
	require.NoError(t, err)
	assert.Equal(t, "pcm-a", string(data))

	data, err = c.FetchStream(context.Background(), AssetDescriptor{Name: "b.wav"})
	require.NoError(t, err)
	assert.Equal(t, "pcm-b", string(data))

	_, err = c.FetchStream(context.Background(), AssetDescriptor{Name: "c.wav", SourceURL: "audio/c.wav"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveTo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download/a.wav", r.URL.Path)
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="a.wav"`)
		w.Write([]byte("wave"))
	}))

	dir := t.TempDir()
	path, err := c.SaveTo(context.Background(), "a.wav", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "wave", string(data))
}

func TestResolve(t *testing.T) {
	c := NewClient("http://api:8000/", "", time.Second, testLogger())
	assert.Equal(t, "http://api:8000/audio/x.wav", c.Resolve("/audio/x.wav"))
	assert.Equal(t, "http://api:8000/audio/x.wav", c.Resolve("audio/x.wav"))
	assert.Equal(t, "https://cdn/x.wav", c.Resolve("https://cdn/x.wav"))
}

func TestHealthy(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"Welcome to the Music Generation API"}`))
	}))
	assert.True(t, c.Healthy(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitForHealthy(ctx, 10*time.Millisecond))
}

func TestFacets(t *testing.T) {
	assert.True(t, Facets{}.Empty())
	assert.True(t, Facets{Genre: "   "}.Empty())
	f := Facets{Tempo: " 120 bpm "}
	assert.False(t, f.Empty())
	assert.Equal(t, "120 bpm", f.Get("tempo"))
	assert.Equal(t, map[string]string{"tempo": "120 bpm"}, f.Map())
}
