package assist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

func TestCompose(t *testing.T) {
	got := Compose(remote.Params{
		Description: "  rainy cafe  ",
		Facets:      remote.Facets{Tempo: "90 bpm", Genre: "jazz", Mood: "  "},
	})
	want := "Free-form description: rainy cafe\n" +
		"Additional details:\n" +
		"- genre: jazz\n" +
		"- tempo: 90 bpm\n"
	assert.Equal(t, want, got)
}

func TestComposeWithoutFacets(t *testing.T) {
	assert.Equal(t, "Free-form description: hum\n", Compose(remote.Params{Description: "hum"}))
}

func TestGenresSortedAndResolvable(t *testing.T) {
	names := Genres()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	for _, n := range names {
		p, ok := PresetFor(strings.ToUpper(n))
		assert.True(t, ok, n)
		assert.NotEmpty(t, p.Instruments, n)
	}
}

func TestApplyPreset(t *testing.T) {
	f := ApplyPreset(remote.Facets{Genre: "Jazz", Mood: "melancholic"})
	assert.Equal(t, "melancholic", f.Mood, "user facets win")
	assert.Equal(t, "medium swing", f.Tempo)
	assert.NotEmpty(t, f.Instruments)

	unknown := remote.Facets{Genre: "polka"}
	assert.Equal(t, unknown, ApplyPreset(unknown))
}

func TestDisplayName(t *testing.T) {
	a := DisplayName("Jazz", "generated_music_1.wav")
	assert.True(t, strings.HasSuffix(a, " jazz"), a)
	assert.Equal(t, a, DisplayName("jazz", "generated_music_1.wav"), "deterministic")
	assert.Equal(t, "", DisplayName("jazz", ""))
	assert.True(t, strings.HasSuffix(DisplayName("", "x.wav"), " session"))
}

func TestLabel(t *testing.T) {
	in := []remote.AssetDescriptor{{Name: "a.wav", Label: "kept"}, {Name: "b.wav"}}
	out := Label(in, "rock")
	assert.Equal(t, "kept", out[0].Label)
	assert.Equal(t, DisplayName("rock", "b.wav"), out[1].Label)
	assert.Empty(t, in[1].Label, "input untouched")
}

type stubLLM struct {
	out string
	err error
	in  Completion
}

func (s *stubLLM) Generate(_ context.Context, in Completion) (string, error) {
	s.in = in
	return s.out, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnhance(t *testing.T) {
	llm := &stubLLM{out: "<think>hmm</think>\n\"Smooth late night jazz trio at 90 BPM with brushed drums.\""}
	e := NewEnhancer(llm, discard())
	p := remote.Params{Description: "cafe", Facets: remote.Facets{Genre: "jazz"}, Duration: 12}

	got := e.Enhance(context.Background(), p)
	assert.Equal(t, "Smooth late night jazz trio at 90 BPM with brushed drums.", got.Description)
	assert.Equal(t, "jazz", got.Facets.Genre)
	assert.Equal(t, 12, got.Duration)
	assert.Contains(t, llm.in.Prompt, "- genre: jazz")
	assert.Equal(t, enhanceSystemPrompt, llm.in.System)
	assert.Equal(t, enhanceSampling, llm.in.Sampling)
}

func TestEnhanceFallsBack(t *testing.T) {
	p := remote.Params{Description: "cafe"}

	e := NewEnhancer(&stubLLM{err: errors.New("connection refused")}, discard())
	assert.Equal(t, "Free-form description: cafe", e.Enhance(context.Background(), p).Description)

	e = NewEnhancer(&stubLLM{out: "ok"}, discard())
	assert.Equal(t, "Free-form description: cafe", e.Enhance(context.Background(), p).Description)
}

func TestOllamaClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "qwen3", req["model"])
			assert.Equal(t, false, req["stream"])
			assert.Equal(t, "sys", req["system"])
			assert.Equal(t, map[string]any{
				"temperature":    0.8,
				"top_p":          0.95,
				"num_predict":    float64(200),
				"repeat_penalty": 1.1,
			}, req["options"])
			w.Write([]byte(`{"response":"  a prompt  ","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/", Model: "qwen3", Timeout: time.Second})
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "qwen3", c.Model())

	out, err := c.Generate(context.Background(), Completion{System: "sys", Prompt: "user", Sampling: enhanceSampling})
	require.NoError(t, err)
	assert.Equal(t, "a prompt", out)
}

func TestOllamaClientOmitsZeroSampling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotContains(t, req, "options")
		assert.NotContains(t, req, "system")
		w.Write([]byte(`{"response":"   "}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "qwen3"})
	_, err := c.Generate(context.Background(), Completion{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOllamaClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "missing", Timeout: time.Second})
	_, err := c.Generate(context.Background(), Completion{Prompt: "x"})
	assert.ErrorContains(t, err, "ollama status 404")
	assert.ErrorContains(t, c.Ping(context.Background()), "ollama status 404")
}
