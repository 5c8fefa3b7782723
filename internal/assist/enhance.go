package assist

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// Sampling holds the decoding options sent with a completion. Zero fields
// are left to the model's defaults.
type Sampling struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	MaxTokens     int     `json:"num_predict,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

// Completion is one prompt for a Generator.
type Completion struct {
	System   string
	Prompt   string
	Sampling Sampling
}

// Generator is an LLM completion endpoint.
type Generator interface {
	Generate(ctx context.Context, in Completion) (string, error)
}

const enhanceSystemPrompt = `You are a music composer writing prompts for a text-to-music model.

Expand the user's input into ONE rich paragraph of 2-3 sentences that names:
- the genre
- the rhythm or tempo (BPM when it helps)
- the melody character
- the theme or emotion
- the instruments

Keep every detail the user gave. Do not invent lyrics, artist names or song titles.

Output ONLY the paragraph. No preamble, no quotes, no lists.

/no_think`

// enhanceSampling keeps the paragraph short and varied between requests.
var enhanceSampling = Sampling{
	Temperature:   0.8,
	TopP:          0.95,
	MaxTokens:     200,
	RepeatPenalty: 1.1,
}

// Enhancer rewrites a request description into a fuller prompt. Any
// failure falls back to the plain composition.
type Enhancer struct {
	llm    Generator
	logger *slog.Logger
}

// NewEnhancer creates an enhancer backed by llm.
func NewEnhancer(llm Generator, logger *slog.Logger) *Enhancer {
	return &Enhancer{llm: llm, logger: logger.With("component", "assist")}
}

// Enhance returns p with its description replaced by the enhanced prompt.
// Facets are left in place so the service still receives them.
func (e *Enhancer) Enhance(ctx context.Context, p remote.Params) remote.Params {
	composed := Compose(p)
	p.Description = e.expand(ctx, composed)
	return p
}

func (e *Enhancer) expand(ctx context.Context, composed string) string {
	fallback := strings.TrimSpace(composed)

	out, err := e.llm.Generate(ctx, Completion{
		System:   enhanceSystemPrompt,
		Prompt:   composed,
		Sampling: enhanceSampling,
	})
	if err != nil {
		e.logger.Warn("prompt enhancement failed, using composition", "error", err)
		return fallback
	}

	out = cleanResponse(out)
	if len(out) < 15 {
		e.logger.Warn("unusable enhanced prompt", "response", out)
		return fallback
	}
	e.logger.Debug("enhanced prompt", "prompt", out)
	return out
}

// cleanResponse strips common LLM artifacts from output.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	// reasoning models may leak a <think> block
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	lower := strings.ToLower(s)
	for _, p := range []string{"here's the prompt:", "here is the prompt:", "prompt:"} {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return strings.TrimSpace(s)
}
