package remote

import "strings"

// Facets are the structured, optional descriptors of a generation request.
// An empty string means the facet is unset.
type Facets struct {
	Genre       string `json:"genre"`
	Mood        string `json:"mood"`
	Tempo       string `json:"tempo"`
	Instruments string `json:"instruments"`
	Segment     string `json:"segment"`
}

// Map returns the non-empty facets keyed by name.
func (f Facets) Map() map[string]string {
	m := make(map[string]string, 5)
	for _, k := range FacetKeys {
		if v := f.Get(k); v != "" {
			m[k] = v
		}
	}
	return m
}

// FacetKeys lists facet names in display order.
var FacetKeys = []string{"genre", "mood", "tempo", "instruments", "segment"}

// Get returns the trimmed value of the named facet.
func (f Facets) Get(key string) string {
	var v string
	switch key {
	case "genre":
		v = f.Genre
	case "mood":
		v = f.Mood
	case "tempo":
		v = f.Tempo
	case "instruments":
		v = f.Instruments
	case "segment":
		v = f.Segment
	}
	return strings.TrimSpace(v)
}

// Empty reports whether every facet is unset.
func (f Facets) Empty() bool {
	for _, k := range FacetKeys {
		if f.Get(k) != "" {
			return false
		}
	}
	return true
}

// Params are the inputs of one generation request.
type Params struct {
	Description string `json:"description"`
	Facets      Facets `json:"facets"`
	Duration    int    `json:"duration"` // seconds
	Count       int    `json:"num_generations"`

	// Melody is an optional reference recording sent as a file part.
	Melody     []byte `json:"-"`
	MelodyName string `json:"melody_name,omitempty"`
}

// HasMelody reports whether a melody reference is attached.
func (p Params) HasMelody() bool {
	return len(p.Melody) > 0
}

// AssetDescriptor identifies one generated audio result.
type AssetDescriptor struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Label     string `json:"label"`
}

// Task status values reported by the service. Anything else means the task
// is still running.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// QueryResult is one poll response.
type QueryResult struct {
	Status   string
	Progress int
	Message  string
	Results  []AssetDescriptor
}

// Terminal reports whether the status ends the task.
func (r QueryResult) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

type submitBody struct {
	Prompt          string            `json:"prompt"`
	FreeInput       string            `json:"free_input"`
	StructuredInput map[string]string `json:"structured_input,omitempty"`
	Duration        int               `json:"duration"`
	NumGenerations  int               `json:"num_generations"`
}

type submitResp struct {
	TaskID string `json:"task_id"`
}

type queryResp struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Progress int          `json:"progress"`
	FileURL  string       `json:"file_url"`
	Results  []resultItem `json:"results"`
}

type resultItem struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}
