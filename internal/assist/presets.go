package assist

import (
	"slices"
	"strings"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// Preset is a ready-made set of facets offered for a genre.
type Preset struct {
	Genre       string `json:"genre"`
	Mood        string `json:"mood"`
	Tempo       string `json:"tempo"`
	Instruments string `json:"instruments"`
}

// Facets converts the preset into request facets.
func (p Preset) Facets() remote.Facets {
	return remote.Facets{
		Genre:       p.Genre,
		Mood:        p.Mood,
		Tempo:       p.Tempo,
		Instruments: p.Instruments,
	}
}

var presets = map[string]Preset{
	"ambient":      {"ambient", "peaceful, meditative", "slow, evolving", "soft synthesizer pads, gentle reverb"},
	"lofi hip hop": {"lofi hip hop", "rainy day, mellow", "relaxed boom bap", "jazz piano chords, vinyl crackle, warm bass"},
	"jazz":         {"jazz", "late night club", "medium swing", "upright bass, brushed drums, warm piano"},
	"bossa nova":   {"bossa nova", "tropical breeze", "relaxed Brazilian rhythm", "nylon string guitar, brushed percussion"},
	"classical":    {"classical", "refined, contemplative", "moderate adagio", "string quartet, delicate piano"},
	"cinematic":    {"cinematic", "dramatic, inspiring", "building", "sweeping strings, brass, timpani"},
	"synthwave":    {"synthwave", "neon 1980s nostalgia", "energetic mid-tempo", "analog synthesizers, arpeggios, electronic drums"},
	"electronic":   {"electronic", "uplifting", "four on the floor", "crisp synthesizers, layered pads"},
	"k-pop":        {"k-pop", "bright, confident", "120 BPM", "punchy synths, vocal chops, tight drums"},
	"acoustic":     {"acoustic folk", "intimate, warm", "gentle", "fingerpicked guitar, harmonica, double bass"},
	"rock":         {"rock", "raw, energetic", "driving", "electric guitar riffs, solid drums, deep bass"},
}

// Genres lists the preset names in alphabetical order.
func Genres() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// PresetFor returns the preset for a genre name, ignoring case.
func PresetFor(genre string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(genre))]
	return p, ok
}

// ApplyPreset fills the unset facets of f from the preset matching f.Genre.
func ApplyPreset(f remote.Facets) remote.Facets {
	p, ok := PresetFor(f.Genre)
	if !ok {
		return f
	}
	if f.Get("mood") == "" {
		f.Mood = p.Mood
	}
	if f.Get("tempo") == "" {
		f.Tempo = p.Tempo
	}
	if f.Get("instruments") == "" {
		f.Instruments = p.Instruments
	}
	return f
}

var adjectives = []string{
	"velvet", "midnight", "golden", "hazy", "coastal", "neon",
	"quiet", "glacial", "fireside", "soaring", "dusty", "luminous",
}

// DisplayName derives a stable human readable name for an asset that came
// back without a label. The same inputs always give the same name.
func DisplayName(genre, assetName string) string {
	if assetName == "" {
		return ""
	}
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" {
		genre = "session"
	}

	var h int
	for i := 0; i < len(assetName); i++ {
		h = h*31 + int(assetName[i])
	}
	if h < 0 {
		h = -h
	}
	return adjectives[h%len(adjectives)] + " " + genre
}

// Label fills in missing labels of descs using DisplayName.
func Label(descs []remote.AssetDescriptor, genre string) []remote.AssetDescriptor {
	out := make([]remote.AssetDescriptor, len(descs))
	for i, d := range descs {
		if strings.TrimSpace(d.Label) == "" {
			d.Label = DisplayName(genre, d.Name)
		}
		out[i] = d
	}
	return out
}
