package assist

import (
	"strings"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// Compose merges the free text and facets of p into one prompt:
//
//	Free-form description: <text>
//	Additional details:
//	- genre: jazz
func Compose(p remote.Params) string {
	var b strings.Builder
	b.WriteString("Free-form description: ")
	b.WriteString(strings.TrimSpace(p.Description))
	b.WriteString("\n")

	if p.Facets.Empty() {
		return b.String()
	}
	b.WriteString("Additional details:\n")
	for _, key := range remote.FacetKeys {
		if v := p.Facets.Get(key); v != "" {
			b.WriteString("- ")
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return b.String()
}
