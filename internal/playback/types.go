package playback

import (
	"context"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
)

// Resource is the playable audio behind one entry.
type Resource interface {
	Play()
	Pause()
	Seek(offset time.Duration)
	Close() error
}

// Streamer is implemented by resources that expose their PCM output.
type Streamer interface {
	Output() *stream.Broadcaster[[]int16]
}

// Events is how a resource reports back to its entry. Calls from a resource
// that no longer belongs to the current batch are ignored.
type Events interface {
	DurationKnown(seconds float64)
	Position(seconds float64)
	Ended()
	Metadata(m Metadata)
}

// Acquirer creates the resource for an asset. It may block on the network.
type Acquirer func(ctx context.Context, desc remote.AssetDescriptor, events Events) (Resource, error)

// Metadata is read from the container tags of the fetched payload.
type Metadata struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Format string `json:"format,omitempty"`
}

// EntryState is a read-only view of one playback entry.
type EntryState struct {
	Name          string    `json:"name"`
	Label         string    `json:"label"`
	SourceURL     string    `json:"source_url"`
	Playing       bool      `json:"playing"`
	Duration      float64   `json:"duration"`
	DurationKnown bool      `json:"duration_known"`
	Position      float64   `json:"position"`
	Loaded        bool      `json:"loaded"`
	Loading       bool      `json:"loading"`
	Err           string    `json:"error,omitempty"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}

// Snapshot is the ordered entry set of one installed batch.
type Snapshot struct {
	Generation uint64       `json:"generation"`
	Entries    []EntryState `json:"entries"`
}

// Config holds playback policy.
type Config struct {
	// Exclusive pauses every other entry when one starts playing.
	Exclusive bool
	// AcquireTimeout bounds fetching and decoding one asset.
	AcquireTimeout time.Duration
}

const defaultAcquireTimeout = 60 * time.Second
