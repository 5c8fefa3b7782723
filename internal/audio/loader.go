package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/dhowden/tag"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/playback"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// ErrEmptyAudio is returned when an asset decodes to no samples.
var ErrEmptyAudio = errors.New("asset decoded to no audio")

// Fetcher downloads the payload of an asset.
type Fetcher interface {
	FetchStream(ctx context.Context, asset remote.AssetDescriptor) ([]byte, error)
}

// Loader builds players for generated assets: fetch, read tags, decode.
type Loader struct {
	fetcher Fetcher
	decode  func(ctx context.Context, data []byte) ([]int16, error)
	logger  *slog.Logger
}

// NewLoader creates a loader that decodes with FFmpeg.
func NewLoader(fetcher Fetcher, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		decode:  DecodeBytes,
		logger:  logger.With("component", "loader"),
	}
}

// Acquire implements playback.Acquirer.
func (l *Loader) Acquire(ctx context.Context, desc remote.AssetDescriptor, events playback.Events) (playback.Resource, error) {
	data, err := l.fetcher.FetchStream(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	events.Metadata(ReadMetadata(desc.Name, data))

	samples, err := l.decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	p := NewPlayer(samples, events, l.logger.With("asset", desc.Name))
	events.DurationKnown(p.Duration().Seconds())

	l.logger.Info("asset loaded",
		"asset", desc.Name,
		"bytes", len(data),
		"duration", p.Duration().Round(FrameDuration),
	)
	return p, nil
}

// ReadMetadata reads container tags from data. Payloads without tags (plain
// WAV, for one) fall back to the file name.
func ReadMetadata(name string, data []byte) playback.Metadata {
	ext := path.Ext(name)
	fallback := playback.Metadata{
		Title:  strings.TrimSuffix(path.Base(name), ext),
		Format: strings.ToUpper(strings.TrimPrefix(ext, ".")),
	}

	meta, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return fallback
	}

	m := playback.Metadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
		Format: string(meta.FileType()),
	}
	if m.Title == "" {
		m.Title = fallback.Title
	}
	if m.Format == "" {
		m.Format = fallback.Format
	}
	return m
}
