package audio

import (
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Format is the PCM layout every Player emits.
var Format = stream.Format{
	SampleRate:    SampleRate,
	Channels:      Channels,
	FrameDuration: FrameDuration,
}

// FrameCount returns the number of frames needed to hold n interleaved
// samples. A trailing partial frame counts as one.
func FrameCount(n int) int {
	return (n + FrameSamples - 1) / FrameSamples
}

// SamplesDuration is the playback length of n interleaved samples.
func SamplesDuration(n int) time.Duration {
	return time.Duration(n/Channels) * time.Second / SampleRate
}
