package stream

import (
	"encoding/binary"
	"strconv"
	"time"
)

// Sources resolves an asset name to the broadcaster carrying its PCM frames.
type Sources interface {
	Source(name string) (*Broadcaster[[]int16], error)
}

// Format describes the interleaved s16le PCM a source produces.
type Format struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

func (f Format) ffmpegArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
	}
}

// pcmBytes converts int16 samples to little-endian bytes.
func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
