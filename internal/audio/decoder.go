package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func ffmpegDecodeArgs(input string) []string {
	return []string{
		"-i", input,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	}
}

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at 48kHz.
func DecodeFile(ctx context.Context, path string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegDecodeArgs(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w%s", path, err, stderrSuffix(&stderr))
	}
	return BytesToSamples(out), nil
}

// DecodeBytes decodes an in-memory audio payload of any FFmpeg supported
// container by piping it through stdin.
func DecodeBytes(ctx context.Context, data []byte) ([]int16, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegDecodeArgs("pipe:0")...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w%s", err, stderrSuffix(&stderr))
	}
	return BytesToSamples(out), nil
}

// BytesToSamples converts little-endian s16 bytes to samples. A trailing odd
// byte is dropped.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

func stderrSuffix(b *bytes.Buffer) string {
	msg := strings.TrimSpace(b.String())
	if msg == "" {
		return ""
	}
	return ": " + msg
}
