package audio

import (
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
	if Format.SampleRate != SampleRate || Format.Channels != Channels || Format.FrameDuration != FrameDuration {
		t.Errorf("Format = %+v does not match constants", Format)
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		samples int
		want    int
	}{
		{0, 0},
		{1, 1},
		{FrameSamples, 1},
		{FrameSamples + 1, 2},
		{10 * FrameSamples, 10},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.samples); got != tt.want {
			t.Errorf("FrameCount(%d) = %d, want %d", tt.samples, got, tt.want)
		}
	}
}

func TestSamplesDuration(t *testing.T) {
	if got := SamplesDuration(SampleRate * Channels * 3); got != 3*time.Second {
		t.Errorf("SamplesDuration(3s of stereo) = %v, want 3s", got)
	}
	if got := SamplesDuration(FrameSamples); got != FrameDuration {
		t.Errorf("SamplesDuration(one frame) = %v, want %v", got, FrameDuration)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		if got := Smoothstep(tt.input); got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < %v", x, val, prev)
		}
		prev = val
	}
}

// --- Fades ---

func TestFadeIn(t *testing.T) {
	frame := []int16{1000, -1000, 400}
	silent := FadeIn(frame, 0)
	for i, v := range silent {
		if v != 0 {
			t.Errorf("FadeIn at 0: sample[%d] = %d, want 0", i, v)
		}
	}
	full := FadeIn(frame, 1)
	for i, v := range full {
		if v != frame[i] {
			t.Errorf("FadeIn at 1: sample[%d] = %d, want %d", i, v, frame[i])
		}
	}
	half := FadeIn(frame, 0.5)
	if half[0] != 500 || half[1] != -500 {
		t.Errorf("FadeIn at 0.5 = %v, want [500 -500 ...]", half)
	}
	if frame[0] != 1000 {
		t.Error("FadeIn modified its input")
	}
}

func TestCrossfadeEndpoints(t *testing.T) {
	out := []int16{1000, -1000, 500, -500}
	in := []int16{2000, -2000, 1500, -1500}
	start := CrossfadeFrames(out, in, 0)
	end := CrossfadeFrames(out, in, 1)
	for i := range out {
		if start[i] != out[i] {
			t.Errorf("progress=0 sample[%d] = %d, want %d", i, start[i], out[i])
		}
		if end[i] != in[i] {
			t.Errorf("progress=1 sample[%d] = %d, want %d", i, end[i], in[i])
		}
	}
}

func TestCrossfadeMidpointAndClipping(t *testing.T) {
	mid := CrossfadeFrames([]int16{1000, -1000}, []int16{3000, -3000}, 0.5)
	if mid[0] != 2000 || mid[1] != -2000 {
		t.Errorf("midpoint = %v, want [2000 -2000]", mid)
	}
	loud := CrossfadeFrames([]int16{32767, -32768}, []int16{32767, -32768}, 0.5)
	if loud[0] != 32767 || loud[1] != -32768 {
		t.Errorf("extremes at midpoint = %v, want [32767 -32768]", loud)
	}
}

// --- PCM bytes ---

func TestBytesToSamples(t *testing.T) {
	// 256 = 0x0100, -1 = 0xffff, trailing odd byte dropped
	got := BytesToSamples([]byte{0x00, 0x01, 0xff, 0xff, 0x7f})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != 256 || got[1] != -1 {
		t.Errorf("BytesToSamples = %v, want [256 -1]", got)
	}
}
