package stream

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = Format{SampleRate: 48000, Channels: 2, FrameDuration: 20 * time.Millisecond}

type missingSources struct{}

func (missingSources) Source(name string) (*Broadcaster[[]int16], error) {
	return nil, errors.New("asset not found: " + name)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPHandlerUnknownAsset(t *testing.T) {
	h := NewHTTPHandler(missingSources{}, testFormat, discard())
	rec := httptest.NewRecorder()
	h.Serve(rec, httptest.NewRequest(http.MethodGet, "/stream/x.wav", nil), "x.wav")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "asset not found: x.wav")
}

func TestWebRTCHandlerUnknownAsset(t *testing.T) {
	h := NewWebRTCHandler(missingSources{}, testFormat, discard())
	rec := httptest.NewRecorder()
	h.Serve(rec, httptest.NewRequest(http.MethodPost, "/offer/x.wav", strings.NewReader(`{}`)), "x.wav")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"asset not found: x.wav"}`, rec.Body.String())
	assert.Equal(t, 0, h.PeerCount())
}

type oneSource struct{ b *Broadcaster[[]int16] }

func (s oneSource) Source(string) (*Broadcaster[[]int16], error) { return s.b, nil }

func TestWebRTCHandlerRejectsBadOffer(t *testing.T) {
	h := NewWebRTCHandler(oneSource{NewBroadcaster[[]int16](0)}, testFormat, discard())
	rec := httptest.NewRecorder()
	h.Serve(rec, httptest.NewRequest(http.MethodPost, "/offer/a", strings.NewReader(`not json`)), "a")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid SDP offer")
}

func TestWebRTCPeerClosedWhenSourceEnds(t *testing.T) {
	b := NewBroadcaster[[]int16](1)
	h := NewWebRTCHandler(oneSource{b}, testFormat, discard())

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "studio-a")
	require.NoError(t, err)

	h.mu.Lock()
	h.peers[pc] = "a"
	h.mu.Unlock()

	listener := b.Subscribe()
	done := make(chan struct{})
	go func() {
		h.streamToPeer(b, listener, pc, track, "a")
		close(done)
	}()
	require.Equal(t, 1, h.PeerCount())

	b.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream loop did not exit")
	}
	assert.Equal(t, 0, h.PeerCount())
	assert.Equal(t, webrtc.PeerConnectionStateClosed, pc.ConnectionState())
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, []string{"-f", "s16le", "-ar", "48000", "-ac", "2"}, testFormat.ffmpegArgs())
}

func TestPCMBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := pcmBytes(samples)
	assert.Len(t, buf, len(samples)*2)

	// 256 = 0x0100 -> [0x00, 0x01]
	assert.Equal(t, []byte{0x00, 0x01}, buf[10:12])
	// -1 -> [0xff, 0xff]
	assert.Equal(t, []byte{0xff, 0xff}, buf[4:6])
}
