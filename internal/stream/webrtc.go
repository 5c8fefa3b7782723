package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

// WebRTCHandler negotiates SDP for low-latency Opus streaming of an asset.
type WebRTCHandler struct {
	sources Sources
	format  Format
	logger  *slog.Logger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]string
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(sources Sources, format Format, logger *slog.Logger) *WebRTCHandler {
	return &WebRTCHandler{
		sources: sources,
		format:  format,
		logger:  logger.With("component", "webrtc"),
		peers:   make(map[*webrtc.PeerConnection]string),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Serve answers an SDP offer with a session carrying the named asset.
func (h *WebRTCHandler) Serve(w http.ResponseWriter, r *http.Request, name string) {
	source, err := h.sources.Source(name)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid SDP offer")
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "create peer connection failed")
		return
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"studio-"+name,
	)
	if err != nil {
		pc.Close()
		writeJSONError(w, http.StatusInternalServerError, "create audio track failed")
		return
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		writeJSONError(w, http.StatusInternalServerError, "add track failed")
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		writeJSONError(w, http.StatusBadRequest, "set remote description failed")
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		writeJSONError(w, http.StatusInternalServerError, "create answer failed")
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		writeJSONError(w, http.StatusInternalServerError, "set local description failed")
		return
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-r.Context().Done():
		pc.Close()
		return
	}

	h.mu.Lock()
	h.peers[pc] = name
	h.mu.Unlock()
	h.logger.Info("peer connected", "asset", name, "peers", h.PeerCount())

	listener := source.Subscribe()
	go h.streamToPeer(source, listener, pc, track, name)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			source.Unsubscribe(listener)
			if h.removePeer(pc) {
				pc.Close()
				h.logger.Info("peer disconnected", "asset", name, "peers", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		peers = append(peers, pc)
	}
	clear(h.peers)
	h.mu.Unlock()

	for _, pc := range peers {
		pc.Close()
	}
}

// streamToPeer encodes frames onto track until the source ends, then
// hangs up the peer.
func (h *WebRTCHandler) streamToPeer(source *Broadcaster[[]int16], listener *Listener[[]int16], pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample, name string) {
	defer func() {
		source.Unsubscribe(listener)
		if h.removePeer(pc) {
			pc.Close()
			h.logger.Info("stream ended, peer closed", "asset", name, "peers", h.PeerCount())
		}
	}()

	enc, err := opus.NewEncoder(h.format.SampleRate, h.format.Channels, opus.AppAudio)
	if err != nil {
		h.logger.Error("opus encoder", "error", err)
		return
	}
	enc.SetBitrate(128000)

	opusBuf := make([]byte, 4000)
	for {
		select {
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				h.logger.Warn("opus encode", "error", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: h.format.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// removePeer reports whether pc was still registered.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[pc]; !ok {
		return false
	}
	delete(h.peers, pc)
	return true
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
