package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
)

// HTTPHandler serves a chunked MP3 stream of one asset's playback.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real time.
type HTTPHandler struct {
	sources Sources
	format  Format
	logger  *slog.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(sources Sources, format Format, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		sources: sources,
		format:  format,
		logger:  logger.With("component", "http_stream"),
	}
}

// Serve streams the named asset until the client goes away.
func (h *HTTPHandler) Serve(w http.ResponseWriter, r *http.Request, name string) {
	source, err := h.sources.Source(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	args := append(h.format.ffmpegArgs(),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.logger.Error("stdin pipe", "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.logger.Error("stdout pipe", "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.logger.Error("ffmpeg start", "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")

	listener := source.Subscribe()
	defer source.Unsubscribe(listener)

	h.logger.Info("listener connected", "asset", name, "listeners", source.ListenerCount())
	defer h.logger.Info("listener disconnected", "asset", name)

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				cancel()
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(pcmBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				h.logger.Warn("ffmpeg read", "error", err)
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}
