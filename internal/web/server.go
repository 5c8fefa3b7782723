// Package web exposes the task and playback controllers over HTTP: a JSON
// API, a WebSocket state feed and per-asset audio streams.
package web

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/history"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/playback"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/task"
)

// Tasks is the task lifecycle surface used by the API.
type Tasks interface {
	Validate(p remote.Params) error
	Submit(ctx context.Context, p remote.Params) (string, error)
	Reset() error
	State() task.State
	Subscribe() *stream.Listener[task.State]
	Unsubscribe(l *stream.Listener[task.State])
}

// Assets is the playback surface used by the API.
type Assets interface {
	Play(ctx context.Context, name string) error
	Pause(name string) error
	Toggle(ctx context.Context, name string) error
	Seek(name string, seconds float64) error
	Entry(name string) (playback.EntryState, error)
	Snapshot() playback.Snapshot
	Source(name string) (*stream.Broadcaster[[]int16], error)
	Subscribe() *stream.Listener[playback.Snapshot]
	Unsubscribe(l *stream.Listener[playback.Snapshot])
}

// Downloader opens a generated file as an attachment.
type Downloader interface {
	Download(ctx context.Context, name string) (*remote.Attachment, error)
}

// Enhancer rewrites request parameters into a richer prompt.
type Enhancer interface {
	Enhance(ctx context.Context, p remote.Params) remote.Params
}

// StreamServer serves one asset's audio to a listener.
type StreamServer interface {
	Serve(w http.ResponseWriter, r *http.Request, name string)
}

// Deps are the components the server routes to. Enhancer, HTTPStream and
// WebRTC may be nil.
type Deps struct {
	Tasks      Tasks
	Assets     Assets
	History    history.Store
	Downloader Downloader
	Enhancer   Enhancer
	HTTPStream StreamServer
	WebRTC     StreamServer
}

// Options configure the server.
type Options struct {
	CORSOrigins  []string
	HistoryLimit int
	// MaxMelodyBytes bounds an uploaded melody reference.
	MaxMelodyBytes int64
}

const defaultMaxMelodyBytes = 20 << 20

// Server is the studio HTTP surface.
type Server struct {
	deps     Deps
	opts     Options
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a server. Call Run to start pushing state.
func NewServer(deps Deps, opts Options, logger *slog.Logger) *Server {
	if opts.MaxMelodyBytes <= 0 {
		opts.MaxMelodyBytes = defaultMaxMelodyBytes
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = history.DefaultLimit
	}
	logger = logger.With("component", "web")
	s := &Server{
		deps:   deps,
		opts:   opts,
		hub:    NewHub(logger),
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run forwards controller state to WebSocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	tasks := s.deps.Tasks.Subscribe()
	defer s.deps.Tasks.Unsubscribe(tasks)
	assets := s.deps.Assets.Subscribe()
	defer s.deps.Assets.Unsubscribe(assets)

	go s.hub.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-tasks.Done():
			return
		case <-assets.Done():
			return
		case st := <-tasks.C:
			s.hub.Broadcast(Message{Type: MessageTask, Data: st})
		case snap := <-assets.C:
			s.hub.Broadcast(Message{Type: MessageAssets, Data: snap})
		}
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), cors.New(s.corsConfig()))

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/task", s.getTask)
		api.POST("/generate", s.generate)
		api.POST("/reset", s.reset)
		api.GET("/genres", s.genres)
		api.GET("/history", s.listHistory)
		api.GET("/ws", s.serveWS)

		assets := api.Group("/assets")
		assets.GET("", s.listAssets)
		assets.GET("/:name", s.getAsset)
		assets.POST("/:name/play", s.play)
		assets.POST("/:name/pause", s.pause)
		assets.POST("/:name/toggle", s.toggle)
		assets.POST("/:name/seek", s.seek)
		assets.GET("/:name/download", s.download)
	}

	r.GET("/stream/:name", s.streamHTTP)
	r.POST("/offer/:name", s.streamWebRTC)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if len(s.opts.CORSOrigins) == 0 || slices.Contains(s.opts.CORSOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.opts.CORSOrigins
	}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	cfg.ExposeHeaders = []string{"Content-Disposition"}
	return cfg
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.CORSOrigins) == 0 {
		return true
	}
	return slices.Contains(s.opts.CORSOrigins, "*") || slices.Contains(s.opts.CORSOrigins, origin)
}

// serveAttachment copies an attachment body into the response.
func serveAttachment(c *gin.Context, att *remote.Attachment) {
	defer att.Body.Close()
	c.DataFromReader(http.StatusOK, att.Size, att.ContentType, att.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}),
	})
}
