package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/assist"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
)

// generateRequest is the body of POST /api/generate, sent as JSON or as a
// multipart form carrying a melody file.
type generateRequest struct {
	Description string        `json:"description"`
	Facets      remote.Facets `json:"facets"`
	Duration    int           `json:"duration"`
	Count       int           `json:"num_generations"`
	// Enhance expands the prompt with the language model, when configured.
	Enhance bool `json:"enhance"`
	// Preset fills unset facets from the genre preset.
	Preset bool `json:"preset"`
}

func (req generateRequest) params() remote.Params {
	return remote.Params{
		Description: req.Description,
		Facets:      req.Facets,
		Duration:    req.Duration,
		Count:       req.Count,
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
	})
}

func (s *Server) getTask(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Tasks.State())
}

func (s *Server) generate(c *gin.Context) {
	req, melody, err := s.bindGenerate(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	p := req.params()
	if melody != nil {
		p.Melody = melody.data
		p.MelodyName = melody.name
	}
	if req.Preset {
		p.Facets = assist.ApplyPreset(p.Facets)
	}
	if err := s.deps.Tasks.Validate(p); err != nil {
		writeError(c, err)
		return
	}
	if req.Enhance {
		if s.deps.Enhancer == nil {
			badRequest(c, "prompt enhancement is not configured")
			return
		}
		p = s.deps.Enhancer.Enhance(c.Request.Context(), p)
	}

	id, err := s.deps.Tasks.Submit(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": id,
		"task":    s.deps.Tasks.State(),
	})
}

type upload struct {
	name string
	data []byte
}

func (s *Server) bindGenerate(c *gin.Context) (generateRequest, *upload, error) {
	var req generateRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, nil, fmt.Errorf("invalid request body: %w", err)
		}
		return req, nil, nil
	}

	req.Description = c.PostForm("description")
	req.Facets = remote.Facets{
		Genre:       c.PostForm("genre"),
		Mood:        c.PostForm("mood"),
		Tempo:       c.PostForm("tempo"),
		Instruments: c.PostForm("instruments"),
		Segment:     c.PostForm("segment"),
	}
	var err error
	if req.Duration, err = formInt(c, "duration"); err != nil {
		return req, nil, err
	}
	if req.Count, err = formInt(c, "num_generations"); err != nil {
		return req, nil, err
	}
	req.Enhance = formBool(c, "enhance")
	req.Preset = formBool(c, "preset")

	fh, err := c.FormFile("melody")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, fmt.Errorf("invalid melody upload: %w", err)
	}
	if fh.Size > s.opts.MaxMelodyBytes {
		return req, nil, fmt.Errorf("melody file exceeds %d bytes", s.opts.MaxMelodyBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return req, nil, fmt.Errorf("open melody upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxMelodyBytes+1))
	if err != nil {
		return req, nil, fmt.Errorf("read melody upload: %w", err)
	}
	return req, &upload{name: fh.Filename, data: data}, nil
}

func formInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func formBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.PostForm(key))
	return b
}

func (s *Server) reset(c *gin.Context) {
	if err := s.deps.Tasks.Reset(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Tasks.State())
}

func (s *Server) genres(c *gin.Context) {
	out := make([]assist.Preset, 0)
	for _, g := range assist.Genres() {
		p, _ := assist.PresetFor(g)
		out = append(out, p)
	}
	c.JSON(http.StatusOK, gin.H{"genres": out})
}

func (s *Server) listHistory(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []any{}})
		return
	}
	limit := s.opts.HistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, limit)
	}
	entries, err := s.deps.History.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("list history", "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) listAssets(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Assets.Snapshot())
}

func (s *Server) getAsset(c *gin.Context) {
	e, err := s.deps.Assets.Entry(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) play(c *gin.Context) {
	name := c.Param("name")
	s.respondEntry(c, name, s.deps.Assets.Play(c.Request.Context(), name))
}

func (s *Server) pause(c *gin.Context) {
	name := c.Param("name")
	s.respondEntry(c, name, s.deps.Assets.Pause(name))
}

func (s *Server) toggle(c *gin.Context) {
	name := c.Param("name")
	s.respondEntry(c, name, s.deps.Assets.Toggle(c.Request.Context(), name))
}

func (s *Server) seek(c *gin.Context) {
	var body struct {
		Seconds *float64 `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Seconds == nil {
		badRequest(c, "seconds is required")
		return
	}
	name := c.Param("name")
	s.respondEntry(c, name, s.deps.Assets.Seek(name, *body.Seconds))
}

// respondEntry writes the entry after an intent, or the intent's error.
func (s *Server) respondEntry(c *gin.Context, name string, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	e, err := s.deps.Assets.Entry(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) download(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.deps.Assets.Entry(name); err != nil {
		writeError(c, err)
		return
	}
	att, err := s.deps.Downloader.Download(c.Request.Context(), name)
	if err != nil {
		s.logger.Warn("download failed", "asset", name, "error", err)
		writeError(c, err)
		return
	}
	serveAttachment(c, att)
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), s.hub, conn)
	client.send <- Message{Type: MessageTask, Data: s.deps.Tasks.State()}
	client.send <- Message{Type: MessageAssets, Data: s.deps.Assets.Snapshot()}
	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (s *Server) streamHTTP(c *gin.Context) {
	s.serveStream(c, s.deps.HTTPStream)
}

func (s *Server) streamWebRTC(c *gin.Context) {
	s.serveStream(c, s.deps.WebRTC)
}

func (s *Server) serveStream(c *gin.Context, srv StreamServer) {
	if srv == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "stream not available"})
		return
	}
	name := c.Param("name")
	if _, err := s.deps.Assets.Source(name); err != nil {
		writeError(c, err)
		return
	}
	srv.Serve(c.Writer, c.Request, name)
}
