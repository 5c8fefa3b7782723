package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/assist"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/audio"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/config"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/history"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/playback"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/task"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/web"
)

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("studio starting up", "api_url", cfg.APIURL, "history", cfg.HistoryBackend())

	client := newRemote(cfg, log)
	healthCtx, healthCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := client.WaitForHealthy(healthCtx, 2*time.Second); err != nil {
		log.Warn("generation API not reachable yet, continuing", "error", err)
	}
	healthCancel()

	tcfg, err := taskConfig(cfg)
	if err != nil {
		return err
	}
	tasks := task.NewController(client, tcfg, log)

	loader := audio.NewLoader(client, log)
	assets := playback.NewController(loader.Acquire, playback.Config{
		Exclusive:      cfg.ExclusivePlayback,
		AcquireTimeout: cfg.FetchTimeout,
	}, log)

	store, err := openHistory(ctx, cfg, tasks, log)
	if err != nil {
		tasks.Close()
		assets.Dispose()
		return err
	}
	tasks.OnCompleted(onCompleted(assets, store, cfg.RequestTimeout, log))

	var enhancer web.Enhancer
	if cfg.OllamaURL != "" {
		llm := assist.NewOllamaClient(assist.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.OllamaTimeout,
		})
		readyCtx, readyCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := llm.Ping(readyCtx); err != nil {
			log.Warn("Ollama not available, prompt enhancement disabled", "url", cfg.OllamaURL, "error", err)
		} else {
			enhancer = assist.NewEnhancer(llm, log)
			log.Info("prompt enhancement enabled", "model", llm.Model())
		}
		readyCancel()
	}

	webrtcHandler := stream.NewWebRTCHandler(assets, audio.Format, log)
	app := &components{tasks: tasks, assets: assets, store: store, webrtc: webrtcHandler, log: log}
	defer app.Close()

	server := web.NewServer(web.Deps{
		Tasks:      tasks,
		Assets:     assets,
		History:    store,
		Downloader: client,
		Enhancer:   enhancer,
		HTTPStream: stream.NewHTTPHandler(assets, audio.Format, log),
		WebRTC:     webrtcHandler,
	}, web.Options{
		CORSOrigins:  cfg.CORSOrigins,
		HistoryLimit: cfg.HistoryLimit,
	}, log)
	go server.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("studio live", "addr", cfg.Addr())
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// components are the long-lived parts serve tears down on exit.
type components struct {
	tasks  *task.Controller
	assets *playback.Controller
	store  history.Store
	webrtc *stream.WebRTCHandler
	log    *slog.Logger
}

// Close stops task polling first and waits for running completion hooks,
// then releases the peers, the player and the store those hooks use.
func (c *components) Close() {
	c.tasks.Close()
	if c.webrtc != nil {
		c.webrtc.Close()
	}
	c.assets.Dispose()
	if err := c.store.Close(); err != nil {
		c.log.Warn("close history", "error", err)
	}
}

// onCompleted installs a finished task's results and records it in history.
func onCompleted(assets *playback.Controller, store history.Store, timeout time.Duration, log *slog.Logger) func(task.State) {
	return func(st task.State) {
		genre := st.Params.Facets.Get("genre")
		if err := assets.Install(assist.Label(st.Results, genre)); err != nil {
			log.Error("install results", "task_id", st.LastTaskID, "error", err)
		}
		rctx, rcancel := context.WithTimeout(context.Background(), timeout)
		defer rcancel()
		err := store.Record(rctx, history.Entry{
			TaskID:     st.LastTaskID,
			Params:     st.Params,
			Message:    st.Message,
			Results:    st.Results,
			FinishedAt: st.FinishedAt,
		})
		if err != nil {
			log.Warn("record history", "task_id", st.LastTaskID, "error", err)
		}
	}
}

// openHistory selects the history store. With Redis, every task state is
// also published on the task's progress channel.
func openHistory(ctx context.Context, cfg *config.Config, tasks *task.Controller, log *slog.Logger) (history.Store, error) {
	if cfg.RedisURL == "" {
		return history.NewMemoryStore(cfg.HistoryLimit), nil
	}

	store, err := history.NewRedisStore(cfg.RedisURL, cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	feed := tasks.Subscribe()
	go func() {
		defer tasks.Unsubscribe(feed)
		for {
			select {
			case <-ctx.Done():
				return
			case <-feed.Done():
				return
			case st := <-feed.C:
				id := st.TaskID
				if id == "" {
					id = st.LastTaskID
				}
				if id == "" {
					continue
				}
				if err := store.PublishProgress(ctx, id, st); err != nil {
					log.Warn("publish progress", "task_id", id, "error", err)
				}
			}
		}
	}()
	log.Info("history backed by redis")
	return store, nil
}
