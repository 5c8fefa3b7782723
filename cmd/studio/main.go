package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/config"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/logger"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/task"
)

const usage = `usage: studio [serve | generate [flags]]

  serve      run the studio server (default)
  generate   submit one request, wait for it and download the results
`

func main() {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, log)
	case "generate":
		err = generate(ctx, cfg, log, args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("studio failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newRemote(cfg *config.Config, log *slog.Logger) *remote.Client {
	return remote.NewClient(cfg.APIURL, cfg.APIKey, cfg.FetchTimeout, log)
}

func taskConfig(cfg *config.Config) (task.Config, error) {
	policy, err := task.ParsePolicy(cfg.SubmitPolicy)
	if err != nil {
		return task.Config{}, err
	}
	return task.Config{
		PollInterval:    cfg.PollInterval,
		RequestTimeout:  cfg.RequestTimeout,
		MaxPollFailures: cfg.MaxPollFailures,
		TaskTimeout:     cfg.TaskTimeout,
		Policy:          policy,
	}, nil
}
