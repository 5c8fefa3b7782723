package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/config"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/task"
)

// generate runs one request from the command line and saves every result.
func generate(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	var (
		p      remote.Params
		melody string
		out    string
	)
	fs.StringVar(&p.Description, "prompt", "", "free-form description")
	fs.StringVar(&p.Facets.Genre, "genre", "", "genre")
	fs.StringVar(&p.Facets.Mood, "mood", "", "mood")
	fs.StringVar(&p.Facets.Tempo, "tempo", "", "tempo")
	fs.StringVar(&p.Facets.Instruments, "instruments", "", "instruments")
	fs.StringVar(&p.Facets.Segment, "segment", "", "song segment, e.g. intro or chorus")
	fs.IntVar(&p.Duration, "duration", task.DefaultDuration, "length in seconds")
	fs.IntVar(&p.Count, "count", task.DefaultCount, "number of variations")
	fs.StringVar(&melody, "melody", "", "reference melody file")
	fs.StringVar(&out, "out", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if melody != "" {
		data, err := os.ReadFile(melody)
		if err != nil {
			return fmt.Errorf("read melody: %w", err)
		}
		p.Melody, p.MelodyName = data, filepath.Base(melody)
	}

	tcfg, err := taskConfig(cfg)
	if err != nil {
		return err
	}
	tcfg.Policy = task.PolicyReject

	client := newRemote(cfg, log)
	tasks := task.NewController(client, tcfg, log)
	defer tasks.Close()

	feed := tasks.Subscribe()
	defer tasks.Unsubscribe(feed)

	if _, err := tasks.Submit(ctx, p); err != nil {
		var subErr *task.SubmitError
		if errors.As(err, &subErr) {
			return errors.New(subErr.Message)
		}
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("generating"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
	)

	final, err := waitTerminal(ctx, feed.C, feed.Done(), func(st task.State) {
		bar.Set(st.Progress)
	})
	bar.Finish()
	if err != nil {
		return err
	}
	if final.Status == task.StatusFailed {
		return errors.New(final.Message)
	}

	fmt.Fprintln(os.Stderr, final.Message)
	for _, r := range final.Results {
		path, err := client.SaveTo(ctx, r.Name, out)
		if err != nil {
			return fmt.Errorf("save %s: %w", r.Name, err)
		}
		fmt.Println(path)
	}
	return nil
}

// waitTerminal reads states until one is terminal.
func waitTerminal(ctx context.Context, states <-chan task.State, done <-chan struct{}, onState func(task.State)) (task.State, error) {
	for {
		select {
		case <-ctx.Done():
			return task.State{}, ctx.Err()
		case <-done:
			return task.State{}, task.ErrClosed
		case st := <-states:
			onState(st)
			if st.Status.Terminal() {
				return st, nil
			}
		}
	}
}
