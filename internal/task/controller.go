package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
)

// Service is the part of the remote API the controller drives.
type Service interface {
	Submit(ctx context.Context, p remote.Params) (string, error)
	Query(ctx context.Context, taskID string) (remote.QueryResult, error)
}

// SupersedePolicy decides what a submit does while a task is polling.
type SupersedePolicy string

const (
	// PolicySupersede cancels the polling task and starts the new one.
	PolicySupersede SupersedePolicy = "supersede"
	// PolicyReject refuses the submit with ErrBusy.
	PolicyReject SupersedePolicy = "reject"
)

// ParsePolicy converts a config value. Empty means PolicySupersede.
func ParsePolicy(s string) (SupersedePolicy, error) {
	switch SupersedePolicy(s) {
	case "", PolicySupersede:
		return PolicySupersede, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown submit policy %q", s)
}

// Config tunes polling.
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	// MaxPollFailures fails the task after that many consecutive failed
	// polls. Zero retries forever.
	MaxPollFailures int
	// TaskTimeout fails a task still polling after this long. Zero waits
	// forever.
	TaskTimeout time.Duration
	Policy      SupersedePolicy
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    2 * time.Second,
		RequestTimeout:  15 * time.Second,
		MaxPollFailures: 5,
		TaskTimeout:     10 * time.Minute,
		Policy:          PolicySupersede,
	}
}

// User facing messages.
const (
	msgSubmitFailed = "Failed to start music generation. Please try again."
	msgTaskFailed   = "Failed to generate music: "
	msgPollFailed   = "Failed to check task status"
	msgCompleted    = "Music generated successfully"
)

// Controller runs one generation task at a time: submit, poll until the
// service reports a terminal status, then hand the results to hooks.
type Controller struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	feed   *stream.Broadcaster[State]

	mu         sync.Mutex
	state      State
	seq        uint64 // bumped by every submit, reset and close
	cancelPoll context.CancelFunc
	lastErr    error
	hooks      []func(State)
	closed     bool
	wg         sync.WaitGroup
}

// NewController creates an idle controller.
func NewController(svc Service, cfg Config, logger *slog.Logger) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	return &Controller{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With("component", "task"),
		feed:   stream.NewBroadcaster[State](64),
		state:  State{Status: StatusIdle},
	}
}

// Validate checks params without submitting them.
func (c *Controller) Validate(p remote.Params) error {
	return Validate(p)
}

// OnCompleted registers fn to receive the state of every completed task.
// Hooks run on the polling goroutine, in registration order.
func (c *Controller) OnCompleted(fn func(State)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Submit validates p, sends it and starts polling the returned handle.
func (c *Controller) Submit(ctx context.Context, p remote.Params) (string, error) {
	if err := Validate(p); err != nil {
		return "", err
	}
	p = Normalize(p)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	switch c.state.Status {
	case StatusSubmitting:
		c.mu.Unlock()
		return "", ErrBusy
	case StatusPolling:
		if c.cfg.Policy == PolicyReject {
			c.mu.Unlock()
			return "", ErrBusy
		}
		c.logger.Info("superseding task", "task_id", c.state.TaskID)
		c.stopPollLocked()
	}

	c.seq++
	seq := c.seq
	c.lastErr = nil
	c.state = State{
		Status:     StatusSubmitting,
		LastTaskID: c.state.LastTaskID,
		Params:     p,
		StartedAt:  time.Now(),
	}
	c.publishLocked()
	c.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	id, err := c.svc.Submit(sctx, p)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq {
		c.logger.Debug("submit finished after cancellation", "task_id", id)
		return "", ErrCanceled
	}

	if err != nil {
		msg := msgSubmitFailed
		if detail := remote.DetailOf(err); detail != "" {
			msg = detail
		}
		subErr := &SubmitError{Message: msg, Err: err}
		c.finishLocked(StatusFailed, msg, subErr)
		c.logger.Error("submit failed", "error", err)
		return "", subErr
	}

	c.state.TaskID = id
	c.state.LastTaskID = id
	c.state.Status = StatusPolling
	c.state.Progress = 0
	c.publishLocked()

	pctx, pcancel := context.WithCancel(context.Background())
	c.cancelPoll = pcancel
	c.wg.Add(1)
	go c.poll(pctx, id)

	c.logger.Info("task submitted", "task_id", id, "duration", p.Duration, "count", p.Count)
	return id, nil
}

// Reset cancels any task and returns to idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.stopPollLocked()
	c.seq++
	c.lastErr = nil
	c.state = State{Status: StatusIdle, LastTaskID: c.state.LastTaskID}
	c.publishLocked()
	return nil
}

// State returns a copy of the current task state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// LastError returns the error that ended the last task, if it failed.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe returns a feed receiving one state per transition, in order.
func (c *Controller) Subscribe() *stream.Listener[State] {
	return c.feed.Subscribe()
}

// Unsubscribe stops a feed listener.
func (c *Controller) Unsubscribe(l *stream.Listener[State]) {
	c.feed.Unsubscribe(l)
}

// Close cancels polling and closes the state feed. Later submits return
// ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.seq++
	c.stopPollLocked()
	c.mu.Unlock()

	c.wg.Wait()
	c.feed.Close()
}

func (c *Controller) poll(ctx context.Context, id string) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if c.cfg.TaskTimeout > 0 {
		timer := time.NewTimer(c.cfg.TaskTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			c.timeout(id)
			return
		case <-ticker.C:
		}

		qctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		res, err := c.svc.Query(qctx, id)
		cancel()
		if ctx.Err() != nil {
			return
		}

		done, hooks, final := c.apply(id, res, err)
		for _, fn := range hooks {
			fn(final)
		}
		if done {
			return
		}
	}
}

// apply folds one poll outcome into the state. Outcomes for a handle that
// is no longer current are dropped. done reports that polling must stop;
// hooks are returned with the completed state to run outside the lock.
func (c *Controller) apply(id string, res remote.QueryResult, err error) (done bool, hooks []func(State), final State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.TaskID != id || c.state.Status != StatusPolling {
		c.logger.Debug("discarding response for superseded task", "task_id", id)
		return true, nil, State{}
	}

	if err != nil {
		c.state.PollFailures++
		perr := &PollError{TaskID: id, Attempt: c.state.PollFailures, Err: err}
		c.state.LastPollError = err.Error()
		c.logger.Warn("poll failed", "task_id", id, "attempt", c.state.PollFailures, "error", err)

		if c.cfg.MaxPollFailures > 0 && c.state.PollFailures >= c.cfg.MaxPollFailures {
			c.finishLocked(StatusFailed, msgPollFailed+": "+err.Error(), perr)
			return true, nil, State{}
		}
		c.publishLocked()
		return false, nil, State{}
	}

	c.state.PollFailures = 0
	c.state.LastPollError = ""
	c.state.Progress = clampProgress(res.Progress)

	switch res.Status {
	case remote.StatusCompleted:
		msg := res.Message
		if msg == "" {
			msg = msgCompleted
		}
		c.state.Results = append([]remote.AssetDescriptor(nil), res.Results...)
		c.finishLocked(StatusCompleted, msg, nil)
		c.logger.Info("task completed", "task_id", id, "results", len(res.Results))
		return true, slices.Clone(c.hooks), c.state.clone()

	case remote.StatusFailed:
		c.finishLocked(StatusFailed, msgTaskFailed+res.Message, &TaskFailure{TaskID: id, Detail: res.Message})
		c.logger.Warn("task failed", "task_id", id, "detail", res.Message)
		return true, nil, State{}
	}

	c.publishLocked()
	return false, nil, State{}
}

func (c *Controller) timeout(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.TaskID != id || c.state.Status != StatusPolling {
		return
	}
	err := fmt.Errorf("%w after %s", ErrTimedOut, c.cfg.TaskTimeout)
	c.finishLocked(StatusFailed, msgTaskFailed+err.Error(), err)
	c.logger.Warn("task timed out", "task_id", id, "timeout", c.cfg.TaskTimeout)
}

// finishLocked moves to a terminal status and clears the handle.
func (c *Controller) finishLocked(status Status, msg string, err error) {
	c.state.Status = status
	c.state.Message = msg
	c.state.TaskID = ""
	c.state.FinishedAt = time.Now()
	if status != StatusCompleted {
		c.state.Results = nil
	}
	c.lastErr = err
	c.stopPollLocked()
	c.publishLocked()
}

func (c *Controller) stopPollLocked() {
	if c.cancelPoll != nil {
		c.cancelPoll()
		c.cancelPoll = nil
	}
}

func (c *Controller) publishLocked() {
	c.feed.Publish(c.state.clone())
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}
