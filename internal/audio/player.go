package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/playback"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/stream"
)

// positionEvery is how often, in frames, a playing Player reports its
// position (every 200ms).
const positionEvery = 10

// Player plays one decoded asset in real time, sending 20ms PCM frames to
// its output broadcaster while playing and silence while paused.
type Player struct {
	samples []int16
	frames  int
	out     *stream.Broadcaster[[]int16]
	events  playback.Events
	logger  *slog.Logger
	silence []int16

	mu      sync.Mutex
	pos     int // next frame to send
	playing bool
	fadeIn  int // frames of fade-in left
	fromPos int // outgoing frame while crossfading after a seek
	xfade   int // frames of crossfade left
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer creates a paused player over interleaved 48kHz stereo samples
// and starts its frame clock. events may be nil.
func NewPlayer(samples []int16, events playback.Events, logger *slog.Logger) *Player {
	p := newPlayer(samples, events, logger)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
	return p
}

func newPlayer(samples []int16, events playback.Events, logger *slog.Logger) *Player {
	return &Player{
		samples: samples,
		frames:  FrameCount(len(samples)),
		out:     stream.NewBroadcaster[[]int16](0),
		events:  events,
		logger:  logger,
		silence: make([]int16, FrameSamples),
		cancel:  func() {},
		done:    make(chan struct{}),
	}
}

// Output is the broadcaster carrying this player's frames.
func (p *Player) Output() *stream.Broadcaster[[]int16] {
	return p.out
}

// Duration is the total playback length.
func (p *Player) Duration() time.Duration {
	return SamplesDuration(len(p.samples))
}

// Play resumes from the current position, or from the start after the end
// was reached.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.playing {
		return
	}
	if p.pos >= p.frames {
		p.pos = 0
	}
	p.playing = true
	p.fadeIn = FadeFrames
	p.xfade = 0
}

// Pause stops sending audio frames. The position is kept.
func (p *Player) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Seek moves to offset, clamped to the asset length. While playing, the
// jump is crossfaded.
func (p *Player) Seek(offset time.Duration) {
	idx := int(offset / FrameDuration)
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 {
		idx = 0
	}
	if idx > p.frames {
		idx = p.frames
	}
	if p.playing {
		p.fromPos = p.pos
		p.xfade = FadeFrames
		p.fadeIn = 0
	}
	p.pos = idx
}

// Position is the offset of the next frame.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.pos) * FrameDuration
}

// Playing reports whether frames are being sent.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops the frame clock and every listener.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	p.mu.Unlock()

	p.cancel()
	p.out.Close()
	return nil
}

func (p *Player) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t := p.next()
		if t.closed {
			return
		}
		if t.frame != nil {
			p.out.Publish(t.frame)
		} else if p.out.ListenerCount() > 0 {
			p.out.Publish(p.silence)
		}

		if p.events == nil {
			continue
		}
		if t.report {
			p.events.Position(t.position.Seconds())
		}
		if t.ended {
			p.logger.Debug("playback ended")
			p.events.Ended()
		}
	}
}

type tick struct {
	frame    []int16
	position time.Duration
	report   bool
	ended    bool
	closed   bool
}

// next advances the clock by one frame. frame is nil while paused.
func (p *Player) next() tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return tick{closed: true}
	}
	if !p.playing {
		return tick{}
	}

	frame := p.frameAt(p.pos)
	switch {
	case p.xfade > 0:
		progress := float64(FadeFrames-p.xfade+1) / float64(FadeFrames+1)
		frame = CrossfadeFrames(p.frameAt(p.fromPos), frame, progress)
		p.fromPos++
		p.xfade--
	case p.fadeIn > 0:
		frame = FadeIn(frame, float64(FadeFrames-p.fadeIn)/float64(FadeFrames))
		p.fadeIn--
	}

	p.pos++
	t := tick{frame: frame}
	if p.pos >= p.frames {
		p.playing = false
		p.pos = 0
		t.ended = true
		t.report = true
	} else {
		t.report = p.pos%positionEvery == 0
	}
	t.position = time.Duration(p.pos) * FrameDuration
	return t
}

// frameAt returns frame i, zero padded at the tail and silent out of range.
func (p *Player) frameAt(i int) []int16 {
	if i < 0 || i >= p.frames {
		return p.silence
	}
	start := i * FrameSamples
	end := start + FrameSamples
	if end <= len(p.samples) {
		return p.samples[start:end]
	}
	frame := make([]int16, FrameSamples)
	copy(frame, p.samples[start:])
	return frame
}
