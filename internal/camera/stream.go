// Package camera owns capture devices. Each Stream reads frames on its own
// goroutine and keeps only the latest one.
package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Frame is an immutable published capture. Seq increases by one per frame
// within a stream, starting at 1.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time
}

const (
	DefaultMaxErrors   = 10
	DefaultStopTimeout = 5 * time.Second
)

type Option func(*Stream)

// WithMaxErrors sets how many consecutive read failures are tolerated
// before the stream gives up for good.
func WithMaxErrors(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.maxErrors = n
		}
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

type Stream struct {
	id     string
	source string
	logger *slog.Logger

	latest atomic.Pointer[Frame]
	state  atomic.Int32

	mu      sync.Mutex
	notify  chan struct{}
	lastErr string

	framesRead        atomic.Uint64
	consecutiveErrors atomic.Int64

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	maxErrors   int
	stopTimeout time.Duration
}

// Open starts capturing from source. It never fails: when the source can't
// be opened the stream is returned already stopped and Frame reports nil.
// ctx bounds the open only; the capture loop runs until Stop.
func Open(ctx context.Context, id, source string, opener Opener, logger *slog.Logger, opts ...Option) *Stream {
	s := &Stream{
		id:          id,
		source:      source,
		logger:      logger.With("camera_id", id),
		notify:      make(chan struct{}),
		done:        make(chan struct{}),
		maxErrors:   DefaultMaxErrors,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	src, err := opener.Open(ctx, source)
	if err != nil {
		s.logger.Warn("camera source unavailable, stream is inert",
			slog.String("source", redact(source)),
			slog.String("error", err.Error()),
		)
		s.setLastError(err)
		s.state.Store(int32(StateStopped))
		close(s.done)
		return s
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.logger.Info("camera stream started", slog.String("source", redact(source)))
	go s.run(loopCtx, src)

	return s
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) State() State {
	return State(s.state.Load())
}

// Frame returns the most recent frame without blocking, or nil when none
// has been captured yet.
func (s *Stream) Frame() *Frame {
	return s.latest.Load()
}

// WaitFrame blocks until a frame newer than afterSeq is published, maxWait
// elapses or ctx is done. The boolean is false when no newer frame came.
func (s *Stream) WaitFrame(ctx context.Context, afterSeq uint64, maxWait time.Duration) (*Frame, bool) {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		// take the channel before reading the slot so a publish in between
		// still wakes us
		s.mu.Lock()
		ch := s.notify
		s.mu.Unlock()

		if f := s.latest.Load(); f != nil && f.Seq > afterSeq {
			return f, true
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return nil, false
		case <-ch:
		}
	}
}

// Stop ends the capture loop and waits for it to release the source, up to
// the stop timeout. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()

		timer := time.NewTimer(s.stopTimeout)
		defer timer.Stop()

		select {
		case <-s.done:
			s.logger.Info("camera stream stopped")
		case <-timer.C:
			s.logger.Warn("camera loop did not exit in time", slog.Duration("timeout", s.stopTimeout))
		}
	})
}

// Done is closed once the capture loop has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) run(ctx context.Context, src Source) {
	defer close(s.done)
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn("failed to release camera source", slog.String("error", err.Error()))
		}
		s.state.Store(int32(StateStopped))
		s.broadcast()
	}()

	var seq uint64
	for {
		img, err := src.Read(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil && img == nil {
			err = fmt.Errorf("%w: source returned no image", domain.ErrCapture)
		}

		if err != nil {
			n := s.consecutiveErrors.Add(1)
			s.setLastError(err)

			if n > int64(s.maxErrors) {
				s.logger.Error("too many consecutive capture errors, stopping camera",
					slog.Int64("errors", n),
					slog.String("error", err.Error()),
				)
				return
			}

			s.logger.Debug("frame read failed", slog.Int64("errors", n), slog.String("error", err.Error()))
			continue
		}

		s.consecutiveErrors.Store(0)
		seq++
		s.publish(&Frame{Image: img, Seq: seq, CapturedAt: time.Now()})
	}
}

func (s *Stream) publish(f *Frame) {
	s.latest.Store(f)
	s.framesRead.Add(1)
	s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	s.broadcast()
}

// broadcast wakes every WaitFrame caller.
func (s *Stream) broadcast() {
	s.mu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

func (s *Stream) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

type Status struct {
	ID                string     `json:"id"`
	Source            string     `json:"source"`
	State             string     `json:"state"`
	FramesRead        uint64     `json:"frames_read"`
	ConsecutiveErrors int64      `json:"consecutive_errors"`
	LastFrameAt       *time.Time `json:"last_frame_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

func (s *Stream) Status() Status {
	st := Status{
		ID:                s.id,
		Source:            redact(s.source),
		State:             s.State().String(),
		FramesRead:        s.framesRead.Load(),
		ConsecutiveErrors: s.consecutiveErrors.Load(),
	}

	if f := s.latest.Load(); f != nil {
		at := f.CapturedAt
		st.LastFrameAt = &at
	}

	s.mu.Lock()
	st.LastError = s.lastErr
	s.mu.Unlock()

	return st
}

// redact hides credentials embedded in camera URLs.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.User == nil {
		return source
	}
	return u.Redacted()
}
