// Package session turns a camera stream into an annotated MJPEG sequence for
// one HTTP client.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/annotate"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/camera"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/imaging"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/matcher"
)

const (
	Boundary    = "frame"
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	DefaultMaxErrors   = 10
	DefaultFrameWait   = time.Second
	DefaultJPEGQuality = 80
)

// Matcher is the part of matcher.Matcher a session needs.
type Matcher interface {
	Match(ctx context.Context, frame image.Image, threshold float64) ([]domain.Detection, error)
}

// Notifier receives every identified face seen by a session.
type Notifier interface {
	FaceMatched(cameraID string, d domain.Detection)
}

type Option func(*Session)

func WithThreshold(t float64) Option {
	return func(s *Session) { s.threshold = t }
}

func WithMaxErrors(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxErrors = n
		}
	}
}

// WithFrameWait bounds how long Next waits for a new camera frame before
// processing the current one again.
func WithFrameWait(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.frameWait = d
		}
	}
}

func WithJPEGQuality(q int) Option {
	return func(s *Session) {
		if q >= 1 && q <= 100 {
			s.quality = q
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is used by a single goroutine.
type Session struct {
	ID       uuid.UUID
	cameraID string
	stream   *camera.Stream
	matcher  Matcher
	notifier Notifier
	logger   *slog.Logger

	threshold float64
	maxErrors int
	frameWait time.Duration
	quality   int

	lastSeq  uint64
	idle     []byte
	failures int
	aborted  bool
	frames   int
}

// Open starts a session on a registered camera. An unknown id yields
// domain.ErrCameraNotFound and no session.
func Open(registry *camera.Registry, cameraID string, m Matcher, opts ...Option) (*Session, error) {
	stream, ok := registry.Get(cameraID)
	if !ok {
		return nil, domain.ErrCameraNotFound
	}

	s := &Session{
		ID:        uuid.New(),
		cameraID:  cameraID,
		stream:    stream,
		matcher:   m,
		logger:    slog.Default(),
		threshold: matcher.DefaultThreshold,
		maxErrors: DefaultMaxErrors,
		frameWait: DefaultFrameWait,
		quality:   DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.ID.String(), "camera_id", cameraID)

	return s, nil
}

func (s *Session) CameraID() string { return s.cameraID }

// Next returns the next multipart chunk. It waits up to the frame wait for a
// newer camera frame; when none comes it renders the latest frame again, or
// a placeholder while the camera has produced nothing. Failed renders are
// counted; once more
// than the allowed number fail in a row Next returns
// domain.ErrSessionAborted, now and on every later call.
func (s *Session) Next(ctx context.Context) ([]byte, error) {
	if s.aborted {
		return nil, domain.ErrSessionAborted
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, ok := s.stream.WaitFrame(ctx, s.lastSeq, s.frameWait)
		if ok {
			s.lastSeq = f.Seq
		} else {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			// stalled camera: process the frame still in the slot again
			if f = s.stream.Frame(); f == nil {
				if s.idle == nil {
					s.idle = s.placeholder()
				}
				return s.idle, nil
			}
		}

		chunk, err := s.render(ctx, f)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			s.failures++
			s.logger.Warn("frame processing failed",
				slog.Int("consecutive_errors", s.failures),
				slog.Uint64("seq", f.Seq),
				slog.String("error", err.Error()),
			)
			if s.failures > s.maxErrors {
				s.aborted = true
				s.logger.Error("too many consecutive frame errors, ending session",
					slog.Int("consecutive_errors", s.failures),
				)
				return nil, fmt.Errorf("%w: %d consecutive failures: %w", domain.ErrSessionAborted, s.failures, err)
			}
			continue
		}

		s.failures = 0
		s.frames++
		return chunk, nil
	}
}

// render matches, annotates and encodes one frame. A panic in any step is
// reported as an error so it is counted like any other failure.
func (s *Session) render(ctx context.Context, f *camera.Frame) (chunk []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrDetection, r)
		}
	}()

	detections, err := s.matcher.Match(ctx, f.Image, s.threshold)
	if err != nil {
		return nil, err
	}

	annotated := annotate.Draw(f.Image, detections)

	data, err := imaging.EncodeJPEG(annotated, s.quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}

	if s.notifier != nil {
		for _, d := range detections {
			if d.Matched() {
				s.notifier.FaceMatched(s.cameraID, d)
			}
		}
	}

	return Part(data), nil
}

// placeholder is shown until the camera delivers its first frame.
func (s *Session) placeholder() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 255
	}

	data, err := imaging.EncodeJPEG(img, s.quality)
	if err != nil {
		return nil
	}
	return Part(data)
}

// Part wraps an encoded JPEG in the multipart/x-mixed-replace framing.
func Part(jpeg []byte) []byte {
	const header = "--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
	out := make([]byte, 0, len(header)+len(jpeg)+2)
	out = append(out, header...)
	out = append(out, jpeg...)
	out = append(out, "\r\n"...)
	return out
}

// FlushWriter is satisfied by *bufio.Writer.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// WriteTo streams chunks to w until ctx ends, the session aborts or a
// write fails, which is how a client disconnect shows up. It always
// returns a non-nil error.
func (s *Session) WriteTo(ctx context.Context, w FlushWriter) error {
	start := time.Now()
	s.logger.Info("stream session started")

	err := s.writeLoop(ctx, w)

	level := slog.LevelInfo
	if errors.Is(err, domain.ErrSessionAborted) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "stream session ended",
		slog.Int("frames", s.frames),
		slog.Duration("duration", time.Since(start)),
		slog.String("reason", err.Error()),
	)
	return err
}

func (s *Session) writeLoop(ctx context.Context, w FlushWriter) error {
	for {
		chunk, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			continue
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush chunk: %w", err)
		}
	}
}
