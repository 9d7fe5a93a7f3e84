// Package matcher identifies faces in a frame against the known-face store.
package matcher

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/embedding"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider"
)

// DefaultThreshold is the largest Euclidean distance still accepted as the
// same person for 128-d dlib style encodings.
const DefaultThreshold = 0.6

// Matcher is stateless between calls and safe for concurrent use.
type Matcher struct {
	encoder  provider.FaceEncoder
	store    *embedding.Store
	logger   *slog.Logger
	maxWidth int
}

type Option func(*Matcher)

// WithMaxWidth downscales frames wider than w before detection. Boxes are
// mapped back to the original frame's coordinates.
func WithMaxWidth(w int) Option {
	return func(m *Matcher) {
		m.maxWidth = w
	}
}

func New(encoder provider.FaceEncoder, store *embedding.Store, logger *slog.Logger, opts ...Option) *Matcher {
	if store == nil {
		store = embedding.Empty()
	}
	m := &Matcher{
		encoder: encoder,
		store:   store,
		logger:  logger.With("component", "matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ValidThreshold reports whether t is usable as a match threshold.
func ValidThreshold(t float64) bool {
	return t > 0 && t <= 2 && !math.IsNaN(t)
}

// Match detects every face in frame and compares each to every known face.
// A face is identified when its nearest record is within threshold. The
// result follows the encoder's face order and is empty, not nil, when no
// face is found. A nil or empty frame is logged and yields an empty result.
// Encoder failures are returned wrapped in domain.ErrDetection.
func (m *Matcher) Match(ctx context.Context, frame image.Image, threshold float64) ([]domain.Detection, error) {
	if frame == nil || frame.Bounds().Empty() {
		m.logger.Warn("match called without a usable frame")
		return []domain.Detection{}, nil
	}

	input, scale := m.prepare(frame)

	faces, err := m.encoder.Encode(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetection, err)
	}

	records := m.store.Records()
	detections := make([]domain.Detection, 0, len(faces))

	for _, face := range faces {
		box := face.Box
		if scale != 1 {
			// the downscaled copy starts at the origin
			bounds := frame.Bounds()
			box = domain.BoxFromRect(box.Scale(scale).Rect().Add(bounds.Min).Intersect(bounds))
		}

		det := domain.Detection{Box: box}

		best, distance, found := m.nearest(face.Embedding, records)
		if found {
			det.HasCandidate = true
			det.Distance = distance
			if distance <= threshold {
				det.Identity = &domain.Identity{
					URN:     records[best].URN,
					Details: records[best].Details,
				}
			}
		}

		detections = append(detections, det)
	}

	return detections, nil
}

// nearest scans all records and returns the index and distance of the
// closest one. Records whose embedding length differs from the probe, or
// whose distance is not a number, are skipped. Ties keep the earlier record.
func (m *Matcher) nearest(probe []float64, records []domain.KnownFace) (int, float64, bool) {
	best := -1
	bestDistance := 0.0
	skipped := 0

	for i := range records {
		if len(records[i].Embedding) != len(probe) || len(probe) == 0 {
			skipped++
			continue
		}

		d := floats.Distance(probe, records[i].Embedding, 2)
		if math.IsNaN(d) {
			skipped++
			continue
		}

		if best < 0 || d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if skipped > 0 {
		m.logger.Debug("skipped incomparable records",
			slog.Int("skipped", skipped),
			slog.Int("probe_dim", len(probe)),
		)
	}

	return best, bestDistance, best >= 0
}

// prepare returns the image to send to the encoder and the factor that
// maps its coordinates back onto frame. A scale other than 1 means the
// returned image is a copy anchored at the origin.
func (m *Matcher) prepare(frame image.Image) (image.Image, float64) {
	b := frame.Bounds()
	if m.maxWidth <= 0 || b.Dx() <= m.maxWidth {
		return frame, 1
	}

	h := int(math.Round(float64(b.Dy()) * float64(m.maxWidth) / float64(b.Dx())))
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, m.maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, draw.Src, nil)

	return dst, float64(b.Dx()) / float64(m.maxWidth)
}
