package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider"
)

// Provider implements provider.FaceEncoder using the DeepFace /represent API.
type Provider struct {
	client *Client
	config Config
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = DefaultConfig().JPEGQuality
	}
	return &Provider{
		client: NewClient(config),
		config: config,
	}
}

func (p *Provider) Name() string {
	return "deepface"
}

// Encode sends img to deepface and converts each returned region into a
// (top, right, bottom, left) box clamped to the image bounds.
func (p *Provider) Encode(ctx context.Context, img image.Image) ([]provider.EncodedFace, error) {
	if img == nil {
		return nil, ErrInvalidImageFormat
	}

	payload, err := p.toDataURI(img)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Represent(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("represent: %w", err)
	}

	bounds := img.Bounds()
	faces := make([]provider.EncodedFace, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.FaceConfidence <= p.config.MinConfidence {
			continue
		}
		if len(r.Embedding) == 0 {
			continue
		}

		rect := image.Rect(
			bounds.Min.X+r.FacialArea.X,
			bounds.Min.Y+r.FacialArea.Y,
			bounds.Min.X+r.FacialArea.X+r.FacialArea.W,
			bounds.Min.Y+r.FacialArea.Y+r.FacialArea.H,
		).Intersect(bounds)
		if rect.Empty() {
			continue
		}

		faces = append(faces, provider.EncodedFace{
			Box:        domain.BoxFromRect(rect),
			Embedding:  r.Embedding,
			Confidence: r.FaceConfidence,
		})
	}

	return faces, nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, err)
	}
	return nil
}

func (p *Provider) toDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.config.JPEGQuality}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImageFormat, err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

var _ provider.FaceEncoder = (*Provider)(nil)
