package mock

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider"
)

const (
	gridW              = 16
	gridH              = 8
	embeddingDimension = gridW * gridH
)

// Provider implementa provider.FaceEncoder sem serviço externo, para
// desenvolvimento local. Trata a região central da imagem como uma única
// face e gera um embedding determinístico a partir da luminância dela.
// Imagens uniformes (frames pretos, câmera tampada) não têm face.
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "mock"
}

func (p *Provider) Encode(ctx context.Context, img image.Image) ([]provider.EncodedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, domain.ErrInvalidImage
	}

	b := img.Bounds()
	if b.Dx() < 4 || b.Dy() < 4 {
		return nil, nil
	}

	face := image.Rect(
		b.Min.X+b.Dx()/4, b.Min.Y+b.Dy()/4,
		b.Max.X-b.Dx()/4, b.Max.Y-b.Dy()/4,
	)

	embedding, ok := generateEmbedding(img, face)
	if !ok {
		return nil, nil
	}

	return []provider.EncodedFace{
		{
			Box:        domain.BoxFromRect(face),
			Embedding:  embedding,
			Confidence: 0.99,
		},
	}, nil
}

func (p *Provider) HealthCheck(_ context.Context) error {
	return nil
}

// generateEmbedding downsamples region to a gridW x gridH gray grid,
// centers it and scales it to unit length. ok is false for a flat region.
func generateEmbedding(img image.Image, region image.Rectangle) ([]float64, bool) {
	gray := image.NewGray(image.Rect(0, 0, gridW, gridH))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, region, draw.Src, nil)

	embedding := make([]float64, embeddingDimension)
	var mean float64
	for i, v := range gray.Pix {
		embedding[i] = float64(v) / 255.0
		mean += embedding[i]
	}
	mean /= embeddingDimension

	var norm float64
	for i := range embedding {
		embedding[i] -= mean
		norm += embedding[i] * embedding[i]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-6 {
		return nil, false
	}

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding, true
}

var _ provider.FaceEncoder = (*Provider)(nil)
