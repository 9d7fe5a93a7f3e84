package provider

import (
	"context"
	"image"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

// FaceEncoder é o primitivo externo de detecção + codificação facial.
// Encode localiza todas as faces da imagem e devolve um embedding por face,
// na ordem em que o detector as reporta.
type FaceEncoder interface {
	Encode(ctx context.Context, img image.Image) ([]EncodedFace, error)

	// HealthCheck reports whether the encoder backend can serve requests.
	HealthCheck(ctx context.Context) error

	Name() string
}

// EncodedFace is one detected face and its embedding.
type EncodedFace struct {
	Box        domain.BoundingBox `json:"bbox"`
	Embedding  []float64          `json:"-"`
	Confidence float64            `json:"confidence"`
}
