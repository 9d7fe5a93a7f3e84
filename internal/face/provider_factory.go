package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/config"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider/mock"
)

// ProviderType defines supported face encoder backends
type ProviderType string

const (
	// ProviderTypeDeepFace calls a deepface api server
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock encodes locally without a backend, for development
	ProviderTypeMock ProviderType = "mock"
)

// NewFaceEncoder creates the encoder selected by PROVIDER_TYPE.
//
// Environment variables:
//   - PROVIDER_TYPE: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - DEEPFACE_MODEL, DEEPFACE_DETECTOR: model and detector backend names
func NewFaceEncoder(cfg *config.Config) (provider.FaceEncoder, error) {
	switch ProviderType(cfg.ProviderType) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	dfConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		dfConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		dfConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		dfConfig.Detector = cfg.DeepFaceDetector
	}

	return deepface.NewProvider(dfConfig)
}
