package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider"
)

func TestProviderImplementsInterface(t *testing.T) {
	var _ provider.FaceEncoder = (*Provider)(nil)
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestProvider_Encode(t *testing.T) {
	emb := func(v float64) []float64 {
		e := make([]float64, 128)
		for i := range e {
			e[i] = v
		}
		return e
	}

	tests := []struct {
		name      string
		results   []RepresentResult
		wantBoxes []domain.BoundingBox
	}{
		{
			name: "converts facial areas to top right bottom left",
			results: []RepresentResult{
				{Embedding: emb(0.1), FacialArea: FacialArea{X: 10, Y: 20, W: 30, H: 40}, FaceConfidence: 0.9},
				{Embedding: emb(0.2), FacialArea: FacialArea{X: 50, Y: 5, W: 20, H: 20}, FaceConfidence: 0.8},
			},
			wantBoxes: []domain.BoundingBox{
				{Top: 20, Right: 40, Bottom: 60, Left: 10},
				{Top: 5, Right: 70, Bottom: 25, Left: 50},
			},
		},
		{
			name: "drops the whole-frame placeholder when no face is found",
			results: []RepresentResult{
				{Embedding: emb(0.1), FacialArea: FacialArea{X: 0, Y: 0, W: 100, H: 80}, FaceConfidence: 0},
			},
			wantBoxes: []domain.BoundingBox{},
		},
		{
			name: "clamps boxes to the image",
			results: []RepresentResult{
				{Embedding: emb(0.1), FacialArea: FacialArea{X: 90, Y: 70, W: 30, H: 30}, FaceConfidence: 0.7},
			},
			wantBoxes: []domain.BoundingBox{{Top: 70, Right: 100, Bottom: 80, Left: 90}},
		},
		{
			name: "skips results without embedding",
			results: []RepresentResult{
				{FacialArea: FacialArea{X: 1, Y: 1, W: 10, H: 10}, FaceConfidence: 0.9},
			},
			wantBoxes: []domain.BoundingBox{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req RepresentRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

				require.True(t, strings.HasPrefix(req.Img, "data:image/jpeg;base64,"))
				raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.Img, "data:image/jpeg;base64,"))
				require.NoError(t, err)
				_, err = jpeg.Decode(bytes.NewReader(raw))
				require.NoError(t, err)

				_ = json.NewEncoder(w).Encode(RepresentResponse{Results: tt.results})
			}))
			defer server.Close()

			p := NewProvider(testConfig(server.URL))
			faces, err := p.Encode(context.Background(), testImage(100, 80))
			require.NoError(t, err)

			boxes := make([]domain.BoundingBox, 0, len(faces))
			for _, f := range faces {
				boxes = append(boxes, f.Box)
				assert.Len(t, f.Embedding, 128)
			}
			assert.Equal(t, tt.wantBoxes, boxes)
		})
	}
}

func TestProvider_EncodeOffsetBounds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
			{Embedding: []float64{1}, FacialArea: FacialArea{X: 0, Y: 0, W: 10, H: 10}, FaceConfidence: 1},
		}})
	}))
	defer server.Close()

	img := testImage(200, 200).SubImage(image.Rect(50, 60, 150, 160))
	faces, err := NewProvider(testConfig(server.URL)).Encode(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, domain.BoundingBox{Top: 60, Right: 60, Bottom: 70, Left: 50}, faces[0].Box)
}

func TestProvider_EncodeErrors(t *testing.T) {
	t.Run("nil image", func(t *testing.T) {
		_, err := NewProvider(DefaultConfig()).Encode(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidImageFormat)
	})

	t.Run("backend failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewProvider(testConfig(server.URL)).Encode(context.Background(), testImage(10, 10))
		assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
	})
}

func TestProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewProvider(testConfig(server.URL)).HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
	assert.Equal(t, "deepface", NewProvider(DefaultConfig()).Name())
}
