package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/camera"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/config"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/embedding"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/matcher"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:          "test",
		CORSOrigins:          []string{"http://localhost:5173"},
		MatchThreshold:       0.6,
		MaxConsecutiveErrors: 10,
		FrameWait:            time.Second,
		JPEGQuality:          80,
		UploadRateLimit:      60,
		AlertCooldown:        5 * time.Second,
	}
}

// suspectImage has enough texture for the mock encoder to see a face.
func suspectImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x + y) * 2), A: 255})
		}
	}
	return img
}

// enroll encodes img with the mock encoder the way a seeding job would.
func enroll(t *testing.T, urn string, img image.Image) domain.KnownFace {
	t.Helper()
	faces, err := mock.New().Encode(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	return domain.KnownFace{
		URN:       urn,
		Embedding: faces[0].Embedding,
		Details:   map[string]interface{}{"name": "Test Suspect"},
	}
}

func newTestRouter(t *testing.T, store *embedding.Store) *Router {
	t.Helper()
	logger := testLogger()

	opener := camera.OpenerFunc(func(context.Context, string) (camera.Source, error) {
		return camera.NewStillSource([]image.Image{suspectImage()}, 50), nil
	})
	registry := camera.NewRegistry(context.Background(), map[string]string{"lobby": "still"}, opener, logger)

	encoder := mock.New()
	router := NewRouter(logger, &Dependencies{
		Config:   testConfig(),
		Registry: registry,
		Store:    store,
		Matcher:  matcher.New(encoder, store, logger),
		Encoder:  encoder,
	})
	router.Setup()

	t.Cleanup(func() {
		_ = router.Shutdown(time.Second)
		registry.StopAll()
	})
	return router
}

func uploadBody(t *testing.T, img image.Image) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "suspect.jpg")
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(part, img, &jpeg.Options{Quality: 100}))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestRouter_HealthOnBothPrefixes(t *testing.T) {
	store, err := embedding.NewStore([]domain.KnownFace{enroll(t, "urn:suspect:1", suspectImage())})
	require.NoError(t, err)
	router := newTestRouter(t, store)

	for _, path := range []string{"/health", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			resp, err := router.App().Test(httptest.NewRequest("GET", path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var result map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &result))
			assert.Equal(t, "running", result["status"])
			assert.Equal(t, float64(1), result["cameras"])
			assert.Equal(t, float64(1), result["known_faces"])
		})
	}
}

func TestRouter_Ready(t *testing.T) {
	router := newTestRouter(t, embedding.Empty())

	resp, err := router.App().Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRouter_Cameras(t *testing.T) {
	router := newTestRouter(t, embedding.Empty())

	resp, err := router.App().Test(httptest.NewRequest("GET", "/api/cameras", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"cameras":["lobby"]}`, string(body))
}

func TestRouter_UploadIdentifiesEnrolledFace(t *testing.T) {
	store, err := embedding.NewStore([]domain.KnownFace{enroll(t, "urn:suspect:1", suspectImage())})
	require.NoError(t, err)
	router := newTestRouter(t, store)

	body, contentType := uploadBody(t, suspectImage())
	req := httptest.NewRequest("POST", "/upload_suspicious", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	respBody, _ := io.ReadAll(resp.Body)
	require.Equal(t, 200, resp.StatusCode, string(respBody))

	var result struct {
		Matches []struct {
			URN     string                 `json:"urn"`
			Details map[string]interface{} `json:"details"`
		} `json:"matches"`
		FacesDetected int `json:"faces_detected"`
	}
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, 1, result.FacesDetected)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "urn:suspect:1", result.Matches[0].URN)
	assert.Equal(t, "Test Suspect", result.Matches[0].Details["name"])
}

func TestRouter_UploadWithEmptyWatchList(t *testing.T) {
	router := newTestRouter(t, embedding.Empty())

	body, contentType := uploadBody(t, suspectImage())
	req := httptest.NewRequest("POST", "/api/upload_suspicious", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	respBody, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(respBody), `"matches":[]`)
	assert.Contains(t, string(respBody), `"faces_detected":1`)
}

func TestRouter_UnknownStream(t *testing.T) {
	router := newTestRouter(t, embedding.Empty())

	resp, err := router.App().Test(httptest.NewRequest("GET", "/stream/attic", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "CAMERA_NOT_FOUND")
}

func TestRouter_WebSocketRequiresUpgrade(t *testing.T) {
	router := newTestRouter(t, embedding.Empty())

	resp, err := router.App().Test(httptest.NewRequest("GET", "/ws", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, embedding.Empty())

	resp, err := router.App().Test(httptest.NewRequest("GET", "/nonexistent", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
