package handler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/imaging"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/matcher"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

// FaceMatcher is implemented by matcher.Matcher.
type FaceMatcher interface {
	Match(ctx context.Context, frame image.Image, threshold float64) ([]domain.Detection, error)
}

// MatchHandler answers one-shot identification requests.
type MatchHandler struct {
	matcher   FaceMatcher
	threshold float64
	logger    *slog.Logger
}

func NewMatchHandler(m FaceMatcher, defaultThreshold float64, logger *slog.Logger) *MatchHandler {
	if !matcher.ValidThreshold(defaultThreshold) {
		defaultThreshold = matcher.DefaultThreshold
	}
	return &MatchHandler{
		matcher:   m,
		threshold: defaultThreshold,
		logger:    logger,
	}
}

// FaceResult is one detected face. URN, Details and Confidence are set
// only for identified faces; Distance whenever a nearest record existed.
type FaceResult struct {
	Matched    bool                   `json:"matched"`
	URN        string                 `json:"urn,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	BBox       domain.BoundingBox     `json:"bbox"`
	Distance   *float64               `json:"distance,omitempty"`
	Confidence *int                   `json:"confidence,omitempty"`
}

type UploadResponse struct {
	Matches       []FaceResult `json:"matches"`
	Detections    []FaceResult `json:"detections"`
	FacesDetected int          `json:"faces_detected"`
	Threshold     float64      `json:"threshold"`
	LatencyMs     int64        `json:"latency_ms"`
}

// UploadSuspicious POST /upload_suspicious - identify every face in an
// uploaded photo against the watch-list.
func (h *MatchHandler) UploadSuspicious(c *fiber.Ctx) error {
	start := time.Now()

	threshold, err := h.parseThreshold(c)
	if err != nil {
		return err
	}

	data, err := readUpload(c)
	if err != nil {
		return err
	}

	img, format, err := imaging.Decode(data)
	if err != nil {
		return domain.ErrInvalidImage.WithError(err)
	}

	detections, err := h.matcher.Match(c.UserContext(), img, threshold)
	if err != nil {
		if errors.Is(err, domain.ErrDetection) {
			return domain.ErrDetectionUnavailable.WithError(err)
		}
		return domain.ErrInternal.WithError(err)
	}

	resp := UploadResponse{
		Matches:       []FaceResult{},
		Detections:    make([]FaceResult, 0, len(detections)),
		FacesDetected: len(detections),
		Threshold:     threshold,
	}
	for _, d := range detections {
		r := toFaceResult(d)
		resp.Detections = append(resp.Detections, r)
		if r.Matched {
			resp.Matches = append(resp.Matches, r)
		}
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	h.logger.Info("upload matched",
		slog.String("format", format),
		slog.Int("faces", resp.FacesDetected),
		slog.Int("matches", len(resp.Matches)),
		slog.Float64("threshold", threshold),
	)

	return c.JSON(resp)
}

func (h *MatchHandler) parseThreshold(c *fiber.Ctx) (float64, error) {
	raw := strings.TrimSpace(c.FormValue("threshold"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("threshold"))
	}
	if raw == "" {
		return h.threshold, nil
	}

	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || !matcher.ValidThreshold(t) {
		return 0, domain.ErrInvalidThreshold
	}
	return t, nil
}

// readUpload accepts the image under "file" or, for older clients, "image".
func readUpload(c *fiber.Ctx) ([]byte, error) {
	file, err := formFile(c, "file", "image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithMessage("multipart field 'file' is required").WithError(err)
	}

	if file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithMessage("Uploaded image is empty")
	}
	if file.Size > maxImageSize {
		return nil, domain.ErrInvalidImage.WithMessage(fmt.Sprintf("Image exceeds %d bytes", maxImageSize))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return data, nil
}

func toFaceResult(d domain.Detection) FaceResult {
	r := FaceResult{BBox: d.Box}
	if d.HasCandidate {
		dist := d.Distance
		r.Distance = &dist
	}
	if d.Matched() {
		conf := d.Confidence()
		r.Matched = true
		r.URN = d.Identity.URN
		r.Details = d.Identity.Details
		r.Confidence = &conf
	}
	return r
}

func formFile(c *fiber.Ctx, names ...string) (*multipart.FileHeader, error) {
	var firstErr error
	for _, name := range names {
		file, err := c.FormFile(name)
		if err == nil {
			return file, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
