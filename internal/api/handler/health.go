package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const Version = "0.1.0"

// Counter is implemented by camera.Registry and embedding.Store.
type Counter interface {
	Len() int
}

// Pinger is implemented by provider.FaceEncoder.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	cameras Counter
	faces   Counter
	encoder Pinger
}

func NewHealthHandler(cameras, faces Counter, encoder Pinger) *HealthHandler {
	return &HealthHandler{
		cameras: cameras,
		faces:   faces,
		encoder: encoder,
	}
}

type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version,omitempty"`
	Cameras    int    `json:"cameras"`
	KnownFaces int    `json:"known_faces"`
}

type ReadyResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Aerowatch face watch API is running"})
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:  "running",
		Version: Version,
	}
	if h.cameras != nil {
		resp.Cameras = h.cameras.Len()
	}
	if h.faces != nil {
		resp.KnownFaces = h.faces.Len()
	}
	return c.JSON(resp)
}

// Ready reports whether the encoding service answers.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.encoder != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		if err := h.encoder.HealthCheck(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ReadyResponse{
				Status: "not_ready",
				Reason: err.Error(),
			})
		}
	}

	return c.JSON(ReadyResponse{Status: "ready"})
}
