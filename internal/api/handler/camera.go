package handler

import (
	"bufio"
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/camera"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/session"
)

// CameraHandler serves the camera list, status and annotated streams.
type CameraHandler struct {
	registry *camera.Registry
	matcher  session.Matcher
	options  []session.Option
	// base ends every open stream on shutdown
	base   context.Context
	logger *slog.Logger
}

func NewCameraHandler(base context.Context, registry *camera.Registry, m session.Matcher, logger *slog.Logger, opts ...session.Option) *CameraHandler {
	return &CameraHandler{
		registry: registry,
		matcher:  m,
		options:  opts,
		base:     base,
		logger:   logger,
	}
}

type CameraListResponse struct {
	Cameras []string `json:"cameras"`
}

// List GET /cameras
func (h *CameraHandler) List(c *fiber.Ctx) error {
	return c.JSON(CameraListResponse{Cameras: h.registry.IDs()})
}

// Status GET /cameras/:id
func (h *CameraHandler) Status(c *fiber.Ctx) error {
	stream, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return domain.ErrCameraNotFound
	}
	return c.JSON(stream.Status())
}

// Stream GET /stream/:id - multipart/x-mixed-replace of annotated frames.
// The body is produced after the handler returns and ends when the client
// goes away, the session aborts or the server shuts down.
func (h *CameraHandler) Stream(c *fiber.Ctx) error {
	id := c.Params("id")

	opts := append([]session.Option{session.WithLogger(h.logger)}, h.options...)
	sess, err := session.Open(h.registry, id, h.matcher, opts...)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, session.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := h.base
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		err := sess.WriteTo(ctx, w)
		if errors.Is(err, domain.ErrSessionAborted) {
			h.logger.Warn("stream aborted", slog.String("camera_id", id), slog.String("session_id", sess.ID.String()))
		}
	})

	return nil
}
