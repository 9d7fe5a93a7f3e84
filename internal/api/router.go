package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/camera"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/config"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/embedding"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/provider"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/session"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/webhook"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/ws"
)

type Dependencies struct {
	Config   *config.Config
	Registry *camera.Registry
	Store    *embedding.Store
	Matcher  session.Matcher
	Encoder  provider.FaceEncoder
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	wsHub       *ws.Hub
	cancelHub   context.CancelFunc
	// cancelStreams ends every open MJPEG stream
	cancelStreams context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(logger),
		AppName:               "Aerowatch API",
		BodyLimit:             12 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	cfg := r.deps.Config

	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// WebSocket hub for live alerts
	r.wsHub = ws.NewHub(r.logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	r.cancelHub = hubCancel
	go r.wsHub.Run(hubCtx)

	sinks := []ws.Sink{r.wsHub}
	if cfg.AlertWebhookURL != "" {
		dispatcher := webhook.NewDispatcher(webhook.Config{
			URL:         cfg.AlertWebhookURL,
			Secret:      cfg.AlertWebhookSecret,
			MaxAttempts: cfg.AlertWebhookMaxAttempts,
		}, r.logger)
		go dispatcher.Run(hubCtx)
		sinks = append(sinks, dispatcher)
	}
	alerts := ws.NewAlerts(cfg.AlertCooldown, sinks...)

	streamCtx, streamCancel := context.WithCancel(context.Background())
	r.cancelStreams = streamCancel

	r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Max:    cfg.UploadRateLimit,
		Window: time.Minute,
	})

	healthHandler := handler.NewHealthHandler(r.deps.Registry, r.deps.Store, r.deps.Encoder)
	cameraHandler := handler.NewCameraHandler(streamCtx, r.deps.Registry, r.deps.Matcher, r.logger,
		session.WithThreshold(cfg.MatchThreshold),
		session.WithMaxErrors(cfg.MaxConsecutiveErrors),
		session.WithFrameWait(cfg.FrameWait),
		session.WithJPEGQuality(cfg.JPEGQuality),
		session.WithNotifier(alerts),
	)
	matchHandler := handler.NewMatchHandler(r.deps.Matcher, cfg.MatchThreshold, r.logger)

	r.app.Get("/", healthHandler.Root)

	// The React dashboard calls the root paths, the static one /api/...
	for _, group := range []fiber.Router{r.app, r.app.Group("/api")} {
		group.Get("/health", healthHandler.Health)
		group.Get("/ready", healthHandler.Ready)

		group.Get("/cameras", cameraHandler.List)
		group.Get("/cameras/:id", cameraHandler.Status)
		group.Get("/stream/:id", cameraHandler.Stream)

		group.Post("/upload_suspicious", r.rateLimiter.Handler(), matchHandler.UploadSuspicious)

		group.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.wsHub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

// Shutdown ends open streams, stops the hub and drains fiber. Cameras are
// owned by the caller and stopped separately.
func (r *Router) Shutdown(timeout time.Duration) error {
	if r.cancelStreams != nil {
		r.cancelStreams()
	}

	if r.cancelHub != nil {
		r.cancelHub()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.ShutdownWithTimeout(timeout)
}
