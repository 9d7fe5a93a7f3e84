package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EmbeddingsSourceFile     = "file"
	EmbeddingsSourcePostgres = "postgres"
)

type Config struct {
	// Server
	Port        int      `envconfig:"PORT" default:"8000"`
	Environment string   `envconfig:"ENV" default:"development"`
	LogLevel    string   `envconfig:"LOG_LEVEL"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`

	// Embeddings
	EmbeddingsSource string `envconfig:"EMBEDDINGS_SOURCE" default:"file"`
	EmbeddingsPath   string `envconfig:"EMBEDDINGS_PATH" default:"data/embeddings.json"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`

	// Provider
	ProviderType     string `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL      string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel    string `envconfig:"DEEPFACE_MODEL" default:"Dlib"`
	DeepFaceDetector string `envconfig:"DEEPFACE_DETECTOR" default:"opencv"`

	// Matching
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.6"`
	DetectMaxWidth int     `envconfig:"DETECT_MAX_WIDTH" default:"0"`

	// Cameras
	Cameras              CameraSources `envconfig:"CAMERAS" default:"cam1=0"`
	MaxConsecutiveErrors int           `envconfig:"MAX_CONSECUTIVE_ERRORS" default:"10"`
	FrameWait            time.Duration `envconfig:"FRAME_WAIT" default:"1s"`
	JPEGQuality          int           `envconfig:"JPEG_QUALITY" default:"80"`

	// Alerts and limits
	UploadRateLimit int           `envconfig:"UPLOAD_RATE_LIMIT" default:"60"`
	AlertCooldown   time.Duration `envconfig:"ALERT_COOLDOWN" default:"5s"`

	// Alert webhook, off when the URL is empty
	AlertWebhookURL         string `envconfig:"ALERT_WEBHOOK_URL"`
	AlertWebhookSecret      string `envconfig:"ALERT_WEBHOOK_SECRET"`
	AlertWebhookMaxAttempts int    `envconfig:"ALERT_WEBHOOK_MAX_ATTEMPTS" default:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks constraints envconfig tags can't express.
func (c *Config) Validate() error {
	switch c.EmbeddingsSource {
	case EmbeddingsSourceFile:
		if c.EmbeddingsPath == "" {
			return errors.New("EMBEDDINGS_PATH is required for the file source")
		}
	case EmbeddingsSourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown EMBEDDINGS_SOURCE %q", c.EmbeddingsSource)
	}

	if c.MatchThreshold <= 0 || c.MatchThreshold > 2 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0, 2], got %v", c.MatchThreshold)
	}
	if len(c.Cameras) == 0 {
		return errors.New("CAMERAS must name at least one camera")
	}
	if c.MaxConsecutiveErrors < 1 {
		return errors.New("MAX_CONSECUTIVE_ERRORS must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in [1, 100], got %d", c.JPEGQuality)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CameraSources maps camera id to capture source, e.g. "cam1=0;lobby=rtsp://10.0.0.4/live".
type CameraSources map[string]string

// Decode implements envconfig.Decoder. Semicolons separate entries because
// RTSP and HTTP URLs may carry commas in their query strings.
func (c *CameraSources) Decode(value string) error {
	out := make(CameraSources)
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, source, ok := strings.Cut(entry, "=")
		id, source = strings.TrimSpace(id), strings.TrimSpace(source)
		if !ok || id == "" || source == "" {
			return fmt.Errorf("invalid camera entry %q, want id=source", entry)
		}
		if _, dup := out[id]; dup {
			return fmt.Errorf("duplicate camera id %q", id)
		}
		out[id] = source
	}
	*c = out
	return nil
}

// IDs returns camera ids in lexical order.
func (c CameraSources) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
