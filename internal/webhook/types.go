package webhook

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts = 5
	DefaultQueueSize   = 256
	DefaultTimeout     = 10 * time.Second
	DefaultRetryBase   = time.Second
)

// Config describes the single alert endpoint.
type Config struct {
	URL         string
	Secret      string
	MaxAttempts int
	QueueSize   int
	Timeout     time.Duration
	// RetryBase is the delay before the first retry; it doubles each attempt.
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	return c
}

// Job is one delivery, retried until it succeeds or runs out of attempts.
type Job struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Attempts    int
	NextRetryAt time.Time
	LastError   string
}
