package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/ws"
)

// Dispatcher queues alert events and delivers them from a single worker
// goroutine. Failed deliveries are retried with exponential backoff and
// dropped after the last attempt. Pending jobs are lost on shutdown.
type Dispatcher struct {
	sender      *Sender
	logger      *slog.Logger
	queue       chan *Job
	maxAttempts int
	retryBase   time.Duration
	now         func() time.Time
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sender:      NewSender(cfg),
		logger:      logger.With(slog.String("component", "webhook")),
		queue:       make(chan *Job, cfg.QueueSize),
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		now:         time.Now,
	}
}

// Publish implements ws.Sink. It never blocks.
func (d *Dispatcher) Publish(event ws.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to marshal event", slog.String("type", string(event.Type)), slog.Any("error", err))
		return
	}

	job := &Job{
		ID:        uuid.New(),
		EventType: string(event.Type),
		Payload:   payload,
	}

	select {
	case d.queue <- job:
	default:
		d.logger.Warn("webhook queue full, dropping event", slog.String("type", job.EventType))
	}
}

// Run delivers jobs until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(max(d.retryBase/2, time.Millisecond))
	defer ticker.Stop()

	d.logger.Info("webhook worker started")

	var retries []*Job
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("webhook worker stopped", slog.Int("pending", len(retries)+len(d.queue)))
			return
		case job := <-d.queue:
			if d.deliver(ctx, job) {
				retries = append(retries, job)
			}
		case <-ticker.C:
			retries = d.processRetries(ctx, retries)
		}
	}
}

func (d *Dispatcher) processRetries(ctx context.Context, jobs []*Job) []*Job {
	now := d.now()
	kept := jobs[:0]
	for _, job := range jobs {
		if job.NextRetryAt.After(now) || ctx.Err() != nil {
			kept = append(kept, job)
			continue
		}
		if d.deliver(ctx, job) {
			kept = append(kept, job)
		}
	}
	return kept
}

// deliver sends job once and reports whether it should be retried.
func (d *Dispatcher) deliver(ctx context.Context, job *Job) bool {
	err := d.sender.Send(ctx, job)
	if err == nil {
		d.logger.Info("webhook delivered", slog.String("delivery_id", job.ID.String()), slog.String("type", job.EventType))
		return false
	}

	job.Attempts++
	job.LastError = err.Error()

	if job.Attempts >= d.maxAttempts {
		d.logger.Warn("webhook delivery failed",
			slog.String("delivery_id", job.ID.String()),
			slog.Int("attempts", job.Attempts),
			slog.String("error", job.LastError),
		)
		return false
	}

	delay := d.retryBase * time.Duration(1<<(job.Attempts-1))
	job.NextRetryAt = d.now().Add(delay)

	d.logger.Info("webhook delivery scheduled for retry",
		slog.String("delivery_id", job.ID.String()),
		slog.Int("attempts", job.Attempts),
		slog.Time("next_retry", job.NextRetryAt),
		slog.String("error", job.LastError),
	)
	return true
}

var _ ws.Sink = (*Dispatcher)(nil)
