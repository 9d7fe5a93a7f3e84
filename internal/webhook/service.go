package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

const (
	HeaderSignature = "X-Aerowatch-Signature"
	HeaderEvent     = "X-Aerowatch-Event"
	HeaderDelivery  = "X-Aerowatch-Delivery"
)

// Sender posts signed payloads to the configured URL.
type Sender struct {
	url    string
	secret string
	client *http.Client
}

func NewSender(cfg Config) *Sender {
	cfg = cfg.withDefaults()
	return &Sender{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Send delivers job once. Any transport error or a status of 400 and
// above is returned so the caller can retry.
func (s *Sender) Send(ctx context.Context, job *Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.EventType)
	req.Header.Set(HeaderDelivery, job.ID.String())
	req.Header.Set("User-Agent", "Aerowatch-Webhook/1.0")
	if s.secret != "" {
		req.Header.Set(HeaderSignature, Sign(s.secret, job.Payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil
}
