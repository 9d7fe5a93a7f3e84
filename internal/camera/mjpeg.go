package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/imaging"
)

// maxPartSize bounds a single JPEG read from a network camera.
const maxPartSize = 16 << 20

// httpSource reads a multipart/x-mixed-replace MJPEG stream, or polls a
// single-image endpoint when the camera only serves snapshots.
type httpSource struct {
	client   *http.Client
	url      string
	interval time.Duration

	// stream mode
	body   io.ReadCloser
	parts  *multipart.Reader
	cancel context.CancelFunc

	// snapshot mode
	pending image.Image
	due     time.Time
}

func openHTTP(ctx context.Context, client *http.Client, url string, interval time.Duration) (Source, error) {
	if client == nil {
		client = http.DefaultClient
	}

	// The connection outlives ctx, which only bounds the open.
	connCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := get(connCtx, client, url)
	if err != nil {
		cancel()
		return nil, err
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: content type: %v", domain.ErrCapture, err)
	}

	s := &httpSource{client: client, url: url, interval: interval}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := strings.TrimPrefix(params["boundary"], "--")
		if boundary == "" {
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("%w: multipart stream without boundary", domain.ErrCapture)
		}
		s.body = resp.Body
		s.parts = multipart.NewReader(resp.Body, boundary)
		s.cancel = cancel
		return s, nil

	case strings.HasPrefix(mediaType, "image/"):
		defer cancel()
		img, err := decodeBody(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		s.pending = img
		return s, nil

	default:
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrUnsupportedSource, mediaType)
	}
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCapture, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: camera returned status %d", domain.ErrCapture, resp.StatusCode)
	}
	return resp, nil
}

func decodeBody(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPartSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", domain.ErrCapture, err)
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCapture, err)
	}
	return img, nil
}

func (s *httpSource) Read(ctx context.Context) (image.Image, error) {
	if s.parts != nil {
		return s.readPart(ctx)
	}
	return s.readSnapshot(ctx)
}

func (s *httpSource) readPart(ctx context.Context) (image.Image, error) {
	// a blocked body read is released by tearing the connection down
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	part, err := s.parts.NextPart()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: next part: %v", domain.ErrCapture, err)
	}

	// With a length the part is read exactly, so the frame is decoded
	// without waiting for the next boundary. NextPart drains the rest.
	if n, err := strconv.Atoi(part.Header.Get("Content-Length")); err == nil && n > 0 && n <= maxPartSize {
		buf := make([]byte, n)
		if _, err := io.ReadFull(part, buf); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: read part: %v", domain.ErrCapture, err)
		}
		img, _, err := imaging.Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCapture, err)
		}
		return img, nil
	}

	img, err := decodeBody(part)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return img, err
}

func (s *httpSource) readSnapshot(ctx context.Context) (image.Image, error) {
	if s.pending != nil {
		img := s.pending
		s.pending = nil
		s.due = time.Now().Add(s.interval)
		return img, nil
	}

	if wait := time.Until(s.due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	s.due = time.Now().Add(s.interval)

	resp, err := get(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeBody(resp.Body)
}

func (s *httpSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
