package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/imaging"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

// stillSource replays decoded images in a loop at a fixed rate. It stands
// in for a camera in demos and tests.
type stillSource struct {
	frames   []image.Image
	interval time.Duration
	next     int
	due      time.Time
}

// OpenStill loads a single image or every image in a directory (sorted by
// name) and replays them at fps frames per second.
func OpenStill(path string, fps float64) (Source, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive", ErrUnsupportedSource)
	}

	files, err := listImages(path)
	if err != nil {
		return nil, err
	}

	frames := make([]image.Image, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrCapture, f, err)
		}
		img, _, err := imaging.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrCapture, f, err)
		}
		frames = append(frames, img)
	}

	return NewStillSource(frames, fps), nil
}

// NewStillSource replays frames in order. The first Read returns at once.
func NewStillSource(frames []image.Image, fps float64) Source {
	return &stillSource{
		frames:   frames,
		interval: time.Duration(float64(time.Second) / fps),
	}
}

func listImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	if !info.IsDir() {
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil, fmt.Errorf("%w: %s is not an image", ErrUnsupportedSource, path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrUnsupportedSource, path)
	}

	sort.Strings(files)
	return files, nil
}

func (s *stillSource) Read(ctx context.Context) (image.Image, error) {
	if len(s.frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", domain.ErrCapture)
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

	img := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return img, nil
}

func (s *stillSource) Close() error {
	s.frames = nil
	return nil
}
