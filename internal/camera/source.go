package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedSource is returned for a source string no opener handles.
var ErrUnsupportedSource = errors.New("unsupported camera source")

// Source is an open capture handle. Read blocks until the next frame is
// available or ctx is done. Each returned image must not be modified
// afterwards by the source. A Source is used by one goroutine at a time.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener turns a configured source string into an open Source.
type Opener interface {
	Open(ctx context.Context, source string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, source string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, source string) (Source, error) {
	return f(ctx, source)
}

// DefaultOpener dispatches on the shape of the source string:
//
//	0, 1, ...               local device index (gocv build)
//	rtsp://, rtsps://       network stream (gocv build)
//	http://, https://       MJPEG stream or JPEG snapshot endpoint
//	file:///dir?fps=5       image file or directory replayed in a loop
//	/path/clip.mp4          video file (gocv build)
//	/path/img.jpg, /dir     same as file://
type DefaultOpener struct {
	HTTPClient *http.Client
	// SnapshotInterval paces polling of single-image http endpoints.
	SnapshotInterval time.Duration
	// StillFPS is the replay rate for image files when the source has no fps parameter.
	StillFPS float64
}

func NewDefaultOpener() *DefaultOpener {
	return &DefaultOpener{
		HTTPClient:       &http.Client{},
		SnapshotInterval: 200 * time.Millisecond,
		StillFPS:         5,
	}
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true, ".webm": true, ".m4v": true,
}

func (o *DefaultOpener) Open(ctx context.Context, source string) (Source, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", ErrUnsupportedSource)
	}

	if _, err := strconv.Atoi(source); err == nil {
		return openCapture(source)
	}

	u, err := url.Parse(source)
	if err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		switch strings.ToLower(u.Scheme) {
		case "rtsp", "rtsps", "rtmp":
			return openCapture(source)
		case "http", "https":
			return openHTTP(ctx, o.HTTPClient, source, o.SnapshotInterval)
		case "file":
			return o.openPath(u.Path, u.Query().Get("fps"))
		default:
			return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
		}
	}

	return o.openPath(source, "")
}

func (o *DefaultOpener) openPath(path, fpsParam string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	if !info.IsDir() && videoExtensions[strings.ToLower(filepath.Ext(path))] {
		return openCapture(path)
	}

	fps := o.StillFPS
	if fpsParam != "" {
		v, err := strconv.ParseFloat(fpsParam, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: invalid fps %q", ErrUnsupportedSource, fpsParam)
		}
		fps = v
	}

	return OpenStill(path, fps)
}
