package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

func solid(w, h int, c color.Color) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, c)
		}
	}
	return m
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h, color.Gray{Y: 128}), nil))
	return buf.Bytes()
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, solid(w, h, color.White)))
}

func mjpegServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f))
			_, _ = w.Write(f)
			_, _ = w.Write([]byte("\r\n"))
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
}

func TestDefaultOpener_MJPEG(t *testing.T) {
	srv := mjpegServer(t, [][]byte{jpegBytes(t, 8, 6), jpegBytes(t, 4, 2)})
	defer srv.Close()

	src, err := NewDefaultOpener().Open(context.Background(), srv.URL+"/video")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), first.Bounds())

	second, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), second.Bounds())

	// the server now holds the connection open without sending
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultOpener_Snapshot(t *testing.T) {
	data := jpegBytes(t, 5, 5)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	opener := NewDefaultOpener()
	opener.SnapshotInterval = time.Millisecond

	src, err := opener.Open(context.Background(), srv.URL+"/snapshot.jpg")
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 3; i++ {
		img, err := src.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, img.Bounds().Dx())
	}
	// the open request's image is served first, then one poll per read
	assert.Equal(t, int32(3), hits.Load())
}

func TestDefaultOpener_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: domain.ErrCapture,
		},
		{
			name: "unexpected content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			wantErr: ErrUnsupportedSource,
		},
		{
			name: "multipart without boundary",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "multipart/x-mixed-replace")
			},
			wantErr: domain.ErrCapture,
		},
		{
			name: "snapshot that is not an image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/jpeg")
				_, _ = w.Write([]byte("garbage"))
			},
			wantErr: domain.ErrCapture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewDefaultOpener().Open(context.Background(), srv.URL)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefaultOpener_StillDirectory(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 2, 2)
	writePNG(t, filepath.Join(dir, "a.png"), 1, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	src, err := NewDefaultOpener().Open(context.Background(), "file://"+dir+"?fps=1000")
	require.NoError(t, err)
	defer src.Close()

	var widths []int
	for i := 0; i < 3; i++ {
		img, err := src.Read(context.Background())
		require.NoError(t, err)
		widths = append(widths, img.Bounds().Dx())
	}
	assert.Equal(t, []int{1, 2, 1}, widths)
}

func TestOpenStill_Pacing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.png")
	writePNG(t, path, 3, 3)

	src, err := OpenStill(path, 20)
	require.NoError(t, err)

	_, err = src.Read(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, src.Close())
	_, err = src.Read(context.Background())
	assert.ErrorIs(t, err, domain.ErrCapture)
}

func TestDefaultOpener_Rejects(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o700))

	tests := []struct {
		name   string
		source string
	}{
		{"empty", "  "},
		{"unknown scheme", "ftp://host/cam"},
		{"missing path", filepath.Join(dir, "nope")},
		{"directory without images", empty},
		{"bad fps", "file://" + dir + "?fps=abc"},
		{"zero fps", "file://" + dir + "?fps=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDefaultOpener().Open(context.Background(), tt.source)
			assert.ErrorIs(t, err, ErrUnsupportedSource)
		})
	}
}

func TestStream_OverMJPEG(t *testing.T) {
	srv := mjpegServer(t, [][]byte{jpegBytes(t, 8, 6)})
	defer srv.Close()

	s := Open(context.Background(), "net", srv.URL, NewDefaultOpener(), testLogger())

	f, ok := s.WaitFrame(context.Background(), 0, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, 8, f.Image.Bounds().Dx())

	// Stop must unblock the pending part read
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, StateStopped, s.State())
}
