//go:build !gocv

package camera

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOpener_CaptureNeedsGocv(t *testing.T) {
	for _, source := range []string{"0", "rtsp://10.0.0.4/live"} {
		_, err := NewDefaultOpener().Open(context.Background(), source)
		assert.ErrorIs(t, err, ErrUnsupportedSource, source)
		assert.Contains(t, err.Error(), "-tags gocv")
	}
}
