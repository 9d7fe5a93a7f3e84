//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

// captureSource wraps an OpenCV VideoCapture for local devices, network
// streams and video files.
type captureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func openCapture(source string) (Source, error) {
	var device interface{} = source
	if idx, err := strconv.Atoi(source); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrCapture, source, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s did not open", domain.ErrCapture, source)
	}

	// only the latest frame matters
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &captureSource{capture: vc, mat: gocv.NewMat()}, nil
}

func (s *captureSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", domain.ErrCapture)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: convert frame: %v", domain.ErrCapture, err)
	}
	return img, nil
}

func (s *captureSource) Close() error {
	_ = s.mat.Close()
	return s.capture.Close()
}
