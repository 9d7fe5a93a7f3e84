//go:build !gocv

package camera

import "fmt"

func openCapture(source string) (Source, error) {
	return nil, fmt.Errorf("%w: %s needs OpenCV, rebuild with -tags gocv", ErrUnsupportedSource, source)
}
