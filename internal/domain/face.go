package domain

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// KnownFace representa uma identidade cadastrada (watch-list)
type KnownFace struct {
	URN       string                 `json:"urn"`
	Embedding []float64              `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// BoundingBox uses the (top, right, bottom, left) pixel convention of the
// encoding service. It is serialized as a four element array.
type BoundingBox struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

func BoxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Scale multiplies every coordinate by f, used to map boxes found on a
// downscaled frame back onto the original.
func (b BoundingBox) Scale(f float64) BoundingBox {
	return BoundingBox{
		Top:    int(math.Round(float64(b.Top) * f)),
		Right:  int(math.Round(float64(b.Right) * f)),
		Bottom: int(math.Round(float64(b.Bottom) * f)),
		Left:   int(math.Round(float64(b.Left) * f)),
	}
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.Top, b.Right, b.Bottom, b.Left})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var v [4]int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("bounding box: %w", err)
	}
	b.Top, b.Right, b.Bottom, b.Left = v[0], v[1], v[2], v[3]
	return nil
}

// Identity is the matched record attached to a detection.
type Identity struct {
	URN     string                 `json:"urn"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Detection is one face found in a frame. Identity is nil when no record
// was within the threshold. Distance is the nearest record's distance and
// is only meaningful when HasCandidate is true.
type Detection struct {
	Box          BoundingBox `json:"bbox"`
	Identity     *Identity   `json:"identity,omitempty"`
	Distance     float64     `json:"distance"`
	HasCandidate bool        `json:"-"`
}

func (d Detection) Matched() bool {
	return d.Identity != nil
}

// Confidence is the percentage shown next to a match, round((1-distance)*100).
func (d Detection) Confidence() int {
	return Confidence(d.Distance)
}

func Confidence(distance float64) int {
	return int(math.Round((1 - distance) * 100))
}
