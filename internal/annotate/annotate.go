// Package annotate draws detection results onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/imaging"
)

var (
	MatchedColor   = color.RGBA{R: 230, G: 20, B: 20, A: 255}
	UnmatchedColor = color.RGBA{R: 255, G: 170, B: 0, A: 255}
	labelText      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const thickness = 2

// Draw returns a copy of frame with a rectangle around every detection.
// Identified faces also get a "<urn> <confidence>%" label. frame itself is
// never modified.
func Draw(frame image.Image, detections []domain.Detection) *image.RGBA {
	out := imaging.CloneRGBA(frame)

	for _, d := range detections {
		c := UnmatchedColor
		if d.Matched() {
			c = MatchedColor
		}

		rect := d.Box.Rect().Intersect(out.Bounds())
		if rect.Empty() {
			continue
		}
		strokeRect(out, rect, c)

		if d.Matched() {
			drawLabel(out, rect, Label(d), c)
		}
	}

	return out
}

// Label is the caption drawn over an identified face.
func Label(d domain.Detection) string {
	if !d.Matched() {
		return ""
	}
	return fmt.Sprintf("%s %d%%", d.Identity.URN, d.Confidence())
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	t := thickness
	if r.Dx() < 2*t || r.Dy() < 2*t {
		draw.Draw(img, r, src, image.Point{}, draw.Src)
		return
	}

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), // top
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), // left
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text on a filled band above the box, or inside its top
// edge when the box touches the top of the frame.
func drawLabel(img *image.RGBA, box image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	height := metrics.Height.Ceil() + 2

	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelText), Face: face}
	width := d.MeasureString(text).Ceil() + 4

	top := box.Min.Y - height
	if top < img.Bounds().Min.Y {
		top = box.Min.Y
	}
	band := image.Rect(box.Min.X, top, box.Min.X+width, top+height).Intersect(img.Bounds())
	if band.Empty() {
		return
	}
	draw.Draw(img, band, image.NewUniform(bg), image.Point{}, draw.Src)

	d.Dot = fixed.P(band.Min.X+2, top+1+metrics.Ascent.Ceil())
	d.DrawString(text)
}
