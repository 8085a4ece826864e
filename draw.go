package lbpcascade

import (
	"image"
	"image/color"
	"image/draw"
)

// DefaultRectColor is the outline color of the detection rectangles.
var DefaultRectColor = color.NRGBA{G: 0xff, A: 0xff}

// DrawDetections outlines every detection on dst with the given color and line thickness.
// Rectangles are clipped to the image bounds; the outline grows inwards from the detection edges.
func DrawDetections(dst *image.NRGBA, dets []Detection, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	fill := image.NewUniform(c)
	bounds := dst.Bounds()

	for _, d := range dets {
		r := d.Rect().Add(bounds.Min)
		if r.Empty() {
			continue
		}
		t := thickness
		if 2*t > r.Dx() || 2*t > r.Dy() {
			// the outline would cover the whole box
			draw.Draw(dst, r.Intersect(bounds), fill, image.Point{}, draw.Src)
			continue
		}
		edges := [4]image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), // top
			image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), // bottom
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), // left
			image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), // right
		}
		for _, e := range edges {
			draw.Draw(dst, e.Intersect(bounds), fill, image.Point{}, draw.Src)
		}
	}
}
