package lbpcascade

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/esimov/lbpcascade/utils"
)

// scanMargin keeps the sliding window away from the image border, where the
// rounding of scaled feature rectangles could otherwise step past the last pixel.
const scanMargin = 2

// Cascade is a trained LBP rejection cascade. It is immutable once loaded
// and can be shared between concurrent detection runs.
type Cascade struct {
	// Height and Width give the canonical detection window size.
	Height int
	Width  int
	Stages []Stage
	Rects  []Rect
}

// Detection is a rectangle, in source image pixels, accepted by every stage of the cascade.
type Detection struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect converts the detection to an image.Rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
}

// IoU returns the intersection over union of two detections.
func (d Detection) IoU(other Detection) float64 {
	inter := d.Rect().Intersect(other.Rect())
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := d.Width*d.Height + other.Width*other.Height - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// Validate checks the window size and the rectangle references of a cascade.
// Cascades returned by Load are already valid; a cascade assembled by hand
// should be validated before DetectAtLocation is called on it.
func (c *Cascade) Validate() error {
	if c.Height <= 0 || c.Width <= 0 {
		return &InvalidGeometryError{
			Field:  "window",
			Reason: fmt.Sprintf("window size must be positive, got %dx%d", c.Height, c.Width),
		}
	}
	for i, r := range c.Rects {
		if r.Width < 0 || r.Height < 0 {
			return &InvalidGeometryError{Field: fmt.Sprintf("rects[%d]", i), Reason: "negative rectangle size"}
		}
	}
	for i := range c.Stages {
		for j, f := range c.Stages[i].Features {
			if f.RectIndex < 0 || f.RectIndex >= len(c.Rects) {
				return &InvalidGeometryError{
					Field:  fmt.Sprintf("stages[%d].features[%d].rectIndex", i, j),
					Reason: fmt.Sprintf("rectangle index %d out of range [0, %d)", f.RectIndex, len(c.Rects)),
				}
			}
		}
	}
	return nil
}

// DetectAtLocation reports whether the window anchored at (row, col) passes every stage.
// It panics if a feature refers to a rectangle missing from the pool, see Validate.
func (c *Cascade) DetectAtLocation(ii *IntegralImage, row, col int, scale float64) bool {
	for i := range c.Stages {
		if !c.Stages[i].Evaluate(ii, c.Rects, row, col, scale) {
			return false
		}
	}
	return true
}

// windowSize returns the scaled window height and width.
func (c *Cascade) windowSize(scale float64) (int, int) {
	return utils.Round(float64(c.Height) * scale), utils.Round(float64(c.Width) * scale)
}

// scanBounds returns the exclusive upper bounds of the window's top-left row and column.
func (c *Cascade) scanBounds(ii *IntegralImage, scale float64) (int, int) {
	wh, ww := c.windowSize(scale)
	return ii.Rows - wh - scanMargin, ii.Cols - ww - scanMargin
}

// scanRow evaluates every window of a single row and appends the accepted ones to dst.
func (c *Cascade) scanRow(ii *IntegralImage, row, maxCol, step int, scale float64, dst []Detection) []Detection {
	wh, ww := c.windowSize(scale)
	for col := 0; col < maxCol; col += step {
		if c.DetectAtLocation(ii, row, col, scale) {
			// The reported size keeps the [height, width] ordering of the window.
			dst = append(dst, Detection{X: col, Y: row, Width: wh, Height: ww})
		}
	}
	return dst
}

// DetectSingleScale slides the window scaled by scale over the image with the given step.
func (c *Cascade) DetectSingleScale(ii *IntegralImage, scale float64, step int) ([]Detection, error) {
	if step < 1 {
		return nil, &InvalidArgumentError{Name: "step", Value: step, Reason: "must be at least 1"}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.detectSingleScale(ii, scale, step), nil
}

func (c *Cascade) detectSingleScale(ii *IntegralImage, scale float64, step int) []Detection {
	var dets []Detection
	maxRow, maxCol := c.scanBounds(ii, scale)
	for row := 0; row < maxRow; row += step {
		dets = c.scanRow(ii, row, maxCol, step, scale, dets)
	}
	return dets
}

// MaxScale returns the largest whole window magnification that fits the image.
func (c *Cascade) MaxScale(rows, cols int) int {
	return utils.Min(rows/c.Height, cols/c.Width)
}

// Scales lists the scales visited by DetectMultiScale for an image of rows×cols pixels:
// 1.0 multiplied by scaleFactor for as long as it does not exceed MaxScale.
func (c *Cascade) Scales(rows, cols int, scaleFactor float64) []float64 {
	var scales []float64
	if !(scaleFactor > 1.0) {
		return scales
	}
	maxScale := float64(c.MaxScale(rows, cols))
	for scale := 1.0; scale <= maxScale; scale *= scaleFactor {
		scales = append(scales, scale)
	}
	return scales
}

func validateScaleFactor(scaleFactor float64) error {
	if !(scaleFactor > 1.0) || math.IsInf(scaleFactor, 0) {
		return &InvalidArgumentError{Name: "scaleFactor", Value: scaleFactor, Reason: "must be a finite number greater than 1.0"}
	}
	return nil
}

// DetectMultiScale runs the detector at every scale returned by Scales and
// concatenates the results in increasing scale order. Overlapping detections are
// neither merged nor filtered.
func (c *Cascade) DetectMultiScale(ctx context.Context, ii *IntegralImage, scaleFactor float64, step int) ([]Detection, error) {
	if err := validateScaleFactor(scaleFactor); err != nil {
		return nil, err
	}
	if step < 1 {
		return nil, &InvalidArgumentError{Name: "step", Value: step, Reason: "must be at least 1"}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger.Debugf(ctx, "max scale: %d", c.MaxScale(ii.Rows, ii.Cols))

	var dets []Detection
	for _, scale := range c.Scales(ii.Rows, ii.Cols, scaleFactor) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wh, ww := c.windowSize(scale)
		logger.Debugf(ctx, "evaluating at scale %.4f (%dx%d)", scale, wh, ww)

		dets = append(dets, c.detectSingleScale(ii, scale, step)...)
	}
	return dets, nil
}
