package lbpcascade

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/esimov/lbpcascade/utils"
)

// Processor options
type Processor struct {
	Cascade      *Cascade
	Reference    ReferenceDetector
	Spinner      *utils.Spinner
	RectColor    color.NRGBA
	RefColor     color.NRGBA
	Format       string
	ScaleFactor  float64
	IoUThreshold float64
	StepSize     int
	Workers      int
	MaxSize      int
	Thickness    int
	Quality      int
	Equalize     bool
	Lossless     bool
}

// Result holds the outcome of a single detection run.
type Result struct {
	// Detections and Reference are expressed in source image coordinates.
	Detections []Detection
	Reference  []Detection
	Comparison *Comparison
	Bounds     image.Rectangle
	// Ratio is the source size divided by the analyzed size, 1 unless the image was downscaled.
	Ratio   float64
	Windows int64
	Elapsed time.Duration

	src image.Image
}

// NewProcessor returns a processor with the default settings for the given cascade.
func NewProcessor(c *Cascade) *Processor {
	return &Processor{
		Cascade:      c,
		RectColor:    DefaultRectColor,
		RefColor:     color.NRGBA{R: 0xff, A: 0xff},
		Format:       FormatPNG,
		ScaleFactor:  1.3,
		IoUThreshold: 0.3,
		StepSize:     2,
		Thickness:    2,
		Quality:      95,
		Equalize:     true,
	}
}

// Detect runs the cascade over img and, when configured, the reference detector.
func (p *Processor) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if p.Cascade == nil {
		return nil, &InvalidArgumentError{Name: "cascade", Value: nil, Reason: "no cascade loaded"}
	}
	start := time.Now()

	res := &Result{
		Bounds: img.Bounds(),
		Ratio:  1,
		src:    img,
	}

	work := img
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if p.MaxSize > 0 && utils.Max(w, h) > p.MaxSize {
		work = imaging.Fit(img, p.MaxSize, p.MaxSize, imaging.Lanczos)
		res.Ratio = float64(w) / float64(work.Bounds().Dx())
		logger.Debugf(ctx, "downscaled %dx%d to %dx%d", w, h, work.Bounds().Dx(), work.Bounds().Dy())
	}

	gray := toGray(work)
	if p.Equalize {
		gray = equalizeHist(gray)
	}

	ii, err := BuildIntegralFromGray(gray)
	if err != nil {
		return nil, err
	}

	det := &Detector{
		Cascade:     p.Cascade,
		ScaleFactor: p.ScaleFactor,
		StepSize:    p.StepSize,
		Workers:     p.Workers,
	}
	dets, err := det.Detect(ctx, ii)
	if err != nil {
		return nil, err
	}
	res.Windows = det.Windows()
	logger.Debugf(ctx, "%d detections out of %d windows", len(dets), res.Windows)

	var ref []Detection
	if p.Reference != nil {
		ref, err = p.Reference.Detect(ctx, gray)
		if err != nil {
			return nil, fmt.Errorf("%s reference detection failed: %w", p.Reference, err)
		}
		cmp := Compare(dets, ref, p.IoUThreshold)
		res.Comparison = &cmp
	}

	res.Detections = scaleDetections(dets, res.Ratio)
	res.Reference = scaleDetections(ref, res.Ratio)
	res.Elapsed = time.Since(start)
	return res, nil
}

// scaleDetections maps detections found on a downscaled image back to the source image.
func scaleDetections(dets []Detection, ratio float64) []Detection {
	if ratio == 1 {
		return dets
	}
	out := make([]Detection, len(dets))
	for i, d := range dets {
		out[i] = Detection{
			X:      utils.Round(float64(d.X) * ratio),
			Y:      utils.Round(float64(d.Y) * ratio),
			Width:  utils.Round(float64(d.Width) * ratio),
			Height: utils.Round(float64(d.Height) * ratio),
		}
	}
	return out
}

// Render returns a copy of img with the detections outlined.
func (p *Processor) Render(img image.Image, dets []Detection, c color.Color) *image.NRGBA {
	dst := imaging.Clone(img)
	DrawDetections(dst, dets, c, p.Thickness)
	return dst
}

// Process decodes the image read from r, runs the detection and writes the
// annotated image into w. When w is a file its extension selects the output
// format, otherwise the Format option is used.
func (p *Processor) Process(ctx context.Context, r io.Reader, w io.Writer) (*Result, error) {
	img, err := decodeImage(r)
	if err != nil {
		return nil, err
	}
	res, err := p.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := p.encode(w, p.Render(img, res.Detections, p.RectColor)); err != nil {
		return nil, fmt.Errorf("could not encode the output image: %w", err)
	}
	return res, nil
}

// WriteReference writes the source image of res annotated with the reference detections.
func (p *Processor) WriteReference(w io.Writer, res *Result) error {
	if res == nil || res.src == nil {
		return errors.New("no source image to render")
	}
	return p.encode(w, p.Render(res.src, res.Reference, p.RefColor))
}

// Close releases the reference detector when it holds native resources.
func (p *Processor) Close() error {
	if c, ok := p.Reference.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *Processor) encode(w io.Writer, img image.Image) error {
	format := p.Format
	if f, ok := w.(*os.File); ok && filepath.Ext(f.Name()) != "" {
		if ff, err := formatFromPath(f.Name()); err == nil {
			format = ff
		}
	}
	return encodeImage(w, img, format, p.Quality, p.Lossless)
}
