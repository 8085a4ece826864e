package lbpcascade

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/esimov/lbpcascade/utils"
)

// Reference detector kinds.
const (
	ReferencePigo   = "pigo"
	ReferenceOpenCV = "opencv"
)

// ReferenceDetector is an independent detector the LBP cascade output can be compared against.
type ReferenceDetector interface {
	fmt.Stringer
	Detect(ctx context.Context, img *image.Gray) ([]Detection, error)
}

// PigoReference runs a PICO binary tree cascade over the image.
type PigoReference struct {
	MinSize      int
	MaxSize      int // zero selects the larger image dimension
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32

	classifier *pigo.Pigo
}

// NewPigoReference unpacks a PICO cascade and returns a reference detector with default parameters.
func NewPigoReference(cascade []byte) (*PigoReference, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the pigo cascade file: %w", err)
	}
	return &PigoReference{
		MinSize:      24,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
		classifier:   classifier,
	}, nil
}

// LoadPigoReference reads the PICO cascade found at path.
func LoadPigoReference(path string) (*PigoReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read the pigo cascade file: %w", err)
	}
	return NewPigoReference(data)
}

func (r *PigoReference) String() string {
	return ReferencePigo
}

// Detect returns the clustered PICO detections with a score of at least MinQuality.
func (r *PigoReference) Detect(ctx context.Context, img *image.Gray) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()

	maxSize := r.MaxSize
	if maxSize <= 0 {
		maxSize = utils.Max(rows, cols)
	}

	params := pigo.CascadeParams{
		MinSize:     r.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: r.ShiftFactor,
		ScaleFactor: r.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: img.Pix[img.PixOffset(b.Min.X, b.Min.Y):],
			Rows:   rows,
			Cols:   cols,
			Dim:    img.Stride,
		},
	}

	// The results are quadruplets of row, column, scale and detection score.
	found := r.classifier.RunCascade(params, 0.0)
	found = r.classifier.ClusterDetections(found, r.IoUThreshold)
	logger.Debugf(ctx, "pigo reference: %d clusters", len(found))

	var dets []Detection
	for _, d := range found {
		if d.Q < r.MinQuality {
			continue
		}
		dets = append(dets, Detection{
			X:      d.Col - d.Scale/2,
			Y:      d.Row - d.Scale/2,
			Width:  d.Scale,
			Height: d.Scale,
		})
	}
	return dets, nil
}
