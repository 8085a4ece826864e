//go:build with_cv

package lbpcascade

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"
)

// OpenCVReference runs OpenCV's own cascade classifier over the image.
type OpenCVReference struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point

	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewOpenCVReference loads the cascade description found at path into an OpenCV classifier.
// A zero maxSize leaves the window size unbounded.
func NewOpenCVReference(path string, scaleFactor float64, minSize, maxSize int) (*OpenCVReference, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("opencv failed loading the cascade file: %s", path)
	}
	return &OpenCVReference{
		ScaleFactor:  scaleFactor,
		MinNeighbors: 0,
		MinSize:      image.Pt(minSize, minSize),
		MaxSize:      image.Pt(maxSize, maxSize),
		classifier:   classifier,
	}, nil
}

func (r *OpenCVReference) String() string {
	return ReferenceOpenCV
}

// Detect runs the OpenCV multi-scale detection without grouping the raw hits.
func (r *OpenCVReference) Detect(ctx context.Context, img *image.Gray) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("could not convert the image to an opencv matrix: %w", err)
	}
	defer mat.Close()

	r.mu.Lock()
	rects := r.classifier.DetectMultiScaleWithParams(mat, r.ScaleFactor, r.MinNeighbors, 0, r.MinSize, r.MaxSize)
	r.mu.Unlock()
	logger.Debugf(ctx, "opencv reference: %d detections", len(rects))

	dets := make([]Detection, 0, len(rects))
	for _, rc := range rects {
		dets = append(dets, Detection{X: rc.Min.X, Y: rc.Min.Y, Width: rc.Dx(), Height: rc.Dy()})
	}
	return dets, nil
}

// Close releases the OpenCV classifier.
func (r *OpenCVReference) Close() error {
	return r.classifier.Close()
}
