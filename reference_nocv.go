//go:build !with_cv

package lbpcascade

import (
	"context"
	"errors"
	"image"
)

var errNoOpenCV = errors.New("opencv support is not enabled, rebuild with -tags with_cv")

// OpenCVReference is unavailable in builds without the with_cv tag.
type OpenCVReference struct{}

// NewOpenCVReference always fails in builds without the with_cv tag.
func NewOpenCVReference(path string, scaleFactor float64, minSize, maxSize int) (*OpenCVReference, error) {
	return nil, errNoOpenCV
}

func (r *OpenCVReference) String() string {
	return ReferenceOpenCV
}

func (r *OpenCVReference) Detect(ctx context.Context, img *image.Gray) ([]Detection, error) {
	return nil, errNoOpenCV
}

func (r *OpenCVReference) Close() error {
	return nil
}
