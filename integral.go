package lbpcascade

import (
	"fmt"
	"image"
)

// IntegralImage is the summed-area table of a grayscale image.
// For a source of Rows×Cols pixels it holds (Rows+1)×(Cols+1) values where
// the value at (i, j) is the sum of all source pixels with row < i and column < j.
type IntegralImage struct {
	Rows int
	Cols int

	stride int
	data   []int64
}

// BuildIntegral computes the integral image of a rectangular grayscale buffer
// given as a slice of rows.
func BuildIntegral(pixels [][]uint8) (*IntegralImage, error) {
	rows := len(pixels)
	if rows == 0 || len(pixels[0]) == 0 {
		return nil, &InputError{Reason: "empty pixel buffer"}
	}
	cols := len(pixels[0])
	for r, row := range pixels {
		if len(row) != cols {
			return nil, &InputError{
				Reason: fmt.Sprintf("non-rectangular pixel buffer: row %d has %d columns, expected %d", r, len(row), cols),
			}
		}
	}

	ii := newIntegral(rows, cols)
	for i := 1; i <= rows; i++ {
		src := pixels[i-1]
		ii.accumulateRow(i, func(j int) int64 { return int64(src[j-1]) })
	}
	return ii, nil
}

// BuildIntegralFromGray computes the integral image of img.
func BuildIntegralFromGray(img *image.Gray) (*IntegralImage, error) {
	if img == nil {
		return nil, &InputError{Reason: "nil image"}
	}
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	if rows <= 0 || cols <= 0 {
		return nil, &InputError{Reason: "empty pixel buffer"}
	}

	ii := newIntegral(rows, cols)
	for i := 1; i <= rows; i++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+i-1)
		line := img.Pix[off : off+cols]
		ii.accumulateRow(i, func(j int) int64 { return int64(line[j-1]) })
	}
	return ii, nil
}

func newIntegral(rows, cols int) *IntegralImage {
	return &IntegralImage{
		Rows:   rows,
		Cols:   cols,
		stride: cols + 1,
		data:   make([]int64, (rows+1)*(cols+1)),
	}
}

// accumulateRow fills row i of the table: I[i][j] = src + I[i-1][j] + I[i][j-1] - I[i-1][j-1].
func (ii *IntegralImage) accumulateRow(i int, src func(j int) int64) {
	cur := ii.data[i*ii.stride : (i+1)*ii.stride]
	prev := ii.data[(i-1)*ii.stride : i*ii.stride]
	for j := 1; j < ii.stride; j++ {
		cur[j] = src(j) + prev[j] + cur[j-1] - prev[j-1]
	}
}

// At returns the table value at (i, j). Coordinates past the border saturate
// to the nearest valid row or column.
func (ii *IntegralImage) At(i, j int) int64 {
	if i < 0 {
		i = 0
	} else if i > ii.Rows {
		i = ii.Rows
	}
	if j < 0 {
		j = 0
	} else if j > ii.Cols {
		j = ii.Cols
	}
	return ii.data[i*ii.stride+j]
}

// Sum returns the sum of the source pixels in rows [r0, r1) and columns [c0, c1).
func (ii *IntegralImage) Sum(r0, c0, r1, c1 int) int64 {
	return ii.At(r1, c1) - ii.At(r0, c1) - ii.At(r1, c0) + ii.At(r0, c0)
}
