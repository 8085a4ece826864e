package lbpcascade

import "github.com/esimov/lbpcascade/utils"

// Rect is a rectangle expressed relative to the top-left corner of the detection window.
type Rect struct {
	X      int // column offset
	Y      int // row offset
	Width  int
	Height int
}

// LookupTable is the 256-bit table of an LBP feature stored as 8 words of 32 bits.
// Bit (code % 32) of word (code / 32) is set for the patterns which make the feature fail.
type LookupTable [8]uint32

// Bit reports whether the bit addressed by the pattern code is set.
func (t *LookupTable) Bit(code uint8) bool {
	return t[code>>5]&(1<<(code&31)) != 0
}

// ringOrder is the visiting order of the cells surrounding the center of the 3x3 grid,
// clockwise starting at the top-left cell. The first visited cell gives the most significant bit.
var ringOrder = [8]int{0, 1, 2, 5, 8, 7, 6, 3}

// Feature is a single local binary pattern test.
type Feature struct {
	// RectIndex points into the rectangle pool of the owning cascade.
	RectIndex  int
	PassWeight float64
	FailWeight float64
	Table      LookupTable
}

// Evaluate returns the feature score for the window anchored at (row, col) at the given scale.
// rect is the cell rectangle the feature refers to, Rects[RectIndex] of the owning cascade.
func (f *Feature) Evaluate(ii *IntegralImage, rect Rect, row, col int, scale float64) float64 {
	if f.Table.Bit(pattern(ii, rect, row, col, scale)) {
		return f.FailWeight
	}
	return f.PassWeight
}

// pattern computes the 8-bit local binary pattern code of the 3x3 cell grid laid out by rect.
func pattern(ii *IntegralImage, rect Rect, row, col int, scale float64) uint8 {
	var (
		rowStart = row + utils.Round(float64(rect.Y)*scale)
		colStart = col + utils.Round(float64(rect.X)*scale)
		cellW    = utils.Round(float64(rect.Width) * scale)
		cellH    = utils.Round(float64(rect.Height) * scale)
		cells    [9]int64
	)

	for i := 0; i < 3; i++ {
		r0 := rowStart + i*cellH
		r1 := r0 + cellH
		for j := 0; j < 3; j++ {
			c0 := colStart + j*cellW
			c1 := c0 + cellW
			cells[i*3+j] = ii.Sum(r0, c0, r1, c1)
		}
	}
	return localBinaryPattern(&cells)
}

// localBinaryPattern compares every ring cell against the center cell (index 4).
func localBinaryPattern(cells *[9]int64) uint8 {
	var code uint8
	center := cells[4]
	for _, idx := range ringOrder {
		code <<= 1
		if cells[idx] >= center {
			code |= 1
		}
	}
	return code
}
