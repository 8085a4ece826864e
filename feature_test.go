package lbpcascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeature_LookupTableBit(t *testing.T) {
	var table LookupTable
	table[2] = 1 << 5

	assert.True(t, table.Bit(69))
	assert.False(t, table.Bit(68))
	assert.False(t, table.Bit(5))

	table[7] = 1 << 31
	assert.True(t, table.Bit(255))
	assert.False(t, table.Bit(254))
}

func TestFeature_LocalBinaryPatternOrder(t *testing.T) {
	cases := []struct {
		bright int
		code   uint8
	}{
		{0, 0x80},
		{1, 0x40},
		{2, 0x20},
		{5, 0x10},
		{8, 0x08},
		{7, 0x04},
		{6, 0x02},
		{3, 0x01},
	}
	for _, tc := range cases {
		var cells [9]int64
		cells[4] = 10
		cells[tc.bright] = 20
		assert.Equal(t, tc.code, localBinaryPattern(&cells), "bright cell %d", tc.bright)
	}

	var equal [9]int64
	for i := range equal {
		equal[i] = 7
	}
	assert.Equal(t, uint8(0xFF), localBinaryPattern(&equal))
}

// brightCornerImage returns a 9x9 image made of 3x3 blocks where the center block
// is brighter than every other block except the top-left one.
func brightCornerImage(t *testing.T) *IntegralImage {
	pixels := flatPixels(9, 9, 10)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			pixels[r][c] = 255
		}
	}
	for r := 3; r < 6; r++ {
		for c := 3; c < 6; c++ {
			pixels[r][c] = 200
		}
	}
	ii, err := BuildIntegral(pixels)
	require.NoError(t, err)
	return ii
}

func TestFeature_PatternUsesMostSignificantBitFirst(t *testing.T) {
	ii := brightCornerImage(t)
	rect := Rect{Width: 3, Height: 3}
	f := Feature{PassWeight: 1, FailWeight: -1}

	assert.Equal(t, uint8(0x80), pattern(ii, rect, 0, 0, 1.0))

	// code 128 lives in bit 0 of word 4
	f.Table[4] = 1
	assert.Equal(t, -1.0, f.Evaluate(ii, rect, 0, 0, 1.0))

	// the reversed bit order would have produced code 1
	f.Table = LookupTable{0: 1 << 1}
	assert.Equal(t, 1.0, f.Evaluate(ii, rect, 0, 0, 1.0))
}

func TestFeature_FlatImage(t *testing.T) {
	ii, err := BuildIntegral(flatPixels(30, 30, 128))
	require.NoError(t, err)

	rect := Rect{X: 2, Y: 3, Width: 4, Height: 2}
	f := Feature{PassWeight: 0.5, FailWeight: -0.25}
	assert.Equal(t, uint8(0xFF), pattern(ii, rect, 1, 1, 1.0))
	assert.Equal(t, 0.5, f.Evaluate(ii, rect, 1, 1, 1.0))

	f.Table[7] = 1 << 31
	assert.Equal(t, -0.25, f.Evaluate(ii, rect, 1, 1, 1.0))
	assert.Equal(t, -0.25, f.Evaluate(ii, rect, 4, 2, 1.69))
}

func TestFeature_ZeroSizeCells(t *testing.T) {
	ii := brightCornerImage(t)
	// every cell sums to zero, so every comparison holds
	assert.Equal(t, uint8(0xFF), pattern(ii, Rect{X: 1, Y: 1}, 0, 0, 1.0))
}

func TestFeature_Deterministic(t *testing.T) {
	c, err := LoadFile("testdata/tiny_lbp.xml")
	require.NoError(t, err)

	ii := brightCornerImage(t)
	f := c.Stages[0].Features[0]
	rect := c.Rects[f.RectIndex]
	first := f.Evaluate(ii, rect, 0, 0, 1.0)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.Evaluate(ii, rect, 0, 0, 1.0))
	}
}
