package lbpcascade

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptAll returns a single stage cascade which accepts every window.
func acceptAll(height, width int) *Cascade {
	return &Cascade{
		Height: height,
		Width:  width,
		Rects:  []Rect{{Width: 2, Height: 2}},
		Stages: []Stage{{
			Threshold: -0.5,
			Features:  []Feature{{RectIndex: 0, PassWeight: 1, FailWeight: -1}},
		}},
	}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func TestCascade_Scales(t *testing.T) {
	c := acceptAll(20, 20)

	assert.Equal(t, 5, c.MaxScale(100, 100))
	assert.InDeltaSlice(t,
		[]float64{1, 1.3, 1.69, 2.197, 2.8561, 3.71293, 4.826809},
		c.Scales(100, 100, 1.3), 1e-9)

	assert.Equal(t, 3, c.MaxScale(100, 60))
	assert.Len(t, c.Scales(100, 60, 1.3), 5)

	assert.Equal(t, []float64{1}, c.Scales(20, 20, 1.3))
	assert.Empty(t, c.Scales(19, 100, 1.3))
	assert.Empty(t, c.Scales(100, 100, 1.0))
}

func TestCascade_DegenerateImage(t *testing.T) {
	c := acceptAll(24, 24)
	ii, err := BuildIntegral(flatPixels(20, 40, 100))
	require.NoError(t, err)

	dets, err := c.DetectMultiScale(context.Background(), ii, 1.3, 2)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestCascade_AcceptAllCoverage(t *testing.T) {
	c := acceptAll(20, 20)
	ii, err := BuildIntegral(flatPixels(60, 60, 128))
	require.NoError(t, err)

	const step = 2
	dets, err := c.DetectMultiScale(context.Background(), ii, 1.3, step)
	require.NoError(t, err)

	var expected []Detection
	for _, scale := range c.Scales(60, 60, 1.3) {
		size := int(math.Round(20 * scale))
		limit := 60 - size - scanMargin
		n := ceilDiv(limit, step)
		for r := 0; r < n; r++ {
			for col := 0; col < n; col++ {
				expected = append(expected, Detection{X: col * step, Y: r * step, Width: size, Height: size})
			}
		}
	}
	require.Len(t, dets, 19*19+16*16+12*12+7*7+1)
	assert.Equal(t, expected, dets)
}

func TestCascade_DetectionSizeOrdering(t *testing.T) {
	c := acceptAll(24, 12)
	ii, err := BuildIntegral(flatPixels(40, 40, 1))
	require.NoError(t, err)

	dets, err := c.DetectSingleScale(ii, 1.0, 1)
	require.NoError(t, err)
	require.NotEmpty(t, dets)

	// the width field carries the scaled window height
	assert.Equal(t, Detection{X: 0, Y: 0, Width: 24, Height: 12}, dets[0])
	last := dets[len(dets)-1]
	assert.Equal(t, 40-24-scanMargin-1, last.Y)
	assert.Equal(t, 40-12-scanMargin-1, last.X)
	assert.Len(t, dets, (40-24-scanMargin)*(40-12-scanMargin))
}

func TestCascade_RejectAll(t *testing.T) {
	c := acceptAll(20, 20)
	c.Stages[0].Features[0].Table = failOnFlat
	ii, err := BuildIntegral(flatPixels(50, 50, 9))
	require.NoError(t, err)

	dets, err := c.DetectMultiScale(context.Background(), ii, 1.1, 1)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestCascade_MatchesDetectAtLocation(t *testing.T) {
	c, err := LoadFile("testdata/tiny_lbp.xml")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	ii, err := BuildIntegral(randomPixels(rng, 64, 80))
	require.NoError(t, err)

	dets, err := c.DetectSingleScale(ii, 1.3, 1)
	require.NoError(t, err)

	maxRow, maxCol := c.scanBounds(ii, 1.3)
	var expected []Detection
	for row := 0; row < maxRow; row++ {
		for col := 0; col < maxCol; col++ {
			if c.DetectAtLocation(ii, row, col, 1.3) {
				expected = append(expected, Detection{X: col, Y: row, Width: 31, Height: 31})
			}
		}
	}
	assert.Equal(t, expected, dets)

	again, err := c.DetectSingleScale(ii, 1.3, 1)
	require.NoError(t, err)
	assert.Equal(t, dets, again)
}

func TestCascade_InvalidArguments(t *testing.T) {
	c := acceptAll(20, 20)
	ii, err := BuildIntegral(flatPixels(40, 40, 1))
	require.NoError(t, err)

	for _, factor := range []float64{1.0, 0.5, -2, math.NaN(), math.Inf(1)} {
		_, err := c.DetectMultiScale(context.Background(), ii, factor, 2)
		var iae *InvalidArgumentError
		require.True(t, errors.As(err, &iae), "scale factor %v", factor)
		assert.Equal(t, "scaleFactor", iae.Name)
	}

	_, err = c.DetectMultiScale(context.Background(), ii, 1.3, 0)
	var iae *InvalidArgumentError
	require.True(t, errors.As(err, &iae))
	assert.Equal(t, "step", iae.Name)

	_, err = c.DetectSingleScale(ii, 1.0, -1)
	assert.True(t, errors.As(err, &iae))
}

func TestCascade_ContextCancelled(t *testing.T) {
	c := acceptAll(20, 20)
	ii, err := BuildIntegral(flatPixels(60, 60, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.DetectMultiScale(ctx, ii, 1.3, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetection_IoU(t *testing.T) {
	a := Detection{X: 0, Y: 0, Width: 10, Height: 10}
	assert.Equal(t, 1.0, a.IoU(a))
	assert.Equal(t, 0.0, a.IoU(Detection{X: 20, Y: 20, Width: 10, Height: 10}))
	assert.InDelta(t, 50.0/150.0, a.IoU(Detection{X: 5, Y: 0, Width: 10, Height: 10}), 1e-12)
}

func TestCascade_BoundsUseSourceSize(t *testing.T) {
	c := acceptAll(20, 20)

	// (99+1)/20 would allow scale 5; the source size only allows 4
	assert.Equal(t, 4, c.MaxScale(99, 99))
	assert.InDeltaSlice(t,
		[]float64{1, 1.3, 1.69, 2.197, 2.8561, 3.71293},
		c.Scales(99, 99, 1.3), 1e-9)

	ii, err := BuildIntegral(flatPixels(99, 99, 40))
	require.NoError(t, err)

	dets, err := c.DetectSingleScale(ii, 1.0, 1)
	require.NoError(t, err)
	// rows and columns [0, 99-20-2)
	require.Len(t, dets, 77*77)
	assert.Equal(t, Detection{X: 76, Y: 76, Width: 20, Height: 20}, dets[len(dets)-1])
}
