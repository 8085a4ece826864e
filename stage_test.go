package lbpcascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// On a flat image every feature produces the pattern 0xFF.
var failOnFlat = LookupTable{7: 1 << 31}

var stageRects = []Rect{{Width: 2, Height: 2}}

func TestStage_Accepts(t *testing.T) {
	ii, err := BuildIntegral(flatPixels(20, 20, 50))
	require.NoError(t, err)

	s := Stage{
		Threshold: 0.5,
		Features: []Feature{
			{PassWeight: 0.4, FailWeight: -1},
			{PassWeight: 0.4, FailWeight: -1},
		},
	}
	// the first partial sum 0.4 is already below the threshold
	assert.False(t, s.Evaluate(ii, stageRects, 0, 0, 1.0))

	s.Threshold = 0.3
	assert.True(t, s.Evaluate(ii, stageRects, 0, 0, 1.0))
}

func TestStage_RejectsOnFirstNegativePartialSum(t *testing.T) {
	ii, err := BuildIntegral(flatPixels(20, 20, 50))
	require.NoError(t, err)

	s := Stage{
		Threshold: 0,
		Features: []Feature{
			{PassWeight: 1, FailWeight: -1, Table: failOnFlat},
			{PassWeight: 5, FailWeight: -1},
		},
	}
	// the full sum would be 4, but the window is rejected after the first feature
	assert.False(t, s.Evaluate(ii, stageRects, 0, 0, 1.0))

	s.Features[0], s.Features[1] = s.Features[1], s.Features[0]
	assert.True(t, s.Evaluate(ii, stageRects, 0, 0, 1.0))
}

func TestStage_Empty(t *testing.T) {
	ii, err := BuildIntegral(flatPixels(4, 4, 1))
	require.NoError(t, err)

	// a stage without features has nothing to reject the window with
	assert.True(t, (&Stage{Threshold: 0}).Evaluate(ii, stageRects, 0, 0, 1.0))
	assert.True(t, (&Stage{Threshold: 0.1}).Evaluate(ii, stageRects, 0, 0, 1.0))
}
