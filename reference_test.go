package lbpcascade

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pigoCascade builds a single tree PICO cascade of depth one whose binary test
// always compares a pixel with itself, so every window scores pred.
func pigoCascade(pred float32) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 8))
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // tree depth
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // tree count
	buf.Write(make([]byte, 4))                        // node codes
	binary.Write(&buf, binary.LittleEndian, math.Float32bits(-1))
	binary.Write(&buf, binary.LittleEndian, math.Float32bits(pred))
	binary.Write(&buf, binary.LittleEndian, math.Float32bits(0)) // threshold
	return buf.Bytes()
}

func TestReference_Pigo(t *testing.T) {
	ref, err := NewPigoReference(pigoCascade(10))
	require.NoError(t, err)
	assert.Equal(t, ReferencePigo, ref.String())

	gray := grayImage(64, 64, func(x, y int) uint8 { return uint8(x + y) })
	dets, err := ref.Detect(context.Background(), gray)
	require.NoError(t, err)
	require.NotEmpty(t, dets)

	for _, d := range dets {
		assert.Equal(t, d.Width, d.Height)
		assert.GreaterOrEqual(t, d.Width, ref.MinSize)
	}
}

func TestReference_PigoQualityFilter(t *testing.T) {
	ref, err := NewPigoReference(pigoCascade(10))
	require.NoError(t, err)
	ref.MinQuality = float32(math.Inf(1))

	gray := grayImage(64, 64, func(x, y int) uint8 { return 128 })
	dets, err := ref.Detect(context.Background(), gray)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestReference_PigoContextCancelled(t *testing.T) {
	ref, err := NewPigoReference(pigoCascade(10))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ref.Detect(ctx, grayImage(32, 32, func(x, y int) uint8 { return 0 }))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReference_PigoMissingFile(t *testing.T) {
	_, err := LoadPigoReference("testdata/missing_facefinder")
	assert.Error(t, err)
}
