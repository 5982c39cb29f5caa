package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float32
		err  error
	}{
		{"empty", nil, ErrEmpty},
		{"even", [][]float32{{1, 0}, {0, 1}}, ErrEvenSize},
		{"wide", [][]float32{{1, 0, 0}}, ErrNotSquare},
		{"ragged", [][]float32{{0, 0, 0}, {0, 1}, {0, 0, 0}}, ErrNotSquare},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := New(tt.rows)
			require.ErrorIs(t, err, tt.err)
			assert.Nil(t, k)
		})
	}
}

func TestNewCopiesRows(t *testing.T) {
	rows := [][]float32{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}}
	k, err := New(rows)
	require.NoError(t, err)

	rows[1][1] = 42
	assert.Equal(t, float32(1), k.At(1, 1))
	assert.Equal(t, 3, k.Size())
	assert.Equal(t, 1, k.Center())
}

func TestAtIsColumnRow(t *testing.T) {
	k := Must([][]float32{
		{0, 0, 0},
		{0, 0, 1},
		{0, 0, 0},
	})
	assert.Equal(t, float32(1), k.At(2, 1))
	assert.Equal(t, float32(0), k.At(1, 2))
	assert.Panics(t, func() { k.At(3, 0) })
}

func TestScale(t *testing.T) {
	k := Must([][]float32{{2}})
	scaled := k.Scale(0.5)

	assert.Equal(t, float32(1), scaled.At(0, 0))
	assert.Equal(t, float32(2), k.At(0, 0), "Scale must not modify the receiver")
}

func TestPadKeepsCenter(t *testing.T) {
	box, err := BoxBlur(3)
	require.NoError(t, err)

	padded := box.Pad(2)
	require.Equal(t, 7, padded.Size())
	assert.InDelta(t, box.Sum(), padded.Sum(), 1e-6)
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			inside := x >= 2 && x <= 4 && y >= 2 && y <= 4
			if inside {
				assert.Equal(t, box.At(x-2, y-2), padded.At(x, y))
			} else {
				assert.Zero(t, padded.At(x, y))
			}
		}
	}
}

func TestEqual(t *testing.T) {
	box, err := BoxBlur(3)
	require.NoError(t, err)
	id, err := Identity(3)
	require.NoError(t, err)

	assert.True(t, box.Equal(box.Scale(1)))
	assert.False(t, box.Equal(box.Pad(1)))
	assert.False(t, box.Equal(id))
	assert.False(t, box.Equal(nil))

	var none *Kernel
	assert.False(t, none.Equal(box))
	assert.True(t, none.Equal(nil))
}

func TestPresets(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			k, err := ByName(name, 5)
			require.NoError(t, err)
			assert.Equal(t, 1, k.Size()%2)
		})
	}

	_, err := ByName("nope", 3)
	assert.Error(t, err)
	_, err = ByName("box", 4)
	assert.ErrorIs(t, err, ErrEvenSize)
}

func TestBlurPresetsSumToOne(t *testing.T) {
	gauss, err := Gaussian(9)
	require.NoError(t, err)
	box, err := BoxBlur(5)
	require.NoError(t, err)
	motion, err := MotionBlur(7)
	require.NoError(t, err)

	for _, k := range []*Kernel{gauss, box, motion, Gaussian3x3(), Gaussian5x5()} {
		assert.InDelta(t, 1.0, k.Sum(), 1e-5)
	}
}

func TestIdentity(t *testing.T) {
	k, err := Identity(5)
	require.NoError(t, err)
	assert.Equal(t, float32(1), k.At(2, 2))
	assert.Equal(t, float32(1), k.Sum())
}
