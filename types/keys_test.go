package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaceKey(t *testing.T) {
	{ // Test packed int for face labeling
		fk := NewFaceKey([2]int{1, 0})
		assert.Equal(t, FaceKey(1<<32), fk)
		assert.Equal(t, [2]int{0, 1}, fk.GetCells())

		fk = NewFaceKey([2]int{0, 1})
		assert.Equal(t, FaceKey(1<<32), fk)

		fk = NewFaceKey([2]int{100, 100001})
		assert.Equal(t, FaceKey(100001*(1<<32)+100), fk)
		assert.Equal(t, [2]int{100, 100001}, fk.GetCells())

		fk = NewFaceKey([2]int{1, 1<<32 - 1})
		assert.Equal(t, [2]int{1, 1<<32 - 1}, fk.GetCells())
	}
	{ // Out of range cells cannot be packed
		assert.Panics(t, func() { NewFaceKey([2]int{-1, 2}) })
		assert.Panics(t, func() { NewFaceKey([2]int{0, 1 << 33}) })
	}
}

func TestRegionPair(t *testing.T) {
	assert.Equal(t, NewRegionPair(3, 1), NewRegionPair(1, 3))
	assert.Equal(t, "(2,4)", NewRegionPair(3, 1).String())
	assert.Panics(t, func() { NewRegionPair(0, 256) })
}

func TestPhase(t *testing.T) {
	p, err := NewPhase(" Oil ")
	assert.NoError(t, err)
	assert.Equal(t, Oil, p)
	assert.Equal(t, "Gas", Gas.String())
	_, err = NewPhase("polymer")
	assert.Error(t, err)
}
