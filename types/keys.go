package types

import (
	"fmt"
	"math"
)

/*
FaceKey stores the two cells adjacent to a face as one comparable number. A face
between cells [4] and [0] is always stored as [0,4], ascending, so the key is
the same from either side.
*/
type FaceKey uint64

func NewFaceKey(cells [2]int) (packed FaceKey) {
	var (
		limit = math.MaxUint32
	)
	for _, c := range cells {
		if c < 0 || c > limit {
			panic(fmt.Errorf("unable to pack two cell indices into a uint64, have %d and %d as inputs",
				cells[0], cells[1]))
		}
	}
	var i1, i2 int
	if cells[0] <= cells[1] {
		i1, i2 = cells[0], cells[1]
	} else {
		i1, i2 = cells[1], cells[0]
	}
	packed = FaceKey(i1 + i2<<32)
	return
}

func (fk FaceKey) GetCells() (cells [2]int) {
	hi := fk >> 32
	cells[1] = int(hi)
	cells[0] = int(fk - hi<<32)
	return
}

// RegionPair is an unordered pair of 0-based equilibration regions
type RegionPair [2]uint8

func NewRegionPair(r1, r2 int) RegionPair {
	if r1 < 0 || r2 < 0 || r1 > math.MaxUint8 || r2 > math.MaxUint8 {
		panic(fmt.Errorf("region pair (%d,%d) does not fit in a byte", r1, r2))
	}
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	return RegionPair{uint8(r1), uint8(r2)}
}

func (rp RegionPair) String() string {
	// Reported 1-based, the way region numbers appear in input decks
	return fmt.Sprintf("(%d,%d)", int(rp[0])+1, int(rp[1])+1)
}
