package thpres

import (
	"fmt"
	"math"
)

const MaxEquilRegions = math.MaxUint8

// BuildRegionMap converts the 1-based region tags of the input (indexed by
// natural cell index) into 0-based region ids for each local cell. When
// numRegions is zero the count is taken from the largest tag present.
func BuildRegionMap(tags []int, numRegions int, cells CellMapper) (regions []uint8, nRegions int, err error) {
	nRegions = numRegions
	if nRegions == 0 {
		for _, tag := range tags {
			if tag > nRegions {
				nRegions = tag
			}
		}
	}
	if nRegions > MaxEquilRegions {
		err = fmt.Errorf("%w, have %d", ErrTooManyRegions, nRegions)
		return
	}
	if nRegions < 1 {
		err = fmt.Errorf("%w: no equilibration regions defined", ErrInvalidRegion)
		return
	}
	numCells := cells.NumCells()
	regions = make([]uint8, numCells)
	for elemIdx := 0; elemIdx < numCells; elemIdx++ {
		natural := cells.NaturalIndex(elemIdx)
		if natural < 0 || natural >= len(tags) {
			err = fmt.Errorf("%w: no region data for cell %d (natural index %d, %d tags)",
				ErrInvalidRegion, elemIdx, natural, len(tags))
			return nil, 0, err
		}
		tag := tags[natural]
		if tag < 1 || tag > nRegions {
			err = fmt.Errorf("%w: cell %d has region %d, expected 1..%d",
				ErrInvalidRegion, natural, tag, nRegions)
			return nil, 0, err
		}
		regions[elemIdx] = uint8(tag - 1)
	}
	return
}
