package thpres

import (
	"fmt"
	"log"
)

const NoFault = -1

// FaultRegistry records the fault threshold overrides. Each cell carries the
// index of the last named fault that marked it, which decides whether two
// cells sit inside the same fault, and the largest override of all faults it
// belongs to, which is the value used across a fault boundary.
type FaultRegistry struct {
	names     []string
	values    []float64 // per fault, -1 when no threshold was given
	cellFault []int     // per natural cell index
	cellValue []float64 // per natural cell index

	numOverrides int
}

func NewFaultRegistry(faults []Fault, cartesianSize int) *FaultRegistry {
	if cartesianSize == 0 {
		for _, f := range faults {
			for _, face := range f.Faces {
				for _, c := range face {
					if c+1 > cartesianSize {
						cartesianSize = c + 1
					}
				}
			}
		}
	}
	fr := &FaultRegistry{
		names:     make([]string, len(faults)),
		values:    make([]float64, len(faults)),
		cellFault: make([]int, cartesianSize),
		cellValue: make([]float64, cartesianSize),
	}
	for i, f := range faults {
		fr.names[i] = f.Name
		fr.values[i] = -1
	}
	for i := range fr.cellFault {
		fr.cellFault[i] = NoFault
	}
	return fr
}

// Apply internalizes the fault threshold records. Records naming a fault that
// does not exist are skipped unless strict is set.
func (fr *FaultRegistry) Apply(faults []Fault, records []FaultThreshold, strict bool) (err error) {
	for _, rec := range records {
		found := false
		for faultIdx, fault := range faults {
			if fault.Name != rec.FaultName {
				continue
			}
			found = true
			fr.values[faultIdx] = rec.Value
			for _, face := range fault.Faces {
				for _, c := range face {
					if c < 0 || c >= len(fr.cellFault) {
						return fmt.Errorf("fault %q references cell %d outside the grid of %d cells",
							fault.Name, c, len(fr.cellFault))
					}
					fr.cellFault[c] = faultIdx
					if rec.Value > fr.cellValue[c] {
						fr.cellValue[c] = rec.Value
					}
				}
			}
		}
		if !found {
			if strict {
				return fmt.Errorf("%w: %q", ErrUnknownFault, rec.FaultName)
			}
			log.Printf("threshold pressure: ignoring fault threshold for unknown fault %q", rec.FaultName)
		}
	}
	fr.numOverrides = 0
	for _, v := range fr.values {
		if v >= 0 {
			fr.numOverrides++
		}
	}
	return
}

// Empty is true when no fault carries a threshold override
func (fr *FaultRegistry) Empty() bool {
	return fr == nil || fr.numOverrides == 0
}

func (fr *FaultRegistry) FaultOf(natural int) int {
	if natural < 0 || natural >= len(fr.cellFault) {
		return NoFault
	}
	return fr.cellFault[natural]
}

// CellValue is the largest fault override of all faults containing the cell
func (fr *FaultRegistry) CellValue(natural int) float64 {
	if natural < 0 || natural >= len(fr.cellValue) {
		return 0
	}
	return fr.cellValue[natural]
}

// Value returns the override of a fault, ok is false when none was given
func (fr *FaultRegistry) Value(faultIdx int) (v float64, ok bool) {
	if faultIdx < 0 || faultIdx >= len(fr.values) || fr.values[faultIdx] < 0 {
		return 0, false
	}
	return fr.values[faultIdx], true
}

func (fr *FaultRegistry) Name(faultIdx int) string { return fr.names[faultIdx] }

func (fr *FaultRegistry) NumOverrides() int {
	if fr == nil {
		return 0
	}
	return fr.numOverrides
}
