package thpres

import (
	"fmt"
)

// Barrier declares a threshold pressure barrier between two equilibration
// regions, numbered 1-based as in the input deck. Without a Value the
// threshold is taken from the initial condition.
type Barrier struct {
	Region1, Region2 int
	Value            *float64
}

// FaultThreshold overrides the threshold pressure for all cells of a fault
type FaultThreshold struct {
	FaultName string
	Value     float64
}

// Fault is a named set of cell groups, cells given as natural indices
type Fault struct {
	Name  string
	Faces [][]int
}

type Config struct {
	Enabled           bool
	Restart           bool
	EnableExperiments bool
	// StrictFaults rejects fault thresholds naming a fault absent from Faults
	StrictFaults bool

	// EquilRegions holds the 1-based region tag per natural cell index
	EquilRegions    []int
	NumEquilRegions int
	CartesianSize   int

	Barriers        []Barrier
	FaultThresholds []FaultThreshold
	Faults          []Fault
}

func (cfg *Config) Validate() (err error) {
	for _, b := range cfg.Barriers {
		if b.Region1 < 1 || b.Region2 < 1 {
			return fmt.Errorf("%w: barrier (%d,%d), regions are numbered from 1",
				ErrInvalidRegion, b.Region1, b.Region2)
		}
		if cfg.NumEquilRegions > 0 && (b.Region1 > cfg.NumEquilRegions || b.Region2 > cfg.NumEquilRegions) {
			return fmt.Errorf("%w: barrier (%d,%d) with %d equilibration regions",
				ErrInvalidRegion, b.Region1, b.Region2, cfg.NumEquilRegions)
		}
		if b.Value != nil && *b.Value < 0 {
			return fmt.Errorf("negative threshold pressure %g for barrier (%d,%d)",
				*b.Value, b.Region1, b.Region2)
		}
	}
	for _, ft := range cfg.FaultThresholds {
		if ft.Value < 0 {
			return fmt.Errorf("negative threshold pressure %g for fault %q", ft.Value, ft.FaultName)
		}
	}
	return
}

type barrierEntry struct {
	hasValue bool
	value    float64
}

// barrierSet answers hasRegionBarrier / hasThresholdPressure for 0-based
// region pairs. Declarations are undirected; a later declaration of the same
// pair replaces an earlier one.
type barrierSet map[[2]int]barrierEntry

func newBarrierSet(barriers []Barrier) barrierSet {
	bs := make(barrierSet, len(barriers))
	for _, b := range barriers {
		e := barrierEntry{}
		if b.Value != nil {
			e = barrierEntry{hasValue: true, value: *b.Value}
		}
		r1, r2 := b.Region1-1, b.Region2-1
		bs[[2]int{r1, r2}] = e
		bs[[2]int{r2, r1}] = e
	}
	return bs
}

func (bs barrierSet) lookup(r1, r2 int) (e barrierEntry, declared bool) {
	e, declared = bs[[2]int{r1, r2}]
	return
}
