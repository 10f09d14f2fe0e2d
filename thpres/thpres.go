// Package thpres computes the threshold pressures between equilibration
// regions and across faults.
//
// If the difference of the pressure potential between two cells is below the
// threshold pressure, the difference is treated as zero; if it is larger, it
// is reduced by the threshold pressure. The table is built once at
// initialization, either from the initial condition plus explicit overrides
// or from restart data, and is read-only afterwards.
package thpres

import (
	"fmt"
	"log"
	"math"
)

// NegligibleTransmissibility is the transmissibility*area below which a face
// is ignored when deriving defaults.
const NegligibleTransmissibility = 1e-18

type ThresholdPressure struct {
	cfg   Config
	faces FaceQuantityProvider
	cells CellMapper
	comm  Collective

	enabled       bool
	initialized   bool
	numRegions    int
	elemRegion    []uint8
	thpres        *Table
	thpresDefault *Table
	faults        *FaultRegistry
}

// NewThresholdPressure ties the configuration to the local partition. A nil
// comm means a serial run.
func NewThresholdPressure(cfg Config, faces FaceQuantityProvider, cells CellMapper, comm Collective) *ThresholdPressure {
	if comm == nil {
		comm = SerialComm{}
	}
	return &ThresholdPressure{
		cfg:   cfg,
		faces: faces,
		cells: cells,
		comm:  comm,
	}
}

// FinishInit computes the threshold pressures. Outside restart mode it
// performs exactly two collective reductions, on the default table and then
// on the final table, so every rank must call it. Disabled and restart runs
// perform none.
func (tp *ThresholdPressure) FinishInit() (err error) {
	tp.enabled = tp.cfg.Enabled
	if !tp.enabled {
		tp.initialized = true
		return
	}
	if err = tp.cfg.Validate(); err != nil {
		return
	}
	if tp.elemRegion, tp.numRegions, err = BuildRegionMap(tp.cfg.EquilRegions, tp.cfg.NumEquilRegions, tp.cells); err != nil {
		return
	}
	tp.thpres = NewTable(tp.numRegions)

	if tp.cfg.EnableExperiments && len(tp.cfg.FaultThresholds) > 0 {
		tp.faults = NewFaultRegistry(tp.cfg.Faults, tp.cfg.CartesianSize)
		if err = tp.faults.Apply(tp.cfg.Faults, tp.cfg.FaultThresholds, tp.cfg.StrictFaults); err != nil {
			return
		}
	}

	// A restart run is active but its values must come from the restart
	// vector, the initial condition they were derived from is gone.
	if tp.cfg.Restart {
		return
	}

	tp.thpresDefault = NewTable(tp.numRegions)
	tp.computeDefaultThresholdPressures()
	tp.applyExplicitThresholdPressures()
	tp.initialized = true
	return
}

// computeDefaultThresholdPressures takes, for every pair of neighboring
// regions, the maximum phase pressure potential difference over their common
// faces in the initial condition.
func (tp *ThresholdPressure) computeDefaultThresholdPressures() {
	var (
		fq        = tp.faces
		numPhases = fq.NumPhases()
	)
	for faceIdx := 0; faceIdx < fq.NumInteriorFaces(); faceIdx++ {
		inside, outside := fq.InteriorFace(faceIdx)
		rIn, rOut := int(tp.elemRegion[inside]), int(tp.elemRegion[outside])
		if rIn == rOut {
			continue
		}
		// connections with negligible flow
		if math.Abs(fq.FaceArea(faceIdx)*fq.Transmissibility(faceIdx)) < NegligibleTransmissibility {
			continue
		}
		var pth float64
		for phaseIdx := 0; phaseIdx < numPhases; phaseIdx++ {
			up := fq.UpstreamIndex(faceIdx, phaseIdx)
			if fq.Mobility(up, phaseIdx) > 0 {
				pth = math.Max(pth, math.Abs(fq.PressureDifference(faceIdx, phaseIdx)))
			}
		}
		tp.thpresDefault.MaxPair(rIn, rOut, pth)
	}
	tp.comm.AllReduceMax(tp.thpresDefault.data)
}

// applyExplicitThresholdPressures sets the pairs with a declared barrier to
// the explicit value, or to the default when no value was given.
func (tp *ThresholdPressure) applyExplicitThresholdPressures() {
	var (
		fq       = tp.faces
		barriers = newBarrierSet(tp.cfg.Barriers)
	)
	for faceIdx := 0; faceIdx < fq.NumInteriorFaces(); faceIdx++ {
		inside, outside := fq.InteriorFace(faceIdx)
		rIn, rOut := int(tp.elemRegion[inside]), int(tp.elemRegion[outside])
		if rIn == rOut {
			continue
		}
		b, declared := barriers.lookup(rIn, rOut)
		if !declared {
			continue
		}
		pth := tp.thpresDefault.At(rIn, rOut)
		if b.hasValue {
			pth = b.value
		}
		tp.thpres.SetPair(rIn, rOut, pth)
	}
	// Ranks without a face between two regions have not set that pair
	tp.comm.AllReduceMax(tp.thpres.data)
}

// SetFromRestart injects the final threshold vector of a restart run,
// row major over 0-based region pairs.
func (tp *ThresholdPressure) SetFromRestart(values []float64) (err error) {
	if !tp.cfg.Enabled {
		return
	}
	if tp.thpres == nil {
		return fmt.Errorf("%w: FinishInit must run before restart injection", ErrNotInitialized)
	}
	if err = tp.thpres.load(values); err != nil {
		return
	}
	tp.initialized = true
	return
}

// Threshold returns the threshold pressure [Pa] for the face between two
// local cells.
func (tp *ThresholdPressure) Threshold(elem1Idx, elem2Idx int) float64 {
	if !tp.enabled {
		return 0
	}
	if tp.cfg.EnableExperiments && !tp.faults.Empty() {
		var (
			cart1  = tp.cells.NaturalIndex(elem1Idx)
			cart2  = tp.cells.NaturalIndex(elem2Idx)
			fault1 = tp.faults.FaultOf(cart1)
			fault2 = tp.faults.FaultOf(cart2)
		)
		if fault1 != NoFault && fault1 == fault2 {
			// no threshold inside a fault, even across equilibration regions
			return 0
		}
		if fault1 != fault2 {
			return math.Max(tp.faults.CellValue(cart1), tp.faults.CellValue(cart2))
		}
	}
	r1, r2 := tp.elemRegion[elem1Idx], tp.elemRegion[elem2Idx]
	if r1 == r2 {
		return 0
	}
	return tp.thpres.At(int(r1), int(r2))
}

func (tp *ThresholdPressure) Enabled() bool { return tp.enabled }

func (tp *ThresholdPressure) Initialized() bool { return tp.initialized }

func (tp *ThresholdPressure) NumRegions() int { return tp.numRegions }

// Data returns the final table as the flat vector written to restart files
func (tp *ThresholdPressure) Data() []float64 {
	if tp.thpres == nil {
		return nil
	}
	return tp.thpres.Data()
}

// Table is the final table; callers must not modify it
func (tp *ThresholdPressure) Table() *Table { return tp.thpres }

// DefaultTable is the table derived from the initial condition, nil on
// restart or when disabled.
func (tp *ThresholdPressure) DefaultTable() *Table { return tp.thpresDefault }

func (tp *ThresholdPressure) Faults() *FaultRegistry { return tp.faults }

func (tp *ThresholdPressure) Summary() string {
	if !tp.enabled {
		return "threshold pressure disabled"
	}
	s := fmt.Sprintf("threshold pressure: %d equilibration regions, %d region pairs with a barrier",
		tp.numRegions, tp.thpres.NonZeroPairs())
	if !tp.faults.Empty() {
		s += fmt.Sprintf(", %d fault overrides", tp.faults.NumOverrides())
	}
	return s
}

// LogSummary writes the summary on the IO rank
func (tp *ThresholdPressure) LogSummary(rank int) {
	if rank != 0 {
		return
	}
	log.Print(tp.Summary())
}
