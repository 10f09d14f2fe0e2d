package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/notargets/blackoil/grid"
	"github.com/notargets/blackoil/thpres"
	"github.com/notargets/blackoil/types"
)

type BarrierRecord struct {
	Regions [2]int   `json:"Regions"`         // 1-based equilibration regions
	Value   *float64 `json:"Value,omitempty"` // Pa, defaulted from the initial condition when absent
}

type FaultRecord struct {
	Name  string   `json:"Name"`
	Boxes [][6]int `json:"Boxes"` // I1 I2 J1 J2 K1 K2, 1-based inclusive
}

type FaultThresholdRecord struct {
	Fault string  `json:"Fault"`
	Value float64 `json:"Value"` // Pa
}

type EquilBox struct {
	Region int    `json:"Region"`
	Box    [6]int `json:"Box"`
}

type EquilParams struct {
	DatumDepth    float64            `json:"DatumDepth"`    // m
	DatumPressure float64            `json:"DatumPressure"` // Pa
	Saturations   map[string]float64 `json:"Saturations"`   // keyed by phase name
}

type FluidParams struct {
	Densities     map[string]float64 `json:"Densities"`
	Viscosities   map[string]float64 `json:"Viscosities"`
	CoreyExponent float64            `json:"CoreyExponent"`
}

// Parameters obtained from the YAML case file
type ThresholdParameters struct {
	Title             string                 `json:"Title"`
	Dims              [3]int                 `json:"Dims"`
	Spacing           [3]float64             `json:"Spacing"`
	TopDepth          float64                `json:"TopDepth"`
	Permeability      []float64              `json:"Permeability"` // mD per natural cell, uniform 100 mD when absent
	EQLNUM            []int                  `json:"EQLNUM"`
	EquilBoxes        []EquilBox             `json:"EquilBoxes"` // used when EQLNUM is absent
	NumEquilRegions   int                    `json:"NumEquilRegions"`
	Equil             []EquilParams          `json:"Equil"`
	Fluid             *FluidParams           `json:"Fluid"`
	ThresholdPressure bool                   `json:"ThresholdPressure"`
	Restart           bool                   `json:"Restart"`
	EnableExperiments bool                   `json:"EnableExperiments"`
	StrictFaults      bool                   `json:"StrictFaults"`
	Barriers          []BarrierRecord        `json:"THPRES"`
	Faults            []FaultRecord          `json:"FAULTS"`
	FaultThresholds   []FaultThresholdRecord `json:"THPRESFT"`
	ParallelDegree    int                    `json:"ParallelDegree"`
}

func (ip *ThresholdParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *ThresholdParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%v\t\t= Dims\n", ip.Dims)
	fmt.Printf("%v\t= Spacing\n", ip.Spacing)
	fmt.Printf("[%d]\t\t\t= Equilibration Regions\n", ip.NumEquilRegions)
	fmt.Printf("[%t]\t\t\t= Threshold Pressure\n", ip.ThresholdPressure)
	fmt.Printf("[%t]\t\t\t= Restart\n", ip.Restart)
	fmt.Printf("[%t]\t\t\t= Experiments\n", ip.EnableExperiments)
	fmt.Printf("[%d]\t\t\t\t= Parallel Degree\n", ip.ParallelDegree)
	for _, b := range ip.Barriers {
		if b.Value != nil {
			fmt.Printf("THPRES %d %d %g\n", b.Regions[0], b.Regions[1], *b.Value)
		} else {
			fmt.Printf("THPRES %d %d (default)\n", b.Regions[0], b.Regions[1])
		}
	}
	names := make([]string, len(ip.FaultThresholds))
	values := make(map[string]float64, len(ip.FaultThresholds))
	for i, ft := range ip.FaultThresholds {
		names[i] = ft.Fault
		values[ft.Fault] = ft.Value
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("THPRESFT[%s] = %g\n", name, values[name])
	}
}

func (ip *ThresholdParameters) BuildGrid() (g *grid.Cartesian, err error) {
	if g, err = grid.NewCartesian(ip.Dims, ip.Spacing, ip.TopDepth); err != nil {
		return
	}
	if len(ip.Permeability) != 0 {
		if err = g.SetPermeability(ip.Permeability); err != nil {
			return nil, err
		}
	}
	return
}

// RegionTags returns EQLNUM, assembled from EquilBoxes when not given
// directly. Cells not covered by any box are left at 0 and rejected later.
func (ip *ThresholdParameters) RegionTags(g *grid.Cartesian) (eqlnum []int, err error) {
	if len(ip.EQLNUM) != 0 {
		if len(ip.EQLNUM) != g.Size() {
			return nil, fmt.Errorf("EQLNUM has %d values, grid has %d cells", len(ip.EQLNUM), g.Size())
		}
		return ip.EQLNUM, nil
	}
	eqlnum = make([]int, g.Size())
	for _, eb := range ip.EquilBoxes {
		var cells []int
		if cells, err = g.BoxCells(eb.Box); err != nil {
			return nil, fmt.Errorf("EquilBoxes region %d: %w", eb.Region, err)
		}
		for _, c := range cells {
			eqlnum[c] = eb.Region
		}
	}
	return
}

func (ip *ThresholdParameters) EquilRecords() (recs []grid.EquilRecord, err error) {
	recs = make([]grid.EquilRecord, len(ip.Equil))
	for r, eq := range ip.Equil {
		recs[r].DatumDepth = eq.DatumDepth
		recs[r].DatumPressure = eq.DatumPressure
		for name, s := range eq.Saturations {
			var p types.Phase
			if p, err = types.NewPhase(name); err != nil {
				return nil, fmt.Errorf("Equil record %d: %w", r+1, err)
			}
			recs[r].Saturations[p] = s
		}
	}
	return
}

func (ip *ThresholdParameters) FluidProps() (fl grid.Fluid, err error) {
	fl = grid.DefaultFluid()
	if ip.Fluid == nil {
		return
	}
	set := func(dst *[types.NumPhases]float64, src map[string]float64) error {
		for name, v := range src {
			p, err := types.NewPhase(name)
			if err != nil {
				return err
			}
			dst[p] = v
		}
		return nil
	}
	if err = set(&fl.Densities, ip.Fluid.Densities); err != nil {
		return
	}
	if err = set(&fl.Viscosities, ip.Fluid.Viscosities); err != nil {
		return
	}
	if ip.Fluid.CoreyExponent != 0 {
		fl.CoreyExponent = ip.Fluid.CoreyExponent
	}
	return
}

// ToConfig converts the case into the threshold pressure configuration,
// resolving fault boxes into natural cell indices.
func (ip *ThresholdParameters) ToConfig(g *grid.Cartesian, eqlnum []int) (cfg thpres.Config, err error) {
	cfg = thpres.Config{
		Enabled:           ip.ThresholdPressure,
		Restart:           ip.Restart,
		EnableExperiments: ip.EnableExperiments,
		StrictFaults:      ip.StrictFaults,
		EquilRegions:      eqlnum,
		NumEquilRegions:   ip.NumEquilRegions,
		CartesianSize:     g.Size(),
	}
	for _, b := range ip.Barriers {
		cfg.Barriers = append(cfg.Barriers, thpres.Barrier{
			Region1: b.Regions[0],
			Region2: b.Regions[1],
			Value:   b.Value,
		})
	}
	for _, fr := range ip.Faults {
		fault := thpres.Fault{Name: fr.Name}
		for _, box := range fr.Boxes {
			var cells []int
			if cells, err = g.BoxCells(box); err != nil {
				return cfg, fmt.Errorf("fault %q: %w", fr.Name, err)
			}
			fault.Faces = append(fault.Faces, cells)
		}
		cfg.Faults = append(cfg.Faults, fault)
	}
	for _, ft := range ip.FaultThresholds {
		cfg.FaultThresholds = append(cfg.FaultThresholds, thpres.FaultThreshold{
			FaultName: ft.Fault,
			Value:     ft.Value,
		})
	}
	err = cfg.Validate()
	return
}
