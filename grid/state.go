package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/blackoil/types"
)

type Fluid struct {
	Densities     [types.NumPhases]float64 // kg/m^3
	Viscosities   [types.NumPhases]float64 // Pa s
	CoreyExponent float64
}

func DefaultFluid() Fluid {
	return Fluid{
		Densities:     [types.NumPhases]float64{1000, 800, 100},
		Viscosities:   [types.NumPhases]float64{0.5e-3, 2e-3, 2e-5},
		CoreyExponent: 2,
	}
}

// EquilRecord is the initial condition of one equilibration region
type EquilRecord struct {
	DatumDepth    float64 // m
	DatumPressure float64 // Pa
	Saturations   [types.NumPhases]float64
}

// InitialState holds per phase values indexed by natural cell
type InitialState struct {
	Pressure   [types.NumPhases][]float64
	Saturation [types.NumPhases][]float64
}

// Equilibrate sets every region hydrostatic about its own datum. Regions with
// different datum pressures are therefore out of equilibrium with each other,
// which is what threshold pressures hold in place.
func Equilibrate(g *Cartesian, eqlnum []int, equil []EquilRecord, fluid Fluid) (st *InitialState, err error) {
	var (
		N    = g.Size()
		dz   = make([]float64, N)
		base = make([]float64, N)
	)
	if len(eqlnum) != N {
		return nil, fmt.Errorf("have %d region tags for %d cells", len(eqlnum), N)
	}
	for r, rec := range equil {
		if s := floats.Sum(rec.Saturations[:]); math.Abs(s-1) > 1e-9 {
			return nil, fmt.Errorf("equilibration region %d saturations sum to %g", r+1, s)
		}
	}
	st = &InitialState{}
	for p := 0; p < types.NumPhases; p++ {
		st.Pressure[p] = make([]float64, N)
		st.Saturation[p] = make([]float64, N)
	}
	for n, tag := range eqlnum {
		if tag < 1 || tag > len(equil) {
			return nil, fmt.Errorf("cell %d has region %d without an equilibration record", n, tag)
		}
		rec := equil[tag-1]
		dz[n] = g.Depth(n) - rec.DatumDepth
		base[n] = rec.DatumPressure
		for p := 0; p < types.NumPhases; p++ {
			st.Saturation[p][n] = rec.Saturations[p]
		}
	}
	for p := 0; p < types.NumPhases; p++ {
		floats.AddScaledTo(st.Pressure[p], base, fluid.Densities[p]*Gravity, dz)
	}
	return st, nil
}

// FaceQuantities exposes the initial state of one partition through the
// interface the threshold pressure calculation consumes.
type FaceQuantities struct {
	*Partition
	mobility [types.NumPhases][]float64 // per local cell
	dPhi     [][types.NumPhases]float64 // per face
	up       [][types.NumPhases]int     // per face
}

func NewFaceQuantities(g *Cartesian, part *Partition, st *InitialState, fluid Fluid) (fq *FaceQuantities) {
	var (
		nc = part.NumCells()
		nf = part.NumFaces()
	)
	fq = &FaceQuantities{
		Partition: part,
		dPhi:      make([][types.NumPhases]float64, nf),
		up:        make([][types.NumPhases]int, nf),
	}
	for p := 0; p < types.NumPhases; p++ {
		fq.mobility[p] = make([]float64, nc)
		for l := 0; l < nc; l++ {
			fq.mobility[p][l] = fluid.mobility(p, st.Saturation[p][part.NaturalIndex(l)])
		}
	}
	for f := 0; f < nf; f++ {
		in, out := part.Face(f)
		nIn, nOut := part.NaturalIndex(in), part.NaturalIndex(out)
		for p := 0; p < types.NumPhases; p++ {
			// potential difference, positive when flowing from inside to outside
			dPhi := (st.Pressure[p][nIn] - st.Pressure[p][nOut]) -
				fluid.Densities[p]*Gravity*(g.Depth(nIn)-g.Depth(nOut))
			fq.dPhi[f][p] = dPhi
			if dPhi >= 0 {
				fq.up[f][p] = in
			} else {
				fq.up[f][p] = out
			}
		}
	}
	return
}

func (fl Fluid) mobility(phase int, s float64) float64 {
	if s <= 0 || fl.Viscosities[phase] <= 0 {
		return 0
	}
	n := fl.CoreyExponent
	if n == 0 {
		n = 2
	}
	return math.Pow(s, n) / fl.Viscosities[phase]
}

func (fq *FaceQuantities) NumPhases() int { return types.NumPhases }

func (fq *FaceQuantities) NumInteriorFaces() int { return fq.NumFaces() }

func (fq *FaceQuantities) InteriorFace(faceIdx int) (inside, outside int) {
	return fq.Face(faceIdx)
}

func (fq *FaceQuantities) FaceArea(faceIdx int) float64 { return fq.area[faceIdx] }

func (fq *FaceQuantities) Transmissibility(faceIdx int) float64 { return fq.trans[faceIdx] }

func (fq *FaceQuantities) UpstreamIndex(faceIdx, phaseIdx int) int { return fq.up[faceIdx][phaseIdx] }

func (fq *FaceQuantities) Mobility(cellIdx, phaseIdx int) float64 {
	return fq.mobility[phaseIdx][cellIdx]
}

func (fq *FaceQuantities) PressureDifference(faceIdx, phaseIdx int) float64 {
	return fq.dPhi[faceIdx][phaseIdx]
}
