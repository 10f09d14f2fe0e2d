package grid

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
)

const (
	Gravity    = 9.80665      // m/s^2
	MilliDarcy = 9.869233e-16 // m^2
)

// Cartesian is a structured grid with natural index i + Nx*(j + Ny*k), k
// increasing downward.
type Cartesian struct {
	Nx, Ny, Nz int
	Dx, Dy, Dz float64
	TopDepth   float64
	Perm       []float64 // isotropic permeability per natural cell, m^2

	adjacency *sparse.CSR
}

func NewCartesian(dims [3]int, spacing [3]float64, topDepth float64) (g *Cartesian, err error) {
	for d := 0; d < 3; d++ {
		if dims[d] < 1 {
			return nil, fmt.Errorf("grid dimension %d must be positive, have %d", d, dims[d])
		}
		if spacing[d] <= 0 {
			return nil, fmt.Errorf("grid spacing %d must be positive, have %g", d, spacing[d])
		}
	}
	g = &Cartesian{
		Nx: dims[0], Ny: dims[1], Nz: dims[2],
		Dx: spacing[0], Dy: spacing[1], Dz: spacing[2],
		TopDepth: topDepth,
	}
	g.Perm = make([]float64, g.Size())
	for n := range g.Perm {
		g.Perm[n] = 100 * MilliDarcy
	}
	return
}

func (g *Cartesian) Size() int { return g.Nx * g.Ny * g.Nz }

// SetPermeability sets per cell permeabilities given in milliDarcy
func (g *Cartesian) SetPermeability(permMD []float64) error {
	if len(permMD) != g.Size() {
		return fmt.Errorf("permeability has %d values, grid has %d cells", len(permMD), g.Size())
	}
	for n, k := range permMD {
		if k < 0 {
			return fmt.Errorf("negative permeability %g in cell %d", k, n)
		}
		g.Perm[n] = k * MilliDarcy
	}
	return nil
}

func (g *Cartesian) Natural(i, j, k int) int { return i + g.Nx*(j+g.Ny*k) }

func (g *Cartesian) IJK(n int) (i, j, k int) {
	i = n % g.Nx
	j = (n / g.Nx) % g.Ny
	k = n / (g.Nx * g.Ny)
	return
}

// Depth of the cell center
func (g *Cartesian) Depth(n int) float64 {
	_, _, k := g.IJK(n)
	return g.TopDepth + (float64(k)+0.5)*g.Dz
}

// Connectivity returns the symmetric cell adjacency matrix
func (g *Cartesian) Connectivity() *sparse.CSR {
	if g.adjacency != nil {
		return g.adjacency
	}
	var (
		N   = g.Size()
		dok = sparse.NewDOK(N, N)
	)
	for n := 0; n < N; n++ {
		i, j, k := g.IJK(n)
		if i+1 < g.Nx {
			m := g.Natural(i+1, j, k)
			dok.Set(n, m, 1)
			dok.Set(m, n, 1)
		}
		if j+1 < g.Ny {
			m := g.Natural(i, j+1, k)
			dok.Set(n, m, 1)
			dok.Set(m, n, 1)
		}
		if k+1 < g.Nz {
			m := g.Natural(i, j, k+1)
			dok.Set(n, m, 1)
			dok.Set(m, n, 1)
		}
	}
	g.adjacency = dok.ToCSR()
	return g.adjacency
}

// Neighbors returns the face neighbors of a cell in ascending order
func (g *Cartesian) Neighbors(n int) (nbrs []int) {
	g.Connectivity().DoRowNonZero(n, func(_, m int, _ float64) {
		nbrs = append(nbrs, m)
	})
	sort.Ints(nbrs)
	return
}

// FaceArea returns the area of the face between two neighboring cells
func (g *Cartesian) FaceArea(n1, n2 int) float64 {
	i1, j1, _ := g.IJK(n1)
	i2, j2, _ := g.IJK(n2)
	switch {
	case i1 != i2:
		return g.Dy * g.Dz
	case j1 != j2:
		return g.Dx * g.Dz
	default:
		return g.Dx * g.Dy
	}
}

func (g *Cartesian) centerDistance(n1, n2 int) float64 {
	i1, j1, _ := g.IJK(n1)
	i2, j2, _ := g.IJK(n2)
	switch {
	case i1 != i2:
		return g.Dx
	case j1 != j2:
		return g.Dy
	default:
		return g.Dz
	}
}

// Transmissibility is the two point transmissibility between neighboring
// cells, using the harmonic average of the half cell conductances.
func (g *Cartesian) Transmissibility(n1, n2 int) float64 {
	var (
		k1, k2 = g.Perm[n1], g.Perm[n2]
		half   = 0.5 * g.centerDistance(n1, n2)
		area   = g.FaceArea(n1, n2)
	)
	if k1 == 0 || k2 == 0 {
		return 0
	}
	return area / (half/k1 + half/k2)
}

// BoxCells returns the natural indices of a box given 1-based inclusive
// bounds I1 I2 J1 J2 K1 K2, the form used by fault and region input.
func (g *Cartesian) BoxCells(box [6]int) (cells []int, err error) {
	var (
		lo = [3]int{box[0], box[2], box[4]}
		hi = [3]int{box[1], box[3], box[5]}
		nd = [3]int{g.Nx, g.Ny, g.Nz}
	)
	for d := 0; d < 3; d++ {
		if lo[d] < 1 || hi[d] > nd[d] || lo[d] > hi[d] {
			return nil, fmt.Errorf("box %v outside grid %dx%dx%d", box, g.Nx, g.Ny, g.Nz)
		}
	}
	for k := lo[2] - 1; k < hi[2]; k++ {
		for j := lo[1] - 1; j < hi[1]; j++ {
			for i := lo[0] - 1; i < hi[0]; i++ {
				cells = append(cells, g.Natural(i, j, k))
			}
		}
	}
	return
}

// NumCells and NaturalIndex make the whole grid a serial cell mapping
func (g *Cartesian) NumCells() int { return g.Size() }

func (g *Cartesian) NaturalIndex(localIdx int) int { return localIdx }
