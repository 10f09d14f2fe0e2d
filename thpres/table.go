package thpres

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/blackoil/types"
)

// Table is a dense n x n matrix of threshold pressures indexed by 0-based
// region ids, stored row major so that Data is the restart vector layout.
// Writes always go to both symmetric slots.
type Table struct {
	n    int
	data []float64
}

func NewTable(n int) *Table {
	return &Table{n: n, data: make([]float64, n*n)}
}

func (t *Table) NumRegions() int { return t.n }

func (t *Table) At(r1, r2 int) float64 { return t.data[r1*t.n+r2] }

func (t *Table) SetPair(r1, r2 int, v float64) {
	t.data[r1*t.n+r2] = v
	t.data[r2*t.n+r1] = v
}

// MaxPair raises both symmetric slots to v if v is larger
func (t *Table) MaxPair(r1, r2 int, v float64) {
	if o := r1*t.n + r2; v > t.data[o] {
		t.data[o] = v
	}
	if o := r2*t.n + r1; v > t.data[o] {
		t.data[o] = v
	}
}

// Data returns a copy of the row major values
func (t *Table) Data() []float64 {
	out := make([]float64, len(t.data))
	copy(out, t.data)
	return out
}

func (t *Table) IsSymmetric() bool {
	for i := 0; i < t.n; i++ {
		for j := i + 1; j < t.n; j++ {
			if t.At(i, j) != t.At(j, i) {
				return false
			}
		}
	}
	return true
}

// NonZeroPairs counts region pairs i<j with a positive threshold
func (t *Table) NonZeroPairs() int { return len(t.Barriers()) }

// Barriers lists the region pairs with a positive threshold
func (t *Table) Barriers() (barriers map[types.RegionPair]float64) {
	barriers = make(map[types.RegionPair]float64)
	for i := 0; i < t.n; i++ {
		for j := i + 1; j < t.n; j++ {
			if v := t.At(i, j); v > 0 {
				barriers[types.NewRegionPair(i, j)] = v
			}
		}
	}
	return
}

func (t *Table) load(values []float64) error {
	if len(values) != len(t.data) {
		return fmt.Errorf("%w: have %d values, need %d for %d regions",
			ErrRestartSize, len(values), len(t.data), t.n)
	}
	for o, v := range values {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: (%d,%d)=%g", ErrRestartValue, o/t.n+1, o%t.n+1, v)
		}
	}
	for i := 0; i < t.n; i++ {
		for j := i + 1; j < t.n; j++ {
			if values[i*t.n+j] != values[j*t.n+i] {
				return fmt.Errorf("%w: (%d,%d)=%g, (%d,%d)=%g", ErrRestartAsymmetric,
					i+1, j+1, values[i*t.n+j], j+1, i+1, values[j*t.n+i])
			}
		}
	}
	copy(t.data, values)
	return nil
}

func (t *Table) String() string {
	if t.n == 0 {
		return "[]"
	}
	m := mat.NewDense(t.n, t.n, t.data)
	return fmt.Sprintf("%v", mat.Formatted(m, mat.Squeeze()))
}
