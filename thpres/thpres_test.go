package thpres

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/blackoil/utils"
)

type testFace struct {
	in, out     int
	area, trans float64
	dp          []float64 // per phase
	up          []int     // per phase, local cell index
}

// testGrid is a hand built partition: local cell i has natural index natural[i]
type testGrid struct {
	natural []int
	mob     [][]float64 // per local cell, per phase
	faces   []testFace
	nPhases int
}

func (g *testGrid) NumPhases() int                      { return g.nPhases }
func (g *testGrid) NumInteriorFaces() int               { return len(g.faces) }
func (g *testGrid) InteriorFace(f int) (int, int)       { return g.faces[f].in, g.faces[f].out }
func (g *testGrid) FaceArea(f int) float64              { return g.faces[f].area }
func (g *testGrid) Transmissibility(f int) float64      { return g.faces[f].trans }
func (g *testGrid) UpstreamIndex(f, p int) int          { return g.faces[f].up[p] }
func (g *testGrid) Mobility(c, p int) float64           { return g.mob[c][p] }
func (g *testGrid) PressureDifference(f, p int) float64 { return g.faces[f].dp[p] }
func (g *testGrid) NumCells() int                       { return len(g.natural) }
func (g *testGrid) NaturalIndex(c int) int              { return g.natural[c] }

type countingComm struct{ calls int }

func (c *countingComm) AllReduceMax([]float64) { c.calls++ }

func ptr(v float64) *float64 { return &v }

// twoCellGrid has cell 0 in region 1 and cell 1 in region 2 sharing one face
// with a single mobile phase and a potential difference of 1000.
func twoCellGrid() *testGrid {
	return &testGrid{
		natural: []int{0, 1},
		mob:     [][]float64{{1}, {1}},
		faces: []testFace{
			{in: 0, out: 1, area: 1, trans: 1, dp: []float64{1000}, up: []int{0}},
		},
		nPhases: 1,
	}
}

func TestSingleFaceScenario(t *testing.T) {
	g := twoCellGrid()
	cfg := Config{
		Enabled:      true,
		EquilRegions: []int{1, 2},
		Barriers:     []Barrier{{Region1: 1, Region2: 2}},
	}
	tp := NewThresholdPressure(cfg, g, g, nil)
	require.NoError(t, tp.FinishInit())
	assert.Equal(t, 2, tp.NumRegions())
	assert.Equal(t, 1000., tp.DefaultTable().At(0, 1))
	assert.Equal(t, 1000., tp.DefaultTable().At(1, 0))
	assert.Equal(t, 1000., tp.Threshold(0, 1))
	assert.Equal(t, 1000., tp.Threshold(1, 0))
	assert.Equal(t, 0., tp.Threshold(0, 0))
	assert.Equal(t, 0., tp.Threshold(1, 1))
	assert.Equal(t, []float64{0, 1000, 1000, 0}, tp.Data())
	assert.True(t, tp.Table().IsSymmetric())
	assert.True(t, tp.Initialized())
	assert.Contains(t, tp.Summary(), "1 region pairs")
}

func TestDefaultDerivation(t *testing.T) {
	cfg := Config{Enabled: true, EquilRegions: []int{1, 2}}
	{ // Negligible transmissibility*area faces do not contribute
		g := twoCellGrid()
		g.faces[0].trans = 1e-10
		g.faces[0].area = 1e-9
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 0., tp.DefaultTable().At(0, 1))
	}
	{ // Negative transmissibility is compared by magnitude
		g := twoCellGrid()
		g.faces[0].trans = -1
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 1000., tp.DefaultTable().At(0, 1))
	}
	{ // Immobile upstream phases do not contribute, the largest mobile one wins
		g := &testGrid{
			natural: []int{0, 1},
			mob:     [][]float64{{0, 1, 0.5}, {1, 0, 0.5}},
			faces: []testFace{
				{in: 0, out: 1, area: 1, trans: 1, dp: []float64{5000, -300, 200}, up: []int{0, 0, 1}},
			},
			nPhases: 3,
		}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 300., tp.DefaultTable().At(0, 1))
		assert.Equal(t, 300., tp.DefaultTable().At(1, 0))
	}
	{ // Faces inside one region are ignored, the running maximum never decreases
		g := &testGrid{
			natural: []int{0, 1, 2, 3},
			mob:     [][]float64{{1}, {1}, {1}, {1}},
			faces: []testFace{
				{in: 0, out: 1, area: 1, trans: 1, dp: []float64{9999}, up: []int{0}},
				{in: 1, out: 2, area: 1, trans: 1, dp: []float64{700}, up: []int{1}},
				{in: 0, out: 3, area: 1, trans: 1, dp: []float64{-100}, up: []int{3}},
			},
			nPhases: 1,
		}
		c := cfg
		c.EquilRegions = []int{1, 1, 2, 2}
		tp := NewThresholdPressure(c, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 700., tp.DefaultTable().At(0, 1))
	}
}

func TestExplicitOverride(t *testing.T) {
	var (
		g    = twoCellGrid()
		base = Config{Enabled: true, EquilRegions: []int{1, 2}}
	)
	{ // Explicit value replaces the default
		cfg := base
		cfg.Barriers = []Barrier{{Region1: 2, Region2: 1, Value: ptr(42)}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 1000., tp.DefaultTable().At(0, 1))
		assert.Equal(t, 42., tp.Table().At(0, 1))
		assert.Equal(t, 42., tp.Table().At(1, 0))
		assert.Equal(t, 42., tp.Threshold(0, 1))
	}
	{ // No barrier declared leaves the pair at zero
		tp := NewThresholdPressure(base, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 1000., tp.DefaultTable().At(0, 1))
		assert.Equal(t, 0., tp.Threshold(0, 1))
	}
	{ // An explicit zero is a value, not a fallback
		cfg := base
		cfg.Barriers = []Barrier{{Region1: 1, Region2: 2, Value: ptr(0)}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 0., tp.Threshold(0, 1))
	}
	{ // Negative values are rejected
		cfg := base
		cfg.Barriers = []Barrier{{Region1: 1, Region2: 2, Value: ptr(-1)}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		assert.Error(t, tp.FinishInit())
	}
	{ // Barrier regions outside the configured count are rejected
		cfg := base
		cfg.NumEquilRegions = 2
		cfg.Barriers = []Barrier{{Region1: 1, Region2: 3}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		assert.True(t, errors.Is(tp.FinishInit(), ErrInvalidRegion))
	}
}

func TestDisabled(t *testing.T) {
	var (
		g    = twoCellGrid()
		comm = &countingComm{}
		cfg  = Config{
			Enabled:           false,
			EquilRegions:      []int{1, 2},
			Barriers:          []Barrier{{Region1: 1, Region2: 2, Value: ptr(5)}},
			EnableExperiments: true,
			Faults:            []Fault{{Name: "F1", Faces: [][]int{{0}}}},
			FaultThresholds:   []FaultThreshold{{FaultName: "F1", Value: 7}},
		}
	)
	tp := NewThresholdPressure(cfg, g, g, comm)
	require.NoError(t, tp.FinishInit())
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.Equal(t, 0., tp.Threshold(i, j))
		}
	}
	assert.Zero(t, comm.calls)
	assert.Nil(t, tp.Data())
	assert.Equal(t, "threshold pressure disabled", tp.Summary())
	assert.NoError(t, tp.SetFromRestart([]float64{1, 2, 3}))
}

// threeFaceGrid has four cells, cells 0,1 in region 1 and 2,3 in region 2,
// and three faces between the regions with an unambiguous maximum of 750.
func threeFaceFaces() []testFace {
	return []testFace{
		{in: 0, out: 2, area: 2, trans: 0.5, dp: []float64{250, 10}, up: []int{0, 2}},
		{in: 1, out: 3, area: 1, trans: 3, dp: []float64{-750, 20}, up: []int{3, 1}},
		{in: 1, out: 2, area: 1, trans: 1, dp: []float64{500, -5000}, up: []int{1, 2}},
	}
}

func runPartitioned(t *testing.T, NP int, cfg Config) (tables [][]float64, defaults [][]float64) {
	var (
		faces = threeFaceFaces()
		comm  = utils.NewCommunicator(NP)
		wg    = sync.WaitGroup{}
		errs  = make([]error, NP)
	)
	tables = make([][]float64, NP)
	defaults = make([][]float64, NP)
	pm := utils.NewPartitionMap(NP, len(faces))
	for np := 0; np < NP; np++ {
		kMin, kMax := pm.GetBucketRange(np)
		g := &testGrid{
			natural: []int{0, 1, 2, 3},
			// phase 1 is immobile in cell 2, which is upstream of the 5000 difference
			mob:     [][]float64{{1, 1}, {1, 1}, {1, 0}, {1, 1}},
			faces:   faces[kMin:kMax],
			nPhases: 2,
		}
		wg.Add(1)
		go func(np int) {
			defer wg.Done()
			tp := NewThresholdPressure(cfg, g, g, comm.Rank(np))
			if errs[np] = tp.FinishInit(); errs[np] != nil {
				return
			}
			tables[np] = tp.Data()
			defaults[np] = tp.DefaultTable().Data()
		}(np)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return
}

func TestPartitionIndependence(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		EquilRegions: []int{1, 1, 2, 2},
		Barriers:     []Barrier{{Region1: 1, Region2: 2}},
	}
	serialTables, serialDefaults := runPartitioned(t, 1, cfg)
	assert.Equal(t, []float64{0, 750, 750, 0}, serialDefaults[0])
	assert.Equal(t, []float64{0, 750, 750, 0}, serialTables[0])
	for _, NP := range []int{2, 3, 4} {
		tables, defaults := runPartitioned(t, NP, cfg)
		for np := 0; np < NP; np++ {
			if diff := cmp.Diff(serialDefaults[0], defaults[np]); diff != "" {
				t.Errorf("NP=%d rank %d default table mismatch (-serial +rank):\n%s", NP, np, diff)
			}
			if diff := cmp.Diff(serialTables[0], tables[np]); diff != "" {
				t.Errorf("NP=%d rank %d final table mismatch (-serial +rank):\n%s", NP, np, diff)
			}
		}
	}
	{ // Face order does not matter
		var (
			faces = threeFaceFaces()
			g     = &testGrid{
				natural: []int{0, 1, 2, 3},
				mob:     [][]float64{{1, 1}, {1, 1}, {1, 0}, {1, 1}},
				faces:   []testFace{faces[2], faces[0], faces[1]},
				nPhases: 2,
			}
		)
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, serialTables[0], tp.Data())
	}
}

// faultGrid is a row of four cells, regions 1,2,1,2
func faultGrid() *testGrid {
	return &testGrid{
		natural: []int{0, 1, 2, 3},
		mob:     [][]float64{{1}, {1}, {1}, {1}},
		faces: []testFace{
			{in: 0, out: 1, area: 1, trans: 1, dp: []float64{100}, up: []int{0}},
			{in: 1, out: 2, area: 1, trans: 1, dp: []float64{100}, up: []int{1}},
			{in: 2, out: 3, area: 1, trans: 1, dp: []float64{100}, up: []int{2}},
		},
		nPhases: 1,
	}
}

func TestFaultThresholds(t *testing.T) {
	var (
		g    = faultGrid()
		base = Config{
			Enabled:           true,
			EnableExperiments: true,
			EquilRegions:      []int{1, 2, 1, 2},
			Barriers:          []Barrier{{Region1: 1, Region2: 2, Value: ptr(55)}},
			Faults: []Fault{
				{Name: "A", Faces: [][]int{{0}, {1}}},
				{Name: "B", Faces: [][]int{{2}}},
			},
		}
	)
	{ // Same fault means no barrier, different faults take the larger value
		cfg := base
		cfg.FaultThresholds = []FaultThreshold{{FaultName: "A", Value: 10}, {FaultName: "B", Value: 30}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 0., tp.Threshold(0, 1))  // both in A, different regions
		assert.Equal(t, 30., tp.Threshold(1, 2)) // A against B
		assert.Equal(t, 30., tp.Threshold(2, 3)) // B against no fault
		assert.Equal(t, 30., tp.Threshold(3, 2))
		assert.Equal(t, 55., tp.Table().At(0, 1)) // region table unchanged
		assert.Contains(t, tp.Summary(), "2 fault overrides")
	}
	{ // Cells outside every fault fall through to the region table
		cfg := base
		cfg.FaultThresholds = []FaultThreshold{{FaultName: "B", Value: 30}}
		g2 := faultGrid()
		g2.natural = append(g2.natural, 4)
		g2.mob = append(g2.mob, []float64{1})
		cfg.EquilRegions = []int{1, 2, 1, 2, 1}
		tp := NewThresholdPressure(cfg, g2, g2, nil)
		require.NoError(t, tp.FinishInit())
		assert.Equal(t, 55., tp.Threshold(3, 4))
		assert.Equal(t, 55., tp.Threshold(0, 1))
		assert.Equal(t, 0., tp.Threshold(0, 4))
	}
	{ // Without experiments the fault records are ignored
		cfg := base
		cfg.EnableExperiments = false
		cfg.FaultThresholds = []FaultThreshold{{FaultName: "A", Value: 10}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.Nil(t, tp.Faults())
		assert.Equal(t, 55., tp.Threshold(0, 1))
	}
	{ // Unknown faults are skipped, or rejected in strict mode
		cfg := base
		cfg.FaultThresholds = []FaultThreshold{{FaultName: "NOPE", Value: 10}}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.True(t, tp.Faults().Empty())
		assert.Equal(t, 55., tp.Threshold(0, 1))

		cfg.StrictFaults = true
		tp = NewThresholdPressure(cfg, g, g, nil)
		assert.True(t, errors.Is(tp.FinishInit(), ErrUnknownFault))
	}
}

func TestFaultRegistryEmpty(t *testing.T) {
	var (
		faults = []Fault{
			{Name: "A", Faces: [][]int{{0, 1}}},
			{Name: "B", Faces: [][]int{{2}}},
		}
	)
	{ // A nil registry is empty
		var fr *FaultRegistry
		assert.True(t, fr.Empty())
		assert.Equal(t, 0, fr.NumOverrides())
	}
	{ // No records
		fr := NewFaultRegistry(faults, 4)
		require.NoError(t, fr.Apply(faults, nil, false))
		assert.True(t, fr.Empty())
		assert.Equal(t, 0, fr.NumOverrides())
	}
	{ // Only unknown faults
		fr := NewFaultRegistry(faults, 4)
		require.NoError(t, fr.Apply(faults, []FaultThreshold{{FaultName: "C", Value: 3}}, false))
		assert.True(t, fr.Empty())
		assert.Equal(t, NoFault, fr.FaultOf(0))
	}
	{ // One matched record, repeated records count once
		fr := NewFaultRegistry(faults, 4)
		require.NoError(t, fr.Apply(faults, []FaultThreshold{
			{FaultName: "C", Value: 3},
			{FaultName: "B", Value: 7},
			{FaultName: "B", Value: 8},
		}, false))
		assert.False(t, fr.Empty())
		assert.Equal(t, 1, fr.NumOverrides())
		assert.Equal(t, 8., fr.CellValue(2))
	}
	{ // Many faults without values still answer queries from the region table
		var (
			many = make([]Fault, 10000)
			g    = twoCellGrid()
		)
		for i := range many {
			many[i] = Fault{Name: fmt.Sprintf("F%d", i), Faces: [][]int{{1}}}
		}
		cfg := Config{
			Enabled:           true,
			EnableExperiments: true,
			EquilRegions:      []int{1, 2},
			Barriers:          []Barrier{{Region1: 1, Region2: 2, Value: ptr(40)}},
			Faults:            many,
			FaultThresholds:   []FaultThreshold{{FaultName: "NOPE", Value: 1}},
		}
		tp := NewThresholdPressure(cfg, g, g, nil)
		require.NoError(t, tp.FinishInit())
		assert.True(t, tp.Faults().Empty())
		assert.Equal(t, 40., tp.Threshold(0, 1))
	}
}

func TestFaultMultipleMembership(t *testing.T) {
	var (
		g   = faultGrid()
		cfg = Config{
			Enabled:           true,
			EnableExperiments: true,
			EquilRegions:      []int{1, 1, 1, 1},
			Faults: []Fault{
				{Name: "A", Faces: [][]int{{0, 1}}},
				{Name: "B", Faces: [][]int{{1}}},
			},
			// B is applied first, so cell 1 ends up marked as A
			FaultThresholds: []FaultThreshold{{FaultName: "B", Value: 9}, {FaultName: "A", Value: 5}},
		}
	)
	tp := NewThresholdPressure(cfg, g, g, nil)
	require.NoError(t, tp.FinishInit())
	fr := tp.Faults()
	assert.Equal(t, 0, fr.FaultOf(1))
	assert.Equal(t, 9., fr.CellValue(1))
	assert.Equal(t, NoFault, fr.FaultOf(2))
	assert.Equal(t, "B", fr.Name(1))
	v, ok := fr.Value(1)
	assert.True(t, ok)
	assert.Equal(t, 9., v)

	assert.Equal(t, 0., tp.Threshold(0, 1)) // both last marked by A
	assert.Equal(t, 9., tp.Threshold(1, 2)) // max over all memberships of cell 1
	assert.Equal(t, 0., tp.Threshold(2, 3)) // no fault, same region
}

func TestRestart(t *testing.T) {
	var (
		g    = twoCellGrid() // would give a default of 1000 if derived
		comm = &countingComm{}
		cfg  = Config{
			Enabled:      true,
			Restart:      true,
			EquilRegions: []int{1, 2},
			Barriers:     []Barrier{{Region1: 1, Region2: 2}},
		}
	)
	tp := NewThresholdPressure(cfg, g, g, comm)
	require.NoError(t, tp.FinishInit())
	assert.Zero(t, comm.calls)
	assert.Nil(t, tp.DefaultTable())
	assert.False(t, tp.Initialized())
	assert.Equal(t, []float64{0, 0, 0, 0}, tp.Data())

	assert.True(t, errors.Is(tp.SetFromRestart([]float64{0, 1}), ErrRestartSize))
	assert.True(t, errors.Is(tp.SetFromRestart([]float64{0, 1, 2, 0}), ErrRestartAsymmetric))
	assert.True(t, errors.Is(tp.SetFromRestart([]float64{0, -5, -5, 0}), ErrRestartValue))
	assert.True(t, errors.Is(tp.SetFromRestart([]float64{0, math.NaN(), math.NaN(), 0}), ErrRestartValue))
	assert.False(t, tp.Initialized())

	restart := []float64{0, 123.5, 123.5, 0}
	require.NoError(t, tp.SetFromRestart(restart))
	assert.True(t, tp.Initialized())
	assert.Equal(t, restart, tp.Data())
	assert.Equal(t, 123.5, tp.Threshold(0, 1))
	assert.True(t, tp.Table().IsSymmetric())
}

func TestRestartBeforeInit(t *testing.T) {
	g := twoCellGrid()
	tp := NewThresholdPressure(Config{Enabled: true, EquilRegions: []int{1, 2}}, g, g, nil)
	assert.True(t, errors.Is(tp.SetFromRestart([]float64{0, 0, 0, 0}), ErrNotInitialized))
}

func TestCollectiveCount(t *testing.T) {
	var (
		g    = twoCellGrid()
		comm = &countingComm{}
	)
	tp := NewThresholdPressure(Config{Enabled: true, EquilRegions: []int{1, 2}}, g, g, comm)
	require.NoError(t, tp.FinishInit())
	// default table, then final table
	assert.Equal(t, 2, comm.calls)
}
