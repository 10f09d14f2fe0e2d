package thpres

// FaceQuantityProvider is the view of the discretization needed to derive
// default thresholds. Faces are the interior (non-boundary) faces of the
// local partition; cell indices are local.
type FaceQuantityProvider interface {
	NumPhases() int
	NumInteriorFaces() int
	InteriorFace(faceIdx int) (inside, outside int)
	FaceArea(faceIdx int) float64
	// Transmissibility returns the plain numeric value, without derivatives
	Transmissibility(faceIdx int) float64
	UpstreamIndex(faceIdx, phaseIdx int) int
	Mobility(cellIdx, phaseIdx int) float64
	PressureDifference(faceIdx, phaseIdx int) float64
}

// CellMapper maps local cell indices to the natural (global Cartesian) index
// used by all per-cell input arrays.
type CellMapper interface {
	NumCells() int
	NaturalIndex(localIdx int) int
}

// Collective is the cross-process reduction used to make the default table
// identical on every rank.
type Collective interface {
	AllReduceMax(values []float64)
}

// SerialComm is the Collective of a single process run
type SerialComm struct{}

func (SerialComm) AllReduceMax([]float64) {}
