package grid

import (
	"github.com/notargets/blackoil/types"
	"github.com/notargets/blackoil/utils"
)

// Partition is the part of the grid seen by one rank: the owned cells, a
// one cell ghost layer, and every face touching an owned cell. Local indices
// number the owned cells first, then the ghosts.
type Partition struct {
	Rank     int
	NumOwned int

	natural []int
	local   map[int]int
	faces   [][2]int // local cell pairs
	area    []float64
	trans   []float64
}

// Partition splits the natural ordering into NP contiguous blocks
func (g *Cartesian) Partition(NP int) (parts []*Partition) {
	var (
		pm = utils.NewPartitionMap(NP, g.Size())
	)
	parts = make([]*Partition, NP)
	for np := 0; np < NP; np++ {
		parts[np] = g.buildPartition(np, pm)
	}
	return
}

func (g *Cartesian) buildPartition(rank int, pm *utils.PartitionMap) (p *Partition) {
	var (
		kMin, kMax = pm.GetBucketRange(rank)
	)
	p = &Partition{
		Rank:     rank,
		NumOwned: pm.GetBucketDimension(rank),
		local:    make(map[int]int),
	}
	for n := kMin; n < kMax; n++ {
		p.addCell(n)
	}
	seen := make(map[types.FaceKey]struct{})
	for n := kMin; n < kMax; n++ {
		for _, m := range g.Neighbors(n) {
			key := types.NewFaceKey([2]int{n, m})
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			lm, ok := p.local[m]
			if !ok {
				lm = p.addCell(m) // ghost
			}
			p.faces = append(p.faces, [2]int{p.local[n], lm})
			p.area = append(p.area, g.FaceArea(n, m))
			p.trans = append(p.trans, g.Transmissibility(n, m))
		}
	}
	return
}

func (p *Partition) addCell(natural int) (l int) {
	l = len(p.natural)
	p.natural = append(p.natural, natural)
	p.local[natural] = l
	return
}

func (p *Partition) NumCells() int { return len(p.natural) }

func (p *Partition) NaturalIndex(localIdx int) int { return p.natural[localIdx] }

func (p *Partition) LocalIndex(natural int) (l int, ok bool) {
	l, ok = p.local[natural]
	return
}

func (p *Partition) IsGhost(localIdx int) bool { return localIdx >= p.NumOwned }

func (p *Partition) NumFaces() int { return len(p.faces) }

func (p *Partition) Face(faceIdx int) (inside, outside int) {
	return p.faces[faceIdx][0], p.faces[faceIdx][1]
}
