package particles

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// grid is a uniform cell grid with cell edge equal to the support radius, so
// every neighbor of a particle lies in the 3x3x3 block around its cell.
type grid struct {
	min, max r3.Vec
	cellSize float64
	n        [3]int
	cells    [][]int // flat, see CellXYZToCellIndex
	ready    bool
}

// InitNeighborSearch fixes the grid domain. Cell count per axis is
// ceil(extent/h). In 2-D the z axis collapses to a single layer.
func (s *System) InitNeighborSearch(areaMin, areaMax r3.Vec) error {
	ext := r3.Sub(areaMax, areaMin)
	if !(ext.X > 0) || !(ext.Y > 0) || (!s.sim2D && !(ext.Z > 0)) {
		return errorf(InvalidDomain, "extent %v", ext)
	}

	g := grid{
		min:      areaMin,
		max:      areaMax,
		cellSize: s.h,
	}
	g.n[0] = cellsAlong(ext.X, s.h)
	g.n[1] = cellsAlong(ext.Y, s.h)
	if s.sim2D {
		g.n[2] = 1
	} else {
		g.n[2] = cellsAlong(ext.Z, s.h)
	}

	g.cells = make([][]int, g.n[0]*g.n[1]*g.n[2])
	for i := range g.cells {
		g.cells[i] = make([]int, 0, 8)
	}
	g.ready = true
	s.grid = g
	return nil
}

func cellsAlong(extent, cellSize float64) int {
	n := int(math.Ceil(extent / cellSize))
	if n < 1 {
		n = 1
	}
	return n
}

// NumCellsPerAxis returns the grid resolution.
func (s *System) NumCellsPerAxis() [3]int { return s.grid.n }

// NumCells returns the total number of cells.
func (s *System) NumCells() int { return len(s.grid.cells) }

// Cell returns the particle indices assigned to a cell. The slice is reused
// by the next AssignParticlesToCells.
func (s *System) Cell(index int) []int { return s.grid.cells[index] }

// PosToCellXYZ maps a position to its cell coordinate. Positions outside the
// domain clamp to the nearest edge cell.
func (s *System) PosToCellXYZ(x r3.Vec) [3]int {
	g := &s.grid
	c := [3]int{
		clampCell(math.Floor((x.X-g.min.X)/g.cellSize), g.n[0]),
		clampCell(math.Floor((x.Y-g.min.Y)/g.cellSize), g.n[1]),
		0,
	}
	if !s.sim2D {
		c[2] = clampCell(math.Floor((x.Z-g.min.Z)/g.cellSize), g.n[2])
	}
	return c
}

func clampCell(f float64, n int) int {
	// NaN fails both comparisons and lands in cell 0.
	if !(f >= 0) {
		return 0
	}
	if f >= float64(n-1) {
		return n - 1
	}
	return int(f)
}

// CellXYZToCellIndex flattens a cell coordinate, x fastest.
func (s *System) CellXYZToCellIndex(ix, iy, iz int) int {
	n := s.grid.n
	return ix + n[0]*(iy+n[1]*iz)
}

// PosToCellIndex maps a position straight to its flat cell index.
func (s *System) PosToCellIndex(x r3.Vec) int {
	c := s.PosToCellXYZ(x)
	return s.CellXYZToCellIndex(c[0], c[1], c[2])
}

// NeighborCellIndices returns the 27 (9 in 2-D) cells around x's cell,
// clipped at the domain edges.
func (s *System) NeighborCellIndices(x r3.Vec) []int {
	return s.appendNeighborCells(make([]int, 0, 27), s.PosToCellXYZ(x))
}

func (s *System) appendNeighborCells(dst []int, c [3]int) []int {
	n := s.grid.n
	zLo, zHi := c[2]-1, c[2]+1
	if s.sim2D {
		zLo, zHi = 0, 0
	}
	for iz := max(zLo, 0); iz <= min(zHi, n[2]-1); iz++ {
		for iy := max(c[1]-1, 0); iy <= min(c[1]+1, n[1]-1); iy++ {
			for ix := max(c[0]-1, 0); ix <= min(c[0]+1, n[0]-1); ix++ {
				dst = append(dst, s.CellXYZToCellIndex(ix, iy, iz))
			}
		}
	}
	return dst
}

// AssignParticlesToCells clears every cell and re-inserts all particles at
// their current positions. Panics if InitNeighborSearch was never called.
func (s *System) AssignParticlesToCells() {
	if !s.grid.ready {
		panic("particles: AssignParticlesToCells called before InitNeighborSearch")
	}
	cells := s.grid.cells
	for i := range cells {
		cells[i] = cells[i][:0]
	}
	for i := range s.particles {
		idx := s.PosToCellIndex(s.particles[i].X)
		cells[idx] = append(cells[idx], i)
	}
}

// SearchNeighbors rebuilds the neighbor list of every particle of type t
// (AllTypes for every particle). A neighbor is any other particle within
// distance h. Call after AssignParticlesToCells.
func (s *System) SearchNeighbors(t Type) {
	for i := range s.particles {
		if t.matches(s.particles[i].Type) {
			s.searchOne(i)
		}
	}
}

// SearchNeighborsRange rebuilds neighbor lists for particles [i0, i1). Ranges
// that do not overlap may run concurrently: each call only writes the lists of
// its own particles and only reads positions and cells.
func (s *System) SearchNeighborsRange(i0, i1 int) {
	for i := i0; i < i1; i++ {
		s.searchOne(i)
	}
}

func (s *System) searchOne(i int) {
	p := &s.particles[i]
	p.Neighbors = p.Neighbors[:0]
	h2 := s.h * s.h

	var cellBuf [27]int
	for _, cell := range s.appendNeighborCells(cellBuf[:0], s.PosToCellXYZ(p.X)) {
		for _, j := range s.grid.cells[cell] {
			if j == i {
				continue
			}
			if r3.Norm2(r3.Sub(p.X, s.particles[j].X)) <= h2 {
				p.Neighbors = append(p.Neighbors, j)
			}
		}
	}
}
