package contour

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

// Arbiter label values other than positive seed indices.
const (
	Unclaimed float32 = 0
	Tentative float32 = -1 // collision detected during this step
	Collided  float32 = -2 // confirmed collision; never changes again
)

// Arbiter is the full-image label field shared by every seed in a run.  Each
// voxel is unclaimed, owned by a positive seed index, or marked as a tentative
// or confirmed collision.
//
// Seeds consult and update the field concurrently without locks.  Each cell is
// read and written atomically, but a claim is a separate read and write, so two
// seeds racing for the same unclaimed voxel can both believe they own it for one
// step.  The loser notices the conflict on its next step.
type Arbiter struct {
	nx, ny, nz int
	cells      []uint32
}

// NewArbiter returns an arbiter with every voxel unclaimed.
func NewArbiter(nx, ny, nz int) *Arbiter {
	return &Arbiter{nx: nx, ny: ny, nz: nz, cells: make([]uint32, nx*ny*nz)}
}

// NewArbiterFromGrid returns an arbiter initialized from a label image, e.g., a
// drawing of prior segmentations.
func NewArbiterFromGrid(g *voxels.Grid) *Arbiter {
	nx, ny, nz := g.Dims()
	a := NewArbiter(nx, ny, nz)
	for i, v := range g.Data() {
		a.cells[i] = math.Float32bits(v)
	}
	return a
}

// Dims returns the size of the labeled image.
func (a *Arbiter) Dims() (nx, ny, nz int) {
	return a.nx, a.ny, a.nz
}

// Size returns the dimensions as a point.
func (a *Arbiter) Size() acseg.Point3d {
	return acseg.Point3d{int32(a.nx), int32(a.ny), int32(a.nz)}
}

func (a *Arbiter) index(x, y, z int) int {
	return x + a.nx*(y+a.ny*z)
}

func (a *Arbiter) load(i int) float32 {
	return math.Float32frombits(atomic.LoadUint32(&a.cells[i]))
}

func (a *Arbiter) store(i int, v float32) {
	atomic.StoreUint32(&a.cells[i], math.Float32bits(v))
}

// At returns the label at (x,y,z).
func (a *Arbiter) At(x, y, z int) float32 {
	return a.load(a.index(x, y, z))
}

// Set stores a label at (x,y,z).  Intended for setup and tests; evolving seeds
// go through the claim protocol instead.
func (a *Arbiter) Set(x, y, z int, v float32) {
	a.store(a.index(x, y, z), v)
}

// register marks voxel i as part of a seed's initial mask.  Unclaimed voxels
// are claimed, voxels owned by another seed become confirmed collisions.
func (a *Arbiter) register(i int, idx float32) {
	cur := a.load(i)
	switch {
	case cur == Unclaimed:
		a.store(i, idx)
	case cur > 0 && cur != idx:
		a.store(i, Collided)
	}
}

// claim records that seed idx wants voxel i this step.
func (a *Arbiter) claim(i int, idx float32) {
	cur := a.load(i)
	switch {
	case cur == Collided || cur == idx:
		return
	case cur != Unclaimed:
		a.store(i, Tentative)
	default:
		a.store(i, idx)
		if a.load(i) != idx {
			// Another seed wrote between our read and write.
			a.store(i, Tentative)
		}
	}
}

// commit promotes a tentative collision at voxel i and returns the final label.
func (a *Arbiter) commit(i int) float32 {
	cur := a.load(i)
	if cur == Tentative {
		a.store(i, Collided)
		return Collided
	}
	return cur
}

// Grid returns a snapshot of the labels.
func (a *Arbiter) Grid() *voxels.Grid {
	g := voxels.NewGrid(a.nx, a.ny, a.nz)
	data := g.Data()
	for i := range a.cells {
		data[i] = a.load(i)
	}
	return g
}

// Count returns the number of voxels with the given label.
func (a *Arbiter) Count(label float32) int {
	var n int
	for i := range a.cells {
		if a.load(i) == label {
			n++
		}
	}
	return n
}

func (a *Arbiter) String() string {
	return fmt.Sprintf("arbiter %d x %d x %d (%d collided)", a.nx, a.ny, a.nz, a.Count(Collided))
}
