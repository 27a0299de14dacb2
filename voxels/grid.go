/*
	Package voxels implements dense 3d scalar fields with per-axis resolution,
	the finite-difference operators needed by level-set evolution, and simple
	statistics over the field.
*/
package voxels

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/acseg/acseg"
)

// Grid is a dense 3d array of float32 values stored with x varying fastest.
// Resolution is held as voxels-per-micron along each axis and defaults to 1.
type Grid struct {
	nx, ny, nz int
	data       []float32
	vpm        [3]float32
}

// NewGrid returns a zeroed grid of the given dimensions.
func NewGrid(nx, ny, nz int) *Grid {
	g := &Grid{vpm: [3]float32{1, 1, 1}}
	g.Resize(nx, ny, nz)
	return g
}

// MaxVoxels bounds the number of voxels in a grid so indices fit in an int32.
const MaxVoxels = math.MaxInt32

// CheckedNumel returns nx*ny*nz, or an error if a dimension is negative or the
// product exceeds MaxVoxels.  Use it on dimensions read from untrusted data.
func CheckedNumel(nx, ny, nz int) (int, error) {
	if nx < 0 || ny < 0 || nz < 0 {
		return 0, fmt.Errorf("negative grid dimensions %d x %d x %d", nx, ny, nz)
	}
	if nx == 0 || ny == 0 || nz == 0 {
		return 0, nil
	}
	if nx > MaxVoxels || ny > MaxVoxels/nx || nz > MaxVoxels/(nx*ny) {
		return 0, fmt.Errorf("%w: grid %d x %d x %d exceeds %d voxels", acseg.ErrSizeMismatch, nx, ny, nz, MaxVoxels)
	}
	return nx * ny * nz, nil
}

// NewGridFromData wraps an existing x-fastest buffer.
func NewGridFromData(nx, ny, nz int, data []float32) (*Grid, error) {
	n, err := CheckedNumel(nx, ny, nz)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for %d x %d x %d grid", acseg.ErrSizeMismatch, len(data), nx, ny, nz)
	}
	return &Grid{nx: nx, ny: ny, nz: nz, data: data, vpm: [3]float32{1, 1, 1}}, nil
}

// Resize reallocates the grid.  Contents are zeroed.  Negative dimensions are
// treated as zero.
func (g *Grid) Resize(nx, ny, nz int) {
	if nx < 0 {
		nx = 0
	}
	if ny < 0 {
		ny = 0
	}
	if nz < 0 {
		nz = 0
	}
	n := nx * ny * nz
	if cap(g.data) >= n {
		g.data = g.data[:n]
		clear(g.data)
	} else {
		g.data = make([]float32, n)
	}
	g.nx, g.ny, g.nz = nx, ny, nz
	if g.vpm == [3]float32{} {
		g.vpm = [3]float32{1, 1, 1}
	}
}

// Dims returns the grid dimensions.
func (g *Grid) Dims() (nx, ny, nz int) {
	return g.nx, g.ny, g.nz
}

// Size returns the dimensions as a point.
func (g *Grid) Size() acseg.Point3d {
	return acseg.Point3d{int32(g.nx), int32(g.ny), int32(g.nz)}
}

// SameSize returns true if both grids have identical dimensions.
func (g *Grid) SameSize(g2 *Grid) bool {
	return g.nx == g2.nx && g.ny == g2.ny && g.nz == g2.nz
}

// Numel returns the number of voxels.
func (g *Grid) Numel() int {
	return len(g.data)
}

// Data returns the backing buffer with x varying fastest, then y, then z.
func (g *Grid) Data() []float32 {
	return g.data
}

// Slice returns the backing buffer for one z plane.
func (g *Grid) Slice(z int) []float32 {
	n := g.nx * g.ny
	return g.data[z*n : (z+1)*n]
}

// Index returns the offset of (x,y,z) in the backing buffer.
func (g *Grid) Index(x, y, z int) int {
	return x + g.nx*(y+g.ny*z)
}

// At returns the value at (x,y,z) without bounds clamping.
func (g *Grid) At(x, y, z int) float32 {
	return g.data[x+g.nx*(y+g.ny*z)]
}

// Set stores v at (x,y,z) without bounds clamping.
func (g *Grid) Set(x, y, z int, v float32) {
	g.data[x+g.nx*(y+g.ny*z)] = v
}

// Inside returns true if (x,y,z) is a valid voxel index.
func (g *Grid) Inside(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.nx && y < g.ny && z < g.nz
}

// atClamped returns the value with each index clamped to [0, dim-1].
func (g *Grid) atClamped(x, y, z int) float32 {
	return g.At(clampIdx(x, g.nx), clampIdx(y, g.ny), clampIdx(z, g.nz))
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Fill sets every voxel to v.
func (g *Grid) Fill(v float32) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Copy returns a deep copy of the grid including resolution.
func (g *Grid) Copy() *Grid {
	c := &Grid{nx: g.nx, ny: g.ny, nz: g.nz, vpm: g.vpm}
	c.data = make([]float32, len(g.data))
	copy(c.data, g.data)
	return c
}

// CopyFrom resizes the receiver to match src and copies its values and resolution.
func (g *Grid) CopyFrom(src *Grid) {
	if !g.SameSize(src) {
		g.Resize(src.nx, src.ny, src.nz)
	}
	copy(g.data, src.data)
	g.vpm = src.vpm
}

// SetResolution sets the physical voxel size in microns-per-voxel along each axis.
func (g *Grid) SetResolution(rx, ry, rz float32) error {
	if rx <= 0 || ry <= 0 || rz <= 0 {
		return fmt.Errorf("resolution must be positive, got %g x %g x %g", rx, ry, rz)
	}
	g.vpm = [3]float32{1 / rx, 1 / ry, 1 / rz}
	return nil
}

// VoxelsPerMicron returns the per-axis resolution in voxels-per-micron.
func (g *Grid) VoxelsPerMicron() [3]float32 {
	return g.vpm
}

// Resolution returns the per-axis voxel size in microns.
func (g *Grid) Resolution() [3]float32 {
	return [3]float32{1 / g.vpm[0], 1 / g.vpm[1], 1 / g.vpm[2]}
}

// Subview copies the inclusive block [x1,x2] x [y1,y2] x [z1,z2] into out,
// resizing it.  The block must lie within the grid.
func (g *Grid) Subview(x1, x2, y1, y2, z1, z2 int, out *Grid) error {
	nx, ny, nz := x2-x1+1, y2-y1+1, z2-z1+1
	if nx < 1 || ny < 1 || nz < 1 || x1 < 0 || y1 < 0 || z1 < 0 || x2 >= g.nx || y2 >= g.ny || z2 >= g.nz {
		return fmt.Errorf("subview [%d,%d]x[%d,%d]x[%d,%d] outside of %d x %d x %d grid",
			x1, x2, y1, y2, z1, z2, g.nx, g.ny, g.nz)
	}
	out.Resize(nx, ny, nz)
	out.vpm = g.vpm
	for z := z1; z <= z2; z++ {
		for y := y1; y <= y2; y++ {
			src := g.data[g.Index(x1, y, z) : g.Index(x2, y, z)+1]
			copy(out.data[out.Index(0, y-y1, z-z1):], src)
		}
	}
	return nil
}

// Paste writes src into g with src voxel (0,0,0) at (x0,y0,z0).  Voxels that
// land outside g are skipped.
func (g *Grid) Paste(src *Grid, x0, y0, z0 int) {
	for z := max(0, -z0); z < src.nz && z+z0 < g.nz; z++ {
		for y := max(0, -y0); y < src.ny && y+y0 < g.ny; y++ {
			xlo, xhi := max(0, -x0), min(src.nx, g.nx-x0)
			if xlo >= xhi {
				continue
			}
			copy(g.data[g.Index(xlo+x0, y+y0, z+z0):], src.data[src.Index(xlo, y, z):src.Index(xhi-1, y, z)+1])
		}
	}
}

func isCloseTo(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func (g *Grid) String() string {
	return fmt.Sprintf("%d x %d x %d grid", g.nx, g.ny, g.nz)
}
