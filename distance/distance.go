/*
	Package distance implements the exact Euclidean distance transform and the
	cubic-window morphology used to initialize and post-process level-set masks.
*/
package distance

import (
	"math"

	"github.com/janelia-flyem/acseg/voxels"
)

// Inf is the squared-distance sentinel for voxels with no source on a line.
const Inf = 1e20

// DT1D computes the squared distance transform of the sampled function f into d
// using the lower envelope of the parabolas f(v) + (q-v)².  The scratch slices
// v and z must have lengths of at least len(f) and len(f)+1.
func DT1D(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

// intersect returns the position where the parabolas rooted at q and p meet.
func intersect(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}

// lineBuffers holds scratch space for transforms along lines of up to n voxels.
type lineBuffers struct {
	f, d []float64
	v    []int
	z    []float64
}

func newLineBuffers(n int) *lineBuffers {
	return &lineBuffers{
		f: make([]float64, n),
		d: make([]float64, n),
		v: make([]int, n),
		z: make([]float64, n+1),
	}
}

// Bwdist replaces g in place with the Euclidean distance of every voxel to the
// nearest foreground voxel (value >= 0.5).  Foreground voxels get distance 0.
// Voxels in a grid with no foreground keep the square root of the Inf sentinel.
func Bwdist(g *voxels.Grid) {
	nx, ny, nz := g.Dims()
	if g.Numel() == 0 {
		return
	}
	data := g.Data()
	sq := make([]float64, len(data))
	for i, v := range data {
		if v < voxels.BWThreshold {
			sq[i] = Inf
		}
	}
	buf := newLineBuffers(max(nx, ny, nz))

	// Pass along x, then y, then z, each consuming the previous output.
	transformLines(sq, nx, ny*nz, 1, func(line int) int { return line * nx }, buf)
	transformLines(sq, ny, nx*nz, nx, func(line int) int {
		x, z := line%nx, line/nx
		return x + nx*ny*z
	}, buf)
	transformLines(sq, nz, nx*ny, nx*ny, func(line int) int { return line }, buf)

	for i, v := range sq {
		data[i] = float32(math.Sqrt(v))
	}
}

// transformLines runs DT1D on numLines lines of length n whose voxels are
// stride apart, starting at start(line).
func transformLines(sq []float64, n, numLines, stride int, start func(int) int, buf *lineBuffers) {
	f, d := buf.f[:n], buf.d[:n]
	for line := 0; line < numLines; line++ {
		off := start(line)
		for i := 0; i < n; i++ {
			f[i] = sq[off+i*stride]
		}
		DT1D(f, d, buf.v, buf.z)
		for i := 0; i < n; i++ {
			sq[off+i*stride] = d[i]
		}
	}
}
