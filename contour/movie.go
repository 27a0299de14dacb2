package contour

import (
	"fmt"

	"github.com/janelia-flyem/acseg/voxels"
)

// Movie planes.
const (
	MovieOff = iota
	MovieYZ  // slice at fixed x
	MovieXZ  // slice at fixed y
	MovieXY  // slice at fixed z
)

// MovieSpec selects a plane through the image to record after every round.
type MovieSpec struct {
	Option int   `toml:"option"`
	Slice  int32 `toml:"slice"`
}

// Enabled returns true if the spec requests a recording.
func (m MovieSpec) Enabled() bool {
	return m.Option >= MovieYZ && m.Option <= MovieXY
}

// axis returns the image axis held fixed by the movie plane.
func (m MovieSpec) axis() int {
	return m.Option - 1
}

// Movie stacks one frame per round.  Each frame is a plane of the image with
// every seed's perimeter drawn in its index.
type Movie struct {
	spec   MovieSpec
	frames *voxels.Grid
}

// NewMovie allocates frames for the given plane of an nx by ny by nz image.
func NewMovie(spec MovieSpec, nx, ny, nz, rounds int) (*Movie, error) {
	var w, h, n int
	switch spec.Option {
	case MovieYZ:
		w, h, n = ny, nz, nx
	case MovieXZ:
		w, h, n = nx, nz, ny
	case MovieXY:
		w, h, n = nx, ny, nz
	default:
		return nil, fmt.Errorf("bad movie option %d: must be 1 (yz), 2 (xz), or 3 (xy)", spec.Option)
	}
	if spec.Slice < 0 || int(spec.Slice) >= n {
		return nil, fmt.Errorf("movie slice %d outside of image with %d slices", spec.Slice, n)
	}
	return &Movie{spec: spec, frames: voxels.NewGrid(w, h, rounds)}, nil
}

// Frames returns the movie as a grid whose z axis is the round.
func (m *Movie) Frames() *voxels.Grid {
	return m.frames
}

// Record draws the perimeter of every seed crossing the movie plane into frame t.
func (m *Movie) Record(t int, seeds []*Seed) error {
	_, _, numFrames := m.frames.Dims()
	if t < 0 || t >= numFrames {
		return fmt.Errorf("movie frame %d outside of %d frames", t, numFrames)
	}
	axis := m.spec.axis()
	for _, seed := range seeds {
		if !seed.ContainsSlice(axis, m.spec.Slice) {
			continue
		}
		perim, err := seed.SparsePerim()
		if err != nil {
			return err
		}
		for i := 0; i < perim.Len(); i++ {
			p := perim.Point(i)
			if p[axis] != m.spec.Slice {
				continue
			}
			switch m.spec.Option {
			case MovieYZ:
				m.frames.Set(int(p[1]), int(p[2]), t, seed.Index())
			case MovieXZ:
				m.frames.Set(int(p[0]), int(p[2]), t, seed.Index())
			case MovieXY:
				m.frames.Set(int(p[0]), int(p[1]), t, seed.Index())
			}
		}
	}
	return nil
}
