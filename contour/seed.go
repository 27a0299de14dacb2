package contour

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/distance"
	"github.com/janelia-flyem/acseg/voxels"
)

// curvatureEps keeps the mean curvature finite where the gradient vanishes.
const curvatureEps = 1e-4

// SeedSpec describes a seed to evolve.
type SeedSpec struct {
	// Index labels the seed in the arbiter and output.  Must be positive.
	Index float32

	// Center is the seed position in absolute voxel coordinates.
	Center [3]float32

	// Prior is an optional previous segmentation used as the initial mask.
	Prior acseg.Coords

	// Overrides are optional per-seed parameter values keyed by OverrideNames.
	Overrides map[string]float32
}

type bandVoxel struct {
	x, y, z int
	local   int // offset into phi
	abs     int // offset into arbiter
	next    float32 // candidate phi value
}

// Seed is one evolving level set.  Its phi field covers a fixed window around
// the seed center, cropped to the image, and is negative inside the region.
//
// A seed is stepped in two phases so that many seeds can run concurrently:
// Step computes candidate updates over the narrow band and registers claims
// with the shared Arbiter, then Update commits them once every seed has
// finished Step.
type Seed struct {
	idx     float32
	params  Parameters
	center  acseg.Point3d
	origin  acseg.Point3d // absolute position of window voxel (0,0,0)
	arbiter *Arbiter

	phi, g, gx, gy, gz *voxels.Grid

	band    []bandVoxel
	elapsed int
	fast    bool
}

// NewSeed allocates the seed window, initializes phi from a sphere or the prior
// mask, registers the initial mask with the arbiter, and copies the guidance
// field and its gradient into the window.
func NewSeed(spec SeedSpec, defaults Parameters, guidance *voxels.Grid, arbiter *Arbiter) (*Seed, error) {
	params := defaults.WithOverrides(spec.Overrides)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !(spec.Index > 0) {
		return nil, fmt.Errorf("%w: index %g; 0 is reserved for background and negative values for collisions",
			acseg.ErrBadSeed, spec.Index)
	}
	if guidance.Size() != arbiter.Size() {
		return nil, fmt.Errorf("%w: guidance field %s, arbiter %s", acseg.ErrSizeMismatch, guidance.Size(), arbiter.Size())
	}
	if err := spec.Prior.Check(); err != nil {
		return nil, fmt.Errorf("seed %g prior segmentation: %w", spec.Index, err)
	}
	absDims := arbiter.Size()
	if absDims.Prod() == 0 {
		return nil, fmt.Errorf("%w: cannot evolve seed %g in empty image", acseg.ErrBadSeed, spec.Index)
	}

	s := &Seed{
		idx:     spec.Index,
		params:  params,
		arbiter: arbiter,
	}
	hsz := params.halfWindowVoxels()
	var size acseg.Point3d
	for i := 0; i < 3; i++ {
		c := acseg.ClampInt32(int32(spec.Center[i]), 0, absDims[i]-1)
		lo := max(c-int32(hsz[i]), 0)
		hi := min(c+int32(hsz[i]), absDims[i]-1)
		s.center[i] = c
		s.origin[i] = lo
		size[i] = hi - lo + 1
	}
	res := params.Resolution
	s.fast = res[0] == 1 && res[1] == 1

	s.phi = voxels.NewGrid(int(size[0]), int(size[1]), int(size[2]))
	if err := s.phi.SetResolution(res[0], res[1], res[2]); err != nil {
		return nil, err
	}
	if err := s.initPhi(spec.Prior); err != nil {
		return nil, err
	}
	s.registerMask()
	if err := s.initGuidance(guidance); err != nil {
		return nil, err
	}
	s.band = make([]bandVoxel, 0, s.phi.Numel())
	return s, nil
}

func (s *Seed) initPhi(prior acseg.Coords) error {
	nx, ny, nz := s.phi.Dims()
	if prior.Len() == 0 {
		local := s.center.Sub(s.origin)
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					dx := float64(x - int(local[0]))
					dy := float64(y - int(local[1]))
					dz := float64(z - int(local[2]))
					s.phi.Set(x, y, z, float32(math.Sqrt(dx*dx+dy*dy+dz*dz))-s.params.R)
				}
			}
		}
		return nil
	}

	for i := 0; i < prior.Len(); i++ {
		x, y, z := s.absToRel(prior.Point(i))
		s.phi.Set(x, y, z, 1)
	}
	inside := s.phi.Copy()
	if err := distance.Perim(s.phi, 1); err != nil {
		return err
	}
	distance.Bwdist(s.phi)
	data, mask := s.phi.Data(), inside.Data()
	for i, v := range mask {
		if v > voxels.BWThreshold {
			data[i] = -data[i]
		}
	}
	return nil
}

func (s *Seed) registerMask() {
	nx, ny, nz := s.phi.Dims()
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				if s.phi.At(x, y, z) <= 0 {
					s.arbiter.register(s.arbiterIndex(x, y, z), s.idx)
				}
			}
		}
	}
}

func (s *Seed) initGuidance(guidance *voxels.Grid) error {
	nx, ny, nz := s.phi.Dims()
	x0, y0, z0 := int(s.origin[0]), int(s.origin[1]), int(s.origin[2])
	s.g = new(voxels.Grid)
	if err := guidance.Subview(x0, x0+nx-1, y0, y0+ny-1, z0, z0+nz-1, s.g); err != nil {
		return err
	}
	res := s.params.Resolution
	if err := s.g.SetResolution(res[0], res[1], res[2]); err != nil {
		return err
	}
	s.gx = voxels.NewGrid(nx, ny, nz)
	s.gy = voxels.NewGrid(nx, ny, nz)
	s.gz = voxels.NewGrid(nx, ny, nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				s.gx.Set(x, y, z, s.g.Ddx(x, y, z))
				s.gy.Set(x, y, z, s.g.Ddy(x, y, z))
				s.gz.Set(x, y, z, s.g.Ddz(x, y, z))
			}
		}
	}
	return nil
}

// relToAbs converts window coordinates to absolute image coordinates.
func (s *Seed) relToAbs(x, y, z int) acseg.Point3d {
	return acseg.Point3d{int32(x) + s.origin[0], int32(y) + s.origin[1], int32(z) + s.origin[2]}
}

// absToRel converts absolute coordinates to window coordinates, clamped to the window.
func (s *Seed) absToRel(p acseg.Point3d) (x, y, z int) {
	rel := p.Sub(s.origin).Clamp(s.phi.Size())
	return int(rel[0]), int(rel[1]), int(rel[2])
}

func (s *Seed) arbiterIndex(x, y, z int) int {
	return s.arbiter.index(x+int(s.origin[0]), y+int(s.origin[1]), z+int(s.origin[2]))
}

// Index returns the seed label.
func (s *Seed) Index() float32 {
	return s.idx
}

// Center returns the absolute seed position after clamping to the image.
func (s *Seed) Center() acseg.Point3d {
	return s.center
}

// Params returns the parameters in effect for this seed.
func (s *Seed) Params() Parameters {
	return s.params
}

// TMax returns the number of steps this seed evolves.
func (s *Seed) TMax() int {
	return s.params.TMax
}

// Elapsed returns the number of Step calls so far.
func (s *Seed) Elapsed() int {
	return s.elapsed
}

// Window returns the absolute position of the first window voxel and the window size.
func (s *Seed) Window() (origin, size acseg.Point3d) {
	return s.origin, s.phi.Size()
}

// Phi returns the seed's level-set field.  The caller must not modify it while
// the seed is being stepped.
func (s *Seed) Phi() *voxels.Grid {
	return s.phi
}

// BandSize returns the number of narrow-band voxels computed by the last Step.
func (s *Seed) BandSize() int {
	return len(s.band)
}

// Finished returns true once the seed has been stepped past its time budget.
func (s *Seed) Finished() bool {
	return s.elapsed > s.params.TMax
}

// ContainsSlice returns true if the window includes the absolute slice at
// position pos along the given axis (0 = x, 1 = y, 2 = z).
func (s *Seed) ContainsSlice(axis int, pos int32) bool {
	if axis < 0 || axis > 2 {
		return false
	}
	size := s.phi.Size()
	return s.origin[axis] <= pos && pos < s.origin[axis]+size[axis]
}

// Step advances the elapsed time and, unless finished, computes this step's
// candidate updates and arbiter claims.  Candidates are committed by Update.
func (s *Seed) Step() {
	s.elapsed++
	if s.Finished() {
		return
	}
	s.preUpdate()
}

func (s *Seed) derivatives(x, y, z int) voxels.Derivatives {
	if s.fast {
		if d, err := s.phi.FastDerivatives(x, y, z); err == nil {
			return d
		}
	}
	return s.phi.AllDerivatives(x, y, z)
}

// meanCurvature returns the level-set curvature normalized by the cubed gradient magnitude.
func meanCurvature(d voxels.Derivatives) float32 {
	num := d.Dzz*d.Dy*d.Dy - 2*d.Dz*d.Dy*d.Dyz + d.Dyy*d.Dz*d.Dz +
		d.Dzz*d.Dx*d.Dx + d.Dyy*d.Dx*d.Dx - 2*d.Dz*d.Dx*d.Dxz -
		2*d.Dy*d.Dx*d.Dxy + d.Dxx*d.Dz*d.Dz + d.Dxx*d.Dy*d.Dy
	grad2 := float64(d.Dx*d.Dx + d.Dy*d.Dy + d.Dz*d.Dz)
	return num / (float32(math.Pow(grad2, 1.5)) + curvatureEps)
}

func sgn(v float32) float32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func (s *Seed) preUpdate() {
	s.band = s.band[:0]
	nb := s.params.NarrowBand
	c, d, eps := s.params.C, s.params.D, s.params.Epsilon
	dt := s.params.Dt
	sc := sgn(c)

	nx, ny, nz := s.phi.Dims()
	phi := s.phi.Data()
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				local := s.phi.Index(x, y, z)
				if v := phi[local]; v > nb || v < -nb {
					continue
				}
				abs := s.arbiterIndex(x, y, z)
				if s.arbiter.load(abs) == Collided {
					continue
				}
				dv := s.derivatives(x, y, z)
				h := meanCurvature(dv) * sc
				grad := float32(math.Sqrt(float64(dv.Dx*dv.Dx + dv.Dy*dv.Dy + dv.Dz*dv.Dz)))
				speed := 1 - s.g.At(x, y, z)
				dphidt := -speed*c*(1-eps*h)*grad -
					d*(s.gx.At(x, y, z)*dv.Dx+s.gy.At(x, y, z)*dv.Dy+s.gz.At(x, y, z)*dv.Dz)
				next := float32(phi[local] + dt*dphidt)
				s.band = append(s.band, bandVoxel{x: x, y: y, z: z, local: local, abs: abs, next: next})
			}
		}
	}

	for _, b := range s.band {
		if b.next <= 0 {
			s.arbiter.claim(b.abs, s.idx)
		}
	}
}

// Update commits the candidates computed by the last Step.  Voxels whose arbiter
// label is a confirmed collision only accept candidates that stay outside the
// region.  Every SussmanInterval steps the whole window is reinitialized.
// The only arbiter change made here is promoting tentative collisions.
func (s *Seed) Update() {
	if s.Finished() {
		return
	}
	phi := s.phi.Data()
	for _, b := range s.band {
		label := s.arbiter.commit(b.abs)
		if label != Collided || b.next > 0 {
			phi[b.local] = b.next
		}
	}
	if n := s.params.SussmanInterval; n > 0 && s.elapsed%n == 0 {
		s.reinitialize()
	}
}

// reinitialize applies one Sussman iteration in place over the whole window.
func (s *Seed) reinitialize() {
	nx, ny, nz := s.phi.Dims()
	dt := s.params.Dt
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				s.phi.Set(x, y, z, s.phi.At(x, y, z)-dt*s.phi.Sussman(x, y, z))
			}
		}
	}
}

// mask returns 1 for window voxels inside the region that the arbiter has not
// given to another seed or marked as collided.
func (s *Seed) mask() *voxels.Grid {
	nx, ny, nz := s.phi.Dims()
	bw := voxels.NewGrid(nx, ny, nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				if s.phi.At(x, y, z) > 0 {
					continue
				}
				label := s.arbiter.load(s.arbiterIndex(x, y, z))
				if label == Unclaimed || label == s.idx {
					bw.Set(x, y, z, 1)
				}
			}
		}
	}
	return bw
}

func (s *Seed) sparse(bw *voxels.Grid) acseg.Coords {
	coords := acseg.NewCoords(bw.Nnz())
	nx, ny, nz := bw.Dims()
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				if bw.At(x, y, z) > voxels.BWThreshold {
					p := s.relToAbs(x, y, z)
					coords.Append(p[0], p[1], p[2])
				}
			}
		}
	}
	return coords
}

// SparseFull returns the absolute coordinates of every voxel in the region.
func (s *Seed) SparseFull() acseg.Coords {
	return s.sparse(s.mask())
}

// SparsePerim returns the absolute coordinates of the region's boundary voxels.
func (s *Seed) SparsePerim() (acseg.Coords, error) {
	bw := s.mask()
	if err := distance.Perim(bw, 1); err != nil {
		return acseg.Coords{}, err
	}
	return s.sparse(bw), nil
}

// Volume returns the number of voxels in the region.
func (s *Seed) Volume() int {
	return s.mask().Nnz()
}
