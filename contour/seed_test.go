package contour

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

func growthParams() Parameters {
	p := DefaultParameters()
	p.TMax = 10
	p.C = 1
	p.Epsilon = 0
	p.D = 0
	p.R = 3
	p.SussmanInterval = 0
	return p
}

func countInside(phi *voxels.Grid) int {
	var n int
	for _, v := range phi.Data() {
		if v <= 0 {
			n++
		}
	}
	return n
}

func coordSet(c acseg.Coords) map[acseg.Point3d]struct{} {
	set := make(map[acseg.Point3d]struct{}, c.Len())
	for i := 0; i < c.Len(); i++ {
		set[c.Point(i)] = struct{}{}
	}
	return set
}

func TestSeedRejectsBackgroundIndex(t *testing.T) {
	g := voxels.NewGrid(10, 10, 10)
	arbiter := NewArbiter(10, 10, 10)
	_, err := NewSeed(SeedSpec{Index: 0, Center: [3]float32{5, 5, 5}}, growthParams(), g, arbiter)
	if !errors.Is(err, acseg.ErrBadSeed) {
		t.Errorf("Expected ErrBadSeed for index 0, got %v\n", err)
	}
	_, err = NewSeed(SeedSpec{Index: -1, Center: [3]float32{5, 5, 5}}, growthParams(), g, arbiter)
	if !errors.Is(err, acseg.ErrBadSeed) {
		t.Errorf("Expected ErrBadSeed for negative index, got %v\n", err)
	}
	_, err = NewSeed(SeedSpec{Index: 1}, growthParams(), voxels.NewGrid(10, 10, 9), arbiter)
	if !errors.Is(err, acseg.ErrSizeMismatch) {
		t.Errorf("Expected ErrSizeMismatch for guidance/arbiter mismatch, got %v\n", err)
	}
}

func TestSeedGrowsMonotonically(t *testing.T) {
	g := voxels.NewGrid(20, 20, 20)
	arbiter := NewArbiter(20, 20, 20)
	seed, err := NewSeed(SeedSpec{Index: 1, Center: [3]float32{10, 10, 10}}, growthParams(), g, arbiter)
	if err != nil {
		t.Fatal(err)
	}
	initial := countInside(seed.Phi())
	if initial == 0 {
		t.Fatalf("Expected initial sphere of radius 3 to contain voxels\n")
	}
	if n := arbiter.Count(1); n != initial {
		t.Errorf("Expected arbiter to register %d initial voxels, got %d\n", initial, n)
	}

	prev := initial
	for step := 1; step <= 10; step++ {
		seed.Step()
		seed.Update()
		cur := countInside(seed.Phi())
		if cur < prev {
			t.Fatalf("Contour shrank at step %d: %d -> %d voxels\n", step, prev, cur)
		}
		prev = cur
	}
	if prev <= initial {
		t.Errorf("Expected contour to grow beyond %d voxels, got %d\n", initial, prev)
	}
	if seed.Finished() {
		t.Errorf("Seed should not be finished after exactly tMax steps\n")
	}

	full := seed.SparseFull()
	if full.Len() != prev {
		t.Errorf("Expected %d voxels in full segmentation, got %d\n", prev, full.Len())
	}
	if n := arbiter.Count(1); n != prev {
		t.Errorf("Expected arbiter to hold %d voxels for seed, got %d\n", prev, n)
	}

	// Past tMax, step and update leave phi alone.
	before := seed.Phi().Copy()
	seed.Step()
	seed.Update()
	if !seed.Finished() {
		t.Errorf("Seed should be finished after tMax+1 steps\n")
	}
	if diff := cmp.Diff(before.Data(), seed.Phi().Data()); diff != "" {
		t.Errorf("Finished seed changed phi (-want +got):\n%s", diff)
	}
}

func TestSeedBoundaryWindow(t *testing.T) {
	g := voxels.NewGrid(12, 12, 12)
	arbiter := NewArbiter(12, 12, 12)
	params := growthParams()
	params.HalfWindow = 5
	params.TMax = 6
	params.SussmanInterval = 2
	seed, err := NewSeed(SeedSpec{Index: 3, Center: [3]float32{1, 1, 10}}, params, g, arbiter)
	if err != nil {
		t.Fatal(err)
	}
	origin, size := seed.Window()
	if origin != (acseg.Point3d{0, 0, 5}) || size != (acseg.Point3d{7, 7, 7}) {
		t.Errorf("Bad cropped window: origin %s, size %s\n", origin, size)
	}
	if !seed.ContainsSlice(2, 11) || seed.ContainsSlice(2, 4) || seed.ContainsSlice(0, 7) {
		t.Errorf("Bad slice containment for window at %s size %s\n", origin, size)
	}
	for i := 0; i < params.TMax; i++ {
		seed.Step()
		seed.Update()
	}
	dims := arbiter.Size()
	full := seed.SparseFull()
	if full.Len() == 0 {
		t.Fatalf("Expected seed near boundary to segment some voxels\n")
	}
	for i := 0; i < full.Len(); i++ {
		if p := full.Point(i); !p.Inside(dims) {
			t.Fatalf("Coordinate %s outside of image %s\n", p, dims)
		}
	}
	if len(coordSet(full)) != full.Len() {
		t.Errorf("Duplicate coordinates in full segmentation\n")
	}
}

func TestSeedPriorSegmentation(t *testing.T) {
	g := voxels.NewGrid(16, 16, 16)
	arbiter := NewArbiter(16, 16, 16)
	prior := acseg.NewCoords(27)
	for z := int32(7); z <= 9; z++ {
		for y := int32(7); y <= 9; y++ {
			for x := int32(7); x <= 9; x++ {
				prior.Append(x, y, z)
			}
		}
	}
	params := growthParams()
	params.HalfWindow = 6
	seed, err := NewSeed(SeedSpec{Index: 2, Center: [3]float32{8, 8, 8}, Prior: prior}, params, g, arbiter)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(prior, seed.SparseFull()); diff != "" {
		t.Errorf("Initial mask differs from prior segmentation (-want +got):\n%s", diff)
	}
	phi := seed.Phi()
	x, y, z := seed.absToRel(acseg.Point3d{8, 8, 8})
	if v := phi.At(x, y, z); v != -1 {
		t.Errorf("Expected phi -1 at prior center, got %f\n", v)
	}
	x, y, z = seed.absToRel(acseg.Point3d{11, 8, 8})
	if v := phi.At(x, y, z); v != 2 {
		t.Errorf("Expected phi 2 two voxels outside prior, got %f\n", v)
	}
}

func TestSparsePerimIdempotent(t *testing.T) {
	g := voxels.NewGrid(20, 20, 20)
	arbiter := NewArbiter(20, 20, 20)
	params := growthParams()
	params.R = 4
	seed, err := NewSeed(SeedSpec{Index: 5, Center: [3]float32{9, 10, 11}}, params, g, arbiter)
	if err != nil {
		t.Fatal(err)
	}
	seed.Step()
	seed.Update()
	p1, err := seed.SparsePerim()
	if err != nil {
		t.Fatal(err)
	}
	p2, err := seed.SparsePerim()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p1, p2); diff != "" {
		t.Errorf("Perimeter changed between calls (-want +got):\n%s", diff)
	}
	full := coordSet(seed.SparseFull())
	if p1.Len() == 0 || p1.Len() >= len(full) {
		t.Errorf("Expected perimeter to be a proper nonempty subset: %d of %d\n", p1.Len(), len(full))
	}
	for pt := range coordSet(p1) {
		if _, found := full[pt]; !found {
			t.Errorf("Perimeter voxel %s not in full segmentation\n", pt)
		}
	}
}

func TestAnisotropicSeed(t *testing.T) {
	for _, res := range [][3]float32{{1, 1, 2}, {2, 2, 1}} {
		g := voxels.NewGrid(20, 20, 20)
		arbiter := NewArbiter(20, 20, 20)
		params := growthParams()
		params.HalfWindow = 8
		params.Resolution = res
		seed, err := NewSeed(SeedSpec{Index: 1, Center: [3]float32{10, 10, 10}}, params, g, arbiter)
		if err != nil {
			t.Fatal(err)
		}
		_, size := seed.Window()
		expected := acseg.Point3d{
			int32(2*int(8/res[0]) + 1), int32(2*int(8/res[1]) + 1), int32(2*int(8/res[2]) + 1),
		}
		if size != expected {
			t.Errorf("Resolution %v: expected window %s, got %s\n", res, expected, size)
		}
		initial := seed.Volume()
		for i := 0; i < params.TMax; i++ {
			seed.Step()
			seed.Update()
		}
		if v := seed.Volume(); v <= initial {
			t.Errorf("Resolution %v: expected growth from %d voxels, got %d\n", res, initial, v)
		}
	}
}

func TestParametersOverrides(t *testing.T) {
	p := DefaultParameters()
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	p2 := p.WithOverrides(map[string]float32{"tMax": 12, "c": -1, "narrow_band": 2})
	if p2.TMax != 12 || p2.C != -1 || p2.NarrowBand != p.NarrowBand {
		t.Errorf("Bad overrides: %+v\n", p2)
	}
	p2.Dt = 0
	if err := p2.Validate(); err == nil {
		t.Errorf("Expected zero time step to be invalid\n")
	}
}

func TestUpdateOnlyPromotesCollisions(t *testing.T) {
	g := voxels.NewGrid(24, 20, 20)
	arbiter := NewArbiter(24, 20, 20)
	params := growthParams()
	params.R = 3
	params.SussmanInterval = 1
	var seeds []*Seed
	for i, x := range []float32{9, 15} {
		seed, err := NewSeed(SeedSpec{Index: float32(i + 1), Center: [3]float32{x, 10, 10}}, params, g, arbiter)
		if err != nil {
			t.Fatal(err)
		}
		seeds = append(seeds, seed)
	}
	for step := 1; step <= 8; step++ {
		for _, seed := range seeds {
			seed.Step()
		}
		before := arbiter.Grid().Data()
		for _, seed := range seeds {
			seed.Update()
		}
		after := arbiter.Grid().Data()
		for i := range before {
			if before[i] == after[i] || (before[i] == Tentative && after[i] == Collided) {
				continue
			}
			t.Fatalf("Step %d: update changed arbiter voxel %d from %g to %g\n", step, i, before[i], after[i])
		}
	}
	if arbiter.Count(Collided) == 0 {
		t.Errorf("Expected growing neighbors to collide\n")
	}
}
