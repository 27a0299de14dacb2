package volio

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

func testGrid() *voxels.Grid {
	g := voxels.NewGrid(7, 5, 4)
	for z := 0; z < 4; z++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 7; x++ {
				g.Set(x, y, z, float32(x+10*y+100*z)/4)
			}
		}
	}
	return g
}

func TestStackRoundTrip(t *testing.T) {
	for _, format := range []Format{TIFF, PNG} {
		dir := t.TempDir()
		g := testGrid()
		out := &Stack{Dir: dir, Prefix: "guide_", Format: format, Scale: 4}
		if err := WriteStack(out, g, nil); err != nil {
			t.Fatalf("%s: couldn't write stack: %v\n", format, err)
		}
		in := &Stack{Dir: dir, Prefix: "guide_", Format: format, Scale: 4}
		got, err := ReadStack(in, [3]float32{0.5, 0.5, 2}, nil)
		if err != nil {
			t.Fatalf("%s: couldn't read stack: %v\n", format, err)
		}
		if !got.SameSize(g) {
			t.Fatalf("%s: expected %s, got %s\n", format, g, got)
		}
		for i, v := range g.Data() {
			if got.Data()[i] != v {
				t.Fatalf("%s: voxel %d expected %g, got %g\n", format, i, v, got.Data()[i])
			}
		}
		if res := got.Resolution(); res != [3]float32{0.5, 0.5, 2} {
			t.Errorf("%s: bad resolution %v\n", format, res)
		}
	}
}

func TestStackClamps(t *testing.T) {
	dir := t.TempDir()
	g := voxels.NewGrid(3, 1, 1)
	g.Set(0, 0, 0, -5)
	g.Set(1, 0, 0, 1e9)
	g.Set(2, 0, 0, 2.6)
	if err := WriteStack(&Stack{Dir: dir, Format: PNG}, g, nil); err != nil {
		t.Fatalf("couldn't write stack: %v\n", err)
	}
	got, err := voxels.ReadGrid(&Stack{Dir: dir, Format: PNG}, nil)
	if err != nil {
		t.Fatalf("couldn't read stack: %v\n", err)
	}
	expected := []float32{0, 65535, 3}
	for i, v := range expected {
		if got.Data()[i] != v {
			t.Errorf("pixel %d expected %g, got %g\n", i, v, got.Data()[i])
		}
	}
}

func TestStack8Bit(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(1, 1, color.Gray{Y: 200})
	f, err := os.Create(filepath.Join(dir, "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s := &Stack{Dir: dir, Format: PNG}
	nx, ny, nz, err := s.Dimensions()
	if err != nil || nx != 2 || ny != 2 || nz != 1 {
		t.Fatalf("bad dimensions %d x %d x %d, err %v\n", nx, ny, nz, err)
	}
	dst := make([]float32, 4)
	if err := s.ReadSlice(0, dst); err != nil {
		t.Fatalf("couldn't read slice: %v\n", err)
	}
	if dst[3] != 200 || dst[0] != 0 {
		t.Errorf("expected 8-bit values kept in range, got %v\n", dst)
	}
	if err := s.ReadSlice(0, make([]float32, 3)); !errors.Is(err, acseg.ErrSizeMismatch) {
		t.Errorf("expected size mismatch, got %v\n", err)
	}
	if err := s.ReadSlice(1, dst); err == nil {
		t.Errorf("expected error reading past the stack\n")
	}
}

func TestStackErrors(t *testing.T) {
	if _, _, _, err := (&Stack{Dir: t.TempDir(), Format: TIFF}).Dimensions(); err == nil {
		t.Errorf("expected error on empty stack\n")
	}
	if err := (&Stack{Dir: t.TempDir(), Format: TIFF}).WriteSlice(0, 2, 2, make([]float32, 3)); !errors.Is(err, acseg.ErrSizeMismatch) {
		t.Errorf("expected size mismatch on write, got %v\n", err)
	}
	for _, s := range []string{"tif", ".TIFF", "png"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("format %q rejected: %v\n", s, err)
		}
	}
	if _, err := ParseFormat("jpeg"); err == nil {
		t.Errorf("expected jpeg to be rejected\n")
	}
}
