package acseg

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRLEsFromCoords(t *testing.T) {
	x := []int32{3, 1, 2, 2, 5, 1}
	y := []int32{0, 0, 0, 0, 0, 1}
	z := []int32{4, 4, 4, 4, 4, 4}
	rles, err := RLEsFromCoords(x, y, z)
	if err != nil {
		t.Fatal(err)
	}
	expected := RLEs{
		NewRLE(Point3d{1, 0, 4}, 3),
		NewRLE(Point3d{5, 0, 4}, 1),
		NewRLE(Point3d{1, 1, 4}, 1),
	}
	if diff := cmp.Diff(expected, rles, cmp.AllowUnexported(RLE{})); diff != "" {
		t.Errorf("Bad RLEs (-want +got):\n%s", diff)
	}
	numVoxels, numRuns := rles.Stats()
	if numVoxels != 5 || numRuns != 3 {
		t.Errorf("Expected 5 voxels in 3 runs, got %d voxels in %d runs\n", numVoxels, numRuns)
	}

	gx, gy, gz := rles.Coords()
	if len(gx) != 5 || gx[0] != 1 || gx[2] != 3 || gy[4] != 1 || gz[3] != 4 {
		t.Errorf("Bad expansion of RLEs: %v %v %v\n", gx, gy, gz)
	}

	b, err := rles.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var rles2 RLEs
	if err := rles2.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rles, rles2, cmp.AllowUnexported(RLE{})); diff != "" {
		t.Errorf("RLEs changed after binary encoding (-want +got):\n%s", diff)
	}

	sv, err := EncodeSparseVol(rles)
	if err != nil {
		t.Fatal(err)
	}
	if len(sv) != 12+16*3 {
		t.Errorf("Expected sparse volume of %d bytes, got %d\n", 12+16*3, len(sv))
	}
}

func TestRLEsMismatch(t *testing.T) {
	_, err := RLEsFromCoords([]int32{1, 2}, []int32{1}, []int32{1, 2})
	if !errors.Is(err, ErrCoordMismatch) {
		t.Errorf("Expected ErrCoordMismatch, got %v\n", err)
	}
}

func TestPointClamp(t *testing.T) {
	dims := Point3d{10, 5, 3}
	if p := (Point3d{-2, 7, 1}).Clamp(dims); p != (Point3d{0, 4, 1}) {
		t.Errorf("Bad clamp: %s\n", p)
	}
	if (Point3d{9, 4, 3}).Inside(dims) {
		t.Errorf("Point on z boundary should be outside\n")
	}
}
