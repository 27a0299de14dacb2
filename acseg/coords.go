package acseg

import "fmt"

// Coords is a sparse voxel set held as parallel lists of absolute x, y, and z
// coordinates.  Order is significant and preserved through storage.
type Coords struct {
	X, Y, Z []int32
}

// NewCoords returns empty coordinate lists with room for n voxels.
func NewCoords(n int) Coords {
	return Coords{
		X: make([]int32, 0, n),
		Y: make([]int32, 0, n),
		Z: make([]int32, 0, n),
	}
}

// Append adds one voxel.
func (c *Coords) Append(x, y, z int32) {
	c.X = append(c.X, x)
	c.Y = append(c.Y, y)
	c.Z = append(c.Z, z)
}

// Len returns the number of voxels.  Call Check first on untrusted data.
func (c Coords) Len() int {
	return len(c.X)
}

// Check returns ErrCoordMismatch if the three lists differ in length.
func (c Coords) Check() error {
	if len(c.X) != len(c.Y) || len(c.X) != len(c.Z) {
		return fmt.Errorf("%w: x %d, y %d, z %d", ErrCoordMismatch, len(c.X), len(c.Y), len(c.Z))
	}
	return nil
}

// Point returns voxel i.
func (c Coords) Point(i int) Point3d {
	return Point3d{c.X[i], c.Y[i], c.Z[i]}
}

// Copy returns a deep copy.
func (c Coords) Copy() Coords {
	return Coords{
		X: append([]int32(nil), c.X...),
		Y: append([]int32(nil), c.Y...),
		Z: append([]int32(nil), c.Z...),
	}
}

// RLEs returns the coordinates as runs along X.
func (c Coords) RLEs() (RLEs, error) {
	return RLEsFromCoords(c.X, c.Y, c.Z)
}
