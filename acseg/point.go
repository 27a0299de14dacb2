package acseg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Point3d is an ordered list of three 32-bit signed integers that implements
// a voxel coordinate in absolute image space or a window-local space.
type Point3d [3]int32

// Value returns the point's value for the specified dimension without checking dim bounds.
func (p Point3d) Value(dim uint8) int32 {
	return p[dim]
}

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// Clamp returns the point with each component clamped to [0, dims-1].
func (p Point3d) Clamp(dims Point3d) Point3d {
	var c Point3d
	for i := 0; i < 3; i++ {
		c[i] = ClampInt32(p[i], 0, dims[i]-1)
	}
	return c
}

// Inside returns true if the point falls within [0, dims-1] on every axis.
func (p Point3d) Inside(dims Point3d) bool {
	for i := 0; i < 3; i++ {
		if p[i] < 0 || p[i] >= dims[i] {
			return false
		}
	}
	return true
}

// Distance returns the Euclidean distance between two points.
func (p Point3d) Distance(p2 Point3d) float64 {
	dx := float64(p[0] - p2[0])
	dy := float64(p[1] - p2[1])
	dz := float64(p[2] - p2[2])
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Prod returns the number of voxels in a volume with these dimensions.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

// Bytes returns a little-endian encoding of the point.
func (p Point3d) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, p[0])
	binary.Write(buf, binary.LittleEndian, p[1])
	binary.Write(buf, binary.LittleEndian, p[2])
	return buf.Bytes()
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// ClampInt32 returns v limited to [lo, hi].
func ClampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt returns v limited to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
