package voxels

import (
	"fmt"

	"github.com/janelia-flyem/acseg/acseg"
)

func (g *Grid) checkSize(g2 *Grid) error {
	if !g.SameSize(g2) {
		return fmt.Errorf("%w: %d x %d x %d vs %d x %d x %d", acseg.ErrSizeMismatch,
			g.nx, g.ny, g.nz, g2.nx, g2.ny, g2.nz)
	}
	return nil
}

// AddScalar adds v to every voxel.
func (g *Grid) AddScalar(v float32) {
	for i := range g.data {
		g.data[i] += v
	}
}

// SubScalar subtracts v from every voxel.
func (g *Grid) SubScalar(v float32) {
	for i := range g.data {
		g.data[i] -= v
	}
}

// MulScalar multiplies every voxel by v.
func (g *Grid) MulScalar(v float32) {
	for i := range g.data {
		g.data[i] *= v
	}
}

// DivScalar divides every voxel by v.
func (g *Grid) DivScalar(v float32) {
	for i := range g.data {
		g.data[i] /= v
	}
}

// Add adds g2 element-wise into the receiver.
func (g *Grid) Add(g2 *Grid) error {
	if err := g.checkSize(g2); err != nil {
		return err
	}
	for i, v := range g2.data {
		g.data[i] += v
	}
	return nil
}

// Sub subtracts g2 element-wise from the receiver.
func (g *Grid) Sub(g2 *Grid) error {
	if err := g.checkSize(g2); err != nil {
		return err
	}
	for i, v := range g2.data {
		g.data[i] -= v
	}
	return nil
}

// Mul multiplies the receiver element-wise by g2.
func (g *Grid) Mul(g2 *Grid) error {
	if err := g.checkSize(g2); err != nil {
		return err
	}
	for i, v := range g2.data {
		g.data[i] *= v
	}
	return nil
}

// Div divides the receiver element-wise by g2.
func (g *Grid) Div(g2 *Grid) error {
	if err := g.checkSize(g2); err != nil {
		return err
	}
	for i, v := range g2.data {
		g.data[i] /= v
	}
	return nil
}

// Negate flips the sign of every voxel.
func (g *Grid) Negate() {
	for i := range g.data {
		g.data[i] = -g.data[i]
	}
}

// Threshold sets voxels above t to 1 and all others to 0.
func (g *Grid) Threshold(t float32) {
	for i, v := range g.data {
		if v > t {
			g.data[i] = 1
		} else {
			g.data[i] = 0
		}
	}
}
