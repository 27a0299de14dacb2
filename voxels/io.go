package voxels

import (
	"fmt"

	"github.com/janelia-flyem/acseg/acseg"
)

// SliceReader provides a dense volume one z slice at a time.
type SliceReader interface {
	// Dimensions returns the volume size.
	Dimensions() (nx, ny, nz int, err error)

	// ReadSlice fills dst, which has nx*ny values with x varying fastest, with slice z.
	ReadSlice(z int, dst []float32) error
}

// SliceWriter accepts a dense volume one z slice at a time.
type SliceWriter interface {
	// WriteSlice stores slice z of an nx by ny plane with x varying fastest.
	WriteSlice(z, nx, ny int, src []float32) error
}

// ReadGrid reads a whole volume into a new grid, polling interrupt between slices.
func ReadGrid(r SliceReader, interrupt acseg.InterruptFunc) (*Grid, error) {
	nx, ny, nz, err := r.Dimensions()
	if err != nil {
		return nil, err
	}
	g := NewGrid(nx, ny, nz)
	for z := 0; z < nz; z++ {
		if interrupt.Interrupted() {
			return g, acseg.ErrInterrupted
		}
		if err := r.ReadSlice(z, g.Slice(z)); err != nil {
			return nil, fmt.Errorf("reading slice %d: %w", z, err)
		}
	}
	return g, nil
}

// WriteGrid writes every slice of g, polling interrupt between slices.
func WriteGrid(w SliceWriter, g *Grid, interrupt acseg.InterruptFunc) error {
	for z := 0; z < g.nz; z++ {
		if interrupt.Interrupted() {
			return acseg.ErrInterrupted
		}
		if err := w.WriteSlice(z, g.nx, g.ny, g.Slice(z)); err != nil {
			return fmt.Errorf("writing slice %d: %w", z, err)
		}
	}
	return nil
}
