package voxels

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/janelia-flyem/acseg/acseg"
)

// Sheet-enhancement widths relative to the dominant eigenvalue.
const (
	sheetA1 = 0.75
	sheetA2 = 0.75
)

// Hessian returns the symmetric 3x3 matrix of second partials at (x,y,z).
func (g *Grid) Hessian(x, y, z int) *mat.SymDense {
	d := g.AllDerivatives(x, y, z)
	return mat.NewSymDense(3, []float64{
		float64(d.Dxx), float64(d.Dxy), float64(d.Dxz),
		float64(d.Dxy), float64(d.Dyy), float64(d.Dyz),
		float64(d.Dxz), float64(d.Dyz), float64(d.Dzz),
	})
}

// PrincipalCurvature returns a sheet-enhancement score built from the Hessian
// eigenvalues d1 <= d2 <= d3:
//
//	-d1 * exp(-d3²/(2(a1 d1)²)) * exp(-d2²/(2(a2 d1)²))
//
// Non-finite scores, e.g., from a flat neighborhood with d1 == 0, are returned as 0.
func (g *Grid) PrincipalCurvature(x, y, z int) float32 {
	var es mat.EigenSym
	if ok := es.Factorize(g.Hessian(x, y, z), false); !ok {
		return 0
	}
	vals := es.Values(nil)
	d1, d2, d3 := vals[0], vals[1], vals[2]
	val := -d1 * math.Exp(-d3*d3/(2*math.Pow(sheetA1*d1, 2))) *
		math.Exp(-d2*d2/(2*math.Pow(sheetA2*d1, 2)))
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0
	}
	return float32(val)
}

// PrincipalCurvatureGrid fills out with the sheet-enhancement score of every
// voxel.  The interrupt function is polled between z slices; on interruption
// out is left partially filled and acseg.ErrInterrupted is returned.
func (g *Grid) PrincipalCurvatureGrid(out *Grid, interrupt acseg.InterruptFunc) error {
	out.Resize(g.nx, g.ny, g.nz)
	out.vpm = g.vpm
	for z := 0; z < g.nz; z++ {
		if interrupt.Interrupted() {
			return acseg.ErrInterrupted
		}
		for y := 0; y < g.ny; y++ {
			for x := 0; x < g.nx; x++ {
				out.Set(x, y, z, g.PrincipalCurvature(x, y, z))
			}
		}
	}
	return nil
}
