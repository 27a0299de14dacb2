package voxels

import (
	"errors"
	"math"
)

// ErrResolution is returned by FastDerivatives when x or y resolution is not 1.
var ErrResolution = errors.New("fast derivatives require x,y resolution of 1 voxel per micron")

// Interpolate returns the trilinearly interpolated value between voxel (x,y,z)
// and its neighbor at (x+dx, y+dy, z+dz), where each offset is -1, 0, or 1.
// The fractional position along each axis is the voxels-per-micron factor, so
// the result samples one micron away.  Neighbor indices are clamped.
func (g *Grid) Interpolate(x, y, z, dx, dy, dz int) float32 {
	xd := g.vpm[0] * float32(absInt(dx))
	yd := g.vpm[1] * float32(absInt(dy))
	zd := g.vpm[2] * float32(absInt(dz))

	xp1 := clampIdx(x+dx, g.nx)
	yp1 := clampIdx(y+dy, g.ny)
	zp1 := clampIdx(z+dz, g.nz)

	i1 := g.At(x, y, z)*(1-zd) + g.At(x, y, zp1)*zd
	i2 := g.At(x, yp1, z)*(1-zd) + g.At(x, yp1, zp1)*zd
	j1 := g.At(xp1, y, z)*(1-zd) + g.At(xp1, y, zp1)*zd
	j2 := g.At(xp1, yp1, z)*(1-zd) + g.At(xp1, yp1, zp1)*zd
	w1 := i1*(1-yd) + i2*yd
	w2 := j1*(1-yd) + j2*yd
	return w1*(1-xd) + w2*xd
}

// neighbor returns the value one micron away along the given offsets, using a
// direct lookup when the involved axes have unit resolution.
func (g *Grid) neighbor(x, y, z, dx, dy, dz int) float32 {
	direct := (dx == 0 || isCloseTo(g.vpm[0], 1)) &&
		(dy == 0 || isCloseTo(g.vpm[1], 1)) &&
		(dz == 0 || isCloseTo(g.vpm[2], 1))
	if direct {
		return g.atClamped(x+dx, y+dy, z+dz)
	}
	return g.Interpolate(x, y, z, dx, dy, dz)
}

// Ddx returns the central first difference along x at a voxel.
func (g *Grid) Ddx(x, y, z int) float32 {
	return 0.5 * (g.neighbor(x, y, z, 1, 0, 0) - g.neighbor(x, y, z, -1, 0, 0))
}

// Ddy returns the central first difference along y at a voxel.
func (g *Grid) Ddy(x, y, z int) float32 {
	return 0.5 * (g.neighbor(x, y, z, 0, 1, 0) - g.neighbor(x, y, z, 0, -1, 0))
}

// Ddz returns the central first difference along z at a voxel.
func (g *Grid) Ddz(x, y, z int) float32 {
	return 0.5 * (g.neighbor(x, y, z, 0, 0, 1) - g.neighbor(x, y, z, 0, 0, -1))
}

// D2dx2 returns the second difference along x.
func (g *Grid) D2dx2(x, y, z int) float32 {
	return g.neighbor(x, y, z, 1, 0, 0) - 2*g.At(x, y, z) + g.neighbor(x, y, z, -1, 0, 0)
}

// D2dy2 returns the second difference along y.
func (g *Grid) D2dy2(x, y, z int) float32 {
	return g.neighbor(x, y, z, 0, 1, 0) - 2*g.At(x, y, z) + g.neighbor(x, y, z, 0, -1, 0)
}

// D2dz2 returns the second difference along z.
func (g *Grid) D2dz2(x, y, z int) float32 {
	return g.neighbor(x, y, z, 0, 0, 1) - 2*g.At(x, y, z) + g.neighbor(x, y, z, 0, 0, -1)
}

// D2dxy returns the mixed second difference in the xy plane.
func (g *Grid) D2dxy(x, y, z int) float32 {
	return -0.25*g.neighbor(x, y, z, -1, 1, 0) - 0.25*g.neighbor(x, y, z, 1, -1, 0) +
		0.25*g.neighbor(x, y, z, 1, 1, 0) + 0.25*g.neighbor(x, y, z, -1, -1, 0)
}

// D2dxz returns the mixed second difference in the xz plane.
func (g *Grid) D2dxz(x, y, z int) float32 {
	return -0.25*g.neighbor(x, y, z, -1, 0, 1) - 0.25*g.neighbor(x, y, z, 1, 0, -1) +
		0.25*g.neighbor(x, y, z, 1, 0, 1) + 0.25*g.neighbor(x, y, z, -1, 0, -1)
}

// D2dyz returns the mixed second difference in the yz plane.
func (g *Grid) D2dyz(x, y, z int) float32 {
	return -0.25*g.neighbor(x, y, z, 0, 1, -1) - 0.25*g.neighbor(x, y, z, 0, -1, 1) +
		0.25*g.neighbor(x, y, z, 0, 1, 1) + 0.25*g.neighbor(x, y, z, 0, -1, -1)
}

// Derivatives holds the first and second partials at one voxel.
type Derivatives struct {
	Dx, Dy, Dz    float32
	Dxx, Dyy, Dzz float32
	Dxy, Dxz, Dyz float32
}

// AllDerivatives computes the nine partials through the general path, which
// handles any resolution.
func (g *Grid) AllDerivatives(x, y, z int) Derivatives {
	return Derivatives{
		Dx: g.Ddx(x, y, z), Dy: g.Ddy(x, y, z), Dz: g.Ddz(x, y, z),
		Dxx: g.D2dx2(x, y, z), Dyy: g.D2dy2(x, y, z), Dzz: g.D2dz2(x, y, z),
		Dxy: g.D2dxy(x, y, z), Dxz: g.D2dxz(x, y, z), Dyz: g.D2dyz(x, y, z),
	}
}

// FastDerivatives computes all nine partials from one shared neighbor fetch.
// The x and y resolution must be 1; z neighbors are blended by the z
// voxels-per-micron factor.
func (g *Grid) FastDerivatives(x, y, z int) (Derivatives, error) {
	if !isCloseTo(g.vpm[0], 1) || !isCloseTo(g.vpm[1], 1) {
		return Derivatives{}, ErrResolution
	}
	xp1, xm1 := clampIdx(x+1, g.nx), clampIdx(x-1, g.nx)
	yp1, ym1 := clampIdx(y+1, g.ny), clampIdx(y-1, g.ny)
	zp1, zm1 := clampIdx(z+1, g.nz), clampIdx(z-1, g.nz)
	pz := g.vpm[2]
	blend := func(x, y, zn int) float32 {
		return g.At(x, y, z)*(1-pz) + g.At(x, y, zn)*pz
	}

	c := g.At(x, y, z)
	xp := g.At(xp1, y, z)
	xm := g.At(xm1, y, z)
	yp := g.At(x, yp1, z)
	ym := g.At(x, ym1, z)
	xmyp := g.At(xm1, yp1, z)
	xpym := g.At(xp1, ym1, z)
	xpyp := g.At(xp1, yp1, z)
	xmym := g.At(xm1, ym1, z)
	zp := blend(x, y, zp1)
	zm := blend(x, y, zm1)
	xmzp := blend(xm1, y, zp1)
	xpzm := blend(xp1, y, zm1)
	xmzm := blend(xm1, y, zm1)
	xpzp := blend(xp1, y, zp1)
	ypzm := blend(x, yp1, zm1)
	ymzp := blend(x, ym1, zp1)
	ypzp := blend(x, yp1, zp1)
	ymzm := blend(x, ym1, zm1)

	return Derivatives{
		Dx:  0.5 * (xp - xm),
		Dy:  0.5 * (yp - ym),
		Dz:  0.5 * (zp - zm),
		Dxx: xp - 2*c + xm,
		Dyy: yp - 2*c + ym,
		Dzz: zp - 2*c + zm,
		Dxy: -0.25*xmyp - 0.25*xpym + 0.25*xpyp + 0.25*xmym,
		Dxz: -0.25*xmzp - 0.25*xpzm + 0.25*xpzp + 0.25*xmzm,
		Dyz: -0.25*ypzm - 0.25*ymzp + 0.25*ypzp + 0.25*ymzm,
	}, nil
}

// Sussman returns one term of the Sussman reinitialization scheme at (x,y,z)
// using Godunov upwind one-sided differences.  Subtracting dt times this term
// drives the field toward unit gradient magnitude while keeping its sign.
func (g *Grid) Sussman(x, y, z int) float32 {
	c := g.At(x, y, z)

	ap := c - g.neighbor(x, y, z, -1, 0, 0)
	bp := g.neighbor(x, y, z, 1, 0, 0) - c
	cp := c - g.neighbor(x, y, z, 0, -1, 0)
	dp := g.neighbor(x, y, z, 0, 1, 0) - c
	ep := c - g.neighbor(x, y, z, 0, 0, -1)
	fp := g.neighbor(x, y, z, 0, 0, 1) - c

	ap, an := splitSign(ap)
	bp, bn := splitSign(bp)
	cp, cn := splitSign(cp)
	dp, dn := splitSign(dp)
	ep, en := splitSign(ep)
	fp, fn := splitSign(fp)

	var dD float32
	switch {
	case c > 0:
		dD = sqrt32(max(ap*ap, bn*bn)+max(cp*cp, dn*dn)+max(ep*ep, fn*fn)) - 1
	case c < 0:
		dD = sqrt32(max(an*an, bp*bp)+max(cn*cn, dp*dp)+max(en*en, fp*fp)) - 1
	}
	return dD * c / sqrt32(c*c+1)
}

// splitSign returns the positive and negative parts of v.
func splitSign(v float32) (pos, neg float32) {
	if v < 0 {
		return 0, v
	}
	return v, 0
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
