package contour

import (
	"fmt"
	"math"
)

// Parameters control the evolution of every seed in one run.
type Parameters struct {
	// HalfWindow is the largest expected cell radius in microns.  Each seed
	// evolves within a window of 2*HalfWindow/resolution+1 voxels per axis.
	HalfWindow float32 `toml:"hsz"`

	// TMax is the number of steps each seed evolves.
	TMax int `toml:"tmax"`

	// Dt is the time step of the explicit Euler update.
	Dt float32 `toml:"dt"`

	// SussmanInterval is the number of steps between reinitializations.
	// Zero or negative disables reinitialization.
	SussmanInterval int `toml:"sussman_interval"`

	// C is the propagation speed, D the guidance advection weight, and
	// Epsilon the curvature weight.
	C       float32 `toml:"c"`
	D       float32 `toml:"d"`
	Epsilon float32 `toml:"epsilon"`

	// R is the radius of the initial sphere for seeds without a prior mask.
	R float32 `toml:"r"`

	// NarrowBand limits updates to voxels with |phi| at or below this value.
	NarrowBand float32 `toml:"narrow_band"`

	// Resolution is the voxel size in microns along x, y, z.
	Resolution [3]float32 `toml:"resolution"`
}

// DefaultParameters returns the parameters used when a run does not specify them.
func DefaultParameters() Parameters {
	return Parameters{
		HalfWindow:      20,
		TMax:            200,
		Dt:              0.1,
		SussmanInterval: 200,
		C:               1,
		D:               1,
		Epsilon:         1,
		R:               1,
		NarrowBand:      99999999,
		Resolution:      [3]float32{1, 1, 1},
	}
}

// Validate returns an error for parameters that cannot drive an evolution.
func (p Parameters) Validate() error {
	if p.HalfWindow < 0 {
		return fmt.Errorf("half window size must be non-negative, got %g", p.HalfWindow)
	}
	if p.TMax < 0 {
		return fmt.Errorf("tmax must be non-negative, got %d", p.TMax)
	}
	if p.Dt <= 0 || math.IsNaN(float64(p.Dt)) {
		return fmt.Errorf("time step must be positive, got %g", p.Dt)
	}
	if p.NarrowBand < 0 {
		return fmt.Errorf("narrow band threshold must be non-negative, got %g", p.NarrowBand)
	}
	for i, r := range p.Resolution {
		if r <= 0 {
			return fmt.Errorf("resolution along axis %d must be positive, got %g", i, r)
		}
	}
	return nil
}

// halfWindowVoxels returns the per-axis window radius in voxels.
func (p Parameters) halfWindowVoxels() [3]int {
	return [3]int{
		int(p.HalfWindow / p.Resolution[0]),
		int(p.HalfWindow / p.Resolution[1]),
		int(p.HalfWindow / p.Resolution[2]),
	}
}

// OverrideNames lists the per-seed attributes that can replace run defaults.
// Narrow band, reinitialization interval, and resolution are shared by all seeds.
var OverrideNames = []string{"hsz", "tMax", "dt", "c", "d", "epsilon", "r"}

// WithOverrides returns a copy of p with any finite per-seed values applied.
func (p Parameters) WithOverrides(values map[string]float32) Parameters {
	for name, v := range values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			continue
		}
		switch name {
		case "hsz":
			p.HalfWindow = v
		case "tMax":
			p.TMax = int(v)
		case "dt":
			p.Dt = v
		case "c":
			p.C = v
		case "d":
			p.D = v
		case "epsilon":
			p.Epsilon = v
		case "r":
			p.R = v
		}
	}
	return p
}
