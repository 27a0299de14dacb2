package distance

import (
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

// Erode replaces each voxel with the minimum over the cube of radius k around it.
// Neighbors outside the grid are skipped.  Slices are processed in parallel and
// interrupt is polled before each slice; an interrupted erosion leaves g unchanged
// and returns acseg.ErrInterrupted.
func Erode(g *voxels.Grid, k int, interrupt acseg.InterruptFunc) error {
	return cubeFilter(g, k, interrupt, func(cur, v float32) float32 {
		if v < cur {
			return v
		}
		return cur
	})
}

// Dilate is like Erode but takes the maximum over the cube.
func Dilate(g *voxels.Grid, k int, interrupt acseg.InterruptFunc) error {
	return cubeFilter(g, k, interrupt, func(cur, v float32) float32 {
		if v > cur {
			return v
		}
		return cur
	})
}

func cubeFilter(g *voxels.Grid, k int, interrupt acseg.InterruptFunc, pick func(cur, v float32) float32) error {
	if k <= 0 || g.Numel() == 0 {
		return nil
	}
	nx, ny, nz := g.Dims()
	out := voxels.NewGrid(nx, ny, nz)

	var eg errgroup.Group
	eg.SetLimit(acseg.NumCPU)
	for z := 0; z < nz; z++ {
		eg.Go(func() error {
			if interrupt.Interrupted() {
				return acseg.ErrInterrupted
			}
			z0, z1 := max(z-k, 0), min(z+k, nz-1)
			for y := 0; y < ny; y++ {
				y0, y1 := max(y-k, 0), min(y+k, ny-1)
				for x := 0; x < nx; x++ {
					x0, x1 := max(x-k, 0), min(x+k, nx-1)
					cur := g.At(x, y, z)
					for zz := z0; zz <= z1; zz++ {
						for yy := y0; yy <= y1; yy++ {
							for xx := x0; xx <= x1; xx++ {
								cur = pick(cur, g.At(xx, yy, zz))
							}
						}
					}
					out.Set(x, y, z, cur)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	copy(g.Data(), out.Data())
	return nil
}

// Perim keeps only the boundary of a binary mask: every voxel that is foreground
// both in g and in g eroded by k is set to 0.
func Perim(g *voxels.Grid, k int) error {
	eroded := g.Copy()
	if err := Erode(eroded, k, nil); err != nil {
		return err
	}
	data, edata := g.Data(), eroded.Data()
	for i, v := range data {
		if v > voxels.BWThreshold && edata[i] > voxels.BWThreshold {
			data[i] = 0
		}
	}
	return nil
}
