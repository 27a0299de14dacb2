package voxels

import (
	"math"
	"sort"
)

// BWThreshold is the value above which a voxel counts as foreground in binary masks.
const BWThreshold = 0.5

// Max returns the largest value or -Inf for an empty grid.
func (g *Grid) Max() float32 {
	m := float32(math.Inf(-1))
	for _, v := range g.data {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest value or +Inf for an empty grid.
func (g *Grid) Min() float32 {
	m := float32(math.Inf(1))
	for _, v := range g.data {
		if v < m {
			m = v
		}
	}
	return m
}

// Mean returns the average value, accumulated in float64.
func (g *Grid) Mean() float32 {
	if len(g.data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range g.data {
		sum += float64(v)
	}
	return float32(sum / float64(len(g.data)))
}

// Nnz returns the number of foreground voxels.
func (g *Grid) Nnz() int {
	var n int
	for _, v := range g.data {
		if v > BWThreshold {
			n++
		}
	}
	return n
}

// Percentile returns the value at fraction p in [0,1] of the sorted voxel values,
// indexed at round(p*(n-1)).
func (g *Grid) Percentile(p float32) float32 {
	n := len(g.data)
	if n == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	sorted := make([]float32, n)
	copy(sorted, g.data)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Round(float64(p) * float64(n-1)))
	return sorted[idx]
}
