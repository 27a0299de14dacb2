package records

import (
	"fmt"
	"math"
	"slices"

	"github.com/janelia-flyem/acseg/acseg"
)

// Append copies the selected records of other onto the end of d.  Property and
// category columns are matched by name; columns only other has are added to d.
func (d *Directory) Append(other *Directory, indices []int) error {
	for _, i := range indices {
		if err := other.checkIndex(i); err != nil {
			return err
		}
	}
	for _, name := range other.propertyNames {
		if !d.HasField(name) {
			d.addProperty(name, nil)
		}
	}
	for _, name := range other.categoryNames {
		if !d.HasField(name) {
			if err := d.AddCategory(name, nanSlice(len(d.records))); err != nil {
				return err
			}
		}
	}
	for _, i := range indices {
		src := &other.records[i]
		r := newRecord(len(d.propertyNames), len(d.categoryNames))
		r.Builtins = src.Builtins
		for col, name := range other.propertyNames {
			if ref, found := d.field(name); found && col < len(src.Properties) {
				r.set(ref, src.Properties[col])
			}
		}
		for col, name := range other.categoryNames {
			if ref, found := d.field(name); found && col < len(src.Categories) {
				r.set(ref, src.Categories[col])
			}
		}
		r.Full = src.Full.Copy()
		r.Perim = src.Perim.Copy()
		d.records = append(d.records, r)
	}
	return nil
}

func (r *Record) set(ref fieldRef, v float32) {
	switch ref.category {
	case builtinField:
		r.Builtins[ref.column] = v
	case numericField:
		r.Properties[ref.column] = v
	case categoricalField:
		r.Categories[ref.column] = v
	}
}

// AppendXYZ adds one record per position with only the seed center set.
func (d *Directory) AppendXYZ(x, y, z []float32) error {
	if len(x) != len(y) || len(x) != len(z) {
		return fmt.Errorf("%w: x %d, y %d, z %d", acseg.ErrCoordMismatch, len(x), len(y), len(z))
	}
	for i := range x {
		r := newRecord(len(d.propertyNames), len(d.categoryNames))
		r.Builtins[1], r.Builtins[2], r.Builtins[3] = x[i], y[i], z[i]
		d.records = append(d.records, r)
	}
	return nil
}

// Delete removes the records at the given positions.  Each removal swaps the
// record with the last one and truncates, so the order of the remaining
// records changes.
func (d *Directory) Delete(indices []int) error {
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for _, i := range sorted {
		if err := d.checkIndex(i); err != nil {
			return err
		}
	}
	for k := len(sorted) - 1; k >= 0; k-- {
		i, last := sorted[k], len(d.records)-1
		d.records[i], d.records[last] = d.records[last], d.records[i]
		d.records[last] = Record{}
		d.records = d.records[:last]
	}
	return nil
}

// IsMember returns the positions in d and in other of every record of d whose
// seed index is also used by other.  For repeated indices in other, the first
// position wins.
func (d *Directory) IsMember(other *Directory) (idx, idxOther []int) {
	positions := make(map[float32]int, other.Len())
	for i := len(other.records) - 1; i >= 0; i-- {
		positions[other.records[i].Index()] = i
	}
	for i := range d.records {
		if j, found := positions[d.records[i].Index()]; found {
			idx = append(idx, i)
			idxOther = append(idxOther, j)
		}
	}
	return
}

// MaxIdx returns the largest seed index, or 0 for an empty directory.
func (d *Directory) MaxIdx() float32 {
	if len(d.records) == 0 {
		return 0
	}
	maxIdx := float32(math.Inf(-1))
	for i := range d.records {
		if v := d.records[i].Index(); v > maxIdx {
			maxIdx = v
		}
	}
	return maxIdx
}

// Reorder assigns seed indices minIdx+1, minIdx+2, ... in record order.
func (d *Directory) Reorder(minIdx int) {
	for i := range d.records {
		d.records[i].Builtins[0] = float32(minIdx + i + 1)
	}
}

// ThresholdByPosition deletes every record whose rounded seed position lies
// outside an nx by ny by nz image.
func (d *Directory) ThresholdByPosition(nx, ny, nz int) error {
	dims := [3]float64{float64(nx), float64(ny), float64(nz)}
	var outside []int
	for i := range d.records {
		center := d.records[i].Center()
		for a := 0; a < 3; a++ {
			v := math.Round(float64(center[a]))
			if !(v >= 0 && v < dims[a]) {
				outside = append(outside, i)
				break
			}
		}
	}
	if len(outside) != 0 {
		acseg.Infof("Removing %d of %d seeds outside %d x %d x %d image\n", len(outside), len(d.records), nx, ny, nz)
	}
	return d.Delete(outside)
}
