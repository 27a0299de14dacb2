package records

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

// Selector chooses between the full segmentation and its perimeter.
type Selector uint8

const (
	Full Selector = iota
	Perimeter
)

func (sel Selector) String() string {
	switch sel {
	case Full:
		return "full"
	case Perimeter:
		return "perimeter"
	default:
		return fmt.Sprintf("unknown selector %d", sel)
	}
}

// ParseSelector accepts "full" or "perimeter", case insensitive.
func ParseSelector(s string) (Selector, error) {
	switch strings.ToLower(s) {
	case "full":
		return Full, nil
	case "perimeter", "perim":
		return Perimeter, nil
	default:
		return Full, fmt.Errorf("bad segmentation selector %q: must be full or perimeter", s)
	}
}

func (r *Record) coords(sel Selector) (*acseg.Coords, error) {
	switch sel {
	case Full:
		return &r.Full, nil
	case Perimeter:
		return &r.Perim, nil
	default:
		return nil, fmt.Errorf("bad segmentation selector %d", sel)
	}
}

// SetSparse replaces the full or perimeter coordinates of record i.
func (d *Directory) SetSparse(i int, sel Selector, c acseg.Coords) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	if err := c.Check(); err != nil {
		return err
	}
	dst, err := d.records[i].coords(sel)
	if err != nil {
		return err
	}
	*dst = c.Copy()
	return nil
}

// GetSparse returns a copy of the full or perimeter coordinates of record i.
func (d *Directory) GetSparse(i int, sel Selector) (acseg.Coords, error) {
	if err := d.checkIndex(i); err != nil {
		return acseg.Coords{}, err
	}
	src, err := d.records[i].coords(sel)
	if err != nil {
		return acseg.Coords{}, err
	}
	if err := src.Check(); err != nil {
		return acseg.Coords{}, fmt.Errorf("record %d %s segmentation: %w", i, sel, err)
	}
	return src.Copy(), nil
}

// DrawSegmentation writes color into g at every coordinate of record i that
// falls inside g.
func (d *Directory) DrawSegmentation(i int, sel Selector, color float32, g *voxels.Grid) error {
	c, err := d.GetSparse(i, sel)
	if err != nil {
		return err
	}
	for p := 0; p < c.Len(); p++ {
		x, y, z := int(c.X[p]), int(c.Y[p]), int(c.Z[p])
		if g.Inside(x, y, z) {
			g.Set(x, y, z, color)
		}
	}
	return nil
}

// DrawSegmentationImage resizes g to the directory dimensions and draws every
// record's segmentation in its color.  Later records overwrite earlier ones.
func (d *Directory) DrawSegmentationImage(sel Selector, colors []float32, g *voxels.Grid) error {
	if len(colors) != len(d.records) {
		return fmt.Errorf("%w: %d colors for %d records", acseg.ErrSizeMismatch, len(colors), len(d.records))
	}
	g.Resize(d.Dims())
	for i := range d.records {
		if err := d.DrawSegmentation(i, sel, colors[i], g); err != nil {
			return err
		}
	}
	return nil
}

// ApplyMask copies the voxels of img inside record i's full segmentation into
// out, resized to the segmentation's bounding box.  Other voxels of out are zero.
func (d *Directory) ApplyMask(i int, img, out *voxels.Grid) error {
	c, err := d.GetSparse(i, Full)
	if err != nil {
		return err
	}
	if c.Len() == 0 {
		out.Resize(0, 0, 0)
		return nil
	}
	lo := c.Point(0)
	hi := lo
	for p := 1; p < c.Len(); p++ {
		pt := c.Point(p)
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], pt[a])
			hi[a] = max(hi[a], pt[a])
		}
	}
	if !lo.Inside(img.Size()) || !hi.Inside(img.Size()) {
		return fmt.Errorf("record %d segmentation spans %s to %s, outside image %s", i, lo, hi, img.Size())
	}
	size := hi.Sub(lo).Add(acseg.Point3d{1, 1, 1})
	out.Resize(int(size[0]), int(size[1]), int(size[2]))
	for p := 0; p < c.Len(); p++ {
		pt := c.Point(p)
		rel := pt.Sub(lo)
		out.Set(int(rel[0]), int(rel[1]), int(rel[2]), img.At(int(pt[0]), int(pt[1]), int(pt[2])))
	}
	return nil
}

// Volume returns the number of full segmentation voxels per record.
func (d *Directory) Volume() []float32 {
	volume := make([]float32, len(d.records))
	for i := range d.records {
		volume[i] = float32(d.records[i].Full.Len())
	}
	return volume
}

// Clear removes every record's segmentation.
func (d *Directory) Clear() {
	for i := range d.records {
		d.records[i].Full = acseg.Coords{}
		d.records[i].Perim = acseg.Coords{}
	}
}
