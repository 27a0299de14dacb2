/*
	Package records holds the per-seed record directory: seed positions and
	indices, user attribute columns, and the sparse full and perimeter
	segmentation of every seed.
*/
package records

import (
	"errors"
	"fmt"
	"math"

	"github.com/janelia-flyem/acseg/acseg"
)

// PositionIndex is the pseudo-field returning each record's position in the directory.
const PositionIndex = "protobuf_index"

// ErrEmptyDirectory is returned when writing a column of a directory without records.
var ErrEmptyDirectory = errors.New("directory has no records")

// Built-in per-seed fields.
const (
	FieldIdx        = "idx"
	FieldSeedX      = "seed_x"
	FieldSeedY      = "seed_y"
	FieldSeedZ      = "seed_z"
	FieldSeedHsz    = "seed_hsz"
	FieldSeedManual = "seed_manual"
	FieldVecX       = "vec_x"
	FieldVecY       = "vec_y"
	FieldVecZ       = "vec_z"
)

const numBuiltins = 9

var builtinNames = [numBuiltins]string{
	FieldIdx, FieldSeedX, FieldSeedY, FieldSeedZ, FieldSeedHsz, FieldSeedManual,
	FieldVecX, FieldVecY, FieldVecZ,
}

// fieldCategory is the tier a field name resolves to.
type fieldCategory uint8

const (
	positionField fieldCategory = iota
	builtinField
	numericField
	categoricalField
)

func (c fieldCategory) String() string {
	switch c {
	case positionField:
		return "position"
	case builtinField:
		return "built-in"
	case numericField:
		return "numeric property"
	case categoricalField:
		return "categorical"
	default:
		return fmt.Sprintf("unknown field category %d", c)
	}
}

type fieldRef struct {
	category fieldCategory
	column   int
}

// Record is one seed.  Built-in fields are NaN when unset.
type Record struct {
	Builtins   [numBuiltins]float32
	Properties []float32 // parallel to Directory.PropertyNames
	Categories []float32 // parallel to Directory.CategoryNames
	Full       acseg.Coords
	Perim      acseg.Coords
}

func newRecord(numProperties, numCategories int) Record {
	var r Record
	for i := range r.Builtins {
		r.Builtins[i] = float32(math.NaN())
	}
	r.Properties = nanSlice(numProperties)
	r.Categories = nanSlice(numCategories)
	return r
}

func nanSlice(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(math.NaN())
	}
	return s
}

// Index returns the seed index.
func (r *Record) Index() float32 {
	return r.Builtins[0]
}

// Center returns the seed position.
func (r *Record) Center() [3]float32 {
	return [3]float32{r.Builtins[1], r.Builtins[2], r.Builtins[3]}
}

// Directory is the collection of seed records for one image.
type Directory struct {
	dims          [3]int32
	propertyNames []string
	categoryNames []string
	records       []Record

	lookup map[string]fieldRef
}

// New returns an empty directory.
func New() *Directory {
	d := &Directory{}
	d.refreshLookup()
	return d
}

// refreshLookup rebuilds the name table.  Earlier tiers win on duplicate names.
func (d *Directory) refreshLookup() {
	d.lookup = make(map[string]fieldRef, 1+numBuiltins+len(d.propertyNames)+len(d.categoryNames))
	for i := len(d.categoryNames) - 1; i >= 0; i-- {
		d.lookup[d.categoryNames[i]] = fieldRef{categoricalField, i}
	}
	for i := len(d.propertyNames) - 1; i >= 0; i-- {
		d.lookup[d.propertyNames[i]] = fieldRef{numericField, i}
	}
	for i, name := range builtinNames {
		d.lookup[name] = fieldRef{builtinField, i}
	}
	d.lookup[PositionIndex] = fieldRef{positionField, 0}
}

func (d *Directory) field(name string) (fieldRef, bool) {
	ref, found := d.lookup[name]
	return ref, found
}

// Len returns the number of records.
func (d *Directory) Len() int {
	return len(d.records)
}

// Record returns record i, which can be modified in place.
func (d *Directory) Record(i int) (*Record, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	return &d.records[i], nil
}

func (d *Directory) checkIndex(i int) error {
	if i < 0 || i >= len(d.records) {
		return fmt.Errorf("record %d out of range for directory with %d records", i, len(d.records))
	}
	return nil
}

// Dims returns the image dimensions the segmentations refer to.
func (d *Directory) Dims() (nx, ny, nz int) {
	return int(d.dims[0]), int(d.dims[1]), int(d.dims[2])
}

// SetDims sets the image dimensions.
func (d *Directory) SetDims(nx, ny, nz int) {
	d.dims = [3]int32{int32(nx), int32(ny), int32(nz)}
}

// PropertyNames returns the user numeric column names.
func (d *Directory) PropertyNames() []string {
	return d.propertyNames
}

// CategoryNames returns the user categorical column names.
func (d *Directory) CategoryNames() []string {
	return d.categoryNames
}

// HasField returns true if the name resolves to any tier.
func (d *Directory) HasField(name string) bool {
	_, found := d.field(name)
	return found
}

// AddCategory adds a categorical column, e.g., a manual cell type, with one
// value per record.
func (d *Directory) AddCategory(name string, values []float32) error {
	if len(values) != len(d.records) {
		return fmt.Errorf("%w: category %q has %d values for %d records", acseg.ErrSizeMismatch,
			name, len(values), len(d.records))
	}
	if d.HasField(name) {
		return fmt.Errorf("field %q already exists", name)
	}
	d.categoryNames = append(d.categoryNames, name)
	for i := range d.records {
		d.records[i].Categories = append(d.records[i].Categories, values[i])
	}
	d.refreshLookup()
	return nil
}

func (d *Directory) addProperty(name string, values []float32) {
	d.propertyNames = append(d.propertyNames, name)
	for i := range d.records {
		var v float32
		if values == nil {
			v = float32(math.NaN())
		} else {
			v = values[i]
		}
		d.records[i].Properties = append(d.records[i].Properties, v)
	}
	d.refreshLookup()
}

// GetList returns one value per record for the named field.  The name is
// resolved against the position index, the built-in fields, the user numeric
// properties, and the user categories, in that order.  Unset built-in values
// are NaN.  ErrFieldNotFound is returned if no tier has the name.
func (d *Directory) GetList(name string) ([]float32, error) {
	ref, found := d.field(name)
	if !found {
		return nil, fmt.Errorf("%w: %q", acseg.ErrFieldNotFound, name)
	}
	list := make([]float32, len(d.records))
	for i := range d.records {
		r := &d.records[i]
		switch ref.category {
		case positionField:
			list[i] = float32(i)
		case builtinField:
			list[i] = r.Builtins[ref.column]
		case numericField:
			if ref.column >= len(r.Properties) {
				return nil, fmt.Errorf("record %d has %d properties, expected %d", i, len(r.Properties), len(d.propertyNames))
			}
			list[i] = r.Properties[ref.column]
		case categoricalField:
			if ref.column >= len(r.Categories) {
				return nil, fmt.Errorf("record %d has %d categories, expected %d", i, len(r.Categories), len(d.categoryNames))
			}
			list[i] = r.Categories[ref.column]
		}
	}
	return list, nil
}

// SetList writes one value per record into the named field.  A name not found
// in any tier creates a new user numeric property.
func (d *Directory) SetList(name string, values []float32) error {
	if len(d.records) == 0 {
		return fmt.Errorf("set %q: %w", name, ErrEmptyDirectory)
	}
	if len(values) != len(d.records) {
		return fmt.Errorf("%w: %d values for %d records in %q", acseg.ErrSizeMismatch, len(values), len(d.records), name)
	}
	ref, found := d.field(name)
	if !found {
		d.addProperty(name, values)
		return nil
	}
	if ref.category == positionField {
		return fmt.Errorf("field %q is read-only", name)
	}
	for i := range d.records {
		r := &d.records[i]
		switch ref.category {
		case builtinField:
			r.Builtins[ref.column] = values[i]
		case numericField:
			if ref.column >= len(r.Properties) {
				return fmt.Errorf("record %d has %d properties, expected %d", i, len(r.Properties), len(d.propertyNames))
			}
			r.Properties[ref.column] = values[i]
		case categoricalField:
			if ref.column >= len(r.Categories) {
				return fmt.Errorf("record %d has %d categories, expected %d", i, len(r.Categories), len(d.categoryNames))
			}
			r.Categories[ref.column] = values[i]
		}
	}
	return nil
}

// String summarizes the directory for logs.
func (d *Directory) String() string {
	return fmt.Sprintf("%d seed records for %d x %d x %d image, %d properties, %d categories",
		len(d.records), d.dims[0], d.dims[1], d.dims[2], len(d.propertyNames), len(d.categoryNames))
}
