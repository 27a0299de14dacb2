package records

import (
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// attributeSchema returns one float32 column per built-in field, property, and
// category, plus the int64 voxel counts of each segmentation.
func (d *Directory) attributeSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, numBuiltins+len(d.propertyNames)+len(d.categoryNames)+2)
	for _, name := range builtinNames {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float32, Nullable: true})
	}
	for _, name := range d.propertyNames {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float32, Nullable: true})
	}
	for _, name := range d.categoryNames {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float32, Nullable: true})
	}
	fields = append(fields,
		arrow.Field{Name: "full_voxels", Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: "perimeter_voxels", Type: arrow.PrimitiveTypes.Int64},
	)
	md := arrow.NewMetadata(
		[]string{"dims"},
		[]string{fmt.Sprintf("%d,%d,%d", d.dims[0], d.dims[1], d.dims[2])},
	)
	return arrow.NewSchema(fields, &md)
}

// ExportArrow writes the per-seed attributes as one record batch in Arrow IPC
// stream format.  NaN values are written as nulls.
func (d *Directory) ExportArrow(w io.Writer) error {
	schema := d.attributeSchema()
	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	col := 0
	appendColumn := func(values []float32) {
		fb := builder.Field(col).(*array.Float32Builder)
		valid := make([]bool, len(values))
		for i, v := range values {
			valid[i] = !math.IsNaN(float64(v))
		}
		fb.AppendValues(values, valid)
		col++
	}
	names := append(append(builtinNames[:], d.propertyNames...), d.categoryNames...)
	for _, name := range names {
		values, err := d.GetList(name)
		if err != nil {
			return err
		}
		appendColumn(values)
	}
	fullCounts := builder.Field(col).(*array.Int64Builder)
	perimCounts := builder.Field(col + 1).(*array.Int64Builder)
	for i := range d.records {
		fullCounts.Append(int64(d.records[i].Full.Len()))
		perimCounts.Append(int64(d.records[i].Perim.Len()))
	}

	record := builder.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("write arrow record batch: %w", err)
	}
	return writer.Close()
}
