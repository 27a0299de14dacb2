package records

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/janelia-flyem/acseg/acseg"
)

// MarshalMsg implements msgp.Marshaler
func (d *Directory) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, d.Msgsize())
	o = msgp.AppendMapHeader(o, 4)
	o = msgp.AppendString(o, "dims")
	o = msgp.AppendArrayHeader(o, 3)
	for _, v := range d.dims {
		o = msgp.AppendInt32(o, v)
	}
	o = msgp.AppendString(o, "properties")
	o = appendStrings(o, d.propertyNames)
	o = msgp.AppendString(o, "categories")
	o = appendStrings(o, d.categoryNames)
	o = msgp.AppendString(o, "records")
	o = msgp.AppendArrayHeader(o, uint32(len(d.records)))
	for i := range d.records {
		if o, err = d.records[i].MarshalMsg(o); err != nil {
			return
		}
	}
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (d *Directory) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var isz uint32
	isz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	*d = Directory{}
	for ; isz > 0; isz-- {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return
		}
		switch msgp.UnsafeString(field) {
		case "dims":
			var asz uint32
			asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return
			}
			if asz != 3 {
				err = msgp.ArrayError{Wanted: 3, Got: asz}
				return
			}
			for i := range d.dims {
				d.dims[i], bts, err = msgp.ReadInt32Bytes(bts)
				if err != nil {
					return
				}
			}
		case "properties":
			d.propertyNames, bts, err = readStrings(bts)
		case "categories":
			d.categoryNames, bts, err = readStrings(bts)
		case "records":
			var asz uint32
			asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return
			}
			if err = checkArrayLen(asz, 1, bts); err != nil {
				return
			}
			d.records = make([]Record, asz)
			for i := range d.records {
				bts, err = d.records[i].UnmarshalMsg(bts)
				if err != nil {
					return
				}
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return
		}
	}
	for i := range d.records {
		r := &d.records[i]
		if len(r.Properties) != len(d.propertyNames) || len(r.Categories) != len(d.categoryNames) {
			err = fmt.Errorf("record %d has %d properties and %d categories, directory has %d and %d",
				i, len(r.Properties), len(r.Categories), len(d.propertyNames), len(d.categoryNames))
			return
		}
	}
	d.refreshLookup()
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (d *Directory) Msgsize() (s int) {
	s = msgp.MapHeaderSize + msgp.StringPrefixSize + 4 + msgp.ArrayHeaderSize + 3*msgp.Int32Size
	s += msgp.StringPrefixSize + 10 + stringsSize(d.propertyNames)
	s += msgp.StringPrefixSize + 10 + stringsSize(d.categoryNames)
	s += msgp.StringPrefixSize + 7 + msgp.ArrayHeaderSize
	for i := range d.records {
		s += d.records[i].Msgsize()
	}
	return
}

// MarshalMsg implements msgp.Marshaler
func (r *Record) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, r.Msgsize())
	o = msgp.AppendMapHeader(o, 5)
	o = msgp.AppendString(o, "builtins")
	o = appendFloats(o, r.Builtins[:])
	o = msgp.AppendString(o, "properties")
	o = appendFloats(o, r.Properties)
	o = msgp.AppendString(o, "categories")
	o = appendFloats(o, r.Categories)
	o = msgp.AppendString(o, "full")
	o = appendCoords(o, r.Full)
	o = msgp.AppendString(o, "perim")
	o = appendCoords(o, r.Perim)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (r *Record) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var isz uint32
	isz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	*r = newRecord(0, 0)
	for ; isz > 0; isz-- {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return
		}
		switch msgp.UnsafeString(field) {
		case "builtins":
			var builtins []float32
			builtins, bts, err = readFloats(bts)
			if err == nil && len(builtins) > numBuiltins {
				err = msgp.ArrayError{Wanted: numBuiltins, Got: uint32(len(builtins))}
			}
			copy(r.Builtins[:], builtins)
		case "properties":
			r.Properties, bts, err = readFloats(bts)
		case "categories":
			r.Categories, bts, err = readFloats(bts)
		case "full":
			r.Full, bts, err = readCoords(bts)
		case "perim":
			r.Perim, bts, err = readCoords(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (r *Record) Msgsize() (s int) {
	s = msgp.MapHeaderSize
	s += msgp.StringPrefixSize + 8 + msgp.ArrayHeaderSize + numBuiltins*msgp.Float32Size
	s += msgp.StringPrefixSize + 10 + msgp.ArrayHeaderSize + len(r.Properties)*msgp.Float32Size
	s += msgp.StringPrefixSize + 10 + msgp.ArrayHeaderSize + len(r.Categories)*msgp.Float32Size
	s += msgp.StringPrefixSize + 4 + coordsSize(r.Full)
	s += msgp.StringPrefixSize + 5 + coordsSize(r.Perim)
	return
}

// checkArrayLen rejects an array header claiming more elements than the
// remaining bytes could hold at minSize bytes per element.
func checkArrayLen(asz uint32, minSize int, bts []byte) error {
	if uint64(asz)*uint64(minSize) > uint64(len(bts)) {
		return fmt.Errorf("array of %d elements needs at least %d bytes, have %d: %w",
			asz, uint64(asz)*uint64(minSize), len(bts), msgp.ErrShortBytes)
	}
	return nil
}

func appendStrings(o []byte, s []string) []byte {
	o = msgp.AppendArrayHeader(o, uint32(len(s)))
	for _, v := range s {
		o = msgp.AppendString(o, v)
	}
	return o
}

func readStrings(bts []byte) (s []string, o []byte, err error) {
	var asz uint32
	asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	if err = checkArrayLen(asz, 1, bts); err != nil {
		return
	}
	s = make([]string, asz)
	for i := range s {
		s[i], bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return
		}
	}
	o = bts
	return
}

func stringsSize(s []string) int {
	n := msgp.ArrayHeaderSize
	for _, v := range s {
		n += msgp.StringPrefixSize + len(v)
	}
	return n
}

func appendFloats(o []byte, f []float32) []byte {
	o = msgp.AppendArrayHeader(o, uint32(len(f)))
	for _, v := range f {
		o = msgp.AppendFloat32(o, v)
	}
	return o
}

func readFloats(bts []byte) (f []float32, o []byte, err error) {
	var asz uint32
	asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	if err = checkArrayLen(asz, msgp.Float32Size, bts); err != nil {
		return
	}
	f = make([]float32, asz)
	for i := range f {
		f[i], bts, err = msgp.ReadFloat32Bytes(bts)
		if err != nil {
			return
		}
	}
	o = bts
	return
}

func appendInt32s(o []byte, v []int32) []byte {
	o = msgp.AppendArrayHeader(o, uint32(len(v)))
	for _, x := range v {
		o = msgp.AppendInt32(o, x)
	}
	return o
}

func readInt32s(bts []byte) (v []int32, o []byte, err error) {
	var asz uint32
	asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	if err = checkArrayLen(asz, 1, bts); err != nil {
		return
	}
	v = make([]int32, asz)
	for i := range v {
		v[i], bts, err = msgp.ReadInt32Bytes(bts)
		if err != nil {
			return
		}
	}
	o = bts
	return
}

// Coordinates are stored as a three element array of x, y, and z lists.
func appendCoords(o []byte, c acseg.Coords) []byte {
	o = msgp.AppendArrayHeader(o, 3)
	o = appendInt32s(o, c.X)
	o = appendInt32s(o, c.Y)
	return appendInt32s(o, c.Z)
}

func readCoords(bts []byte) (c acseg.Coords, o []byte, err error) {
	var asz uint32
	asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	if asz != 3 {
		err = msgp.ArrayError{Wanted: 3, Got: asz}
		return
	}
	if c.X, bts, err = readInt32s(bts); err != nil {
		return
	}
	if c.Y, bts, err = readInt32s(bts); err != nil {
		return
	}
	if c.Z, bts, err = readInt32s(bts); err != nil {
		return
	}
	o = bts
	return
}

func coordsSize(c acseg.Coords) int {
	return msgp.ArrayHeaderSize + 3*msgp.ArrayHeaderSize + (len(c.X)+len(c.Y)+len(c.Z))*msgp.Int32Size
}

// Serialize encodes the directory with optional compression and a CRC32 checksum.
func (d *Directory) Serialize(compress acseg.Compression) ([]byte, error) {
	data, err := d.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	return acseg.SerializeData(data, compress, acseg.CRC32)
}

// Deserialize decodes a directory written by Serialize.
func Deserialize(s []byte) (*Directory, error) {
	data, _, err := acseg.DeserializeData(s, true)
	if err != nil {
		return nil, err
	}
	d := new(Directory)
	if _, err := d.UnmarshalMsg(data); err != nil {
		return nil, fmt.Errorf("decode seed directory: %w", err)
	}
	return d, nil
}
