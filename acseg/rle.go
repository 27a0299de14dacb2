package acseg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// RLE is a single run-length encoded span with a start coordinate and length along X.
type RLE struct {
	start  Point3d
	length int32
}

func NewRLE(start Point3d, length int32) RLE {
	return RLE{start, length}
}

func (rle RLE) StartPt() Point3d {
	return rle.start
}

func (rle RLE) Length() int32 {
	return rle.length
}

// RLEs are simply a slice of RLE.
type RLEs []RLE

// RLEsFromCoords converts parallel x, y, z coordinate lists into runs along X,
// ordered by z, then y, then x.  Duplicate coordinates are merged.
func RLEsFromCoords(x, y, z []int32) (RLEs, error) {
	if len(x) != len(y) || len(x) != len(z) {
		return nil, fmt.Errorf("%w: x %d, y %d, z %d", ErrCoordMismatch, len(x), len(y), len(z))
	}
	if len(x) == 0 {
		return RLEs{}, nil
	}
	pts := make([]Point3d, len(x))
	for i := range x {
		pts[i] = Point3d{x[i], y[i], z[i]}
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][2] != pts[j][2] {
			return pts[i][2] < pts[j][2]
		}
		if pts[i][1] != pts[j][1] {
			return pts[i][1] < pts[j][1]
		}
		return pts[i][0] < pts[j][0]
	})
	var rles RLEs
	cur := RLE{pts[0], 1}
	for _, pt := range pts[1:] {
		end := cur.start[0] + cur.length - 1
		switch {
		case pt[1] == cur.start[1] && pt[2] == cur.start[2] && pt[0] == end:
			// duplicate
		case pt[1] == cur.start[1] && pt[2] == cur.start[2] && pt[0] == end+1:
			cur.length++
		default:
			rles = append(rles, cur)
			cur = RLE{pt, 1}
		}
	}
	return append(rles, cur), nil
}

// Coords expands the runs back into parallel coordinate lists.
func (rles RLEs) Coords() (x, y, z []int32) {
	n, _ := rles.Stats()
	x = make([]int32, 0, n)
	y = make([]int32, 0, n)
	z = make([]int32, 0, n)
	for _, rle := range rles {
		for i := int32(0); i < rle.length; i++ {
			x = append(x, rle.start[0]+i)
			y = append(y, rle.start[1])
			z = append(z, rle.start[2])
		}
	}
	return
}

// MarshalBinary fulfills the encoding.BinaryMarshaler interface.
func (rles RLEs) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, rle := range rles {
		if err := binary.Write(buf, binary.LittleEndian, rle.start); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, rle.length); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary fulfills the encoding.BinaryUnmarshaler interface.
func (rles *RLEs) UnmarshalBinary(b []byte) error {
	lenEncoding := len(b)
	if lenEncoding%16 != 0 {
		return fmt.Errorf("RLE encoding # bytes is not divisible by 16: %d", len(b))
	}
	numRLEs := lenEncoding / 16
	*rles = make(RLEs, numRLEs)
	for i := 0; i < numRLEs; i++ {
		off := i * 16
		(*rles)[i].start[0] = int32(binary.LittleEndian.Uint32(b[off:]))
		(*rles)[i].start[1] = int32(binary.LittleEndian.Uint32(b[off+4:]))
		(*rles)[i].start[2] = int32(binary.LittleEndian.Uint32(b[off+8:]))
		(*rles)[i].length = int32(binary.LittleEndian.Uint32(b[off+12:]))
	}
	return nil
}

// Stats returns the total number of voxels and runs.
func (rles RLEs) Stats() (numVoxels, numRuns int32) {
	for _, rle := range rles {
		numVoxels += rle.length
	}
	return numVoxels, int32(len(rles))
}

// EncodeSparseVol returns the sparse volume encoding used by label servers:
//
//	byte     Payload descriptor (0 = binary, no voxel values)
//	uint8    Number of dimensions (3)
//	uint8    Dimension of run (0 = X)
//	byte     Reserved
//	uint32   # Voxels (0 = not computed)
//	uint32   # Spans
//	Repeating spans of x, y, z, length as little-endian int32.
func EncodeSparseVol(rles RLEs) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write([]byte{0, 3, 0, 0})
	numVoxels, numRuns := rles.Stats()
	if err := binary.Write(buf, binary.LittleEndian, uint32(numVoxels)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(numRuns)); err != nil {
		return nil, err
	}
	encoding, err := rles.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf.Write(encoding)
	return buf.Bytes(), nil
}
