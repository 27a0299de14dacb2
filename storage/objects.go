package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/voxels"
)

// Key prefixes partition the store by object kind.
const (
	DirectoryPrefix = "directory/"
	GridPrefix      = "grid/"
)

const gridHeaderSize = 24

// PutDirectory stores a seed directory under name.
func PutDirectory(ctx context.Context, s Store, name string, d *records.Directory, compress acseg.Compression) error {
	data, err := d.Serialize(compress)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, DirectoryPrefix+name, data); err != nil {
		return fmt.Errorf("put directory %q: %w", name, err)
	}
	acseg.Debugf("Stored directory %q (%s) in %s: %s\n", name, humanize.Bytes(uint64(len(data))), s, d)
	return nil
}

// GetDirectory retrieves the seed directory stored under name.
func GetDirectory(ctx context.Context, s Store, name string) (*records.Directory, error) {
	data, err := s.Get(ctx, DirectoryPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("get directory %q: %w", name, err)
	}
	return records.Deserialize(data)
}

// EncodeGrid returns the dimensions, resolution, and values of g in little-endian order.
func EncodeGrid(g *voxels.Grid) []byte {
	nx, ny, nz := g.Dims()
	res := g.Resolution()
	data := g.Data()
	buf := make([]byte, gridHeaderSize+4*len(data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(nx))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(ny))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(nz))
	for i, r := range res {
		binary.LittleEndian.PutUint32(buf[12+4*i:16+4*i], math.Float32bits(r))
	}
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[gridHeaderSize+4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeGrid parses the output of EncodeGrid.
func DecodeGrid(buf []byte) (*voxels.Grid, error) {
	if len(buf) < gridHeaderSize {
		return nil, fmt.Errorf("grid encoding has %d bytes, need at least %d", len(buf), gridHeaderSize)
	}
	nx := int(binary.LittleEndian.Uint32(buf[0:4]))
	ny := int(binary.LittleEndian.Uint32(buf[4:8]))
	nz := int(binary.LittleEndian.Uint32(buf[8:12]))
	n, err := voxels.CheckedNumel(nx, ny, nz)
	if err != nil {
		return nil, fmt.Errorf("bad grid header: %w", err)
	}
	if expected := gridHeaderSize + 4*n; len(buf) != expected {
		return nil, fmt.Errorf("grid %d x %d x %d needs %d bytes, got %d", nx, ny, nz, expected, len(buf))
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[gridHeaderSize+4*i:]))
	}
	g, err := voxels.NewGridFromData(nx, ny, nz, data)
	if err != nil {
		return nil, err
	}
	var res [3]float32
	for i := range res {
		res[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[12+4*i:]))
	}
	if err := g.SetResolution(res[0], res[1], res[2]); err != nil {
		return nil, err
	}
	return g, nil
}

// PutGrid stores a dense grid under name.
func PutGrid(ctx context.Context, s Store, name string, g *voxels.Grid, compress acseg.Compression) error {
	data, err := acseg.SerializeData(EncodeGrid(g), compress, acseg.CRC32)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, GridPrefix+name, data); err != nil {
		return fmt.Errorf("put grid %q: %w", name, err)
	}
	acseg.Debugf("Stored grid %q (%s, %s) in %s\n", name, g, humanize.Bytes(uint64(len(data))), s)
	return nil
}

// GetGrid retrieves the grid stored under name.
func GetGrid(ctx context.Context, s Store, name string) (*voxels.Grid, error) {
	data, err := s.Get(ctx, GridPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("get grid %q: %w", name, err)
	}
	buf, _, err := acseg.DeserializeData(data, true)
	if err != nil {
		return nil, err
	}
	return DecodeGrid(buf)
}

// List returns the names of stored objects with the given prefix.
func List(ctx context.Context, s Store, prefix string) ([]string, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, prefix)
	}
	return names, nil
}
