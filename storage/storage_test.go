package storage_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/storage"
	_ "github.com/janelia-flyem/acseg/storage/badger"
	_ "github.com/janelia-flyem/acseg/storage/blobstore"
	"github.com/janelia-flyem/acseg/voxels"
)

func testConfigs(t *testing.T) map[string]storage.Config {
	badgerDir := filepath.Join(os.TempDir(), fmt.Sprintf("acseg-test-badger-%x", uuid.NewV4().Bytes()))
	t.Cleanup(func() { os.RemoveAll(badgerDir) })
	return map[string]storage.Config{
		"badger-memory": {Engine: "badger", InMemory: true},
		"badger-disk":   {Engine: "badger", Path: badgerDir},
		"blob-memory":   {Engine: "blob", InMemory: true},
		"blob-file":     {Engine: "blob", Path: t.TempDir()},
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, config := range testConfigs(t) {
		t.Run(name, func(t *testing.T) {
			s, err := storage.Open(config)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			testStore(ctx, t, s)
			testStore(ctx, t, storage.WithCache(s, storage.CacheConfig{MB: 1}))
		})
	}
}

func testStore(ctx context.Context, t *testing.T, s storage.Store) {
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("%s: expected ErrNotFound, got %v\n", s, err)
	}
	if err := s.Put(ctx, "a/1", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "a/2", []byte("second")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "b/1", []byte("other")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "a/1", []byte("replaced")); err != nil {
		t.Fatal(err)
	}
	value, err := s.Get(ctx, "a/1")
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "replaced" {
		t.Errorf("%s: expected replaced value, got %q\n", s, value)
	}
	keys, err := s.Keys(ctx, "a/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a/1", "a/2"}, keys); diff != "" {
		t.Errorf("%s: bad keys (-want +got):\n%s", s, diff)
	}
	for _, k := range []string{"a/1", "a/2", "b/1"} {
		if err := s.Delete(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete(ctx, "a/1"); err != nil {
		t.Errorf("%s: deleting a missing key should succeed, got %v\n", s, err)
	}
	if _, err := s.Get(ctx, "a/2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("%s: expected ErrNotFound after delete, got %v\n", s, err)
	}
}

func TestUnknownEngine(t *testing.T) {
	if _, err := storage.Open(storage.Config{Engine: "leveldb"}); err == nil {
		t.Errorf("Expected error opening unregistered engine\n")
	}
	if e := storage.GetEngine("badger"); e == nil || e.GetSemVer().Major != 0 {
		t.Errorf("Expected badger engine to be registered, got %v\n", e)
	}
}

func TestObjects(t *testing.T) {
	ctx := context.Background()
	s, err := storage.Open(storage.Config{Engine: "blob", InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	d := records.New()
	d.SetDims(4, 3, 2)
	if err := d.AppendXYZ([]float32{1}, []float32{2}, []float32{1}); err != nil {
		t.Fatal(err)
	}
	d.SetList(records.FieldIdx, []float32{7})
	full := acseg.NewCoords(2)
	full.Append(1, 2, 1)
	full.Append(2, 2, 1)
	d.SetSparse(0, records.Full, full)
	if err := storage.PutDirectory(ctx, s, "run1", d, acseg.Zstd); err != nil {
		t.Fatal(err)
	}
	got, err := storage.GetDirectory(ctx, s, "run1")
	if err != nil {
		t.Fatal(err)
	}
	gotFull, err := got.GetSparse(0, records.Full)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(full, gotFull); diff != "" {
		t.Errorf("Stored coordinates changed (-want +got):\n%s", diff)
	}
	if _, err := storage.GetDirectory(ctx, s, "run2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing directory, got %v\n", err)
	}

	g := voxels.NewGrid(4, 3, 2)
	for i := range g.Data() {
		g.Data()[i] = float32(i) / 3
	}
	if err := g.SetResolution(0.5, 0.5, 2); err != nil {
		t.Fatal(err)
	}
	if err := storage.PutGrid(ctx, s, "guidance", g, acseg.Snappy); err != nil {
		t.Fatal(err)
	}
	g2, err := storage.GetGrid(ctx, s, "guidance")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(g.Data(), g2.Data()); diff != "" {
		t.Errorf("Stored grid changed (-want +got):\n%s", diff)
	}
	if g2.Resolution() != g.Resolution() {
		t.Errorf("Expected resolution %v, got %v\n", g.Resolution(), g2.Resolution())
	}
	if _, err := storage.DecodeGrid(storage.EncodeGrid(g)[:30]); err == nil {
		t.Errorf("Expected error decoding truncated grid\n")
	}

	names, err := storage.List(ctx, s, storage.GridPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"guidance"}, names); diff != "" {
		t.Errorf("Bad grid listing (-want +got):\n%s", diff)
	}
}

func TestDecodeGridOverflow(t *testing.T) {
	buf := make([]byte, 24)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], 1<<22)
		binary.LittleEndian.PutUint32(buf[12+4*i:], 0x3f800000) // 1.0
	}
	if g, err := storage.DecodeGrid(buf); err == nil {
		t.Errorf("expected overflowing grid header to be rejected, got %s\n", g)
	}
	binary.LittleEndian.PutUint32(buf[0:], 0xffffffff)
	if _, err := storage.DecodeGrid(buf); err == nil {
		t.Errorf("expected huge dimension to be rejected\n")
	}

	g := voxels.NewGrid(2, 2, 1)
	g.Set(1, 1, 0, 3)
	decoded, err := storage.DecodeGrid(storage.EncodeGrid(g))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.At(1, 1, 0) != 3 {
		t.Errorf("expected round trip value 3, got %g\n", decoded.At(1, 1, 0))
	}
}
