package bigtable

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/bigtable/bttest"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/janelia-flyem/acseg/storage"
)

func testTable(t *testing.T) (*BigTable, bool) {
	srv, err := bttest.NewServer("localhost:0")
	if err != nil {
		t.Fatalf("unable to start bigtable test server: %v\n", err)
	}
	t.Cleanup(srv.Close)
	t.Setenv("BIGTABLE_EMULATOR_HOST", srv.Addr)
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("unable to dial bigtable test server: %v\n", err)
	}
	config := storage.Config{
		Engine:  "bigtable",
		Path:    "segmentation",
		Options: map[string]string{"project": "proj", "instance": "inst"},
	}
	db, created, err := open(context.Background(), config, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}
	return db, created
}

func TestBigTableStore(t *testing.T) {
	if storage.GetEngine("bigtable") == nil {
		t.Fatalf("Init does not register 'bigtable' engine.\n")
	}
	db, created := testTable(t)
	if !created {
		t.Errorf("expected table to be created\n")
	}
	ctx := context.Background()

	if _, err := db.Get(ctx, "directory/none"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v\n", err)
	}
	for key, value := range map[string]string{
		"directory/a": "first",
		"directory/b": "second",
		"grid/a":      "grid",
	} {
		if err := db.Put(ctx, key, []byte(value)); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Put(ctx, "directory/a", []byte("replaced")); err != nil {
		t.Fatal(err)
	}
	value, err := db.Get(ctx, "directory/a")
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "replaced" {
		t.Errorf("expected replaced value, got %q\n", value)
	}
	keys, err := db.Keys(ctx, "directory/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"directory/a", "directory/b"}, keys); diff != "" {
		t.Errorf("bad keys (-want +got):\n%s", diff)
	}
	if err := db.Delete(ctx, "directory/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get(ctx, "directory/a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v\n", err)
	}
}

func TestBigTableConfig(t *testing.T) {
	e := storage.GetEngine("bigtable")
	if _, _, err := e.NewStore(storage.Config{Engine: "bigtable", Path: "t"}); err == nil {
		t.Errorf("expected missing project to fail\n")
	}
	if _, _, err := e.NewStore(storage.Config{Engine: "bigtable", InMemory: true}); err == nil {
		t.Errorf("expected in-memory bigtable to fail\n")
	}
}
