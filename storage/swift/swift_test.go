package swift

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ncw/swift/swifttest"

	"github.com/janelia-flyem/acseg/storage"
)

func testServer(t *testing.T) storage.Config {
	srv, err := swifttest.NewSwiftServer("localhost")
	if err != nil {
		t.Fatalf("unable to start swift test server: %v\n", err)
	}
	t.Cleanup(srv.Close)
	return storage.Config{
		Engine: "swift",
		Path:   "segmentation",
		Options: map[string]string{
			"user": swifttest.TEST_ACCOUNT,
			"key":  swifttest.TEST_ACCOUNT,
			"auth": srv.AuthURL,
		},
	}
}

func TestSwiftStore(t *testing.T) {
	if storage.GetEngine("swift") == nil {
		t.Fatalf("Init does not register 'swift' engine.\n")
	}
	config := testServer(t)
	s, created, err := storage.GetEngine("swift").NewStore(config)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if !created {
		t.Errorf("expected container to be created\n")
	}

	ctx := context.Background()
	if _, err := s.Get(ctx, "directory/none"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v\n", err)
	}
	for key, value := range map[string]string{
		"directory/a": "first",
		"directory/b": "second",
		"grid/a":      "grid",
	} {
		if err := s.Put(ctx, key, []byte(value)); err != nil {
			t.Fatal(err)
		}
	}
	value, err := s.Get(ctx, "directory/b")
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "second" {
		t.Errorf("expected %q, got %q\n", "second", value)
	}
	keys, err := s.Keys(ctx, "directory/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"directory/a", "directory/b"}, keys); diff != "" {
		t.Errorf("bad keys (-want +got):\n%s", diff)
	}
	if err := s.Delete(ctx, "directory/a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "directory/a"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v\n", err)
	}
	if _, err := s.Get(ctx, "directory/a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v\n", err)
	}

	// Reopening finds the existing container.
	s2, created, err := storage.GetEngine("swift").NewStore(config)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Errorf("expected existing container on reopen\n")
	}
	if _, err := s2.Get(ctx, "grid/a"); err != nil {
		t.Errorf("expected grid/a in reopened store: %v\n", err)
	}
}

func TestSwiftConfig(t *testing.T) {
	e := storage.GetEngine("swift")
	if _, _, err := e.NewStore(storage.Config{Engine: "swift", InMemory: true}); err == nil {
		t.Errorf("expected in-memory swift to fail\n")
	}
	if _, _, err := e.NewStore(storage.Config{Engine: "swift", Path: "c"}); err == nil {
		t.Errorf("expected missing credentials to fail\n")
	}
}
