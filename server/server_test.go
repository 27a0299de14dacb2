package server

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/storage"
	_ "github.com/janelia-flyem/acseg/storage/blobstore"
	"github.com/janelia-flyem/acseg/voxels"
)

func testStore(t *testing.T) storage.Store {
	ctx := context.Background()
	store, err := storage.Open(storage.Config{Engine: "blob", InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	dir := records.New()
	if err := dir.AppendXYZ([]float32{1, 3}, []float32{1, 2}, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := dir.SetList(records.FieldIdx, []float32{4, 7}); err != nil {
		t.Fatal(err)
	}
	full := acseg.NewCoords(3)
	full.Append(1, 1, 0)
	full.Append(2, 1, 0)
	full.Append(1, 2, 0)
	if err := dir.SetSparse(0, records.Full, full); err != nil {
		t.Fatal(err)
	}
	perim := acseg.NewCoords(1)
	perim.Append(2, 1, 0)
	if err := dir.SetSparse(0, records.Perimeter, perim); err != nil {
		t.Fatal(err)
	}
	dir.SetDims(4, 3, 2)
	if err := storage.PutDirectory(ctx, store, "result", dir, acseg.Snappy); err != nil {
		t.Fatal(err)
	}

	g := voxels.NewGrid(4, 3, 2)
	g.Set(2, 1, 1, 7)
	g.Set(3, 2, 1, 1e6)
	if err := g.SetResolution(0.5, 0.5, 2); err != nil {
		t.Fatal(err)
	}
	if err := storage.PutGrid(ctx, store, "labels", g, acseg.Uncompressed); err != nil {
		t.Fatal(err)
	}
	return store
}

func get(t *testing.T, h http.Handler, url string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	if w.Code != http.StatusOK {
		t.Fatalf("expected OK, got %d: %s\n", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("bad JSON %q: %v\n", w.Body.String(), err)
	}
}

func TestRoutes(t *testing.T) {
	s, err := New(Config{}, testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	h := s.Handler()

	var names []string
	decode(t, get(t, h, "/api/directories", nil), &names)
	if diff := cmp.Diff([]string{"result"}, names); diff != "" {
		t.Errorf("bad directory list (-want +got):\n%s", diff)
	}
	decode(t, get(t, h, "/api/grids", nil), &names)
	if diff := cmp.Diff([]string{"labels"}, names); diff != "" {
		t.Errorf("bad grid list (-want +got):\n%s", diff)
	}

	var summary directorySummary
	decode(t, get(t, h, "/api/directory/result", nil), &summary)
	if summary.Dims != [3]int{4, 3, 2} || len(summary.Seeds) != 2 {
		t.Fatalf("bad directory summary: %+v\n", summary)
	}
	wantSeeds := []seedSummary{
		{Idx: 4, Center: [3]float32{1, 1, 0}, Volume: 3},
		{Idx: 7, Center: [3]float32{3, 2, 1}, Volume: 0},
	}
	if diff := cmp.Diff(wantSeeds, summary.Seeds); diff != "" {
		t.Errorf("bad seeds (-want +got):\n%s", diff)
	}

	var sv seedVoxels
	decode(t, get(t, h, "/api/directory/result/seed/4?select=perimeter", nil), &sv)
	want := seedVoxels{Idx: 4, Select: "perimeter", X: []int32{2}, Y: []int32{1}, Z: []int32{0}}
	if diff := cmp.Diff(want, sv); diff != "" {
		t.Errorf("bad seed voxels (-want +got):\n%s", diff)
	}
	decode(t, get(t, h, "/api/directory/result/seed/4", nil), &sv)
	if len(sv.X) != 3 || sv.Select != "full" {
		t.Errorf("expected 3 full voxels by default, got %+v\n", sv)
	}

	var gs gridSummary
	decode(t, get(t, h, "/api/grid/labels/info", nil), &gs)
	wantGrid := gridSummary{Name: "labels", Dims: [3]int{4, 3, 2}, Resolution: [3]float32{0.5, 0.5, 2}, Min: 0, Max: 1e6}
	if diff := cmp.Diff(wantGrid, gs); diff != "" {
		t.Errorf("bad grid info (-want +got):\n%s", diff)
	}

	w := get(t, h, "/api/grid/labels/xy/1?scale=2", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("bad slice response %d %q\n", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("expected 16-bit gray slice, got %T\n", img)
	}
	if gray.Bounds().Dx() != 4 || gray.Bounds().Dy() != 3 {
		t.Errorf("bad slice bounds %v\n", gray.Bounds())
	}
	if v := gray.Gray16At(2, 1).Y; v != 14 {
		t.Errorf("expected scaled voxel 14, got %d\n", v)
	}
	if v := gray.Gray16At(3, 2).Y; v != 65535 {
		t.Errorf("expected clamped voxel, got %d\n", v)
	}
}

func TestRouteErrors(t *testing.T) {
	s, err := New(Config{}, testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	h := s.Handler()
	tests := []struct {
		url  string
		code int
	}{
		{"/api/directory/missing", http.StatusNotFound},
		{"/api/directory/result/seed/9", http.StatusNotFound},
		{"/api/directory/result/seed/x", http.StatusBadRequest},
		{"/api/directory/result/seed/4?select=outline", http.StatusBadRequest},
		{"/api/grid/missing/info", http.StatusNotFound},
		{"/api/grid/labels/xy/2", http.StatusBadRequest},
		{"/api/grid/labels/xy/0?format=bmp", http.StatusBadRequest},
		{"/api/grid/labels/xy/0?scale=big", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if w := get(t, h, tc.url, nil); w.Code != tc.code {
			t.Errorf("%s: expected status %d, got %d\n", tc.url, tc.code, w.Code)
		}
	}
}

func TestAuthorization(t *testing.T) {
	authFile := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(authFile, []byte(`{"flyem": "read"}`), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{SecretKey: "not-so-secret", AuthFile: authFile}, testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	h := s.Handler()

	if w := get(t, h, "/api/directories", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected unauthorized without token, got %d\n", w.Code)
	}
	good, err := s.GenerateJWT("flyem")
	if err != nil {
		t.Fatal(err)
	}
	if w := get(t, h, "/api/directories", map[string]string{"Authorization": "Bearer " + good}); w.Code != http.StatusOK {
		t.Errorf("expected listed user to read, got %d\n", w.Code)
	}
	stranger, err := s.GenerateJWT("stranger")
	if err != nil {
		t.Fatal(err)
	}
	if w := get(t, h, "/api/directories", map[string]string{"Authorization": "Bearer " + stranger}); w.Code != http.StatusForbidden {
		t.Errorf("expected unlisted user to be forbidden, got %d\n", w.Code)
	}

	other, err := New(Config{SecretKey: "another-key"}, s.store)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.GenerateJWT("flyem")
	if err != nil {
		t.Fatal(err)
	}
	if w := get(t, h, "/api/directories", map[string]string{"Authorization": "Bearer " + forged}); w.Code != http.StatusUnauthorized {
		t.Errorf("expected token signed with another key to fail, got %d\n", w.Code)
	}
	if _, err := (&Server{}).GenerateJWT("flyem"); err == nil {
		t.Errorf("expected token generation without a key to fail\n")
	}
}

func TestCORS(t *testing.T) {
	s, err := New(Config{AllowedOrigins: []string{"https://viewer.example.org"}}, testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	h := s.Handler()
	w := get(t, h, "/api/grids", map[string]string{"Origin": "https://viewer.example.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://viewer.example.org" {
		t.Errorf("expected allowed origin echoed, got %q\n", got)
	}
	w = get(t, h, "/api/grids", map[string]string{"Origin": "https://elsewhere.example.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for other origin, got %q\n", got)
	}
}

func TestServeShutdown(t *testing.T) {
	s, err := New(Config{HTTPAddress: "localhost:0"}, testStore(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Serve(ctx); err != nil && err != http.ErrServerClosed {
		t.Errorf("expected clean shutdown, got %v\n", err)
	}
}
