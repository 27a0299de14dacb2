package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/contour"
	"github.com/janelia-flyem/acseg/pipeline"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/storage"
	_ "github.com/janelia-flyem/acseg/storage/blobstore"
	"github.com/janelia-flyem/acseg/voxels"
)

const testItem = "0 0 seeds 5 3.0 0.1 2 1 0 0 2 false 4 1 1 2 3 6"

func TestParseWorkItem(t *testing.T) {
	defaults := contour.DefaultParameters()
	w, err := ParseWorkItem(testItem, defaults)
	if err != nil {
		t.Fatalf("couldn't parse work item: %v\n", err)
	}
	expected := WorkItem{
		Seeds: "seeds",
		Params: contour.Parameters{
			HalfWindow:      5,
			TMax:            3,
			Dt:              0.1,
			SussmanInterval: 2,
			C:               1,
			D:               0,
			Epsilon:         0,
			R:               2,
			NarrowBand:      4,
			Resolution:      [3]float32{1, 1, 2},
		},
		Movie: contour.MovieSpec{Option: contour.MovieXY, Slice: 6},
	}
	if diff := cmp.Diff(expected, w); diff != "" {
		t.Errorf("bad work item (-want +got):\n%s", diff)
	}

	w, err = ParseWorkItem(strings.Replace(testItem, "false", "true", 1), defaults)
	if err != nil || !w.UseSpecific {
		t.Errorf("expected per-seed parameters enabled, got %v (%v)\n", w.UseSpecific, err)
	}

	bad := []string{
		"0 0 seeds 5",
		testItem + " extra",
		strings.Replace(testItem, "0.1", "fast", 1),
		strings.Replace(testItem, " 0.1 ", " 0 ", 1),
		strings.Replace(testItem, " 3 6", " 7 6", 1),
		strings.Replace(testItem, " 1 1 2 ", " 1 -1 2 ", 1),
	}
	for _, item := range bad {
		if _, err := ParseWorkItem(item, defaults); err == nil {
			t.Errorf("expected error for work item %q\n", item)
		}
	}
}

func TestCLIWork(t *testing.T) {
	input := "# seeds to run\n\n" + testItem + "\n  second item  \n"
	var out bytes.Buffer
	c := NewCLI(nil, strings.NewReader(input), &out)
	var got []string
	for {
		item, err := c.GetMoreWork()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, item)
	}
	if diff := cmp.Diff([]string{testItem, "second item"}, got); diff != "" {
		t.Errorf("bad work items (-want +got):\n%s", diff)
	}

	c.Progress(10)
	c.Progress(10)
	c.Progress(100)
	if out.String() != "progress: 10%\nprogress: 100%\n" {
		t.Errorf("bad progress output %q\n", out.String())
	}

	if c.ShouldInterrupt() {
		t.Errorf("new host should not be interrupted\n")
	}
	c.Interrupt()
	if !c.ShouldInterrupt() {
		t.Errorf("expected interrupt after Interrupt()\n")
	}

	listed := NewCLI([]string{"a", "b"}, strings.NewReader(testItem), nil)
	for _, want := range []string{"a", "b"} {
		if item, err := listed.GetMoreWork(); err != nil || item != want {
			t.Errorf("expected item %q, got %q (%v)\n", want, item, err)
		}
	}
	if _, err := listed.GetMoreWork(); !errors.Is(err, io.EOF) {
		t.Errorf("expected listed items to ignore reader, got %v\n", err)
	}
}

func TestCommand(t *testing.T) {
	cmd := Command(strings.Fields("run acseg.toml guidance=guide item1 scale=2.5 item2"))
	if cmd.Name() != "run" {
		t.Errorf("bad command name %q\n", cmd.Name())
	}
	var config, first string
	overflow := cmd.CommandArgs(&config, &first)
	if config != "acseg.toml" || first != "item1" {
		t.Errorf("bad command args %q %q\n", config, first)
	}
	if diff := cmp.Diff([]string{"item2"}, overflow); diff != "" {
		t.Errorf("bad overflow (-want +got):\n%s", diff)
	}
	if v, found := cmd.Setting(KeyGuidance); !found || v != "guide" {
		t.Errorf("bad guidance setting %q\n", v)
	}
	if v := cmd.SettingOr(KeyPrevious, pipeline.NoPrevious); v != pipeline.NoPrevious {
		t.Errorf("expected default previous, got %q\n", v)
	}
	if v, err := cmd.FloatSetting(KeyScale, 1); err != nil || v != 2.5 {
		t.Errorf("bad scale %g (%v)\n", v, err)
	}
	if _, err := Command([]string{"draw", "scale=big"}).FloatSetting(KeyScale, 1); err == nil {
		t.Errorf("expected bad scale to be rejected\n")
	}
}

// testHost hands out fixed work and records progress and log messages.
type testHost struct {
	items     []string
	interrupt bool

	mu       sync.Mutex
	progress []int
	messages []string
}

func (h *testHost) GetMoreWork() (string, error) {
	if len(h.items) == 0 {
		return "", io.EOF
	}
	item := h.items[0]
	h.items = h.items[1:]
	return item, nil
}

func (h *testHost) Progress(percent int) {
	h.mu.Lock()
	h.progress = append(h.progress, percent)
	h.mu.Unlock()
}

func (h *testHost) ShouldInterrupt() bool { return h.interrupt }

func (h *testHost) Logger() acseg.Logger { return h }

func (h *testHost) record(level, format string, args ...interface{}) {
	h.mu.Lock()
	h.messages = append(h.messages, level+" "+fmt.Sprintf(format, args...))
	h.mu.Unlock()
}

func (h *testHost) Debugf(format string, args ...interface{})    { h.record("DEBUG", format, args...) }
func (h *testHost) Infof(format string, args ...interface{})     { h.record("INFO", format, args...) }
func (h *testHost) Warningf(format string, args ...interface{})  { h.record("WARNING", format, args...) }
func (h *testHost) Errorf(format string, args ...interface{})    { h.record("ERROR", format, args...) }
func (h *testHost) Criticalf(format string, args ...interface{}) { h.record("CRITICAL", format, args...) }
func (h *testHost) Shutdown()                                    {}

func testDriver(t *testing.T) (*pipeline.Driver, storage.Store) {
	ctx := context.Background()
	store, err := storage.Open(storage.Config{Engine: "blob", InMemory: true})
	if err != nil {
		t.Fatalf("couldn't open store: %v\n", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := storage.PutGrid(ctx, store, "guide", voxels.NewGrid(16, 16, 8), acseg.Uncompressed); err != nil {
		t.Fatal(err)
	}
	seeds := records.New()
	if err := seeds.AppendXYZ([]float32{5, 10}, []float32{8, 8}, []float32{4, 4}); err != nil {
		t.Fatal(err)
	}
	if err := storage.PutDirectory(ctx, store, "seeds", seeds, acseg.Uncompressed); err != nil {
		t.Fatal(err)
	}
	c := pipeline.DefaultConfig()
	c.Output.Compression = "none"
	return pipeline.NewDriver(&c, store), store
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	d, store := testDriver(t)
	h := &testHost{items: []string{testItem}}
	template := d.JobDefaults()
	template.Guidance = "guide"

	reports, err := Process(ctx, h, d, template)
	if err != nil {
		t.Fatalf("processing failed: %v\n", err)
	}
	if len(reports) != 1 || reports[0].Rounds != 3 {
		t.Fatalf("expected one report of 3 rounds, got %d reports\n", len(reports))
	}
	if len(h.progress) == 0 || h.progress[len(h.progress)-1] != 100 {
		t.Errorf("bad progress: %v\n", h.progress)
	}
	if len(h.messages) == 0 {
		t.Errorf("expected log messages routed to host\n")
	}

	out, err := storage.GetDirectory(ctx, store, "seeds"+OutputSuffix)
	if err != nil {
		t.Fatalf("couldn't read output: %v\n", err)
	}
	if out.Len() != 2 {
		t.Errorf("expected 2 segmented seeds, got %d\n", out.Len())
	}
	movie, err := storage.GetGrid(ctx, store, "seeds"+OutputSuffix+"/"+pipeline.MovieGrid)
	if err != nil {
		t.Fatalf("couldn't read movie: %v\n", err)
	}
	if nx, ny, nz := movie.Dims(); nx != 16 || ny != 16 || nz != 3 {
		t.Errorf("bad movie dims %d x %d x %d\n", nx, ny, nz)
	}

	h = &testHost{items: []string{testItem, testItem}, interrupt: true}
	reports, err = Process(ctx, h, d, template)
	if !errors.Is(err, acseg.ErrInterrupted) {
		t.Errorf("expected interruption, got %v\n", err)
	}
	if len(reports) != 1 || len(h.items) != 1 {
		t.Errorf("expected processing to stop after the interrupted item\n")
	}

	h = &testHost{items: []string{"0 0 seeds"}}
	if _, err := Process(ctx, h, d, template); err == nil {
		t.Errorf("expected bad work item to fail\n")
	}
}
