package acseg

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) record(level, format string, args ...interface{}) {
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func (r *recordingLogger) Debugf(format string, args ...interface{})   { r.record("DEBUG", format, args...) }
func (r *recordingLogger) Infof(format string, args ...interface{})    { r.record("INFO", format, args...) }
func (r *recordingLogger) Warningf(format string, args ...interface{}) { r.record("WARNING", format, args...) }
func (r *recordingLogger) Errorf(format string, args ...interface{})   { r.record("ERROR", format, args...) }
func (r *recordingLogger) Criticalf(format string, args ...interface{}) {
	r.record("CRITICAL", format, args...)
}
func (r *recordingLogger) Shutdown() {}

func useLogger(t *testing.T, l Logger, lvl Level) {
	previous := SetLogger(l)
	SetLevel(lvl)
	t.Cleanup(func() {
		SetLogger(previous)
		SetLevel(LevelInfo)
	})
}

func TestLevelThreshold(t *testing.T) {
	rec := new(recordingLogger)
	useLogger(t, rec, LevelWarning)

	Debugf("d")
	Infof("i")
	Warningf("w %d", 1)
	Errorf("e")
	Criticalf("c")
	want := []string{"WARNING w 1", "ERROR e", "CRITICAL c"}
	if diff := cmp.Diff(want, rec.lines); diff != "" {
		t.Errorf("bad filtered lines (-want +got):\n%s", diff)
	}

	SetLevel(LevelSilent)
	Criticalf("dropped")
	if len(rec.lines) != 3 {
		t.Errorf("expected silent level to drop everything, got %v\n", rec.lines)
	}
}

func TestSetLoggerReturnsPrevious(t *testing.T) {
	first := new(recordingLogger)
	useLogger(t, first, LevelInfo)

	second := new(recordingLogger)
	if prev := SetLogger(second); prev != first {
		t.Errorf("expected first logger back, got %v\n", prev)
	}
	if prev := SetLogger(nil); prev != second {
		t.Errorf("expected second logger back, got %v\n", prev)
	}
	Infof("still second")
	if len(second.lines) != 1 || len(first.lines) != 0 {
		t.Errorf("nil logger should not replace the installed one: %v %v\n", first.lines, second.lines)
	}
}

func TestTimeLog(t *testing.T) {
	rec := new(recordingLogger)
	useLogger(t, rec, LevelInfo)

	tl := NewTimeLog()
	tl.Debugf("hidden")
	tl.Infof("loaded %d grids", 2)
	if len(rec.lines) != 1 {
		t.Fatalf("expected one line, got %v\n", rec.lines)
	}
	if !strings.HasPrefix(rec.lines[0], "INFO loaded 2 grids: ") || !strings.HasSuffix(rec.lines[0], "\n") {
		t.Errorf("expected elapsed time appended, got %q\n", rec.lines[0])
	}

	// A TimeLog keeps the logger installed when it was created.
	SetLogger(new(recordingLogger))
	tl.Infof("after swap")
	if len(rec.lines) != 2 {
		t.Errorf("expected TimeLog to keep its logger, got %v\n", rec.lines)
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical, LevelSilent} {
		got, err := ParseLevel(l.String())
		if err != nil || got != l {
			t.Errorf("level %s parsed as %s, %v\n", l, got, err)
		}
	}
	if l, err := ParseLevel("WARNING"); err != nil || l != LevelWarning {
		t.Errorf("expected case-insensitive parse, got %s, %v\n", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Errorf("expected error for unknown level\n")
	}
	if s := Level(42).String(); s != "Level(42)" {
		t.Errorf("bad out-of-range name %q\n", s)
	}
}

func TestLogConfigLevel(t *testing.T) {
	rec := new(recordingLogger)
	useLogger(t, rec, LevelInfo)

	c := &LogConfig{Level: "error"}
	if err := c.SetLogger(); err != nil {
		t.Fatal(err)
	}
	Warningf("dropped")
	Errorf("kept")
	if diff := cmp.Diff([]string{"ERROR kept"}, rec.lines); diff != "" {
		t.Errorf("bad lines after config level (-want +got):\n%s", diff)
	}
	bad := &LogConfig{Level: "chatty", Logfile: filepath.Join(t.TempDir(), "x.log")}
	if err := bad.SetLogger(); err == nil {
		t.Errorf("expected bad level to fail\n")
	}
}
