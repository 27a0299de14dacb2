package acseg

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// NumCPU is the number of cores available to this process.
var NumCPU = runtime.NumCPU()

// InterruptFunc is polled between units of work.  It returns true when the
// current operation should stop at the next checkpoint.
type InterruptFunc func() bool

// Interrupted returns true if f is non-nil and signals interruption.
func (f InterruptFunc) Interrupted() bool {
	return f != nil && f()
}

// ConvertToAbsolute returns a path that is relative to dir if p is not
// already an absolute path.
func ConvertToAbsolute(p, dir string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	abs, err := filepath.Abs(filepath.Join(dir, p))
	if err != nil {
		return p, fmt.Errorf("error converting path %q to absolute: %v", p, err)
	}
	return abs, nil
}
