package acseg

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Level is the minimum severity of messages that reach the logger.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
	LevelSilent
)

var levelNames = [...]string{"debug", "info", "warning", "error", "critical", "silent"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelSilent {
		return fmt.Sprintf("Level(%d)", int32(l))
	}
	return levelNames[l]
}

// ParseLevel accepts the lower-case level names, e.g. "warning".
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Verbose turns on per-round contour statistics.
var Verbose bool

var level atomic.Int32

func init() {
	level.Store(int32(LevelInfo))
}

// SetLevel sets the threshold for logged messages.  LevelSilent turns
// logging off.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// Logger is the destination of log messages.  Hosts that embed the engine
// install their own with SetLogger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	// Shutdown flushes and closes any log file.
	Shutdown()
}

// SetLogger installs l and returns the logger it replaced.  A nil l changes
// nothing.
func SetLogger(l Logger) (previous Logger) {
	previous = logger
	if l != nil {
		logger = l
	}
	return
}

func logf(l Level, dst Logger, format string, args ...interface{}) {
	if l < Level(level.Load()) {
		return
	}
	switch l {
	case LevelDebug:
		dst.Debugf(format, args...)
	case LevelInfo:
		dst.Infof(format, args...)
	case LevelWarning:
		dst.Warningf(format, args...)
	case LevelError:
		dst.Errorf(format, args...)
	default:
		dst.Criticalf(format, args...)
	}
}

func Debugf(format string, args ...interface{})    { logf(LevelDebug, logger, format, args...) }
func Infof(format string, args ...interface{})     { logf(LevelInfo, logger, format, args...) }
func Warningf(format string, args ...interface{})  { logf(LevelWarning, logger, format, args...) }
func Errorf(format string, args ...interface{})    { logf(LevelError, logger, format, args...) }
func Criticalf(format string, args ...interface{}) { logf(LevelCritical, logger, format, args...) }

// Shutdown closes the installed logger.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time since its creation to each message, e.g.
// "Opened badger @ /data: 1.2s".
type TimeLog struct {
	dst   Logger
	start time.Time
}

// NewTimeLog starts timing against the currently installed logger.
func NewTimeLog() TimeLog {
	return TimeLog{logger, time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	logf(LevelDebug, t.dst, format+": %s\n", append(args, t.Elapsed())...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	logf(LevelInfo, t.dst, format+": %s\n", append(args, t.Elapsed())...)
}

func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}
