package acseg

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// stdLogger writes through the standard log package, which goes to stderr
// until a log file is configured.
type stdLogger struct {
	file *lumberjack.Logger
}

var logger Logger = stdLogger{}

// LogConfig is the [logging] section of the configuration.  An empty Logfile
// keeps messages on stderr.
type LogConfig struct {
	Logfile string
	MaxSize int    `toml:"max_log_size"` // megabytes
	MaxAge  int    `toml:"max_log_age"`  // days
	Level   string `toml:"level"`
}

// SetLogger applies the level and, if a log file is named, installs a
// rotating file logger.
func (c *LogConfig) SetLogger() error {
	if c == nil {
		return nil
	}
	if c.Level != "" {
		l, err := ParseLevel(c.Level)
		if err != nil {
			return err
		}
		SetLevel(l)
	}
	if c.Logfile == "" {
		Infof("No log file configured, logging to stderr.\n")
		return nil
	}
	fmt.Printf("Logging to %s\n", c.Logfile)
	f := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(f)
	logger = stdLogger{f}
	return nil
}

func (stdLogger) Debugf(format string, args ...interface{}) {
	log.Printf(" DEBUG "+format, args...)
}

func (stdLogger) Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

func (stdLogger) Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

func (stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}

func (stdLogger) Criticalf(format string, args ...interface{}) {
	log.Printf(" CRITICAL "+format, args...)
}

func (s stdLogger) Shutdown() {
	if s.file != nil {
		log.Printf("Closing log file %s\n", s.file.Filename)
		s.file.Close()
	}
}
