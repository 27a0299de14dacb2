package host

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys for settings given on the command line as "key=value" strings.
const (
	KeyConfig   = "config"
	KeyGuidance = "guidance"
	KeyPrevious = "previous"
	KeyOutput   = "output"
	KeyStack    = "stack"
	KeyFormat   = "format"
	KeyScale    = "scale"
	KeySelect   = "select"
	KeyHTTP     = "http"
)

var setKeys = map[string]bool{
	KeyConfig:   true,
	KeyGuidance: true,
	KeyPrevious: true,
	KeyOutput:   true,
	KeyStack:    true,
	KeyFormat:   true,
	KeyScale:    true,
	KeySelect:   true,
	KeyHTTP:     true,
}

// Command is a command line.  The first item is the command name.  The other
// items are positional arguments or settings of the form "<key>=<value>".
type Command []string

// String returns a space-separated command line.
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument, which is the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Setting returns the value of a "key=value" argument.
func (cmd Command) Setting(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			k, v, ok := strings.Cut(arg, "=")
			if ok && k == key {
				return v, true
			}
		}
	}
	return
}

// SettingOr returns the value of a setting or def if it is absent.
func (cmd Command) SettingOr(key, def string) string {
	if v, found := cmd.Setting(key); found {
		return v
	}
	return def
}

// FloatSetting returns a numeric setting or def if it is absent.
func (cmd Command) FloatSetting(key string, def float32) (float32, error) {
	s, found := cmd.Setting(key)
	if !found {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return def, fmt.Errorf("bad %s setting %q: %w", key, s, err)
	}
	return float32(v), nil
}

// CommandArgs sets targets to the positional arguments after the command name,
// ignoring settings.  Targets without a matching argument are set to the empty
// string.  Arguments beyond the targets are returned as overflow.
func (cmd Command) CommandArgs(targets ...*string) (overflow []string) {
	for _, target := range targets {
		*target = ""
	}
	if len(cmd) < 2 {
		return
	}
	var curTarget int
	for _, arg := range cmd[1:] {
		if k, _, ok := strings.Cut(arg, "="); ok && setKeys[k] {
			continue
		}
		if curTarget < len(targets) {
			*targets[curTarget] = arg
		} else {
			overflow = append(overflow, arg)
		}
		curTarget++
	}
	return
}
