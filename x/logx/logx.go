// Package logx is a small leveled logger that prints one line per event:
//
//	Info: [keymap] layer 3 active
//
// It is deliberately tiny so it links on MCU builds.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Info"
	case LevelWarn:
		return "Warn"
	case LevelError:
		return "Error"
	default:
		return "Off"
	}
}

// ParseLevel maps config strings to levels; unknown strings yield LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "off":
		return LevelOff
	default:
		return LevelInfo
	}
}

var (
	mu       sync.Mutex
	out      io.Writer = os.Stdout
	minLevel           = LevelInfo
)

// SetOutput redirects all loggers. Nil restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetLevel sets the global minimum level.
func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// Logger tags lines with a component name.
type Logger struct {
	name  string
	level Level
	own   bool // level overrides the global minimum
}

func New(name string) *Logger { return &Logger{name: name} }

// SetLevel overrides the global minimum for this logger only.
func (l *Logger) SetLevel(lv Level) {
	mu.Lock()
	l.level, l.own = lv, true
	mu.Unlock()
}

func (l *Logger) Debugf(format string, a ...any) { l.logf(LevelDebug, format, a...) }
func (l *Logger) Infof(format string, a ...any)  { l.logf(LevelInfo, format, a...) }
func (l *Logger) Warnf(format string, a ...any)  { l.logf(LevelWarn, format, a...) }
func (l *Logger) Errorf(format string, a ...any) { l.logf(LevelError, format, a...) }

func (l *Logger) logf(lvl Level, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	floor := minLevel
	if l.own {
		floor = l.level
	}
	if lvl < floor {
		return
	}
	fmt.Fprintf(out, "%s: [%s] %s\n", lvl, l.name, fmt.Sprintf(format, a...))
}
