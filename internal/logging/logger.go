package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger defines a minimal, printf-style logging contract so packages can
// depend on this interface without caring about the concrete sink.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

var (
	defaultMu    sync.RWMutex
	defaultLevel = INFO
	defaultOut   io.Writer = os.Stdout
)

// SetLevel sets the minimum level for loggers created by NewComponentLogger.
func SetLevel(level Level) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = level
}

// SetOutput redirects all component loggers to w. Intended for tests.
func SetOutput(w io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOut = w
}

// componentLogger writes timestamped, component-tagged lines to the shared sink.
type componentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) log(level Level, format string, args ...any) {
	defaultMu.RLock()
	minLevel := defaultLevel
	out := defaultOut
	defaultMu.RUnlock()

	if level < minLevel {
		return
	}

	// Format: 2025-09-30 12:34:56 [INFO] [Component] - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s [%s] [%s] - %s\n", timestamp, level, l.component, message)
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.log(DEBUG, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.log(INFO, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.log(WARN, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.log(ERROR, format, args...)
}
