package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel converts a log_level value (with or without a leading colon) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ":")) {
	case "debug", "trace":
		return LevelDebug, nil
	case "info", "auto", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Logger struct {
	Verbose bool
	Debug   bool

	// Level drops messages below it. The zero value keeps everything.
	Level Level

	// Out receives info and debug messages. Defaults to os.Stdout.
	Out io.Writer
	// Err receives warnings and errors. Defaults to os.Stderr.
	Err io.Writer
}

// FromLevel builds a Logger that honours a configured level. A configured debug
// level turns on everything. The --debug flag overrides a quieter level; with
// --verbose, info lines still only appear when the level allows them.
func FromLevel(level Level, verbose, debug bool) Logger {
	if debug {
		level = LevelDebug
	}
	debug = level == LevelDebug
	return Logger{
		Verbose: verbose || debug,
		Debug:   debug,
		Level:   level,
	}
}

// OpenSink resolves a log_location value into a writer. The returned close
// function is a no-op for the standard streams.
func OpenSink(location string) (io.Writer, func() error, error) {
	switch strings.ToUpper(strings.TrimSpace(location)) {
	case "", "STDOUT":
		return os.Stdout, func() error { return nil }, nil
	case "STDERR":
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(location, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log location %s: %w", location, err)
	}
	return f, f.Close, nil
}

func (l Logger) out() io.Writer {
	if l.Out != nil {
		return l.Out
	}
	return os.Stdout
}

func (l Logger) err() io.Writer {
	if l.Err != nil {
		return l.Err
	}
	return os.Stderr
}

func (l Logger) Infof(msg string, args ...any) {
	if l.Verbose && l.Level <= LevelInfo {
		fmt.Fprintf(l.out(), color.GreenString("[info] ")+msg+"\n", args...)
	}
}

func (l Logger) Debugf(msg string, args ...any) {
	if l.Debug {
		fmt.Fprintf(l.out(), color.CyanString("[debug] ")+msg+"\n", args...)
	}
}

func (l Logger) Warnf(msg string, args ...any) {
	if l.Level > LevelWarn {
		return
	}
	fmt.Fprintf(l.err(), color.YellowString("[warn] ")+msg+"\n", args...)
}

func (l Logger) Errorf(msg string, args ...any) {
	if l.Level > LevelError {
		return
	}
	fmt.Fprintf(l.err(), color.RedString("[error] ")+msg+"\n", args...)
}
