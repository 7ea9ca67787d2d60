// Package log configures the process-wide slog logger.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	panicDir    atomic.Value // string
)

// Setup routes slog through a rotating JSON log file. Only the first call has
// any effect.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		_ = os.MkdirAll(filepath.Dir(logFile), 0755)
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		install(rotator, debug)
		panicDir.Store(filepath.Dir(logFile))
	})
}

// SetupWriter is Setup for an arbitrary writer, used by --verbose to mirror
// logs on stderr.
func SetupWriter(w io.Writer, debug bool) {
	initOnce.Do(func() {
		install(w, debug)
	})
}

func install(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	slog.SetDefault(slog.New(handler))
	initialized.Store(true)
}

// Initialized reports whether Setup has run.
func Initialized() bool {
	return initialized.Load()
}

// panicPath places panic dumps next to the log file, or in the temp dir when
// logging goes to a plain writer.
func panicPath(name string, now time.Time) string {
	dir, _ := panicDir.Load().(string)
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("skiff-panic-%s-%s.log", name, now.Format("20060102-150405")))
}

// RecoverPanic is deferred at the top of background goroutines. It writes the
// panic and stack to a timestamped file (see panicPath) and runs cleanup.
func RecoverPanic(name string, cleanup func()) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("Panic recovered", "goroutine", name, "panic", r)

	if file, err := os.Create(panicPath(name, time.Now())); err == nil {
		fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
		fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
		fmt.Fprintf(file, "Stack Trace:\n%s\n", debug.Stack())
		_ = file.Close()
	}

	if cleanup != nil {
		cleanup()
	}
}
