// Package trace provides the named-section timing used across gofmm's
// phases. It mirrors the teacher's habit of instrumenting long-running
// passes with log.Printf rather than pulling in a structured logging
// library (see DG3D/mesh/mesh_partitioner.go's use of the standard log
// package for partition progress).
package trace

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Logger is a minimal timer-aware wrapper around the standard library
// logger. A nil *Logger is valid and silently discards output, so phases
// can unconditionally call it without a nil check at every call site.
type Logger struct {
	out     *log.Logger
	verbose bool

	mu     sync.Mutex
	starts map[string]time.Time
}

// New returns a Logger that writes to stderr when verbose is true, and
// discards everything otherwise (timers still no-op cleanly).
func New(verbose bool) *Logger {
	return &Logger{
		out:     log.New(os.Stderr, "", log.LstdFlags),
		verbose: verbose,
		starts:  make(map[string]time.Time),
	}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.out.Printf(format, args...)
}

// StartTimer begins timing a named section. Matches ExaFMM's
// logger::startTimer(name) call pattern seen throughout
// original_source/include/up_down_pass.h.
func (l *Logger) StartTimer(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.starts[name] = time.Now()
	l.mu.Unlock()
}

// StopTimer ends timing a named section and logs the elapsed duration if
// verbose logging is enabled.
func (l *Logger) StopTimer(name string) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	start, ok := l.starts[name]
	delete(l.starts, name)
	l.mu.Unlock()
	if !ok {
		return 0
	}
	elapsed := time.Since(start)
	l.Printf("%-24s : %v", name, elapsed)
	return elapsed
}

// Fatal formats an error and terminates the process. Reserved for
// collective failures that leave solver state invalid (spec.md §7).
func Fatal(format string, args ...interface{}) {
	log.Fatal(fmt.Sprintf(format, args...))
}
