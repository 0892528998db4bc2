package debug

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool
	logger  = log.New(io.Discard)
)

// DefaultPath returns ~/.config/go-pianola/debug.log
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-pianola", "debug.log"), nil
}

// Enable starts logging to path (DefaultPath if empty), truncating it.
// The TUI owns the terminal, so this is where its logs go.
func Enable(path string, level log.Level) (*log.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		logger.SetLevel(level)
		return logger, nil
	}

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	file = f
	enabled = true
	logger = NewLogger(f, level)
	logger.Info("debug logging started", "path", path)
	return logger, nil
}

// NewLogger returns a timestamped logger in the house format.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
}

// Disable closes the log file. Later calls to Logger discard output.
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
	logger = log.New(io.Discard)
}

// Logger returns the file logger, or a discarding one when disabled.
func Logger() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Sampler lets through the first call for a key and then every Nth one.
// Use it on per-tick paths.
type Sampler struct {
	n      int
	mu     sync.Mutex
	counts map[string]int
}

func NewSampler(n int) *Sampler {
	if n < 1 {
		n = 1
	}
	return &Sampler{n: n, counts: make(map[string]int)}
}

// Allow counts a call for key and reports whether it should be logged.
func (s *Sampler) Allow(key string) (count int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	count = s.counts[key]
	return count, count == 1 || count%s.n == 0
}

// LogEvery logs msg through l at warn level on sampled calls only.
func (s *Sampler) LogEvery(l *log.Logger, key, msg string, keyvals ...any) {
	if count, ok := s.Allow(key); ok {
		l.Warn(msg, append(keyvals, "count", count)...)
	}
}

// Reset clears all counts.
func (s *Sampler) Reset() {
	s.mu.Lock()
	s.counts = make(map[string]int)
	s.mu.Unlock()
}

// Since formats the time since t for log fields.
func Since(t time.Time) string {
	return time.Since(t).Round(time.Millisecond).String()
}
