// Package logging builds the *log.Logger instances handed to taskboard
// components. All loggers from one Factory share a writer: stderr, a
// size-rotated file, or nothing.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/taskboard/internal/config"
)

// Factory hands out prefixed loggers over a shared writer.
type Factory struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
}

// NewFactory returns a factory for cfg. With a log file configured, output
// goes to the file (rotated by size) and also to stderr unless Quiet is
// set. Without one, output goes to stderr, or nowhere when Quiet.
func NewFactory(cfg config.LogConfig) *Factory {
	return newFactory(cfg, os.Stderr)
}

func newFactory(cfg config.LogConfig, stderr io.Writer) *Factory {
	f := &Factory{}

	var writers []io.Writer
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		writers = append(writers, rotator)
		f.closer = rotator
	}
	if !cfg.Quiet {
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f
}

// Logger returns a logger writing "[component] " prefixed lines.
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f, "["+component+"] ", log.LstdFlags)
}

// Write implements io.Writer so every logger shares one serialized sink.
func (f *Factory) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

// Close releases the log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
