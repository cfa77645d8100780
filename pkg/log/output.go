package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
)

// writerOutput writes formatted entries to an io.Writer behind a mutex.
type writerOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutput returns an Output writing to w. Writes are serialized.
func NewWriterOutput(w io.Writer) Output { return &writerOutput{w: w} }

// NewConsoleOutput returns an Output writing to stderr.
func NewConsoleOutput() Output { return &writerOutput{w: os.Stderr} }

func (o *writerOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

func (o *writerOutput) Close() error { return nil }

// RedirectStdLog routes the standard library's log package (used by Pebble
// among others) through the provided logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger})
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg, Component("stdlog"))
	}
	return len(p), nil
}
