// Package sinks provides the event sink implementations wired into the
// dispatcher: NDJSON file, structured log, and Prometheus counters.
package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/events"
)

// FileSink appends one JSON object per line to a file. Lines are flushed on
// every write so a crashed run still leaves a usable prefix of the stream.
type FileSink struct {
	f *os.File
	w *bufio.Writer
}

// NewFileSink opens (or creates) the NDJSON events file for appending.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open events file %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f)}, nil
}

// Write serializes the event and appends it as one line.
func (s *FileSink) Write(evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush events file: %w", err)
	}
	return nil
}

// Close flushes buffered lines and closes the file.
func (s *FileSink) Close(context.Context) error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush events file: %w", err)
	}
	return s.f.Close()
}
