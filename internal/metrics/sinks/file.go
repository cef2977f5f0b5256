package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/metrics"
)

// FileSink appends each batch to a CSV file. The file is opened per batch in
// append mode and created on first use, so earlier lines are never rewritten.
type FileSink struct {
	path   string
	logger *zap.Logger
}

// NewFileSink constructs a FileSink writing to path.
func NewFileSink(path string, logger *zap.Logger) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("metrics file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{path: path, logger: logger}, nil
}

// Path returns the destination file.
func (s *FileSink) Path() string {
	return s.path
}

// Consume writes the batch as a single append.
func (s *FileSink) Consume(ctx context.Context, batch []metrics.Event) error {
	if s == nil || len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, evt := range batch {
		buf.Write(evt.CSV())
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open metrics file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append metrics: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close metrics file: %w", err)
	}
	s.logger.Debug("metrics batch appended",
		zap.String("path", s.path),
		zap.Int("events", len(batch)),
		zap.Int("bytes", buf.Len()),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *FileSink) Close(context.Context) error {
	return nil
}
