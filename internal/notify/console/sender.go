// Package console implements a Sender that prints notifications.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

// Sender writes one line per notification to an io.Writer.
type Sender struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

// New returns a Sender writing to out (stdout when nil).
func New(out io.Writer, logger *zap.Logger) *Sender {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{out: out, logger: logger}
}

// Send prints the notification.
func (s *Sender) Send(_ context.Context, address string, t target.Target, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.out, "[to %s] Target %s. msg: \n %s\n", address, t.URI, message); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	s.logger.Debug("notification printed", zap.String("uri", t.URI), zap.String("address", address))
	return nil
}
