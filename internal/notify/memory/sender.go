// Package memory contains an in-memory Sender for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

// Notification captures one Send call.
type Notification struct {
	Address string
	Target  target.Target
	Message string
}

// Sender stores notifications for inspection.
type Sender struct {
	mu   sync.RWMutex
	sent []Notification
}

// New returns a memory Sender.
func New() *Sender {
	return &Sender{}
}

// Send records the notification.
func (s *Sender) Send(_ context.Context, address string, t target.Target, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Notification{Address: address, Target: t, Message: message})
	return nil
}

// Notifications returns the recorded sends.
func (s *Sender) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

// Reset discards recorded sends.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
