package scraper

import (
	"context"
	"time"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

// Fetcher retrieves a page body. A failure carrying a wire-level status
// should be returned as a *StatusError.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// Cache stores the last-seen fragment set per target. Put replaces any
// existing value. A missing key reports ok=false.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
}

// Sender delivers one notification for a newly observed fragment.
type Sender interface {
	Send(ctx context.Context, address string, t target.Target, message string) error
}

// Recorder accepts one metrics event per fetch attempt. It must not block.
type Recorder interface {
	Increment(target, status string)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
