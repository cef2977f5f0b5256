package metrics

import (
	"context"
	"time"
)

// Sink consumes batches of events. Implementations must be safe for repeated
// calls and honor ctx deadlines. The Recorder calls a sink from its single
// background goroutine only.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Clock returns the current time; events are stamped with it.
type Clock interface {
	Now() time.Time
}
