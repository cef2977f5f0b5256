package metrics

import (
	"context"
	"fmt"
	"time"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleRecorder_Increment demonstrates recording events and flushing via Close.
func ExampleRecorder_Increment() {
	sink := &exampleCountingSink{}
	rec := NewRecorder(Config{
		BufferSize:   4,
		MaxBatchWait: time.Second,
	}, sink)

	rec.Increment("https://example.com/jobs", "OK")
	rec.Increment("https://example.com/missing", "404")
	if err := rec.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 2
}
