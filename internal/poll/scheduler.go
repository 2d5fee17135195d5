package poll

import (
	"context"
	"sync"
	"time"
)

// Scheduler invokes fn every interval until the returned cancel is called.
// Implementations must not run fn concurrently with itself.
type Scheduler interface {
	Schedule(fn func(context.Context), every time.Duration) (cancel func())
}

// TickerScheduler drives fn from a time.Ticker on a single goroutine, so a
// slow tick delays the next one instead of overlapping it.
type TickerScheduler struct{}

// Schedule implements Scheduler. Cancel stops the ticker, cancels the context
// passed to an in-flight fn and waits for it to return.
func (TickerScheduler) Schedule(fn func(context.Context), every time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
