package bridge

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Coalesce groups updates from in into batches emitted at most once per
// interval. Every update is forwarded exactly once and in order; only the
// timing of delivery changes. The output is closed after in is closed and the
// last batch is sent, or when ctx is done.
func Coalesce(ctx context.Context, in <-chan Update, interval time.Duration) <-chan []Update {
	out := make(chan []Update)
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	go func() {
		defer close(out)
		var batch []Update
		for {
			if len(batch) == 0 {
				if in == nil {
					return
				}
				select {
				case u, ok := <-in:
					if !ok {
						return
					}
					batch = append(batch, u)
				case <-ctx.Done():
					return
				}
			}

			// Keep collecting until the limiter lets the batch through.
			wait := time.NewTimer(limiter.Reserve().Delay())
		collect:
			for {
				select {
				case u, ok := <-in:
					if !ok {
						in = nil
						continue
					}
					batch = append(batch, u)
				case <-wait.C:
					break collect
				case <-ctx.Done():
					wait.Stop()
					return
				}
			}

			select {
			case out <- batch:
				batch = nil
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
