package session

import (
	"context"
	"log/slog"
	"time"
)

// Revalidator re-checks a held session on a fixed interval for as long as
// the session lives. It stops on its own when the session is found invalid
// or the context is cancelled, so no recurring work leaks past the session.
type Revalidator struct {
	coord    *Coordinator
	interval time.Duration
}

// NewRevalidator creates a revalidator running at the given interval.
func NewRevalidator(coord *Coordinator, interval time.Duration) *Revalidator {
	return &Revalidator{coord: coord, interval: interval}
}

// Watch re-validates the session every interval until it becomes invalid
// or ctx is cancelled. The returned channel is closed exactly when the
// session has been definitively invalidated; cancellation closes nothing.
//
// A StoreUnavailable probe result is "unknown": the session is kept and
// re-checked next interval instead of being torn down on a transient
// outage.
func (r *Revalidator) Watch(ctx context.Context, input ValidateInput) <-chan struct{} {
	invalidated := make(chan struct{})

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			valid, err := r.coord.IsSessionStillValid(ctx, input)
			if err != nil {
				slog.Warn("session re-validation inconclusive, retrying next interval",
					slog.String("username", input.Username),
					slog.Any("error", err),
				)
				continue
			}
			if !valid {
				close(invalidated)
				return
			}
		}
	}()

	return invalidated
}
