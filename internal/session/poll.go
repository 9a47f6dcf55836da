package session

import (
	"context"
	"errors"
	"time"
)

// Client-side polling budget: 60 × 5s ≈ 5 minutes.
const (
	DefaultPollAttempts = 60
	DefaultPollInterval = 5 * time.Second
)

// ErrPollTimeout is returned when the attempt budget runs out before the
// session reaches a terminal status. It does not affect the session itself.
var ErrPollTimeout = errors.New("session polling timed out")

// Reader is the read side of a session store.
type Reader interface {
	Get(ctx context.Context, id string) (*Session, error)
}

// Poll reads the session every interval until it is terminal or attempts
// run out. A missing document counts as "not yet started". onUpdate, if set,
// sees every successful read. On timeout the last observed session (possibly
// nil) is returned together with ErrPollTimeout.
func Poll(ctx context.Context, r Reader, id string, attempts int, interval time.Duration, onUpdate func(*Session)) (*Session, error) {
	if attempts < 1 {
		attempts = DefaultPollAttempts
	}

	var last *Session
	for i := 0; i < attempts; i++ {
		s, err := r.Get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return last, err
		default:
			last = s
			if onUpdate != nil {
				onUpdate(s)
			}
			if IsTerminal(s.Status) {
				return s, nil
			}
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
	return last, ErrPollTimeout
}
