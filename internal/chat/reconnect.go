package chat

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff"
)

// ReconnectPolicy re-opens a session after connection loss with exponential
// backoff. Reconnection is opt-in: by default a lost connection leaves the
// last-known messages visible and waits for an explicit Open.
//
// A reconnect runs Open from scratch, so the server replays the history
// snapshot into a fresh generation; there is no partial resume.
type ReconnectPolicy struct {
	// InitialInterval is the first retry delay. Zero means the backoff
	// package default (500ms).
	InitialInterval time.Duration

	// MaxElapsedTime caps the total time spent retrying. Zero means the
	// backoff package default (15 minutes).
	MaxElapsedTime time.Duration

	// MaxRetries caps the number of attempts. Zero means unlimited within
	// MaxElapsedTime.
	MaxRetries uint64
}

// Run re-opens the session for chatID until an attempt succeeds, the policy
// gives up, or ctx is cancelled. Returns the last dial error on failure.
func (p ReconnectPolicy) Run(ctx context.Context, s *Session, chatID string) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxElapsedTime > 0 {
		eb.MaxElapsedTime = p.MaxElapsedTime
	}

	var b backoff.BackOff = backoff.WithContext(eb, ctx)
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := s.Open(ctx, chatID); err != nil {
			log.Printf("chat: reconnect attempt %d for chat %s failed: %v", attempt, chatID, err)
			return err
		}
		return nil
	}, b)
}
