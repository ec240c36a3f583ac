package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const retryBackoff = 2 * time.Second

// withRetry runs op until it succeeds, attempts are used up or ctx ends.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, log zerolog.Logger, what string, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msgf("%s not ready, retrying", what)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
