package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	BatchSize       = 50
	BatchTimeout    = 2 * time.Second
	PollTimeout     = 1 * time.Second // Must be >= 1s to satisfy Redis
	ShutdownTimeout = 5 * time.Second
	errorBackoff    = 3 * time.Second
	requeueBackoff  = 2 * time.Second
)

// batcher drains one queue into batches of T and hands each batch to flush.
// A batch is flushed when it is full or older than BatchTimeout, and once more
// on shutdown.
type batcher[T any] struct {
	queue   Queue
	key     string
	size    int
	maxWait time.Duration
	backoff time.Duration
	flush   func(ctx context.Context, batch []T)
	log     zerolog.Logger
}

func (b *batcher[T]) run(ctx context.Context) {
	buffer := make([]T, 0, b.size)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= b.size || time.Since(lastFlush) >= b.maxWait) {
			b.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			b.shutdown(buffer)
			return
		default:
		}

		raw, err := b.queue.Pop(ctx, b.key, PollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				b.shutdown(buffer)
				return
			}
			b.log.Error().Err(err).Dur("backoff", b.backoff).Msg("Queue error, backing off")
			sleep(ctx, b.backoff)
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			// Malformed payloads cannot be retried.
			b.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed payload")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (b *batcher[T]) shutdown(buffer []T) {
	if len(buffer) == 0 {
		return
	}
	b.log.Info().Int("count", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	b.flush(ctx, buffer)
}

// requeue pushes failed items back to the tail of key.
func requeue[T any](ctx context.Context, q Queue, key string, items []T, backoff time.Duration, log zerolog.Logger) {
	payloads := make([][]byte, 0, len(items))
	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			continue
		}
		payloads = append(payloads, data)
	}
	if err := q.Push(ctx, key, payloads...); err != nil {
		log.Error().Err(err).Int("count", len(payloads)).Msg("CRITICAL: failed to requeue items, data lost")
		return
	}
	log.Info().Int("count", len(payloads)).Msg("Requeued failed items")
	// Avoid thrashing while the database is down.
	sleep(ctx, backoff)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
