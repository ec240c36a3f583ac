package repository

import (
	"context"
	"errors"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// MonitorRepository provides data access for the live exam monitoring feature.
// It combines PostgreSQL (grading backlog) and Redis (active attempts).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// InProgressAdmissions returns the admission numbers that hold an active
// attempt whose token has not submitted yet.
func (r *MonitorRepository) InProgressAdmissions(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, config.CacheKey.ActiveAttemptPattern(), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}

	jtis, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	pipe := r.rdb.Pipeline()
	done := make([]*redis.IntCmd, len(keys))
	for i, v := range jtis {
		jti, _ := v.(string)
		done[i] = pipe.Exists(ctx, config.CacheKey.CompletionKey(jti))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	admissions := make([]string, 0, len(keys))
	for i, key := range keys {
		if jtis[i] == nil || done[i].Val() > 0 {
			continue
		}
		admissions = append(admissions, config.CacheKey.AdmissionFromAttemptKey(key))
	}
	return admissions, nil
}

// PendingGrades counts stored submissions that still wait for the scoring worker.
func (r *MonitorRepository) PendingGrades(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions
		 WHERE grade IS NULL AND NOT banned_during_exam`,
	).Scan(&n)
	return n, err
}

