package repository

import (
	"context"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationRepository persists the live violation audit trail.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// BulkInsert writes a batch of events with COPY.
func (r *ViolationRepository) BulkInsert(ctx context.Context, events []model.ViolationEvent) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_events"},
		[]string{"session_id", "admission_number", "category", "description", "occurred_at"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.SessionID, e.AdmissionNumber, string(e.Category), e.Description, e.OccurredAt}, nil
		}),
	)
	return err
}

// Insert writes a single event.
func (r *ViolationRepository) Insert(ctx context.Context, e model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violation_events (session_id, admission_number, category, description, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.SessionID, e.AdmissionNumber, string(e.Category), e.Description, e.OccurredAt)
	return err
}

// Recent returns the newest events, newest first.
func (r *ViolationRepository) Recent(ctx context.Context, limit int) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, admission_number, category, description, occurred_at
		 FROM violation_events
		 ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.ViolationEvent{}
	for rows.Next() {
		var e model.ViolationEvent
		if err := rows.Scan(&e.SessionID, &e.AdmissionNumber, &e.Category, &e.Description, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountsByAdmission returns how many live violations each candidate has produced.
func (r *ViolationRepository) CountsByAdmission(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT admission_number, COUNT(*)
		 FROM violation_events
		 GROUP BY admission_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var adm string
		var n int64
		if err := rows.Scan(&adm, &n); err != nil {
			return nil, err
		}
		counts[adm] = n
	}
	return counts, rows.Err()
}
