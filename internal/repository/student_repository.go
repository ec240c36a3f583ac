package repository

import (
	"context"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// StudentRepository handles candidate records.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// Upsert registers a candidate or refreshes their name.
func (r *StudentRepository) Upsert(ctx context.Context, c model.Candidate) error {
	return upsertStudent(ctx, r.pool, c)
}

// GetByAdmission retrieves a student by admission number.
func (r *StudentRepository) GetByAdmission(ctx context.Context, admissionNumber string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT admission_number, full_name, registered_at
		 FROM students WHERE admission_number = $1`, admissionNumber,
	).Scan(&s.AdmissionNumber, &s.FullName, &s.RegisteredAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func upsertStudent(ctx context.Context, db execer, c model.Candidate) error {
	_, err := db.Exec(ctx,
		`INSERT INTO students (admission_number, full_name)
		 VALUES ($1, $2)
		 ON CONFLICT (admission_number) DO UPDATE SET full_name = EXCLUDED.full_name`,
		c.AdmissionNumber, c.FullName)
	return err
}
