package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const submissionColumns = `id, student_name, admission_number, start_time, end_time, time_taken,
	answers, banned_during_exam, outcome, tab_switches, copy_attempts, paste_attempts,
	total_violations, marked_score, grade, marked_by, marked_date, submitted_at`

// GradeUpdate is the score attached to one submission by the grading worker.
type GradeUpdate struct {
	ID       uuid.UUID
	Score    int
	Grade    string
	MarkedBy string
	MarkedAt time.Time
}

// GradingInput is the subset of a submission needed to grade it.
type GradingInput struct {
	ID      uuid.UUID
	Answers model.AnswerMap
	Banned  bool
}

// SubmissionRepository handles submission and violation log data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create stores a submission with its violation log and registers the student,
// all in one transaction.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	candidate := model.Candidate{FullName: s.StudentName, AdmissionNumber: s.AdmissionNumber}
	if err := upsertStudent(ctx, tx, candidate); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}

	sum := s.ViolationSummary
	_, err = tx.Exec(ctx,
		`INSERT INTO submissions (id, student_name, admission_number, start_time, end_time, time_taken,
			answers, banned_during_exam, outcome, tab_switches, copy_attempts, paste_attempts,
			total_violations, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.StudentName, s.AdmissionNumber, s.StartTime, s.EndTime, s.TimeTaken,
		s.Answers, s.BannedDuringExam, s.Outcome, sum.TabSwitches, sum.CopyAttempts, sum.PasteAttempts,
		sum.TotalViolations, s.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	if len(s.Violations) > 0 {
		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"submission_violations"},
			[]string{"submission_id", "seq", "category", "description", "occurred_at"},
			pgx.CopyFromSlice(len(s.Violations), func(i int) ([]any, error) {
				v := s.Violations[i]
				return []any{s.ID, i + 1, string(v.Category), v.Description, v.Timestamp}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy violations: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a submission including its violation log.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	logs, err := r.violationsFor(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	s.Violations = logs[id]
	if s.Violations == nil {
		s.Violations = []model.Violation{}
	}
	return s, nil
}

// LatestByAdmission returns the most recent submission of a candidate.
func (r *SubmissionRepository) LatestByAdmission(ctx context.Context, admissionNumber string) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE admission_number = $1
		 ORDER BY submitted_at DESC LIMIT 1`, admissionNumber))
}

// List returns a page of submissions, newest first, and the total matching count.
// When withViolations is set every row carries its violation log.
func (r *SubmissionRepository) List(ctx context.Context, f model.SubmissionFilter, limit, offset int, withViolations bool) ([]model.Submission, int, error) {
	where, args := buildSubmissionFilter(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM submissions%s ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d`,
			submissionColumns, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if withViolations && len(subs) > 0 {
		ids := make([]uuid.UUID, len(subs))
		for i := range subs {
			ids[i] = subs[i].ID
		}
		logs, err := r.violationsFor(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range subs {
			if v := logs[subs[i].ID]; v != nil {
				subs[i].Violations = v
			} else {
				subs[i].Violations = []model.Violation{}
			}
		}
	}

	return subs, total, nil
}

// Stats aggregates the dashboard counters.
func (r *SubmissionRepository) Stats(ctx context.Context) (*model.SubmissionStats, error) {
	st := &model.SubmissionStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT banned_during_exam),
			COUNT(*) FILTER (WHERE banned_during_exam),
			COUNT(marked_score),
			COALESCE(AVG(marked_score), 0)::float8
		 FROM submissions`,
	).Scan(&st.Total, &st.Completed, &st.Banned, &st.Graded, &st.AverageScore)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// GradingInputs loads answers and ban flags for the given submissions.
func (r *SubmissionRepository) GradingInputs(ctx context.Context, ids []uuid.UUID) ([]GradingInput, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, answers, banned_during_exam FROM submissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inputs := make([]GradingInput, 0, len(ids))
	for rows.Next() {
		var in GradingInput
		if err := rows.Scan(&in.ID, &in.Answers, &in.Banned); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// ApplyGrades writes scores for a batch with a single UNNEST update.
// Banned submissions are never graded.
func (r *SubmissionRepository) ApplyGrades(ctx context.Context, updates []GradeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	n := len(updates)
	ids := make([]uuid.UUID, 0, n)
	scores := make([]int, 0, n)
	grades := make([]string, 0, n)
	markedBy := make([]string, 0, n)
	markedAt := make([]time.Time, 0, n)
	for _, u := range updates {
		ids = append(ids, u.ID)
		scores = append(scores, u.Score)
		grades = append(grades, u.Grade)
		markedBy = append(markedBy, u.MarkedBy)
		markedAt = append(markedAt, u.MarkedAt)
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE submissions AS s
		 SET marked_score = t.score,
		     grade = t.grade,
		     marked_by = t.marked_by,
		     marked_date = t.marked_date
		 FROM (
			SELECT u.id, u.score, u.grade, u.marked_by, u.marked_date
			FROM UNNEST($1::uuid[], $2::int[], $3::text[], $4::text[], $5::timestamptz[])
			AS u(id, score, grade, marked_by, marked_date)
		 ) AS t
		 WHERE s.id = t.id AND NOT s.banned_during_exam`,
		ids, scores, grades, markedBy, markedAt,
	)
	return err
}

// ApplyGrade writes the score of a single submission.
func (r *SubmissionRepository) ApplyGrade(ctx context.Context, u GradeUpdate) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET marked_score = $2, grade = $3, marked_by = $4, marked_date = $5
		 WHERE id = $1 AND NOT banned_during_exam`,
		u.ID, u.Score, u.Grade, u.MarkedBy, u.MarkedAt)
	return err
}

func (r *SubmissionRepository) violationsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT submission_id, category, description, occurred_at
		 FROM submission_violations
		 WHERE submission_id = ANY($1)
		 ORDER BY submission_id, seq`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.Violation, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var v model.Violation
		if err := rows.Scan(&id, &v.Category, &v.Description, &v.Timestamp); err != nil {
			return nil, err
		}
		out[id] = append(out[id], v)
	}
	return out, rows.Err()
}

func buildSubmissionFilter(f model.SubmissionFilter) (string, []any) {
	var conds []string
	var args []any
	if f.AdmissionNumber != "" {
		args = append(args, f.AdmissionNumber)
		conds = append(conds, fmt.Sprintf("admission_number = $%d", len(args)))
	}
	if f.Banned != nil {
		args = append(args, *f.Banned)
		conds = append(conds, fmt.Sprintf("banned_during_exam = $%d", len(args)))
	}
	if f.GradedOnly {
		conds = append(conds, "marked_score IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	sum := &s.ViolationSummary
	err := row.Scan(&s.ID, &s.StudentName, &s.AdmissionNumber, &s.StartTime, &s.EndTime, &s.TimeTaken,
		&s.Answers, &s.BannedDuringExam, &s.Outcome, &sum.TabSwitches, &sum.CopyAttempts, &sum.PasteAttempts,
		&sum.TotalViolations, &s.MarkedScore, &s.Grade, &s.MarkedBy, &s.MarkedDate, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
