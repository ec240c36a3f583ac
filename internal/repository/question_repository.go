package repository

import (
	"context"
	"fmt"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// List returns the whole bank ordered by question number.
func (r *QuestionRepository) List(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_number, question_text, options, correct_answer, marks, section
		 FROM questions ORDER BY question_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.Number, &q.Text, &q.Options, &q.CorrectAnswer, &q.Marks, &q.Section); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Count returns the number of questions in the bank.
func (r *QuestionRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}

// ReplaceAll swaps the bank for questions in one transaction.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"questions"},
		[]string{"question_number", "question_text", "options", "correct_answer", "marks", "section"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			q := questions[i]
			return []any{q.Number, q.Text, q.Options, q.CorrectAnswer, q.Marks, q.Section}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	return tx.Commit(ctx)
}
