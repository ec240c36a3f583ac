package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bipstech/exam-portal/internal/database"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/spf13/cobra"
)

func seedQuestionsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-questions FILE",
		Short: "Replace the question bank with the questions in a JSON file",
		Long: "Replace the question bank with the questions in FILE, a JSON array of\n" +
			"{question_number, question_text, options, correct_answer, marks, section}.\n" +
			"The candidate paper cache in Redis is refreshed as well.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			reqs, err := loadQuestionFile(args[0])
			if err != nil {
				return err
			}

			pool, err := database.NewPostgresPool(ctx, e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("connect to PostgreSQL: %w", err)
			}
			defer pool.Close()

			rdb, err := database.NewRedisClient(ctx, e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("connect to Redis: %w", err)
			}
			defer rdb.Close()

			questionService := service.NewQuestionService(repository.NewQuestionRepository(pool), rdb, e.log)
			questions, err := questionService.Replace(ctx, reqs)
			if err != nil {
				return err
			}

			marks := 0
			for _, q := range questions {
				marks += q.Marks
			}
			fmt.Printf("Seeded %d questions (%d marks)\n", len(questions), marks)
			return nil
		},
	}
}

func loadQuestionFile(path string) ([]model.QuestionRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reqs []model.QuestionRequest
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reqs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, r := range reqs {
		if r.CorrectAnswer == nil {
			return nil, fmt.Errorf("question at index %d has no correct_answer", i)
		}
	}
	return reqs, nil
}
