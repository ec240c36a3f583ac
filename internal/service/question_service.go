package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Question bank errors.
var (
	ErrNoQuestions     = errors.New("question bank is empty")
	ErrInvalidQuestion = errors.New("invalid question")
)

// QuestionService serves the question paper and answer key, cached in Redis.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// Paper returns the candidate-facing questions ordered by number.
// An empty bank yields ErrNoQuestions so no timed session can start.
func (s *QuestionService) Paper(ctx context.Context) ([]model.QuestionForCandidate, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuestionPayloadKey()).Bytes()
	if err == nil {
		var paper []model.QuestionForCandidate
		if err := json.Unmarshal(data, &paper); err == nil && len(paper) > 0 {
			return paper, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Question cache unavailable, reading from database")
	}

	questions, err := s.questionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if err := s.cache(ctx, questions); err != nil {
		s.log.Warn().Err(err).Msg("Failed to warm question cache")
	}
	return toPaper(questions), nil
}

// AnswerKey returns the correct option and marks of every question.
func (s *QuestionService) AnswerKey(ctx context.Context) (model.AnswerKey, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AnswerKeyKey()).Result()
	if err == nil && len(raw) > 0 {
		if key, err := decodeAnswerKey(raw); err == nil {
			return key, nil
		}
	}

	questions, err := s.questionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if err := s.cache(ctx, questions); err != nil {
		s.log.Warn().Err(err).Msg("Failed to warm question cache")
	}
	return toAnswerKey(questions), nil
}

// List returns the full bank including correct answers.
func (s *QuestionService) List(ctx context.Context) ([]model.Question, error) {
	return s.questionRepo.List(ctx)
}

// Count returns the number of questions in the bank.
func (s *QuestionService) Count(ctx context.Context) (int, error) {
	if paper, err := s.Paper(ctx); err == nil {
		return len(paper), nil
	} else if errors.Is(err, ErrNoQuestions) {
		return 0, nil
	}
	return s.questionRepo.Count(ctx)
}

// Replace swaps the bank and refreshes the cache.
func (s *QuestionService) Replace(ctx context.Context, reqs []model.QuestionRequest) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(reqs))
	for _, r := range reqs {
		questions = append(questions, r.ToQuestion())
	}
	if err := ValidateQuestions(questions); err != nil {
		return nil, err
	}

	if err := s.questionRepo.ReplaceAll(ctx, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}
	if err := s.cache(ctx, questions); err != nil {
		s.log.Warn().Err(err).Msg("Failed to refresh question cache, invalidating")
		s.invalidate(ctx)
	}

	s.log.Info().Int("questions", len(questions)).Msg("Question bank replaced")
	return questions, nil
}

// RefreshCache reloads the cache from the database.
func (s *QuestionService) RefreshCache(ctx context.Context) (int, error) {
	questions, err := s.questionRepo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		s.invalidate(ctx)
		return 0, ErrNoQuestions
	}
	if err := s.cache(ctx, questions); err != nil {
		return 0, err
	}
	s.log.Info().Int("questions", len(questions)).Msg("Question cache refreshed")
	return len(questions), nil
}

// ValidateQuestions checks numbering and answer indices of a bank.
func ValidateQuestions(questions []model.Question) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	seen := make(map[int]bool, len(questions))
	for _, q := range questions {
		if q.Number < 1 {
			return fmt.Errorf("%w: question number %d", ErrInvalidQuestion, q.Number)
		}
		if seen[q.Number] {
			return fmt.Errorf("%w: duplicate question number %d", ErrInvalidQuestion, q.Number)
		}
		seen[q.Number] = true
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuestion, q.Number)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return fmt.Errorf("%w: question %d correct answer out of range", ErrInvalidQuestion, q.Number)
		}
		if q.Marks < 1 {
			return fmt.Errorf("%w: question %d marks must be positive", ErrInvalidQuestion, q.Number)
		}
	}
	return nil
}

func (s *QuestionService) cache(ctx context.Context, questions []model.Question) error {
	payload, err := json.Marshal(toPaper(questions))
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuestionPayloadKey(), payload, 0)
	pipe.Del(ctx, config.CacheKey.AnswerKeyKey())
	pipe.HSet(ctx, config.CacheKey.AnswerKeyKey(), encodeAnswerKey(toAnswerKey(questions)))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

func (s *QuestionService) invalidate(ctx context.Context) {
	if err := s.rdb.Del(ctx, config.CacheKey.QuestionPayloadKey(), config.CacheKey.AnswerKeyKey()).Err(); err != nil {
		s.log.Error().Err(err).Msg("Failed to invalidate question cache")
	}
}

func toPaper(questions []model.Question) []model.QuestionForCandidate {
	paper := make([]model.QuestionForCandidate, len(questions))
	for i, q := range questions {
		paper[i] = q.Public()
	}
	return paper
}

func toAnswerKey(questions []model.Question) model.AnswerKey {
	key := make(model.AnswerKey, len(questions))
	for _, q := range questions {
		key[q.Number] = model.AnswerKeyEntry{Correct: q.CorrectAnswer, Marks: q.Marks}
	}
	return key
}

// encodeAnswerKey flattens the key into hash fields "<number>" -> "<correct>:<marks>".
func encodeAnswerKey(key model.AnswerKey) map[string]any {
	out := make(map[string]any, len(key))
	for n, e := range key {
		out[strconv.Itoa(n)] = fmt.Sprintf("%d:%d", e.Correct, e.Marks)
	}
	return out
}

func decodeAnswerKey(raw map[string]string) (model.AnswerKey, error) {
	key := make(model.AnswerKey, len(raw))
	for field, val := range raw {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("answer key field %q: %w", field, err)
		}
		correctStr, marksStr, ok := strings.Cut(val, ":")
		if !ok {
			return nil, fmt.Errorf("answer key value %q", val)
		}
		correct, err := strconv.Atoi(correctStr)
		if err != nil {
			return nil, err
		}
		marks, err := strconv.Atoi(marksStr)
		if err != nil {
			return nil, err
		}
		key[n] = model.AnswerKeyEntry{Correct: correct, Marks: marks}
	}
	return key, nil
}
