package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/grading"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/proctor"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Submission errors.
var (
	ErrSubmissionBanned   = errors.New("banned submissions are not graded")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// GradeJob is the payload of the grading queue.
type GradeJob struct {
	SubmissionID uuid.UUID `json:"submission_id"`
}

// SubmissionService stores submissions and grades them.
type SubmissionService struct {
	submissionRepo  *repository.SubmissionRepository
	questionService *QuestionService
	monitorService  *MonitorService
	rdb             *redis.Client
	totalMarks      int
	log             zerolog.Logger
	now             func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissionRepo *repository.SubmissionRepository,
	questionService *QuestionService,
	monitorService *MonitorService,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo:  submissionRepo,
		questionService: questionService,
		monitorService:  monitorService,
		rdb:             rdb,
		totalMarks:      cfg.TotalMarks,
		log:             log.With().Str("component", "submission_service").Logger(),
		now:             time.Now,
	}
}

// Submit implements proctor.Submitter. It stores the submission and queues it
// for grading; when the queue is unreachable it grades inline.
func (s *SubmissionService) Submit(ctx context.Context, sub *model.Submission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.SubmittedAt = s.now().UTC()
	NormalizeSummary(sub)

	if err := s.submissionRepo.Create(ctx, sub); err != nil {
		return fmt.Errorf("store submission: %w", err)
	}

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("admission_number", sub.AdmissionNumber).
		Str("outcome", string(sub.Outcome)).
		Int("violations", sub.ViolationSummary.TotalViolations).
		Msg("Submission stored")

	id := sub.ID
	s.monitorService.Publish(ctx, model.MonitorEvent{
		Type:            model.MonitorSubmitted,
		AdmissionNumber: sub.AdmissionNumber,
		StudentName:     sub.StudentName,
		Outcome:         sub.Outcome,
		ViolationCount:  sub.ViolationSummary.TotalViolations,
		SubmissionID:    &id,
	})

	if sub.BannedDuringExam {
		return nil
	}

	job, _ := json.Marshal(GradeJob{SubmissionID: sub.ID})
	if err := s.rdb.RPush(ctx, config.WorkerKey.GradeSubmissionsQueue, job).Err(); err != nil {
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Grade queue unavailable, grading inline")
		if _, err := s.Grade(ctx, sub.ID); err != nil {
			s.log.Error().Err(err).Str("submission_id", sub.ID.String()).Msg("Inline grading failed")
		}
	}
	return nil
}

// Grade scores a single submission and stores the result.
func (s *SubmissionService) Grade(ctx context.Context, id uuid.UUID) (*grading.Result, error) {
	inputs, err := s.submissionRepo.GradingInputs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if len(inputs) == 0 {
		return nil, ErrSubmissionNotFound
	}
	if inputs[0].Banned {
		return nil, ErrSubmissionBanned
	}

	key, err := s.questionService.AnswerKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("answer key: %w", err)
	}

	res := grading.Grade(inputs[0].Answers, key, s.totalMarks)
	update := s.gradeUpdate(id, res)
	if err := s.submissionRepo.ApplyGrade(ctx, update); err != nil {
		return nil, fmt.Errorf("store grade: %w", err)
	}
	s.publishGraded(ctx, update)
	return &res, nil
}

// GradeMany scores a batch with one bulk update. Banned and unknown
// submissions are skipped.
func (s *SubmissionService) GradeMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	inputs, err := s.submissionRepo.GradingInputs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load submissions: %w", err)
	}
	key, err := s.questionService.AnswerKey(ctx)
	if err != nil {
		return 0, fmt.Errorf("answer key: %w", err)
	}

	updates := make([]repository.GradeUpdate, 0, len(inputs))
	for _, in := range inputs {
		if in.Banned {
			continue
		}
		updates = append(updates, s.gradeUpdate(in.ID, grading.Grade(in.Answers, key, s.totalMarks)))
	}
	if err := s.submissionRepo.ApplyGrades(ctx, updates); err != nil {
		return 0, fmt.Errorf("store grades: %w", err)
	}
	for _, u := range updates {
		s.publishGraded(ctx, u)
	}
	return len(updates), nil
}

// Get retrieves one submission with its violation log.
func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	return sub, err
}

// Latest returns the newest submission for an admission number.
func (s *SubmissionService) Latest(ctx context.Context, admissionNumber string) (*model.Submission, error) {
	sub, err := s.submissionRepo.LatestByAdmission(ctx, admissionNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	return sub, err
}

// List returns a page of submissions.
func (s *SubmissionService) List(ctx context.Context, f model.SubmissionFilter, page, perPage int, withViolations bool) ([]model.Submission, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	subs, total, err := s.submissionRepo.List(ctx, f, perPage, (page-1)*perPage, withViolations)
	if err != nil {
		return nil, nil, err
	}
	return subs, response.NewPagination(page, perPage, total), nil
}

// Stats returns the dashboard counters.
func (s *SubmissionService) Stats(ctx context.Context) (*model.SubmissionStats, error) {
	return s.submissionRepo.Stats(ctx)
}

func (s *SubmissionService) gradeUpdate(id uuid.UUID, res grading.Result) repository.GradeUpdate {
	return repository.GradeUpdate{
		ID:       id,
		Score:    res.Score,
		Grade:    res.Grade,
		MarkedBy: model.MarkedByAuto,
		MarkedAt: s.now().UTC(),
	}
}

func (s *SubmissionService) publishGraded(ctx context.Context, u repository.GradeUpdate) {
	id, score := u.ID, u.Score
	s.monitorService.Publish(ctx, model.MonitorEvent{
		Type:         model.MonitorGraded,
		SubmissionID: &id,
		Score:        &score,
		Grade:        u.Grade,
	})
}

// NormalizeSummary makes the violation summary consistent with the log.
// When every record carries a known category the summary is recomputed from
// the log; otherwise the reported summary is kept but its total never falls
// below the number of records.
func NormalizeSummary(sub *model.Submission) {
	ledger := proctor.NewLedger()
	for _, v := range sub.Violations {
		if !v.Category.Valid() {
			if sub.ViolationSummary.TotalViolations < len(sub.Violations) {
				sub.ViolationSummary.TotalViolations = len(sub.Violations)
			}
			return
		}
		ledger.Append(v)
	}
	if len(sub.Violations) == 0 && sub.ViolationSummary.TotalViolations > 0 {
		return
	}
	sub.ViolationSummary = ledger.Summary()
}
