package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/repository"
)

// CandidateService handles exam entry and exit.
type CandidateService struct {
	cfg             *config.Config
	studentRepo     *repository.StudentRepository
	authService     *AuthService
	questionService *QuestionService
	monitorService  *MonitorService
}

// NewCandidateService creates a new CandidateService.
func NewCandidateService(
	cfg *config.Config,
	studentRepo *repository.StudentRepository,
	authService *AuthService,
	questionService *QuestionService,
	monitorService *MonitorService,
) *CandidateService {
	return &CandidateService{
		cfg:             cfg,
		studentRepo:     studentRepo,
		authService:     authService,
		questionService: questionService,
		monitorService:  monitorService,
	}
}

// Enter registers the candidate and issues a candidate token.
func (s *CandidateService) Enter(ctx context.Context, req model.EnterExamRequest) (string, *Claims, error) {
	c := model.Candidate{
		FullName:        strings.TrimSpace(req.FullName),
		AdmissionNumber: strings.ToUpper(strings.TrimSpace(req.AdmissionNumber)),
	}

	if err := s.studentRepo.Upsert(ctx, c); err != nil {
		return "", nil, fmt.Errorf("register student: %w", err)
	}

	token, claims, err := s.authService.GenerateCandidateToken(ctx, c)
	if err != nil {
		return "", nil, err
	}

	s.monitorService.Publish(ctx, model.MonitorEvent{
		Type:            model.MonitorEntered,
		AdmissionNumber: c.AdmissionNumber,
		StudentName:     c.FullName,
		SessionID:       claims.ID,
	})
	return token, claims, nil
}

// Leave clears the candidate's identity store.
func (s *CandidateService) Leave(ctx context.Context, claims *Claims) error {
	if err := s.authService.Leave(ctx, claims); err != nil {
		return err
	}
	s.monitorService.Publish(ctx, model.MonitorEvent{
		Type:            model.MonitorLeft,
		AdmissionNumber: claims.AdmissionNumber,
		StudentName:     claims.FullName,
		SessionID:       claims.ID,
	})
	return nil
}

// Policy returns the exam rules shown before entry.
func (s *CandidateService) Policy(ctx context.Context) (*model.ExamPolicy, error) {
	count, err := s.questionService.Count(ctx)
	if err != nil {
		return nil, err
	}
	pc := s.cfg.Proctor()
	return &model.ExamPolicy{
		Title:              s.cfg.ExamTitle,
		DurationSeconds:    int(pc.Duration.Seconds()),
		QuestionCount:      count,
		TotalMarks:         s.cfg.TotalMarks,
		BanThreshold:       pc.BanThreshold,
		WarningSeconds:     int(pc.WarningTTL.Seconds()),
		RequireAllAnswered: pc.RequireAllAnswered,
	}, nil
}
