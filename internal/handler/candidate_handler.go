package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bipstech/exam-portal/internal/middleware"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/bipstech/exam-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CandidateEntry admits candidates. *service.CandidateService implements it.
type CandidateEntry interface {
	Enter(ctx context.Context, req model.EnterExamRequest) (string, *service.Claims, error)
	Leave(ctx context.Context, claims *service.Claims) error
	Policy(ctx context.Context) (*model.ExamPolicy, error)
}

// PaperProvider serves the question paper. *service.QuestionService implements it.
type PaperProvider interface {
	Paper(ctx context.Context) ([]model.QuestionForCandidate, error)
}

// SubmissionRecorder stores submissions. *service.SubmissionService implements it.
type SubmissionRecorder interface {
	Submit(ctx context.Context, sub *model.Submission) error
	Latest(ctx context.Context, admissionNumber string) (*model.Submission, error)
}

// CompletionTracker records which candidate tokens finished the exam and
// guards the single submission of a token. *service.AuthService implements it.
type CompletionTracker interface {
	MarkCompleted(ctx context.Context, claims *service.Claims) error
	IsCompleted(ctx context.Context, jti string) (bool, error)
	ClaimSubmission(ctx context.Context, jti string) error
	ReleaseSubmission(ctx context.Context, jti string) error
	StreamActive(ctx context.Context, jti string) (bool, error)
}

// CandidateHandler serves the candidate side of the exam.
type CandidateHandler struct {
	candidates  CandidateEntry
	questions   PaperProvider
	submissions SubmissionRecorder
	completion  CompletionTracker
	log         zerolog.Logger
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(
	candidates CandidateEntry,
	questions PaperProvider,
	submissions SubmissionRecorder,
	completion CompletionTracker,
	log zerolog.Logger,
) *CandidateHandler {
	return &CandidateHandler{
		candidates:  candidates,
		questions:   questions,
		submissions: submissions,
		completion:  completion,
		log:         log.With().Str("component", "candidate_handler").Logger(),
	}
}

// GetPolicy godoc
// GET /api/v1/exam/policy
// Returns the rules shown on the entry page.
func (h *CandidateHandler) GetPolicy(c *gin.Context) {
	policy, err := h.candidates.Policy(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load exam policy")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"policy": policy})
}

// Enter godoc
// POST /api/v1/exam/enter
// Registers the candidate identity and issues a candidate token.
func (h *CandidateHandler) Enter(c *gin.Context) {
	var req model.EnterExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, claims, err := h.candidates.Enter(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
			return
		}
		h.log.Error().Err(err).Msg("Failed to enter exam")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":      token,
		"candidate":  claims.Candidate(),
		"expires_at": claims.ExpiresAt,
	})
}

// Leave godoc
// POST /api/v1/exam/leave
// Clears the identity store and returns the candidate to the entry point.
func (h *CandidateHandler) Leave(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.candidates.Leave(c.Request.Context(), claims); err != nil {
		h.log.Error().Err(err).Str("admission_number", claims.AdmissionNumber).Msg("Failed to leave exam")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetQuestions godoc
// GET /api/v1/exam/questions
// Returns the question paper without answers.
func (h *CandidateHandler) GetQuestions(c *gin.Context) {
	questions, err := h.questions.Paper(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoQuestions) {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrNoQuestions)
			return
		}
		h.log.Error().Err(err).Msg("Failed to load question paper")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrNoQuestions)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"questions": questions,
		"total":     len(questions),
	})
}

// Submit godoc
// POST /api/v1/exam/submissions
// Accepts a submission built by a client that runs the proctoring itself.
func (h *CandidateHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmissionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	req.AdmissionNumber = strings.ToUpper(strings.TrimSpace(req.AdmissionNumber))
	if req.AdmissionNumber != claims.AdmissionNumber {
		response.Fail(c, http.StatusForbidden, response.ErrIdentityMismatch)
		return
	}

	ctx := c.Request.Context()
	done, err := h.completion.IsCompleted(ctx, claims.ID)
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}
	if done {
		response.Fail(c, http.StatusConflict, response.ErrExamCompleted)
		return
	}

	if err := h.completion.ClaimSubmission(ctx, claims.ID); err != nil {
		if errors.Is(err, service.ErrExamCompleted) {
			response.Fail(c, http.StatusConflict, response.ErrExamCompleted)
			return
		}
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}
	// A proctored stream owns the session's submission.
	streaming, err := h.completion.StreamActive(ctx, claims.ID)
	if err != nil || streaming {
		h.release(ctx, claims)
		if err != nil {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
			return
		}
		response.Fail(c, http.StatusConflict, response.ErrStreamActive)
		return
	}

	sub := req.ToSubmission()
	if err := h.submissions.Submit(ctx, sub); err != nil {
		h.log.Error().Err(err).Str("admission_number", claims.AdmissionNumber).Msg("Failed to store submission")
		h.release(ctx, claims)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if err := h.completion.MarkCompleted(ctx, claims); err != nil {
		h.log.Warn().Err(err).Str("admission_number", claims.AdmissionNumber).Msg("Failed to mark exam completed")
	}

	response.Success(c, http.StatusCreated, gin.H{
		"submission_id":      sub.ID,
		"outcome":            sub.Outcome,
		"banned_during_exam": sub.BannedDuringExam,
		"violation_summary":  sub.ViolationSummary,
	})
}

func (h *CandidateHandler) release(ctx context.Context, claims *service.Claims) {
	if err := h.completion.ReleaseSubmission(ctx, claims.ID); err != nil {
		h.log.Warn().Err(err).Str("admission_number", claims.AdmissionNumber).Msg("Failed to release submission claim")
	}
}

// GetResult godoc
// GET /api/v1/exam/result
// Returns the candidate's latest submission once the exam is completed.
func (h *CandidateHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	done, err := h.completion.IsCompleted(ctx, claims.ID)
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}
	if !done {
		response.Fail(c, http.StatusForbidden, response.ErrExamNotCompleted)
		return
	}

	sub, err := h.submissions.Latest(ctx, claims.AdmissionNumber)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrSubmissionNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"submission": sub,
		"graded":     sub.Graded(),
	})
}
