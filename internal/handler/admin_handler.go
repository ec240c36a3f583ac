package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/bipstech/exam-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// AdminHandler serves the results dashboard.
type AdminHandler struct {
	submissionService *service.SubmissionService
	authService       *service.AuthService
	log               zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(submissionService *service.SubmissionService, authService *service.AuthService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		submissionService: submissionService,
		authService:       authService,
		log:               log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListSubmissions godoc
// GET /api/v1/admin/submissions?admission_number=&banned=&page=&per_page=
func (h *AdminHandler) ListSubmissions(c *gin.Context) {
	h.list(c, false, false)
}

// ListResults godoc
// GET /api/v1/admin/results
// Graded submissions only.
func (h *AdminHandler) ListResults(c *gin.Context) {
	h.list(c, true, false)
}

// ListViolations godoc
// GET /api/v1/admin/violations
// Submissions with their violation summary and full log.
func (h *AdminHandler) ListViolations(c *gin.Context) {
	h.list(c, false, true)
}

func (h *AdminHandler) list(c *gin.Context, gradedOnly, withViolations bool) {
	filter, ok := parseSubmissionFilter(c)
	if !ok {
		return
	}
	filter.GradedOnly = gradedOnly

	page, perPage := response.PageParams(c, defaultPerPage, maxPerPage)
	subs, pagination, err := h.submissionService.List(c.Request.Context(), filter, page, perPage, withViolations)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list submissions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": subs}, pagination)
}

func parseSubmissionFilter(c *gin.Context) (model.SubmissionFilter, bool) {
	var f model.SubmissionFilter
	if adm := strings.TrimSpace(c.Query("admission_number")); adm != "" {
		adm = strings.ToUpper(adm)
		if !validator.ValidAdmission(adm) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"admission_number": "admission_number must be a valid admission number"})
			return f, false
		}
		f.AdmissionNumber = adm
	}
	if raw := c.Query("banned"); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"banned": "banned must be true or false"})
			return f, false
		}
		f.Banned = &banned
	}
	return f, true
}

// GetSubmission godoc
// GET /api/v1/admin/submissions/:id
func (h *AdminHandler) GetSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sub, err := h.submissionService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrSubmissionNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// RegradeSubmission godoc
// POST /api/v1/admin/submissions/:id/regrade
// Grades again with the current answer key.
func (h *AdminHandler) RegradeSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.submissionService.Grade(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrSubmissionNotFound)
		case errors.Is(err, service.ErrSubmissionBanned):
			response.Fail(c, http.StatusConflict, response.ErrSubmissionBanned)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusServiceUnavailable, response.ErrNoQuestions)
		default:
			h.log.Error().Err(err).Str("submission_id", id.String()).Msg("Regrade failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission_id": id, "result": res})
}

// GetStats godoc
// GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.submissionService.Stats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load stats")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// ResetAttempt godoc
// DELETE /api/v1/admin/attempts?admission_number=
// Clears a stuck active attempt so the candidate can enter again.
// Admission numbers contain slashes, hence the query parameter.
func (h *AdminHandler) ResetAttempt(c *gin.Context) {
	adm := strings.ToUpper(strings.TrimSpace(c.Query("admission_number")))
	if !validator.ValidAdmission(adm) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetAttempt(c.Request.Context(), adm); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("admission_number", adm).Msg("Attempt reset by admin")
	response.Success(c, http.StatusOK, gin.H{})
}
