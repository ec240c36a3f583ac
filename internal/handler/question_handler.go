package handler

import (
	"errors"
	"net/http"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/bipstech/exam-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// QuestionHandler handles question bank endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/admin/questions
// Lists the bank including the answer key.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.questionService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ReplaceQuestions godoc
// PUT /api/v1/admin/questions
// Replaces the whole bank and refreshes the cache.
func (h *QuestionHandler) ReplaceQuestions(c *gin.Context) {
	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.questionService.Replace(c.Request.Context(), req.Questions)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuestion) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"questions": err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("Failed to replace question bank")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"questions": questions,
		"total":     len(questions),
	})
}

// RefreshCache godoc
// POST /api/v1/admin/questions/refresh-cache
// Reloads the cached paper and answer key from the database.
func (h *QuestionHandler) RefreshCache(c *gin.Context) {
	n, err := h.questionService.RefreshCache(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoQuestions) {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrNoQuestions)
			return
		}
		h.log.Error().Err(err).Msg("Failed to refresh question cache")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cached": n})
}
