package handler

import (
	"errors"
	"net/http"

	"github.com/bipstech/exam-portal/internal/middleware"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/bipstech/exam-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	adminService *service.AdminService
	log          zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(adminService *service.AdminService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		adminService: adminService,
		log:          log.With().Str("component", "auth_handler").Logger(),
	}
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates username + password, returns JWT.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, admin, err := h.adminService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.log.Warn().
				Str("username", req.Username).
				Str("ip", c.ClientIP()).
				Msg("Rejected admin login")
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("Admin login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Int("admin_id", admin.ID).Str("role", admin.Role).Msg("Admin logged in")

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"admin": admin,
	})
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
// Returns the profile of the currently authenticated admin.
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	admin, err := h.adminService.GetByID(c.Request.Context(), claims.AdminID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Int("admin_id", claims.AdminID).Msg("Failed to load admin profile")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"admin": admin})
}
