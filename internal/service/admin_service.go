package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/jackc/pgx/v5"
)

// ErrInvalidRole is returned when creating an admin with an unknown role.
var ErrInvalidRole = errors.New("invalid admin role")

// AdminService handles admin business logic.
type AdminService struct {
	adminRepo   *repository.AdminRepository
	authService *AuthService
}

// NewAdminService creates a new AdminService.
func NewAdminService(adminRepo *repository.AdminRepository, authService *AuthService) *AdminService {
	return &AdminService{adminRepo: adminRepo, authService: authService}
}

// Login verifies credentials and issues an admin token.
func (s *AdminService) Login(ctx context.Context, username, password string) (string, *model.Admin, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get admin: %w", err)
	}
	if err := s.authService.CheckPassword(admin.PasswordHash, password); err != nil {
		return "", nil, err
	}
	token, err := s.authService.GenerateAdminToken(admin)
	if err != nil {
		return "", nil, err
	}
	return token, admin, nil
}

// GetByID retrieves an admin by ID.
func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.adminRepo.GetByID(ctx, id)
}

// Create hashes the password and stores a new admin.
func (s *AdminService) Create(ctx context.Context, username, password, role string) (*model.Admin, error) {
	if role != model.RoleAdmin && role != model.RoleSuperAdmin {
		return nil, ErrInvalidRole
	}
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &model.Admin{Username: username, PasswordHash: hash, Role: role}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// ResetPassword sets a new password for an existing admin.
func (s *AdminService) ResetPassword(ctx context.Context, username, password string) error {
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ok, err := s.adminRepo.UpdatePassword(ctx, username, hash)
	if err != nil {
		return err
	}
	if !ok {
		return pgx.ErrNoRows
	}
	return nil
}
