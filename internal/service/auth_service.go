package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("an exam attempt is already active for this admission number")
	ErrSessionInvalidated   = errors.New("session invalidated")
	ErrStreamAlreadyActive  = errors.New("exam stream already open for this session")
	ErrExamCompleted        = errors.New("exam already submitted")
)

// TokenType distinguishes candidate vs admin tokens.
type TokenType string

const (
	TokenTypeCandidate TokenType = "candidate"
	TokenTypeAdmin     TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType       TokenType `json:"token_type"`
	AdmissionNumber string    `json:"admission_number,omitempty"` // Candidate only
	FullName        string    `json:"full_name,omitempty"`        // Candidate only
	AdminID         int       `json:"admin_id,omitempty"`         // Admin only
	Role            string    `json:"role,omitempty"`             // Admin only
}

// Candidate returns the identity carried by a candidate token.
func (c *Claims) Candidate() model.Candidate {
	return model.Candidate{FullName: c.FullName, AdmissionNumber: c.AdmissionNumber}
}

// AuthService handles authentication, JWT, and the candidate identity store.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateAdminToken creates a JWT for an admin.
func (s *AuthService) GenerateAdminToken(a *model.Admin) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(a.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeAdmin,
		AdminID:   a.ID,
		Role:      a.Role,
	}
	return s.sign(claims)
}

// GenerateCandidateToken creates a JWT for a candidate and registers the attempt
// in Redis. Only one active attempt per admission number is allowed.
func (s *AuthService) GenerateCandidateToken(ctx context.Context, c model.Candidate) (string, *Claims, error) {
	jti := uuid.New().String()
	now := time.Now()

	ok, err := s.rdb.SetNX(ctx, config.CacheKey.ActiveAttemptKey(c.AdmissionNumber), jti, s.cfg.JWTExpiry).Result()
	if err != nil {
		return "", nil, fmt.Errorf("register attempt: %w", err)
	}
	if !ok {
		return "", nil, ErrSessionAlreadyActive
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   c.AdmissionNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType:       TokenTypeCandidate,
		AdmissionNumber: c.AdmissionNumber,
		FullName:        c.FullName,
	}

	signed, err := s.sign(*claims)
	if err != nil {
		s.rdb.Del(ctx, config.CacheKey.ActiveAttemptKey(c.AdmissionNumber))
		return "", nil, err
	}

	identity, _ := json.Marshal(c)
	if err := s.rdb.Set(ctx, config.CacheKey.CandidateSessionKey(jti), identity, s.cfg.JWTExpiry).Err(); err != nil {
		s.rdb.Del(ctx, config.CacheKey.ActiveAttemptKey(c.AdmissionNumber))
		return "", nil, fmt.Errorf("store identity: %w", err)
	}

	return signed, claims, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateCandidateSession checks that the token is still the active attempt
// of its admission number.
func (s *AuthService) ValidateCandidateSession(ctx context.Context, claims *Claims) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.ActiveAttemptKey(claims.AdmissionNumber)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionInvalidated
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != claims.ID {
		return ErrSessionInvalidated
	}
	return nil
}

// Identity returns the candidate identity stored for a token.
func (s *AuthService) Identity(ctx context.Context, jti string) (model.Candidate, error) {
	var c model.Candidate
	data, err := s.rdb.Get(ctx, config.CacheKey.CandidateSessionKey(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c, ErrSessionInvalidated
		}
		return c, fmt.Errorf("get identity: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode identity: %w", err)
	}
	return c, nil
}

// AcquireStream claims the single proctored stream of a token. It is never
// released before the token expires so a dropped stream cannot restart the clock.
func (s *AuthService) AcquireStream(ctx context.Context, jti string) error {
	ok, err := s.rdb.SetNX(ctx, config.CacheKey.StreamLockKey(jti), time.Now().Unix(), s.cfg.JWTExpiry).Result()
	if err != nil {
		return fmt.Errorf("acquire stream: %w", err)
	}
	if !ok {
		return ErrStreamAlreadyActive
	}
	// A submission that already claimed the token wins over a late stream.
	claimed, err := s.rdb.Exists(ctx, config.CacheKey.SubmissionClaimKey(jti)).Result()
	if err != nil {
		return fmt.Errorf("acquire stream: %w", err)
	}
	if claimed > 0 {
		s.rdb.Del(ctx, config.CacheKey.StreamLockKey(jti))
		return ErrExamCompleted
	}
	return nil
}

// StreamActive reports whether a proctored stream holds the token.
func (s *AuthService) StreamActive(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.StreamLockKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check stream: %w", err)
	}
	return n > 0, nil
}

// ClaimSubmission reserves the single submission of a token. A second claim
// fails with ErrExamCompleted.
func (s *AuthService) ClaimSubmission(ctx context.Context, jti string) error {
	ok, err := s.rdb.SetNX(ctx, config.CacheKey.SubmissionClaimKey(jti), time.Now().Unix(), s.cfg.JWTExpiry).Result()
	if err != nil {
		return fmt.Errorf("claim submission: %w", err)
	}
	if !ok {
		return ErrExamCompleted
	}
	return nil
}

// ReleaseSubmission drops a claim whose submission was not stored.
func (s *AuthService) ReleaseSubmission(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, config.CacheKey.SubmissionClaimKey(jti)).Err()
}

// MarkCompleted sets the completion flag read by the results view.
func (s *AuthService) MarkCompleted(ctx context.Context, claims *Claims) error {
	return s.rdb.Set(ctx, config.CacheKey.CompletionKey(claims.ID), claims.AdmissionNumber, s.cfg.JWTExpiry).Err()
}

// IsCompleted reports whether the token's exam has been submitted.
func (s *AuthService) IsCompleted(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.CompletionKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return n > 0, nil
}

// Leave clears the identity store of a token so the candidate returns to the entry point.
func (s *AuthService) Leave(ctx context.Context, claims *Claims) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx,
		config.CacheKey.CandidateSessionKey(claims.ID),
		config.CacheKey.CompletionKey(claims.ID),
		config.CacheKey.StreamLockKey(claims.ID),
		config.CacheKey.SubmissionClaimKey(claims.ID),
	)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}
	// Only drop the attempt if it is still ours.
	if err := s.ValidateCandidateSession(ctx, claims); err == nil {
		return s.rdb.Del(ctx, config.CacheKey.ActiveAttemptKey(claims.AdmissionNumber)).Err()
	}
	return nil
}

// ResetAttempt lets an admin clear a stuck attempt for an admission number.
func (s *AuthService) ResetAttempt(ctx context.Context, admissionNumber string) error {
	return s.rdb.Del(ctx, config.CacheKey.ActiveAttemptKey(admissionNumber)).Err()
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
