package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/proctor"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const observerTimeout = 2 * time.Second

// MonitorService feeds the admin live monitor: Redis pub/sub for the stream and
// a Redis queue for the persisted violation audit trail.
type MonitorService struct {
	rdb            *redis.Client
	violationRepo  *repository.ViolationRepository
	submissionRepo *repository.SubmissionRepository
	monitorRepo    *repository.MonitorRepository
	log            zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client, violationRepo *repository.ViolationRepository, submissionRepo *repository.SubmissionRepository, monitorRepo *repository.MonitorRepository, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb:            rdb,
		violationRepo:  violationRepo,
		submissionRepo: submissionRepo,
		monitorRepo:    monitorRepo,
		log:            log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish broadcasts an event to every attached monitor.
func (s *MonitorService) Publish(ctx context.Context, ev model.MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.MonitorChannel(), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to publish monitor event")
	}
}

// Subscribe attaches to the live channel. The caller must Close the subscription.
func (s *MonitorService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.MonitorChannel())
}

// EnqueueViolation queues a live violation for batched persistence.
func (s *MonitorService) EnqueueViolation(ctx context.Context, ev model.ViolationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}

// MonitorSnapshot is the first message sent to an attached monitor.
type MonitorSnapshot struct {
	Stats            *model.SubmissionStats `json:"stats"`
	InProgress       []string               `json:"in_progress"`
	PendingGrades    int64                  `json:"pending_grades"`
	RecentViolations []model.ViolationEvent `json:"recent_violations"`
	ViolationCounts  map[string]int64       `json:"violation_counts"`
}

// Snapshot gathers the current dashboard state. Stats are required; the live
// violation data is best-effort.
func (s *MonitorService) Snapshot(ctx context.Context) (*MonitorSnapshot, error) {
	var (
		stats       *model.SubmissionStats
		recent      []model.ViolationEvent
		counts      map[string]int64
		inProgress  []string
		pending     int64
		statsErr    error
		recentErr   error
		countErr    error
		progressErr error
		pendingErr  error
		wg          sync.WaitGroup
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		stats, statsErr = s.submissionRepo.Stats(ctx)
	}()
	go func() {
		defer wg.Done()
		recent, recentErr = s.violationRepo.Recent(ctx, 50)
	}()
	go func() {
		defer wg.Done()
		counts, countErr = s.violationRepo.CountsByAdmission(ctx)
	}()
	go func() {
		defer wg.Done()
		inProgress, progressErr = s.monitorRepo.InProgressAdmissions(ctx)
	}()
	go func() {
		defer wg.Done()
		pending, pendingErr = s.monitorRepo.PendingGrades(ctx)
	}()
	wg.Wait()

	if statsErr != nil {
		return nil, fmt.Errorf("stats: %w", statsErr)
	}
	snap := &MonitorSnapshot{
		Stats:            stats,
		InProgress:       []string{},
		RecentViolations: []model.ViolationEvent{},
		ViolationCounts:  map[string]int64{},
	}
	if recentErr == nil {
		snap.RecentViolations = recent
	} else {
		s.log.Warn().Err(recentErr).Msg("Failed to load recent violations")
	}
	if countErr == nil {
		snap.ViolationCounts = counts
	} else {
		s.log.Warn().Err(countErr).Msg("Failed to load violation counts")
	}
	if progressErr == nil {
		snap.InProgress = inProgress
	} else {
		s.log.Warn().Err(progressErr).Msg("Failed to load in-progress attempts")
	}
	if pendingErr == nil {
		snap.PendingGrades = pending
	} else {
		s.log.Warn().Err(pendingErr).Msg("Failed to count pending grades")
	}
	return snap, nil
}

// Observer returns a session observer that mirrors the session onto the live feed.
func (s *MonitorService) Observer(sessionID string, identity model.Candidate) proctor.Observer {
	return &sessionMirror{monitor: s, sessionID: sessionID, identity: identity}
}

// sessionMirror publishes controller events. It runs on the controller goroutine
// so every Redis call is bounded by observerTimeout.
type sessionMirror struct {
	monitor   *MonitorService
	sessionID string
	identity  model.Candidate
}

func (m *sessionMirror) Notify(ev proctor.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()

	base := model.MonitorEvent{
		AdmissionNumber: m.identity.AdmissionNumber,
		StudentName:     m.identity.FullName,
		SessionID:       m.sessionID,
	}

	switch ev.Kind {
	case proctor.EventReady:
		base.Type = model.MonitorStarted
		m.monitor.Publish(ctx, base)

	case proctor.EventViolation:
		if ev.Violation == nil {
			return
		}
		v := *ev.Violation
		if err := m.monitor.EnqueueViolation(ctx, model.ViolationEvent{
			SessionID:       m.sessionID,
			AdmissionNumber: m.identity.AdmissionNumber,
			Category:        v.Category,
			Description:     v.Description,
			OccurredAt:      v.Timestamp,
		}); err != nil {
			m.monitor.log.Warn().Err(err).Str("session_id", m.sessionID).Msg("Failed to queue violation")
		}
		base.Type = model.MonitorViolation
		base.Category = v.Category
		base.Description = v.Description
		if ev.Warning != nil {
			base.ViolationCount = ev.Warning.Count
		}
		m.monitor.Publish(ctx, base)

	case proctor.EventBanned:
		base.Type = model.MonitorBanned
		base.Outcome = ev.Outcome
		m.monitor.Publish(ctx, base)
	}
}
