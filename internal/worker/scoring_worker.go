package worker

import (
	"context"
	"errors"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/grading"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Grader scores stored submissions. *service.SubmissionService implements it.
type Grader interface {
	GradeMany(ctx context.Context, ids []uuid.UUID) (int, error)
	Grade(ctx context.Context, id uuid.UUID) (*grading.Result, error)
}

// ScoringWorker grades queued submissions in batches.
type ScoringWorker struct {
	queue   Queue
	grader  Grader
	backoff time.Duration
	log     zerolog.Logger
}

func NewScoringWorker(queue Queue, grader Grader, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		queue:   queue,
		grader:  grader,
		backoff: requeueBackoff,
		log:     log.With().Str("component", "scoring_worker").Logger(),
	}
}

func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	b := &batcher[service.GradeJob]{
		queue:   w.queue,
		key:     config.WorkerKey.GradeSubmissionsQueue,
		size:    BatchSize,
		maxWait: BatchTimeout,
		backoff: errorBackoff,
		flush:   w.flushSafe,
		log:     w.log,
	}
	b.run(ctx)
}

// flushSafe grades the batch with one bulk update, falls back to grading
// one by one, and requeues what still fails.
func (w *ScoringWorker) flushSafe(ctx context.Context, batch []service.GradeJob) {
	if len(batch) == 0 {
		return
	}

	ids := make([]uuid.UUID, 0, len(batch))
	seen := make(map[uuid.UUID]struct{}, len(batch))
	for _, job := range batch {
		if _, dup := seen[job.SubmissionID]; dup {
			continue
		}
		seen[job.SubmissionID] = struct{}{}
		ids = append(ids, job.SubmissionID)
	}

	graded, err := w.grader.GradeMany(ctx, ids)
	if err == nil {
		w.log.Info().Int("graded", graded).Int("batch", len(ids)).Msg("Batch graded")
		return
	}
	w.log.Warn().Err(err).Int("count", len(ids)).Msg("Bulk grading failed, grading one by one")

	var failed []service.GradeJob
	for _, id := range ids {
		_, err := w.grader.Grade(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrSubmissionBanned), errors.Is(err, service.ErrSubmissionNotFound):
			w.log.Warn().Err(err).Str("submission_id", id.String()).Msg("Dropping grade job")
		default:
			w.log.Error().Err(err).Str("submission_id", id.String()).Msg("Grading failed, requeueing")
			failed = append(failed, service.GradeJob{SubmissionID: id})
		}
	}

	if len(failed) > 0 {
		requeue(ctx, w.queue, config.WorkerKey.GradeSubmissionsQueue, failed, w.backoff, w.log)
	}
}
