package worker

import (
	"context"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

// ViolationStore persists live violation events. *repository.ViolationRepository implements it.
type ViolationStore interface {
	BulkInsert(ctx context.Context, events []model.ViolationEvent) error
	Insert(ctx context.Context, e model.ViolationEvent) error
}

// ViolationWorker persists the live violation feed to the audit table in batches.
type ViolationWorker struct {
	queue   Queue
	store   ViolationStore
	backoff time.Duration
	log     zerolog.Logger
}

func NewViolationWorker(queue Queue, store ViolationStore, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		queue:   queue,
		store:   store,
		backoff: requeueBackoff,
		log:     log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	b := &batcher[model.ViolationEvent]{
		queue:   w.queue,
		key:     config.WorkerKey.PersistViolationsQueue,
		size:    BatchSize,
		maxWait: BatchTimeout,
		backoff: errorBackoff,
		flush:   w.flushSafe,
		log:     w.log,
	}
	b.run(ctx)
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	if len(batch) == 0 {
		return
	}

	valid := batch[:0:0]
	for _, e := range batch {
		if e.AdmissionNumber == "" || !e.Category.Valid() {
			w.log.Error().Str("session_id", e.SessionID).Str("category", string(e.Category)).Msg("Dropping invalid violation event")
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return
	}

	err := w.store.BulkInsert(ctx, valid)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(valid)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.ViolationEvent
	for _, e := range valid {
		if err := w.store.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Str("admission_number", e.AdmissionNumber).Msg("Insert failed, requeueing")
			failed = append(failed, e)
		}
	}

	if len(failed) > 0 {
		requeue(ctx, w.queue, config.WorkerKey.PersistViolationsQueue, failed, w.backoff, w.log)
	}
}
