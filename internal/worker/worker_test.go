package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/bipstech/exam-portal/internal/grading"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type memQueue struct {
	mu      sync.Mutex
	items   map[string][]string
	pushErr error
}

func newMemQueue() *memQueue {
	return &memQueue{items: map[string][]string{}}
}

func (q *memQueue) Pop(ctx context.Context, key string, _ time.Duration) (string, error) {
	q.mu.Lock()
	list := q.items[key]
	if len(list) > 0 {
		q.items[key] = list[1:]
		q.mu.Unlock()
		return list[0], nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Millisecond):
		return "", ErrQueueEmpty
	}
}

func (q *memQueue) Push(_ context.Context, key string, items ...[]byte) error {
	if q.pushErr != nil {
		return q.pushErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range items {
		q.items[key] = append(q.items[key], string(it))
	}
	return nil
}

func (q *memQueue) len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[key])
}

type fakeGrader struct {
	mu      sync.Mutex
	bulkErr error
	errs    map[uuid.UUID]error
	bulk    [][]uuid.UUID
	singles []uuid.UUID
}

func (g *fakeGrader) GradeMany(_ context.Context, ids []uuid.UUID) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bulk = append(g.bulk, ids)
	if g.bulkErr != nil {
		return 0, g.bulkErr
	}
	return len(ids), nil
}

func (g *fakeGrader) Grade(_ context.Context, id uuid.UUID) (*grading.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.singles = append(g.singles, id)
	if err := g.errs[id]; err != nil {
		return nil, err
	}
	return &grading.Result{Grade: "A"}, nil
}

func (g *fakeGrader) bulkCalls() [][]uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]uuid.UUID(nil), g.bulk...)
}

func job(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	data, err := json.Marshal(service.GradeJob{SubmissionID: id})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestScoringWorkerFlushesOnShutdown(t *testing.T) {
	q := newMemQueue()
	a, b := uuid.New(), uuid.New()
	key := config.WorkerKey.GradeSubmissionsQueue
	_ = q.Push(context.Background(), key, job(t, a), []byte("{not json"), job(t, b), job(t, a))

	g := &fakeGrader{}
	w := NewScoringWorker(q, g, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for q.len(key) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	calls := g.bulkCalls()
	if len(calls) != 1 {
		t.Fatalf("bulk calls = %d, want 1", len(calls))
	}
	if len(calls[0]) != 2 || calls[0][0] != a || calls[0][1] != b {
		t.Fatalf("graded %v, want [%s %s] without duplicates", calls[0], a, b)
	}
}

func TestScoringWorkerFallbackRequeuesTransientFailures(t *testing.T) {
	q := newMemQueue()
	ok, banned, missing, flaky := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	g := &fakeGrader{
		bulkErr: errors.New("connection reset"),
		errs: map[uuid.UUID]error{
			banned:  service.ErrSubmissionBanned,
			missing: service.ErrSubmissionNotFound,
			flaky:   errors.New("timeout"),
		},
	}
	w := NewScoringWorker(q, g, zerolog.Nop())
	w.backoff = 0

	w.flushSafe(context.Background(), []service.GradeJob{
		{SubmissionID: ok}, {SubmissionID: banned}, {SubmissionID: missing}, {SubmissionID: flaky},
	})

	if len(g.singles) != 4 {
		t.Fatalf("fallback graded %d submissions, want 4", len(g.singles))
	}
	key := config.WorkerKey.GradeSubmissionsQueue
	if q.len(key) != 1 {
		t.Fatalf("requeued %d jobs, want 1", q.len(key))
	}
	var requeued service.GradeJob
	if err := json.Unmarshal([]byte(q.items[key][0]), &requeued); err != nil || requeued.SubmissionID != flaky {
		t.Fatalf("requeued %+v (%v), want %s", requeued, err, flaky)
	}
}

type fakeStore struct {
	bulkErr  error
	failFor  string
	bulk     [][]model.ViolationEvent
	inserted []model.ViolationEvent
}

func (s *fakeStore) BulkInsert(_ context.Context, events []model.ViolationEvent) error {
	s.bulk = append(s.bulk, append([]model.ViolationEvent(nil), events...))
	return s.bulkErr
}

func (s *fakeStore) Insert(_ context.Context, e model.ViolationEvent) error {
	if e.AdmissionNumber == s.failFor {
		return errors.New("insert failed")
	}
	s.inserted = append(s.inserted, e)
	return nil
}

func violation(adm string, cat model.ViolationCategory) model.ViolationEvent {
	return model.ViolationEvent{
		SessionID:       "s-" + adm,
		AdmissionNumber: adm,
		Category:        cat,
		Description:     "Copy attempt detected",
		OccurredAt:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestViolationWorkerDropsInvalidEvents(t *testing.T) {
	store := &fakeStore{}
	w := NewViolationWorker(newMemQueue(), store, zerolog.Nop())

	w.flushSafe(context.Background(), []model.ViolationEvent{
		violation("BTC/1", model.ViolationCopy),
		violation("", model.ViolationCopy),
		violation("BTC/2", "scroll"),
		violation("BTC/3", model.ViolationTabSwitch),
	})

	if len(store.bulk) != 1 || len(store.bulk[0]) != 2 {
		t.Fatalf("bulk insert got %v, want 2 valid events", store.bulk)
	}
}

func TestViolationWorkerFallbackAndRequeue(t *testing.T) {
	q := newMemQueue()
	store := &fakeStore{bulkErr: errors.New("copy failed"), failFor: "BTC/2"}
	w := NewViolationWorker(q, store, zerolog.Nop())
	w.backoff = 0

	w.flushSafe(context.Background(), []model.ViolationEvent{
		violation("BTC/1", model.ViolationCopy),
		violation("BTC/2", model.ViolationPaste),
	})

	if len(store.inserted) != 1 || store.inserted[0].AdmissionNumber != "BTC/1" {
		t.Fatalf("row-by-row inserted %v", store.inserted)
	}
	key := config.WorkerKey.PersistViolationsQueue
	if q.len(key) != 1 {
		t.Fatalf("requeued %d events, want 1", q.len(key))
	}
	var e model.ViolationEvent
	if err := json.Unmarshal([]byte(q.items[key][0]), &e); err != nil || e.AdmissionNumber != "BTC/2" || e.Category != model.ViolationPaste {
		t.Fatalf("requeued %+v (%v)", e, err)
	}
}

func TestRequeueReportsPushFailure(t *testing.T) {
	q := newMemQueue()
	q.pushErr = errors.New("redis down")
	requeue(context.Background(), q, "k", []int{1, 2}, 0, zerolog.Nop())
	if q.len("k") != 0 {
		t.Fatalf("items pushed despite error")
	}
}
