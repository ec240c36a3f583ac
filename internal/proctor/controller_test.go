package proctor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeSource struct {
	ch           chan Signal
	subscribed   atomic.Int32
	unsubscribed atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan Signal)}
}

func (s *fakeSource) Subscribe() (<-chan Signal, func()) {
	s.subscribed.Add(1)
	return s.ch, func() { s.unsubscribed.Add(1) }
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		ticker: &fakeTicker{ch: make(chan time.Time)},
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker { return c.ticker }

// tick advances the clock by d and delivers one tick.
func (c *fakeClock) tick(t *testing.T, d time.Duration) {
	t.Helper()
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	select {
	case c.ticker.ch <- now:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick not consumed")
	}
}

type recordingSubmitter struct {
	mu    sync.Mutex
	subs  []*model.Submission
	fails int // number of leading calls that fail
	calls int
}

func (r *recordingSubmitter) Submit(_ context.Context, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fails {
		return errors.New("network down")
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *recordingSubmitter) submissions() []*model.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Submission(nil), r.subs...)
}

type eventLog struct {
	ch chan Event
}

func newEventLog() *eventLog { return &eventLog{ch: make(chan Event, 256)} }

func (l *eventLog) Notify(ev Event) { l.ch <- ev }

func (l *eventLog) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-l.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// ─── Harness ────────────────────────────────────────────────────────────────

type harness struct {
	ctrl      *Controller
	source    *fakeSource
	clock     *fakeClock
	submitter *recordingSubmitter
	events    *eventLog
	runErr    chan error
	cancel    context.CancelFunc
}

func paper(n int) []model.QuestionForCandidate {
	qs := make([]model.QuestionForCandidate, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, model.QuestionForCandidate{Number: i, Text: "Q", Options: []string{"a", "b", "c", "d"}, Marks: 1})
	}
	return qs
}

func startHarness(t *testing.T, cfg Config, questions int, submitter *recordingSubmitter) *harness {
	t.Helper()
	h := &harness{
		source:    newFakeSource(),
		clock:     newFakeClock(),
		submitter: submitter,
		events:    newEventLog(),
		runErr:    make(chan error, 1),
	}
	ctrl, err := NewController(cfg, model.Candidate{FullName: "Jane Wanjiru", AdmissionNumber: "BTC/001"}, paper(questions), Deps{
		Source:    h.source,
		Submitter: submitter,
		Clock:     h.clock,
		Observer:  h.events,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.runErr <- ctrl.Run(ctx) }()
	h.events.waitFor(t, EventReady)
	return h
}

func (h *harness) signal(t *testing.T, sig Signal) {
	t.Helper()
	select {
	case h.source.ch <- sig:
	case <-time.After(2 * time.Second):
		t.Fatalf("signal %s not consumed", sig.Kind)
	}
}

func (h *harness) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.runErr:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish")
		return nil
	}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestControllerBansOnSecondViolation(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: time.Hour, BanThreshold: 2}, 3, sub)

	h.signal(t, Signal{Kind: SignalBlur})
	ev := h.events.waitFor(t, EventViolation)
	if ev.Warning == nil || ev.Warning.Count != 1 || ev.Warning.Remaining != 1 {
		t.Fatalf("unexpected first warning: %+v", ev.Warning)
	}
	if got := h.ctrl.State(); got != StateActive {
		t.Fatalf("state after 1 violation = %s, want ACTIVE", got)
	}

	h.signal(t, Signal{Kind: SignalCopy})
	h.events.waitFor(t, EventBanned)
	submitted := h.events.waitFor(t, EventSubmitted)

	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got := h.ctrl.State(); got != StateSubmitted {
		t.Fatalf("final state = %s, want SUBMITTED", got)
	}
	if !submitted.Submission.BannedDuringExam || submitted.Outcome != model.OutcomeBanned {
		t.Fatalf("expected banned submission, got %+v", submitted.Submission)
	}
	if n := len(sub.submissions()); n != 1 {
		t.Fatalf("submissions = %d, want 1", n)
	}
	if h.source.unsubscribed.Load() != 1 {
		t.Fatalf("listeners not removed on ban")
	}
}

func TestControllerTimeoutIgnoresFocusLoss(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: 4 * time.Second, BanThreshold: 5}, 2, sub)

	h.clock.tick(t, time.Second)
	h.signal(t, Signal{Kind: SignalBlur})
	h.events.waitFor(t, EventViolation)
	h.clock.tick(t, time.Second)
	h.clock.tick(t, time.Second)
	if got := h.ctrl.State(); got != StateActive {
		t.Fatalf("state before expiry = %s", got)
	}
	h.clock.tick(t, time.Second)

	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	subs := sub.submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if subs[0].BannedDuringExam || subs[0].Outcome != model.OutcomeTimeout {
		t.Fatalf("expected timeout submission, got banned=%v outcome=%s", subs[0].BannedDuringExam, subs[0].Outcome)
	}
	if subs[0].ViolationSummary.TotalViolations != 1 {
		t.Fatalf("total violations = %d, want 1", subs[0].ViolationSummary.TotalViolations)
	}
}

func TestControllerIsIdempotentAfterSubmission(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: time.Hour, BanThreshold: 2}, 1, sub)

	if err := h.ctrl.Answer(context.Background(), 1, 2); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := h.ctrl.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if err := h.ctrl.Submit(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second Submit = %v, want ErrSessionClosed", err)
	}
	if err := h.ctrl.Answer(context.Background(), 1, 0); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Answer after submit = %v, want ErrSessionClosed", err)
	}
	select {
	case h.source.ch <- Signal{Kind: SignalPaste}:
		t.Fatalf("signal consumed after submission")
	case <-time.After(50 * time.Millisecond):
	}
	if !h.clock.ticker.stopped.Load() {
		t.Fatalf("ticker still running after submission")
	}

	subs := sub.submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if subs[0].Outcome != model.OutcomeManual || subs[0].Answers[1] != 2 {
		t.Fatalf("unexpected submission: %+v", subs[0])
	}
}

func TestSessionCopyThenTimeout(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: 5 * time.Second, BanThreshold: 2}, 5, sub)

	h.signal(t, Signal{Kind: SignalCopy})
	h.events.waitFor(t, EventViolation)
	for i := 0; i < 5; i++ {
		h.clock.tick(t, time.Second)
	}
	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	subs := sub.submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	want := model.ViolationSummary{TabSwitches: 0, CopyAttempts: 1, PasteAttempts: 0, TotalViolations: 1}
	if subs[0].ViolationSummary != want {
		t.Fatalf("summary = %+v, want %+v", subs[0].ViolationSummary, want)
	}
	if subs[0].BannedDuringExam {
		t.Fatalf("timeout submission flagged as banned")
	}
}

func TestSessionDoubleTabSwitchBansBeforeTimer(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: 5 * time.Second, BanThreshold: 2}, 5, sub)

	h.signal(t, Signal{Kind: SignalVisibilityChange, Hidden: true})
	h.signal(t, Signal{Kind: SignalVisibilityChange, Hidden: true})

	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !h.clock.ticker.stopped.Load() {
		t.Fatalf("timer still armed after ban")
	}
	select {
	case h.clock.ticker.ch <- time.Now():
		t.Fatalf("tick consumed after ban")
	case <-time.After(50 * time.Millisecond):
	}

	subs := sub.submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if !subs[0].BannedDuringExam || subs[0].ViolationSummary.TabSwitches != 2 {
		t.Fatalf("unexpected submission: %+v", subs[0])
	}
}

func TestVisibleAgainIsNotAViolation(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: time.Hour, BanThreshold: 2}, 1, sub)

	h.signal(t, Signal{Kind: SignalVisibilityChange, Hidden: false})
	h.signal(t, Signal{Kind: SignalKeyDown, Key: "b", Ctrl: true})
	h.signal(t, Signal{Kind: SignalVisibilityChange, Hidden: true})
	h.events.waitFor(t, EventViolation)

	if got := h.ctrl.State(); got != StateActive {
		t.Fatalf("state = %s, want ACTIVE", got)
	}
	h.cancel()
	if err := h.waitDone(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if n := len(sub.submissions()); n != 0 {
		t.Fatalf("abandoned session submitted %d times", n)
	}
}

func TestManualSubmitRequiresAllAnswers(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: time.Hour, BanThreshold: 2, RequireAllAnswered: true}, 2, sub)
	ctx := context.Background()

	if err := h.ctrl.Answer(ctx, 1, 0); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := h.ctrl.Submit(ctx); !errors.Is(err, ErrIncompleteAnswers) {
		t.Fatalf("Submit = %v, want ErrIncompleteAnswers", err)
	}
	if err := h.ctrl.Answer(ctx, 2, 3); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestAnswerValidation(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: time.Hour}, 2, sub)
	ctx := context.Background()

	if err := h.ctrl.Answer(ctx, 3, 0); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question = %v", err)
	}
	if err := h.ctrl.Answer(ctx, 1, 4); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("option out of range = %v", err)
	}
	if err := h.ctrl.Answer(ctx, 1, -1); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("negative option = %v", err)
	}
	if err := h.ctrl.Answer(ctx, 1, 1); err != nil {
		t.Fatalf("valid answer: %v", err)
	}
	if err := h.ctrl.Answer(ctx, 1, 3); err != nil {
		t.Fatalf("overwrite answer: %v", err)
	}
	if err := h.ctrl.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitDone(t)
	if got := sub.submissions()[0].Answers; len(got) != 1 || got[1] != 3 {
		t.Fatalf("answers = %v, want last write to win", got)
	}
}

func TestFailedSubmissionRetriesOnlyManually(t *testing.T) {
	sub := &recordingSubmitter{fails: 1}
	h := startHarness(t, Config{Duration: 2 * time.Second, BanThreshold: 2}, 1, sub)

	h.clock.tick(t, time.Second)
	h.clock.tick(t, time.Second)
	failed := h.events.waitFor(t, EventSubmitFailed)
	if failed.Err == nil {
		t.Fatalf("expected failure error")
	}
	built := h.ctrl.Submission()
	if built == nil {
		t.Fatalf("submission not kept after failure")
	}

	select {
	case <-h.ctrl.Done():
		t.Fatalf("session closed after transport failure")
	case <-time.After(50 * time.Millisecond):
	}

	if err := h.ctrl.Submit(context.Background()); err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	subs := sub.submissions()
	if len(subs) != 1 || subs[0] != built {
		t.Fatalf("retry must resend the built submission")
	}
	if subs[0].Outcome != model.OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", subs[0].Outcome)
	}
	if sub.calls != 2 {
		t.Fatalf("submit calls = %d, want 2", sub.calls)
	}
}

func TestNewControllerRefusesEmptyPaper(t *testing.T) {
	_, err := NewController(Config{Duration: time.Minute}, model.Candidate{}, nil, Deps{
		Source:    newFakeSource(),
		Submitter: &recordingSubmitter{},
	})
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("NewController = %v, want ErrNoQuestions", err)
	}
}

func TestRunTwiceFails(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: time.Hour}, 1, sub)
	if err := h.ctrl.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run = %v, want ErrAlreadyRunning", err)
	}
}

// ─── Ordering, cancellation and clock integrity ─────────────────────────────

func newTestController(t *testing.T, cfg Config, source EventSource, clock Clock, submitter Submitter, observer Observer) *Controller {
	t.Helper()
	ctrl, err := NewController(cfg, model.Candidate{FullName: "Jane Wanjiru", AdmissionNumber: "BTC/001"}, paper(2), Deps{
		Source:    source,
		Submitter: submitter,
		Clock:     clock,
		Observer:  observer,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl
}

func TestQueuedSignalsPrecedeSubmit(t *testing.T) {
	for i := 0; i < 100; i++ {
		source := NewChannelSource(8)
		sub := &recordingSubmitter{}
		ctrl := newTestController(t, Config{Duration: time.Hour, BanThreshold: 2}, source, newFakeClock(), sub, nil)

		ctx := context.Background()
		source.Publish(ctx, Signal{Kind: SignalCopy})
		source.Publish(ctx, Signal{Kind: SignalPaste})

		runErr := make(chan error, 1)
		go func() { runErr <- ctrl.Run(ctx) }()

		err := ctrl.Submit(ctx)
		if !errors.Is(err, ErrAlreadyTerminated) && !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("run %d: Submit = %v, want the session already banned", i, err)
		}
		if err := <-runErr; err != nil {
			t.Fatalf("run %d: Run = %v", i, err)
		}
		subs := sub.submissions()
		if len(subs) != 1 || !subs[0].BannedDuringExam || subs[0].Outcome != model.OutcomeBanned {
			t.Fatalf("run %d: expected one banned submission, got %+v", i, subs)
		}
	}
}

func TestCancelledSessionEvaluatesQueuedSignals(t *testing.T) {
	for i := 0; i < 100; i++ {
		source := NewChannelSource(8)
		var stored []*model.Submission
		submitter := SubmitterFunc(func(ctx context.Context, s *model.Submission) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stored = append(stored, s)
			return nil
		})
		ctrl := newTestController(t, Config{Duration: time.Hour, BanThreshold: 2}, source, newFakeClock(), submitter, nil)

		ctx, cancel := context.WithCancel(context.Background())
		source.Publish(ctx, Signal{Kind: SignalBeforeUnload})
		source.Publish(ctx, Signal{Kind: SignalVisibilityChange, Hidden: true})
		cancel()

		if err := ctrl.Run(ctx); err != nil {
			t.Fatalf("run %d: Run = %v, want nil after ban", i, err)
		}
		if ctrl.State() != StateSubmitted {
			t.Fatalf("run %d: state = %s", i, ctrl.State())
		}
		if len(stored) != 1 || !stored[0].BannedDuringExam || stored[0].ViolationSummary.TotalViolations != 2 {
			t.Fatalf("run %d: stored %+v", i, stored)
		}
	}
}

func TestLateTicksCannotStretchExam(t *testing.T) {
	sub := &recordingSubmitter{}
	h := startHarness(t, Config{Duration: 5 * time.Second, BanThreshold: 2}, 1, sub)

	// Each delivered tick stands for two seconds of wall time.
	h.clock.tick(t, 2*time.Second)
	if ev := h.events.waitFor(t, EventTick); ev.Remaining != 3*time.Second {
		t.Fatalf("remaining = %v, want 3s", ev.Remaining)
	}
	h.clock.tick(t, 2*time.Second)
	if ev := h.events.waitFor(t, EventTick); ev.Remaining != time.Second {
		t.Fatalf("remaining = %v, want 1s", ev.Remaining)
	}
	h.clock.tick(t, 2*time.Second)

	if err := h.waitDone(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	subs := sub.submissions()
	if len(subs) != 1 || subs[0].Outcome != model.OutcomeTimeout {
		t.Fatalf("expected timeout after 6s of wall time, got %+v", subs)
	}
}

func TestSlowObserverCannotPauseClock(t *testing.T) {
	sub := &recordingSubmitter{}
	slow := ObserverFunc(func(ev Event) {
		if ev.Kind == EventTick {
			time.Sleep(50 * time.Millisecond)
		}
	})
	ctrl := newTestController(t, Config{Duration: 200 * time.Millisecond, TickInterval: 10 * time.Millisecond}, newFakeSource(), SystemClock{}, sub, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := ctrl.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Fatalf("200ms exam ran for %v", elapsed)
	}
	if subs := sub.submissions(); len(subs) != 1 || subs[0].Outcome != model.OutcomeTimeout {
		t.Fatalf("expected one timeout submission, got %+v", subs)
	}
}

func TestTerminatedWhileDeliveryPending(t *testing.T) {
	sub := &recordingSubmitter{fails: 1}
	h := startHarness(t, Config{Duration: time.Hour}, 1, sub)

	if err := h.ctrl.Submit(context.Background()); err == nil {
		t.Fatalf("Submit succeeded despite delivery failure")
	}
	if !h.ctrl.Terminated() || h.ctrl.State() != StateActive {
		t.Fatalf("terminated=%v state=%s", h.ctrl.Terminated(), h.ctrl.State())
	}
	if out := h.ctrl.Submission().Outcome; out != model.OutcomeManual {
		t.Fatalf("pending outcome = %s", out)
	}
}
