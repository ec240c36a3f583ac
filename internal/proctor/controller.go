package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive    State = "ACTIVE"
	StateBanned    State = "BANNED"
	StateSubmitted State = "SUBMITTED"
)

var (
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrSessionClosed     = errors.New("exam session is closed")
	ErrAlreadyRunning    = errors.New("exam session already running")
	ErrAlreadyTerminated = errors.New("exam session already terminated")
	ErrIncompleteAnswers = errors.New("not all questions are answered")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrInvalidOption     = errors.New("option out of range")
)

// deliverTimeout bounds the outward submission call. Delivery does not inherit
// session cancellation, so a ban evaluated while the page disconnects is still stored.
const deliverTimeout = 15 * time.Second

// Config holds the rules of a proctored session.
type Config struct {
	Duration           time.Duration
	TickInterval       time.Duration
	BanThreshold       int
	WarningTTL         time.Duration
	RequireAllAnswered bool
}

// WithDefaults returns c with zero values replaced by the package defaults.
func (c Config) WithDefaults() Config {
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.BanThreshold <= 0 {
		c.BanThreshold = DefaultBanThreshold
	}
	if c.WarningTTL <= 0 {
		c.WarningTTL = DefaultWarningTTL
	}
}

// Submitter hands a finished submission to the grading/storage collaborator.
type Submitter interface {
	Submit(ctx context.Context, sub *model.Submission) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, sub *model.Submission) error

func (f SubmitterFunc) Submit(ctx context.Context, sub *model.Submission) error { return f(ctx, sub) }

// Deps are the collaborators of a Controller. Source and Submitter are required.
type Deps struct {
	Source    EventSource
	Submitter Submitter
	Clock     Clock
	Observer  Observer
	Log       zerolog.Logger
}

type commandKind int

const (
	cmdAnswer commandKind = iota
	cmdSubmit
)

type command struct {
	kind     commandKind
	question int
	option   int
	reply    chan error
}

// Controller is the state machine of one exam attempt. All state is owned by
// the goroutine executing Run; callers interact through Answer and Submit.
//
// Invariant: exactly one of ban, timeout or manual submit terminates the
// session. The terminated latch is checked-and-set before any submission is
// built, so later triggers are no-ops.
//
// Signals already queued by the source are handled before any command, tick
// or cancellation, so events are processed in the order the page sent them.
type Controller struct {
	cfg       Config
	identity  model.Candidate
	questions map[int]int // question number -> option count

	source    EventSource
	submitter Submitter
	clock     Clock
	observer  Observer
	log       zerolog.Logger

	detector *Detector
	ledger   *Ledger
	policy   BanPolicy
	timer    *Timer

	startedAt time.Time
	answers   model.AnswerMap

	signals     <-chan Signal
	ticks       <-chan time.Time
	unsubscribe func()
	ticker      Ticker

	terminated atomic.Bool
	running    atomic.Bool

	mu      sync.RWMutex
	state   State
	pending *model.Submission

	commands chan command
	done     chan struct{}
}

// NewController creates a session for identity over the given question paper.
// An empty paper is refused so that no timed session starts without questions.
func NewController(cfg Config, identity model.Candidate, questions []model.QuestionForCandidate, deps Deps) (*Controller, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if deps.Source == nil || deps.Submitter == nil {
		return nil, errors.New("proctor: event source and submitter are required")
	}
	cfg.applyDefaults()

	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	paper := make(map[int]int, len(questions))
	for _, q := range questions {
		paper[q.Number] = len(q.Options)
	}

	return &Controller{
		cfg:       cfg,
		identity:  identity,
		questions: paper,
		source:    deps.Source,
		submitter: deps.Submitter,
		clock:     clock,
		observer:  observer,
		log:       deps.Log,
		detector:  NewDetector(clock.Now),
		ledger:    NewLedger(),
		policy:    BanPolicy{Threshold: cfg.BanThreshold},
		timer:     NewTimer(cfg.Duration, cfg.TickInterval),
		answers:   model.AnswerMap{},
		state:     StateActive,
		commands:  make(chan command),
		done:      make(chan struct{}),
	}, nil
}

// Run drives the session until it reaches SUBMITTED or ctx is cancelled.
// Signals queued before cancellation are still evaluated; a session they do
// not end is abandoned without submission.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.startedAt = c.clock.Now()
	if err := c.timer.Start(c.startedAt); err != nil {
		return err
	}
	c.signals, c.unsubscribe = c.source.Subscribe()
	c.ticker = c.clock.NewTicker(c.cfg.TickInterval)
	c.ticks = c.ticker.C()
	defer c.stopListening()

	c.log.Info().
		Str("admission_number", c.identity.AdmissionNumber).
		Dur("duration", c.cfg.Duration).
		Int("ban_threshold", c.cfg.BanThreshold).
		Msg("Exam session started")

	c.observer.Notify(Event{
		Kind:      EventReady,
		Remaining: c.timer.Remaining(),
		Threshold: c.cfg.BanThreshold,
		StartedAt: c.startedAt,
	})

	for {
		select {
		case <-ctx.Done():
			c.drainSignals(ctx)
			if c.State() == StateSubmitted {
				return nil
			}
			if !c.terminated.Load() {
				c.log.Warn().Str("admission_number", c.identity.AdmissionNumber).Msg("Exam session abandoned")
			}
			return ctx.Err()

		case sig, ok := <-c.signals:
			if !ok {
				c.signals = nil
				continue
			}
			c.handleSignal(ctx, sig)

		case <-c.ticks:
			c.drainSignals(ctx)
			if !c.terminated.Load() {
				c.handleTick(ctx)
			}

		case cmd := <-c.commands:
			c.drainSignals(ctx)
			cmd.reply <- c.handleCommand(ctx, cmd)
		}

		if c.State() == StateSubmitted {
			return nil
		}
	}
}

// Answer records the selected option for a question. Last write wins.
func (c *Controller) Answer(ctx context.Context, question, option int) error {
	return c.send(ctx, command{kind: cmdAnswer, question: question, option: option})
}

// Submit requests a manual submission. After a failed delivery it retries
// the already built submission.
func (c *Controller) Submit(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdSubmit})
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Terminated reports whether a ban, timeout or manual submit has ended the
// session. It can be true while State is still ACTIVE if delivery failed.
func (c *Controller) Terminated() bool {
	return c.terminated.Load()
}

// Submission returns the built submission, or nil before termination.
func (c *Controller) Submission() *model.Submission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.commands <- cmd:
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainSignals handles every signal the source has already queued.
func (c *Controller) drainSignals(ctx context.Context) {
	for c.signals != nil && !c.terminated.Load() {
		select {
		case sig, ok := <-c.signals:
			if !ok {
				c.signals = nil
				return
			}
			c.handleSignal(ctx, sig)
		default:
			return
		}
	}
}

func (c *Controller) handleSignal(ctx context.Context, sig Signal) {
	v, verdict, ok := c.detector.Inspect(sig)
	if !ok {
		return
	}
	c.ledger.Append(v)
	total := c.ledger.Total()

	c.log.Info().
		Str("admission_number", c.identity.AdmissionNumber).
		Str("category", string(v.Category)).
		Int("total", total).
		Msg("Violation recorded")

	now := c.clock.Now()
	c.observer.Notify(Event{
		Kind:      EventViolation,
		Violation: &v,
		Verdict:   verdict,
		Warning: &Warning{
			Message:    verdict.Message,
			Category:   v.Category,
			Count:      total,
			Threshold:  c.policy.Threshold,
			Remaining:  c.policy.Remaining(total),
			ClearAfter: c.cfg.WarningTTL,
			ExpiresAt:  now.Add(c.cfg.WarningTTL),
		},
		Threshold: c.policy.Threshold,
	})

	if c.policy.ShouldBan(total) {
		_ = c.terminate(ctx, model.OutcomeBanned)
	}
}

func (c *Controller) handleTick(ctx context.Context) {
	if c.timer.Tick(c.clock.Now()) {
		c.log.Info().Str("admission_number", c.identity.AdmissionNumber).Msg("Exam time is up")
		_ = c.terminate(ctx, model.OutcomeTimeout)
		return
	}
	c.observer.Notify(Event{Kind: EventTick, Remaining: c.timer.Remaining()})
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdAnswer:
		if c.terminated.Load() {
			return ErrAlreadyTerminated
		}
		options, ok := c.questions[cmd.question]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownQuestion, cmd.question)
		}
		if cmd.option < 0 || cmd.option >= options {
			return fmt.Errorf("%w: question %d option %d", ErrInvalidOption, cmd.question, cmd.option)
		}
		c.answers[cmd.question] = cmd.option
		return nil

	case cmdSubmit:
		if c.terminated.Load() {
			if c.Submission() != nil && c.State() != StateSubmitted {
				return c.deliver(ctx)
			}
			return ErrAlreadyTerminated
		}
		if c.cfg.RequireAllAnswered && len(c.answers) < len(c.questions) {
			return ErrIncompleteAnswers
		}
		return c.terminate(ctx, model.OutcomeManual)
	}
	return nil
}

// terminate is the single entry into the terminal path.
func (c *Controller) terminate(ctx context.Context, outcome model.Outcome) error {
	if !c.terminated.CompareAndSwap(false, true) {
		return ErrAlreadyTerminated
	}

	c.stopListening()

	if outcome == model.OutcomeBanned {
		c.setState(StateBanned)
		c.log.Warn().
			Str("admission_number", c.identity.AdmissionNumber).
			Int("violations", c.ledger.Total()).
			Msg("Candidate banned")
		c.observer.Notify(Event{Kind: EventBanned, Outcome: outcome, Threshold: c.policy.Threshold})
	}

	sub := BuildSubmission(c.identity, c.startedAt, c.clock.Now(), c.answers, c.ledger, outcome)
	c.mu.Lock()
	c.pending = sub
	c.mu.Unlock()

	return c.deliver(ctx)
}

func (c *Controller) deliver(ctx context.Context) error {
	sub := c.Submission()
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()
	if err := c.submitter.Submit(dctx, sub); err != nil {
		c.log.Error().Err(err).
			Str("admission_number", c.identity.AdmissionNumber).
			Msg("Submission failed")
		c.observer.Notify(Event{Kind: EventSubmitFailed, Outcome: sub.Outcome, Err: err})
		return fmt.Errorf("submit exam: %w", err)
	}

	c.setState(StateSubmitted)
	c.log.Info().
		Str("admission_number", c.identity.AdmissionNumber).
		Str("outcome", string(sub.Outcome)).
		Str("submission_id", sub.ID.String()).
		Msg("Exam submitted")
	c.observer.Notify(Event{Kind: EventSubmitted, Outcome: sub.Outcome, Submission: sub})
	return nil
}

// stopListening removes the detector listeners and stops the clock. Idempotent.
func (c *Controller) stopListening() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.timer.Stop()
	c.signals = nil
	c.ticks = nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
