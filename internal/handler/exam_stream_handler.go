package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bipstech/exam-portal/internal/middleware"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/proctor"
	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	ws "github.com/bipstech/exam-portal/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	signalBuffer = 32
	eventBuffer  = 64
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamSessions guards the single proctored stream of a candidate token.
// *service.AuthService implements it.
type StreamSessions interface {
	CompletionTracker
	AcquireStream(ctx context.Context, jti string) error
}

// SessionMirror mirrors a session onto the admin live feed.
// *service.MonitorService implements it.
type SessionMirror interface {
	Observer(sessionID string, identity model.Candidate) proctor.Observer
}

// ExamStreamHandler hosts one proctored session per WebSocket connection.
type ExamStreamHandler struct {
	cfg         proctor.Config
	questions   PaperProvider
	submissions proctor.Submitter
	sessions    StreamSessions
	monitor     SessionMirror
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

// NewExamStreamHandler creates a new ExamStreamHandler.
func NewExamStreamHandler(
	cfg proctor.Config,
	questions PaperProvider,
	submissions proctor.Submitter,
	sessions StreamSessions,
	monitor SessionMirror,
	log zerolog.Logger,
	allowedOrigins []string,
) *ExamStreamHandler {
	return &ExamStreamHandler{
		cfg:         cfg,
		questions:   questions,
		submissions: submissions,
		sessions:    sessions,
		monitor:     monitor,
		upgrader:    buildUpgrader(allowedOrigins),
		log:         log.With().Str("component", "exam_stream").Logger(),
	}
}

// ExamStream godoc
// WS /ws/v1/exam/stream?token=
// Streams browser signals into the session controller and pushes warnings,
// clock ticks and the final outcome back to the page.
func (h *ExamStreamHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	ctx := c.Request.Context()

	done, err := h.sessions.IsCompleted(ctx, claims.ID)
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}
	if done {
		response.Fail(c, http.StatusConflict, response.ErrExamCompleted)
		return
	}

	// An empty or unavailable paper refuses the session before any clock starts.
	paper, err := h.questions.Paper(ctx)
	if err != nil {
		if !errors.Is(err, service.ErrNoQuestions) {
			h.log.Error().Err(err).Msg("Failed to load question paper")
		}
		response.Fail(c, http.StatusServiceUnavailable, response.ErrNoQuestions)
		return
	}

	if err := h.sessions.AcquireStream(ctx, claims.ID); err != nil {
		if errors.Is(err, service.ErrStreamAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrStreamActive)
			return
		}
		if errors.Is(err, service.ErrExamCompleted) {
			response.Fail(c, http.StatusConflict, response.ErrExamCompleted)
			return
		}
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	identity := claims.Candidate()
	wsLog := h.log.With().
		Str("admission_number", identity.AdmissionNumber).
		Str("session_id", claims.ID).
		Logger()

	writer := ws.NewWriter(conn)
	source := proctor.NewChannelSource(signalBuffer)

	// Called only from the controller goroutine; a retry reuses the claim.
	claimed := false
	submitter := proctor.SubmitterFunc(func(ctx context.Context, sub *model.Submission) error {
		if !claimed {
			if err := h.sessions.ClaimSubmission(ctx, claims.ID); err != nil {
				return err
			}
			claimed = true
		}
		if err := h.submissions.Submit(ctx, sub); err != nil {
			return err
		}
		if err := h.sessions.MarkCompleted(ctx, claims); err != nil {
			wsLog.Warn().Err(err).Msg("Failed to mark exam completed")
		}
		return nil
	})

	// Page writes and the live feed run off the controller goroutine so a
	// stalled socket or Redis cannot hold up the session.
	page := proctor.NewAsyncObserver(&pageObserver{writer: writer, paper: paper, log: wsLog}, eventBuffer)
	mirror := proctor.NewAsyncObserver(h.monitor.Observer(claims.ID, identity), eventBuffer)
	closeObservers := func() {
		page.Close()
		mirror.Close()
		if n := page.Dropped(); n > 0 {
			wsLog.Debug().Int64("ticks", n).Msg("Skipped ticks for a slow page")
		}
	}

	ctrl, err := proctor.NewController(h.cfg, identity, paper, proctor.Deps{
		Source:    source,
		Submitter: submitter,
		Observer:  proctor.Observers{page, mirror},
		Log:       wsLog,
	})
	if err != nil {
		closeObservers()
		_ = writer.WriteError(err.Error())
		return
	}

	// The session outlives the upgrade request; it ends with the connection.
	sessCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := ctrl.Run(sessCtx); err != nil && !errors.Is(err, context.Canceled) {
			wsLog.Error().Err(err).Msg("Session stopped")
		}
		closeObservers()
		if ctrl.State() == proctor.StateSubmitted {
			_ = writer.Close("exam submitted")
		}
	}()

	wsLog.Info().Msg("Candidate connected")

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(sessCtx, ctrl, source, writer, msg)
	}

	// Signals read before the close are still evaluated by the controller.
	cancel()
	<-finished

	if ctrl.State() != proctor.StateSubmitted {
		if sub := ctrl.Submission(); sub != nil {
			wsLog.Warn().Str("outcome", string(sub.Outcome)).Msg("Candidate disconnected with an undelivered submission")
			return
		}
		wsLog.Warn().Str("state", string(ctrl.State())).Msg("Candidate disconnected before submission")
		return
	}
	wsLog.Info().Msg("Candidate disconnected")
}

func (h *ExamStreamHandler) dispatch(ctx context.Context, ctrl *proctor.Controller, source *proctor.ChannelSource, writer *ws.Writer, msg ws.Request) {
	switch msg.Action {
	case ws.ActionSignal:
		if msg.Signal == nil {
			_ = writer.WriteError("signal is required")
			return
		}
		sig := *msg.Signal
		sig.At = time.Now()
		// Signals after termination are dropped; the page is already done.
		source.Publish(ctx, sig)

	case ws.ActionAnswer:
		if msg.Option == nil {
			_ = writer.WriteError("option is required")
			return
		}
		if err := ctrl.Answer(ctx, msg.Question, *msg.Option); err != nil {
			_ = writer.WriteError(sessionErrorMessage(err))
			return
		}
		_ = writer.WriteTyped(ws.AnsweredResponse{Event: ws.EventAnswered, Question: msg.Question, Option: *msg.Option})

	case ws.ActionSubmit:
		err := ctrl.Submit(ctx)
		switch {
		case err == nil:
		case errors.Is(err, proctor.ErrIncompleteAnswers),
			errors.Is(err, proctor.ErrAlreadyTerminated),
			errors.Is(err, proctor.ErrSessionClosed):
			_ = writer.WriteError(sessionErrorMessage(err))
		default:
			// Delivery failures reach the page as submit_failed.
		}

	case ws.ActionPing:
		_ = writer.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		_ = writer.WriteError("unknown action: " + string(msg.Action))
	}
}

func sessionErrorMessage(err error) string {
	switch {
	case errors.Is(err, proctor.ErrIncompleteAnswers):
		return response.GetMessage(response.ErrIncompleteAnswers)
	case errors.Is(err, proctor.ErrAlreadyTerminated):
		return response.GetMessage(response.ErrExamCompleted)
	case errors.Is(err, proctor.ErrSessionClosed):
		return response.GetMessage(response.ErrSessionClosed)
	default:
		return err.Error()
	}
}

// pageObserver renders controller events onto the exam page connection.
type pageObserver struct {
	writer *ws.Writer
	paper  []model.QuestionForCandidate
	log    zerolog.Logger
}

func (o *pageObserver) Notify(ev proctor.Event) {
	var msg any
	switch ev.Kind {
	case proctor.EventReady:
		msg = ws.ReadyResponse{
			Event:            ws.EventReady,
			StartedAt:        ev.StartedAt,
			RemainingSeconds: seconds(ev.Remaining),
			BanThreshold:     ev.Threshold,
			Questions:        o.paper,
		}

	case proctor.EventTick:
		msg = ws.TickResponse{Event: ws.EventTick, RemainingSeconds: seconds(ev.Remaining)}

	case proctor.EventViolation:
		if ev.Warning == nil {
			return
		}
		w := ev.Warning
		msg = ws.WarningResponse{
			Event:             ws.EventWarning,
			Message:           w.Message,
			Category:          w.Category,
			Count:             w.Count,
			Threshold:         w.Threshold,
			Remaining:         w.Remaining,
			PreventDefault:    ev.Verdict.PreventDefault,
			ClearAfterSeconds: seconds(w.ClearAfter),
			ExpiresAt:         w.ExpiresAt,
		}

	case proctor.EventBanned:
		msg = ws.BannedResponse{
			Event:     ws.EventBanned,
			Message:   "You have been banned from this exam for repeated violations. Your answers are being submitted.",
			Threshold: ev.Threshold,
		}

	case proctor.EventSubmitted:
		sub := ev.Submission
		msg = ws.SubmittedResponse{
			Event:            ws.EventSubmitted,
			SubmissionID:     sub.ID,
			Outcome:          sub.Outcome,
			TimeTaken:        sub.TimeTaken,
			BannedDuringExam: sub.BannedDuringExam,
			ViolationSummary: sub.ViolationSummary,
		}

	case proctor.EventSubmitFailed:
		msg = ws.SubmitFailedResponse{
			Event:   ws.EventSubmitFailed,
			Outcome: ev.Outcome,
			Error:   "Submission failed. Send submit to try again.",
		}

	default:
		return
	}

	if err := o.writer.WriteTyped(msg); err != nil {
		o.log.Debug().Err(err).Str("event", string(ev.Kind)).Msg("Failed to write event")
	}
}

// seconds rounds a duration up to whole seconds.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
