package websocket

import (
	"time"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/proctor"
	"github.com/google/uuid"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal Action = "signal"
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is any client message. Only the fields of its action are set.
type Request struct {
	Action   Action          `json:"action"`
	Signal   *proctor.Signal `json:"signal,omitempty"`
	Question int             `json:"question_number,omitempty"`
	Option   *int            `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady        Event = "ready"
	EventTick         Event = "tick"
	EventWarning      Event = "warning"
	EventBanned       Event = "banned"
	EventSubmitted    Event = "submitted"
	EventSubmitFailed Event = "submit_failed"
	EventAnswered     Event = "answered"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// ReadyResponse opens the session: the paper and the clock.
type ReadyResponse struct {
	Event            Event                        `json:"event"`
	StartedAt        time.Time                    `json:"started_at"`
	RemainingSeconds int                          `json:"remaining_seconds"`
	BanThreshold     int                          `json:"ban_threshold"`
	Questions        []model.QuestionForCandidate `json:"questions"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// WarningResponse is shown for ClearAfterSeconds, then dismissed by the page.
type WarningResponse struct {
	Event             Event                   `json:"event"`
	Message           string                  `json:"message"`
	Category          model.ViolationCategory `json:"category"`
	Count             int                     `json:"count"`
	Threshold         int                     `json:"threshold"`
	Remaining         int                     `json:"remaining"`
	PreventDefault    bool                    `json:"prevent_default"`
	ClearAfterSeconds int                     `json:"clear_after_seconds"`
	ExpiresAt         time.Time               `json:"expires_at"`
}

type BannedResponse struct {
	Event     Event  `json:"event"`
	Message   string `json:"message"`
	Threshold int    `json:"threshold"`
}

type SubmittedResponse struct {
	Event            Event                  `json:"event"`
	SubmissionID     uuid.UUID              `json:"submission_id"`
	Outcome          model.Outcome          `json:"outcome"`
	TimeTaken        string                 `json:"time_taken"`
	BannedDuringExam bool                   `json:"banned_during_exam"`
	ViolationSummary model.ViolationSummary `json:"violation_summary"`
}

// SubmitFailedResponse asks the client to retry with a submit action.
type SubmitFailedResponse struct {
	Event   Event         `json:"event"`
	Outcome model.Outcome `json:"outcome"`
	Error   string        `json:"error"`
}

type AnsweredResponse struct {
	Event    Event `json:"event"`
	Question int   `json:"question_number"`
	Option   int   `json:"option"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
