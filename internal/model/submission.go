package model

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal trigger that ended a session.
type Outcome string

const (
	OutcomeManual  Outcome = "manual"
	OutcomeTimeout Outcome = "timeout"
	OutcomeBanned  Outcome = "banned"
)

// MarkedByAuto is recorded on submissions scored by the grading worker.
const MarkedByAuto = "Auto-graded"

// Submission is the durable record of one exam attempt.
type Submission struct {
	ID               uuid.UUID        `json:"id"`
	StudentName      string           `json:"student_name"`
	AdmissionNumber  string           `json:"admission_number"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	TimeTaken        string           `json:"time_taken"`
	Answers          AnswerMap        `json:"answers"`
	Violations       []Violation      `json:"violations"`
	BannedDuringExam bool             `json:"banned_during_exam"`
	Outcome          Outcome          `json:"outcome"`
	ViolationSummary ViolationSummary `json:"violation_summary"`
	MarkedScore      *int             `json:"marked_score,omitempty"`
	Grade            *string          `json:"grade,omitempty"`
	MarkedBy         *string          `json:"marked_by,omitempty"`
	MarkedDate       *time.Time       `json:"marked_date,omitempty"`
	SubmittedAt      time.Time        `json:"submitted_at"`
}

// Graded reports whether a score has been attached.
func (s *Submission) Graded() bool {
	return s.MarkedScore != nil
}

// SubmissionRequest is the outward payload posted by a client that runs the
// proctoring state machine itself.
type SubmissionRequest struct {
	StudentName      string           `json:"student_name" binding:"required,min=2,max=255"`
	AdmissionNumber  string           `json:"admission_number" binding:"required,admission"`
	StartTime        time.Time        `json:"start_time" binding:"required"`
	EndTime          time.Time        `json:"end_time" binding:"required,gtefield=StartTime"`
	TimeTaken        string           `json:"time_taken" binding:"max=64"`
	Answers          AnswerMap        `json:"answers"`
	Violations       []Violation      `json:"violations" binding:"max=10000"`
	BannedDuringExam bool             `json:"banned_during_exam"`
	Outcome          Outcome          `json:"outcome" binding:"omitempty,oneof=manual timeout banned"`
	ViolationSummary ViolationSummary `json:"violation_summary"`
}

// ToSubmission converts the request into a Submission ready for storage.
// The ban flag and the outcome always agree; either one marks a ban.
func (r *SubmissionRequest) ToSubmission() *Submission {
	banned := r.BannedDuringExam || r.Outcome == OutcomeBanned
	outcome := r.Outcome
	switch {
	case banned:
		outcome = OutcomeBanned
	case outcome == "":
		outcome = OutcomeManual
	}
	answers := r.Answers
	if answers == nil {
		answers = AnswerMap{}
	}
	violations := r.Violations
	if violations == nil {
		violations = []Violation{}
	}
	return &Submission{
		StudentName:      r.StudentName,
		AdmissionNumber:  r.AdmissionNumber,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		TimeTaken:        r.TimeTaken,
		Answers:          answers,
		Violations:       violations,
		BannedDuringExam: banned,
		Outcome:          outcome,
		ViolationSummary: r.ViolationSummary,
	}
}

// SubmissionStats aggregates the results tab of the dashboard.
type SubmissionStats struct {
	Total        int     `json:"total"`
	Completed    int     `json:"completed"`
	Banned       int     `json:"banned"`
	Graded       int     `json:"graded"`
	AverageScore float64 `json:"average_score"`
}

// SubmissionFilter narrows dashboard listings.
type SubmissionFilter struct {
	AdmissionNumber string
	Banned          *bool
	GradedOnly      bool
}
