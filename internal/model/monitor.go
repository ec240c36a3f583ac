package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names an entry of the admin live feed.
type MonitorEventType string

const (
	MonitorEntered   MonitorEventType = "entered"
	MonitorStarted   MonitorEventType = "started"
	MonitorViolation MonitorEventType = "violation"
	MonitorBanned    MonitorEventType = "banned"
	MonitorSubmitted MonitorEventType = "submitted"
	MonitorGraded    MonitorEventType = "graded"
	MonitorLeft      MonitorEventType = "left"
)

// MonitorEvent is published on the live monitor channel.
type MonitorEvent struct {
	Type            MonitorEventType  `json:"type"`
	AdmissionNumber string            `json:"admission_number"`
	StudentName     string            `json:"student_name,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	Category        ViolationCategory `json:"category,omitempty"`
	Description     string            `json:"violation,omitempty"`
	ViolationCount  int               `json:"violation_count,omitempty"`
	Outcome         Outcome           `json:"outcome,omitempty"`
	SubmissionID    *uuid.UUID        `json:"submission_id,omitempty"`
	Score           *int              `json:"score,omitempty"`
	Grade           string            `json:"grade,omitempty"`
	At              time.Time         `json:"at"`
}
