package model

import "time"

// Candidate is the identity entered on the exam entry form.
type Candidate struct {
	FullName        string `json:"full_name"`
	AdmissionNumber string `json:"admission_number"`
}

// Student is the durable record of a candidate, upserted on submission.
type Student struct {
	AdmissionNumber string    `json:"admission_number"`
	FullName        string    `json:"full_name"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// EnterExamRequest is the entry form payload.
type EnterExamRequest struct {
	FullName        string `json:"full_name" binding:"required,min=2,max=255"`
	AdmissionNumber string `json:"admission_number" binding:"required,admission"`
	AgreeTerms      bool   `json:"agree_terms" binding:"required"`
}

// ExamPolicy describes the rules of the exam shown on the entry page.
type ExamPolicy struct {
	Title              string `json:"title"`
	DurationSeconds    int    `json:"duration_seconds"`
	QuestionCount      int    `json:"question_count"`
	TotalMarks         int    `json:"total_marks"`
	BanThreshold       int    `json:"ban_threshold"`
	WarningSeconds     int    `json:"warning_seconds"`
	RequireAllAnswered bool   `json:"require_all_answered"`
}
