package proctor

import (
	"fmt"
	"time"

	"github.com/bipstech/exam-portal/internal/model"
)

// BuildSubmission assembles the outward payload from session state at the
// moment of termination.
func BuildSubmission(identity model.Candidate, start, end time.Time, answers model.AnswerMap, ledger *Ledger, outcome model.Outcome) *model.Submission {
	minutes := ElapsedMinutes(start, end)
	return &model.Submission{
		StudentName:      identity.FullName,
		AdmissionNumber:  identity.AdmissionNumber,
		StartTime:        start,
		EndTime:          end,
		TimeTaken:        fmt.Sprintf("%d minutes", minutes),
		Answers:          answers.Clone(),
		Violations:       ledger.Records(),
		BannedDuringExam: outcome == model.OutcomeBanned,
		Outcome:          outcome,
		ViolationSummary: ledger.Summary(),
	}
}

// ElapsedMinutes returns end-start rounded to whole minutes.
func ElapsedMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d.Round(time.Minute) / time.Minute)
}
