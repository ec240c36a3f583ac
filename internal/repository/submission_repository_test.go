package repository

import (
	"testing"

	"github.com/bipstech/exam-portal/internal/model"
)

func TestBuildSubmissionFilter(t *testing.T) {
	banned := true
	tests := []struct {
		name      string
		filter    model.SubmissionFilter
		wantWhere string
		wantArgs  int
	}{
		{"none", model.SubmissionFilter{}, "", 0},
		{"admission", model.SubmissionFilter{AdmissionNumber: "BTC/1"}, " WHERE admission_number = $1", 1},
		{"banned graded", model.SubmissionFilter{Banned: &banned, GradedOnly: true}, " WHERE banned_during_exam = $1 AND marked_score IS NOT NULL", 1},
		{"all", model.SubmissionFilter{AdmissionNumber: "X1", Banned: &banned}, " WHERE admission_number = $1 AND banned_during_exam = $2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildSubmissionFilter(tt.filter)
			if where != tt.wantWhere || len(args) != tt.wantArgs {
				t.Fatalf("got (%q, %d args), want (%q, %d)", where, len(args), tt.wantWhere, tt.wantArgs)
			}
		})
	}
}
