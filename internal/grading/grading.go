// Package grading scores single-answer multiple choice papers.
package grading

import (
	"math"

	"github.com/bipstech/exam-portal/internal/model"
)

// DefaultTotalMarks is the denominator used when no total is configured.
const DefaultTotalMarks = 100

// Result is the outcome of grading one submission.
type Result struct {
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
	Correct    int     `json:"correct"`
	Answered   int     `json:"answered"`
}

// Score sums the marks of every question answered with its key's correct option.
// Answers to questions missing from the key earn nothing.
func Score(answers model.AnswerMap, key model.AnswerKey) (score, correct int) {
	for q, opt := range answers {
		entry, ok := key[q]
		if !ok || entry.Correct != opt {
			continue
		}
		correct++
		score += entry.Marks
	}
	return score, correct
}

// LetterGrade maps a percentage to A/B/C/D/F with lower bounds 70/60/50/40.
func LetterGrade(percent float64) string {
	switch {
	case percent >= 70:
		return "A"
	case percent >= 60:
		return "B"
	case percent >= 50:
		return "C"
	case percent >= 40:
		return "D"
	default:
		return "F"
	}
}

// Grade scores answers and converts the score to a percentage of totalMarks.
// A non-positive totalMarks falls back to DefaultTotalMarks.
func Grade(answers model.AnswerMap, key model.AnswerKey, totalMarks int) Result {
	if totalMarks <= 0 {
		totalMarks = DefaultTotalMarks
	}
	score, correct := Score(answers, key)
	percent := math.Round(float64(score)/float64(totalMarks)*10000) / 100
	return Result{
		Score:      score,
		Percentage: percent,
		Grade:      LetterGrade(percent),
		Correct:    correct,
		Answered:   len(answers),
	}
}

// TotalMarks sums the marks of an answer key.
func TotalMarks(key model.AnswerKey) int {
	total := 0
	for _, e := range key {
		total += e.Marks
	}
	return total
}
