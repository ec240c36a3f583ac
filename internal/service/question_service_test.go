package service

import (
	"errors"
	"testing"

	"github.com/bipstech/exam-portal/internal/model"
)

func TestValidateQuestions(t *testing.T) {
	ok := model.Question{Number: 1, Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1, Marks: 1}

	tests := []struct {
		name string
		qs   []model.Question
		want error
	}{
		{"valid", []model.Question{ok}, nil},
		{"empty", nil, ErrNoQuestions},
		{"duplicate", []model.Question{ok, ok}, ErrInvalidQuestion},
		{"answer out of range", []model.Question{{Number: 2, Options: []string{"a", "b"}, CorrectAnswer: 2, Marks: 1}}, ErrInvalidQuestion},
		{"one option", []model.Question{{Number: 3, Options: []string{"a"}, Marks: 1}}, ErrInvalidQuestion},
		{"zero marks", []model.Question{{Number: 4, Options: []string{"a", "b"}}}, ErrInvalidQuestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestions(tt.qs)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnswerKeyCacheEncoding(t *testing.T) {
	key := model.AnswerKey{1: {Correct: 2, Marks: 1}, 14: {Correct: 0, Marks: 3}}

	raw := make(map[string]string)
	for k, v := range encodeAnswerKey(key) {
		raw[k] = v.(string)
	}
	got, err := decodeAnswerKey(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[14] != key[14] || got[1] != key[1] {
		t.Fatalf("decoded %v, want %v", got, key)
	}

	if _, err := decodeAnswerKey(map[string]string{"q1": "1:1"}); err == nil {
		t.Fatalf("bad field accepted")
	}
}

func TestPaperWithholdsAnswers(t *testing.T) {
	paper := toPaper([]model.Question{{Number: 1, Text: "x", Options: []string{"a", "b"}, CorrectAnswer: 1, Marks: 2, Section: "A"}})
	if paper[0].Number != 1 || paper[0].Marks != 2 || paper[0].Section != "A" {
		t.Fatalf("paper = %+v", paper[0])
	}
}
