package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/spf13/cobra"
)

func TestCommandTree(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"migrate", "force"},
		{"create-admin"},
		{"seed-questions"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not registered", path)
		}
	}
	if f := mustFind(t, root, "create-admin").Flags().Lookup("reset"); f == nil {
		t.Errorf("create-admin has no --reset flag")
	}
}

func TestLoadQuestionFile(t *testing.T) {
	reqs, err := loadQuestionFile(filepath.Join("testdata", "questions.json"))
	if err != nil {
		t.Fatalf("loadQuestionFile: %v", err)
	}
	if len(reqs) == 0 {
		t.Fatalf("no questions loaded")
	}

	questions := make([]model.Question, 0, len(reqs))
	for _, r := range reqs {
		questions = append(questions, r.ToQuestion())
	}
	if err := service.ValidateQuestions(questions); err != nil {
		t.Fatalf("sample bank is invalid: %v", err)
	}
}

func TestLoadQuestionFileRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"missing answer": `[{"question_number":1,"question_text":"Q","options":["a","b"]}]`,
		"unknown field":  `[{"question_number":1,"question_text":"Q","options":["a","b"],"correct_answer":0,"answer":1}]`,
		"not an array":   `{"question_number":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bank.json")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := loadQuestionFile(path); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
	if _, err := loadQuestionFile(filepath.Join(t.TempDir(), "missing.json")); err == nil || !strings.Contains(err.Error(), "missing.json") {
		t.Fatalf("missing file error = %v", err)
	}
}

func mustFind(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	cmd, _, err := root.Find([]string{name})
	if err != nil {
		t.Fatalf("find %s: %v", name, err)
	}
	return cmd
}
