package model

import "time"

// ViolationCategory classifies a proctoring violation.
type ViolationCategory string

const (
	ViolationTabSwitch        ViolationCategory = "tab_switch"
	ViolationFocusLoss        ViolationCategory = "focus_loss"
	ViolationContextMenu      ViolationCategory = "context_menu"
	ViolationCopy             ViolationCategory = "copy"
	ViolationPaste            ViolationCategory = "paste"
	ViolationKeyboardShortcut ViolationCategory = "keyboard_shortcut"
	ViolationUnloadAttempt    ViolationCategory = "unload_attempt"
)

// Valid reports whether c is one of the known categories.
func (c ViolationCategory) Valid() bool {
	switch c {
	case ViolationTabSwitch, ViolationFocusLoss, ViolationContextMenu, ViolationCopy,
		ViolationPaste, ViolationKeyboardShortcut, ViolationUnloadAttempt:
		return true
	}
	return false
}

// Violation is one timestamped entry of a session's violation ledger.
// Immutable once created.
type Violation struct {
	Timestamp   time.Time         `json:"timestamp"`
	Category    ViolationCategory `json:"category"`
	Description string            `json:"violation"`
}

// ViolationSummary is the per-category tally reported with a submission.
// Only tab switches, copies and pastes are tallied; TotalViolations counts every category.
type ViolationSummary struct {
	TabSwitches     int `json:"tab_switches"`
	CopyAttempts    int `json:"copy_attempts"`
	PasteAttempts   int `json:"paste_attempts"`
	TotalViolations int `json:"total_violations"`
}

// ViolationEvent is a live audit row persisted by the violation worker
// while a session is still running.
type ViolationEvent struct {
	SessionID       string            `json:"session_id"`
	AdmissionNumber string            `json:"admission_number"`
	Category        ViolationCategory `json:"category"`
	Description     string            `json:"violation"`
	OccurredAt      time.Time         `json:"occurred_at"`
}
