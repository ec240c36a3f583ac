package proctor

import (
	"strings"
	"time"

	"github.com/bipstech/exam-portal/internal/model"
)

// DefaultWarningTTL is how long a warning stays on screen.
const DefaultWarningTTL = 5 * time.Second

// Warning is an ephemeral notice shown to the candidate after a violation.
type Warning struct {
	Message    string                  `json:"message"`
	Category   model.ViolationCategory `json:"category"`
	Count      int                     `json:"count"`
	Threshold  int                     `json:"threshold"`
	Remaining  int                     `json:"remaining"`
	ClearAfter time.Duration           `json:"-"`
	ExpiresAt  time.Time               `json:"expires_at"`
}

// Verdict tells the page how to treat a signal that produced a violation.
type Verdict struct {
	PreventDefault bool
	Message        string
}

type rule struct {
	category       model.ViolationCategory
	description    string
	message        string
	preventDefault bool
}

var rules = map[SignalKind]rule{
	SignalVisibilityChange: {model.ViolationTabSwitch, "Tab switched or window minimized", "WARNING: Tab switching detected!", false},
	SignalBlur:             {model.ViolationFocusLoss, "Window lost focus", "WARNING: Stay on this page!", false},
	SignalContextMenu:      {model.ViolationContextMenu, "Right-click attempted", "Right-clicking is disabled!", true},
	SignalCopy:             {model.ViolationCopy, "Copy attempt detected", "Copying is not allowed!", true},
	SignalPaste:            {model.ViolationPaste, "Paste attempt detected", "Pasting is not allowed!", true},
	SignalKeyDown:          {model.ViolationKeyboardShortcut, "Keyboard shortcut: ", "Shortcuts disabled!", true},
	SignalBeforeUnload:     {model.ViolationUnloadAttempt, "Attempted to leave exam page", "Leaving the exam page is not allowed!", true},
}

// Detector converts raw signals into violation records.
type Detector struct {
	now func() time.Time
}

// NewDetector creates a Detector stamping records with now.
func NewDetector(now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{now: now}
}

// Inspect classifies a signal. ok is false for signals that are not violations:
// a visibility change back to visible, an unblocked key, or an unknown kind.
// Each violating signal yields exactly one record.
func (d *Detector) Inspect(sig Signal) (model.Violation, Verdict, bool) {
	r, known := rules[sig.Kind]
	if !known {
		return model.Violation{}, Verdict{}, false
	}

	description := r.description
	switch sig.Kind {
	case SignalVisibilityChange:
		if !sig.Hidden {
			return model.Violation{}, Verdict{}, false
		}
	case SignalKeyDown:
		if !BlockedShortcut(sig) {
			return model.Violation{}, Verdict{}, false
		}
		description += sig.Key
	}

	at := sig.At
	if at.IsZero() {
		at = d.now()
	}

	return model.Violation{
			Timestamp:   at,
			Category:    r.category,
			Description: description,
		}, Verdict{
			PreventDefault: r.preventDefault,
			Message:        r.message,
		}, true
}

// BlockedShortcut reports whether a keydown is one of the disallowed shortcuts:
// Ctrl+C/V/X/A/P, F12, Ctrl+Shift+I.
func BlockedShortcut(sig Signal) bool {
	if sig.Key == "F12" {
		return true
	}
	if !sig.Ctrl {
		return false
	}
	if sig.Shift && sig.Key == "I" {
		return true
	}
	switch strings.ToLower(sig.Key) {
	case "c", "v", "x", "a", "p":
		return true
	}
	return false
}
