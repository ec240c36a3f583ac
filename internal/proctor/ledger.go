package proctor

import "github.com/bipstech/exam-portal/internal/model"

// Ledger is the append-only sequence of violations of one session.
// It is the only owner of the violation counters.
type Ledger struct {
	records []model.Violation
	counts  map[model.ViolationCategory]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[model.ViolationCategory]int)}
}

// Append records a violation in arrival order.
func (l *Ledger) Append(v model.Violation) {
	l.records = append(l.records, v)
	l.counts[v.Category]++
}

// Total returns the number of recorded violations.
func (l *Ledger) Total() int {
	return len(l.records)
}

// CountOf returns the occurrences of a category.
func (l *Ledger) CountOf(c model.ViolationCategory) int {
	return l.counts[c]
}

// Records returns a copy of the ledger.
func (l *Ledger) Records() []model.Violation {
	out := make([]model.Violation, len(l.records))
	copy(out, l.records)
	return out
}

// Summary returns the outward tally: tab switches, copies, pastes and the grand total.
func (l *Ledger) Summary() model.ViolationSummary {
	return model.ViolationSummary{
		TabSwitches:     l.CountOf(model.ViolationTabSwitch),
		CopyAttempts:    l.CountOf(model.ViolationCopy),
		PasteAttempts:   l.CountOf(model.ViolationPaste),
		TotalViolations: l.Total(),
	}
}
