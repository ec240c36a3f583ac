package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AnswerMap maps a question number to the selected 0-based option index.
// Keys are sparse until answered. On the wire keys are "q<number>".
type AnswerMap map[int]int

// AnswerKeyName returns the wire key for a question number.
func AnswerKeyName(number int) string {
	return "q" + strconv.Itoa(number)
}

// MarshalJSON encodes the map with "q<number>" keys.
func (m AnswerMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(m))
	for q, opt := range m {
		out[AnswerKeyName(q)] = opt
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both "q12" and "12" keys.
func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := make(AnswerMap, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(strings.TrimPrefix(k, "q"))
		if err != nil {
			return fmt.Errorf("invalid answer key %q", k)
		}
		parsed[n] = v
	}
	*m = parsed
	return nil
}

// Clone returns an independent copy.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Questions returns the answered question numbers in ascending order.
func (m AnswerMap) Questions() []int {
	qs := make([]int, 0, len(m))
	for q := range m {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}
