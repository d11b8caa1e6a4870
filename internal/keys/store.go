// Package keys stages edits to the proxy's Gemini API key list locally and
// runs liveness checks over it. Nothing reaches the backend until Save.
package keys

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

var (
	ErrEmptyKey       = errors.New("key must not be empty")
	ErrDuplicateKey   = errors.New("key already exists")
	ErrKeyNotFound    = errors.New("key not found")
	ErrCancelled      = errors.New("operation cancelled")
	ErrNothingInvalid = errors.New("no invalid keys from the last check")
	ErrNotModified    = errors.New("no unsaved key changes")
	ErrBusy           = errors.New("a key check is already running")
)

// Status is the outcome of the latest liveness check of one key.
type Status int

const (
	StatusUnchecked Status = iota
	StatusChecking
	StatusValid
	StatusInvalid
	// StatusFailed means the check itself failed (network or HTTP error).
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusFailed:
		return "failed"
	}
	return "unchecked"
}

// CheckState is the displayed status of one key.
type CheckState struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Snapshot is a copy of the three key lists and the settled check states.
type Snapshot struct {
	Current  []string
	Original []string
	Invalid  []string
	States   map[string]CheckState
}

// Store holds the working list, the last persisted list and the keys that
// failed the latest check. Every mutation re-derives the modified flag and
// drops invalid entries that are no longer in the working list.
type Store struct {
	mu       sync.RWMutex
	current  []string
	original []string
	invalid  []string
	states   map[string]CheckState
	modified bool
}

func NewStore() *Store {
	return &Store{states: map[string]CheckState{}}
}

// ParseList splits the comma-joined persistence form.
func ParseList(value string) []string {
	var out []string
	for _, k := range strings.Split(value, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Load replaces both lists with keys, as after a fetch from the backend.
func (s *Store) Load(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = slices.Clone(keys)
	s.original = slices.Clone(keys)
	s.invalid = nil
	s.states = map[string]CheckState{}
	s.refresh()
}

// Restore reinstates a previously taken snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = slices.Clone(snap.Current)
	s.original = slices.Clone(snap.Original)
	s.invalid = slices.Clone(snap.Invalid)
	s.states = make(map[string]CheckState, len(snap.States))
	for k, st := range snap.States {
		if st.Status != StatusChecking {
			s.states[k] = st
		}
	}
	// Drafts written before states were kept only list the invalid keys.
	for _, k := range s.invalid {
		if _, ok := s.states[k]; !ok {
			s.states[k] = CheckState{Status: StatusInvalid}
		}
	}
	s.refresh()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]CheckState, len(s.states))
	for k, st := range s.states {
		if st.Status != StatusUnchecked && st.Status != StatusChecking {
			states[k] = st
		}
	}
	return Snapshot{
		Current:  slices.Clone(s.current),
		Original: slices.Clone(s.original),
		Invalid:  slices.Clone(s.invalid),
		States:   states,
	}
}

func (s *Store) Current() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.current)
}

func (s *Store) Original() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.original)
}

func (s *Store) Invalid() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.invalid)
}

// Modified reports whether the working list differs from the last saved one,
// ignoring order.
func (s *Store) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

func (s *Store) State(key string) CheckState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[key]
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current)
}

// Joined returns the comma-joined persistence form of the working list.
func (s *Store) Joined() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.Join(s.current, ",")
}

func (s *Store) Add(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.current, key) {
		return ErrDuplicateKey
	}
	s.current = append(s.current, key)
	s.refresh()
	return nil
}

// Edit renames oldKey in place. Renaming to the same value is a no-op.
func (s *Store) Edit(oldKey, newKey string) error {
	newKey = strings.TrimSpace(newKey)
	if newKey == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.current, oldKey)
	if i < 0 {
		return ErrKeyNotFound
	}
	if newKey == oldKey {
		return nil
	}
	if slices.Contains(s.current, newKey) {
		return ErrDuplicateKey
	}
	s.current[i] = newKey
	s.refresh()
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.current, key)
	if i < 0 {
		return ErrKeyNotFound
	}
	s.current = slices.Delete(s.current, i, i+1)
	s.refresh()
	return nil
}

// BulkPlan is the parsed form of a bulk add before it is applied.
type BulkPlan struct {
	Add        []string
	Duplicates []string
}

// PlanBulkAdd parses newline-separated text. A line is a duplicate when it
// is already in the working list or repeats an earlier line.
func (s *Store) PlanBulkAdd(text string) BulkPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var plan BulkPlan
	seen := make(map[string]bool, len(s.current))
	for _, k := range s.current {
		seen[k] = true
	}
	for _, k := range splitLines(text) {
		if seen[k] {
			plan.Duplicates = append(plan.Duplicates, k)
			continue
		}
		seen[k] = true
		plan.Add = append(plan.Add, k)
	}
	return plan
}

// BulkAdd appends every non-duplicate line and reports how many were added
// and skipped.
func (s *Store) BulkAdd(text string) (added, skipped int) {
	plan := s.PlanBulkAdd(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range plan.Add {
		// Re-checked under the write lock.
		if slices.Contains(s.current, k) {
			skipped++
			continue
		}
		s.current = append(s.current, k)
		added++
	}
	s.refresh()
	return added, skipped + len(plan.Duplicates)
}

// BulkDelete removes every listed key and reports removed and unknown counts.
func (s *Store) BulkDelete(text string) (removed, notFound int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range splitLines(text) {
		i := slices.Index(s.current, k)
		if i < 0 {
			notFound++
			continue
		}
		s.current = slices.Delete(s.current, i, i+1)
		removed++
	}
	s.refresh()
	return removed, notFound
}

// MarkSaved records the working list as persisted.
func (s *Store) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original = slices.Clone(s.current)
	s.refresh()
}

// resetChecks clears the invalid list ahead of a bulk check.
func (s *Store) resetChecks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = nil
	s.states = map[string]CheckState{}
}

func (s *Store) setState(key string, st CheckState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.current, key) {
		// Deleted while the check was in flight.
		return
	}
	s.states[key] = st
	if st.Status == StatusInvalid || st.Status == StatusFailed {
		if !slices.Contains(s.invalid, key) {
			s.invalid = append(s.invalid, key)
		}
	} else {
		s.invalid = slices.DeleteFunc(s.invalid, func(k string) bool { return k == key })
	}
}

// refresh re-derives modified and prunes invalid and states; callers hold mu.
func (s *Store) refresh() {
	s.modified = !sameMultiset(s.current, s.original)
	present := make(map[string]bool, len(s.current))
	for _, k := range s.current {
		present[k] = true
	}
	s.invalid = slices.DeleteFunc(s.invalid, func(k string) bool { return !present[k] })
	for k := range s.states {
		if !present[k] {
			delete(s.states, k)
		}
	}
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, k := range a {
		counts[k]++
	}
	for _, k := range b {
		counts[k]--
		if counts[k] < 0 {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
