// Package store implements the feature store (C3): parsed scenarios
// bucketed by ScenarioType with per-scenario retry deadlines, handing out
// the next runnable batch under a concurrency budget, per spec §4.3.
// ScenarioID uses google/uuid.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bddrunner/cucumber/gherkin"
)

// ScenarioID is an opaque, process-unique identifier minted when a
// scenario first enters the store; retries of the same scenario keep the
// same ID so attempts can be correlated (spec §3).
type ScenarioID string

// NewScenarioID mints a fresh ScenarioID.
func NewScenarioID() ScenarioID {
	return ScenarioID(uuid.NewString())
}

// ScenarioType classifies how a scenario is scheduled, fixed for all of a
// scenario's retry attempts (spec §3).
type ScenarioType int

const (
	Concurrent ScenarioType = iota
	Serial
)

func (t ScenarioType) String() string {
	if t == Serial {
		return "serial"
	}
	return "concurrent"
}

// Retries tracks a scenario's retry budget (spec §3): NextTry decrements
// Left and increments Current, returning ok=false once Left reaches 0.
type Retries struct {
	Current uint
	Left    uint
}

// NewRetries returns the initial retry state for a scenario configured
// with k total retries.
func NewRetries(k uint) Retries {
	return Retries{Current: 0, Left: k}
}

func (r Retries) NextTry() (Retries, bool) {
	if r.Left == 0 {
		return r, false
	}
	return Retries{Current: r.Current + 1, Left: r.Left - 1}, true
}

// Entry is one scheduled scenario attempt (spec §4.3).
type Entry struct {
	ID       ScenarioID
	Feature  gherkin.Feature
	Rule     *gherkin.Rule
	Scenario gherkin.Scenario
	Type     ScenarioType
	Retries  Retries

	// RetryAfter/StampedAt together form the deadline-bearing variant of
	// RetryOptions (spec §3): StampedAt zero means "without deadline" (an
	// initial attempt, runnable immediately); otherwise runnable once
	// now >= StampedAt.Add(RetryAfter).
	RetryAfter time.Duration
	StampedAt  time.Time
}

// Runnable reports whether e's retry deadline, if any, has elapsed as of
// now.
func (e Entry) Runnable(now time.Time) bool {
	if e.StampedAt.IsZero() {
		return true
	}
	return !now.Before(e.StampedAt.Add(e.RetryAfter))
}

// RemainingDelay reports how much longer until e becomes runnable, or 0 if
// it already is.
func (e Entry) RemainingDelay(now time.Time) time.Duration {
	if e.StampedAt.IsZero() {
		return 0
	}
	d := e.StampedAt.Add(e.RetryAfter).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Store is the guarded, bucketed scenario queue described in spec §4.3.
type Store struct {
	mu       sync.Mutex
	buckets  map[ScenarioType][]Entry
	finished bool
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		buckets: map[ScenarioType][]Entry{Serial: nil, Concurrent: nil},
		now:     time.Now,
	}
}

// NewWithClock is exposed for tests that need deterministic retry-delay
// behavior.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

// MarkParsingFinished records that the upstream feature stream is
// exhausted; IsFinished uses this together with the bucket state.
func (s *Store) MarkParsingFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

// Insert adds entries from a single ingestion event (one parsed feature's
// worth of scenarios, or a single retry re-enqueue), applying the §4.3
// ordering rules:
//
//   - entries without a deadline (initial attempts) are appended in
//     arrival order to their bucket;
//   - entries with a deadline (retries) are stamped with now (if not
//     already) and inserted at the front of their bucket so due retries
//     are polled first;
//   - if this call's without-deadline entries include any Serial entries,
//     this call's new Concurrent entries are placed ahead of whatever
//     Concurrent entries were already pending.
func (s *Store) Insert(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var withoutDeadline, withDeadline []Entry
	for _, e := range entries {
		if e.StampedAt.IsZero() && e.Retries.Current == 0 {
			withoutDeadline = append(withoutDeadline, e)
			continue
		}
		if e.StampedAt.IsZero() {
			e.StampedAt = now
		}
		withDeadline = append(withDeadline, e)
	}

	for _, e := range withDeadline {
		s.buckets[e.Type] = append([]Entry{e}, s.buckets[e.Type]...)
	}

	if len(withoutDeadline) == 0 {
		return
	}

	hasNewSerial := false
	var newSerial, newConcurrent []Entry
	for _, e := range withoutDeadline {
		if e.Type == Serial {
			hasNewSerial = true
			newSerial = append(newSerial, e)
		} else {
			newConcurrent = append(newConcurrent, e)
		}
	}

	s.buckets[Serial] = append(s.buckets[Serial], newSerial...)
	if hasNewSerial {
		s.buckets[Concurrent] = append(newConcurrent, s.buckets[Concurrent]...)
	} else {
		s.buckets[Concurrent] = append(s.buckets[Concurrent], newConcurrent...)
	}
}

// Get returns the next runnable batch, per spec §4.3: a single Serial
// entry if one is runnable, else up to maxConcurrent runnable Concurrent
// entries. hint is the minimum remaining delay of any not-yet-runnable
// Concurrent entry seen while draining, valid only when hintOK is true.
func (s *Store) Get(maxConcurrent int) (batch []Entry, hint time.Duration, hintOK bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxConcurrent <= 0 {
		return nil, 0, false
	}

	now := s.now()
	for i, e := range s.buckets[Serial] {
		if e.Runnable(now) {
			s.buckets[Serial] = append(append([]Entry{}, s.buckets[Serial][:i]...), s.buckets[Serial][i+1:]...)
			return []Entry{e}, 0, false
		}
	}

	kept := make([]Entry, 0, len(s.buckets[Concurrent]))
	for _, e := range s.buckets[Concurrent] {
		if len(batch) >= maxConcurrent {
			kept = append(kept, e)
			continue
		}
		if e.Runnable(now) {
			batch = append(batch, e)
			continue
		}
		d := e.RemainingDelay(now)
		if !hintOK || d < hint {
			hint, hintOK = d, true
		}
		kept = append(kept, e)
	}
	s.buckets[Concurrent] = kept
	return batch, hint, hintOK
}

// IsFinished implements spec §4.3's is_finished(fail_fast).
func (s *Store) IsFinished(failFast bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		return false
	}
	if failFast {
		return true
	}
	return len(s.buckets[Serial]) == 0 && len(s.buckets[Concurrent]) == 0
}
