// Package registry implements the step registry (C2): a keyword-typed
// collection of (expression, handler, source-location) entries that finds
// the unique match for a step's text, or reports ambiguity, using the
// keyword-bucketed shape spec §4.2 requires and the expression package's
// compiled Cucumber Expressions.
package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/expression"
)

//go:generate mockgen -source=registry.go -destination=registry_mock.go -package=registry

// Keyword is a step's dispatch class, per spec §4.2.
type Keyword int

const (
	Given Keyword = iota
	When
	Then
)

func (k Keyword) String() string {
	switch k {
	case Given:
		return "Given"
	case When:
		return "When"
	case Then:
		return "Then"
	default:
		return "Unknown"
	}
}

// ParseKeyword maps a step's raw Gherkin keyword to its dispatch class.
// "And"/"But" (and the "*" bullet form) inherit the previous step's
// keyword, per spec §4.2.
func ParseKeyword(raw string, previous Keyword) Keyword {
	switch trimKeyword(raw) {
	case "Given":
		return Given
	case "When":
		return When
	case "Then":
		return Then
	default:
		return previous
	}
}

func trimKeyword(raw string) string {
	for len(raw) > 0 && (raw[len(raw)-1] == ' ' || raw[len(raw)-1] == '\t') {
		raw = raw[:len(raw)-1]
	}
	return raw
}

// Match is the successful outcome of Find: the matched handler, its
// resolved captures in source order, and the handler's registration site.
type Match struct {
	Handler  any
	Captures []expression.CapturedValue
	Location event.Location
}

// AmbiguousError is returned by Find when a step's text matches more than
// one registered handler under the same keyword (spec §4.2).
type AmbiguousError struct {
	StepText string
	Matches  []event.AmbiguousMatch
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("step %q matches %d registered step definitions", e.StepText, len(e.Matches))
}

type entry struct {
	expr     *expression.Expression
	handler  any
	location event.Location
}

// Finder is the seam the executor depends on, allowing tests to substitute
// a mock (see registry_mock.go).
type Finder interface {
	Find(kw Keyword, text string) (*Match, error)
}

// Registry holds the registered step definitions, bucketed by Keyword.
type Registry struct {
	mu        sync.RWMutex
	byKeyword map[Keyword][]entry
	patterns  map[string]bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byKeyword: make(map[Keyword][]entry),
		patterns:  make(map[string]bool),
	}
}

// Register compiles pattern as a Cucumber Expression (using provider, or
// the default parameter types if nil) and adds it to kw's bucket. handler
// must be a function; duplicate (keyword, pattern) registrations are
// rejected.
func (r *Registry) Register(kw Keyword, pattern string, handler any, loc event.Location, provider expression.ParameterProvider) error {
	if reflect.ValueOf(handler).Kind() != reflect.Func {
		return fmt.Errorf("step handler for %q must be a function, got %T", pattern, handler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s", kw, pattern)
	if r.patterns[key] {
		return fmt.Errorf("duplicate step pattern %q for %s", pattern, kw)
	}

	expr, err := expression.Compile(pattern, provider)
	if err != nil {
		return fmt.Errorf("register step %q: %w", pattern, err)
	}

	r.byKeyword[kw] = append(r.byKeyword[kw], entry{expr: expr, handler: handler, location: loc})
	r.patterns[key] = true
	return nil
}

// Find implements the §4.2 contract: a nil Match and nil error means no
// handler matched; a non-nil *AmbiguousError means more than one did.
func (r *Registry) Find(kw Keyword, text string) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Match
	var ambiguous []event.AmbiguousMatch
	for _, e := range r.byKeyword[kw] {
		captures, ok := e.expr.Match(text)
		if !ok {
			continue
		}
		matches = append(matches, Match{Handler: e.handler, Captures: captures, Location: e.location})
		ambiguous = append(ambiguous, event.AmbiguousMatch{Pattern: e.expr.Source, Location: e.location})
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, &AmbiguousError{StepText: text, Matches: ambiguous}
	}
}
