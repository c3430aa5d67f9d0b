// Package event defines the Cucumber event taxonomy emitted by the
// scheduler and executor (spec §3) and consumed by writers (§4.8).
//
// Rust's cucumber-rs models this tree as nested enums; Go has no sum types,
// so each level is a struct tagged by a Kind constant with the inactive
// variant fields left zero.
package event

import (
	"time"

	"github.com/bddrunner/cucumber/gherkin"
)

// HookType distinguishes a before- from an after-hook.
type HookType int

const (
	HookBefore HookType = iota
	HookAfter
)

func (h HookType) String() string {
	if h == HookBefore {
		return "before"
	}
	return "after"
}

// Info carries a panic payload recovered from user code, extractable as a
// human-readable message. This is the Go analogue of cucumber-rs's
// `Info` (a boxed `dyn Any` downcast to String/&str).
type Info struct {
	Message string
	Value   any
}

func NewInfo(recovered any) Info {
	if s, ok := recovered.(string); ok {
		return Info{Message: s, Value: recovered}
	}
	if err, ok := recovered.(error); ok {
		return Info{Message: err.Error(), Value: recovered}
	}
	return Info{Message: formatRecovered(recovered), Value: recovered}
}

// Location is a source position, used both for step-definition locations
// (registry matches) and Gherkin source locations. It is defined in the
// gherkin package (its natural owner) and aliased here, so event.Location
// and gherkin.Location are the same type.
type Location = gherkin.Location

// Match is a single named/positional capture extracted by the expression
// compiler and handed to a step handler (spec §6.2).
type Match struct {
	Name string
	Text string
}

// StepErrorKind classifies why a step did not pass (spec §3, §7).
type StepErrorKind int

const (
	// StepErrorNone means the step is not in a Failed state.
	StepErrorNone StepErrorKind = iota
	StepErrorNotFound
	StepErrorAmbiguous
	StepErrorPanic
)

// StepError carries the classified failure reason for a Step/Background
// event. Only one of AmbiguousMatches/Panic is populated, depending on Kind.
type StepError struct {
	Kind             StepErrorKind
	AmbiguousMatches []AmbiguousMatch // populated when Kind == StepErrorAmbiguous
	Panic            Info             // populated when Kind == StepErrorPanic
}

// AmbiguousMatch describes one of the multiple registered steps that matched
// the same step text (spec §4.2).
type AmbiguousMatch struct {
	Pattern  string
	Location Location
}

func (e StepError) Error() string {
	switch e.Kind {
	case StepErrorNotFound:
		return "step does not match any registered step definition"
	case StepErrorAmbiguous:
		return "step text matches more than one registered step definition"
	case StepErrorPanic:
		return "step panicked: " + e.Panic.Message
	default:
		return "no error"
	}
}

// StepEventKind is the variant tag of a StepEvent.
type StepEventKind int

const (
	StepStarted StepEventKind = iota
	StepPassed
	StepSkipped
	StepFailed
)

// StepEvent is one of {Started, Passed(captures, loc), Skipped,
// Failed(captures?, loc?, world?, err)} per spec §3.
type StepEvent struct {
	Kind     StepEventKind
	Captures []Match
	Location *Location
	World    any // the scenario's World, present only on Failed when available
	Err      StepError
}

// HookEventKind is the variant tag of a HookEvent.
type HookEventKind int

const (
	HookStarted HookEventKind = iota
	HookPassed
	HookFailed
)

// HookEvent is one of {Started, Passed, Failed(world?, info)} per spec §3.
type HookEvent struct {
	Kind  HookEventKind
	World any
	Panic Info
}

// ScenarioEventKind is the variant tag of a ScenarioEvent.
type ScenarioEventKind int

const (
	ScenarioStarted ScenarioEventKind = iota
	ScenarioHook
	ScenarioBackground
	ScenarioStep
	ScenarioLog
	ScenarioFinished
)

// ScenarioEvent is one of {Started, Hook(type, ev), Background(step, ev),
// Step(step, ev), Log(msg), Finished} per spec §3.
type ScenarioEvent struct {
	Kind      ScenarioEventKind
	HookType  HookType
	Hook      HookEvent
	Step      gherkin.Step
	StepEvent StepEvent
	Log       string
}

// Retries mirrors store.Retries, duplicated here (no import cycle) so
// writers that only depend on event/ can read retry counters off
// RetryableScenario without pulling in the scheduler's store package.
type Retries struct {
	Current uint
	Left    uint
}

// RetryableScenario pairs a ScenarioEvent with the scenario's retry budget
// at the time the event was produced, per spec §3.
type RetryableScenario struct {
	Inner   ScenarioEvent
	Retries *Retries
}

// RuleEventKind is the variant tag of a RuleEvent.
type RuleEventKind int

const (
	RuleStarted RuleEventKind = iota
	RuleScenario
	RuleFinished
)

// RuleEvent is one of {Started, Scenario(s, ev), Finished} per spec §3.
type RuleEvent struct {
	Kind     RuleEventKind
	Scenario gherkin.Scenario
	Inner    RetryableScenario
}

// FeatureEventKind is the variant tag of a FeatureEvent.
type FeatureEventKind int

const (
	FeatureStarted FeatureEventKind = iota
	FeatureRule
	FeatureScenario
	FeatureFinished
)

// FeatureEvent is one of {Started, Rule(r, ev), Scenario(s, ev), Finished}
// per spec §3.
type FeatureEvent struct {
	Kind     FeatureEventKind
	Rule     gherkin.Rule
	RuleEv   RuleEvent
	Scenario gherkin.Scenario
	Inner    RetryableScenario
}

// CucumberEventKind is the variant tag of the top-level Cucumber event.
type CucumberEventKind int

const (
	CucumberStarted CucumberEventKind = iota
	CucumberParsingFinished
	CucumberFeature
	CucumberFinished
)

// ParsingStats is carried by the one-time ParsingFinished event.
type ParsingStats struct {
	Features     uint
	Rules        uint
	Scenarios    uint
	Steps        uint
	ParserErrors uint
}

// Cucumber is the root event type flowing out of the scheduler (spec §3):
//
//	Started · ParsingFinished{...} · Finished
//	Feature(F, FeatureEvent)
//
// Every Cucumber event carries a Timestamp (spec §3, "all carrying a
// timestamp metadata").
type Cucumber struct {
	Kind      CucumberEventKind
	Timestamp time.Time
	Parsing   ParsingStats
	Feature   gherkin.Feature
	FeatureEv FeatureEvent
}

func formatRecovered(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "panic: unrecognized payload"
}
