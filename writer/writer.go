// Package writer implements the writer plumbing (C8), the event normalizer
// (C6), and the summary aggregator (C7): the consumer side of the Cucumber
// event stream the scheduler produces.
//
// A single HandleEvent(event.Cucumber) seam lets the same writer sit behind
// decorators (Normalize/Summarize/FailOnSkipped/Tee) without needing a
// bespoke method per event kind, per spec §4.8.
package writer

import "github.com/bddrunner/cucumber/event"

// Writer consumes the Cucumber event stream. Implementations must not
// retain event.Cucumber values beyond the call (gherkin handles are cheap
// to clone, but the event's nested slices are not guaranteed stable).
type Writer interface {
	HandleEvent(ev event.Cucumber)
}

// WriterFunc adapts a plain function to Writer.
type WriterFunc func(event.Cucumber)

func (f WriterFunc) HandleEvent(ev event.Cucumber) { f(ev) }

// Stats is the introspection surface spec §4.8 requires of writers that
// track outcome counters.
type Stats interface {
	PassedSteps() int
	SkippedSteps() int
	FailedSteps() int
	RetriedSteps() int
	ParsingErrors() int
	HookErrors() int
	ExecutionHasFailed() bool
}

// Tee fans one event stream out to multiple writers in argument order.
type Tee struct {
	Writers []Writer
}

func NewTee(writers ...Writer) *Tee { return &Tee{Writers: writers} }

func (t *Tee) HandleEvent(ev event.Cucumber) {
	for _, w := range t.Writers {
		w.HandleEvent(ev)
	}
}

// assertNormalized is a no-op marker asserting the caller guarantees
// in-order delivery (e.g. max_concurrent == 1), letting a caller skip
// Normalize's bookkeeping cost when it is provably unnecessary (spec §4.8).
type assertNormalized struct {
	inner Writer
}

// AssertNormalized wraps inner with a marker that performs no reordering.
func AssertNormalized(inner Writer) Writer {
	return &assertNormalized{inner: inner}
}

func (a *assertNormalized) HandleEvent(ev event.Cucumber) { a.inner.HandleEvent(ev) }

// failOnSkipped rewrites every Step::Skipped into Step::Failed(NotFound)
// before forwarding, per spec §4.8. It is not composable inside Summarize:
// it must wrap Summarize (sit in front of it in the chain) so the summary
// counts reflect the rewritten classification.
type failOnSkipped struct {
	inner Writer
}

// FailOnSkipped wraps inner, turning every Skipped step into a NotFound
// failure.
func FailOnSkipped(inner Writer) Writer {
	return &failOnSkipped{inner: inner}
}

func (f *failOnSkipped) HandleEvent(ev event.Cucumber) {
	f.inner.HandleEvent(rewriteSkipped(ev))
}

func rewriteSkipped(ev event.Cucumber) event.Cucumber {
	if ev.Kind != event.CucumberFeature {
		return ev
	}
	ev.FeatureEv = rewriteFeatureEvent(ev.FeatureEv)
	return ev
}

func rewriteFeatureEvent(fe event.FeatureEvent) event.FeatureEvent {
	switch fe.Kind {
	case event.FeatureRule:
		fe.RuleEv = rewriteRuleEvent(fe.RuleEv)
	case event.FeatureScenario:
		fe.Inner = rewriteRetryableScenario(fe.Inner)
	}
	return fe
}

func rewriteRuleEvent(re event.RuleEvent) event.RuleEvent {
	if re.Kind == event.RuleScenario {
		re.Inner = rewriteRetryableScenario(re.Inner)
	}
	return re
}

func rewriteRetryableScenario(rs event.RetryableScenario) event.RetryableScenario {
	rs.Inner = rewriteScenarioEvent(rs.Inner)
	return rs
}

func rewriteScenarioEvent(se event.ScenarioEvent) event.ScenarioEvent {
	switch se.Kind {
	case event.ScenarioStep:
		if se.StepEvent.Kind == event.StepSkipped {
			se.StepEvent = event.StepEvent{Kind: event.StepFailed, Err: event.StepError{Kind: event.StepErrorNotFound}}
		}
	case event.ScenarioBackground:
		if se.StepEvent.Kind == event.StepSkipped {
			se.StepEvent = event.StepEvent{Kind: event.StepFailed, Err: event.StepError{Kind: event.StepErrorNotFound}}
		}
	}
	return se
}
