package writer

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/gherkin"
)

// scenarioIndicator is the current dedup mark for a scenario, per spec
// §4.7.
type scenarioIndicator int

const (
	indicatorSkipped scenarioIndicator = iota
	indicatorFailed
	indicatorRetried
)

type scenarioKey struct {
	feature  gherkin.ID
	rule     gherkin.ID // zero value for a rule-less scenario
	scenario gherkin.ID
}

// Counters holds the dedup-corrected pass/skip/fail/retry totals spec
// §4.7 defines.
type Counters struct {
	Features     int
	Rules        int
	ScenariosPassed, ScenariosSkipped, ScenariosFailed, ScenariosRetried int
	StepsPassed, StepsSkipped, StepsFailed, StepsRetried                int
	ParsingErrors int
	FailedHooks   int
}

// Summary consumes the normalized stream (it must sit behind Normalize;
// per-scenario event order matters for its dedup rules) and maintains
// Counters, per spec §4.7. Its marking state machine dedups a scenario's
// final Skipped/Failed/Retried classification across retried attempts,
// since a single-threaded pass-fail count with no retries to dedup
// wouldn't need one.
type Summary struct {
	inner Writer
	out   io.Writer

	mu     sync.Mutex
	marks  map[scenarioKey]scenarioIndicator
	counts Counters
}

// Summarize wraps inner, writing a textual summary to out after
// Cucumber::Finished.
func Summarize(inner Writer, out io.Writer) *Summary {
	return &Summary{inner: inner, out: out, marks: make(map[scenarioKey]scenarioIndicator)}
}

func (s *Summary) HandleEvent(ev event.Cucumber) {
	s.inner.HandleEvent(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case event.CucumberParsingFinished:
		s.counts.ParsingErrors += int(ev.Parsing.ParserErrors)
	case event.CucumberFinished:
		s.writeSummary()
	case event.CucumberFeature:
		s.handleFeature(ev)
	}
}

func (s *Summary) handleFeature(ev event.Cucumber) {
	switch ev.FeatureEv.Kind {
	case event.FeatureStarted:
		s.counts.Features++
	case event.FeatureRule:
		s.handleRule(ev)
	case event.FeatureScenario:
		key := scenarioKey{feature: ev.Feature.ID(), scenario: ev.FeatureEv.Scenario.ID()}
		s.handleScenarioEvent(key, ev.FeatureEv.Scenario, ev.FeatureEv.Inner)
	}
}

func (s *Summary) handleRule(ev event.Cucumber) {
	switch ev.FeatureEv.RuleEv.Kind {
	case event.RuleStarted:
		s.counts.Rules++
	case event.RuleScenario:
		key := scenarioKey{feature: ev.Feature.ID(), rule: ev.FeatureEv.Rule.ID(), scenario: ev.FeatureEv.RuleEv.Scenario.ID()}
		s.handleScenarioEvent(key, ev.FeatureEv.RuleEv.Scenario, ev.FeatureEv.RuleEv.Inner)
	}
}

func (s *Summary) handleScenarioEvent(key scenarioKey, scenario gherkin.Scenario, rs event.RetryableScenario) {
	se := rs.Inner
	switch se.Kind {
	case event.ScenarioStep, event.ScenarioBackground:
		isLast := se.Kind == event.ScenarioStep && isLastStep(scenario, se.Step)
		s.handleStep(key, se.StepEvent, rs.Retries, isLast)
	case event.ScenarioHook:
		if se.HookType == event.HookAfter && se.Hook.Kind == event.HookFailed {
			s.counts.FailedHooks++
			ind, marked := s.marks[key]
			switch {
			case marked && ind == indicatorSkipped:
				s.counts.ScenariosSkipped--
				s.counts.ScenariosFailed++
				s.mark(key, indicatorFailed)
			case !marked:
				s.counts.ScenariosFailed++
				s.mark(key, indicatorFailed)
			}
		}
	case event.ScenarioFinished:
		ind, marked := s.marks[key]
		if !marked {
			s.counts.ScenariosPassed++
			return
		}
		if ind != indicatorRetried {
			delete(s.marks, key)
		}
	}
}

func (s *Summary) handleStep(key scenarioKey, se event.StepEvent, retries *event.Retries, isLastStep bool) {
	switch se.Kind {
	case event.StepSkipped:
		s.counts.StepsSkipped++
		if _, marked := s.marks[key]; !marked {
			s.mark(key, indicatorSkipped)
			s.counts.ScenariosSkipped++
		}
	case event.StepFailed:
		hasRetriesLeft := retries != nil && retries.Left > 0
		if hasRetriesLeft && se.Err.Kind != event.StepErrorNotFound {
			s.counts.StepsRetried++
			if s.markOf(key) != indicatorRetried {
				s.counts.ScenariosRetried++
				s.mark(key, indicatorRetried)
			}
			return
		}
		s.counts.StepsFailed++
		s.counts.ScenariosFailed++
		s.mark(key, indicatorFailed)
	case event.StepPassed:
		s.counts.StepsPassed++
		if isLastStep {
			// A passing final step clears any mark left by an earlier,
			// retried attempt so Scenario::Finished counts this attempt
			// as passed (spec §4.7).
			delete(s.marks, key)
		}
	}
}

// isLastStep reports whether step is the final step of scenario's own step
// list (background steps never count: spec §4.7 means the scenario's last
// step, not the background's).
func isLastStep(scenario gherkin.Scenario, step gherkin.Step) bool {
	steps := scenario.Steps()
	if len(steps) == 0 {
		return false
	}
	return steps[len(steps)-1].ID() == step.ID()
}

func (s *Summary) markOf(key scenarioKey) (ind scenarioIndicator) {
	ind, _ = s.marks[key]
	return
}

func (s *Summary) mark(key scenarioKey, ind scenarioIndicator) {
	s.marks[key] = ind
}

// Snapshot returns a copy of the current counters.
func (s *Summary) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

func (s *Summary) PassedSteps() int   { return s.Snapshot().StepsPassed }
func (s *Summary) SkippedSteps() int  { return s.Snapshot().StepsSkipped }
func (s *Summary) FailedSteps() int   { return s.Snapshot().StepsFailed }
func (s *Summary) RetriedSteps() int  { return s.Snapshot().StepsRetried }
func (s *Summary) ParsingErrors() int { return s.Snapshot().ParsingErrors }
func (s *Summary) HookErrors() int    { return s.Snapshot().FailedHooks }

// ExecutionHasFailed implements spec §6.6's exit code policy: nonzero iff
// failed_steps + parsing_errors + failed_hooks > 0.
func (s *Summary) ExecutionHasFailed() bool {
	c := s.Snapshot()
	return c.StepsFailed+c.ParsingErrors+c.FailedHooks > 0
}

func (s *Summary) writeSummary() {
	if s.out == nil {
		return
	}
	c := s.counts
	var b strings.Builder
	fmt.Fprintf(&b, "\n%d feature(s), %d rule(s)\n", c.Features, c.Rules)
	fmt.Fprintf(&b, "%d scenario(s) (%d passed, %d failed, %d skipped, %d retried)\n",
		c.ScenariosPassed+c.ScenariosFailed+c.ScenariosSkipped, c.ScenariosPassed, c.ScenariosFailed, c.ScenariosSkipped, c.ScenariosRetried)
	fmt.Fprintf(&b, "%d step(s) (%d passed, %d failed, %d skipped, %d retried)\n",
		c.StepsPassed+c.StepsFailed+c.StepsSkipped, c.StepsPassed, c.StepsFailed, c.StepsSkipped, c.StepsRetried)
	if c.ParsingErrors > 0 {
		fmt.Fprintf(&b, "%d parsing error(s)\n", c.ParsingErrors)
	}
	if c.FailedHooks > 0 {
		fmt.Fprintf(&b, "%d failed hook(s)\n", c.FailedHooks)
	}
	io.WriteString(s.out, b.String())
}
