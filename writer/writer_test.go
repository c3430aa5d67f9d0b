package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bddrunner/cucumber/event"
)

func TestTee_FansOutInOrder(t *testing.T) {
	var calls []string
	a := WriterFunc(func(event.Cucumber) { calls = append(calls, "a") })
	b := WriterFunc(func(event.Cucumber) { calls = append(calls, "b") })

	tee := NewTee(a, b)
	tee.HandleEvent(event.Cucumber{Kind: event.CucumberStarted})

	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestAssertNormalized_PassesThroughUnchanged(t *testing.T) {
	var got event.Cucumber
	inner := WriterFunc(func(ev event.Cucumber) { got = ev })

	w := AssertNormalized(inner)
	in := event.Cucumber{Kind: event.CucumberFeature}
	w.HandleEvent(in)

	assert.Equal(t, in, got)
}

func TestFailOnSkipped_RewritesFeatureScenarioStep(t *testing.T) {
	var got event.Cucumber
	inner := WriterFunc(func(ev event.Cucumber) { got = ev })

	w := FailOnSkipped(inner)
	w.HandleEvent(event.Cucumber{
		Kind: event.CucumberFeature,
		FeatureEv: event.FeatureEvent{
			Kind: event.FeatureScenario,
			Inner: event.RetryableScenario{Inner: event.ScenarioEvent{
				Kind:      event.ScenarioStep,
				StepEvent: event.StepEvent{Kind: event.StepSkipped},
			}},
		},
	})

	se := got.FeatureEv.Inner.Inner
	assert.Equal(t, event.StepFailed, se.StepEvent.Kind)
	assert.Equal(t, event.StepErrorNotFound, se.StepEvent.Err.Kind)
}

func TestFailOnSkipped_RewritesRuleScopedStep(t *testing.T) {
	var got event.Cucumber
	inner := WriterFunc(func(ev event.Cucumber) { got = ev })

	w := FailOnSkipped(inner)
	w.HandleEvent(event.Cucumber{
		Kind: event.CucumberFeature,
		FeatureEv: event.FeatureEvent{
			Kind: event.FeatureRule,
			RuleEv: event.RuleEvent{
				Kind: event.RuleScenario,
				Inner: event.RetryableScenario{Inner: event.ScenarioEvent{
					Kind:      event.ScenarioBackground,
					StepEvent: event.StepEvent{Kind: event.StepSkipped},
				}},
			},
		},
	})

	se := got.FeatureEv.RuleEv.Inner.Inner
	assert.Equal(t, event.StepFailed, se.StepEvent.Kind)
	assert.Equal(t, event.StepErrorNotFound, se.StepEvent.Err.Kind)
}

func TestFailOnSkipped_LeavesPassedStepsAlone(t *testing.T) {
	var got event.Cucumber
	inner := WriterFunc(func(ev event.Cucumber) { got = ev })

	w := FailOnSkipped(inner)
	w.HandleEvent(event.Cucumber{
		Kind: event.CucumberFeature,
		FeatureEv: event.FeatureEvent{
			Kind: event.FeatureScenario,
			Inner: event.RetryableScenario{Inner: event.ScenarioEvent{
				Kind:      event.ScenarioStep,
				StepEvent: event.StepEvent{Kind: event.StepPassed},
			}},
		},
	})

	se := got.FeatureEv.Inner.Inner
	assert.Equal(t, event.StepPassed, se.StepEvent.Kind)
}

func TestFailOnSkipped_IgnoresNonFeatureEvents(t *testing.T) {
	var got event.Cucumber
	inner := WriterFunc(func(ev event.Cucumber) { got = ev })

	w := FailOnSkipped(inner)
	in := event.Cucumber{Kind: event.CucumberStarted}
	w.HandleEvent(in)

	assert.Equal(t, in, got)
}
