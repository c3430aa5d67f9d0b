package writer

import (
	"testing"
	"time"

	messages "github.com/cucumber/messages/go/v21"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/gherkin"
)

type recordingWriter struct {
	events []event.Cucumber
}

func (r *recordingWriter) HandleEvent(ev event.Cucumber) { r.events = append(r.events, ev) }

func namedScenario(name string) gherkin.Scenario {
	return gherkin.WrapScenario("f.feature", &messages.Scenario{Name: name})
}

func scenarioStartedEv(f gherkin.Feature, s gherkin.Scenario, ts time.Time) event.Cucumber {
	return event.Cucumber{
		Kind: event.CucumberFeature, Feature: f, Timestamp: ts,
		FeatureEv: event.FeatureEvent{Kind: event.FeatureScenario, Scenario: s, Inner: event.RetryableScenario{Inner: event.ScenarioEvent{Kind: event.ScenarioStarted}}},
	}
}

func scenarioFinishedEv(f gherkin.Feature, s gherkin.Scenario, ts time.Time) event.Cucumber {
	return event.Cucumber{
		Kind: event.CucumberFeature, Feature: f, Timestamp: ts,
		FeatureEv: event.FeatureEvent{Kind: event.FeatureScenario, Scenario: s, Inner: event.RetryableScenario{Inner: event.ScenarioEvent{Kind: event.ScenarioFinished}}},
	}
}

func TestNormalizer_SingleScenario_PassesThroughInOrder(t *testing.T) {
	s := namedScenario("s1")
	f := wrapFeature("f1", s)
	rec := &recordingWriter{}
	n := Normalize(rec)

	n.HandleEvent(event.Cucumber{Kind: event.CucumberStarted})
	n.HandleEvent(scenarioStartedEv(f, s, time.Time{}))
	n.HandleEvent(scenarioFinishedEv(f, s, time.Time{}))
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: f, FeatureEv: event.FeatureEvent{Kind: event.FeatureFinished}})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFinished})

	var kinds []event.CucumberEventKind
	for _, ev := range rec.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []event.CucumberEventKind{
		event.CucumberStarted,
		event.CucumberFeature, // Feature::Started
		event.CucumberFeature, // Scenario::Started
		event.CucumberFeature, // Scenario::Finished
		event.CucumberFeature, // Feature::Finished
		event.CucumberFinished,
	}, kinds)
}

func TestNormalizer_TwoScenarios_ReordersSecondBehindFirst(t *testing.T) {
	s1 := namedScenario("s1")
	s2 := namedScenario("s2")
	f := gherkin.WrapFeature("f.feature", &messages.Feature{
		Name: "f1",
		Children: []*messages.FeatureChild{
			{Scenario: s1.Raw()},
			{Scenario: s2.Raw()},
		},
	})

	rec := &recordingWriter{}
	n := Normalize(rec)

	n.HandleEvent(event.Cucumber{Kind: event.CucumberStarted})
	// s1 started, s2 started and finished before s1 finishes: s2's events
	// must stay buffered until s1's Finished is ingested.
	n.HandleEvent(scenarioStartedEv(f, s1, time.Time{}))
	n.HandleEvent(scenarioStartedEv(f, s2, time.Time{}))
	n.HandleEvent(scenarioFinishedEv(f, s2, time.Time{}))
	// Started, Feature::Started, Scenario(s1)::Started: s2 stays buffered
	// behind s1, which hasn't finished yet.
	require.Len(t, rec.events, 3)

	n.HandleEvent(scenarioFinishedEv(f, s1, time.Time{}))
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFinished})

	var names []string
	for _, ev := range rec.events {
		if ev.Kind == event.CucumberFeature && ev.FeatureEv.Kind == event.FeatureScenario {
			names = append(names, ev.FeatureEv.Scenario.Name())
		}
	}
	assert.Equal(t, []string{"s1", "s1", "s2", "s2"}, names)
}

func TestNormalizer_RuleScenario_EmitsRuleLifecycle(t *testing.T) {
	s := namedScenario("s1")
	r := gherkin.WrapFeature("f.feature", &messages.Feature{
		Name: "f1",
		Children: []*messages.FeatureChild{
			{Rule: &messages.Rule{Name: "r1", Children: []*messages.RuleChild{{Scenario: s.Raw()}}}},
		},
	})
	rule := r.Rules()[0]

	rec := &recordingWriter{}
	n := Normalize(rec)

	n.HandleEvent(event.Cucumber{Kind: event.CucumberStarted})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: r, FeatureEv: event.FeatureEvent{
		Kind: event.FeatureRule, Rule: rule, RuleEv: event.RuleEvent{Kind: event.RuleStarted},
	}})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: r, FeatureEv: event.FeatureEvent{
		Kind: event.FeatureRule, Rule: rule,
		RuleEv: event.RuleEvent{Kind: event.RuleScenario, Scenario: s, Inner: event.RetryableScenario{Inner: event.ScenarioEvent{Kind: event.ScenarioStarted}}},
	}})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: r, FeatureEv: event.FeatureEvent{
		Kind: event.FeatureRule, Rule: rule,
		RuleEv: event.RuleEvent{Kind: event.RuleScenario, Scenario: s, Inner: event.RetryableScenario{Inner: event.ScenarioEvent{Kind: event.ScenarioFinished}}},
	}})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: r, FeatureEv: event.FeatureEvent{
		Kind: event.FeatureRule, Rule: rule, RuleEv: event.RuleEvent{Kind: event.RuleFinished},
	}})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFinished})

	var ruleKinds []event.RuleEventKind
	for _, ev := range rec.events {
		if ev.Kind == event.CucumberFeature && ev.FeatureEv.Kind == event.FeatureRule {
			ruleKinds = append(ruleKinds, ev.FeatureEv.RuleEv.Kind)
		}
	}
	assert.Equal(t, []event.RuleEventKind{
		event.RuleStarted, event.RuleScenario, event.RuleScenario, event.RuleFinished,
	}, ruleKinds)
}

func TestNormalizer_PassesThroughAfterFinished(t *testing.T) {
	rec := &recordingWriter{}
	n := Normalize(rec)

	n.HandleEvent(event.Cucumber{Kind: event.CucumberStarted})
	n.HandleEvent(event.Cucumber{Kind: event.CucumberFinished})
	require.True(t, n.done)

	n.HandleEvent(event.Cucumber{Kind: event.CucumberStarted})
	assert.Len(t, rec.events, 3)
}
