package scheduler

import (
	"context"
	"testing"
	"time"

	messages "github.com/cucumber/messages/go/v21"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/executor"
	"github.com/bddrunner/cucumber/gherkin"
	"github.com/bddrunner/cucumber/registry"
	"github.com/bddrunner/cucumber/store"
)

func feature(name string, scenario gherkin.Scenario) gherkin.Feature {
	f := gherkin.WrapFeature(name+".feature", &messages.Feature{
		Name: name,
		Children: []*messages.FeatureChild{
			{Scenario: scenario.Raw()},
		},
	})
	return f
}

func oneScenarioFeature(name, scenarioName string) (gherkin.Feature, gherkin.Scenario) {
	msg := &messages.Scenario{Name: scenarioName}
	s := gherkin.WrapScenario(name+".feature", msg)
	return feature(name, s), s
}

func TestScheduler_Run_SingleScenarioEmitsFullLifecycle(t *testing.T) {
	f, s := oneScenarioFeature("f1", "s1")
	st := store.New()
	st.Insert(store.Entry{ID: store.NewScenarioID(), Feature: f, Scenario: s, Type: store.Concurrent, Retries: store.NewRetries(0)})
	st.MarkParsingFinished()

	reg := registry.New()
	sched := &Scheduler{
		Store:   st,
		Exec:    &executor.Executor{Registry: reg},
		Options: Options{MaxConcurrent: 4},
	}

	var evs []event.Cucumber
	sched.Emit = func(e event.Cucumber) { evs = append(evs, e) }

	err := sched.Run(context.Background())
	require.NoError(t, err)

	require.True(t, len(evs) >= 4)
	assert.Equal(t, event.CucumberStarted, evs[0].Kind)
	assert.Equal(t, event.CucumberFinished, evs[len(evs)-1].Kind)

	var sawFeatureStarted, sawFeatureFinished bool
	for _, e := range evs {
		if e.Kind != event.CucumberFeature {
			continue
		}
		switch e.FeatureEv.Kind {
		case event.FeatureStarted:
			sawFeatureStarted = true
		case event.FeatureFinished:
			sawFeatureFinished = true
		}
	}
	assert.True(t, sawFeatureStarted)
	assert.True(t, sawFeatureFinished)
}

func TestScheduler_Run_RetriesUntilExhausted(t *testing.T) {
	msg := &messages.Scenario{Name: "flaky", Steps: []*messages.Step{{Keyword: "Given ", Text: "it breaks"}}}
	s := gherkin.WrapScenario("f1.feature", msg)
	f := feature("f1", s)

	st := store.New()
	st.Insert(store.Entry{ID: store.NewScenarioID(), Feature: f, Scenario: s, Type: store.Concurrent, Retries: store.NewRetries(2)})
	st.MarkParsingFinished()

	reg := registry.New()
	require.NoError(t, reg.Register(registry.Given, "it breaks", func() error { return assert.AnError }, event.Location{}, nil))

	sched := &Scheduler{
		Store:   st,
		Exec:    &executor.Executor{Registry: reg},
		Options: Options{MaxConcurrent: 4},
	}

	var scenarioFinishedCount int
	sched.Emit = func(e event.Cucumber) {
		if e.Kind == event.CucumberFeature && e.FeatureEv.Kind == event.FeatureScenario &&
			e.FeatureEv.Inner.Inner.Kind == event.ScenarioFinished {
			scenarioFinishedCount++
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sched.Run(ctx)
	require.NoError(t, err)

	// configured with 2 retries: the initial attempt plus both retries, all
	// failing, emit one Scenario::Finished apiece (spec §4.3).
	assert.Equal(t, 3, scenarioFinishedCount)
}

func TestScheduler_Run_EmptyStoreFinishesImmediately(t *testing.T) {
	st := store.New()
	st.MarkParsingFinished()

	sched := &Scheduler{
		Store:   st,
		Exec:    &executor.Executor{Registry: registry.New()},
		Options: Options{MaxConcurrent: 4},
	}

	var evs []event.Cucumber
	sched.Emit = func(e event.Cucumber) { evs = append(evs, e) }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Run(ctx))
	require.Len(t, evs, 2)
	assert.Equal(t, event.CucumberStarted, evs[0].Kind)
	assert.Equal(t, event.CucumberFinished, evs[1].Kind)
}
