package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	messages "github.com/cucumber/messages/go/v21"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/expression"
	"github.com/bddrunner/cucumber/gherkin"
	"github.com/bddrunner/cucumber/registry"
)

// stubFinder lets tests script Find's return values per call without
// pulling in the gomock-generated registry mock, since these tests only
// need a fixed response sequence rather than argument matchers.
type stubFinder struct {
	responses []finderResponse
	calls     int
}

type finderResponse struct {
	match *registry.Match
	err   error
}

func (f *stubFinder) Find(kw registry.Keyword, text string) (*registry.Match, error) {
	if f.calls >= len(f.responses) {
		return nil, nil
	}
	r := f.responses[f.calls]
	f.calls++
	return r.match, r.err
}

func passingMatch(handler any) *registry.Match {
	return &registry.Match{Handler: handler}
}

func step(text string) gherkin.Step {
	return gherkin.WrapScenario("feature.feature", &messages.Scenario{
		Name: "s",
		Steps: []*messages.Step{
			{Keyword: "Given ", Text: text},
		},
	}).Steps()[0]
}

func scenarioWithSteps(texts ...string) gherkin.Scenario {
	steps := make([]*messages.Step, len(texts))
	for i, text := range texts {
		steps[i] = &messages.Step{Keyword: "Given ", Text: text}
	}
	return gherkin.WrapScenario("feature.feature", &messages.Scenario{Name: "s", Steps: steps})
}

func collect(evs *[]event.ScenarioEvent) func(event.ScenarioEvent) {
	return func(e event.ScenarioEvent) { *evs = append(*evs, e) }
}

func kinds(evs []event.ScenarioEvent) []event.ScenarioEventKind {
	out := make([]event.ScenarioEventKind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func TestExecutor_Run_AllStepsPass(t *testing.T) {
	finder := &stubFinder{responses: []finderResponse{
		{match: passingMatch(func(ctx context.Context) error { return nil })},
	}}
	exec := &Executor{Registry: finder}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps("I do a thing")}, collect(&evs))

	assert.False(t, result.Failed)
	assert.Equal(t, []event.ScenarioEventKind{
		event.ScenarioStarted, event.ScenarioStep, event.ScenarioStep, event.ScenarioFinished,
	}, kinds(evs))
	assert.Equal(t, event.StepStarted, evs[1].StepEvent.Kind)
}

func TestExecutor_Run_StepNotFoundIsSkipped(t *testing.T) {
	finder := &stubFinder{responses: []finderResponse{{match: nil, err: nil}}}
	exec := &Executor{Registry: finder}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps("an unregistered step")}, collect(&evs))

	require.False(t, result.Failed, "an unmatched step is Skipped, not a failure (spec semantics)")
	var sawSkipped bool
	for _, e := range evs {
		if e.Kind == event.ScenarioStep && e.StepEvent.Kind == event.StepSkipped {
			sawSkipped = true
		}
	}
	assert.True(t, sawSkipped)
}

func TestExecutor_Run_AmbiguousStepFails(t *testing.T) {
	ambigErr := &registry.AmbiguousError{StepText: "x", Matches: []event.AmbiguousMatch{{Pattern: "a"}, {Pattern: "b"}}}
	finder := &stubFinder{responses: []finderResponse{{err: ambigErr}}}
	exec := &Executor{Registry: finder}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps("x")}, collect(&evs))

	require.True(t, result.Failed)
	failEv := evs[2].StepEvent
	require.Equal(t, event.StepFailed, failEv.Kind)
	assert.Equal(t, event.StepErrorAmbiguous, failEv.Err.Kind)
	assert.Len(t, failEv.Err.AmbiguousMatches, 2)
}

func TestExecutor_Run_PanicInStepIsClassifiedAsPanic(t *testing.T) {
	finder := &stubFinder{responses: []finderResponse{
		{match: passingMatch(func(ctx context.Context) error { panic("boom") })},
	}}
	exec := &Executor{Registry: finder}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps("x")}, collect(&evs))

	require.True(t, result.Failed)
	failEv := evs[2].StepEvent
	require.Equal(t, event.StepFailed, failEv.Kind)
	require.Equal(t, event.StepErrorPanic, failEv.Err.Kind)
	assert.Equal(t, "boom", failEv.Err.Panic.Message)
}

func TestExecutor_Run_FailedStepStopsRemainingSteps(t *testing.T) {
	finder := &stubFinder{responses: []finderResponse{
		{match: passingMatch(func(ctx context.Context) error { return errors.New("nope") })},
		{match: passingMatch(func(ctx context.Context) error { return nil })},
	}}
	exec := &Executor{Registry: finder}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps("first", "second")}, collect(&evs))

	require.True(t, result.Failed)
	var stepEvents []event.StepEvent
	for _, e := range evs {
		if e.Kind == event.ScenarioStep {
			stepEvents = append(stepEvents, e.StepEvent)
		}
	}
	// Only the failed first step emits events (its Started and Failed); the
	// remaining step is never attempted and never reported, matching
	// runBackground's short-circuit and avoiding an inflated failed/skipped
	// count downstream.
	require.Len(t, stepEvents, 2)
	assert.Equal(t, event.StepStarted, stepEvents[0].Kind)
	assert.Equal(t, event.StepFailed, stepEvents[1].Kind)
}

func TestExecutor_Run_BackgroundFailureSkipsScenarioSteps(t *testing.T) {
	finder := &stubFinder{responses: []finderResponse{
		{match: passingMatch(func(ctx context.Context) error { return errors.New("bg broke") })},
	}}
	exec := &Executor{Registry: finder}
	background := backgroundWithSteps("given setup")
	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{
		Scenario:   scenarioWithSteps("never runs"),
		Background: &background,
	}, collect(&evs))

	require.True(t, result.Failed)
	var sawScenarioStep bool
	for _, e := range evs {
		if e.Kind == event.ScenarioStep {
			sawScenarioStep = true
		}
	}
	assert.False(t, sawScenarioStep, "a failed background must skip the scenario's own steps")
}

func backgroundWithSteps(texts ...string) gherkin.Background {
	steps := make([]*messages.Step, len(texts))
	for i, text := range texts {
		steps[i] = &messages.Step{Keyword: "Given ", Text: text}
	}
	f := gherkin.WrapFeature("f.feature", &messages.Feature{
		Children: []*messages.FeatureChild{
			{Background: &messages.Background{Steps: steps}},
		},
	})
	bg, _ := f.Background()
	return bg
}

func TestExecutor_Run_BeforeHookFailureRunsAfterHookBeforeEmittingFailure(t *testing.T) {
	finder := &stubFinder{} // no steps reached
	var order []string

	exec := &Executor{
		Registry: finder,
		NewWorld: func(ctx context.Context) (any, error) { return "world", nil },
		Before: func(ctx context.Context, world any) error {
			return errors.New("before broke")
		},
		After: func(ctx context.Context, world any) error {
			order = append(order, "after-hook-ran")
			return nil
		},
	}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps()}, func(e event.ScenarioEvent) {
		evs = append(evs, e)
		if e.Kind == event.ScenarioHook && e.HookType == event.HookBefore && e.Hook.Kind == event.HookFailed {
			order = append(order, "before-failure-event-emitted")
		}
	})

	require.True(t, result.Failed)
	require.Equal(t, []string{"after-hook-ran", "before-failure-event-emitted"}, order,
		"the after-hook must run before the before-hook's failure event is emitted")

	// The after-hook's own Started/Passed events are still emitted, after
	// the triggering failure.
	var afterKinds []event.HookEventKind
	for _, e := range evs {
		if e.Kind == event.ScenarioHook && e.HookType == event.HookAfter {
			afterKinds = append(afterKinds, e.Hook.Kind)
		}
	}
	assert.Equal(t, []event.HookEventKind{event.HookStarted, event.HookPassed}, afterKinds)
}

func TestExecutor_Run_WorldConstructionFailureFailsBeforeHook(t *testing.T) {
	exec := &Executor{
		Registry: &stubFinder{},
		NewWorld: func(ctx context.Context) (any, error) { return nil, fmt.Errorf("cannot build world") },
		Before:   func(ctx context.Context, world any) error { return nil },
	}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps()}, collect(&evs))

	require.True(t, result.Failed)
	var sawBeforeFailed bool
	for _, e := range evs {
		if e.Kind == event.ScenarioHook && e.HookType == event.HookBefore && e.Hook.Kind == event.HookFailed {
			sawBeforeFailed = true
		}
	}
	assert.True(t, sawBeforeFailed)
}

func TestExecutor_Run_PassingScenarioRunsAfterHookUnconditionally(t *testing.T) {
	afterRan := false
	exec := &Executor{
		Registry: &stubFinder{responses: []finderResponse{{match: passingMatch(func(ctx context.Context) error { return nil })}}},
		After: func(ctx context.Context, world any) error {
			afterRan = true
			return nil
		},
	}

	var evs []event.ScenarioEvent
	result := exec.Run(context.Background(), Input{Scenario: scenarioWithSteps("ok")}, collect(&evs))

	require.False(t, result.Failed)
	assert.True(t, afterRan)
}

func TestExecutor_BindArgs_ConvertsCapturesAndInvokes(t *testing.T) {
	var gotCount int
	var gotWord string
	handler := func(ctx context.Context, count int, word string) error {
		gotCount, gotWord = count, word
		return nil
	}

	captures := []expression.CapturedValue{
		{Name: "int", Text: "3"},
		{Name: "word", Text: "apples"},
	}
	args, err := bindArgs(handler, context.Background(), nil, step("I have 3 apples"), captures)
	require.NoError(t, err)

	retErr, panicked, _ := invokeHandler(handler, args)
	require.NoError(t, retErr)
	require.False(t, panicked)
	assert.Equal(t, 3, gotCount)
	assert.Equal(t, "apples", gotWord)
}
