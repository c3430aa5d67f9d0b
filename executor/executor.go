// Package executor implements the scenario lifecycle state machine (C4):
// world construction, before-hook, backgrounds, steps, after-hook, with
// panic-catching boundaries. When the before-hook fails, the after-hook
// runs before the before-hook's failure event is emitted; a failed step's
// event is emitted as soon as the step fails, before the after-hook runs.
//
// Runs a single scenario attempt driven by the store/scheduler, with
// reflect-based step argument binding in bind.go, emitting spec §3's event
// tree instead of returning a Go error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/expression"
	"github.com/bddrunner/cucumber/gherkin"
	"github.com/bddrunner/cucumber/registry"
)

var (
	ctxType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType  = reflect.TypeOf((*error)(nil)).Elem()
	stepType = reflect.TypeOf(gherkin.Step{})
)

// WorldFactory constructs a scenario attempt's World, fallibly (spec §4.4;
// supplemented from original_source/codegen/src/world.rs's World::new()).
type WorldFactory func(ctx context.Context) (any, error)

// Hook is a before/after scenario hook. A non-nil returned error is treated
// identically to a panic for failure classification (§4.4, §7).
type Hook func(ctx context.Context, world any) error

// Input is everything one scenario attempt needs, independent of the store
// entry that produced it.
type Input struct {
	Scenario       gherkin.Scenario
	Background     *gherkin.Background
	RuleBackground *gherkin.Background
}

// Result summarizes one attempt for the caller's retry decision (spec
// §4.4's "failure classification for retry").
type Result struct {
	Failed bool
}

// Executor drives scenario attempts against a step registry.
type Executor struct {
	Registry registry.Finder
	NewWorld WorldFactory
	Before   Hook
	After    Hook
}

// Run executes one scenario attempt, emitting ScenarioEvents via emit in
// the exact order spec §3/§4.4 specify, and returns whether the attempt
// failed (for the caller's retry decision).
func (e *Executor) Run(ctx context.Context, in Input, emit func(event.ScenarioEvent)) Result {
	emit(event.ScenarioEvent{Kind: event.ScenarioStarted})

	var world any
	var worldReady bool
	ensureWorld := func() (any, event.Info, bool) {
		if worldReady {
			return world, event.Info{}, true
		}
		worldReady = true
		if e.NewWorld == nil {
			return nil, event.Info{}, true
		}
		w, err := e.safeNewWorld(ctx)
		if err != nil {
			return nil, event.NewInfo(err), false
		}
		world = w
		return world, event.Info{}, true
	}

	failed := false

	// Before-hook: world is constructed first so the hook receives it,
	// per spec §4.4 ("if the before-hook exists, the world is created
	// before invoking it").
	if e.Before != nil {
		emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookBefore, Hook: event.HookEvent{Kind: event.HookStarted}})

		w, worldErr, ok := ensureWorld()
		var hookFailed bool
		var info event.Info
		if !ok {
			hookFailed, info = true, worldErr
		} else {
			hookFailed, info = e.runHook(ctx, e.Before, w)
		}

		if hookFailed {
			failed = true
			afterFailed, afterInfo := e.deferredAfterHook(ctx, w)
			emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookBefore, Hook: event.HookEvent{Kind: event.HookFailed, World: w, Panic: info}})
			e.emitAfterHookEvents(emit, e.After != nil, afterFailed, w, afterInfo)
			emit(event.ScenarioEvent{Kind: event.ScenarioFinished})
			return Result{Failed: true}
		}
		emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookBefore, Hook: event.HookEvent{Kind: event.HookPassed}})
	}

	skipRest := false

	runBackground := func(bg *gherkin.Background) {
		if bg == nil || skipRest {
			return
		}
		prevKw := registry.Then
		for _, step := range bg.Steps() {
			kw := registry.ParseKeyword(step.Keyword(), prevKw)
			prevKw = kw
			w, worldErr, ok := ensureWorld()
			if !ok {
				emit(event.ScenarioEvent{Kind: event.ScenarioBackground, Step: step, StepEvent: event.StepEvent{Kind: event.StepStarted}})
				emit(event.ScenarioEvent{Kind: event.ScenarioBackground, Step: step, StepEvent: event.StepEvent{Kind: event.StepFailed, Err: event.StepError{Kind: event.StepErrorPanic, Panic: worldErr}}})
				failed, skipRest = true, true
				return
			}
			outcome := e.runStep(ctx, w, step, kw, func(se event.StepEvent) {
				emit(event.ScenarioEvent{Kind: event.ScenarioBackground, Step: step, StepEvent: se})
			})
			if outcome.failed {
				failed = true
			}
			if outcome.failed || outcome.skipped {
				skipRest = true
				return
			}
		}
	}

	runBackground(in.Background)
	runBackground(in.RuleBackground)

	if !skipRest {
		prevKw := registry.Then
		for _, step := range in.Scenario.Steps() {
			kw := registry.ParseKeyword(step.Keyword(), prevKw)
			prevKw = kw
			w, worldErr, ok := ensureWorld()
			if !ok {
				emit(event.ScenarioEvent{Kind: event.ScenarioStep, Step: step, StepEvent: event.StepEvent{Kind: event.StepStarted}})
				emit(event.ScenarioEvent{Kind: event.ScenarioStep, Step: step, StepEvent: event.StepEvent{Kind: event.StepFailed, Err: event.StepError{Kind: event.StepErrorPanic, Panic: worldErr}}})
				failed = true
				break
			}
			outcome := e.runStep(ctx, w, step, kw, func(se event.StepEvent) {
				emit(event.ScenarioEvent{Kind: event.ScenarioStep, Step: step, StepEvent: se})
			})
			if outcome.failed {
				failed = true
			}
			if outcome.failed || outcome.skipped {
				break
			}
		}
	}

	if e.After != nil {
		if failed {
			// Already-failed attempt: the last emitted event was a failure;
			// ordering here is unconditional start/pass/fail since there is
			// no further failure event pending emission.
			emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookStarted}})
			hookFailed, info := e.runHook(ctx, e.After, world)
			if hookFailed {
				emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookFailed, World: world, Panic: info}})
			} else {
				emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookPassed}})
			}
		} else {
			emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookStarted}})
			hookFailed, info := e.runHook(ctx, e.After, world)
			if hookFailed {
				failed = true
				emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookFailed, World: world, Panic: info}})
			} else {
				emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookPassed}})
			}
		}
	}

	emit(event.ScenarioEvent{Kind: event.ScenarioFinished})
	return Result{Failed: failed}
}

// deferredAfterHook runs the after-hook without emitting any event, so the
// caller can emit the triggering failure first (spec §4.4's ordering rule).
func (e *Executor) deferredAfterHook(ctx context.Context, world any) (bool, event.Info) {
	if e.After == nil {
		return false, event.Info{}
	}
	return e.runHook(ctx, e.After, world)
}

func (e *Executor) emitAfterHookEvents(emit func(event.ScenarioEvent), hasAfter, failed bool, world any, info event.Info) {
	if !hasAfter {
		return
	}
	emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookStarted}})
	if failed {
		emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookFailed, World: world, Panic: info}})
	} else {
		emit(event.ScenarioEvent{Kind: event.ScenarioHook, HookType: event.HookAfter, Hook: event.HookEvent{Kind: event.HookPassed}})
	}
}

type stepOutcome struct {
	failed  bool
	skipped bool
}

func (e *Executor) runStep(ctx context.Context, world any, step gherkin.Step, kw registry.Keyword, emit func(event.StepEvent)) stepOutcome {
	emit(event.StepEvent{Kind: event.StepStarted})

	match, err := e.Registry.Find(kw, step.Text())
	if err != nil {
		var ambig *registry.AmbiguousError
		if errors.As(err, &ambig) {
			emit(event.StepEvent{Kind: event.StepFailed, Err: event.StepError{Kind: event.StepErrorAmbiguous, AmbiguousMatches: ambig.Matches}})
			return stepOutcome{failed: true}
		}
		panic(fmt.Sprintf("step registry invariant violation: %v", err))
	}
	if match == nil {
		emit(event.StepEvent{Kind: event.StepSkipped})
		return stepOutcome{skipped: true}
	}

	captures := toMatches(match.Captures)
	args, bindErr := bindArgs(match.Handler, ctx, world, step, match.Captures)
	if bindErr != nil {
		emit(event.StepEvent{
			Kind: event.StepFailed, Captures: captures, Location: &match.Location, World: world,
			Err: event.StepError{Kind: event.StepErrorPanic, Panic: event.NewInfo(bindErr)},
		})
		return stepOutcome{failed: true}
	}

	retErr, panicked, info := invokeHandler(match.Handler, args)
	if panicked {
		emit(event.StepEvent{
			Kind: event.StepFailed, Captures: captures, Location: &match.Location, World: world,
			Err: event.StepError{Kind: event.StepErrorPanic, Panic: info},
		})
		return stepOutcome{failed: true}
	}
	if retErr != nil {
		emit(event.StepEvent{
			Kind: event.StepFailed, Captures: captures, Location: &match.Location, World: world,
			Err: event.StepError{Kind: event.StepErrorPanic, Panic: event.NewInfo(retErr)},
		})
		return stepOutcome{failed: true}
	}

	emit(event.StepEvent{Kind: event.StepPassed, Captures: captures, Location: &match.Location})
	return stepOutcome{}
}

func (e *Executor) runHook(ctx context.Context, hook Hook, world any) (failed bool, info event.Info) {
	defer func() {
		if r := recover(); r != nil {
			failed = true
			info = event.NewInfo(r)
		}
	}()
	if err := hook(ctx, world); err != nil {
		return true, event.NewInfo(err)
	}
	return false, event.Info{}
}

func (e *Executor) safeNewWorld(ctx context.Context) (w any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("world construction panicked: %s", event.NewInfo(r).Message)
		}
	}()
	return e.NewWorld(ctx)
}

func toMatches(captures []expression.CapturedValue) []event.Match {
	out := make([]event.Match, len(captures))
	for i, c := range captures {
		out[i] = event.Match{Name: c.Name, Text: c.Text}
	}
	return out
}

func bindArgs(fn any, ctx context.Context, world any, step gherkin.Step, captures []expression.CapturedValue) ([]reflect.Value, error) {
	fnType := reflect.TypeOf(fn)
	args := make([]reflect.Value, fnType.NumIn())
	ci := 0
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		switch {
		case paramType.Implements(ctxType):
			args[i] = reflect.ValueOf(ctx)
		case paramType == stepType:
			args[i] = reflect.ValueOf(step)
		case world != nil && paramType == reflect.TypeOf(world):
			args[i] = reflect.ValueOf(world)
		default:
			if ci >= len(captures) {
				return nil, fmt.Errorf("handler expects more arguments than the step captured (%d available)", len(captures))
			}
			v, err := convertArg(captures[ci].Text, paramType)
			if err != nil {
				return nil, fmt.Errorf("convert capture %q to %s: %w", captures[ci].Text, paramType, err)
			}
			args[i] = v
			ci++
		}
	}
	return args, nil
}

func invokeHandler(fn any, args []reflect.Value) (retErr error, panicked bool, info event.Info) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			info = event.NewInfo(r)
		}
	}()
	out := reflect.ValueOf(fn).Call(args)
	for _, o := range out {
		if o.Type().Implements(errType) && !o.IsNil() {
			retErr = o.Interface().(error)
		}
	}
	return
}
