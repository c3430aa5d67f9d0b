// Package scheduler implements the scheduler loop (C5): it keeps the
// executor fed from the feature store under a concurrency budget, detects
// termination, and honors fail-fast.
//
// The teacher walks a parsed document on a single goroutine and calls each
// step handler inline (pkg/executor/executor.go Execute). That has no
// concurrency to generalize from, so this loop is grounded instead on the
// bounded-worker-pool shape common to the rest of the corpus (a semaphore
// channel plus a completion channel draining into one control goroutine) —
// translating spec §4.5's cooperative single-thread model into Go's native
// idiom of "one goroutine per in-flight scenario, synchronized by
// channels" rather than hand-rolling a cooperative scheduler.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/executor"
	"github.com/bddrunner/cucumber/gherkin"
	"github.com/bddrunner/cucumber/retrytag"
	"github.com/bddrunner/cucumber/store"
)

// DefaultConcurrency is the default scenario concurrency budget (spec §4.5).
const DefaultConcurrency = 64

// Hooks records a run's world factory and before/after hooks. Run does not
// read it: every attempt uses Exec's own NewWorld, Before and After fields.
type Hooks struct {
	NewWorld executor.WorldFactory
	Before   executor.Hook
	After    executor.Hook
}

// Options configures one Run.
type Options struct {
	MaxConcurrent int  // 0 means serial (spec §4.5)
	FailFast      bool
}

// Scheduler drives scenario attempts pulled from a Store against an
// Executor, emitting the full Cucumber event tree to Emit.
//
// Emit is called from whichever goroutine produced the event: the control
// loop for Started/Finished/Rule/Feature markers, and each scenario's own
// goroutine for its ScenarioEvents (spec §5 describes a single-threaded
// cooperative model; this translation keeps scenarios on separate
// goroutines, so emit serializes calls to Emit with emitMu rather than
// relying on there being only one caller).
type Scheduler struct {
	Store   *store.Store
	Exec    *executor.Executor
	Hooks   Hooks
	Options Options
	Emit    func(event.Cucumber)

	emitMu sync.Mutex
}

type attemptResult struct {
	entry  store.Entry
	failed bool
}

// seenKey identifies a Feature or Rule for first-seen Started emission.
type seenKey struct {
	featureID gherkin.ID
	ruleID    gherkin.ID // zero value when the key is feature-scoped
}

// Run executes every scenario the store yields until the store reports
// finished, implementing spec §4.5's loop verbatim in Go concurrency
// idiom: spawn up to the budget, await the first completion, restock.
func (s *Scheduler) Run(ctx context.Context) error {
	maxConcurrent := s.Options.MaxConcurrent
	if maxConcurrent == 0 {
		// 0 means serial (spec §4.5, §6.4): one scenario at a time, not the
		// default budget. Store.Get(0) would yield nothing, so floor to 1.
		maxConcurrent = 1
	}
	if maxConcurrent < 0 {
		maxConcurrent = DefaultConcurrency
	}

	s.emit(event.Cucumber{Kind: event.CucumberStarted})

	results := make(chan attemptResult)
	inFlight := 0
	budget := maxConcurrent
	stopDequeue := false

	seenFeatures := make(map[gherkin.ID]bool)
	seenRules := make(map[seenKey]bool)
	// pendingFeatures/pendingRules track the set of scenario IDs not yet
	// terminally finished (all retry attempts exhausted or passed), so a
	// re-enqueued retry does not inflate the outstanding count.
	pendingFeatures := make(map[gherkin.ID]map[store.ScenarioID]bool)
	pendingRules := make(map[seenKey]map[store.ScenarioID]bool)

	for {
		if !stopDequeue {
			batch, hint, hintOK := s.Store.Get(budget)
			for _, e := range batch {
				s.markSeen(e, seenFeatures, seenRules)
				addPending(pendingFeatures, e.Feature.ID(), e.ID)
				if e.Rule != nil {
					addPending(pendingRules, seenKey{featureID: e.Feature.ID(), ruleID: e.Rule.ID()}, e.ID)
				}

				budget--
				inFlight++
				go s.runAttempt(ctx, e, results)
			}

			if len(batch) == 0 && inFlight == 0 {
				if s.Store.IsFinished(s.Options.FailFast) {
					break
				}
				if hintOK {
					select {
					case <-time.After(hint):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				continue
			}
		} else if inFlight == 0 {
			break
		}

		select {
		case r := <-results:
			inFlight--
			budget++
			s.handleCompletion(r, pendingFeatures, pendingRules)

			if s.Options.FailFast && r.failed && r.entry.Retries.Left == 0 {
				stopDequeue = true
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.emit(event.Cucumber{Kind: event.CucumberFinished})
	return nil
}

func (s *Scheduler) markSeen(e store.Entry, seenFeatures map[gherkin.ID]bool, seenRules map[seenKey]bool) {
	if !seenFeatures[e.Feature.ID()] {
		seenFeatures[e.Feature.ID()] = true
		s.emit(event.Cucumber{Kind: event.CucumberFeature, Feature: e.Feature, FeatureEv: event.FeatureEvent{Kind: event.FeatureStarted}})
	}
	if e.Rule != nil {
		key := seenKey{featureID: e.Feature.ID(), ruleID: e.Rule.ID()}
		if !seenRules[key] {
			seenRules[key] = true
			s.emit(event.Cucumber{Kind: event.CucumberFeature, Feature: e.Feature, FeatureEv: event.FeatureEvent{
				Kind: event.FeatureRule, Rule: *e.Rule, RuleEv: event.RuleEvent{Kind: event.RuleStarted},
			}})
		}
	}
}

func (s *Scheduler) runAttempt(ctx context.Context, e store.Entry, results chan<- attemptResult) {
	var retries *store.Retries
	if e.Retries.Current > 0 || e.Retries.Left > 0 {
		r := e.Retries
		retries = &r
	}

	var background, ruleBackground *gherkin.Background
	if bg, ok := e.Feature.Background(); ok {
		background = &bg
	}
	if e.Rule != nil {
		if bg, ok := e.Rule.Background(); ok {
			ruleBackground = &bg
		}
	}

	result := s.Exec.Run(ctx, executor.Input{
		Scenario:       e.Scenario,
		Background:     background,
		RuleBackground: ruleBackground,
	}, func(se event.ScenarioEvent) {
		s.emitScenarioEvent(e, retries, se)
	})

	results <- attemptResult{entry: e, failed: result.Failed}
}

func (s *Scheduler) emitScenarioEvent(e store.Entry, retries *store.Retries, se event.ScenarioEvent) {
	var evRetries *event.Retries
	if retries != nil {
		evRetries = &event.Retries{Current: retries.Current, Left: retries.Left}
	}
	retryable := event.RetryableScenario{Inner: se, Retries: evRetries}

	if e.Rule != nil {
		s.emit(event.Cucumber{Kind: event.CucumberFeature, Feature: e.Feature, FeatureEv: event.FeatureEvent{
			Kind: event.FeatureRule, Rule: *e.Rule,
			RuleEv: event.RuleEvent{Kind: event.RuleScenario, Scenario: e.Scenario, Inner: retryable},
		}})
		return
	}
	s.emit(event.Cucumber{Kind: event.CucumberFeature, Feature: e.Feature, FeatureEv: event.FeatureEvent{
		Kind: event.FeatureScenario, Scenario: e.Scenario, Inner: retryable,
	}})
}

// handleCompletion applies spec §4.3/§4.5's retry-or-finish decision,
// re-enqueueing a retry via retrytag-resolved delay, or removing the
// scenario from its feature's/rule's pending set and emitting Finished
// once that set empties.
func (s *Scheduler) handleCompletion(r attemptResult, pendingFeatures map[gherkin.ID]map[store.ScenarioID]bool, pendingRules map[seenKey]map[store.ScenarioID]bool) {
	e := r.entry
	if r.failed {
		if next, ok := e.Retries.NextTry(); ok {
			retry := e
			retry.Retries = next
			retry.StampedAt = time.Time{}
			s.Store.Insert(retry)
			return
		}
	}

	featureID := e.Feature.ID()
	delete(pendingFeatures[featureID], e.ID)
	if e.Rule != nil {
		key := seenKey{featureID: featureID, ruleID: e.Rule.ID()}
		delete(pendingRules[key], e.ID)
		if len(pendingRules[key]) == 0 {
			s.emit(event.Cucumber{Kind: event.CucumberFeature, Feature: e.Feature, FeatureEv: event.FeatureEvent{
				Kind: event.FeatureRule, Rule: *e.Rule, RuleEv: event.RuleEvent{Kind: event.RuleFinished},
			}})
		}
	}
	if len(pendingFeatures[featureID]) == 0 {
		s.emit(event.Cucumber{Kind: event.CucumberFeature, Feature: e.Feature, FeatureEv: event.FeatureEvent{Kind: event.FeatureFinished}})
	}
}

func addPending[K comparable](m map[K]map[store.ScenarioID]bool, key K, id store.ScenarioID) {
	if m[key] == nil {
		m[key] = make(map[store.ScenarioID]bool)
	}
	m[key][id] = true
}

func (s *Scheduler) emit(ev event.Cucumber) {
	ev.Timestamp = time.Now()
	if s.Emit == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.Emit(ev)
}

// ResolveRetries computes a scenario's retry policy from its tag scopes,
// per spec §6.5, returning both the retry budget and the delay to wait
// before each retried attempt. Exposed here (rather than in retrytag)
// since resolving retries is this package's ingestion-time concern. A
// malformed @retry tag is reported rather than silently treated as "no
// retries".
func ResolveRetries(scenarioTags, ruleTags, featureTags []string, cliRetries uint, cliAfter time.Duration) (store.Retries, time.Duration, error) {
	resolved, ok, err := retrytag.Resolve([][]string{scenarioTags, ruleTags, featureTags}, cliRetries, cliAfter)
	if err != nil {
		return store.Retries{}, 0, err
	}
	if !ok {
		return store.NewRetries(0), 0, nil
	}
	return store.NewRetries(resolved.Retries), resolved.After, nil
}
