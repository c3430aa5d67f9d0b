package cucumber

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/executor"
	"github.com/bddrunner/cucumber/expression"
	"github.com/bddrunner/cucumber/gherkin"
	"github.com/bddrunner/cucumber/registry"
	"github.com/bddrunner/cucumber/scheduler"
	"github.com/bddrunner/cucumber/store"
	"github.com/bddrunner/cucumber/writer"
)

// ScenarioClassifier buckets a scenario into Serial or Concurrent at
// ingestion time. Spec §3 requires this classification come from "a
// user-supplied predicate at ingestion time" rather than a fixed tag
// convention, so it is a caller-supplied function rather than, say, a
// hardcoded "@serial" tag lookup; a caller that wants tag-driven behavior
// implements the predicate in terms of rule/feature/scenario.Tags()
// themselves.
type ScenarioClassifier func(feature gherkin.Feature, rule *gherkin.Rule, scenario gherkin.Scenario) store.ScenarioType

// parameterRegistrar is the subset of expression.NewRegistry()'s return
// value Cucumber needs: Lookup to compile step patterns, Register to add
// custom parameter types (spec §6.3).
type parameterRegistrar interface {
	expression.ParameterProvider
	Register(expression.ParameterType) error
}

// Cucumber is the fluent builder tying the step registry, world factory,
// hooks and scenario classifier together into one runnable suite via a
// small chained API: New().Given(...).When(...).Then(...).Run(...).
type Cucumber struct {
	registry *registry.Registry
	provider parameterRegistrar

	newWorld executor.WorldFactory
	before   executor.Hook
	after    executor.Hook
	classify ScenarioClassifier
}

// New returns an empty Cucumber builder.
func New() *Cucumber {
	return &Cucumber{
		registry: registry.New(),
		provider: expression.NewRegistry(),
	}
}

// Given registers a step handler under the Given keyword. Returns the
// receiver for chaining.
func (c *Cucumber) Given(pattern string, handler any) *Cucumber {
	return c.register(registry.Given, pattern, handler)
}

// When registers a step handler under the When keyword.
func (c *Cucumber) When(pattern string, handler any) *Cucumber {
	return c.register(registry.When, pattern, handler)
}

// Then registers a step handler under the Then keyword.
func (c *Cucumber) Then(pattern string, handler any) *Cucumber {
	return c.register(registry.Then, pattern, handler)
}

func (c *Cucumber) register(kw registry.Keyword, pattern string, handler any) *Cucumber {
	loc := callerLocation()
	if err := c.registry.Register(kw, pattern, handler, loc, c.provider); err != nil {
		// Step registration is a startup-time programming error (spec
		// §6.3: "the compiler asserts... at registration time"), not a
		// runtime failure to be reported on the event stream.
		panic(err)
	}
	return c
}

func callerLocation() event.Location {
	// Skip callerLocation, register and Given/When/Then to reach the
	// caller's own registration line.
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return event.Location{}
	}
	return event.Location{Path: file, Line: uint32(line)}
}

// RegisterParameterType adds a custom {name} parameter type (spec §6.3).
func (c *Cucumber) RegisterParameterType(pt expression.ParameterType) *Cucumber {
	if err := c.provider.Register(pt); err != nil {
		panic(err)
	}
	return c
}

// WithWorld sets the per-attempt world factory (spec §4.4, §5 "World
// lifetime").
func (c *Cucumber) WithWorld(factory executor.WorldFactory) *Cucumber {
	c.newWorld = factory
	return c
}

// Before sets the before-scenario hook.
func (c *Cucumber) Before(hook executor.Hook) *Cucumber {
	c.before = hook
	return c
}

// After sets the after-scenario hook.
func (c *Cucumber) After(hook executor.Hook) *Cucumber {
	c.after = hook
	return c
}

// ClassifyScenarios installs the scenario-type predicate (spec §3). When
// unset, every scenario is classified Concurrent, maximizing throughput —
// a caller that needs ordering opts in explicitly rather than the core
// guessing at a tag convention.
func (c *Cucumber) ClassifyScenarios(fn ScenarioClassifier) *Cucumber {
	c.classify = fn
	return c
}

func (c *Cucumber) classifyOf(f gherkin.Feature, r *gherkin.Rule, s gherkin.Scenario) store.ScenarioType {
	if c.classify == nil {
		return store.Concurrent
	}
	return c.classify(f, r, s)
}

// Run parses every *.feature file under featureDirs, schedules its
// scenarios per the configured classifier and retry policy, executes them
// against the registered steps, and returns an error if any step, hook or
// parse failure occurred (spec §6.6's exit-code policy, inverted into a Go
// error). The writer pipeline prints a console report (via a Basic writer
// behind Normalize) and a trailing textual summary to os.Stdout.
func (c *Cucumber) Run(ctx context.Context, featureDirs []string, opts ...Option) error {
	return c.RunWithWriter(ctx, featureDirs, nil, opts...)
}

// RunWithWriter is Run, but lets the caller substitute the console writer
// (e.g. to capture output in a test, or fan out via writer.Tee). A nil
// console writer defaults to writer.NewStdoutBasic(useColors).
func (c *Cucumber) RunWithWriter(ctx context.Context, featureDirs []string, console writer.Writer, opts ...Option) error {
	ro, err := NewRunOptions(opts...).resolve()
	if err != nil {
		return err
	}

	if console == nil {
		console = writer.NewStdoutBasic(ro.useColors)
	}

	sum := writer.Summarize(console, os.Stdout)
	var out writer.Writer = sum
	if ro.failOnSkipped {
		out = writer.FailOnSkipped(out)
	}
	out = writer.Normalize(out)

	st := store.New()
	stats, err := ingest(featureDirs, st, c, ro)
	if err != nil {
		return err
	}
	// Emitted ahead of the scheduler's own CucumberStarted (which the
	// scheduler always emits first): parsing necessarily completes before
	// any scenario can be scheduled, and none of the writers above key off
	// the relative order of Started vs. ParsingFinished.
	out.HandleEvent(event.Cucumber{Kind: event.CucumberParsingFinished, Timestamp: time.Now(), Parsing: stats})
	st.MarkParsingFinished()

	sched := &scheduler.Scheduler{
		Store: st,
		Exec: &executor.Executor{
			Registry: c.registry,
			NewWorld: c.newWorld,
			Before:   c.before,
			After:    c.after,
		},
		Hooks: scheduler.Hooks{NewWorld: c.newWorld, Before: c.before, After: c.after},
		Options: scheduler.Options{
			MaxConcurrent: ro.concurrency,
			FailFast:      ro.failFast,
		},
		Emit: out.HandleEvent,
	}

	ro.logger.Info("run starting", "features", stats.Features, "scenarios", stats.Scenarios, "concurrency", ro.concurrency)
	if runErr := sched.Run(ctx); runErr != nil {
		ro.logger.Error("run aborted", "error", runErr)
		return runErr
	}

	if sum.ExecutionHasFailed() {
		return fmt.Errorf("cucumber: %d step(s) failed, %d parsing error(s), %d hook failure(s)",
			sum.FailedSteps(), sum.ParsingErrors(), sum.HookErrors())
	}
	return nil
}

// ingest walks featureDirs, parses every feature file, and inserts every
// scenario (Rule-scoped or direct, Examples already expanded by the
// gherkin package) into st with its resolved ScenarioType and Retries
// (spec §3's "for each scenario... call user predicates which_scenario and
// retry").
func ingest(featureDirs []string, st *store.Store, c *Cucumber, ro resolved) (event.ParsingStats, error) {
	var stats event.ParsingStats

	paths, err := gherkin.SearchFeatureFiles(featureDirs)
	if err != nil {
		return stats, fmt.Errorf("search feature files: %w", err)
	}

	for _, path := range paths {
		f, err := parseFeature(path)
		if err != nil {
			stats.ParserErrors++
			ro.logger.Warn("parse error", "path", path, "error", err)
			continue
		}
		stats.Features++

		var entries []store.Entry
		for _, s := range f.Scenarios() {
			stats.Scenarios++
			stats.Steps += uint(len(s.Steps()))
			e, err := newEntry(f, nil, s, c, ro)
			if err != nil {
				return stats, err
			}
			entries = append(entries, e)
		}
		for _, r := range f.Rules() {
			stats.Rules++
			rule := r
			for _, s := range r.Scenarios() {
				stats.Scenarios++
				stats.Steps += uint(len(s.Steps()))
				e, err := newEntry(f, &rule, s, c, ro)
				if err != nil {
					return stats, err
				}
				entries = append(entries, e)
			}
		}
		st.Insert(entries...)
	}

	return stats, nil
}

func parseFeature(path string) (gherkin.Feature, error) {
	file, err := os.Open(path)
	if err != nil {
		return gherkin.Feature{}, fmt.Errorf("open %q: %w", path, err)
	}
	defer file.Close()

	doc, err := gherkin.ParseDocument(file)
	if err != nil {
		return gherkin.Feature{}, err
	}
	return gherkin.WrapFeature(path, doc.Feature), nil
}

func newEntry(f gherkin.Feature, r *gherkin.Rule, s gherkin.Scenario, c *Cucumber, ro resolved) (store.Entry, error) {
	scenarioType := c.classifyOf(f, r, s)

	ruleTags := []string(nil)
	allTags := append(append([]string{}, s.Tags()...), f.Tags()...)
	if r != nil {
		ruleTags = r.Tags()
		allTags = append(allTags, ruleTags...)
	}

	cliRetries, cliAfter := uint(0), ro.retryAfter
	if ro.retryFilter.Matches(allTags) {
		cliRetries = ro.retry
	} else {
		cliAfter = 0
	}

	retries, after, err := scheduler.ResolveRetries(s.Tags(), ruleTags, f.Tags(), cliRetries, cliAfter)
	if err != nil {
		return store.Entry{}, fmt.Errorf("resolve retries for scenario %q: %w", s.Name(), err)
	}

	return store.Entry{
		ID:         store.NewScenarioID(),
		Feature:    f,
		Rule:       r,
		Scenario:   s,
		Type:       scenarioType,
		Retries:    retries,
		RetryAfter: after,
	}, nil
}
