package cucumber

import (
	"fmt"
	"time"

	"github.com/bddrunner/cucumber/retrytag"
	"github.com/bddrunner/cucumber/scheduler"
)

// RunOptions accumulates the overridable parts of a run (spec §6.4's CLI
// surface, generalized so the same fields are settable from code). Every
// field is a pointer so MergeRunOptions can tell "left unset" apart from
// "explicitly set to the zero value" — concurrency 0 legitimately means
// serial execution.
type RunOptions struct {
	Concurrency    *int
	FailFast       *bool
	Retry          *uint
	RetryAfter     *time.Duration
	RetryTagFilter *string
	Color          *string // "auto" | "always" | "never"
	Verbosity      *int
	FailOnSkipped  *bool
	Logger         Logger
}

// Option configures a RunOptions in the functional-options style.
type Option func(*RunOptions)

func WithConcurrency(n int) Option { return func(o *RunOptions) { o.Concurrency = &n } }
func WithFailFast(b bool) Option   { return func(o *RunOptions) { o.FailFast = &b } }
func WithRetry(n uint) Option      { return func(o *RunOptions) { o.Retry = &n } }
func WithRetryAfter(d time.Duration) Option {
	return func(o *RunOptions) { o.RetryAfter = &d }
}
func WithRetryTagFilter(expr string) Option {
	return func(o *RunOptions) { o.RetryTagFilter = &expr }
}
func WithColor(policy string) Option  { return func(o *RunOptions) { o.Color = &policy } }
func WithVerbosity(v int) Option      { return func(o *RunOptions) { o.Verbosity = &v } }
func WithLogger(logger Logger) Option { return func(o *RunOptions) { o.Logger = logger } }

// WithFailOnSkipped makes an unmatched step (Step::NotFound) count as a
// failure instead of the default Step::Skipped classification (spec §4.8,
// §7).
func WithFailOnSkipped(b bool) Option { return func(o *RunOptions) { o.FailOnSkipped = &b } }

// NewRunOptions builds a RunOptions from a set of Options.
func NewRunOptions(opts ...Option) *RunOptions {
	o := &RunOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MergeRunOptions combines multiple RunOptions into one, last-set-wins per
// field: pass the CLI-derived RunOptions last so its flags always override
// code-level defaults.
func MergeRunOptions(opts ...*RunOptions) *RunOptions {
	result := &RunOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Concurrency != nil {
			result.Concurrency = o.Concurrency
		}
		if o.FailFast != nil {
			result.FailFast = o.FailFast
		}
		if o.Retry != nil {
			result.Retry = o.Retry
		}
		if o.RetryAfter != nil {
			result.RetryAfter = o.RetryAfter
		}
		if o.RetryTagFilter != nil {
			result.RetryTagFilter = o.RetryTagFilter
		}
		if o.Color != nil {
			result.Color = o.Color
		}
		if o.Verbosity != nil {
			result.Verbosity = o.Verbosity
		}
		if o.FailOnSkipped != nil {
			result.FailOnSkipped = o.FailOnSkipped
		}
		if o.Logger != nil {
			result.Logger = o.Logger
		}
	}
	return result
}

// resolved is RunOptions with every default applied and its retry tag
// filter compiled, ready for Run to consume.
type resolved struct {
	concurrency   int
	failFast      bool
	retry         uint
	retryAfter    time.Duration
	retryFilter   *retrytag.Filter
	useColors     bool
	verbosity     int
	failOnSkipped bool
	logger        Logger
}

func (o *RunOptions) resolve() (resolved, error) {
	r := resolved{concurrency: scheduler.DefaultConcurrency}

	if o.Concurrency != nil {
		r.concurrency = *o.Concurrency
	}
	if o.FailFast != nil {
		r.failFast = *o.FailFast
	}
	if o.Retry != nil {
		r.retry = *o.Retry
	}
	if o.RetryAfter != nil {
		r.retryAfter = *o.RetryAfter
	}

	filterExpr := ""
	if o.RetryTagFilter != nil {
		filterExpr = *o.RetryTagFilter
	}
	filter, err := retrytag.CompileFilter(filterExpr)
	if err != nil {
		return resolved{}, fmt.Errorf("compile retry tag filter %q: %w", filterExpr, err)
	}
	r.retryFilter = filter

	colorPolicy := "auto"
	if o.Color != nil {
		colorPolicy = *o.Color
	}
	r.useColors = colorPolicy != "never"

	if o.Verbosity != nil {
		r.verbosity = *o.Verbosity
	}
	if o.FailOnSkipped != nil {
		r.failOnSkipped = *o.FailOnSkipped
	}

	r.logger = o.Logger
	if r.logger == nil {
		r.logger = defaultLogger()
	}
	return r, nil
}
