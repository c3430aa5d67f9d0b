// Package retrytag parses the @retry tag family (spec §6.5) and compiles
// --retry-tag-filter tag expressions (spec §6.4) via the tag-expressions
// library, for the scenario-type/retry-filter predicates spec §4.3
// requires.
package retrytag

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	tagexpressions "github.com/cucumber/tag-expressions/go/v6"
)

// retryTagPattern matches @retry, @retry(N), @retry.after(DUR) and
// @retry(N).after(DUR), per spec §6.5.
var retryTagPattern = regexp.MustCompile(`^@retry(?:\((\d+)\))?(?:\.after\(([^)]+)\))?$`)

// Tag is a parsed @retry tag. HasRetries/HasAfter distinguish an omitted
// component (falls back to CLI defaults, spec §6.5) from an explicit one.
type Tag struct {
	Retries    uint
	HasRetries bool
	After      time.Duration
	HasAfter   bool
}

// Parse parses a single tag's text. ok is false if raw is not a @retry
// tag at all (so callers can skip it without treating it as an error).
func Parse(raw string) (tag Tag, ok bool, err error) {
	m := retryTagPattern.FindStringSubmatch(raw)
	if m == nil {
		return Tag{}, false, nil
	}

	if m[1] != "" {
		n, convErr := strconv.ParseUint(m[1], 10, 64)
		if convErr != nil {
			return Tag{}, true, fmt.Errorf("parse retry count in tag %q: %w", raw, convErr)
		}
		tag.Retries = uint(n)
		tag.HasRetries = true
	}
	if m[2] != "" {
		d, convErr := time.ParseDuration(m[2])
		if convErr != nil {
			return Tag{}, true, fmt.Errorf("parse retry delay in tag %q: %w", raw, convErr)
		}
		tag.After = d
		tag.HasAfter = true
	}
	return tag, true, nil
}

// Resolved is the fully resolved retry policy for a scenario, after
// falling back to CLI defaults for any unset tag component.
type Resolved struct {
	Retries uint
	After   time.Duration
}

// Resolve scans scopes (scenario tags first, then rule, then feature, per
// spec §6.5 "first match wins") for a @retry tag and fills in any missing
// component from the CLI defaults. It returns ok=false if no scope carries
// a @retry tag at all, in which case no retries apply regardless of CLI
// defaults (a bare scenario is not retried unless tagged).
func Resolve(scopes [][]string, cliRetries uint, cliAfter time.Duration) (Resolved, bool, error) {
	for _, tags := range scopes {
		for _, raw := range tags {
			tag, ok, err := Parse(raw)
			if err != nil {
				return Resolved{}, false, err
			}
			if !ok {
				continue
			}
			resolved := Resolved{Retries: cliRetries, After: cliAfter}
			if tag.HasRetries {
				resolved.Retries = tag.Retries
			} else if resolved.Retries == 0 {
				resolved.Retries = 1
			}
			if tag.HasAfter {
				resolved.After = tag.After
			}
			return resolved, true, nil
		}
	}
	return Resolved{}, false, nil
}

// Filter compiles a --retry-tag-filter tag expression (spec §6.4), e.g.
// "@flaky and not @slow".
type Filter struct {
	expr tagexpressions.Evaluatable
}

// CompileFilter parses a tag expression. An empty expr matches everything
// (no filter configured).
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}
	evaluatable, err := tagexpressions.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse retry tag filter %q: %w", expr, err)
	}
	return &Filter{expr: evaluatable}, nil
}

// Matches reports whether tags satisfy the filter. A Filter with no
// compiled expression (CompileFilter("")) matches everything.
func (f *Filter) Matches(tags []string) bool {
	if f == nil || f.expr == nil {
		return true
	}
	return f.expr.Evaluate(tags)
}
