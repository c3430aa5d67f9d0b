package writer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/gherkin"
)

// ANSI color codes for the console writer.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorStep   = "\033[38;2;187;181;41m"
)

const (
	symbolPass = "✓"
	symbolFail = "✗"
	symbolSkip = "-"
)

// Basic is a console Writer printing pass/fail/skip lines per step and
// scenario (spec §4.8). It must sit behind Normalize to get a
// single-threaded emission order; fed the raw concurrent stream, its
// per-attempt header bookkeeping (inBack) would interleave
// across scenarios.
type Basic struct {
	out       io.Writer
	useColors bool
	buffered  bool

	mu     sync.Mutex
	buf    strings.Builder
	inBack bool
}

// NewBasic returns a Writer that prints directly to out as events arrive.
func NewBasic(out io.Writer, useColors bool) *Basic {
	return &Basic{out: out, useColors: useColors}
}

// NewBufferedBasic returns a Writer that accumulates output in memory until
// Flush, for parallel execution where concurrent scenario output must not
// interleave mid-line.
func NewBufferedBasic(out io.Writer, useColors bool) *Basic {
	return &Basic{out: out, useColors: useColors, buffered: true}
}

// Flush writes any buffered output to the underlying writer. A no-op on an
// unbuffered Basic.
func (b *Basic) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.buffered || b.buf.Len() == 0 {
		return
	}
	io.WriteString(b.out, b.buf.String())
	b.buf.Reset()
}

func (b *Basic) write(s string) {
	if b.buffered {
		b.buf.WriteString(s)
		return
	}
	io.WriteString(b.out, s)
}

func (b *Basic) writeln(s string) { b.write(s + "\n") }

func (b *Basic) color(c, s string) string {
	if b.useColors {
		return c + s + colorReset
	}
	return s
}

func (b *Basic) HandleEvent(ev event.Cucumber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Kind != event.CucumberFeature {
		return
	}
	switch ev.FeatureEv.Kind {
	case event.FeatureStarted:
		b.writeln("")
		b.writeln(b.color(colorCyan, "Feature:") + " " + b.color(colorBold, ev.Feature.Name()))
	case event.FeatureRule:
		b.handleRule(ev.FeatureEv.Rule, ev.FeatureEv.RuleEv)
	case event.FeatureScenario:
		b.handleScenario(ev.FeatureEv.Scenario, ev.FeatureEv.Inner.Inner, "")
	}
}

func (b *Basic) handleRule(rule gherkin.Rule, re event.RuleEvent) {
	switch re.Kind {
	case event.RuleStarted:
		b.writeln("")
		b.writeln("  " + b.color(colorCyan, "Rule:") + " " + b.color(colorBold, rule.Name()))
	case event.RuleScenario:
		b.handleScenario(re.Scenario, re.Inner.Inner, "  ")
	}
}

func (b *Basic) handleScenario(scenario gherkin.Scenario, se event.ScenarioEvent, indent string) {
	switch se.Kind {
	case event.ScenarioStarted:
		b.inBack = false
		b.writeln("")
		b.writeln(indent + "  " + b.color(colorCyan, "Scenario:") + " " + b.color(colorBold, scenario.Name()))
	case event.ScenarioBackground:
		if !b.inBack {
			b.inBack = true
			b.writeln(indent + "  " + b.color(colorCyan, "Background:"))
		}
		b.handleStep(se.Step, se.StepEvent, indent)
	case event.ScenarioStep:
		b.inBack = false
		b.handleStep(se.Step, se.StepEvent, indent)
	case event.ScenarioHook:
		if se.HookType == event.HookAfter && se.Hook.Kind == event.HookFailed {
			b.writeln(indent + "  " + b.color(colorRed, "after-hook failed: "+se.Hook.Panic.Message))
		}
	case event.ScenarioLog:
		b.writeln(indent + "    " + se.Log)
	}
}

func (b *Basic) handleStep(step gherkin.Step, se event.StepEvent, indent string) {
	line := fmt.Sprintf("%s    %s%s", indent, b.color(colorCyan, step.Keyword()), b.color(colorStep, step.Text()))
	switch se.Kind {
	case event.StepPassed:
		b.writeln(fmt.Sprintf("%-60s %s", line, b.color(colorGreen, symbolPass)))
	case event.StepFailed:
		b.writeln(fmt.Sprintf("%-60s %s", line, b.color(colorRed, symbolFail)))
		if msg := se.Err.Error(); msg != "" {
			for _, l := range strings.Split(msg, "\n") {
				b.writeln(b.color(colorRed, indent+"      "+l))
			}
		}
	case event.StepSkipped:
		b.writeln(fmt.Sprintf("%-60s %s", line, b.color(colorYellow, symbolSkip)))
	}
}

// NewStdoutBasic is a convenience constructor writing straight to
// os.Stdout.
func NewStdoutBasic(useColors bool) *Basic { return NewBasic(os.Stdout, useColors) }
