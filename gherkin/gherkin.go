// Package gherkin is the boundary to the external Gherkin parser
// (spec §6.1, §1 Non-goals). It wraps github.com/cucumber/gherkin and
// github.com/cucumber/messages in small value types — Feature, Rule,
// Scenario, Step, Background — that the core treats as immutable,
// cheap-to-clone, shared-by-handle values identified by content hash
// (file path + source span + position), per spec §3.
package gherkin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	gk "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// Location is a source position: a file path plus an optional line number.
// It is used for Gherkin source locations and, via event.Location (a type
// alias onto this type), for step-definition locations reported by the
// registry.
type Location struct {
	Path string
	Line uint32
}

// FeatureExtension is the conventional suffix of Gherkin feature files.
const FeatureExtension = ".feature"

// ID is an opaque content-hash identity for a Gherkin node: two nodes with
// the same name in different files (or different spans of the same file)
// always compare unequal.
type ID string

func newID(path string, loc *messages.Location, extra string) ID {
	h := sha256.New()
	io.WriteString(h, path)
	io.WriteString(h, "\x00")
	if loc != nil {
		fmt.Fprintf(h, "%d:%d", loc.Line, loc.Column)
	}
	io.WriteString(h, "\x00")
	io.WriteString(h, extra)
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// Feature is a handle onto a parsed Gherkin feature, scoped to the file it
// came from.
type Feature struct {
	Path string
	msg  *messages.Feature
}

// WrapFeature builds a Feature handle for a file's parsed root.
func WrapFeature(path string, msg *messages.Feature) Feature {
	return Feature{Path: path, msg: msg}
}

func (f Feature) ID() ID             { return newID(f.Path, f.msg.Location, f.msg.Name) }
func (f Feature) Name() string       { return f.msg.Name }
func (f Feature) Keyword() string    { return f.msg.Keyword }
func (f Feature) Description() string { return f.msg.Description }
func (f Feature) Raw() *messages.Feature { return f.msg }

func (f Feature) Location() Location {
	return locationOf(f.Path, f.msg.Location)
}

func (f Feature) Tags() []string { return tagNames(f.msg.Tags) }

// Background returns the feature-level background, if any.
func (f Feature) Background() (Background, bool) {
	for _, child := range f.msg.Children {
		if child.Background != nil {
			return Background{Path: f.Path, msg: child.Background}, true
		}
	}
	return Background{}, false
}

// Rules returns the feature's Rule blocks in source order.
func (f Feature) Rules() []Rule {
	var rules []Rule
	for _, child := range f.msg.Children {
		if child.Rule != nil {
			rules = append(rules, Rule{Path: f.Path, msg: child.Rule})
		}
	}
	return rules
}

// Scenarios returns the feature's direct (non-rule) scenarios, with
// Scenario Outlines expanded from their Examples tables (spec §4.3).
func (f Feature) Scenarios() []Scenario {
	var out []Scenario
	for _, child := range f.msg.Children {
		if child.Scenario != nil {
			out = append(out, expand(f.Path, child.Scenario)...)
		}
	}
	return out
}

// Rule is a handle onto a parsed Gherkin Rule block.
type Rule struct {
	Path string
	msg  *messages.Rule
}

func (r Rule) ID() ID          { return newID(r.Path, r.msg.Location, r.msg.Name) }
func (r Rule) Name() string    { return r.msg.Name }
func (r Rule) Keyword() string { return r.msg.Keyword }
func (r Rule) Tags() []string  { return tagNames(r.msg.Tags) }
func (r Rule) Raw() *messages.Rule { return r.msg }

func (r Rule) Location() Location {
	return locationOf(r.Path, r.msg.Location)
}

// Background returns the rule-level background, if any.
func (r Rule) Background() (Background, bool) {
	for _, child := range r.msg.Children {
		if child.Background != nil {
			return Background{Path: r.Path, msg: child.Background}, true
		}
	}
	return Background{}, false
}

// Scenarios returns the rule's scenarios, expanded from Examples.
func (r Rule) Scenarios() []Scenario {
	var out []Scenario
	for _, child := range r.msg.Children {
		if child.Scenario != nil {
			out = append(out, expand(r.Path, child.Scenario)...)
		}
	}
	return out
}

// Background is a handle onto a parsed Gherkin Background block.
type Background struct {
	Path string
	msg  *messages.Background
}

func (b Background) Keyword() string { return b.msg.Keyword }
func (b Background) Name() string    { return b.msg.Name }
func (b Background) Raw() *messages.Background { return b.msg }

func (b Background) Steps() []Step {
	out := make([]Step, 0, len(b.msg.Steps))
	for _, s := range b.msg.Steps {
		out = append(out, Step{Path: b.Path, msg: s})
	}
	return out
}

// Scenario is a handle onto a parsed Gherkin Scenario — either as written,
// or as one expansion of a Scenario Outline's Examples table.
type Scenario struct {
	Path string
	msg  *messages.Scenario

	// outline is set when this Scenario is an expansion of an Examples row;
	// steps/name already reflect substitution, but ID() still includes the
	// originating outline's name plus the row's location and index so that every expansion
	// of the same outline is distinct and stable across retries (spec §3:
	// "ScenarioId... minted when a scenario enters the store").
	outlineID ID
	exampleTags []string
}

// WrapScenario builds a Scenario handle directly (no Examples expansion).
// Exposed for tests that build scenarios by hand.
func WrapScenario(path string, msg *messages.Scenario) Scenario {
	return Scenario{Path: path, msg: msg}
}

func (s Scenario) ID() ID {
	if s.outlineID != "" {
		return s.outlineID
	}
	return newID(s.Path, s.msg.Location, s.msg.Name)
}

func (s Scenario) Name() string        { return s.msg.Name }
func (s Scenario) Keyword() string     { return s.msg.Keyword }
func (s Scenario) Description() string { return s.msg.Description }
func (s Scenario) Raw() *messages.Scenario { return s.msg }

func (s Scenario) Location() Location {
	return locationOf(s.Path, s.msg.Location)
}

func (s Scenario) Tags() []string {
	tags := tagNames(s.msg.Tags)
	return append(append([]string{}, tags...), s.exampleTags...)
}

func (s Scenario) IsOutline() bool { return len(s.msg.Examples) > 0 }

func (s Scenario) Steps() []Step {
	out := make([]Step, 0, len(s.msg.Steps))
	for _, st := range s.msg.Steps {
		out = append(out, Step{Path: s.Path, msg: st})
	}
	return out
}

// Step is a handle onto a parsed Gherkin Step.
type Step struct {
	Path string
	msg  *messages.Step
}

func (s Step) ID() ID          { return newID(s.Path, s.msg.Location, s.msg.Text) }
func (s Step) Keyword() string { return s.msg.Keyword }
func (s Step) Text() string    { return s.msg.Text }
func (s Step) Raw() *messages.Step { return s.msg }

func (s Step) Location() Location {
	return locationOf(s.Path, s.msg.Location)
}

// DocString returns the step's doc string content, if any.
func (s Step) DocString() (string, bool) {
	if s.msg.DocString == nil {
		return "", false
	}
	return s.msg.DocString.Content, true
}

// DataTable returns the step's data table rows as strings, if any.
func (s Step) DataTable() ([][]string, bool) {
	if s.msg.DataTable == nil {
		return nil, false
	}
	rows := make([][]string, 0, len(s.msg.DataTable.Rows))
	for _, row := range s.msg.DataTable.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, cell.Value)
		}
		rows = append(rows, cells)
	}
	return rows, true
}

func locationOf(path string, loc *messages.Location) Location {
	if loc == nil {
		return Location{Path: path}
	}
	return Location{Path: path, Line: uint32(loc.Line)}
}

func tagNames(tags []*messages.Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}

// SearchFeatureFiles walks the given directories collecting *.feature
// files.
func SearchFeatureFiles(directories []string) ([]string, error) {
	var files []string
	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), FeatureExtension) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("search feature files in %q: %w", dir, err)
		}
	}
	return files, nil
}

// ParseDocument parses a single feature file's contents into a
// messages.GherkinDocument, using a per-file incrementing ID source as the
// teacher does (pkg/gherkin_parser.ParseGherkinFile).
func ParseDocument(reader io.Reader) (*messages.GherkinDocument, error) {
	newID := (&messages.Incrementing{}).NewId
	doc, err := gk.ParseGherkinDocument(reader, newID)
	if err != nil {
		return nil, fmt.Errorf("parse gherkin document: %w", err)
	}
	return doc, nil
}
