package expression

import (
	"fmt"
	"regexp"
	"strings"
)

// CaptureGroup maps one {parameter} in source order to the regex capture
// group index(es) that hold its matched text. Most parameter types occupy
// a single group; `string` occupies two (one per quote style, per spec
// §4.1) of which exactly one will be non-empty in any given match.
type CaptureGroup struct {
	ParamName    string
	ParameterType ParameterType
	GroupIndexes []int
}

// Expression is a compiled Cucumber Expression: an anchored regex plus the
// metadata needed to turn a successful match back into named captures
// (spec §4.1, §6.2).
type Expression struct {
	Source   string
	Pattern  string
	Regexp   *regexp.Regexp
	Captures []CaptureGroup
}

// Compile parses src and lowers it to an anchored regular expression,
// resolving each {parameter} against provider (falling back to the
// built-in types when provider is nil).
func Compile(src string, provider ParameterProvider) (*Expression, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		provider = NewRegistry()
	}

	c := &compiler{provider: provider, groupCount: 0}
	var b strings.Builder
	b.WriteString("^")
	if err := c.writeNodes(&b, nodes); err != nil {
		return nil, err
	}
	b.WriteString("$")

	pattern := b.String()
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	return &Expression{Source: src, Pattern: pattern, Regexp: re, Captures: c.captures}, nil
}

type compiler struct {
	provider   ParameterProvider
	groupCount int
	captures   []CaptureGroup
}

func (c *compiler) writeNodes(b *strings.Builder, nodes []Node) error {
	for _, n := range nodes {
		if err := c.writeNode(b, n); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) writeNode(b *strings.Builder, n Node) error {
	switch n.Kind {
	case NodeText:
		b.WriteString(regexp.QuoteMeta(n.Text))
	case NodeSpace:
		// A literal space matches a run of whitespace, not just one
		// space character, mirroring the reference cucumber-expressions
		// implementations.
		b.WriteString(`\s+`)
	case NodeParameter:
		pt, ok := c.provider.Lookup(n.Name)
		if !ok {
			return fmt.Errorf("undefined parameter type %q", n.Name)
		}
		groups := pt.Groups
		if groups <= 0 {
			groups = 1
		}
		indexes := make([]int, groups)
		for i := 0; i < groups; i++ {
			c.groupCount++
			indexes[i] = c.groupCount
		}
		if groups == 1 {
			b.WriteString("(")
			b.WriteString(pt.Pattern)
			b.WriteString(")")
		} else {
			// Multi-group custom/string types supply their own capturing
			// groups; wrap in a non-capturing group so the type's
			// internal '|' alternation can't leak into the surrounding
			// sequence (e.g. breaking the expression's anchors).
			b.WriteString("(?:")
			b.WriteString(pt.Pattern)
			b.WriteString(")")
		}
		c.captures = append(c.captures, CaptureGroup{ParamName: n.Name, ParameterType: pt, GroupIndexes: indexes})
	case NodeOptional:
		b.WriteString("(?:")
		if err := c.writeNodes(b, n.Children); err != nil {
			return err
		}
		b.WriteString(")?")
	case NodeAlternation:
		b.WriteString("(?:")
		for i, branch := range n.Branches {
			if i > 0 {
				b.WriteString("|")
			}
			if err := c.writeNodes(b, branch); err != nil {
				return err
			}
		}
		b.WriteString(")")
	default:
		return fmt.Errorf("unknown node kind %d", n.Kind)
	}
	return nil
}

// Match attempts to match text against the compiled expression, returning
// one event.Match-shaped pair per parameter in source order. The second
// return value is false if text did not match at all.
func (e *Expression) Match(text string) ([]CapturedValue, bool) {
	groups := e.Regexp.FindStringSubmatch(text)
	if groups == nil {
		return nil, false
	}
	out := make([]CapturedValue, 0, len(e.Captures))
	for _, cap := range e.Captures {
		value := ""
		found := false
		for _, idx := range cap.GroupIndexes {
			if idx < len(groups) && groups[idx] != "" {
				value = groups[idx]
				found = true
				break
			}
		}
		_ = found
		out = append(out, CapturedValue{Name: cap.ParamName, Text: value, Type: cap.ParameterType})
	}
	return out, true
}

// CapturedValue is one resolved {parameter} from a successful Match.
type CapturedValue struct {
	Name string
	Text string
	Type ParameterType
}
