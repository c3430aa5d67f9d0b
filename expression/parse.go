package expression

import "strings"

// Parse parses a Cucumber Expression string into an ordered Node list, per
// the grammar and failure taxonomy of spec §4.1.
func Parse(src string) ([]Node, error) {
	p := &parser{src: []rune(src), original: src}
	nodes, err := p.parseSequence(ctxTop)
	if err != nil {
		return nil, withExpr(err, src)
	}
	return nodes, nil
}

func withExpr(err error, src string) error {
	if pe, ok := err.(*ParseError); ok {
		pe.Expression = src
		return pe
	}
	return err
}

type parseCtx int

const (
	ctxTop parseCtx = iota
	ctxOptional
)

type parser struct {
	src      []rune
	original string
	pos      int
}

func isReserved(r rune) bool {
	switch r {
	case '{', '}', '(', ')', '\\', '/', ' ':
		return true
	default:
		return false
	}
}

// rawAtomKind classifies one lexical unit produced while scanning a
// sequence, before alternation grouping (which only ever applies at the
// top level — '/' inside an optional is always an immediate error) folds
// runs of atoms into the final Node list.
type rawAtomKind int

const (
	atomText rawAtomKind = iota
	atomParam
	atomOptional
	atomSpace
	atomSlash
)

type rawAtom struct {
	kind  rawAtomKind
	text  string
	node  Node // populated for atomParam / atomOptional
	start int
	end   int
}

// parseSequence scans a run of the source at the current nesting (top level
// or inside an already-opened optional) and returns the resolved Node list.
// When ctx == ctxOptional, the caller has already consumed the opening '(';
// parseSequence stops at (and consumes) the matching ')'.
func (p *parser) parseSequence(ctx parseCtx) ([]Node, error) {
	openParen := p.pos - 1 // only meaningful when ctx == ctxOptional
	bodyStart := p.pos
	var atoms []rawAtom

	for {
		if p.pos >= len(p.src) {
			if ctx == ctxOptional {
				return nil, newErr(UnfinishedOptional, openParen, p.pos)
			}
			return p.resolveAtoms(atoms)
		}

		r := p.src[p.pos]
		switch r {
		case ')':
			if ctx == ctxOptional {
				end := p.pos
				p.pos++
				if len(atoms) == 0 {
					return nil, newErr(EmptyOptional, bodyStart, bodyStart)
				}
				return p.resolveAtomsNoAlternation(atoms, end)
			}
			return nil, newErr(UnescapedReservedCharacter, p.pos, p.pos+1)

		case '(':
			if ctx == ctxOptional {
				return nil, newErr(NestedOptional, p.pos, p.pos+1)
			}
			start := p.pos
			p.pos++ // consume '('
			children, err := p.parseSequence(ctxOptional)
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, rawAtom{kind: atomOptional, node: optionalNode(children), start: start, end: p.pos})

		case '{':
			if ctx == ctxOptional {
				return nil, newErr(ParameterInOptional, p.pos, p.pos+1)
			}
			start := p.pos
			node, err := p.parseParameter()
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, rawAtom{kind: atomParam, node: node, start: start, end: p.pos})

		case '}':
			return nil, newErr(UnescapedReservedCharacter, p.pos, p.pos+1)

		case '/':
			if ctx == ctxOptional {
				return nil, newErr(AlternationInOptional, p.pos, p.pos+1)
			}
			atoms = append(atoms, rawAtom{kind: atomSlash, start: p.pos, end: p.pos + 1})
			p.pos++

		case ' ':
			atoms = append(atoms, rawAtom{kind: atomSpace, start: p.pos, end: p.pos + 1})
			p.pos++

		case '\\':
			start := p.pos
			lit, err := p.readEscape()
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, rawAtom{kind: atomText, text: lit, start: start, end: p.pos})

		default:
			start := p.pos
			for p.pos < len(p.src) && !isReserved(p.src[p.pos]) {
				p.pos++
			}
			atoms = append(atoms, rawAtom{kind: atomText, text: string(p.src[start:p.pos]), start: start, end: p.pos})
		}
	}
}

// readEscape consumes a backslash and the character it escapes, returning
// the literal text it produces. p.pos is at the backslash on entry.
func (p *parser) readEscape() (string, error) {
	start := p.pos
	p.pos++ // consume '\\'
	if p.pos >= len(p.src) {
		return "", newErr(EscapedNonReservedCharacter, start, p.pos)
	}
	r := p.src[p.pos]
	if !isReserved(r) {
		return "", newErr(EscapedNonReservedCharacter, start, p.pos+1)
	}
	p.pos++
	return string(r), nil
}

// parseParameter consumes a '{...}' parameter, p.pos at the opening brace.
func (p *parser) parseParameter() (Node, error) {
	startBrace := p.pos
	p.pos++ // consume '{'
	var b strings.Builder

	for {
		if p.pos >= len(p.src) {
			return Node{}, newErr(UnfinishedParameter, startBrace, p.pos)
		}
		r := p.src[p.pos]
		switch r {
		case '}':
			p.pos++
			return parameterNode(b.String()), nil
		case '{':
			return Node{}, newErr(NestedParameter, p.pos, p.pos+1)
		case '(':
			return Node{}, newErr(OptionalInParameter, p.pos, p.pos+1)
		case ')', '/', ' ':
			return Node{}, newErr(UnescapedReservedCharacter, p.pos, p.pos+1)
		case '\\':
			lit, err := p.readEscape()
			if err != nil {
				return Node{}, err
			}
			b.WriteString(lit)
		default:
			b.WriteRune(r)
			p.pos++
		}
	}
}

// resolveAtomsNoAlternation is used for an optional's body: '/' can never
// appear there (raised as AlternationInOptional as soon as it's seen), so
// atoms only ever contains atomText/atomOptional/atomSpace.
func (p *parser) resolveAtomsNoAlternation(atoms []rawAtom, _ int) ([]Node, error) {
	nodes := make([]Node, 0, len(atoms))
	for _, a := range atoms {
		switch a.kind {
		case atomText:
			nodes = append(nodes, textNode(a.text))
		case atomSpace:
			nodes = append(nodes, spaceNode())
		case atomOptional:
			nodes = append(nodes, a.node)
		}
	}
	return nodes, nil
}

// resolveAtoms folds a top-level atom stream into the final Node list,
// grouping maximal runs of {text, optional, slash} atoms — delimited by
// space/parameter atoms — into an Alternation node whenever the run
// contains a slash, per spec §4.1 ("alternation := alternative ('/'
// alternative)+").
func (p *parser) resolveAtoms(atoms []rawAtom) ([]Node, error) {
	var out []Node
	var run []rawAtom

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		nodes, err := p.resolveRun(run)
		if err != nil {
			return err
		}
		out = append(out, nodes...)
		run = nil
		return nil
	}

	for _, a := range atoms {
		switch a.kind {
		case atomSpace:
			if err := flush(); err != nil {
				return nil, err
			}
			out = append(out, spaceNode())
		case atomParam:
			if err := flush(); err != nil {
				return nil, err
			}
			out = append(out, a.node)
		default:
			run = append(run, a)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveRun resolves one maximal text/optional/slash run: if it contains
// no slash, each atom becomes its own Node; otherwise it becomes a single
// Alternation node with one branch per slash-delimited group.
func (p *parser) resolveRun(run []rawAtom) ([]Node, error) {
	hasSlash := false
	for _, a := range run {
		if a.kind == atomSlash {
			hasSlash = true
			break
		}
	}
	if !hasSlash {
		nodes := make([]Node, 0, len(run))
		for _, a := range run {
			if a.kind == atomText {
				nodes = append(nodes, textNode(a.text))
			} else {
				nodes = append(nodes, a.node)
			}
		}
		return nodes, nil
	}

	var branches [][]Node
	var cur []Node
	allOptionalSoFar := true
	anyTextInBranch := false
	lastSlashEnd := run[0].start

	flushBranch := func(emptySpanStart, emptySpanEnd int) error {
		if len(cur) == 0 {
			return newErr(EmptyAlternation, emptySpanStart, emptySpanEnd)
		}
		if !anyTextInBranch {
			// branch had only optional nodes: fine on its own, tracked at
			// the alternation level via allOptionalSoFar below.
		}
		branches = append(branches, cur)
		cur = nil
		anyTextInBranch = false
		return nil
	}

	for _, a := range run {
		switch a.kind {
		case atomSlash:
			if err := flushBranch(lastSlashEnd, a.start); err != nil {
				return nil, err
			}
			lastSlashEnd = a.end
		case atomText:
			cur = append(cur, textNode(a.text))
			anyTextInBranch = true
			allOptionalSoFar = false
		case atomOptional:
			cur = append(cur, a.node)
		}
	}
	if err := flushBranch(lastSlashEnd, run[len(run)-1].end); err != nil {
		return nil, err
	}

	if allOptionalSoFar {
		return nil, newErr(OnlyOptionalInAlternation, run[0].start, run[len(run)-1].end)
	}
	return []Node{alternationNode(branches)}, nil
}
