package expression

// NodeKind tags a Node's variant, the enum-plus-struct translation of what
// would be a Rust sum type.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeSpace
	NodeParameter
	NodeOptional
	NodeAlternation
)

// Node is one element of a parsed Cucumber Expression, per the grammar in
// spec §4.1. Only the fields relevant to Kind are populated.
type Node struct {
	Kind NodeKind

	Text string // NodeText: literal run, already unescaped

	Name string // NodeParameter: the parameter's name

	Children []Node // NodeOptional: the optional's body

	Branches [][]Node // NodeAlternation: each branch's node list
}

func textNode(s string) Node          { return Node{Kind: NodeText, Text: s} }
func spaceNode() Node                 { return Node{Kind: NodeSpace} }
func parameterNode(name string) Node  { return Node{Kind: NodeParameter, Name: name} }
func optionalNode(children []Node) Node {
	return Node{Kind: NodeOptional, Children: children}
}
func alternationNode(branches [][]Node) Node {
	return Node{Kind: NodeAlternation, Branches: branches}
}
