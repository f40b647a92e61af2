package tokenize

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseTree is one node of a constituency parse. Leaf nodes carry the token
// itself in Tag. Trees are read from the compact bracketed form
// "(S (NP (DT the) (NN dog)) (VP (VBD ran)))"; a document may contain any
// number of trees, one per sentence.
type ParseTree struct {
	Tag      string
	Children []*ParseTree
}

// IsLeaf reports whether the node has no children.
func (t *ParseTree) IsLeaf() bool {
	return len(t.Children) == 0
}

// Height returns the number of levels in the tree; a leaf has height 1.
func (t *ParseTree) Height() int {
	max := 0
	for _, c := range t.Children {
		if h := c.Height(); h > max {
			max = h
		}
	}
	return max + 1
}

// Walk visits the node and all descendants in pre-order.
func (t *ParseTree) Walk(fn func(*ParseTree)) {
	fn(t)
	for _, c := range t.Children {
		c.Walk(fn)
	}
}

// String renders the tree back into its bracketed form.
func (t *ParseTree) String() string {
	if t.IsLeaf() {
		return t.Tag
	}
	parts := make([]string, 0, len(t.Children)+1)
	parts = append(parts, t.Tag)
	for _, c := range t.Children {
		parts = append(parts, c.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// ParseTrees parses a sequence of bracketed trees from s.
func ParseTrees(s string) ([]*ParseTree, error) {
	p := &treeParser{input: s}
	var trees []*ParseTree
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			break
		}
		tree, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("no parse trees in input")
	}
	return trees, nil
}

type treeParser struct {
	input string
	pos   int
}

func (p *treeParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

// parseNode parses either a bracketed node "(TAG child...)" or a bare leaf
// token.
func (p *treeParser) parseNode() (*ParseTree, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of tree at offset %d", p.pos)
	}
	if p.input[p.pos] != '(' {
		return &ParseTree{Tag: p.readToken()}, nil
	}
	p.pos++ // consume '('
	p.skipSpace()
	tag := p.readToken()
	if tag == "" {
		return nil, fmt.Errorf("missing node tag at offset %d", p.pos)
	}
	node := &ParseTree{Tag: tag}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("unbalanced parentheses in tree")
		}
		if p.input[p.pos] == ')' {
			p.pos++
			return node, nil
		}
		child, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
}

func (p *treeParser) readToken() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '(' || c == ')' || unicode.IsSpace(rune(c)) {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}
