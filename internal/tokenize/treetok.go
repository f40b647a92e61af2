package tokenize

import (
	"strconv"
	"strings"

	"github.com/corpusindex/corpusindex/internal/index"
)

// TreeKind selects which structural feature a Tree tokenizer extracts from a
// document's parse trees.
type TreeKind int

const (
	// Subtree counts occurrences of each node together with its immediate
	// children's tags.
	Subtree TreeKind = iota
	// Depth records the height of each of the document's trees.
	Depth
	// Branch counts the branching factor of every interior node.
	Branch
	// Tag counts occurrences of leaf and interior node labels.
	Tag
	// Skeleton ignores labels and counts each node's bare structure.
	Skeleton
	// SemiSkeleton keeps one node's tag plus the structure beneath it.
	SemiSkeleton
)

var treeKindNames = map[TreeKind]string{
	Subtree:      "subtree",
	Depth:        "depth",
	Branch:       "branch",
	Tag:          "tag",
	Skeleton:     "skeleton",
	SemiSkeleton: "semi-skeleton",
}

// Tree tokenizes parse trees with the selected structural feature. The
// document content is expected to hold one or more bracketed parse trees.
type Tree struct {
	base
	kind TreeKind
}

// NewTree creates a parse-tree tokenizer of the given kind.
func NewTree(kind TreeKind) *Tree {
	return &Tree{base: newBase(), kind: kind}
}

func (t *Tree) name() string { return "tree-" + treeKindNames[t.kind] }

func (t *Tree) Tokenize(doc *index.Document, docFreq map[index.TermID]uint64) error {
	counts, err := t.counts(doc)
	if err != nil {
		return err
	}
	t.assign(doc, t.name(), counts, docFreq)
	return nil
}

func (t *Tree) counts(doc *index.Document) (map[string]uint64, error) {
	trees, err := ParseTrees(doc.Content)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]uint64)
	for _, tree := range trees {
		switch t.kind {
		case Depth:
			counts[strconv.Itoa(tree.Height())]++
		case Tag:
			tree.Walk(func(n *ParseTree) {
				counts[n.Tag]++
			})
		case Branch:
			tree.Walk(func(n *ParseTree) {
				if !n.IsLeaf() {
					counts[strconv.Itoa(len(n.Children))]++
				}
			})
		case Subtree:
			tree.Walk(func(n *ParseTree) {
				counts[subtreeSignature(n)]++
			})
		case Skeleton:
			tree.Walk(func(n *ParseTree) {
				counts[skeletonSignature(n)]++
			})
		case SemiSkeleton:
			tree.Walk(func(n *ParseTree) {
				counts[n.Tag+skeletonSignature(n)]++
			})
		}
	}
	return counts, nil
}

// subtreeSignature is a node's tag plus its immediate children's tags.
func subtreeSignature(n *ParseTree) string {
	if n.IsLeaf() {
		return n.Tag
	}
	tags := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		tags = append(tags, c.Tag)
	}
	return n.Tag + "(" + strings.Join(tags, " ") + ")"
}

// skeletonSignature is the full structure beneath a node with all labels
// erased.
func skeletonSignature(n *ParseTree) string {
	if n.IsLeaf() {
		return "()"
	}
	var b strings.Builder
	b.WriteByte('(')
	for _, c := range n.Children {
		b.WriteString(skeletonSignature(c))
	}
	b.WriteByte(')')
	return b.String()
}
