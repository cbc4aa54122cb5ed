package pex

import (
	"fmt"
	"strings"
)

// DotString renders the tree in graphviz DOT format for inspection with the
// floxer-pex-dot tool.
func (t *Tree) DotString() string {
	var b strings.Builder
	root := t.Root()
	fmt.Fprintf(&b,
		"graph {\nlabel = \"PEX tree for query length %d, %d errors and leaf threshold %d (%d leaves)\";\n"+
			"labelloc = \"t\";\nnode [shape=record];\n",
		root.QueryIndexTo, root.NumErrors, t.leafMaxNumErrors, t.NumLeaves(),
	)
	id := 0
	for _, node := range t.innerNodes {
		addNodeToDotStatement(&b, node, id)
		id++
	}
	for _, leaf := range t.leaves {
		addNodeToDotStatement(&b, leaf, id)
		id++
	}
	b.WriteString("}\n")
	return b.String()
}

func addNodeToDotStatement(b *strings.Builder, node Node, id int) {
	fmt.Fprintf(b, "%d [label=\"errors: %d\\nlength: %d\\nrange: [%d,%d)\"];\n",
		id, node.NumErrors, node.LengthOfQuerySpan(), node.QueryIndexFrom, node.QueryIndexTo)
	if !node.IsRoot() {
		fmt.Fprintf(b, "%d -- %d;\n", id, node.ParentID)
	}
}
