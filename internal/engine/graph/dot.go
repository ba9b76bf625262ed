package graph

import (
	"bufio"
	"fmt"
	"io"
)

var dotColors = map[NodeKind]string{
	KindFunction: "lightblue",
	KindClass:    "lightgreen",
	KindMethod:   "lightcoral",
}

// WriteDOT renders the graph in Graphviz DOT format, with nodes coloured
// by kind.
func (g *CallGraph) WriteDOT(w io.Writer, name string) error {
	if name == "" {
		name = "calls"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %q {\n", name)
	fmt.Fprintln(bw, "  node [style=filled];")
	for _, n := range g.Nodes() {
		fmt.Fprintf(bw, "  %q [label=%q, fillcolor=%q];\n", n.ID, n.ID, dotColors[n.Kind])
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "  %q -> %q;\n", e.From, e.To)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
