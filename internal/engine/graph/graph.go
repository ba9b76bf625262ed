// Package graph builds the intra-file call graph of a Python module and
// derives cycles and coupling metrics from it.
package graph

import (
	"sort"
	"sync"

	"pyscan/internal/engine/ir"
)

type NodeKind string

const (
	KindFunction NodeKind = "function"
	KindMethod   NodeKind = "method"
	KindClass    NodeKind = "class"
)

type Node struct {
	ID         string   `json:"id"`
	Kind       NodeKind `json:"kind"`
	Line       int      `json:"line"`
	Complexity int      `json:"complexity,omitempty"`
}

type CallEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Line of the first call site seen for this pair.
	Line int `json:"line"`
}

type CallGraph struct {
	mu sync.RWMutex

	nodes map[string]*Node

	calls    map[string]map[string]*CallEdge // caller -> callee -> edge
	calledBy map[string]map[string]bool      // callee -> caller
}

type Summary struct {
	Nodes     int `json:"nodes"`
	Edges     int `json:"edges"`
	Functions int `json:"functions"`
	Methods   int `json:"methods"`
	Classes   int `json:"classes"`
}

func New() *CallGraph {
	return &CallGraph{
		nodes:    make(map[string]*Node),
		calls:    make(map[string]map[string]*CallEdge),
		calledBy: make(map[string]map[string]bool),
	}
}

// Build creates one node per function, method and class of the model and
// a call edge for every call whose callee resolves to one of them.
// Class bodies do not produce edges to their methods; calls at module
// level have no caller and are ignored.
func Build(model *ir.Model) *CallGraph {
	g := New()
	for _, fn := range model.Functions {
		kind := KindFunction
		if fn.IsMethod() {
			kind = KindMethod
		}
		g.AddNode(Node{ID: fn.QualifiedName, Kind: kind, Line: fn.Span.Line, Complexity: fn.Complexity})
	}
	for _, cls := range model.Classes {
		g.AddNode(Node{ID: cls.Name, Kind: KindClass, Line: cls.Span.Line})
	}

	for _, site := range model.Calls() {
		caller := model.EnclosingFunction(site.Node)
		if caller == nil {
			continue
		}
		if callee := g.resolve(caller, site); callee != "" {
			g.AddCall(caller.QualifiedName, callee, site.Line)
		}
	}
	return g
}

// resolve maps a call site to a node id: f() to a function or class named
// f, self.m() and cls.m() to a method of the caller's class, and obj.m()
// to a node named "obj.m".
func (g *CallGraph) resolve(caller *ir.FunctionDescriptor, site ir.CallSite) string {
	var id string
	switch {
	case site.Receiver == "":
		id = site.Function
	case (site.Receiver == "self" || site.Receiver == "cls") && caller.Class != "":
		id = caller.Class + "." + site.Function
	default:
		id = site.Receiver + "." + site.Function
	}
	if g.HasNode(id) {
		return id
	}
	return ""
}

// AddNode inserts n, replacing any node with the same id.
func (g *CallGraph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node := n
	g.nodes[n.ID] = &node
}

// AddCall records a call from one node to another. Calls involving
// unknown nodes are dropped and reported as false.
func (g *CallGraph) AddCall(from, to string, line int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.nodes[from] == nil || g.nodes[to] == nil {
		return false
	}
	if g.calls[from] == nil {
		g.calls[from] = make(map[string]*CallEdge)
	}
	if _, exists := g.calls[from][to]; !exists {
		g.calls[from][to] = &CallEdge{From: from, To: to, Line: line}
	}
	if g.calledBy[to] == nil {
		g.calledBy[to] = make(map[string]bool)
	}
	g.calledBy[to][from] = true
	return true
}

func (g *CallGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id] != nil
}

func (g *CallGraph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns a copy of every node, sorted by id.
func (g *CallGraph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns every call edge ordered by caller then callee.
func (g *CallGraph) Edges() []CallEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []CallEdge
	for _, targets := range g.calls {
		for _, e := range targets {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From == out[j].From {
			return out[i].To < out[j].To
		}
		return out[i].From < out[j].From
	})
	return out
}

func (g *CallGraph) Callees(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.calls[id]))
	for to := range g.calls[id] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

func (g *CallGraph) Callers(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.calledBy[id]))
	for from := range g.calledBy[id] {
		out = append(out, from)
	}
	sort.Strings(out)
	return out
}

func (g *CallGraph) Summary() Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Summary{Nodes: len(g.nodes)}
	for _, targets := range g.calls {
		s.Edges += len(targets)
	}
	for _, n := range g.nodes {
		switch n.Kind {
		case KindFunction:
			s.Functions++
		case KindMethod:
			s.Methods++
		case KindClass:
			s.Classes++
		}
	}
	return s
}

// adjacencyLocked returns the sorted node ids and sorted successor lists.
// Caller must hold g.mu.
func (g *CallGraph) adjacencyLocked() ([]string, map[string][]string) {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	adj := make(map[string][]string, len(ids))
	for _, id := range ids {
		targets := make([]string, 0, len(g.calls[id]))
		for to := range g.calls[id] {
			targets = append(targets, to)
		}
		sort.Strings(targets)
		adj[id] = targets
	}
	return ids, adj
}
