package graph

import (
	"sort"
	"strings"
)

// Coupling describes how a node sits in the call graph.
//
// Instability is Efferent / (Afferent + Efferent), 0 for isolated nodes.
// Depth is the longest chain of calls leaving the node, counting every
// mutually recursive group as one step.
type Coupling struct {
	Afferent    int     `json:"afferent"`
	Efferent    int     `json:"efferent"`
	Instability float64 `json:"instability"`
	Depth       int     `json:"depth"`
	Score       float64 `json:"score"`
}

func (c Coupling) Degree() int { return c.Afferent + c.Efferent }

// Ranked is one entry of TopCoupled.
type Ranked struct {
	ID string `json:"id"`
	Coupling
}

func (g *CallGraph) CouplingMetrics() map[string]Coupling {
	g.mu.RLock()
	ids, adj := g.adjacencyLocked()
	complexity := make(map[string]int, len(ids))
	for _, id := range ids {
		complexity[id] = g.nodes[id].Complexity
	}
	g.mu.RUnlock()

	fanIn := make(map[string]int, len(ids))
	for _, from := range ids {
		for _, to := range adj[from] {
			fanIn[to]++
		}
	}
	depth := callDepth(ids, adj)

	out := make(map[string]Coupling, len(ids))
	for _, id := range ids {
		ca, ce := fanIn[id], len(adj[id])
		c := Coupling{
			Afferent: ca,
			Efferent: ce,
			Depth:    depth[id],
			Score:    importance(ca, ce, complexity[id], id),
		}
		if ca+ce > 0 {
			c.Instability = float64(ce) / float64(ca+ce)
		}
		out[id] = c
	}
	return out
}

// TopCoupled returns the n nodes with the most incoming plus outgoing
// calls, ties broken by id.
func (g *CallGraph) TopCoupled(n int) []Ranked {
	if n <= 0 {
		return nil
	}
	metrics := g.CouplingMetrics()
	ranked := make([]Ranked, 0, len(metrics))
	for id, c := range metrics {
		ranked = append(ranked, Ranked{ID: id, Coupling: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		di, dj := ranked[i].Degree(), ranked[j].Degree()
		if di == dj {
			return ranked[i].ID < ranked[j].ID
		}
		return di > dj
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func callDepth(ids []string, adj map[string][]string) map[string]int {
	componentOf, components := stronglyConnectedComponents(ids, adj)
	next := make([]map[int]bool, len(components))
	for _, from := range ids {
		fc := componentOf[from]
		for _, to := range adj[from] {
			if tc := componentOf[to]; tc != fc {
				if next[fc] == nil {
					next[fc] = make(map[int]bool)
				}
				next[fc][tc] = true
			}
		}
	}

	// Tarjan emits sinks first, so every successor is settled before its
	// predecessors.
	depthOf := make([]int, len(components))
	for c := range components {
		for succ := range next[c] {
			depthOf[c] = max(depthOf[c], depthOf[succ]+1)
		}
	}

	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = depthOf[componentOf[id]]
	}
	return out
}

// importance weighs callers over callees and adds half the cyclomatic
// complexity. Entry points get a fixed bonus.
func importance(fanIn, fanOut, complexity int, id string) float64 {
	score := float64(fanIn*2) + float64(fanOut) + float64(complexity)*0.5
	if isEntryPoint(id) {
		score += 10
	}
	return score
}

func isEntryPoint(id string) bool {
	name := strings.ToLower(id[strings.LastIndex(id, ".")+1:])
	switch name {
	case "main", "run", "__call__", "handle":
		return true
	}
	return strings.HasSuffix(name, "_handler") || strings.HasSuffix(name, "_view")
}
