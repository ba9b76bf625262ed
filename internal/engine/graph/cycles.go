package graph

import "sort"

// DefaultCycleLimit caps FindCycles when no limit is given.
const DefaultCycleLimit = 100

// FindCycles lists the simple cycles of the call graph, at most limit of
// them (DefaultCycleLimit when limit <= 0). Each cycle starts at its
// smallest node id, and cycles are ordered by that start node, so the
// result is the same on every run. A function that calls itself is a
// cycle of length one.
func (g *CallGraph) FindCycles(limit int) [][]string {
	if limit <= 0 {
		limit = DefaultCycleLimit
	}
	g.mu.RLock()
	ids, adj := g.adjacencyLocked()
	g.mu.RUnlock()

	j := &johnson{limit: limit}
	for i, start := range ids {
		if len(j.cycles) >= limit {
			break
		}
		sub := restrict(ids[i:], adj)
		_, components := stronglyConnectedComponents(ids[i:], sub)
		comp := componentWith(components, start)
		if comp == nil {
			continue
		}
		if len(comp) == 1 && !contains(sub[start], start) {
			continue
		}
		j.run(start, restrict(comp, sub))
	}
	return j.cycles
}

// johnson holds the search state of Johnson's elementary circuit algorithm.
type johnson struct {
	limit   int
	cycles  [][]string
	start   string
	adj     map[string][]string
	stack   []string
	blocked map[string]bool
	blockOf map[string]map[string]bool
}

func (j *johnson) run(start string, adj map[string][]string) {
	j.start = start
	j.adj = adj
	j.stack = j.stack[:0]
	j.blocked = make(map[string]bool)
	j.blockOf = make(map[string]map[string]bool)
	j.circuit(start)
}

func (j *johnson) circuit(v string) bool {
	found := false
	j.stack = append(j.stack, v)
	j.blocked[v] = true

	for _, w := range j.adj[v] {
		if len(j.cycles) >= j.limit {
			break
		}
		if w == j.start {
			cycle := make([]string, len(j.stack))
			copy(cycle, j.stack)
			j.cycles = append(j.cycles, cycle)
			found = true
		} else if !j.blocked[w] && j.circuit(w) {
			found = true
		}
	}

	if found {
		j.unblock(v)
	} else {
		for _, w := range j.adj[v] {
			if j.blockOf[w] == nil {
				j.blockOf[w] = make(map[string]bool)
			}
			j.blockOf[w][v] = true
		}
	}
	j.stack = j.stack[:len(j.stack)-1]
	return found
}

func (j *johnson) unblock(u string) {
	j.blocked[u] = false
	for w := range j.blockOf[u] {
		delete(j.blockOf[u], w)
		if j.blocked[w] {
			j.unblock(w)
		}
	}
}

// restrict keeps only edges between members of nodes.
func restrict(nodes []string, adj map[string][]string) map[string][]string {
	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n] = true
	}
	out := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for _, w := range adj[n] {
			if keep[w] {
				out[n] = append(out[n], w)
			}
		}
	}
	return out
}

func componentWith(components [][]string, id string) []string {
	for _, c := range components {
		if contains(c, id) {
			return c
		}
	}
	return nil
}

func contains(list []string, id string) bool {
	for _, s := range list {
		if s == id {
			return true
		}
	}
	return false
}

// stronglyConnectedComponents is Tarjan's algorithm. Components come out
// in reverse topological order with their members sorted.
func stronglyConnectedComponents(nodes []string, adjacency map[string][]string) (map[string]int, [][]string) {
	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indexByNode := make(map[string]int, len(nodes))
	lowLink := make(map[string]int, len(nodes))
	componentOf := make(map[string]int, len(nodes))
	var components [][]string

	var strongConnect func(string)
	strongConnect = func(v string) {
		indexByNode[v] = index
		lowLink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, seen := indexByNode[w]; !seen {
				strongConnect(w)
				lowLink[v] = min(lowLink[v], lowLink[w])
			} else if onStack[w] {
				lowLink[v] = min(lowLink[v], indexByNode[w])
			}
		}
		if lowLink[v] != indexByNode[v] {
			return
		}

		var component []string
		for {
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[last] = false
			component = append(component, last)
			if last == v {
				break
			}
		}
		sort.Strings(component)
		for _, n := range component {
			componentOf[n] = len(components)
		}
		components = append(components, component)
	}

	for _, n := range nodes {
		if _, seen := indexByNode[n]; !seen {
			strongConnect(n)
		}
	}
	return componentOf, components
}
