package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// detectCycles finds cycles in the dependency graph. Unlike advisory
// lint checks, a cycle here is a hard error: an operation in a cycle
// waits on its own completion through the other members and can never
// start.
//
// The graph maps operation name to dependency names; strongly connected
// components of size > 1, and self-loops, are cycles.
func detectCycles(p *Pipeline) []ValidationError {
	graph := make(map[string][]string, len(p.Ops))
	for _, op := range p.Ops {
		graph[op.Name] = append([]string{}, op.DependsOn...)
	}

	var errs []ValidationError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			sort.Strings(scc)
			errs = append(errs, ValidationError{
				Field:   "operation." + scc[0] + ".dependsOn",
				Message: fmt.Sprintf("dependency cycle: %s", strings.Join(scc, " <-> ")),
				Code:    ErrDependencyCycle,
			})
		}
	}
	return errs
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, dep := range graph[node] {
		if dep == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components with Tarjan's
// algorithm. Single nodes without self-loops come back as singleton
// components; the caller filters those out.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Deterministic visit order keeps error output stable.
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}
