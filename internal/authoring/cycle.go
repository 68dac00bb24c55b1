package authoring

import (
	"fmt"
	"strings"

	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
)

// CycleError reports compound expressions that reference each other.
type CycleError struct {
	Path []string // Cycle path: ["a", "b", "a"]
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: expression cycle: %s", ErrCodeExpressionCycle, strings.Join(e.Path, " → "))
}

// OrderExpressions sorts exprs so every sub-expression defined in the same
// list precedes the compounds that reference it. Authored order is kept
// wherever dependencies allow.
//
// Expressions on a cycle are dropped and reported as CycleErrors, since the
// evaluator only accepts references to expressions already registered.
// References to names outside exprs are left for registration to resolve.
//
// The algorithm:
//  1. Build expression → sub-expression edges from compound elements
//  2. Run Tarjan's algorithm in authored order and report every SCC with
//     size > 1 or a self-loop
//  3. Walk the remaining expressions in authored order, placing each
//     expression's dependencies before it
func OrderExpressions(exprs []engine.ExpressionSpec) ([]engine.ExpressionSpec, []error) {
	byName := make(map[string]int, len(exprs))
	nodes := make([]string, 0, len(exprs))
	for i, x := range exprs {
		if _, dup := byName[x.Name]; dup {
			continue
		}
		byName[x.Name] = i
		nodes = append(nodes, x.Name)
	}

	keys := make(map[ir.ExpressionKey]string, len(nodes))
	for _, name := range nodes {
		keys[exprs[byName[name]].ExpressionKey()] = name
	}
	graph := make(dependencyGraph, len(nodes))
	for _, name := range nodes {
		graph[name] = []string{}
		x := exprs[byName[name]]
		if x.Kind != expression.KindCompound {
			continue
		}
		for _, c := range x.Compounds {
			if sub, ok := keys[c.Expression]; ok {
				graph[name] = append(graph[name], sub)
			}
		}
	}

	var (
		ordered []engine.ExpressionSpec
		errs    []error
		emitted = make(map[string]bool, len(nodes))
	)
	for _, scc := range tarjanSCC(nodes, graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			errs = append(errs, &CycleError{Path: reconstructCyclePath(scc, graph)})
			continue
		}
		emitted[scc[0]] = true
	}

	// Re-emit in authored order, pulling dependencies forward as needed.
	placed := make(map[string]bool, len(nodes))
	var place func(name string)
	place = func(name string) {
		if placed[name] || !emitted[name] {
			return
		}
		placed[name] = true
		for _, dep := range graph[name] {
			place(dep)
		}
		ordered = append(ordered, exprs[byName[name]])
	}
	for _, name := range nodes {
		place(name)
	}

	// Duplicates are passed through so registration reports them.
	for i, x := range exprs {
		if byName[x.Name] != i {
			ordered = append(ordered, x)
		}
	}
	return ordered, errs
}

// dependencyGraph maps expression name → sub-expression names.
type dependencyGraph map[string][]string

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in the given order so the result is deterministic.
func tarjanSCC(nodes []string, graph dependencyGraph) [][]string {
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

		// v is a root node: pop the stack and create an SCC
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

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath builds a closed path through an SCC, starting at the
// SCC's first node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
