// Package plan holds the resources a synthesis pass declares and the
// dependency edges between them.
//
// A Plan is written once, in declaration order, by the composition layer
// and read by the emitters. Edges are declarative: "from" must not be
// considered complete before every "to" is.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// Plan is an ordered set of nodes plus dependency edges.
type Plan struct {
	cluster Cluster
	nodes   []Node
	index   map[ID]int
	deps    map[ID][]ID
}

// New returns an empty plan targeting cluster.
func New(cluster Cluster) *Plan {
	return &Plan{
		cluster: cluster,
		index:   make(map[ID]int),
		deps:    make(map[ID][]ID),
	}
}

// Cluster returns the target cluster.
func (p *Plan) Cluster() Cluster { return p.cluster }

// Add appends a node. Ids must be unique and non-empty. Every attribute
// token embedded in n becomes an edge onto the node it names, so that node
// must already be in the plan.
func (p *Plan) Add(n Node) error {
	id := n.NodeID()
	if id == "" {
		return failure.Newf(failure.MissingRequiredField, "add node", n.NodeKind().String(), "empty id")
	}
	if _, ok := p.index[id]; ok {
		return failure.Newf(failure.InvalidSpec, "add node", string(id), "duplicate id")
	}

	var refs []ID
	for _, ref := range References(n) {
		if ref.ID == id {
			return failure.Newf(failure.InvalidSpec, "add node", string(id), "node references itself")
		}
		if _, ok := p.index[ref.ID]; !ok {
			return failure.Newf(failure.InvalidSpec, "add node", string(id), "references undeclared node %q", ref.ID)
		}
		if !contains(refs, ref.ID) {
			refs = append(refs, ref.ID)
		}
	}

	p.index[id] = len(p.nodes)
	p.nodes = append(p.nodes, n)
	if len(refs) > 0 {
		p.deps[id] = refs
	}
	return nil
}

// AddDependency records that from depends on every node in to. Repeated
// edges are ignored.
func (p *Plan) AddDependency(from ID, to ...ID) error {
	if _, ok := p.index[from]; !ok {
		return failure.Newf(failure.InvalidSpec, "add dependency", string(from), "unknown node")
	}
	for _, t := range to {
		if _, ok := p.index[t]; !ok {
			return failure.Newf(failure.InvalidSpec, "add dependency", string(from), "unknown dependency %q", t)
		}
		if t == from {
			return failure.Newf(failure.InvalidSpec, "add dependency", string(from), "node depends on itself")
		}
		if !contains(p.deps[from], t) {
			p.deps[from] = append(p.deps[from], t)
		}
	}
	return nil
}

// Get returns the node with id.
func (p *Plan) Get(id ID) (Node, bool) {
	i, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return p.nodes[i], true
}

// Nodes returns every node in declaration order.
func (p *Plan) Nodes() []Node {
	out := make([]Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Len returns the number of nodes.
func (p *Plan) Len() int { return len(p.nodes) }

// Dependencies returns the direct dependencies of id in declaration order.
func (p *Plan) Dependencies(id ID) []ID {
	out := make([]ID, len(p.deps[id]))
	copy(out, p.deps[id])
	sort.Slice(out, func(i, j int) bool { return p.index[out[i]] < p.index[out[j]] })
	return out
}

// DependsOn reports whether from depends on to, directly or transitively.
func (p *Plan) DependsOn(from, to ID) bool {
	seen := map[ID]bool{}
	stack := []ID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range p.deps[cur] {
			if d == to {
				return true
			}
			if !seen[d] {
				seen[d] = true
				stack = append(stack, d)
			}
		}
	}
	return false
}

// Order returns the nodes so that every node follows its dependencies.
// Among nodes that are ready at the same time, declaration order wins.
func (p *Plan) Order() ([]Node, error) {
	dependents := make(map[ID][]ID)
	inDegree := make(map[ID]int, len(p.nodes))
	for _, n := range p.nodes {
		id := n.NodeID()
		inDegree[id] = len(p.deps[id])
		for _, d := range p.deps[id] {
			dependents[d] = append(dependents[d], id)
		}
	}

	// Kahn's algorithm over declaration indexes.
	var ready []int
	for i, n := range p.nodes {
		if inDegree[n.NodeID()] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]Node, 0, len(p.nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		n := p.nodes[i]
		out = append(out, n)

		for _, dep := range dependents[n.NodeID()] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, p.index[dep])
				sort.Ints(ready)
			}
		}
	}

	if len(out) != len(p.nodes) {
		return nil, p.detectCycle()
	}
	return out, nil
}

func (p *Plan) detectCycle() error {
	visited := make(map[ID]bool)
	onPath := make(map[ID]bool)

	var path, cycle []ID
	var find func(id ID) bool
	find = func(id ID) bool {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)
		for _, d := range p.Dependencies(id) {
			if !visited[d] {
				if find(d) {
					return true
				}
			} else if onPath[d] {
				for i, x := range path {
					if x == d {
						cycle = append(append([]ID{}, path[i:]...), d)
						break
					}
				}
				return true
			}
		}
		path = path[:len(path)-1]
		onPath[id] = false
		return false
	}

	for _, n := range p.nodes {
		if !visited[n.NodeID()] && find(n.NodeID()) {
			break
		}
	}

	if len(cycle) == 0 {
		return errors.New("circular dependency detected")
	}
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = string(id)
	}
	return failure.New(failure.InvalidSpec, "order plan", "",
		fmt.Errorf("circular dependency detected:\n  %s", strings.Join(parts, "\n    → ")))
}

func contains(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
