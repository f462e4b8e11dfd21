// Package graph renders a plan's dependency graph in DOT and Mermaid format.
package graph

import (
	"io"
	"strings"

	"github.com/emicklei/dot"

	"github.com/lex00/wetwire-eks-go/internal/plan"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs from plans.
type Generator struct {
	// HideOutputs leaves stack outputs out of the graph.
	HideOutputs bool

	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByComponent groups nodes under their top-level id, so every
	// node of an add-on lands in one box.
	ClusterByComponent bool
}

// Generate creates a dependency graph and writes it to w.
func (g *Generator) Generate(p *plan.Plan, w io.Writer) error {
	graph := g.buildGraph(p)

	var output string
	if g.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := io.WriteString(w, output)
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(p *plan.Plan) (string, error) {
	var sb strings.Builder
	if err := g.Generate(p, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(p *plan.Plan) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	var nodes []plan.Node
	for _, n := range p.Nodes() {
		if g.HideOutputs && n.NodeKind() == plan.KindOutput {
			continue
		}
		nodes = append(nodes, n)
	}

	// Dependencies that come from an attribute token are drawn in blue.
	tokenRefs := make(map[string]bool)
	for _, n := range nodes {
		for _, ref := range plan.References(n) {
			tokenRefs[string(n.NodeID())+"->"+string(ref.ID)] = true
		}
	}

	if g.ClusterByComponent {
		g.addClusteredNodes(graph, nodes)
	} else {
		for _, n := range nodes {
			addNode(graph, n)
		}
	}

	shown := make(map[plan.ID]bool, len(nodes))
	for _, n := range nodes {
		shown[n.NodeID()] = true
	}
	for _, n := range nodes {
		from := graph.Node(string(n.NodeID()))
		for _, dep := range p.Dependencies(n.NodeID()) {
			if !shown[dep] {
				continue
			}
			e := graph.Edge(from, graph.Node(string(dep)))
			if tokenRefs[string(n.NodeID())+"->"+string(dep)] {
				e.Attr("color", "blue")
			}
		}
	}

	return graph
}

// addClusteredNodes groups nodes by their first id element.
func (g *Generator) addClusteredNodes(graph *dot.Graph, nodes []plan.Node) {
	var order []string
	groups := make(map[string][]plan.Node)
	for _, n := range nodes {
		c := component(n.NodeID())
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], n)
	}

	for _, c := range order {
		members := groups[c]
		if len(members) == 1 {
			addNode(graph, members[0])
			continue
		}
		sub := graph.Subgraph("cluster_"+c, dot.ClusterOption{})
		sub.Attr("label", c)
		sub.Attr("style", "rounded")
		sub.Attr("bgcolor", "lightyellow")
		for _, n := range members {
			addNode(sub, n)
		}
	}
}

func addNode(graph *dot.Graph, n plan.Node) {
	node := graph.Node(string(n.NodeID()))
	node.Label(string(n.NodeID()) + "\\n[" + n.NodeKind().String() + "]")
	switch n.NodeKind() {
	case plan.KindServiceAccount:
		node.Attr("style", "filled")
		node.Attr("fillcolor", "lightblue")
	case plan.KindOutput:
		node.Attr("shape", "ellipse")
		node.Attr("style", "dashed")
	}
}

// component returns the first element of id: "k8sAddOns/external-dns/identity"
// belongs to "k8sAddOns".
func component(id plan.ID) string {
	s := string(id)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}
