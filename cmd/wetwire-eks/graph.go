package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-eks-go/internal/graph"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		outputFormat string
		hideOutputs  bool
		cluster      bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the dependency graph of a stack",
		Long: `Generate a DOT or Mermaid graph of a stack's resources and their
dependencies. Blue edges are role references embedded in manifests or outputs.

The output can be rendered with Graphviz:
    wetwire-eks graph --stack EksIrsa | dot -Tpng -o deps.png

Or used in GitHub markdown (Mermaid format):
    wetwire-eks graph --stack EksIrsa -f mermaid

Examples:
    wetwire-eks graph --stack StatefulCluster -c        # cluster by add-on
    wetwire-eks graph --stack StatefulCluster --hide-outputs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var format graph.Format
			switch outputFormat {
			case "dot":
				format = graph.FormatDOT
			case "mermaid":
				format = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			b, err := a.onePlan(cmd.Context())
			if err != nil {
				return err
			}

			gen := &graph.Generator{
				Format:             format,
				HideOutputs:        hideOutputs,
				ClusterByComponent: cluster,
			}
			return gen.Generate(b.Plan, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVar(&hideOutputs, "hide-outputs", false, "Leave stack outputs out of the graph")
	cmd.Flags().BoolVarP(&cluster, "cluster", "c", false, "Cluster resources by add-on")

	return cmd
}
