package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/config"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/stacks"
)

func newListCmd(a *app) *cobra.Command {
	var (
		outputFormat string
		resources    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered stacks and their resources",
		Long: `List shows the registered stacks and which are enabled. With --resources it
declares the selected stacks and lists every resource in dependency order.

Examples:
    wetwire-eks list
    wetwire-eks list --resources --stack EksIrsa
    wetwire-eks list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, a, outputFormat, resources)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVarP(&resources, "resources", "r", false, "Declare the selected stacks and list their resources")

	return cmd
}

func runList(cmd *cobra.Command, a *app, format string, withResources bool) error {
	enabled := make(map[string]bool)
	names := a.stackNames
	if len(names) == 0 {
		names = a.ctx.StringSlice(config.KeyEnableStack)
	}
	for _, n := range names {
		enabled[n] = true
	}

	var result wetwire.ListResult
	for _, s := range stacks.All() {
		result.Stacks = append(result.Stacks, wetwire.ListStack{
			Name:        s.Name,
			Description: s.Description,
			Enabled:     enabled[s.Name],
		})
	}

	if withResources {
		built, err := a.plans(cmd.Context())
		if err != nil {
			return err
		}
		for _, b := range built {
			order, err := b.Plan.Order()
			if err != nil {
				return err
			}
			for _, n := range order {
				result.Resources = append(result.Resources, listResource(b, n))
			}
		}
	}

	return outputListResult(cmd, result, format)
}

func listResource(b builtStack, n plan.Node) wetwire.ListResource {
	r := wetwire.ListResource{
		ID:   b.Stack.Name + "/" + string(n.NodeID()),
		Kind: n.NodeKind().String(),
	}
	for _, dep := range b.Plan.Dependencies(n.NodeID()) {
		r.DependsOn = append(r.DependsOn, string(dep))
	}

	switch n := n.(type) {
	case *plan.Manifest:
		r.Detail = fmt.Sprintf("%d documents", len(n.Documents))
	case *plan.ServiceAccount:
		r.Detail = n.Namespace + "/" + n.Name
	case *plan.Policy:
		r.Detail = fmt.Sprintf("%d statements for %s", len(n.Statements), n.Identity)
	case *plan.HelmChart:
		r.Detail = n.Chart
		if n.Version != "" {
			r.Detail += "@" + n.Version
		}
		r.Detail += " in " + n.Namespace
	case *plan.Output:
		r.Detail = n.Value
	}
	return r
}

func outputListResult(cmd *cobra.Command, result wetwire.ListResult, format string) error {
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		return printJSON(cmd, result)

	case "text":
		bold := color.New(color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		fmt.Fprintf(out, "Stacks (%d):\n\n", len(result.Stacks))
		for _, s := range result.Stacks {
			mark := " "
			if s.Enabled {
				mark = green("*")
			}
			fmt.Fprintf(out, "  %s %s  %s\n", mark, bold(s.Name), faint(s.Description))
		}

		if len(result.Resources) > 0 {
			fmt.Fprintf(out, "\nResources (%d):\n\n", len(result.Resources))
			for _, r := range result.Resources {
				fmt.Fprintf(out, "  %s [%s] %s\n", r.ID, r.Kind, r.Detail)
				if len(r.DependsOn) > 0 {
					fmt.Fprintf(out, "      %s %s\n", faint("depends on"), strings.Join(r.DependsOn, ", "))
				}
			}
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	return nil
}
