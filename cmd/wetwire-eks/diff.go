package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/differ"
	"github.com/lex00/wetwire-eks-go/internal/template"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		outputFormat string
		ignoreOrder  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old-template> [new-template]",
		Short: "Compare templates",
		Long: `Diff compares two templates resource by resource. Kubernetes manifests are
compared document by document.

With one argument, the template is compared against a fresh synthesis of
the selected stack.

Examples:
    wetwire-eks diff deployed.json --stack StatefulCluster
    wetwire-eks diff old.yaml new.yaml --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, a, args, outputFormat, differ.Options{IgnoreOrder: ignoreOrder})
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Ignore array element order")

	return cmd
}

func runDiff(cmd *cobra.Command, a *app, args []string, format string, opts differ.Options) error {
	old, err := differ.LoadTemplate(args[0])
	if err != nil {
		return err
	}

	var current *wetwire.Template
	if len(args) == 2 {
		current, err = differ.LoadTemplate(args[1])
	} else {
		current, err = synthesizeForDiff(cmd, a)
	}
	if err != nil {
		return err
	}

	result, err := differ.Compare(old, current, opts)
	if err != nil {
		return err
	}
	return outputDiffResult(cmd, wetwire.DiffResult{
		Success: true,
		Diff:    result.Diff,
		Summary: result.Summary,
	}, format)
}

// synthesizeForDiff builds the selected stack and round-trips it through
// JSON so values compare like a template read from disk.
func synthesizeForDiff(cmd *cobra.Command, a *app) (*wetwire.Template, error) {
	b, err := a.onePlan(cmd.Context())
	if err != nil {
		return nil, err
	}
	tmpl, err := a.template(b)
	if err != nil {
		return nil, err
	}
	data, err := template.ToJSON(tmpl)
	if err != nil {
		return nil, err
	}
	var out wetwire.Template
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func outputDiffResult(cmd *cobra.Command, result wetwire.DiffResult, format string) error {
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		return printJSON(cmd, result)

	case "text":
		if result.Summary.Total == 0 {
			fmt.Fprintln(out, "No differences.")
			return nil
		}

		added := color.New(color.FgGreen).SprintfFunc()
		removed := color.New(color.FgRed).SprintfFunc()
		modified := color.New(color.FgYellow).SprintfFunc()

		for _, e := range result.Diff.Added {
			fmt.Fprintln(out, added("+ %s (%s)", e.Resource, e.Type))
		}
		for _, e := range result.Diff.Removed {
			fmt.Fprintln(out, removed("- %s (%s)", e.Resource, e.Type))
		}
		for _, e := range result.Diff.Modified {
			fmt.Fprintln(out, modified("~ %s (%s)", e.Resource, e.Type))
			for _, c := range e.Changes {
				fmt.Fprintf(out, "    %s\n", c)
			}
		}
		fmt.Fprintf(out, "\n%d added, %d removed, %d modified\n",
			result.Summary.Added, result.Summary.Removed, result.Summary.Modified)

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	return nil
}
