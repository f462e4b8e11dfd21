package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/validation"
)

// errValidation signals that findings were printed and the run failed.
var errValidation = errors.New("validation failed")

func newValidateCmd(a *app) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the selected stacks",
		Long: `Validate declares the selected stacks and checks them.

Checks performed:
  - Manifests: every document has apiVersion, kind and metadata.name
  - Identities: workloads run as service accounts bound in their namespace
  - Template: cfn-lint rules over the synthesized CloudFormation

Examples:
    wetwire-eks validate --stack StatefulCluster
    wetwire-eks validate --stack EksIrsa --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, a, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runValidate(cmd *cobra.Command, a *app, format string) error {
	built, err := a.plans(cmd.Context())
	if err != nil {
		return err
	}

	result := wetwire.ValidateResult{Success: true}
	for _, b := range built {
		prefix := b.Stack.Name + ": "
		result.Resources += b.Plan.Len()

		tmpl, err := a.template(b)
		if err != nil {
			result.Errors = append(result.Errors, prefix+err.Error())
		}
		v, err := validation.Validate(b.Plan, tmpl)
		if err != nil {
			return err
		}

		for _, e := range v.PlanResult.Errors {
			result.Errors = append(result.Errors, prefix+e)
		}
		for _, w := range v.PlanResult.Warnings {
			result.Warnings = append(result.Warnings, prefix+w)
		}
		if tmpl != nil {
			for _, e := range v.CfnLintResult.Errors {
				result.Errors = append(result.Errors, prefix+e)
			}
			for _, w := range v.CfnLintResult.Warnings {
				result.Warnings = append(result.Warnings, prefix+w)
			}
		}
	}
	result.Success = len(result.Errors) == 0

	if err := outputValidateResult(cmd, result, format); err != nil {
		return err
	}
	if !result.Success {
		return errValidation
	}
	return nil
}

func outputValidateResult(cmd *cobra.Command, result wetwire.ValidateResult, format string) error {
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		return printJSON(cmd, result)

	case "text":
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "%s %s\n", color.YellowString("warning:"), w)
		}
		if result.Success {
			fmt.Fprintf(out, "%s %d resources OK\n", color.GreenString("Validation passed:"), result.Resources)
			return nil
		}

		fmt.Fprintln(out, color.RedString("Validation FAILED:"))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	return nil
}
