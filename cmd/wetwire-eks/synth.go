package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/jsii-runtime-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/cdk"
)

type synthOptions struct {
	format  string
	output  string
	backend string
	outdir  string
	summary bool
}

func newSynthCmd(a *app) *cobra.Command {
	var opts synthOptions

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Emit the selected stacks",
		Long: `Synth declares the selected stacks and emits them.

The native backend writes a CloudFormation template per stack. With one stack
the template goes to stdout or --output; with several, --output names a
directory that receives <Stack>.template.<format>.

The cdk backend synthesizes a CDK cloud assembly instead. It needs the jsii
runtime (Node.js) on the PATH.

Examples:
    wetwire-eks synth --stack EksIrsa
    wetwire-eks synth --stack StatefulCluster -f yaml -o stateful.yaml
    wetwire-eks synth --stack EksIrsa,StatefulCluster -o out/
    wetwire-eks synth --stack StatefulCluster --backend cdk --outdir cdk.out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("outdir") {
				opts.outdir = a.opts.CDKOutdir
			}
			return runSynth(cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file, or directory for several stacks (default: stdout)")
	cmd.Flags().StringVar(&opts.backend, "backend", "native", "Emitter: native or cdk")
	cmd.Flags().StringVar(&opts.outdir, "outdir", "cdk.out", "Cloud assembly directory for the cdk backend")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "Print a JSON summary instead of the template")

	return cmd
}

func runSynth(cmd *cobra.Command, a *app, opts synthOptions) error {
	var (
		result wetwire.SynthResult
		err    error
	)
	switch opts.backend {
	case "native":
		result, err = synthNative(cmd, a, opts)
	case "cdk":
		result, err = synthCDK(cmd, a, opts)
	default:
		return fmt.Errorf("unknown backend: %s (use 'native' or 'cdk')", opts.backend)
	}
	if err != nil {
		if opts.summary {
			result.Errors = append(result.Errors, err.Error())
			_ = printJSON(cmd, result)
		}
		return err
	}
	if opts.summary || opts.backend == "cdk" {
		return printJSON(cmd, result)
	}
	return nil
}

func synthNative(cmd *cobra.Command, a *app, opts synthOptions) (wetwire.SynthResult, error) {
	var result wetwire.SynthResult

	built, err := a.plans(cmd.Context())
	if err != nil {
		return result, err
	}
	if len(built) > 1 && opts.output == "" {
		return result, fmt.Errorf("%d stacks selected; --output must name a directory", len(built))
	}

	for _, b := range built {
		tmpl, err := a.template(b)
		if err != nil {
			return result, fmt.Errorf("stack %s: %w", b.Stack.Name, err)
		}
		data, err := encode(tmpl, opts.format)
		if err != nil {
			return result, err
		}

		path := opts.output
		if len(built) > 1 {
			if err := os.MkdirAll(opts.output, 0o755); err != nil {
				return result, err
			}
			path = filepath.Join(opts.output, b.Stack.Name+".template."+opts.format)
		}
		if err := writeOutput(cmd, path, data, !opts.summary); err != nil {
			return result, err
		}

		a.logger.Info("synthesized stack",
			zap.String("stack", b.Stack.Name),
			zap.Int("resources", len(tmpl.Resources)),
			zap.String("output", path))

		result.Stacks = append(result.Stacks, b.Stack.Name)
		for name := range tmpl.Resources {
			result.Resources = append(result.Resources, name)
		}
		if len(built) == 1 {
			result.Template = tmpl
		}
	}

	sort.Strings(result.Resources)
	result.Success = true
	return result, nil
}

func synthCDK(cmd *cobra.Command, a *app, opts synthOptions) (wetwire.SynthResult, error) {
	var result wetwire.SynthResult

	built, err := a.plans(cmd.Context())
	if err != nil {
		return result, err
	}

	defer jsii.Close()

	sps := make([]cdk.StackPlan, 0, len(built))
	for _, b := range built {
		sps = append(sps, cdk.StackPlan{Name: b.Stack.Name, Description: b.Stack.Description, Plan: b.Plan})
		result.Stacks = append(result.Stacks, b.Stack.Name)
	}

	dir, err := cdk.New(opts.outdir, a.logger).Synth(sps...)
	if err != nil {
		return result, err
	}
	result.Success = true
	result.Assembly = dir
	return result, nil
}

// writeOutput writes data to path, or to stdout when path is empty and
// toStdout is set.
func writeOutput(cmd *cobra.Command, path string, data []byte, toStdout bool) error {
	if path == "" {
		if !toStdout {
			return nil
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
