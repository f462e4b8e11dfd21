// Command wetwire-eks composes Kubernetes manifests, Helm charts and IRSA
// identities for an existing EKS cluster into a CloudFormation template.
//
// Usage:
//
//	wetwire-eks synth --stack StatefulCluster   Emit the stack's template
//	wetwire-eks list                            Show registered stacks
//	wetwire-eks graph --stack EksIrsa           Render the dependency graph
//	wetwire-eks validate --stack EksIrsa        Check manifests and template
//	wetwire-eks version                         Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wetwire-eks",
		Short: "Compose Kubernetes add-ons for EKS into CloudFormation",
		Long: `wetwire-eks declares Kubernetes manifests, Helm charts and IAM roles for
service accounts (IRSA) against an existing EKS cluster, and emits them as a
CloudFormation template or a CDK cloud assembly.

Cluster attributes and add-on settings come from context values:

    wetwire-eks synth --stack StatefulCluster \
        --context-file cdk.json \
        --context cluster_name=prod`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	a.registerFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newSynthCmd(a),
		newListCmd(a),
		newGraphCmd(a),
		newDiffCmd(a),
		newValidateCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wetwire-eks %s\n", readBuildInfo())
		},
	}
}
