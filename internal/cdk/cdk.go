// Package cdk synthesizes plans into a CDK cloud assembly using the AWS CDK
// EKS constructs. It is the alternative to the template package for
// deployments driven by `cdk deploy`.
package cdk

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	eks "github.com/aws/aws-cdk-go/awscdk/v2/awseks"
	iam "github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/plan"
)

// StackPlan is a plan synthesized into its own stack.
type StackPlan struct {
	Name        string
	Description string
	Plan        *plan.Plan
}

// Synthesizer writes cloud assemblies.
type Synthesizer struct {
	Outdir string
	Logger *zap.Logger
}

// New creates a synthesizer writing to outdir.
func New(outdir string, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{Outdir: outdir, Logger: logger}
}

// Synth builds one stack per plan and returns the assembly directory.
// Callers must call jsii.Close before exiting.
func (s *Synthesizer) Synth(stacks ...StackPlan) (string, error) {
	app := awscdk.NewApp(&awscdk.AppProps{Outdir: jsii.String(s.Outdir)})

	for _, sp := range stacks {
		if err := s.stack(app, sp); err != nil {
			return "", err
		}
	}

	assembly := app.Synth(nil)
	dir := *assembly.Directory()
	s.Logger.Info("synthesized cloud assembly", zap.String("dir", dir), zap.Int("stacks", len(stacks)))
	return dir, nil
}

func (s *Synthesizer) stack(app awscdk.App, sp StackPlan) error {
	cl := sp.Plan.Cluster()
	if err := cl.Validate(); err != nil {
		return err
	}
	order, err := sp.Plan.Order()
	if err != nil {
		return err
	}

	props := &awscdk.StackProps{}
	if sp.Description != "" {
		props.Description = jsii.String(sp.Description)
	}
	if cl.Account != "" || cl.Region != "" {
		props.Env = &awscdk.Environment{Account: optional(cl.Account), Region: optional(cl.Region)}
	}
	stack := awscdk.NewStack(app, jsii.String(sp.Name), props)

	b := &stackBuilder{
		stack:      stack,
		plan:       sp.Plan,
		cluster:    importCluster(stack, cl),
		constructs: make(map[plan.ID]constructs.Construct, len(order)),
		accounts:   make(map[plan.ID]eks.ServiceAccount),
	}
	for _, n := range order {
		if err := b.add(n); err != nil {
			return err
		}
	}
	s.Logger.Debug("built stack", zap.String("stack", sp.Name), zap.Int("nodes", len(order)))
	return nil
}

func importCluster(stack awscdk.Stack, cl plan.Cluster) eks.ICluster {
	attrs := &eks.ClusterAttributes{
		ClusterName:    jsii.String(cl.Name),
		KubectlRoleArn: jsii.String(cl.KubectlRoleArn),
		KubectlProvider: eks.KubectlProvider_FromKubectlProviderAttributes(stack, jsii.String("KubectlProvider"),
			&eks.KubectlProviderAttributes{
				FunctionArn:    jsii.String(cl.KubectlProviderServiceToken),
				KubectlRoleArn: jsii.String(cl.KubectlRoleArn),
				HandlerRole:    iam.Role_FromRoleArn(stack, jsii.String("KubectlHandlerRole"), jsii.String(cl.KubectlRoleArn), nil),
			}),
	}
	arn := cl.OIDCProviderArn
	if arn == "" {
		arn = fmt.Sprintf("arn:%s:iam::%s:oidc-provider/%s", *awscdk.Aws_PARTITION(), *awscdk.Aws_ACCOUNT_ID(), cl.Issuer())
	}
	attrs.OpenIdConnectProvider = iam.OpenIdConnectProvider_FromOpenIdConnectProviderArn(stack, jsii.String("OidcProvider"), jsii.String(arn))
	return eks.Cluster_FromClusterAttributes(stack, jsii.String("Cluster"), attrs)
}

type stackBuilder struct {
	stack      awscdk.Stack
	plan       *plan.Plan
	cluster    eks.ICluster
	constructs map[plan.ID]constructs.Construct
	accounts   map[plan.ID]eks.ServiceAccount
}

func (b *stackBuilder) add(n plan.Node) error {
	id := jsii.String(plan.LogicalID(n.NodeID()))

	var c constructs.Construct
	switch n := n.(type) {
	case *plan.Manifest:
		docs, err := b.resolveAll(n.ID, n.Documents)
		if err != nil {
			return err
		}
		c = eks.NewKubernetesManifest(b.stack, id, &eks.KubernetesManifestProps{
			Cluster:   b.cluster,
			Manifest:  &docs,
			Overwrite: jsii.Bool(n.Overwrite),
		})

	case *plan.ServiceAccount:
		labels := make(map[string]*string, len(n.Labels))
		for k, v := range n.Labels {
			labels[k] = jsii.String(v)
		}
		sa := eks.NewServiceAccount(b.stack, id, &eks.ServiceAccountProps{
			Cluster:   b.cluster,
			Name:      jsii.String(n.Name),
			Namespace: jsii.String(n.Namespace),
			Labels:    &labels,
		})
		b.accounts[n.ID] = sa
		c = sa

	case *plan.Policy:
		sa, ok := b.accounts[n.Identity]
		if !ok {
			return failure.Newf(failure.InvalidSpec, "attach policy", string(n.ID), "identity %q is not a service account", n.Identity)
		}
		for _, st := range n.Statements {
			m, err := st.ToMap()
			if err != nil {
				return failure.New(failure.InvalidSpec, "attach policy", string(n.ID), err)
			}
			sa.AddToPrincipalPolicy(iam.PolicyStatement_FromJson(m))
		}
		// Policies attach to the service account's role and have no
		// construct of their own.
		c = sa

	case *plan.HelmChart:
		props := &eks.HelmChartProps{
			Cluster:         b.cluster,
			Chart:           jsii.String(n.Chart),
			Release:         jsii.String(n.Release),
			Namespace:       jsii.String(n.Namespace),
			Repository:      optional(n.Repository),
			Version:         optional(n.Version),
			CreateNamespace: jsii.Bool(n.CreateNamespace),
			Wait:            jsii.Bool(n.Wait),
		}
		if secs := n.TimeoutSeconds(); secs > 0 {
			props.Timeout = awscdk.Duration_Seconds(jsii.Number(float64(secs)))
		}
		if len(n.Values) > 0 {
			values, err := b.resolveMap(n.ID, n.Values)
			if err != nil {
				return err
			}
			props.Values = &values
		}
		c = eks.NewHelmChart(b.stack, id, props)

	case *plan.Output:
		value, err := b.resolveString(n.ID, n.Value)
		if err != nil {
			return err
		}
		c = awscdk.NewCfnOutput(b.stack, id, &awscdk.CfnOutputProps{
			Value:       jsii.String(value),
			Description: optional(n.Description),
		})
		b.constructs[n.ID] = c
		// CloudFormation outputs cannot carry dependencies.
		return nil

	default:
		return failure.Newf(failure.InvalidSpec, "add construct", string(n.NodeID()), "unsupported node type %T", n)
	}

	b.constructs[n.NodeID()] = c
	for _, dep := range b.plan.Dependencies(n.NodeID()) {
		target, ok := b.constructs[dep]
		if !ok || target == c {
			continue
		}
		c.Node().AddDependency(target)
	}
	return nil
}

func (b *stackBuilder) lookup(t plan.TokenRef) (string, error) {
	sa, ok := b.accounts[t.ID]
	if !ok {
		return "", fmt.Errorf("%s does not name a service account", t.ID)
	}
	switch t.Attr {
	case plan.AttrRoleArn:
		return *sa.Role().RoleArn(), nil
	case plan.AttrRoleName:
		return *sa.Role().RoleName(), nil
	default:
		return "", fmt.Errorf("unknown attribute %q", t.Attr)
	}
}

func (b *stackBuilder) resolveString(owner plan.ID, s string) (string, error) {
	out, err := Substitute(s, b.lookup)
	if err != nil {
		return "", failure.New(failure.InvalidSpec, "resolve token", string(owner), err)
	}
	return out.(string), nil
}

func (b *stackBuilder) resolveMap(owner plan.ID, m map[string]any) (map[string]any, error) {
	out, err := Substitute(m, b.lookup)
	if err != nil {
		return nil, failure.New(failure.InvalidSpec, "resolve token", string(owner), err)
	}
	return out.(map[string]any), nil
}

func (b *stackBuilder) resolveAll(owner plan.ID, docs []map[string]any) ([]*map[string]any, error) {
	out := make([]*map[string]any, 0, len(docs))
	for _, d := range docs {
		m, err := b.resolveMap(owner, d)
		if err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, nil
}

// Substitute returns a copy of v with attribute tokens in every string
// replaced by lookup's result. Maps and slices are copied; other values are
// returned as is.
func Substitute(v any, lookup func(plan.TokenRef) (string, error)) (any, error) {
	switch v := v.(type) {
	case string:
		if !plan.HasTokens(v) {
			return v, nil
		}
		var out string
		for _, f := range plan.SplitTokens(v) {
			if f.Token == nil {
				out += f.Text
				continue
			}
			s, err := lookup(*f.Token)
			if err != nil {
				return nil, err
			}
			out += s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			r, err := Substitute(e, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			r, err := Substitute(e, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return jsii.String(s)
}
