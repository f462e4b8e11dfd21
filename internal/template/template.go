// Package template lowers a plan into a CloudFormation template.
//
// Kubernetes manifests and Helm releases become the custom resources the
// EKS kubectl provider serves; identities become an IAM role trusted by the
// cluster's OIDC provider plus a service account manifest; plan edges become
// DependsOn lists.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/intrinsics"
)

// Resource types emitted.
const (
	TypeKubernetesResource = "Custom::AWSCDK-EKS-KubernetesResource"
	TypeHelmChart          = "Custom::AWSCDK-EKS-HelmChart"
	TypeRole               = "AWS::IAM::Role"
	TypePolicy             = "AWS::IAM::Policy"
)

// RoleArnAnnotation is the service account annotation the EKS pod identity
// webhook reads.
const RoleArnAnnotation = "eks.amazonaws.com/role-arn"

const stsAudience = "sts.amazonaws.com"

// maxPolicyName is the IAM limit on inline policy names.
const maxPolicyName = 128

// Builder constructs a CloudFormation template from a plan.
type Builder struct {
	plan        *plan.Plan
	description string
	logger      *zap.Logger

	// primary maps a node to the logical id dependents point at.
	primary map[plan.ID]string
	// roles maps a ServiceAccount node to its role's logical id.
	roles map[plan.ID]string
}

// NewBuilder creates a builder for p.
func NewBuilder(p *plan.Plan) *Builder {
	return &Builder{plan: p, logger: zap.NewNop()}
}

// WithDescription sets the template description.
func (b *Builder) WithDescription(d string) *Builder {
	b.description = d
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// Build generates the template.
func (b *Builder) Build() (*wetwire.Template, error) {
	cluster := b.plan.Cluster()
	if err := cluster.Validate(); err != nil {
		return nil, err
	}

	order, err := b.plan.Order()
	if err != nil {
		return nil, err
	}
	if err := b.assignLogicalIDs(order); err != nil {
		return nil, err
	}

	desc := b.description
	if desc == "" {
		desc = fmt.Sprintf("Kubernetes resources for EKS cluster %s", cluster.Name)
	}
	tmpl := wetwire.NewTemplate(desc)

	for _, n := range order {
		if err := b.lower(tmpl, n); err != nil {
			return nil, err
		}
	}

	b.logger.Debug("built template",
		zap.Int("nodes", len(order)),
		zap.Int("resources", len(tmpl.Resources)),
		zap.Int("outputs", len(tmpl.Outputs)))
	return tmpl, nil
}

func (b *Builder) assignLogicalIDs(order []plan.Node) error {
	b.primary = make(map[plan.ID]string, len(order))
	b.roles = make(map[plan.ID]string)
	owner := make(map[string]plan.ID)

	claim := func(logical string, id plan.ID) error {
		if logical == "" {
			return failure.Newf(failure.InvalidSpec, "assign logical id", string(id), "id has no alphanumeric characters")
		}
		if prev, ok := owner[logical]; ok && prev != id {
			return failure.Newf(failure.InvalidSpec, "assign logical id", string(id),
				"logical id %s already used by %s", logical, prev)
		}
		owner[logical] = id
		return nil
	}

	for _, n := range order {
		id := n.NodeID()
		base := plan.LogicalID(id)
		switch n.(type) {
		case *plan.ServiceAccount:
			role := base + "Role"
			if err := claim(role, id); err != nil {
				return err
			}
			b.roles[id] = role
			b.primary[id] = base + "ServiceAccountResource"
		default:
			b.primary[id] = base
		}
		if err := claim(b.primary[id], id); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) lower(tmpl *wetwire.Template, n plan.Node) error {
	deps := b.dependsOn(n.NodeID())

	switch n := n.(type) {
	case *plan.Manifest:
		props, err := b.kubernetesResource(n.ID, n.Documents, n.Overwrite)
		if err != nil {
			return err
		}
		return b.put(tmpl, b.primary[n.ID], TypeKubernetesResource, props, deps)

	case *plan.ServiceAccount:
		role := b.roles[n.ID]
		if err := b.put(tmpl, role, TypeRole, b.roleProperties(n), deps); err != nil {
			return err
		}
		doc, err := serviceAccountDocument(n)
		if err != nil {
			return err
		}
		props, err := b.kubernetesResource(n.ID, []map[string]any{doc}, true)
		if err != nil {
			return err
		}
		return b.put(tmpl, b.primary[n.ID], TypeKubernetesResource, props, append(deps, role))

	case *plan.Policy:
		role, ok := b.roles[n.Identity]
		if !ok {
			return failure.Newf(failure.InvalidSpec, "lower policy", string(n.ID), "identity %q is not a service account", n.Identity)
		}
		name := b.primary[n.ID]
		if len(name) > maxPolicyName {
			name = name[:maxPolicyName]
		}
		props := map[string]any{
			"PolicyName":     name,
			"PolicyDocument": intrinsics.NewPolicyDocument(n.Statements...),
			"Roles":          []any{intrinsics.Ref{LogicalName: role}},
		}
		return b.put(tmpl, b.primary[n.ID], TypePolicy, props, deps)

	case *plan.HelmChart:
		props, err := b.helmChart(n)
		if err != nil {
			return err
		}
		return b.put(tmpl, b.primary[n.ID], TypeHelmChart, props, deps)

	case *plan.Output:
		value, err := b.resolve(n.ID, n.Value)
		if err != nil {
			return err
		}
		if tmpl.Outputs == nil {
			tmpl.Outputs = make(map[string]wetwire.Output)
		}
		v, err := normalize(value)
		if err != nil {
			return err
		}
		tmpl.Outputs[b.primary[n.ID]] = wetwire.Output{Description: n.Description, Value: v}
		return nil

	default:
		return failure.Newf(failure.InvalidSpec, "lower node", string(n.NodeID()), "unsupported node type %T", n)
	}
}

func (b *Builder) put(tmpl *wetwire.Template, logical, typ string, props map[string]any, deps []string) error {
	norm, err := normalize(props)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", logical, err)
	}
	m, _ := norm.(map[string]any)
	tmpl.Resources[logical] = wetwire.ResourceDef{
		Type:       typ,
		Properties: m,
		DependsOn:  sortedUnique(deps),
	}
	return nil
}

// dependsOn maps a node's plan edges to logical ids. Outputs carry no
// DependsOn in CloudFormation, so their edges are dropped here.
func (b *Builder) dependsOn(id plan.ID) []string {
	var out []string
	for _, d := range b.plan.Dependencies(id) {
		out = append(out, b.primary[d])
	}
	return out
}

func (b *Builder) kubernetesResource(id plan.ID, docs []map[string]any, overwrite bool) (map[string]any, error) {
	body, err := marshalCompact(docs)
	if err != nil {
		return nil, failure.New(failure.InvalidSpec, "serialize manifest", string(id), err)
	}
	resolved, err := b.resolve(id, body)
	if err != nil {
		return nil, err
	}

	props := b.providerProperties()
	props["Manifest"] = resolved
	if overwrite {
		props["Overwrite"] = true
	}
	return props, nil
}

func (b *Builder) helmChart(n *plan.HelmChart) (map[string]any, error) {
	props := b.providerProperties()
	props["Release"] = n.Release
	props["Chart"] = n.Chart
	props["Namespace"] = n.Namespace
	props["CreateNamespace"] = n.CreateNamespace
	if n.Repository != "" {
		props["Repository"] = n.Repository
	}
	if n.Version != "" {
		props["Version"] = n.Version
	}
	if n.Wait {
		props["Wait"] = true
	}
	if secs := n.TimeoutSeconds(); secs > 0 {
		props["Timeout"] = fmt.Sprintf("%ds", secs)
	}
	if len(n.Values) > 0 {
		body, err := marshalCompact(n.Values)
		if err != nil {
			return nil, failure.New(failure.InvalidSpec, "serialize values", string(n.ID), err)
		}
		values, err := b.resolve(n.ID, body)
		if err != nil {
			return nil, err
		}
		props["Values"] = values
	}
	return props, nil
}

func (b *Builder) providerProperties() map[string]any {
	c := b.plan.Cluster()
	return map[string]any{
		"ServiceToken": c.KubectlProviderServiceToken,
		"ClusterName":  c.Name,
		"RoleArn":      c.KubectlRoleArn,
	}
}

func (b *Builder) roleProperties(n *plan.ServiceAccount) map[string]any {
	c := b.plan.Cluster()
	issuer := c.Issuer()

	var provider any = c.OIDCProviderArn
	if c.OIDCProviderArn == "" {
		provider = intrinsics.Sub{String: "arn:${AWS::Partition}:iam::${AWS::AccountId}:oidc-provider/" + issuer}
	}

	trust := intrinsics.NewPolicyDocument(intrinsics.PolicyStatement{
		Effect:    intrinsics.Allow,
		Principal: intrinsics.FederatedPrincipal{provider},
		Action:    intrinsics.AssumeRoleWithWebIdentity,
		Condition: intrinsics.Json{
			intrinsics.StringEquals: intrinsics.Json{
				issuer + ":aud": stsAudience,
				issuer + ":sub": n.Subject(),
			},
		},
	})
	return map[string]any{"AssumeRolePolicyDocument": trust}
}

// resolve replaces attribute tokens in s with intrinsic references.
func (b *Builder) resolve(owner plan.ID, s string) (any, error) {
	frags := plan.SplitTokens(s)
	parts := make([]any, 0, len(frags))
	for _, f := range frags {
		if f.Token == nil {
			parts = append(parts, f.Text)
			continue
		}
		role, ok := b.roles[f.Token.ID]
		if !ok {
			return nil, failure.Newf(failure.InvalidSpec, "resolve token", string(owner),
				"%s does not name a service account", f.Token.ID)
		}
		switch f.Token.Attr {
		case plan.AttrRoleArn:
			parts = append(parts, intrinsics.GetAtt{LogicalName: role, Attribute: "Arn"})
		case plan.AttrRoleName:
			parts = append(parts, intrinsics.Ref{LogicalName: role})
		default:
			return nil, failure.Newf(failure.InvalidSpec, "resolve token", string(owner), "unknown attribute %q", f.Token.Attr)
		}
	}
	return intrinsics.Concat(parts...), nil
}

func serviceAccountDocument(n *plan.ServiceAccount) (map[string]any, error) {
	labels := map[string]string{"app.kubernetes.io/name": n.Name}
	for k, v := range n.Labels {
		labels[k] = v
	}
	doc, err := manifest.FromObject(&corev1.ServiceAccount{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ServiceAccount"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        n.Name,
			Namespace:   n.Namespace,
			Labels:      labels,
			Annotations: map[string]string{RoleArnAnnotation: plan.AttrToken(n.ID, plan.AttrRoleArn)},
		},
	})
	if err != nil {
		return nil, failure.New(failure.InvalidSpec, "build service account", string(n.ID), err)
	}
	return doc.Object(), nil
}

// marshalCompact encodes v as compact JSON without HTML escaping, so shell
// snippets in container args stay readable in the template.
func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// normalize converts intrinsic structs into plain JSON values so that YAML
// output matches JSON output.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ToJSON serializes the template to JSON.
func ToJSON(t *wetwire.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *wetwire.Template) ([]byte, error) {
	return yaml.Marshal(t)
}
