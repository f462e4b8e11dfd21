package plan

import (
	"time"

	"github.com/lex00/wetwire-eks-go/intrinsics"
)

// NodeKind discriminates the node types a plan holds.
type NodeKind int

const (
	KindManifest NodeKind = iota + 1
	KindServiceAccount
	KindPolicy
	KindHelmChart
	KindOutput
)

func (k NodeKind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindServiceAccount:
		return "service-account"
	case KindPolicy:
		return "policy"
	case KindHelmChart:
		return "helm-chart"
	case KindOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Node is one resource in the plan. The concrete types are Manifest,
// ServiceAccount, Policy, HelmChart and Output.
type Node interface {
	NodeID() ID
	NodeKind() NodeKind
}

// Manifest applies Kubernetes documents to the cluster.
type Manifest struct {
	ID        ID
	Documents []map[string]any
	// Overwrite lets the apply replace resources that already exist.
	Overwrite bool
}

func (n *Manifest) NodeID() ID         { return n.ID }
func (n *Manifest) NodeKind() NodeKind { return KindManifest }

// ServiceAccount is an IAM role trusted by the cluster's OIDC provider
// together with the Kubernetes service account annotated to assume it.
type ServiceAccount struct {
	ID        ID
	Name      string
	Namespace string
	Labels    map[string]string
}

func (n *ServiceAccount) NodeID() ID         { return n.ID }
func (n *ServiceAccount) NodeKind() NodeKind { return KindServiceAccount }

// Subject is the OIDC subject the role trusts.
func (n *ServiceAccount) Subject() string {
	return "system:serviceaccount:" + n.Namespace + ":" + n.Name
}

// Policy attaches statements to a service account's role.
type Policy struct {
	ID         ID
	Identity   ID
	Statements []intrinsics.PolicyStatement
}

func (n *Policy) NodeID() ID         { return n.ID }
func (n *Policy) NodeKind() NodeKind { return KindPolicy }

// HelmChart installs a chart release.
type HelmChart struct {
	ID              ID
	Chart           string
	Repository      string
	Release         string
	Namespace       string
	Version         string
	Values          map[string]any
	CreateNamespace bool
	Wait            bool
	Timeout         time.Duration
}

func (n *HelmChart) NodeID() ID         { return n.ID }
func (n *HelmChart) NodeKind() NodeKind { return KindHelmChart }

// TimeoutSeconds returns Timeout in whole seconds, rounded up so a
// sub-second timeout never becomes zero.
func (n *HelmChart) TimeoutSeconds() int64 {
	if n.Timeout <= 0 {
		return 0
	}
	return int64((n.Timeout + time.Second - 1) / time.Second)
}

// Output exports a value from the synthesized stack. Value may contain
// attribute tokens.
type Output struct {
	ID          ID
	Value       string
	Description string
}

func (n *Output) NodeID() ID         { return n.ID }
func (n *Output) NodeKind() NodeKind { return KindOutput }
