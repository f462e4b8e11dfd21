package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

func ids(nodes []Node) []ID {
	out := make([]ID, len(nodes))
	for i, n := range nodes {
		out[i] = n.NodeID()
	}
	return out
}

func TestPlan_AddRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	p := New(Cluster{})
	require.NoError(t, p.Add(&Manifest{ID: "a"}))

	err := p.Add(&HelmChart{ID: "a"})
	assert.True(t, failure.Is(err, failure.InvalidSpec))

	err = p.Add(&Manifest{})
	assert.True(t, failure.Is(err, failure.MissingRequiredField))
	assert.Equal(t, 1, p.Len())
}

func TestPlan_AddDependency(t *testing.T) {
	p := New(Cluster{})
	require.NoError(t, p.Add(&Manifest{ID: "ns"}))
	require.NoError(t, p.Add(&ServiceAccount{ID: "sa"}))
	require.NoError(t, p.Add(&Policy{ID: "policy", Identity: "sa"}))
	require.NoError(t, p.Add(&Manifest{ID: "app"}))

	require.NoError(t, p.AddDependency("sa", "ns"))
	require.NoError(t, p.AddDependency("policy", "sa"))
	require.NoError(t, p.AddDependency("app", "policy", "sa", "sa"))

	assert.Equal(t, []ID{"sa", "policy"}, p.Dependencies("app"))
	assert.True(t, p.DependsOn("app", "ns"))
	assert.True(t, p.DependsOn("policy", "ns"))
	assert.False(t, p.DependsOn("ns", "app"))

	assert.True(t, failure.Is(p.AddDependency("app", "missing"), failure.InvalidSpec))
	assert.True(t, failure.Is(p.AddDependency("missing", "app"), failure.InvalidSpec))
	assert.True(t, failure.Is(p.AddDependency("app", "app"), failure.InvalidSpec))
}

func TestPlan_OrderFollowsDependenciesThenDeclaration(t *testing.T) {
	p := New(Cluster{})
	for _, id := range []ID{"chart", "crd", "identity", "policy", "output"} {
		require.NoError(t, p.Add(&Manifest{ID: id}))
	}
	require.NoError(t, p.AddDependency("chart", "crd", "policy"))
	require.NoError(t, p.AddDependency("policy", "identity"))
	require.NoError(t, p.AddDependency("output", "identity"))

	order, err := p.Order()
	require.NoError(t, err)
	assert.Equal(t, []ID{"crd", "identity", "policy", "chart", "output"}, ids(order))

	again, err := p.Order()
	require.NoError(t, err)
	assert.Equal(t, ids(order), ids(again))
}

func TestPlan_OrderReportsCycles(t *testing.T) {
	p := New(Cluster{})
	for _, id := range []ID{"root", "a", "b", "c"} {
		require.NoError(t, p.Add(&Manifest{ID: id}))
	}
	require.NoError(t, p.AddDependency("root", "a"))
	require.NoError(t, p.AddDependency("a", "b"))
	require.NoError(t, p.AddDependency("b", "c"))
	require.NoError(t, p.AddDependency("c", "a"))

	_, err := p.Order()
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.InvalidSpec))
	assert.Contains(t, err.Error(), "circular dependency detected")
	assert.Contains(t, err.Error(), "a\n    → b\n    → c\n    → a")
	assert.NotContains(t, err.Error(), "root")
}

func TestPlan_NodesAndGet(t *testing.T) {
	p := New(Cluster{Name: "demo"})
	sa := &ServiceAccount{ID: "x/sa", Name: "sa", Namespace: "kube-system"}
	require.NoError(t, p.Add(sa))

	got, ok := p.Get("x/sa")
	require.True(t, ok)
	assert.Same(t, sa, got)
	_, ok = p.Get("nope")
	assert.False(t, ok)

	nodes := p.Nodes()
	nodes[0] = nil
	assert.NotNil(t, p.Nodes()[0], "Nodes returns a copy")
	assert.Equal(t, "demo", p.Cluster().Name)
	assert.Equal(t, "system:serviceaccount:kube-system:sa", sa.Subject())
}

func TestCluster_Validate(t *testing.T) {
	err := Cluster{Name: "demo"}.Validate()
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.MissingRequiredField))
	assert.Contains(t, err.Error(), "kubectl_role_arn, kubectl_provider_service_token, oidc_issuer")

	c := Cluster{
		Name:                        "demo",
		KubectlRoleArn:              "arn:aws:iam::123456789012:role/kubectl",
		KubectlProviderServiceToken: "arn:aws:lambda:eu-west-1:123456789012:function:provider",
		OIDCIssuer:                  "https://oidc.eks.eu-west-1.amazonaws.com/id/ABC",
	}
	assert.NoError(t, c.Validate())
	assert.Equal(t, "oidc.eks.eu-west-1.amazonaws.com/id/ABC", c.Issuer())
}

func TestPlan_AddTurnsTokensIntoEdges(t *testing.T) {
	p := New(Cluster{})
	arn := AttrToken("dns/identity", AttrRoleArn)

	err := p.Add(&Output{ID: "early", Value: arn})
	assert.True(t, failure.Is(err, failure.InvalidSpec), "got %v", err)
	assert.ErrorContains(t, err, `undeclared node "dns/identity"`)
	_, ok := p.Get("early")
	assert.False(t, ok)

	require.NoError(t, p.Add(&Manifest{ID: "dns/namespace"}))
	require.NoError(t, p.Add(&ServiceAccount{ID: "dns/identity"}))
	require.NoError(t, p.AddDependency("dns/identity", "dns/namespace"))
	require.NoError(t, p.Add(&Manifest{ID: "app", Documents: []map[string]any{
		{"metadata": map[string]any{"annotations": map[string]any{"a": arn, "b": arn}}},
	}}))
	require.NoError(t, p.Add(&Output{ID: "roleArn", Value: arn}))

	assert.Equal(t, []ID{"dns/identity"}, p.Dependencies("app"))
	assert.Equal(t, []ID{"dns/identity"}, p.Dependencies("roleArn"))

	order, err := p.Order()
	require.NoError(t, err)
	pos := map[ID]int{}
	for i, n := range order {
		pos[n.NodeID()] = i
	}
	assert.Less(t, pos["dns/identity"], pos["app"])
	assert.Less(t, pos["dns/identity"], pos["roleArn"])

	err = p.Add(&Output{ID: "self", Value: AttrToken("self", AttrRoleArn)})
	assert.True(t, failure.Is(err, failure.InvalidSpec), "got %v", err)
}
