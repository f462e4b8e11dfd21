package addons

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-eks-go/internal/compose"
	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/irsa"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
	"github.com/lex00/wetwire-eks-go/internal/template"
)

// fakeFetcher serves fixed bodies by URL.
type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, failure.Newf(failure.NetworkFailure, "fetch", url, "404 Not Found")
	}
	return []byte(body), nil
}

const crdFixture = `apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: fixtures.example.com
`

func remoteFixtures() fakeFetcher {
	u := DefaultURLs()
	f := fakeFetcher{
		u.AlbIngressBase + "iam-policy.json": `{"Version":"2012-10-17","Statement":[
			{"Effect":"Allow","Action":["ec2:Describe*"],"Resource":"*"},
			{"Effect":"Allow","Action":["elasticloadbalancing:*"],"Resource":"*"}]}`,
		u.AlbIngressBase + "rbac-role.yaml": `apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: alb-ingress-controller
---
apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRoleBinding
metadata:
  name: alb-ingress-controller
---
apiVersion: v1
kind: ServiceAccount
metadata:
  name: alb-ingress-controller
  namespace: kube-system
`,
		u.AlbIngressBase + "alb-ingress-controller.yaml": `apiVersion: apps/v1
kind: Deployment
metadata:
  name: alb-ingress-controller
  namespace: kube-system
spec:
  template:
    spec:
      containers:
      - name: alb-ingress-controller
        image: docker.io/amazon/aws-alb-ingress-controller:v1.1.8
        args:
        - --ingress-class=alb
`,
		u.AwsLoadBalancerPolicy: `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"iam:CreateServiceLinkedRole","Resource":"*"}]}`,
		u.AwsLoadBalancerCRDs:   crdFixture,
	}
	for _, dir := range []string{"deploy/crds/", "deploy/crds/v1beta1/"} {
		for _, crd := range casskopCRDs {
			f[u.CassKopBase+dir+crd.file] = crdFixture
		}
	}
	return f
}

func testCluster() plan.Cluster {
	return plan.Cluster{
		Name:                        "demo",
		Version:                     "1.27",
		KubectlRoleArn:              "arn:aws:iam::123456789012:role/kubectl",
		KubectlProviderServiceToken: "arn:aws:lambda:eu-west-1:123456789012:function:kubectl",
		OIDCIssuer:                  "https://oidc.eks.eu-west-1.amazonaws.com/id/ABC",
		Region:                      "eu-west-1",
		Account:                     "123456789012",
		VpcID:                       "vpc-0123456789abcdef0",
	}
}

func testSettings() Settings {
	return Settings{
		HostedZone:             "demo.example.com",
		AppDomain:              "apps.example.com",
		ExternalDNSPolicy:      "sync",
		ElasticsearchDomain:    "logs",
		ElasticsearchHost:      "search-logs.eu-west-1.es.amazonaws.com",
		CassandraNodesPerRacks: 3,
	}
}

func newCatalog(t *testing.T, cluster plan.Cluster, s Settings) *Catalog {
	t.Helper()
	f := remoteFixtures()
	binder := irsa.NewBinder(policy.NewTranslator(nil, f, nil), nil)
	c := compose.New(plan.New(cluster), binder, nil)
	return NewCatalog(c, manifest.NewLoader(Manifests(), f, nil), s, nil)
}

// documents returns the documents of a manifest node.
func documents(t *testing.T, p *plan.Plan, id plan.ID) manifest.Set {
	t.Helper()
	n, ok := p.Get(id)
	require.True(t, ok, "node %s not in plan", id)
	m, ok := n.(*plan.Manifest)
	require.True(t, ok, "node %s is %T", id, n)

	var set manifest.Set
	for _, obj := range m.Documents {
		d, err := manifest.NewDocument(obj)
		require.NoError(t, err)
		set = append(set, d)
	}
	return set
}

func containerOf(t *testing.T, d *manifest.Document) manifest.Container {
	t.Helper()
	var out manifest.Container
	require.NoError(t, d.UpdateContainer("", func(c manifest.Container) error {
		out = c
		return nil
	}))
	return out
}

func TestExternalDNS(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.ExternalDNS(context.Background(), "external-dns")
	require.NoError(t, err)

	assert.Equal(t, plan.ID("external-dns/manifest"), applied.ID)
	assert.NotContains(t, applied.Documents.Kinds(), manifest.KindServiceAccount)
	assert.True(t, c.Composer.Plan.DependsOn(applied.ID, "external-dns/policy"))

	dep, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindDeployment})
	require.NoError(t, err)
	args := containerOf(t, dep).Args()
	assert.Contains(t, args, "--domain-filter=demo.example.com")
	assert.Contains(t, args, "--txt-owner-id=demo")
	assert.Contains(t, args, "--policy=sync")
}

func TestExternalDNS_UpsertOnlyKeepsPolicyArg(t *testing.T) {
	s := testSettings()
	s.ExternalDNSPolicy = "upsert-only"
	c := newCatalog(t, testCluster(), s)
	applied, err := c.ExternalDNS(context.Background(), "external-dns")
	require.NoError(t, err)

	dep, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindDeployment})
	require.NoError(t, err)
	assert.Contains(t, containerOf(t, dep).Args(), "--policy=upsert-only")
}

func TestClusterAutoscaler(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.ClusterAutoscaler(context.Background(), "cluster-autoscaler")
	require.NoError(t, err)

	assert.Len(t, applied.Documents, 5)
	dep, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindDeployment})
	require.NoError(t, err)

	cmd := containerOf(t, dep).Command()
	assert.Contains(t, cmd, "--node-group-auto-discovery=asg:tag=k8s.io/cluster-autoscaler/enabled,k8s.io/cluster-autoscaler/demo")
	assert.Equal(t, []string{"--balance-similar-node-groups", "--skip-nodes-with-system-pods=false"}, cmd[len(cmd)-2:])
	assert.NotContains(t, strings.Join(cmd, " "), "<YOUR CLUSTER NAME>")
}

func TestMetricsServer(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.MetricsServer(context.Background(), "metrics-server")
	require.NoError(t, err)

	assert.Equal(t, plan.ID("metrics-server"), applied.ID)
	assert.Nil(t, applied.Binding)
	assert.Len(t, applied.Documents, 9)
	assert.Equal(t, manifest.KindClusterRole, applied.Documents[0].Kind())
	assert.Empty(t, c.Composer.Plan.Dependencies(applied.ID))
}

func TestEbsCsiDriver(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.EbsCsiDriver(context.Background(), "ebs-csi-driver")
	require.NoError(t, err)

	assert.Equal(t, "ebs-csi-controller-sa", applied.Binding.Name)
	dep, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindDeployment})
	require.NoError(t, err)
	sa, err := dep.GetString("spec.template.spec.serviceAccountName")
	require.NoError(t, err)
	assert.Equal(t, applied.Binding.Name, sa)
}

func TestCloudWatchAgent(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.CloudWatchAgent(context.Background(), "cloudwatch-agent")
	require.NoError(t, err)

	assert.Equal(t, plan.ID("cloudwatch-agent/namespace"), applied.Binding.NamespaceNode)
	assert.NotContains(t, applied.Documents.Kinds(), manifest.KindServiceAccount)

	cm, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindConfigMap})
	require.NoError(t, err)
	raw, err := cm.Get("data")
	require.NoError(t, err)
	assert.Contains(t, raw.(map[string]any)["cwagentconfig.json"], `"cluster_name": "demo"`)
}

func TestEksUtilsAdmin(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.EksUtilsAdmin(context.Background(), "eksutils-admin", EksUtilsOptions{Namespace: "eksutils"})
	require.NoError(t, err)

	assert.Equal(t, plan.ID("eksutils-admin/namespace"), applied.Binding.NamespaceNode)
	crb, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindClusterRoleBinding})
	require.NoError(t, err)
	assert.Equal(t, "eksutils-admin-eksutils", crb.Name())
	ns, err := crb.GetString("subjects[0].namespace")
	require.NoError(t, err)
	assert.Equal(t, "eksutils", ns)

	dep, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindDeployment})
	require.NoError(t, err)
	assert.Equal(t, "eksutils", dep.Namespace())
	assert.Equal(t, "allamand/eksutils:latest", containerOf(t, dep).Image())
}

func TestEksUtilsAdmin_FargateNodetool(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.EksUtilsAdmin(context.Background(), "cass-nodetool", EksUtilsOptions{
		Namespace:     "cassandra",
		KeepNamespace: true,
		Fargate:       true,
		Image:         "cassandra",
		Command:       "/bin/sh",
		Args:          []string{"-c", "nodetool status"},
	})
	require.NoError(t, err)

	assert.Empty(t, applied.Binding.NamespaceNode)
	_, ok := c.Composer.Plan.Get("cass-nodetool/namespace")
	assert.False(t, ok)

	dep, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindDeployment})
	require.NoError(t, err)
	ct := containerOf(t, dep)
	assert.Equal(t, "cassandra", ct.Image())
	assert.Equal(t, []string{"/bin/sh"}, ct.Command())
	assert.Equal(t, []string{"-c", "nodetool status"}, ct.Args())

	cm, err := applied.Documents.One(manifest.Selector{Kind: manifest.KindConfigMap})
	require.NoError(t, err)
	assert.Equal(t, "cassandra", cm.Namespace())
	raw, err := cm.Get("data")
	require.NoError(t, err)
	conf := raw.(map[string]any)["fluent-bit.conf"].(string)
	assert.Contains(t, conf, "Host         search-logs.eu-west-1.es.amazonaws.com")
}

func TestEksUtilsAdmin_FargateNeedsElasticsearchHost(t *testing.T) {
	s := testSettings()
	s.ElasticsearchHost = ""
	c := newCatalog(t, testCluster(), s)
	_, err := c.EksUtilsAdmin(context.Background(), "eksutils-admin-fargate", EksUtilsOptions{Namespace: "fargate", Fargate: true})
	assert.True(t, failure.Is(err, failure.MissingRequiredField), "got %v", err)
}

func TestAlbIngressController(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	applied, err := c.AlbIngressController(context.Background(), "alb-ingress-controller")
	require.NoError(t, err)

	assert.Equal(t, 2, applied.Binding.Statements)
	assert.Equal(t, []manifest.Kind{manifest.KindClusterRole, manifest.KindClusterRoleBinding, manifest.KindDeployment},
		applied.Documents.Kinds())

	dep := applied.Documents[2]
	assert.Equal(t, []string{
		"--ingress-class=alb",
		"--cluster-name=demo",
		"--feature-gates=wafv2=false",
		"--aws-vpc-id=vpc-0123456789abcdef0",
		"--aws-region=eu-west-1",
	}, containerOf(t, dep).Args())
}

func TestAlbIngressController_NeedsVpc(t *testing.T) {
	cl := testCluster()
	cl.VpcID = ""
	c := newCatalog(t, cl, testSettings())
	_, err := c.AlbIngressController(context.Background(), "alb-ingress-controller")
	assert.True(t, failure.Is(err, failure.MissingRequiredField), "got %v", err)
}

func TestAwsLoadBalancerController(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	released, err := c.AwsLoadBalancerController(context.Background(), "lb")
	require.NoError(t, err)

	p := c.Composer.Plan
	assert.Equal(t, plan.ID("lb/chart"), released.ID)
	assert.True(t, p.DependsOn(released.ID, "lb/crds"))
	assert.True(t, p.DependsOn(released.ID, "lb/policy"))
	assert.Len(t, documents(t, p, "lb/crds"), 1)

	n, _ := p.Get(released.ID)
	chart := n.(*plan.HelmChart)
	assert.Equal(t, "lb", chart.Release)
	assert.Equal(t, "demo", chart.Values["clusterName"])
}

func TestAwsLoadBalancerController_PolicyUnreachable(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	c.URLs.AwsLoadBalancerPolicy = "https://unreachable.invalid/policy.json"
	_, err := c.AwsLoadBalancerController(context.Background(), "lb")
	assert.True(t, failure.Is(err, failure.NetworkFailure), "got %v", err)
}

func TestAwsForFluentBit(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	released, err := c.AwsForFluentBit(context.Background(), "aws-for-fluent-bit")
	require.NoError(t, err)

	assert.Equal(t, 5, released.Binding.Statements)
	n, _ := c.Composer.Plan.Get("aws-for-fluent-bit/policy")
	pol := n.(*plan.Policy)
	assert.Equal(t, "arn:aws:es:::domain/logs/*", pol.Statements[4].Resource)

	s := testSettings()
	s.ElasticsearchDomain = ""
	_, err = newCatalog(t, testCluster(), s).AwsForFluentBit(context.Background(), "aws-for-fluent-bit")
	assert.True(t, failure.Is(err, failure.MissingRequiredField), "got %v", err)
}

func TestKubeOpsView(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	released, err := c.KubeOpsView(context.Background(), "kube-ops-view")
	require.NoError(t, err)
	assert.Nil(t, released.Binding)

	n, _ := c.Composer.Plan.Get(released.ID)
	chart := n.(*plan.HelmChart)
	assert.Equal(t, "metrics", chart.Namespace)
	assert.True(t, chart.CreateNamespace)
	ingress := chart.Values["ingress"].(map[string]any)
	assert.Equal(t, "kube-ops-view.eu-west-1.apps.example.com", ingress["hostname"])
	assert.NotContains(t, ingress["annotations"], "alb.ingress.kubernetes.io/certificate-arn")
}

func TestRelease_ValuesOverride(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	c.Values = fstest.MapFS{
		"kube-ops-view.yaml": {Data: []byte("service:\n  type: LoadBalancer\nreplicaCount: 2\n")},
	}
	released, err := c.KubeOpsView(context.Background(), "kube-ops-view")
	require.NoError(t, err)

	n, _ := c.Composer.Plan.Get(released.ID)
	values := n.(*plan.HelmChart).Values
	assert.Equal(t, "LoadBalancer", values["service"].(map[string]any)["type"])
	assert.EqualValues(t, 2, values["replicaCount"])
	assert.Equal(t, false, values["redis"].(map[string]any)["enabled"])

	// Charts without an override keep their values.
	c.Values = fstest.MapFS{"broken.yaml": {Data: []byte("a: [")}}
	_, err = c.CassKop(context.Background(), "casskop")
	require.NoError(t, err)

	c.Values = fstest.MapFS{"kube-ops-view.yaml": {Data: []byte("a: [")}}
	_, err = c.KubeOpsView(context.Background(), "kube-ops-view-2")
	assert.True(t, failure.Is(err, failure.ParseError))
}

func TestCassKopCRDPath(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"1.15", "deploy/crds/v1beta1/"},
		{"1.14.9", "deploy/crds/v1beta1/"},
		{"1.16", "deploy/crds/"},
		{"1.27", "deploy/crds/"},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := CassKopCRDPath(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CassKopCRDPath("latest")
	assert.True(t, failure.Is(err, failure.InvalidSpec))
}

func TestCassKopAndCluster(t *testing.T) {
	cl := testCluster()
	cl.Version = "1.15"
	c := newCatalog(t, cl, testSettings())
	ctx := context.Background()

	operator, err := c.CassKop(ctx, "casskop")
	require.NoError(t, err)
	assert.Equal(t, plan.ID("casskop/chart"), operator.ID)
	for _, crd := range []plan.ID{"casskop/crd", "casskop/crd-restore", "casskop/crd-backup"} {
		assert.True(t, c.Composer.Plan.DependsOn(operator.ID, crd), "chart must wait for %s", crd)
	}

	applied, err := c.CassandraCluster(ctx, "casskop-cluster", operator.ID)
	require.NoError(t, err)
	assert.True(t, c.Composer.Plan.DependsOn(applied.ID, operator.ID))

	cc, err := applied.Documents.One(manifest.Selector{Kind: "CassandraCluster"})
	require.NoError(t, err)
	n, err := cc.Get("spec.topology.dc[0].nodesPerRacks")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestIdentities(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	ctx := context.Background()

	argo, err := c.ArgoIdentity(ctx, "argo")
	require.NoError(t, err)
	assert.Equal(t, "argo", argo.Namespace)
	n, _ := c.Composer.Plan.Get(argo.Permissions)
	assert.Equal(t, []any{
		"arn:aws:s3:::batch-artifact-repository-123456789012",
		"arn:aws:s3:::batch-artifact-repository-123456789012/*",
	}, n.(*plan.Policy).Statements[0].Resource)

	k101, err := c.K8s101Identity(ctx, "k8s-101-role")
	require.NoError(t, err)
	assert.Equal(t, 1, k101.Statements)

	xray, err := c.XRayDaemonIdentity(ctx, "xray-daemon")
	require.NoError(t, err)
	assert.Equal(t, "xray-daemon", xray.Name)
	assert.Positive(t, xray.Statements)

	cl := testCluster()
	cl.Account = ""
	_, err = newCatalog(t, cl, testSettings()).ArgoIdentity(ctx, "argo")
	assert.True(t, failure.Is(err, failure.MissingRequiredField))
}

func TestInstallAll(t *testing.T) {
	c := newCatalog(t, testCluster(), testSettings())
	require.NoError(t, c.InstallAll(context.Background(), "k8sAddOns"))

	p := c.Composer.Plan
	assert.True(t, p.DependsOn("k8sAddOns/cass-nodetool/manifest", "k8sAddOns/casskop/chart"))
	assert.True(t, p.DependsOn("k8sAddOns/casskop-cluster", "k8sAddOns/casskop/crd"))

	tmpl, err := template.NewBuilder(p).Build()
	require.NoError(t, err)
	assert.Len(t, tmpl.Outputs, 11)
	assert.Contains(t, tmpl.Outputs, "K8sAddOnsArgoRoleOutput")
	assert.Contains(t, tmpl.Resources, "K8sAddOnsExternalDnsIdentityRole")
	assert.Equal(t, template.TypeHelmChart, tmpl.Resources["K8sAddOnsCasskopChart"].Type)
}
