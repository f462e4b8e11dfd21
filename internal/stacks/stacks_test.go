package stacks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-eks-go/internal/addons"
	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
	"github.com/lex00/wetwire-eks-go/internal/template"
)

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, failure.Newf(failure.NetworkFailure, "fetch", url, "404 Not Found")
	}
	return []byte(body), nil
}

func albFixtures() fakeFetcher {
	base := addons.DefaultURLs().AlbIngressBase
	return fakeFetcher{
		base + "iam-policy.json": `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"ec2:Describe*","Resource":"*"}]}`,
		base + "rbac-role.yaml": `apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: alb-ingress-controller
`,
		base + "alb-ingress-controller.yaml": `apiVersion: apps/v1
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
	}
}

func testEnv(f fakeFetcher) Env {
	return Env{
		Cluster: plan.Cluster{
			Name:                        "demo",
			Version:                     "1.27",
			KubectlRoleArn:              "arn:aws:iam::123456789012:role/kubectl",
			KubectlProviderServiceToken: "arn:aws:lambda:eu-west-1:123456789012:function:kubectl",
			OIDCIssuer:                  "https://oidc.eks.eu-west-1.amazonaws.com/id/ABC",
			Region:                      "eu-west-1",
			Account:                     "123456789012",
			VpcID:                       "vpc-0123456789abcdef0",
		},
		Settings: addons.Settings{
			HostedZone:             "zone.example.com",
			AppDomain:              "apps.example.com",
			ExternalDNSPolicy:      "upsert-only",
			CassandraNodesPerRacks: 1,
		},
		Loader:     manifest.NewLoader(addons.Manifests(), f, nil),
		Translator: policy.NewTranslator(nil, f, nil),
	}
}

func TestSelect(t *testing.T) {
	got, err := Select([]string{"StatefulCluster", "EksIrsa", "StatefulCluster"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "StatefulCluster", got[0].Name)
	assert.Equal(t, "EksIrsa", got[1].Name)

	_, err = Select([]string{"Nope"})
	assert.True(t, failure.Is(err, failure.InvalidSpec))
	assert.Contains(t, err.Error(), "EksIrsa")

	_, err = Select(nil)
	assert.True(t, failure.Is(err, failure.MissingRequiredField))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"AlbIngressControllerStack", "EksIrsa", "StatefulCluster"}, Names())
	assert.Len(t, All(), 3)
}

func TestEksIrsa(t *testing.T) {
	s, ok := Lookup("EksIrsa")
	require.True(t, ok)

	p, err := s.Plan(context.Background(), testEnv(nil))
	require.NoError(t, err)

	n, ok := p.Get("mypod2")
	require.True(t, ok)
	pod := n.(*plan.Manifest)
	require.Len(t, pod.Documents, 1)
	doc, err := manifest.NewDocument(pod.Documents[0])
	require.NoError(t, err)
	assert.Equal(t, manifest.Kind("Pod"), doc.Kind())
	sa, err := doc.GetString("spec.serviceAccountName")
	require.NoError(t, err)
	assert.Equal(t, "myserviceaccount", sa)
	img, err := doc.GetString("spec.containers[0].image")
	require.NoError(t, err)
	assert.Equal(t, "pahud/aws-whoami", img)

	assert.True(t, p.DependsOn("mypod2", "MyServiceAccount/identity"))

	tmpl, err := template.NewBuilder(p).Build()
	require.NoError(t, err)
	assert.Contains(t, tmpl.Resources, "MyServiceAccountIdentityRole")
	assert.Contains(t, tmpl.Resources, "Mypod2")
	assert.Equal(t, "eu-west-1", tmpl.Outputs["Region"].Value)
	assert.Equal(t, "1.27", tmpl.Outputs["ClusterVersion"].Value)
	assert.Contains(t, tmpl.Outputs, "SARoleArn")
}

func TestAlbIngressControllerStack(t *testing.T) {
	s, ok := Lookup("AlbIngressControllerStack")
	require.True(t, ok)

	p, err := s.Plan(context.Background(), testEnv(albFixtures()))
	require.NoError(t, err)

	for _, id := range []plan.ID{
		"alb-ingress-controller/manifest",
		"external-dns/manifest",
		"metrics-server",
		"cluster-autoscaler/manifest",
		"ebs-csi-driver/manifest",
		"eksutils-admin/manifest",
		"eksutils-admin-fargate/manifest",
		"xray-daemon/identity",
		"xray-daemon/policy",
	} {
		_, ok := p.Get(id)
		assert.True(t, ok, "missing %s", id)
	}

	// external-dns filters on the application domain in this stack.
	n, _ := p.Get("external-dns/manifest")
	set := manifest.Set{}
	for _, obj := range n.(*plan.Manifest).Documents {
		d, err := manifest.NewDocument(obj)
		require.NoError(t, err)
		set = append(set, d)
	}
	dep, err := set.One(manifest.Selector{Kind: "Deployment"})
	require.NoError(t, err)
	args, err := dep.Get("spec.template.spec.containers[0].args")
	require.NoError(t, err)
	assert.Contains(t, args, "--domain-filter=apps.example.com")

	xray, _ := p.Get("xray-daemon/identity")
	assert.Equal(t, "system:serviceaccount:default:xray-daemon", xray.(*plan.ServiceAccount).Subject())

	tmpl, err := template.NewBuilder(p).Build()
	require.NoError(t, err)
	require.Contains(t, tmpl.Outputs, "XRayDaemonRoleArn")
	assert.Equal(t,
		map[string]any{"Fn::GetAtt": []any{"XrayDaemonIdentityRole", "Arn"}},
		tmpl.Outputs["XRayDaemonRoleArn"].Value)
	assert.Contains(t, tmpl.Resources, "XrayDaemonIdentityRole")
}

func TestStatefulCluster_FetchFailure(t *testing.T) {
	s, ok := Lookup("StatefulCluster")
	require.True(t, ok)

	_, err := s.Plan(context.Background(), testEnv(fakeFetcher{}))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.NetworkFailure))
	assert.Contains(t, err.Error(), "stack StatefulCluster")
}
