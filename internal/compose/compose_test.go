package compose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/irsa"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
)

const deployment = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: external-dns
spec:
  template:
    spec:
      serviceAccountName: external-dns
      containers:
      - name: external-dns
        image: registry.k8s.io/external-dns/external-dns:v0.13.5
`

func newComposer(t *testing.T) *Composer {
	t.Helper()
	tr := policy.NewTranslator(fstest.MapFS{
		"dns.json": {Data: []byte(`{"Statement":[{"Effect":"Allow","Action":"route53:*","Resource":"*"}]}`)},
	}, nil, nil)
	p := plan.New(plan.Cluster{Name: "demo"})
	return New(p, irsa.NewBinder(tr, nil), nil)
}

func decode(t *testing.T, s string) manifest.Set {
	t.Helper()
	set, err := manifest.Decode(strings.NewReader(s), "test")
	require.NoError(t, err)
	return set
}

func TestApply_IdentityBoundDependsOnReady(t *testing.T) {
	for _, createNamespace := range []bool{true, false} {
		for _, src := range []policy.Source{{}, policy.FromFile("dns.json")} {
			c := newComposer(t)
			applied, err := c.Apply(context.Background(), ManifestOptions{
				ID: "external-dns",
				Identity: &irsa.Spec{
					Name:            "external-dns",
					Namespace:       "kube-system",
					CreateNamespace: createNamespace,
					Policy:          src,
				},
				Produce: Documents(decode(t, deployment)),
			})
			require.NoError(t, err)
			require.NotNil(t, applied.Binding)

			assert.Equal(t, plan.ID("external-dns/manifest"), applied.ID)
			for _, ready := range applied.Binding.Ready() {
				assert.True(t, c.Plan.DependsOn(applied.ID, ready),
					"createNamespace=%v policy=%s: manifest must depend on %s", createNamespace, src, ready)
			}
			if createNamespace {
				assert.True(t, c.Plan.DependsOn(applied.ID, "external-dns/namespace"))
			}

			order, err := c.Plan.Order()
			require.NoError(t, err)
			assert.Equal(t, applied.ID, order[len(order)-1].NodeID())
		}
	}
}

func TestApply_ProducerSeesIdentity(t *testing.T) {
	c := newComposer(t)
	var seen Context
	_, err := c.Apply(context.Background(), ManifestOptions{
		ID:       "eksutils",
		Identity: &irsa.Spec{Name: "eksutils-admin", Namespace: "eksutils"},
		Produce: func(_ context.Context, cc Context) (manifest.Set, error) {
			seen = cc
			return decode(t, deployment), nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, seen.Identity)
	assert.Equal(t, "eksutils-admin", seen.Identity.Name)
	assert.Equal(t, "eksutils", seen.Identity.Namespace)
	assert.Equal(t, "demo", seen.Cluster.Name)
}

func TestApply_Plain(t *testing.T) {
	c := newComposer(t)
	applied, err := c.Apply(context.Background(), ManifestOptions{
		ID:      "metrics-server",
		Produce: Documents(decode(t, deployment)),
	})
	require.NoError(t, err)
	assert.Nil(t, applied.Binding)
	assert.Equal(t, plan.ID("metrics-server"), applied.ID)
	assert.Equal(t, 1, c.Plan.Len())
	assert.Empty(t, c.Plan.Dependencies(applied.ID))

	n, _ := c.Plan.Get("metrics-server")
	docs := n.(*plan.Manifest).Documents
	require.Len(t, docs, 1)
	assert.Equal(t, "Deployment", docs[0]["kind"])
}

func TestApply_Errors(t *testing.T) {
	c := newComposer(t)

	_, err := c.Apply(context.Background(), ManifestOptions{ID: "x"})
	assert.True(t, failure.Is(err, failure.MissingRequiredField))

	boom := errors.New("boom")
	_, err = c.Apply(context.Background(), ManifestOptions{
		ID:      "y",
		Produce: func(context.Context, Context) (manifest.Set, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = c.Apply(context.Background(), ManifestOptions{
		ID:        "z",
		Produce:   Documents(nil),
		DependsOn: []plan.ID{"missing"},
	})
	assert.True(t, failure.Is(err, failure.InvalidSpec))
}

func TestRelease_GatedOnIdentity(t *testing.T) {
	c := newComposer(t)
	rel, err := c.Release(context.Background(), ReleaseOptions{
		ID: "aws-load-balancer-controller",
		Identity: &irsa.Spec{
			Name:      "aws-load-balancer-controller",
			Namespace: "kube-system",
			Policy:    policy.FromFile("dns.json"),
		},
		Chart: HelmRelease{
			Chart:      "aws-load-balancer-controller",
			Repository: "https://aws.github.io/eks-charts",
			Namespace:  "kube-system",
			Values:     map[string]any{"clusterName": "demo"},
			Wait:       true,
			Timeout:    15 * time.Minute,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, plan.ID("aws-load-balancer-controller/chart"), rel.ID)
	assert.Equal(t, []plan.ID{
		"aws-load-balancer-controller/identity",
		"aws-load-balancer-controller/policy",
	}, c.Plan.Dependencies(rel.ID))

	n, ok := c.Plan.Get(rel.ID)
	require.True(t, ok)
	chart := n.(*plan.HelmChart)
	assert.Equal(t, "aws-load-balancer-controller", chart.Release)
	assert.Equal(t, 15*time.Minute, chart.Timeout)
}

func TestRelease_Plain(t *testing.T) {
	c := newComposer(t)
	require.NoError(t, c.Plan.Add(&plan.Manifest{ID: "crds"}))

	rel, err := c.Release(context.Background(), ReleaseOptions{
		ID:        "kube-ops-view",
		Chart:     HelmRelease{Chart: "kube-ops-view"},
		DependsOn: []plan.ID{"crds"},
	})
	require.NoError(t, err)
	assert.Nil(t, rel.Binding)
	assert.Equal(t, []plan.ID{"crds"}, c.Plan.Dependencies("kube-ops-view"))

	n, _ := c.Plan.Get("kube-ops-view")
	assert.Equal(t, "default", n.(*plan.HelmChart).Namespace)

	_, err = c.Release(context.Background(), ReleaseOptions{ID: "empty"})
	assert.True(t, failure.Is(err, failure.MissingRequiredField))
}

func TestOutputAndDependOn(t *testing.T) {
	c := newComposer(t)
	bd, err := c.Identity(context.Background(), "argo", irsa.Spec{Name: "argo", Namespace: "argo"})
	require.NoError(t, err)

	require.NoError(t, c.Output("argoRoleOutput", bd.RoleArn(), ""))
	require.NoError(t, c.DependOn("argoRoleOutput", bd.Identity))
	assert.True(t, c.Plan.DependsOn("argoRoleOutput", "argo/identity"))
}
