// Package stacks registers the named stacks a synthesis run can emit. Each
// stack declares its resources into a fresh plan.
package stacks

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lex00/wetwire-eks-go/internal/addons"
	"github.com/lex00/wetwire-eks-go/internal/compose"
	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/irsa"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
)

// Stack is a named set of resources.
type Stack struct {
	Name        string
	Description string
	declare     func(ctx context.Context, cat *addons.Catalog) error
}

// Env carries what stacks are built against.
type Env struct {
	Cluster    plan.Cluster
	Settings   addons.Settings
	Loader     *manifest.Loader
	Translator *policy.Translator
	// URLs overrides the upstream locations when non-nil.
	URLs *addons.URLs
	// Values holds Helm values overrides, see addons.Catalog.
	Values fs.FS
	Logger *zap.Logger
}

var registry = []Stack{
	{
		Name:        "EksIrsa",
		Description: "Service account with an IAM role and a pod running as it",
		declare:     declareEksIrsa,
	},
	{
		Name:        "AlbIngressControllerStack",
		Description: "ALB ingress controller, external-dns, metrics-server, autoscaler, EBS CSI driver and admin pods",
		declare:     declareAlbIngressController,
	},
	{
		Name:        "StatefulCluster",
		Description: "Full add-on bundle with CassKop and a demo Cassandra cluster",
		declare:     declareStatefulCluster,
	},
}

// All returns every registered stack in registration order.
func All() []Stack {
	out := make([]Stack, len(registry))
	copy(out, registry)
	return out
}

// Names returns the registered stack names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for _, s := range registry {
		out = append(out, s.Name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the stack called name.
func Lookup(name string) (Stack, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Stack{}, false
}

// Select returns the named stacks in the order given. Unknown names are
// an InvalidSpec error; duplicates are dropped.
func Select(names []string) ([]Stack, error) {
	if len(names) == 0 {
		return nil, failure.Newf(failure.MissingRequiredField, "select stacks", "enable_stack",
			"no stack selected (available: %s)", strings.Join(Names(), ", "))
	}
	seen := make(map[string]bool, len(names))
	var out []Stack
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		s, ok := Lookup(n)
		if !ok {
			return nil, failure.Newf(failure.InvalidSpec, "select stacks", n,
				"unknown stack (available: %s)", strings.Join(Names(), ", "))
		}
		out = append(out, s)
	}
	return out, nil
}

// Plan declares the stack's resources into a new plan.
func (s Stack) Plan(ctx context.Context, env Env) (*plan.Plan, error) {
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("stack", s.Name))

	tr := env.Translator
	if tr == nil {
		tr = policy.NewTranslator(nil, nil, logger)
	}
	p := plan.New(env.Cluster)
	c := compose.New(p, irsa.NewBinder(tr, logger), logger)
	cat := addons.NewCatalog(c, env.Loader, env.Settings, logger)
	if env.URLs != nil {
		cat.URLs = *env.URLs
	}
	cat.Values = env.Values

	if err := s.declare(ctx, cat); err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}
	logger.Debug("declared stack", zap.Int("nodes", p.Len()))
	return p, nil
}

func clusterOutputs(c *compose.Composer) error {
	cl := c.Plan.Cluster()
	if err := c.Output("Region", cl.Region, "Region of the cluster"); err != nil {
		return err
	}
	return c.Output("ClusterVersion", cl.Version, "Kubernetes version of the cluster")
}

func declareEksIrsa(ctx context.Context, cat *addons.Catalog) error {
	c := cat.Composer
	sa, err := c.Identity(ctx, "MyServiceAccount", irsa.Spec{})
	if err != nil {
		return err
	}

	_, err = c.Apply(ctx, compose.ManifestOptions{
		ID: "mypod2",
		Produce: func(context.Context, compose.Context) (manifest.Set, error) {
			doc, err := manifest.FromObject(&corev1.Pod{
				TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
				ObjectMeta: metav1.ObjectMeta{Name: "mypod2", Namespace: sa.Namespace},
				Spec: corev1.PodSpec{
					ServiceAccountName: sa.Name,
					Containers: []corev1.Container{{
						Name:  "main",
						Image: "pahud/aws-whoami",
						Ports: []corev1.ContainerPort{{ContainerPort: 5000}},
					}},
				},
			})
			if err != nil {
				return nil, err
			}
			return manifest.Set{doc}, nil
		},
		DependsOn: sa.Ready(),
	})
	if err != nil {
		return err
	}
	if err := c.Output("SARoleArn", sa.RoleArn(), "Role assumed by MyServiceAccount"); err != nil {
		return err
	}
	return clusterOutputs(c)
}

func declareAlbIngressController(ctx context.Context, cat *addons.Catalog) error {
	if _, err := cat.AlbIngressController(ctx, "alb-ingress-controller"); err != nil {
		return err
	}

	// This stack filters external-dns on the application domain rather than
	// the hosted zone.
	dns := *cat
	dns.Settings.HostedZone = cat.Settings.AppDomain
	if _, err := dns.ExternalDNS(ctx, "external-dns"); err != nil {
		return err
	}

	if _, err := cat.MetricsServer(ctx, "metrics-server"); err != nil {
		return err
	}
	if _, err := cat.ClusterAutoscaler(ctx, "cluster-autoscaler"); err != nil {
		return err
	}
	if _, err := cat.EbsCsiDriver(ctx, "ebs-csi-driver"); err != nil {
		return err
	}
	if _, err := cat.EksUtilsAdmin(ctx, "eksutils-admin", addons.EksUtilsOptions{Namespace: "eksutils"}); err != nil {
		return err
	}
	if _, err := cat.EksUtilsAdmin(ctx, "eksutils-admin-fargate", addons.EksUtilsOptions{Namespace: "fargate"}); err != nil {
		return err
	}

	xray, err := cat.XRayDaemonIdentity(ctx, "xray-daemon")
	if err != nil {
		return err
	}
	if err := cat.Composer.Output("XRayDaemonRoleArn", xray.RoleArn(), "X-Ray daemon service account role"); err != nil {
		return err
	}
	return clusterOutputs(cat.Composer)
}

func declareStatefulCluster(ctx context.Context, cat *addons.Catalog) error {
	if err := cat.InstallAll(ctx, "k8sAddOns"); err != nil {
		return err
	}
	return clusterOutputs(cat.Composer)
}
