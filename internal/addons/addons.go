// Package addons is the catalogue of cluster add-ons: controllers, agents,
// operators and identities declared through the compose package against the
// embedded manifests and the embedded policy catalogue.
//
// Each add-on is one method on Catalog taking the id it is declared under.
// Ids nest: an add-on declared under "k8sAddOns/external-dns" places its
// identity at "k8sAddOns/external-dns/identity".
package addons

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/version"

	"github.com/lex00/wetwire-eks-go/internal/compose"
	"github.com/lex00/wetwire-eks-go/internal/config"
	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/irsa"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
	"github.com/lex00/wetwire-eks-go/intrinsics"
)

//go:embed manifests
var embedded embed.FS

// Manifests returns the embedded manifest tree. Paths are relative to its
// root, for example "external-dns/external-dns.yaml".
func Manifests() fs.FS {
	sub, err := fs.Sub(embedded, "manifests")
	if err != nil {
		panic(err)
	}
	return sub
}

const kubeSystem = "kube-system"

// Settings are the context values add-ons read.
type Settings struct {
	HostedZone             string
	AppDomain              string
	ExternalDNSPolicy      string
	ElasticsearchDomain    string
	ElasticsearchHost      string
	CertificateArn         string
	CassandraNodesPerRacks int
}

// SettingsFromContext reads Settings from resolved context values.
func SettingsFromContext(c *config.Context) Settings {
	return Settings{
		HostedZone:             c.String(config.KeyHostedZone),
		AppDomain:              c.String(config.KeyAppDomain),
		ExternalDNSPolicy:      c.String(config.KeyExternalDNSPolicy),
		ElasticsearchDomain:    c.String(config.KeyElasticsearchDomain),
		ElasticsearchHost:      c.String(config.KeyElasticsearchHost),
		CertificateArn:         c.String(config.KeyCertificateArn),
		CassandraNodesPerRacks: c.Int(config.KeyCassandraNodesPerRacks),
	}
}

// URLs locates the remote policies and manifests add-ons fetch.
type URLs struct {
	// AlbIngressBase serves iam-policy.json, rbac-role.yaml and
	// alb-ingress-controller.yaml for the legacy ingress controller.
	AlbIngressBase            string
	AwsLoadBalancerPolicy     string
	AwsLoadBalancerCRDs       string
	CassKopBase               string
	AwsLoadBalancerRepository string
	AwsForFluentBitRepository string
	CassKopRepository         string
	KubeOpsViewRepository     string
}

// DefaultURLs returns the upstream locations.
func DefaultURLs() URLs {
	return URLs{
		AlbIngressBase:            "https://raw.githubusercontent.com/kubernetes-sigs/aws-alb-ingress-controller/v1.1.8/docs/examples/",
		AwsLoadBalancerPolicy:     "https://raw.githubusercontent.com/kubernetes-sigs/aws-load-balancer-controller/main/docs/install/iam_policy.json",
		AwsLoadBalancerCRDs:       "https://raw.githubusercontent.com/aws/eks-charts/master/stable/aws-load-balancer-controller/crds/crds.yaml",
		CassKopBase:               "https://raw.githubusercontent.com/Orange-OpenSource/casskop/master/",
		AwsLoadBalancerRepository: "https://aws.github.io/eks-charts",
		AwsForFluentBitRepository: "https://aws.github.io/eks-charts",
		CassKopRepository:         "https://orange-kubernetes-charts-incubator.storage.googleapis.com/",
		KubeOpsViewRepository:     "https://kubernetes-charts.storage.googleapis.com",
	}
}

// Catalog declares add-ons on a composer's plan.
type Catalog struct {
	Composer *compose.Composer
	Loader   *manifest.Loader
	Settings Settings
	URLs     URLs
	// Values holds per-chart values overrides named <chart>.yaml. Nil
	// means none.
	Values fs.FS
	Logger *zap.Logger
}

// NewCatalog returns a Catalog using the upstream URLs. A nil loader reads
// the embedded manifests without network access.
func NewCatalog(c *compose.Composer, loader *manifest.Loader, s Settings, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = manifest.NewLoader(Manifests(), nil, logger)
	}
	return &Catalog{Composer: c, Loader: loader, Settings: s, URLs: DefaultURLs(), Logger: logger}
}

// ExternalDNS runs external-dns with Route 53 access, filtered to the hosted
// zone and owning its records under the cluster name.
func (c *Catalog) ExternalDNS(ctx context.Context, id plan.ID) (*compose.Applied, error) {
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:      "external-dns",
			Namespace: kubeSystem,
			Policy:    policy.FromFile("external-dns.json"),
		},
		Produce: func(ctx context.Context, cc compose.Context) (manifest.Set, error) {
			set, err := c.Loader.LoadExcludingKind("external-dns/external-dns.yaml", manifest.KindServiceAccount)
			if err != nil {
				return nil, err
			}
			dep, err := set.One(manifest.Selector{Kind: manifest.KindDeployment, Name: "external-dns"})
			if err != nil {
				return nil, err
			}
			pol := c.Settings.ExternalDNSPolicy
			err = dep.UpdateContainer("", func(ct manifest.Container) error {
				ct.RewriteFlag("--domain-filter=", c.Settings.HostedZone)
				if pol != "" {
					ct.RewriteFlag("--txt-owner-id=", cc.Cluster.Name)
				}
				if pol == "sync" {
					ct.RewriteFlag("--policy=", pol)
				}
				return nil
			})
			return set, err
		},
	})
}

// ClusterAutoscaler runs the cluster autoscaler with ASG auto-discovery
// scoped to the cluster.
func (c *Catalog) ClusterAutoscaler(ctx context.Context, id plan.ID) (*compose.Applied, error) {
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:      "cluster-autoscaler",
			Namespace: kubeSystem,
			Policy:    policy.FromFile("cluster-autoscaler.json"),
		},
		Produce: func(ctx context.Context, cc compose.Context) (manifest.Set, error) {
			set, err := c.Loader.LoadExcludingKind("cluster-autoscaler/cluster-autoscaler-autodiscover.yaml", manifest.KindServiceAccount)
			if err != nil {
				return nil, err
			}
			dep, err := set.One(manifest.Selector{Kind: manifest.KindDeployment})
			if err != nil {
				return nil, err
			}
			err = dep.UpdateContainer("", func(ct manifest.Container) error {
				const placeholder = "<YOUR CLUSTER NAME>"
				cmd := ct.Command()
				found := false
				for i, s := range cmd {
					if strings.Contains(s, placeholder) {
						cmd[i] = strings.ReplaceAll(s, placeholder, cc.Cluster.Name)
						found = true
					}
				}
				if !found {
					return failure.Newf(failure.MissingRequiredField, "configure autoscaler", dep.String(), "no %s in command", placeholder)
				}
				ct.SetCommand(append(cmd, "--balance-similar-node-groups", "--skip-nodes-with-system-pods=false"))
				return nil
			})
			return set, err
		},
	})
}

// MetricsServer applies every metrics-server manifest. It needs no
// identity.
func (c *Catalog) MetricsServer(ctx context.Context, id plan.ID) (*compose.Applied, error) {
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Produce: func(context.Context, compose.Context) (manifest.Set, error) {
			return c.Loader.LoadDir("metrics-server")
		},
	})
}

// EbsCsiDriver runs the EBS CSI controller and node plugin.
func (c *Catalog) EbsCsiDriver(ctx context.Context, id plan.ID) (*compose.Applied, error) {
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:      "ebs-csi-controller-sa",
			Namespace: kubeSystem,
			Policy:    policy.FromFile("ebs-csi-driver.json"),
		},
		Produce: func(context.Context, compose.Context) (manifest.Set, error) {
			return c.Loader.LoadExcludingKind("ebs-csi-driver/ebs-csi-driver.yaml", manifest.KindServiceAccount)
		},
	})
}

// CloudWatchAgent runs the Container Insights agent. Metrics land in
// /aws/containerinsights/<cluster>/performance.
func (c *Catalog) CloudWatchAgent(ctx context.Context, id plan.ID) (*compose.Applied, error) {
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:            "cloudwatch-agent",
			Namespace:       "amazon-cloudwatch",
			CreateNamespace: true,
			Policy:          policy.FromFile("cloudwatch-agent.json"),
		},
		Produce: func(ctx context.Context, cc compose.Context) (manifest.Set, error) {
			set, err := c.Loader.LoadDirExcludingKind("cloudwatch", manifest.KindServiceAccount)
			if err != nil {
				return nil, err
			}
			cm, err := set.One(manifest.Selector{Kind: manifest.KindConfigMap})
			if err != nil {
				return nil, err
			}
			return set, cm.ReplaceData("cwagentconfig.json", "{{cluster_name}}", cc.Cluster.Name)
		},
	})
}

// EksUtilsOptions configures an EksUtilsAdmin pod.
type EksUtilsOptions struct {
	// Namespace defaults to "default".
	Namespace string
	// KeepNamespace skips creating the namespace, leaving an existing one
	// untouched on deletion.
	KeepNamespace bool
	// Fargate selects the variant with a fluent-bit sidecar shipping logs to
	// Elasticsearch.
	Fargate bool
	Image   string
	Command string
	Args    []string
}

// EksUtilsAdmin runs a cluster-admin debug pod.
func (c *Catalog) EksUtilsAdmin(ctx context.Context, id plan.ID, opts EksUtilsOptions) (*compose.Applied, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = irsa.DefaultNamespace
	}
	file := "eksutils/eksutils-deployment.yaml"
	if opts.Fargate {
		file = "eksutils/eksutils-deployment-fargate.yaml"
	}

	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:            "eksutils-admin",
			Namespace:       ns,
			CreateNamespace: !opts.KeepNamespace,
			Policy:          policy.FromFile("eksutils-admin.json"),
		},
		Produce: func(context.Context, compose.Context) (manifest.Set, error) {
			set, err := c.Loader.LoadExcludingKind(file, manifest.KindServiceAccount)
			if err != nil {
				return nil, err
			}

			crb, err := set.One(manifest.Selector{Kind: manifest.KindClusterRoleBinding})
			if err != nil {
				return nil, err
			}
			if err := crb.Set("subjects[0].namespace", ns); err != nil {
				return nil, err
			}
			crb.SetName("eksutils-admin-" + ns)

			dep, err := set.One(manifest.Selector{Kind: manifest.KindDeployment})
			if err != nil {
				return nil, err
			}
			dep.SetNamespace(ns)
			if err := dep.UpdateContainer("", func(ct manifest.Container) error {
				if opts.Image != "" {
					ct.SetImage(opts.Image)
				}
				if opts.Command != "" {
					ct.SetCommand([]string{opts.Command})
				}
				if opts.Args != nil {
					ct.SetArgs(opts.Args)
				}
				return nil
			}); err != nil {
				return nil, err
			}

			cm, err := set.Optional(manifest.Selector{Kind: manifest.KindConfigMap})
			if err != nil || cm == nil {
				return set, err
			}
			if c.Settings.ElasticsearchHost == "" {
				return nil, failure.Newf(failure.MissingRequiredField, "configure eksutils", string(id), "%s is required for the fluent-bit sidecar", config.KeyElasticsearchHost)
			}
			cm.SetNamespace(ns)
			return set, cm.ReplaceData("fluent-bit.conf", "{{elasticsearch_host}}", c.Settings.ElasticsearchHost)
		},
	})
}

// AlbIngressController runs the legacy v1 ALB ingress controller from its
// upstream manifests.
func (c *Catalog) AlbIngressController(ctx context.Context, id plan.ID) (*compose.Applied, error) {
	base := c.URLs.AlbIngressBase
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:      "alb-ingress-controller",
			Namespace: kubeSystem,
			Policy:    policy.FromURL(base + "iam-policy.json"),
		},
		Produce: func(ctx context.Context, cc compose.Context) (manifest.Set, error) {
			if cc.Cluster.VpcID == "" {
				return nil, failure.Newf(failure.MissingRequiredField, "configure alb ingress controller", string(id), "%s is required", config.KeyVpcID)
			}
			rbac, err := c.Loader.Fetch(ctx, base+"rbac-role.yaml")
			if err != nil {
				return nil, err
			}
			deployment, err := c.Loader.Fetch(ctx, base+"alb-ingress-controller.yaml")
			if err != nil {
				return nil, err
			}
			dep, err := deployment.One(manifest.Selector{Kind: manifest.KindDeployment})
			if err != nil {
				return nil, err
			}
			err = dep.UpdateContainer("", func(ct manifest.Container) error {
				ct.SetArgs(append(ct.Args(),
					"--cluster-name="+cc.Cluster.Name,
					"--feature-gates=wafv2=false",
					"--aws-vpc-id="+cc.Cluster.VpcID,
					"--aws-region="+cc.Cluster.Region,
				))
				return nil
			})
			if err != nil {
				return nil, err
			}
			return append(rbac.ExcludeKind(manifest.KindServiceAccount), dep), nil
		},
	})
}

// release merges the chart's values override, if any, before declaring it.
func (c *Catalog) release(ctx context.Context, opts compose.ReleaseOptions) (*compose.Released, error) {
	if c.Values != nil {
		name := opts.Chart.Chart + ".yaml"
		overrides, err := compose.LoadValues(c.Values, name)
		switch {
		case err == nil:
			opts.Chart.Values = compose.MergeValues(opts.Chart.Values, overrides)
			c.Logger.Info("merged chart values", zap.String("chart", opts.Chart.Chart), zap.String("file", name))
		case !failure.Is(err, failure.FileNotFound):
			return nil, err
		}
	}
	return c.Composer.Release(ctx, opts)
}

// AwsLoadBalancerController installs the controller's CRDs and its Helm
// chart, which reuses the identity's service account.
func (c *Catalog) AwsLoadBalancerController(ctx context.Context, id plan.ID) (*compose.Released, error) {
	crds, err := c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id.Child("crds"),
		Produce: func(ctx context.Context, _ compose.Context) (manifest.Set, error) {
			return c.Loader.Fetch(ctx, c.URLs.AwsLoadBalancerCRDs)
		},
	})
	if err != nil {
		return nil, err
	}

	const name = "aws-load-balancer-controller"
	return c.release(ctx, compose.ReleaseOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:      name,
			Namespace: kubeSystem,
			Policy:    policy.FromURL(c.URLs.AwsLoadBalancerPolicy),
		},
		Chart: compose.HelmRelease{
			Chart:      name,
			Repository: c.URLs.AwsLoadBalancerRepository,
			Release:    id.Base(),
			Namespace:  kubeSystem,
			Values: map[string]any{
				"clusterName": c.Composer.Plan.Cluster().Name,
				"serviceAccount": map[string]any{
					"create": false,
					"name":   name,
				},
			},
		},
		DependsOn: []plan.ID{crds.ID},
	})
}

// AwsForFluentBit ships container logs to CloudWatch Logs and the
// Elasticsearch domain.
func (c *Catalog) AwsForFluentBit(ctx context.Context, id plan.ID) (*compose.Released, error) {
	if c.Settings.ElasticsearchDomain == "" {
		return nil, failure.Newf(failure.MissingRequiredField, "configure fluent bit", string(id), "%s is required", config.KeyElasticsearchDomain)
	}
	doc, err := json.Marshal(intrinsics.NewPolicyDocument(
		intrinsics.PolicyStatement{Effect: intrinsics.Allow, Action: []any{"firehose:PutRecordBatch"}, Resource: "*"},
		intrinsics.PolicyStatement{Effect: intrinsics.Allow, Action: "logs:PutLogEvents", Resource: "arn:aws:logs:*:*:log-group:*:*:*"},
		intrinsics.PolicyStatement{
			Effect:   intrinsics.Allow,
			Action:   []any{"logs:CreateLogStream", "logs:DescribeLogStreams", "logs:PutLogEvents"},
			Resource: "arn:aws:logs:*:*:log-group:*",
		},
		intrinsics.PolicyStatement{Effect: intrinsics.Allow, Action: "logs:CreateLogGroup", Resource: "*"},
		intrinsics.PolicyStatement{
			Effect:   intrinsics.Allow,
			Action:   "es:ESHttp*",
			Resource: "arn:aws:es:::domain/" + c.Settings.ElasticsearchDomain + "/*",
		},
	))
	if err != nil {
		return nil, err
	}

	const name = "aws-for-fluent-bit"
	cl := c.Composer.Plan.Cluster()
	return c.release(ctx, compose.ReleaseOptions{
		ID: id,
		Identity: &irsa.Spec{
			Name:      name,
			Namespace: kubeSystem,
			Policy:    policy.FromInline(string(doc)),
		},
		Chart: compose.HelmRelease{
			Chart:      name,
			Repository: c.URLs.AwsForFluentBitRepository,
			Release:    id.Base(),
			Namespace:  kubeSystem,
			Values: map[string]any{
				"serviceAccount": map[string]any{"create": false, "name": name},
				"cloudWatch": map[string]any{
					"enabled":       true,
					"region":        cl.Region,
					"logStreamName": cl.Name,
					"logGroupName":  "/aws/eks/" + cl.Name + "/logs",
				},
				"elasticsearch": map[string]any{
					"enabled":   true,
					"awsRegion": cl.Region,
					"host":      c.Settings.ElasticsearchHost,
				},
				"firehose": map[string]any{"enabled": false},
				"kinesis":  map[string]any{"enabled": false},
			},
		},
	})
}

// KubeOpsView installs kube-ops-view behind an internet-facing ALB.
func (c *Catalog) KubeOpsView(ctx context.Context, id plan.ID) (*compose.Released, error) {
	cl := c.Composer.Plan.Cluster()
	annotations := map[string]any{
		"kubernetes.io/ingress.class":                    "alb",
		"alb.ingress.kubernetes.io/scheme":               "internet-facing",
		"alb.ingress.kubernetes.io/target-type":          "ip",
		"alb.ingress.kubernetes.io/actions.ssl-redirect": `{"Type": "redirect", "RedirectConfig": { "Protocol": "HTTPS", "Port": "443", "StatusCode": "HTTP_301"}}`,
		"alb.ingress.kubernetes.io/listen-ports":         `[{"HTTP": 80}, {"HTTPS":443}]`,
		"force":                                          "update",
	}
	if c.Settings.CertificateArn != "" {
		annotations["alb.ingress.kubernetes.io/certificate-arn"] = c.Settings.CertificateArn
	}

	return c.release(ctx, compose.ReleaseOptions{
		ID: id,
		Chart: compose.HelmRelease{
			Chart:           "kube-ops-view",
			Repository:      c.URLs.KubeOpsViewRepository,
			Release:         id.Base(),
			Namespace:       "metrics",
			CreateNamespace: true,
			Wait:            true,
			Values: map[string]any{
				"service": map[string]any{"type": "ClusterIP"},
				"redis":   map[string]any{"enabled": false},
				"rbac":    map[string]any{"create": true},
				"ingress": map[string]any{
					"enabled":     true,
					"path":        "/*",
					"hostname":    fmt.Sprintf("kube-ops-view.%s.%s", cl.Region, c.Settings.AppDomain),
					"annotations": annotations,
				},
			},
		},
	})
}

// casskopCRDs are the CassKop custom resource definitions.
var casskopCRDs = []struct{ id, file string }{
	{"crd", "db.orange.com_cassandraclusters_crd.yaml"},
	{"crd-restore", "db.orange.com_cassandrarestores_crd.yaml"},
	{"crd-backup", "db.orange.com_cassandrabackups_crd.yaml"},
}

// CassKopCRDPath returns the CRD directory for a cluster version. Clusters
// older than 1.16 only serve apiextensions v1beta1.
func CassKopCRDPath(clusterVersion string) (string, error) {
	v, err := version.ParseGeneric(clusterVersion)
	if err != nil {
		return "", failure.New(failure.InvalidSpec, "parse cluster version", clusterVersion, err)
	}
	if v.LessThan(version.MajorMinor(1, 16)) {
		return "deploy/crds/v1beta1/", nil
	}
	return "deploy/crds/", nil
}

// CassKop installs the Cassandra operator after its CRDs.
func (c *Catalog) CassKop(ctx context.Context, id plan.ID) (*compose.Released, error) {
	dir, err := CassKopCRDPath(c.Composer.Plan.Cluster().Version)
	if err != nil {
		return nil, err
	}

	var crds []plan.ID
	for _, crd := range casskopCRDs {
		url := c.URLs.CassKopBase + dir + crd.file
		applied, err := c.Composer.Apply(ctx, compose.ManifestOptions{
			ID: id.Child(crd.id),
			Produce: func(ctx context.Context, _ compose.Context) (manifest.Set, error) {
				return c.Loader.Fetch(ctx, url)
			},
		})
		if err != nil {
			return nil, err
		}
		crds = append(crds, applied.ID)
	}

	return c.release(ctx, compose.ReleaseOptions{
		ID: id.Child("chart"),
		Chart: compose.HelmRelease{
			Chart:           "cassandra-operator",
			Repository:      c.URLs.CassKopRepository,
			Release:         id.Base(),
			Namespace:       "cassandra",
			CreateNamespace: true,
			Wait:            true,
			Timeout:         15 * time.Minute,
		},
		DependsOn: crds,
	})
}

// CassandraCluster deploys the demo Cassandra cluster managed by CassKop.
func (c *Catalog) CassandraCluster(ctx context.Context, id plan.ID, dependsOn ...plan.ID) (*compose.Applied, error) {
	return c.Composer.Apply(ctx, compose.ManifestOptions{
		ID: id,
		Produce: func(context.Context, compose.Context) (manifest.Set, error) {
			set, err := c.Loader.LoadDir("casskop")
			if err != nil {
				return nil, err
			}
			cc, err := set.One(manifest.Selector{Kind: "CassandraCluster"})
			if err != nil {
				return nil, err
			}
			return set, cc.Set("spec.topology.dc[0].nodesPerRacks", c.Settings.CassandraNodesPerRacks)
		},
		DependsOn: dependsOn,
	})
}

// ArgoIdentity grants the argo service account the batch artifact bucket.
func (c *Catalog) ArgoIdentity(ctx context.Context, id plan.ID) (*irsa.Binding, error) {
	account := c.Composer.Plan.Cluster().Account
	if account == "" {
		return nil, failure.Newf(failure.MissingRequiredField, "bind argo identity", string(id), "%s is required", config.KeyAccount)
	}
	bucket := "arn:aws:s3:::batch-artifact-repository-" + account
	doc, err := json.Marshal(intrinsics.NewPolicyDocument(intrinsics.PolicyStatement{
		Effect:   intrinsics.Allow,
		Action:   []any{"s3:*"},
		Resource: []any{bucket, bucket + "/*"},
	}))
	if err != nil {
		return nil, err
	}
	return c.Composer.Identity(ctx, id, irsa.Spec{
		Name:      "argo",
		Namespace: "argo",
		Policy:    policy.FromInline(string(doc)),
	})
}

// K8s101Identity is an unrestricted demo identity. Never install it in a
// production account.
func (c *Catalog) K8s101Identity(ctx context.Context, id plan.ID) (*irsa.Binding, error) {
	return c.Composer.Identity(ctx, id, irsa.Spec{
		Name:      "k8s-101-role",
		Namespace: irsa.DefaultNamespace,
		Policy:    policy.FromInline(`{"Version": "2012-10-17", "Statement": [{"Effect": "Allow", "Action": "*", "Resource": "*"}]}`),
	})
}

// XRayDaemonIdentity is the identity an X-Ray daemon set runs as.
func (c *Catalog) XRayDaemonIdentity(ctx context.Context, id plan.ID) (*irsa.Binding, error) {
	return c.Composer.Identity(ctx, id, irsa.Spec{
		Name:      "xray-daemon",
		Namespace: irsa.DefaultNamespace,
		Policy:    policy.FromFile("xray-daemonset.json"),
	})
}

// nodetoolScript reports how many Cassandra pods are down every five
// seconds.
const nodetoolScript = `while true; do echo -n "[$(date)] Number of Cassandra Pods Down in the cluster (Allowed by PDB: 1): " | tee -a /var/log/containers/nodetool.log ; nodetool -h cassandra-demo.cassandra status | grep DN | wc -l | tee -a /var/log/containers/nodetool.log ; sleep 5 ; done`

// InstallAll declares the full add-on bundle under id with an output for
// every identity's role.
func (c *Catalog) InstallAll(ctx context.Context, id plan.ID) error {
	output := func(name string, b *irsa.Binding, arn bool) error {
		value := b.RoleName()
		if arn {
			value = b.RoleArn()
		}
		return c.Composer.Output(id.Child(name), value, "")
	}

	lb, err := c.AwsLoadBalancerController(ctx, id.Child("aws-load-balancer-controller"))
	if err != nil {
		return err
	}
	if err := output("AwsLoadBalancerControllerRoleOutput", lb.Binding, false); err != nil {
		return err
	}

	dns, err := c.ExternalDNS(ctx, id.Child("external-dns"))
	if err != nil {
		return err
	}
	if err := output("externalDNSPolicyRoleOutput", dns.Binding, false); err != nil {
		return err
	}

	if _, err := c.MetricsServer(ctx, id.Child("metrics-server")); err != nil {
		return err
	}

	ca, err := c.ClusterAutoscaler(ctx, id.Child("cluster-autoscaler"))
	if err != nil {
		return err
	}
	if err := output("clusterAutoScalerRoleOutput", ca.Binding, false); err != nil {
		return err
	}

	ebs, err := c.EbsCsiDriver(ctx, id.Child("ebs-csi-driver"))
	if err != nil {
		return err
	}
	if err := output("ebsCsiDriverRoleOutput", ebs.Binding, false); err != nil {
		return err
	}

	eu, err := c.EksUtilsAdmin(ctx, id.Child("eksutils-admin"), EksUtilsOptions{Namespace: "eksutils"})
	if err != nil {
		return err
	}
	if err := output("eksUtilsAdminRoleOutput", eu.Binding, false); err != nil {
		return err
	}

	euf, err := c.EksUtilsAdmin(ctx, id.Child("eksutils-admin-fargate"), EksUtilsOptions{Namespace: "fargate", Fargate: true})
	if err != nil {
		return err
	}
	if err := output("eksUtilsAdminFargateRoleOutput", euf.Binding, false); err != nil {
		return err
	}

	cw, err := c.CloudWatchAgent(ctx, id.Child("cloudwatch-agent"))
	if err != nil {
		return err
	}
	if err := output("cloudWatchAgentRoleOutput", cw.Binding, false); err != nil {
		return err
	}

	fb, err := c.AwsForFluentBit(ctx, id.Child("aws-for-fluent-bit"))
	if err != nil {
		return err
	}
	if err := output("AwsForFluentBitOutput", fb.Binding, true); err != nil {
		return err
	}

	if _, err := c.KubeOpsView(ctx, id.Child("kube-ops-view")); err != nil {
		return err
	}

	casskop, err := c.CassKop(ctx, id.Child("casskop"))
	if err != nil {
		return err
	}
	if _, err := c.CassandraCluster(ctx, id.Child("casskop-cluster"), casskop.ID); err != nil {
		return err
	}

	nodetool, err := c.EksUtilsAdmin(ctx, id.Child("cass-nodetool"), EksUtilsOptions{
		Namespace:     "cassandra",
		KeepNamespace: true,
		Fargate:       true,
		Image:         "cassandra",
		Command:       "/bin/sh",
		Args:          []string{"-c", nodetoolScript},
	})
	if err != nil {
		return err
	}
	if err := c.Composer.DependOn(nodetool.ID, casskop.ID); err != nil {
		return err
	}
	if err := output("cassandraNotetoolRoleOutput", nodetool.Binding, false); err != nil {
		return err
	}

	argo, err := c.ArgoIdentity(ctx, id.Child("argo"))
	if err != nil {
		return err
	}
	if err := output("argoRoleOutput", argo, true); err != nil {
		return err
	}

	k101, err := c.K8s101Identity(ctx, id.Child("k8s-101-role"))
	if err != nil {
		return err
	}
	if err := output("k8s101RoleOutput", k101, true); err != nil {
		return err
	}

	c.Logger.Info("declared add-on bundle", zap.String("id", string(id)), zap.Int("nodes", c.Composer.Plan.Len()))
	return nil
}
