// Package config resolves the values a synthesis run is parameterized by.
//
// Context values (cluster name, domain, Elasticsearch host, ...) are looked
// up in this order: explicit overrides (--context key=value), the context
// file, the environment, and finally the built-in defaults. Environment
// variables are matched by the lower- and upper-case key, so both
// cluster_name and CLUSTER_NAME are honoured.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/plan"
)

// Context keys.
const (
	KeyClusterName                 = "cluster_name"
	KeyClusterVersion              = "cluster_version"
	KeyAppDomain                   = "app_domain"
	KeyHostedZone                  = "hosted_zone"
	KeyExternalDNSPolicy           = "external_dns_policy"
	KeyElasticsearchDomain         = "elasticsearch_domain"
	KeyElasticsearchHost           = "elasticsearch_host"
	KeyCertificateArn              = "certificate_arn"
	KeyCassandraNodesPerRacks      = "cassandra_nodes_per_racks"
	KeyRegion                      = "region"
	KeyAccount                     = "account"
	KeyVpcID                       = "vpc_id"
	KeyEnableStack                 = "enable_stack"
	KeyKubectlRoleArn              = "kubectl_role_arn"
	KeyKubectlProviderServiceToken = "kubectl_provider_service_token"
	KeyOIDCProviderArn             = "oidc_provider_arn"
	KeyOIDCIssuer                  = "oidc_issuer"
)

// Defaults.
const (
	DefaultClusterName           = "eks-cluster"
	DefaultClusterVersion        = "1.27"
	DefaultDomainZone            = "example.com"
	DefaultExternalDNSPolicy     = "upsert-only"
	DefaultCassandraNodesPerRack = 1
	DefaultRegion                = "eu-west-1"
)

var defaults = map[string]any{
	KeyClusterName:            DefaultClusterName,
	KeyClusterVersion:         DefaultClusterVersion,
	KeyAppDomain:              DefaultDomainZone,
	KeyHostedZone:             DefaultDomainZone,
	KeyExternalDNSPolicy:      DefaultExternalDNSPolicy,
	KeyCassandraNodesPerRacks: DefaultCassandraNodesPerRack,
	KeyRegion:                 DefaultRegion,
}

// extraEnv lists environment variables that also feed a key, after the
// key's own names.
var extraEnv = map[string][]string{
	KeyRegion:  {"CDK_DEFAULT_REGION", "AWS_REGION"},
	KeyAccount: {"CDK_DEFAULT_ACCOUNT"},
}

// Keys returns every known context key.
func Keys() []string {
	return []string{
		KeyClusterName, KeyClusterVersion, KeyAppDomain, KeyHostedZone,
		KeyExternalDNSPolicy, KeyElasticsearchDomain, KeyElasticsearchHost,
		KeyCertificateArn, KeyCassandraNodesPerRacks, KeyRegion, KeyAccount,
		KeyVpcID, KeyEnableStack, KeyKubectlRoleArn, KeyKubectlProviderServiceToken,
		KeyOIDCProviderArn, KeyOIDCIssuer,
	}
}

// Context is a read-mostly view over context values.
type Context struct {
	v *viper.Viper
}

// New returns a Context with defaults and environment bindings in place.
func New() *Context {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range Keys() {
		names := append([]string{k, strings.ToUpper(k)}, extraEnv[k]...)
		mustBindEnv(v, append([]string{k}, names...)...)
	}
	return &Context{v: v}
}

func mustBindEnv(v *viper.Viper, input ...string) {
	if err := v.BindEnv(input...); err != nil {
		panic(fmt.Sprintf("config: binding env for %s: %v", input[0], err))
	}
}

// Viper exposes the underlying store, for binding CLI flags.
func (c *Context) Viper() *viper.Viper { return c.v }

// ReadFile loads the "context" object of a JSON or YAML file (the layout of
// a cdk.json). Values from the file take precedence over the environment.
func (c *Context) ReadFile(path string) error {
	f := viper.New()
	f.SetConfigFile(path)
	if err := f.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failure.New(failure.FileNotFound, "read context file", path, err)
		}
		return failure.New(failure.ParseError, "read context file", path, err)
	}
	for k, val := range f.GetStringMap("context") {
		c.v.Set(k, val)
	}
	return nil
}

// Set overrides key, as --context key=value does.
func (c *Context) Set(key string, value any) {
	c.v.Set(key, value)
}

// ParseOverride splits a "key=value" flag argument.
func ParseOverride(kv string) (string, string, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", failure.Newf(failure.InvalidSpec, "parse context", kv, "expected key=value")
	}
	return strings.TrimSpace(k), v, nil
}

// String returns the value of key, or "" when unset.
func (c *Context) String(key string) string { return c.v.GetString(key) }

// Int returns the value of key as an int.
func (c *Context) Int(key string) int { return c.v.GetInt(key) }

// StringSlice returns a comma-separated value as a list.
func (c *Context) StringSlice(key string) []string {
	raw := c.v.GetString(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Require returns the value of key or a MissingRequiredField error.
func (c *Context) Require(key string) (string, error) {
	s := c.String(key)
	if s == "" {
		return "", failure.Newf(failure.MissingRequiredField, "read context", key, "no value in context, environment, or defaults")
	}
	return s, nil
}

// Cluster assembles the target cluster attributes and validates them.
func (c *Context) Cluster() (plan.Cluster, error) {
	cl := plan.Cluster{
		Name:                        c.String(KeyClusterName),
		Version:                     c.String(KeyClusterVersion),
		KubectlRoleArn:              c.String(KeyKubectlRoleArn),
		KubectlProviderServiceToken: c.String(KeyKubectlProviderServiceToken),
		OIDCProviderArn:             c.String(KeyOIDCProviderArn),
		OIDCIssuer:                  c.String(KeyOIDCIssuer),
		Region:                      c.String(KeyRegion),
		Account:                     c.String(KeyAccount),
		VpcID:                       c.String(KeyVpcID),
	}
	if err := cl.Validate(); err != nil {
		return plan.Cluster{}, err
	}
	return cl, nil
}

// Settings returns every known key with its resolved value.
func (c *Context) Settings() map[string]string {
	out := make(map[string]string, len(Keys()))
	for _, k := range Keys() {
		out[k] = c.String(k)
	}
	return out
}
