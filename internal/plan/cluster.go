package plan

import (
	"fmt"
	"strings"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// Cluster holds the attributes of the existing EKS cluster the plan
// targets.
type Cluster struct {
	Name    string
	Version string
	// KubectlRoleArn is the role the kubectl provider assumes to apply
	// manifests and charts.
	KubectlRoleArn string
	// KubectlProviderServiceToken is the ARN of the kubectl provider
	// function backing the custom resources.
	KubectlProviderServiceToken string
	// OIDCProviderArn may be empty, in which case it is derived from
	// OIDCIssuer in the deploying account.
	OIDCProviderArn string
	// OIDCIssuer is the cluster's OIDC issuer URL, with or without scheme.
	OIDCIssuer string
	Region     string
	Account    string
	VpcID      string
}

// Issuer returns the OIDC issuer without its URL scheme, as IAM condition
// keys expect it.
func (c Cluster) Issuer() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.OIDCIssuer, "https://"), "http://")
}

// Validate reports every attribute an emitter needs that is missing.
func (c Cluster) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"cluster_name", c.Name},
		{"kubectl_role_arn", c.KubectlRoleArn},
		{"kubectl_provider_service_token", c.KubectlProviderServiceToken},
		{"oidc_issuer", c.OIDCIssuer},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return failure.New(failure.MissingRequiredField, "validate cluster", c.Name,
			fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}
