package intrinsics

import (
	"encoding/json"
)

// Json is a shorthand for map[string]any.
// Used for inline JSON objects like Condition blocks.
type Json = map[string]any

// PolicyVersion is the current IAM policy language version.
const PolicyVersion = "2012-10-17"

// PolicyDocument represents an IAM policy document.
type PolicyDocument struct {
	Version   string            `json:"Version,omitempty"`
	Statement []PolicyStatement `json:"Statement"`
}

// NewPolicyDocument creates a PolicyDocument with the default version.
func NewPolicyDocument(statements ...PolicyStatement) PolicyDocument {
	return PolicyDocument{Version: PolicyVersion, Statement: statements}
}

// PolicyStatement represents an IAM policy statement.
//
// Action, Resource and their Not* forms accept a string or a list, as the
// IAM grammar does.
//
// Example:
//
//	PolicyStatement{
//	    Effect:   Allow,
//	    Action:   []any{"route53:ChangeResourceRecordSets"},
//	    Resource: []any{"arn:aws:route53:::hostedzone/*"},
//	}
type PolicyStatement struct {
	Sid          string `json:"Sid,omitempty"`
	Effect       string `json:"Effect"`
	Principal    any    `json:"Principal,omitempty"`
	NotPrincipal any    `json:"NotPrincipal,omitempty"`
	Action       any    `json:"Action,omitempty"`
	NotAction    any    `json:"NotAction,omitempty"`
	Resource     any    `json:"Resource,omitempty"`
	NotResource  any    `json:"NotResource,omitempty"`
	Condition    Json   `json:"Condition,omitempty"`
}

// Effects.
const (
	Allow = "Allow"
	Deny  = "Deny"
)

// ToMap returns the statement as a plain JSON object.
func (s PolicyStatement) ToMap() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FederatedPrincipal represents a federated identity principal, such as an
// OIDC provider ARN. Serializes to {"Federated": ...} format.
//
// Example:
//
//	FederatedPrincipal{"arn:aws:iam::123456789012:oidc-provider/oidc.eks.eu-west-1.amazonaws.com/id/ABC"}
type FederatedPrincipal []any

// MarshalJSON serializes to {"Federated": ...} format.
func (p FederatedPrincipal) MarshalJSON() ([]byte, error) {
	return marshalPrincipal("Federated", p)
}

func marshalPrincipal(key string, values []any) ([]byte, error) {
	if len(values) == 1 {
		return json.Marshal(map[string]any{key: values[0]})
	}
	return json.Marshal(map[string]any{key: values})
}

// AssumeRoleWithWebIdentity is the action a service account token assumes
// its role with.
const AssumeRoleWithWebIdentity = "sts:AssumeRoleWithWebIdentity"

// StringEquals is the IAM condition operator for exact string matches.
const StringEquals = "StringEquals"
