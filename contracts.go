// Package wetwire_eks defines the artifacts wetwire-eks produces.
//
// wetwire-eks composes Kubernetes manifests, Helm releases and IRSA
// identities for an existing EKS cluster and emits them as a CloudFormation
// template (or a CDK cloud assembly). The CLI prints these result types as
// JSON or YAML.
package wetwire_eks

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// TemplateFormatVersion is the only CloudFormation template version.
const TemplateFormatVersion = "2010-09-09"

// NewTemplate returns an empty template.
func NewTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: TemplateFormatVersion,
		Description:              description,
		Resources:                make(map[string]ResourceDef),
	}
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type       string         `json:"Type" yaml:"Type"`
	Properties map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
}

// SynthResult is the JSON output from `wetwire-eks synth`.
type SynthResult struct {
	Success   bool      `json:"success"`
	Stacks    []string  `json:"stacks,omitempty"`
	Template  *Template `json:"template,omitempty"`
	Assembly  string    `json:"assembly,omitempty"`
	Resources []string  `json:"resources,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
}

// ValidateResult is the JSON output from `wetwire-eks validate`.
type ValidateResult struct {
	Success   bool     `json:"success"`
	Resources int      `json:"resources"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ListResult is the JSON output from `wetwire-eks list`.
type ListResult struct {
	Stacks    []ListStack    `json:"stacks,omitempty"`
	Resources []ListResource `json:"resources,omitempty"`
}

// ListStack is a registered stack in the list output.
type ListStack struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// ListResource is a single plan node in the list output.
type ListResource struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Detail    string   `json:"detail,omitempty"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// DiffEntry is one changed resource or output.
type DiffEntry struct {
	Resource string   `json:"resource"`
	Type     string   `json:"type"`
	Changes  []string `json:"changes,omitempty"`
}

// TemplateDiff lists the changes between two templates.
type TemplateDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// DiffSummary counts the entries of a TemplateDiff.
type DiffSummary struct {
	Total    int `json:"total"`
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// DiffResult is the JSON output from `wetwire-eks diff`.
type DiffResult struct {
	Success bool         `json:"success"`
	Diff    TemplateDiff `json:"diff"`
	Summary DiffSummary  `json:"summary"`
	Errors  []string     `json:"errors,omitempty"`
}
