package wetwire_eks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplate(t *testing.T) {
	tmpl := NewTemplate("add-ons")
	assert.Equal(t, TemplateFormatVersion, tmpl.AWSTemplateFormatVersion)
	assert.Equal(t, "add-ons", tmpl.Description)
	assert.NotNil(t, tmpl.Resources)
}

func TestTemplate_MarshalJSON(t *testing.T) {
	tmpl := NewTemplate("")
	tmpl.Resources["ArgoIdentityRole"] = ResourceDef{
		Type:       "AWS::IAM::Role",
		Properties: map[string]any{"Path": "/"},
	}
	tmpl.Resources["ArgoIdentityServiceAccountResource"] = ResourceDef{
		Type:      "Custom::AWSCDK-EKS-KubernetesResource",
		DependsOn: []string{"ArgoIdentityRole"},
	}

	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"AWSTemplateFormatVersion": "2010-09-09",
		"Resources": {
			"ArgoIdentityRole": {"Type": "AWS::IAM::Role", "Properties": {"Path": "/"}},
			"ArgoIdentityServiceAccountResource": {
				"Type": "Custom::AWSCDK-EKS-KubernetesResource",
				"DependsOn": ["ArgoIdentityRole"]
			}
		}
	}`, string(data))
}

func TestSynthResult_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		result   SynthResult
		expected string
	}{
		{
			name:     "failure",
			result:   SynthResult{Errors: []string{"load manifest a.yaml: file not found"}},
			expected: `{"success": false, "errors": ["load manifest a.yaml: file not found"]}`,
		},
		{
			name:     "assembly",
			result:   SynthResult{Success: true, Stacks: []string{"EksIrsa"}, Assembly: "cdk.out"},
			expected: `{"success": true, "stacks": ["EksIrsa"], "assembly": "cdk.out"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}
