// Package intrinsics provides the CloudFormation intrinsic functions and IAM
// policy types used when emitting templates.
//
// Core intrinsic functions are re-exported from cloudformation-schema-go:
//
//	Ref{"MyRole"} → {"Ref": "MyRole"}
//	GetAtt{"MyRole", "Arn"} → {"Fn::GetAtt": ["MyRole", "Arn"]}
//	Join{"", []any{"a", Ref{"B"}}} → {"Fn::Join": ["", ["a", {"Ref": "B"}]]}
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join

	// ImportValue represents a CloudFormation Fn::ImportValue intrinsic function.
	ImportValue = intrinsics.ImportValue
)

// Concat joins parts with an empty delimiter. Adjacent string parts are
// merged, and a single part is returned unwrapped.
func Concat(parts ...any) any {
	var merged []any
	for _, p := range parts {
		s, ok := p.(string)
		if ok && s == "" {
			continue
		}
		if n := len(merged); ok && n > 0 {
			if prev, isStr := merged[n-1].(string); isStr {
				merged[n-1] = prev + s
				continue
			}
		}
		merged = append(merged, p)
	}
	switch len(merged) {
	case 0:
		return ""
	case 1:
		return merged[0]
	default:
		return Join{Delimiter: "", Values: merged}
	}
}
