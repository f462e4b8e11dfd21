// Package validation checks a plan and its synthesized template before
// deployment.
//
// Two passes run:
//   - plan checks: Kubernetes documents are well formed and workloads run
//     as service accounts bound in their own namespace
//   - cfn-lint-go: the template is valid CloudFormation (library dependency)
package validation

import (
	"fmt"
	"os"
	"strings"

	"github.com/lex00/cfn-lint-go/pkg/lint"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/template"
)

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// PlanResult contains the findings of the plan checks.
type PlanResult struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidationResult contains all validation results for a plan.
type ValidationResult struct {
	PlanResult    *PlanResult    `json:"plan_result"`
	CfnLintResult *CfnLintResult `json:"cfn_lint_result"`
}

// Passed reports whether both passes succeeded.
func (r ValidationResult) Passed() bool {
	return r.PlanResult != nil && r.PlanResult.Passed &&
		r.CfnLintResult != nil && r.CfnLintResult.Passed
}

// CheckPlan inspects every manifest document in p.
func CheckPlan(p *plan.Plan) *PlanResult {
	result := &PlanResult{Errors: []string{}, Warnings: []string{}}

	// Service accounts declared by identities, by name.
	bound := make(map[string][]string)
	for _, n := range p.Nodes() {
		if sa, ok := n.(*plan.ServiceAccount); ok {
			bound[sa.Name] = append(bound[sa.Name], sa.Namespace)
		}
	}

	for _, n := range p.Nodes() {
		m, ok := n.(*plan.Manifest)
		if !ok {
			continue
		}
		for i, obj := range m.Documents {
			where := fmt.Sprintf("%s: document %d", m.ID, i)
			doc, err := manifest.NewDocument(obj)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			if doc.Kind() != "" && doc.Name() != "" {
				where = fmt.Sprintf("%s: %s", m.ID, doc)
			}
			checkDocument(result, where, doc, bound)
		}
	}

	result.Passed = len(result.Errors) == 0
	return result
}

func checkDocument(result *PlanResult, where string, doc *manifest.Document, bound map[string][]string) {
	var missing []string
	if doc.APIVersion() == "" {
		missing = append(missing, "apiVersion")
	}
	if doc.Kind() == "" {
		missing = append(missing, "kind")
	}
	if doc.Name() == "" {
		missing = append(missing, "metadata.name")
	}
	if len(missing) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: missing %s", where, strings.Join(missing, ", ")))
		return
	}

	if doc.Kind().ClusterScoped() && doc.Namespace() != "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: %s is cluster-scoped; namespace %q is ignored", where, doc.Kind(), doc.Namespace()))
	}

	sa, ok := doc.ServiceAccountName()
	if !ok || sa == "" {
		return
	}
	namespaces, declared := bound[sa]
	if !declared {
		return
	}
	ns := doc.Namespace()
	if ns == "" {
		ns = "default"
	}
	for _, b := range namespaces {
		if b == ns {
			return
		}
	}
	result.Errors = append(result.Errors, fmt.Sprintf(
		"%s: runs as service account %q in namespace %q, but it is bound in %s",
		where, sa, ns, strings.Join(namespaces, ", ")))
}

// CheckTemplate writes tmpl to a temporary file and lints it.
func CheckTemplate(tmpl *wetwire.Template) (*CfnLintResult, error) {
	data, err := template.ToJSON(tmpl)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "wetwire-eks-*.json")
	if err != nil {
		return nil, fmt.Errorf("creating temp template: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing temp template: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing temp template: %w", err)
	}
	return RunCfnLint(f.Name())
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}

	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Warnings are acceptable.
	result.Passed = len(result.Errors) == 0

	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

// Validate runs the plan checks and, when tmpl is non-nil, cfn-lint.
func Validate(p *plan.Plan, tmpl *wetwire.Template) (*ValidationResult, error) {
	result := &ValidationResult{PlanResult: CheckPlan(p)}
	if tmpl == nil {
		result.CfnLintResult = &CfnLintResult{
			Passed: false,
			Errors: []string{"Build failed - no template to validate"},
		}
		return result, nil
	}

	cfn, err := CheckTemplate(tmpl)
	if err != nil {
		return nil, fmt.Errorf("running cfn-lint: %w", err)
	}
	result.CfnLintResult = cfn
	return result, nil
}
