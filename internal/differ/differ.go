// Package differ provides semantic comparison of synthesized templates.
//
// Kubernetes resources are compared document by document: a manifest that
// gains a ConfigMap reports the ConfigMap, not a changed JSON string.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"slices"
	"sort"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// outputType marks output entries in a diff.
const outputType = "Output"

// Options configures the differ.
type Options struct {
	// IgnoreOrder ignores array element order in comparisons
	IgnoreOrder bool
}

// Result contains the difference between two templates.
type Result struct {
	Diff    wetwire.TemplateDiff
	Summary wetwire.DiffSummary
}

// Compare compares two templates and returns differences.
func Compare(template1, template2 *wetwire.Template, opts Options) (*Result, error) {
	result := &Result{}

	res1 := template1.Resources
	res2 := template2.Resources

	for name, def := range res2 {
		if _, exists := res1[name]; !exists {
			result.Diff.Added = append(result.Diff.Added, wetwire.DiffEntry{Resource: name, Type: def.Type})
		}
	}
	for name, def := range res1 {
		if _, exists := res2[name]; !exists {
			result.Diff.Removed = append(result.Diff.Removed, wetwire.DiffEntry{Resource: name, Type: def.Type})
		}
	}
	for name, def1 := range res1 {
		if def2, exists := res2[name]; exists {
			if changes := compareResources(def1, def2, opts); len(changes) > 0 {
				result.Diff.Modified = append(result.Diff.Modified, wetwire.DiffEntry{
					Resource: name,
					Type:     def1.Type,
					Changes:  changes,
				})
			}
		}
	}

	compareOutputs(&result.Diff, template1.Outputs, template2.Outputs, opts)

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)

	result.Summary = wetwire.DiffSummary{
		Added:    len(result.Diff.Added),
		Removed:  len(result.Diff.Removed),
		Modified: len(result.Diff.Modified),
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified

	return result, nil
}

// CompareFiles compares two template files.
func CompareFiles(file1, file2 string, opts Options) (*Result, error) {
	t1, err := LoadTemplate(file1)
	if err != nil {
		return nil, err
	}
	t2, err := LoadTemplate(file2)
	if err != nil {
		return nil, err
	}
	return Compare(t1, t2, opts)
}

// LoadTemplate loads a template from a JSON or YAML file.
func LoadTemplate(path string) (*wetwire.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.FromFS("load template", path, err)
	}

	var template wetwire.Template
	if err := json.Unmarshal(data, &template); err != nil {
		if err := yaml.Unmarshal(data, &template); err != nil {
			return nil, failure.New(failure.ParseError, "load template", path,
				fmt.Errorf("not JSON or YAML: %w", err))
		}
	}
	if template.Resources == nil {
		template.Resources = map[string]wetwire.ResourceDef{}
	}
	return &template, nil
}

func compareResources(def1, def2 wetwire.ResourceDef, opts Options) []string {
	var changes []string

	if def1.Type != def2.Type {
		changes = append(changes, fmt.Sprintf("Type changed: %s → %s", def1.Type, def2.Type))
	}

	props1, props2 := def1.Properties, def2.Properties
	m1, ok1 := documents(props1["Manifest"])
	m2, ok2 := documents(props2["Manifest"])
	if ok1 && ok2 {
		changes = append(changes, compareDocuments(m1, m2, opts)...)
		props1 = without(props1, "Manifest")
		props2 = without(props2, "Manifest")
	}
	changes = append(changes, compareProperties("", props1, props2, opts)...)

	if !slices.Equal(def1.DependsOn, def2.DependsOn) {
		changes = append(changes, "DependsOn changed")
	}

	return changes
}

// documents indexes a literal manifest string by kind, namespace and name.
// Manifests joined with references are not literal and report false.
func documents(v any) (map[string]string, bool) {
	s, ok := v.(string)
	if !ok || !gjson.Valid(s) {
		return nil, false
	}
	parsed := gjson.Parse(s)
	if !parsed.IsArray() {
		return nil, false
	}
	out := make(map[string]string)
	for i, doc := range parsed.Array() {
		key := doc.Get("kind").String() + " " + doc.Get("metadata.name").String()
		if ns := doc.Get("metadata.namespace").String(); ns != "" {
			key = doc.Get("kind").String() + " " + ns + "/" + doc.Get("metadata.name").String()
		}
		if _, dup := out[key]; dup {
			key = fmt.Sprintf("%s #%d", key, i)
		}
		out[key] = doc.Raw
	}
	return out, true
}

func compareDocuments(docs1, docs2 map[string]string, opts Options) []string {
	var changes []string
	for key, raw2 := range docs2 {
		raw1, ok := docs1[key]
		if !ok {
			changes = append(changes, fmt.Sprintf("Manifest: %s added", key))
			continue
		}
		var v1, v2 any
		if json.Unmarshal([]byte(raw1), &v1) != nil || json.Unmarshal([]byte(raw2), &v2) != nil || !deepEqual(v1, v2, opts) {
			changes = append(changes, fmt.Sprintf("Manifest: %s modified", key))
		}
	}
	for key := range docs1 {
		if _, ok := docs2[key]; !ok {
			changes = append(changes, fmt.Sprintf("Manifest: %s removed", key))
		}
	}
	sort.Strings(changes)
	return changes
}

func compareOutputs(diff *wetwire.TemplateDiff, out1, out2 map[string]wetwire.Output, opts Options) {
	for name := range out2 {
		if _, ok := out1[name]; !ok {
			diff.Added = append(diff.Added, wetwire.DiffEntry{Resource: name, Type: outputType})
		}
	}
	for name, o1 := range out1 {
		o2, ok := out2[name]
		if !ok {
			diff.Removed = append(diff.Removed, wetwire.DiffEntry{Resource: name, Type: outputType})
			continue
		}
		var changes []string
		if !deepEqual(o1.Value, o2.Value, opts) {
			changes = append(changes, "Value modified")
		}
		if o1.Description != o2.Description {
			changes = append(changes, "Description modified")
		}
		if len(changes) > 0 {
			diff.Modified = append(diff.Modified, wetwire.DiffEntry{Resource: name, Type: outputType, Changes: changes})
		}
	}
}

// compareProperties recursively compares property maps.
func compareProperties(prefix string, props1, props2 map[string]any, opts Options) []string {
	var changes []string

	for key, val2 := range props2 {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if val1, exists := props1[key]; exists {
			if !deepEqual(val1, val2, opts) {
				changes = append(changes, fmt.Sprintf("%s modified", path))
			}
		} else {
			changes = append(changes, fmt.Sprintf("%s added", path))
		}
	}

	for key := range props1 {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if _, exists := props2[key]; !exists {
			changes = append(changes, fmt.Sprintf("%s removed", path))
		}
	}

	sort.Strings(changes)
	return changes
}

// deepEqual compares two values deeply, optionally ignoring order.
func deepEqual(a, b any, opts Options) bool {
	if opts.IgnoreOrder {
		a = normalizeValue(a)
		b = normalizeValue(b)
	}
	return reflect.DeepEqual(a, b)
}

// normalizeValue sorts arrays by their JSON encoding, recursively.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []any:
		result := make([]any, len(val))
		keys := make([]string, len(val))
		for i, e := range val {
			result[i] = normalizeValue(e)
		}
		idx := make([]int, len(val))
		for i := range idx {
			idx[i] = i
			b, _ := json.Marshal(result[i])
			keys[i] = string(b)
		}
		sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
		sorted := make([]any, len(val))
		for i, j := range idx {
			sorted[i] = result[j]
		}
		return sorted
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = normalizeValue(v)
		}
		return result
	default:
		return v
	}
}

func without(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// sortEntries sorts diff entries by resource name.
func sortEntries(entries []wetwire.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Resource < entries[j].Resource
	})
}
