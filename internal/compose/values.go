package compose

import (
	"io/fs"

	"sigs.k8s.io/yaml"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// LoadValues reads a Helm values file. The result holds only JSON types, so
// it can be merged and serialized like any chart value tree.
func LoadValues(fsys fs.FS, name string) (map[string]any, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, failure.FromFS("load values", name, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, failure.New(failure.ParseError, "load values", name, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// MergeValues deep-merges overrides into base and returns base. Maps are
// merged key by key; any other value in overrides replaces base's.
func MergeValues(base, overrides map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range overrides {
		ov, ok := v.(map[string]any)
		if !ok {
			base[k] = v
			continue
		}
		bv, ok := base[k].(map[string]any)
		if !ok {
			bv = map[string]any{}
		}
		base[k] = MergeValues(bv, ov)
	}
	return base
}
