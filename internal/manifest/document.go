package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// Document is one Kubernetes manifest document.
type Document struct {
	u *unstructured.Unstructured
}

// NewDocument wraps a decoded object. The object must carry a kind.
func NewDocument(obj map[string]any) (*Document, error) {
	u := &unstructured.Unstructured{Object: obj}
	if u.GetKind() == "" {
		return nil, failure.Newf(failure.ParseError, "decode manifest", "", "document has no kind")
	}
	return &Document{u: u}, nil
}

// FromObject converts a typed API object into a document.
func FromObject(obj runtime.Object) (*Document, error) {
	m, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("converting %T: %w", obj, err)
	}
	// The converter drops zero-valued TypeMeta on typed objects.
	if gvk := obj.GetObjectKind().GroupVersionKind(); !gvk.Empty() {
		m["apiVersion"], m["kind"] = gvk.GroupVersion().String(), gvk.Kind
	}
	unstructured.RemoveNestedField(m, "metadata", "creationTimestamp")
	for _, f := range []string{"spec", "status"} {
		if v, ok := m[f].(map[string]any); ok && len(v) == 0 {
			delete(m, f)
		}
	}
	return NewDocument(m)
}

// Kind returns the document's kind.
func (d *Document) Kind() Kind { return Kind(d.u.GetKind()) }

// APIVersion returns the document's apiVersion.
func (d *Document) APIVersion() string { return d.u.GetAPIVersion() }

// Name returns metadata.name.
func (d *Document) Name() string { return d.u.GetName() }

// SetName sets metadata.name.
func (d *Document) SetName(name string) { d.u.SetName(name) }

// Namespace returns metadata.namespace.
func (d *Document) Namespace() string { return d.u.GetNamespace() }

// SetNamespace sets metadata.namespace.
func (d *Document) SetNamespace(ns string) { d.u.SetNamespace(ns) }

// Object returns the underlying object. Mutating it mutates the document.
func (d *Document) Object() map[string]any { return d.u.Object }

// DeepCopy returns an independent copy.
func (d *Document) DeepCopy() *Document { return &Document{u: d.u.DeepCopy()} }

// String identifies the document as Kind/name.
func (d *Document) String() string {
	if d.Name() == "" {
		return string(d.Kind())
	}
	return string(d.Kind()) + "/" + d.Name()
}

// Get returns the value at a dotted path with optional list indexes, such
// as "subjects[0].namespace".
func (d *Document) Get(path string) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	var cur any = d.u.Object
	for _, s := range segs {
		next, ok := s.step(cur)
		if !ok {
			return nil, failure.Newf(failure.MissingRequiredField, "read field", d.String(), "%s not found", path)
		}
		cur = next
	}
	return cur, nil
}

// GetString is Get for string fields.
func (d *Document) GetString(path string) (string, error) {
	v, err := d.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", failure.Newf(failure.InvalidSpec, "read field", d.String(), "%s is %T, not string", path, v)
	}
	return s, nil
}

// Set writes value at path. Intermediate maps are created as needed; list
// indexes must already exist.
func (d *Document) Set(path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	v, err := jsonValue(value)
	if err != nil {
		return failure.New(failure.InvalidSpec, "write field", d.String(), err)
	}

	var cur any = d.u.Object
	for i, s := range segs {
		last := i == len(segs)-1
		switch c := cur.(type) {
		case map[string]any:
			if s.index >= 0 {
				return failure.Newf(failure.InvalidSpec, "write field", d.String(), "%s: %q is not a list", path, s.key)
			}
			if last {
				c[s.key] = v
				return nil
			}
			next, ok := c[s.key]
			if !ok || next == nil {
				if segs[i+1].index >= 0 {
					return failure.Newf(failure.MissingRequiredField, "write field", d.String(), "%s: list %q not found", path, s.key)
				}
				next = map[string]any{}
				c[s.key] = next
			}
			cur = next
		case []any:
			if s.index < 0 || s.index >= len(c) {
				return failure.Newf(failure.MissingRequiredField, "write field", d.String(), "%s: index out of range", path)
			}
			if last {
				c[s.index] = v
				return nil
			}
			cur = c[s.index]
		default:
			return failure.Newf(failure.InvalidSpec, "write field", d.String(), "%s: cannot descend into %T", path, cur)
		}
	}
	return nil
}

// ReplaceInString replaces every occurrence of old in the string at path.
func (d *Document) ReplaceInString(path, old, new string) error {
	s, err := d.GetString(path)
	if err != nil {
		return err
	}
	return d.Set(path, strings.ReplaceAll(s, old, new))
}

// ReplaceData replaces old with new inside a ConfigMap data entry.
func (d *Document) ReplaceData(key, old, new string) error {
	if d.Kind() != KindConfigMap {
		return failure.Newf(failure.InvalidSpec, "replace data", d.String(), "not a ConfigMap")
	}
	data, found, err := unstructured.NestedStringMap(d.u.Object, "data")
	if err != nil {
		return failure.New(failure.InvalidSpec, "replace data", d.String(), err)
	}
	v, ok := data[key]
	if !found || !ok {
		return failure.Newf(failure.MissingRequiredField, "replace data", d.String(), "data key %q not found", key)
	}
	data[key] = strings.ReplaceAll(v, old, new)
	return unstructured.SetNestedStringMap(d.u.Object, data, "data")
}

// UpdateContainer applies fn to the container with the given name. An empty
// name selects the first container. Only workload kinds have containers.
func (d *Document) UpdateContainer(name string, fn func(Container) error) error {
	path, ok := d.Kind().podSpecPath()
	if !ok {
		return failure.Newf(failure.InvalidSpec, "update container", d.String(), "%s has no pod template", d.Kind())
	}
	path = append(path, "containers")

	containers, found, err := unstructured.NestedSlice(d.u.Object, path...)
	if err != nil {
		return failure.New(failure.InvalidSpec, "update container", d.String(), err)
	}
	if !found {
		return failure.Newf(failure.MissingRequiredField, "update container", d.String(), "no containers")
	}

	for _, raw := range containers {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name != "" && c["name"] != name {
			continue
		}
		if err := fn(Container(c)); err != nil {
			return err
		}
		return unstructured.SetNestedSlice(d.u.Object, containers, path...)
	}
	return failure.Newf(failure.MissingRequiredField, "update container", d.String(), "container %q not found", name)
}

// ServiceAccountName returns the service account a workload's pods run as.
// The second result is false for kinds without a pod template.
func (d *Document) ServiceAccountName() (string, bool) {
	path, ok := d.Kind().podSpecPath()
	if !ok {
		return "", false
	}
	name, _, _ := unstructured.NestedString(d.u.Object, append(path, "serviceAccountName")...)
	return name, true
}

// Container is a container entry inside a pod template.
type Container map[string]any

// Name returns the container name.
func (c Container) Name() string {
	s, _ := c["name"].(string)
	return s
}

// Image returns the container image.
func (c Container) Image() string {
	s, _ := c["image"].(string)
	return s
}

// SetImage replaces the container image.
func (c Container) SetImage(image string) { c["image"] = image }

// Args returns the container args.
func (c Container) Args() []string { return stringList(c["args"]) }

// SetArgs replaces the container args.
func (c Container) SetArgs(args []string) { c["args"] = anyList(args) }

// Command returns the container command.
func (c Container) Command() []string { return stringList(c["command"]) }

// SetCommand replaces the container command.
func (c Container) SetCommand(cmd []string) { c["command"] = anyList(cmd) }

// RewriteFlag replaces every arg starting with prefix by prefix+value, in
// args and command alike. It reports whether any flag was rewritten.
func (c Container) RewriteFlag(prefix, value string) bool {
	rewritten := false
	for _, field := range []string{"args", "command"} {
		list := stringList(c[field])
		for i, a := range list {
			if strings.HasPrefix(a, prefix) {
				list[i] = prefix + value
				rewritten = true
			}
		}
		if list != nil {
			c[field] = anyList(list)
		}
	}
	return rewritten
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, fmt.Sprint(r))
	}
	return out
}

func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// jsonValue converts common Go values into the JSON-compatible types that
// unstructured objects hold.
func jsonValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case []string:
		return anyList(t), nil
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			c, err := jsonValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			c, err := jsonValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

type pathSeg struct {
	key   string
	index int
}

func (s pathSeg) step(cur any) (any, bool) {
	if s.index >= 0 {
		l, ok := cur.([]any)
		if !ok || s.index >= len(l) {
			return nil, false
		}
		return l[s.index], true
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[s.key]
	return v, ok
}

// parsePath splits "a.b[0].c" into key and index segments.
func parsePath(path string) ([]pathSeg, error) {
	if path == "" {
		return nil, failure.Newf(failure.InvalidSpec, "parse path", path, "empty path")
	}
	var segs []pathSeg
	for _, part := range strings.Split(path, ".") {
		key := part
		var idx []int
		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				break
			}
			end := strings.IndexByte(key[open:], ']')
			if end < 0 {
				return nil, failure.Newf(failure.InvalidSpec, "parse path", path, "unterminated index")
			}
			n, err := strconv.Atoi(key[open+1 : open+end])
			if err != nil || n < 0 {
				return nil, failure.Newf(failure.InvalidSpec, "parse path", path, "bad index %q", key[open+1:open+end])
			}
			idx = append(idx, n)
			key = key[:open] + key[open+end+1:]
		}
		if key == "" && len(idx) == 0 {
			return nil, failure.Newf(failure.InvalidSpec, "parse path", path, "empty segment")
		}
		if key != "" {
			segs = append(segs, pathSeg{key: key, index: -1})
		}
		for _, n := range idx {
			segs = append(segs, pathSeg{index: n})
		}
	}
	return segs, nil
}
