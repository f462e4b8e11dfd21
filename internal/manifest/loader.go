// Package manifest loads Kubernetes manifest documents.
//
// Files are multi-document YAML (or JSON) read through an fs.FS, so the same
// loader serves manifests embedded in the binary, a directory on disk, and
// in-memory test fixtures. Remote manifests go through a fetch.Fetcher.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/fetch"
)

// decodeBuffer is the look-ahead the YAML-or-JSON sniffing decoder uses.
const decodeBuffer = 4096

// Loader reads manifest documents.
type Loader struct {
	FS      fs.FS
	Fetcher fetch.Fetcher
	Logger  *zap.Logger
}

// NewLoader returns a loader over fsys. Fetcher may be nil when no remote
// manifest is loaded.
func NewLoader(fsys fs.FS, fetcher fetch.Fetcher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{FS: fsys, Fetcher: fetcher, Logger: logger}
}

// Load returns every document in the file at name, in file order.
func (l *Loader) Load(name string) (Set, error) {
	data, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return nil, failure.FromFS("load manifest", name, err)
	}
	set, err := Decode(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}
	l.logger().Debug("loaded manifest", zap.String("path", name), zap.Int("documents", len(set)))
	return set, nil
}

// LoadExcludingKind is Load without documents of kind.
func (l *Loader) LoadExcludingKind(name string, kind Kind) (Set, error) {
	set, err := l.Load(name)
	if err != nil {
		return nil, err
	}
	return set.ExcludeKind(kind), nil
}

// LoadDir concatenates the documents of every manifest file directly inside
// dir. Files are visited in name order; subdirectories are not descended.
func (l *Loader) LoadDir(dir string) (Set, error) {
	entries, err := fs.ReadDir(l.FS, dir)
	if err != nil {
		return nil, failure.FromFS("load manifest directory", dir, err)
	}

	var out Set
	for _, e := range entries {
		if e.IsDir() || !isManifestFile(e.Name()) {
			continue
		}
		set, err := l.Load(path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, set...)
	}
	return out, nil
}

// LoadDirExcludingKind is LoadDir without documents of kind.
func (l *Loader) LoadDirExcludingKind(dir string, kind Kind) (Set, error) {
	set, err := l.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return set.ExcludeKind(kind), nil
}

// Fetch loads the documents served at url.
func (l *Loader) Fetch(ctx context.Context, url string) (Set, error) {
	if l.Fetcher == nil {
		return nil, failure.Newf(failure.NetworkFailure, "load remote manifest", url, "no fetcher configured")
	}
	data, err := l.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(data), url)
}

// Decode reads a multi-document YAML or JSON stream. Empty documents are
// skipped and List documents are expanded into their items. source only
// labels errors.
func Decode(r io.Reader, source string) (Set, error) {
	dec := k8syaml.NewYAMLOrJSONDecoder(r, decodeBuffer)

	var out Set
	for {
		var obj map[string]any
		err := dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, failure.New(failure.ParseError, "decode manifest", source, err)
		}
		if len(obj) == 0 {
			continue
		}

		docs, err := expand(obj)
		if err != nil {
			return nil, failure.New(failure.ParseError, "decode manifest", source, err)
		}
		out = append(out, docs...)
	}
}

func expand(obj map[string]any) (Set, error) {
	if Kind(stringField(obj, "kind")) != kindList {
		d, err := NewDocument(obj)
		if err != nil {
			return nil, err
		}
		return Set{d}, nil
	}

	items, _ := obj["items"].([]any)
	out := make(Set, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		d, err := NewDocument(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func isManifestFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
