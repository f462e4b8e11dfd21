// Package policy translates IAM policy documents into statements.
//
// A policy comes from exactly one Source: a file in the statement catalogue,
// a URL fetched once at synthesis time, or inline JSON. No source at all is
// legal and yields no statements.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/fetch"
	"github.com/lex00/wetwire-eks-go/intrinsics"
)

//go:embed statements/*.json
var catalogue embed.FS

// Catalogue returns the built-in policy documents, keyed by file name
// (e.g. "external-dns.json").
func Catalogue() fs.FS {
	sub, err := fs.Sub(catalogue, "statements")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source selects where a policy document comes from. At most one field may
// be set.
type Source struct {
	File   string
	URL    string
	Inline string
}

// FromFile is a Source naming a file in the statements filesystem.
func FromFile(name string) Source { return Source{File: name} }

// FromURL is a Source fetched over HTTP.
func FromURL(url string) Source { return Source{URL: url} }

// FromInline is a Source holding the policy JSON itself.
func FromInline(doc string) Source { return Source{Inline: doc} }

// IsZero reports whether no source is set.
func (s Source) IsZero() bool {
	return s.File == "" && s.URL == "" && strings.TrimSpace(s.Inline) == ""
}

// Validate rejects a Source with more than one field set.
func (s Source) Validate() error {
	n := 0
	for _, v := range []string{s.File, s.URL, strings.TrimSpace(s.Inline)} {
		if v != "" {
			n++
		}
	}
	if n > 1 {
		return failure.Newf(failure.InvalidSpec, "translate policy", s.String(), "more than one policy source set")
	}
	return nil
}

func (s Source) String() string {
	switch {
	case s.File != "":
		return "file:" + s.File
	case s.URL != "":
		return s.URL
	case strings.TrimSpace(s.Inline) != "":
		return "inline"
	default:
		return "none"
	}
}

// Translator turns policy sources into statements.
type Translator struct {
	// FS holds the policy files File sources name.
	FS      fs.FS
	Fetcher fetch.Fetcher
	Logger  *zap.Logger
}

// NewTranslator returns a translator. A nil fsys uses the built-in catalogue.
func NewTranslator(fsys fs.FS, fetcher fetch.Fetcher, logger *zap.Logger) *Translator {
	if fsys == nil {
		fsys = Catalogue()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{FS: fsys, Fetcher: fetcher, Logger: logger}
}

// Translate returns the statements of the policy src points at, in document
// order.
func (t *Translator) Translate(ctx context.Context, src Source) ([]intrinsics.PolicyStatement, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	switch {
	case src.File != "":
		data, err = fs.ReadFile(t.FS, src.File)
		if err != nil {
			return nil, failure.FromFS("read policy", src.File, err)
		}
	case src.URL != "":
		if t.Fetcher == nil {
			return nil, failure.Newf(failure.NetworkFailure, "fetch policy", src.URL, "no fetcher configured")
		}
		data, err = t.Fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return nil, err
		}
	case !src.IsZero():
		data = []byte(src.Inline)
	default:
		t.Logger.Debug("no policy source, identity has no permissions")
		return nil, nil
	}

	stmts, err := ParseStatements(data, src.String())
	if err != nil {
		return nil, err
	}
	t.Logger.Debug("translated policy",
		zap.String("source", src.String()),
		zap.Int("statements", len(stmts)))
	return stmts, nil
}

// ParseStatements extracts the Statement entries of a policy document.
// Statement may be a list or a single object. origin only labels errors.
func ParseStatements(data []byte, origin string) ([]intrinsics.PolicyStatement, error) {
	if !gjson.ValidBytes(data) {
		return nil, failure.Newf(failure.ParseError, "parse policy", origin, "invalid JSON")
	}

	raw := gjson.GetBytes(data, "Statement")
	var entries []gjson.Result
	switch {
	case !raw.Exists():
		return nil, failure.Newf(failure.ParseError, "parse policy", origin, "document has no Statement")
	case raw.IsArray():
		entries = raw.Array()
	case raw.IsObject():
		entries = []gjson.Result{raw}
	default:
		return nil, failure.Newf(failure.ParseError, "parse policy", origin, "Statement is %s, not a list", raw.Type)
	}

	out := make([]intrinsics.PolicyStatement, 0, len(entries))
	for i, e := range entries {
		if !e.IsObject() {
			return nil, failure.Newf(failure.ParseError, "parse policy", origin, "Statement[%d] is not an object", i)
		}
		var st intrinsics.PolicyStatement
		if err := json.Unmarshal([]byte(e.Raw), &st); err != nil {
			return nil, failure.Newf(failure.ParseError, "parse policy", origin, "Statement[%d]: %v", i, err)
		}
		if st.Effect == "" {
			st.Effect = intrinsics.Allow
		}
		out = append(out, st)
	}
	return out, nil
}
