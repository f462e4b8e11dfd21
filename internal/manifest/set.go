package manifest

import (
	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// Set is an ordered sequence of documents. Order is load order.
type Set []*Document

// Selector picks documents by kind and, optionally, name.
type Selector struct {
	Kind Kind
	Name string
}

func (s Selector) String() string {
	if s.Name == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "/" + s.Name
}

func (s Selector) matches(d *Document) bool {
	return d.Kind() == s.Kind && (s.Name == "" || d.Name() == s.Name)
}

// Filter returns the documents for which keep is true, in order.
func (s Set) Filter(keep func(*Document) bool) Set {
	out := make(Set, 0, len(s))
	for _, d := range s {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// ExcludeKind drops every document of kind, preserving relative order.
func (s Set) ExcludeKind(kind Kind) Set {
	return s.Filter(func(d *Document) bool { return d.Kind() != kind })
}

// One returns the single document matching sel. No match is a
// MissingRequiredField error and more than one match is InvalidSpec.
func (s Set) One(sel Selector) (*Document, error) {
	d, err := s.Optional(sel)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, failure.Newf(failure.MissingRequiredField, "select document", sel.String(), "no matching document")
	}
	return d, nil
}

// Optional is One for documents a resource may legitimately omit: no match
// returns nil without error, more than one match is still InvalidSpec.
func (s Set) Optional(sel Selector) (*Document, error) {
	var found *Document
	for _, d := range s {
		if !sel.matches(d) {
			continue
		}
		if found != nil {
			return nil, failure.Newf(failure.InvalidSpec, "select document", sel.String(), "more than one matching document")
		}
		found = d
	}
	return found, nil
}

// Objects returns the underlying objects in order.
func (s Set) Objects() []map[string]any {
	out := make([]map[string]any, len(s))
	for i, d := range s {
		out[i] = d.Object()
	}
	return out
}

// DeepCopy copies every document.
func (s Set) DeepCopy() Set {
	out := make(Set, len(s))
	for i, d := range s {
		out[i] = d.DeepCopy()
	}
	return out
}

// Kinds lists each document's kind, in order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, len(s))
	for i, d := range s {
		out[i] = d.Kind()
	}
	return out
}
