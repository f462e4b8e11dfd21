package plan

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Attributes a ServiceAccount node exposes through tokens.
const (
	AttrRoleArn  = "RoleArn"
	AttrRoleName = "RoleName"
)

var tokenPattern = regexp.MustCompile(`\$\{wetwire:([^}]+)\.([A-Za-z]+)\}`)

// AttrToken returns a placeholder for an attribute of node id that is only
// known at deploy time. Emitters replace tokens embedded in document
// strings with references.
func AttrToken(id ID, attr string) string {
	return "${wetwire:" + string(id) + "." + attr + "}"
}

// TokenRef is a token found inside a string.
type TokenRef struct {
	ID   ID
	Attr string
}

// Fragment is a piece of a tokenized string: literal text or a token.
type Fragment struct {
	Text  string
	Token *TokenRef
}

// SplitTokens splits s into literal and token fragments, in order.
func SplitTokens(s string) []Fragment {
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return []Fragment{{Text: s}}
	}

	var out []Fragment
	last := 0
	for _, m := range matches {
		if m[0] > last {
			out = append(out, Fragment{Text: s[last:m[0]]})
		}
		out = append(out, Fragment{Token: &TokenRef{ID: ID(s[m[2]:m[3]]), Attr: s[m[4]:m[5]]}})
		last = m[1]
	}
	if last < len(s) {
		out = append(out, Fragment{Text: s[last:]})
	}
	return out
}

// HasTokens reports whether s contains an attribute token.
func HasTokens(s string) bool {
	return tokenPattern.MatchString(s)
}

// References returns the distinct tokens embedded anywhere in n, in the
// order they first appear.
func References(n Node) []TokenRef {
	var (
		out  []TokenRef
		seen = map[TokenRef]bool{}
		walk func(v any)
	)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, f := range SplitTokens(t) {
				if f.Token != nil && !seen[*f.Token] {
					seen[*f.Token] = true
					out = append(out, *f.Token)
				}
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}

	switch n := n.(type) {
	case *Manifest:
		for _, d := range n.Documents {
			walk(d)
		}
	case *HelmChart:
		walk(n.Values)
	case *Output:
		walk(n.Value)
	}
	return out
}

// ID identifies a node. Nested resources use slash-separated paths such as
// "k8sAddOns/external-dns/identity".
type ID string

// Child returns the id of a resource nested under id.
func (id ID) Child(name string) ID {
	if id == "" {
		return ID(name)
	}
	return ID(string(id) + "/" + name)
}

// Base returns the last path element.
func (id ID) Base() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// LogicalID converts id into an alphanumeric CloudFormation logical id:
// "k8sAddOns/external-dns" becomes "K8sAddOnsExternalDns".
func LogicalID(id ID) string {
	var b strings.Builder
	upper := true
	for _, r := range string(id) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) || r > unicode.MaxASCII {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "R" + out
	}
	return out
}
