package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Matcher is a compiled path pattern: a regular expression plus the
// ordered list of parameter names its capture groups bind to.
//
// A Matcher is immutable and safe for concurrent use. Matching is a pure
// predicate plus extraction; no matcher may assume it is the only one
// attempted against a given path.
type Matcher struct {
	re     *regexp.Regexp
	params []string
	source string
}

// Compile turns a path pattern into a Matcher.
//
// Pattern syntax:
//
//	:name   matches one path segment, captured under "name"
//	*name   trailing wildcard, captures the rest of the path under "name"
//	*       trailing wildcard with no name; the capture is bound to its
//	        positional index rendered as a decimal string ("0", "1", ...)
//
// The wildcard is only valid as the final segment.
func Compile(pattern string) (*Matcher, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("router: pattern %q must start with /", pattern)
	}

	var (
		expr    strings.Builder
		params  []string
		anon    int
		segs    = strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	)
	expr.WriteString("^")

	for i, seg := range segs {
		last := i == len(segs)-1

		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if name == "" {
				return nil, fmt.Errorf("router: pattern %q has an unnamed parameter", pattern)
			}
			params = append(params, name)
			expr.WriteString("/([^/]+)")

		case strings.HasPrefix(seg, "*"):
			if !last {
				return nil, fmt.Errorf("router: pattern %q has a non-trailing wildcard", pattern)
			}
			name := seg[1:]
			if name == "" {
				name = strconv.Itoa(anon)
				anon++
			}
			params = append(params, name)
			expr.WriteString("(?:/(.*))?")

		case seg == "" && last && len(segs) == 1:
			// Root pattern "/".
			expr.WriteString("/")

		default:
			expr.WriteString("/")
			expr.WriteString(regexp.QuoteMeta(seg))
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("router: pattern %q: %w", pattern, err)
	}

	return &Matcher{re: re, params: params, source: expr.String()}, nil
}

// MustCompile is Compile that panics on error. Intended for
// registration-time patterns that are program constants.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// FromRegex rebuilds a Matcher from a serialized expression and its
// parameter names, as transported in the SSR hand-off payload. The client
// never re-runs pattern compilation; it trusts the server's expression.
func FromRegex(source string, params []string) (*Matcher, error) {
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("router: hand-off regex %q: %w", source, err)
	}
	return &Matcher{re: re, params: append([]string(nil), params...), source: source}, nil
}

// Match tests a concrete URL path. On success it returns the captured
// parameter values keyed by name. Matching is case-sensitive.
func (m *Matcher) Match(path string) (map[string]string, bool) {
	groups := m.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}
	values := make(map[string]string, len(m.params))
	for i, name := range m.params {
		if i+1 < len(groups) {
			values[name] = groups[i+1]
		}
	}
	return values, true
}

// Params returns the ordered parameter names.
func (m *Matcher) Params() []string {
	return append([]string(nil), m.params...)
}

// Source returns the serialized regular expression, suitable for the
// SSR hand-off route table.
func (m *Matcher) Source() string {
	return m.source
}
