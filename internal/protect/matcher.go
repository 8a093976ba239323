package protect

import (
	"regexp"
	"strings"
)

// Matcher kinds.
const (
	kindExact     = "exact"
	kindParameter = "parameter"
	kindWildcard  = "wildcard"
)

// pathMatcher matches request paths (or gRPC full method names) against
// one pattern.
type pathMatcher interface {
	Match(path string) bool
	Type() string
	Pattern() string
}

// newMatcher picks the matcher for a pattern: {name} segments make a
// parameter matcher, * or ** a wildcard matcher, anything else is exact.
func newMatcher(pattern string) (pathMatcher, error) {
	switch {
	case strings.Contains(pattern, "*"):
		return newWildcardMatcher(pattern)
	case strings.Contains(pattern, "{"):
		return newParameterMatcher(pattern)
	default:
		return exactMatcher(pattern), nil
	}
}

type exactMatcher string

func (m exactMatcher) Match(path string) bool { return path == string(m) }
func (m exactMatcher) Type() string           { return kindExact }
func (m exactMatcher) Pattern() string        { return string(m) }

// parameterMatcher matches paths like /orders/{id}; a parameter spans one
// non-empty segment.
type parameterMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

func newParameterMatcher(pattern string) (*parameterMatcher, error) {
	var b strings.Builder
	b.WriteString("^")

	for _, part := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if part == "" {
			continue
		}
		b.WriteString("/")
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			b.WriteString("[^/]+")
		} else {
			b.WriteString(regexp.QuoteMeta(part))
		}
	}
	if strings.HasSuffix(pattern, "/") {
		b.WriteString("/")
	}
	b.WriteString("$")

	regex, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &parameterMatcher{pattern: pattern, regex: regex}, nil
}

func (m *parameterMatcher) Match(path string) bool { return m.regex.MatchString(path) }
func (m *parameterMatcher) Type() string           { return kindParameter }
func (m *parameterMatcher) Pattern() string        { return m.pattern }

// wildcardMatcher matches * (within one segment) and ** (across segments).
type wildcardMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

func newWildcardMatcher(pattern string) (*wildcardMatcher, error) {
	regex, err := regexp.Compile(wildcardToRegex(pattern))
	if err != nil {
		return nil, err
	}
	return &wildcardMatcher{pattern: pattern, regex: regex}, nil
}

func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			b.WriteString("[^/]*")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
			i++
		}
	}

	b.WriteString("$")
	return b.String()
}

func (m *wildcardMatcher) Match(path string) bool { return m.regex.MatchString(path) }
func (m *wildcardMatcher) Type() string           { return kindWildcard }
func (m *wildcardMatcher) Pattern() string        { return m.pattern }
