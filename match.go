package clidrive

import (
	"regexp"
	"strconv"
	"strings"
)

// A Pattern is an expectation matched against accumulated process output.
//
// Find returns the byte offsets [start, end) of the first match in s, or nil
// when there is none. String describes the pattern for diagnostics.
type Pattern interface {
	Find(s string) []int
	String() string
}

type textPattern string

// Text matches the first occurrence of s literally. Text("") matches
// immediately without consuming output; as a Step.Prompt it skips the wait.
func Text(s string) Pattern {
	return textPattern(s)
}

func (p textPattern) Find(s string) []int {
	i := strings.Index(s, string(p))
	if i < 0 {
		return nil
	}
	return []int{i, i + len(p)}
}

func (p textPattern) String() string {
	return strconv.Quote(string(p))
}

type regexpPattern struct {
	re *regexp.Regexp
}

// Regexp matches the leftmost match of a regular expression.
// The pattern is compiled once; an invalid pattern causes a panic.
func Regexp(expr string) Pattern {
	return regexpPattern{re: regexp.MustCompile(expr)}
}

// MatchRegexp matches the leftmost match of a compiled regular expression.
func MatchRegexp(re *regexp.Regexp) Pattern {
	return regexpPattern{re: re}
}

func (p regexpPattern) Find(s string) []int {
	return p.re.FindStringIndex(s)
}

func (p regexpPattern) String() string {
	return "/" + p.re.String() + "/"
}

type anyPattern []Pattern

// Any matches whichever of the patterns matches earliest in the output.
func Any(patterns ...Pattern) Pattern {
	return anyPattern(patterns)
}

func (p anyPattern) Find(s string) []int {
	var best []int
	for _, m := range p {
		span := m.Find(s)
		if span == nil {
			continue
		}
		if best == nil || span[0] < best[0] {
			best = span
		}
	}
	return best
}

func (p anyPattern) String() string {
	descs := make([]string, 0, len(p))
	for _, m := range p {
		descs = append(descs, m.String())
	}
	return "any of: " + strings.Join(descs, ", ")
}

// isEmpty reports whether p places no constraint on the output.
func isEmpty(p Pattern) bool {
	if p == nil {
		return true
	}
	t, ok := p.(textPattern)
	return ok && t == ""
}

// describe renders p for transcripts and error messages.
func describe(p Pattern) string {
	if isEmpty(p) {
		return "(anything)"
	}
	return p.String()
}
