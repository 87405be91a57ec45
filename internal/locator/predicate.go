// internal/locator/predicate.go
package locator

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchMode selects how a label predicate compares normalized text.
type MatchMode int

const (
	// ModePrefix matches labels the text starts with. Used for primary actions
	// so that text merely mentioning the action word does not match.
	ModePrefix MatchMode = iota
	// ModeContains matches labels appearing anywhere in the text. Used for
	// secondary and cleanup controls whose wording varies.
	ModeContains
	// ModeExact matches the whole text.
	ModeExact
	// ModeRegex matches a case-insensitive regular expression.
	ModeRegex
)

var modeNames = map[MatchMode]string{
	ModePrefix:   "prefix",
	ModeContains: "contains",
	ModeExact:    "exact",
	ModeRegex:    "regex",
}

func (m MatchMode) String() string { return modeNames[m] }

// Normalize collapses whitespace runs to single spaces, trims, and lowercases.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// LabelPredicate is a case-insensitive matcher over an element's visible text.
// The zero value matches nothing.
type LabelPredicate struct {
	mode   MatchMode
	labels []string
	re     *regexp.Regexp
}

func newPredicate(mode MatchMode, labels []string) LabelPredicate {
	p := LabelPredicate{mode: mode}
	for _, l := range labels {
		if n := Normalize(l); n != "" {
			p.labels = append(p.labels, n)
		}
	}
	return p
}

// StartsWith matches text beginning with any of the labels.
func StartsWith(labels ...string) LabelPredicate { return newPredicate(ModePrefix, labels) }

// Contains matches text containing any of the labels.
func Contains(labels ...string) LabelPredicate { return newPredicate(ModeContains, labels) }

// Exactly matches text equal to any of the labels.
func Exactly(labels ...string) LabelPredicate { return newPredicate(ModeExact, labels) }

// Matching compiles a regular expression matched against normalized text.
// Matching is always case-insensitive.
func Matching(pattern string) (LabelPredicate, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return LabelPredicate{}, fmt.Errorf("invalid label pattern %q: %w", pattern, err)
	}
	return LabelPredicate{mode: ModeRegex, re: re}, nil
}

// parsers maps the mode names accepted by ParsePredicate to constructors.
var parsers = map[string]func(body string) (LabelPredicate, error){
	"prefix":      func(body string) (LabelPredicate, error) { return StartsWith(strings.Split(body, "|")...), nil },
	"starts-with": func(body string) (LabelPredicate, error) { return StartsWith(strings.Split(body, "|")...), nil },
	"contains":    func(body string) (LabelPredicate, error) { return Contains(strings.Split(body, "|")...), nil },
	"exact":       func(body string) (LabelPredicate, error) { return Exactly(strings.Split(body, "|")...), nil },
	"regex":       Matching,
}

// ParsePredicate builds a predicate from its configuration form,
// "mode:label[|label...]". Text without a known mode prefix is a bare label
// list in prefix mode, so labels may themselves contain a colon. An empty
// string yields the zero predicate.
func ParsePredicate(expr string) (LabelPredicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return LabelPredicate{}, nil
	}
	if mode, body, found := strings.Cut(expr, ":"); found {
		if parse, ok := parsers[strings.ToLower(strings.TrimSpace(mode))]; ok {
			return parse(body)
		}
	}
	return StartsWith(strings.Split(expr, "|")...), nil
}

// MustParsePredicate is ParsePredicate for static configuration; it panics on error.
func MustParsePredicate(expr string) LabelPredicate {
	p, err := ParsePredicate(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether the predicate can never match.
func (p LabelPredicate) IsZero() bool {
	return p.re == nil && len(p.labels) == 0
}

// Mode returns the match mode.
func (p LabelPredicate) Mode() MatchMode { return p.mode }

// Match reports whether text satisfies the predicate after normalization.
func (p LabelPredicate) Match(text string) bool {
	if p.IsZero() {
		return false
	}
	n := Normalize(text)
	if p.mode == ModeRegex {
		return p.re.MatchString(n)
	}
	for _, l := range p.labels {
		switch p.mode {
		case ModePrefix:
			if strings.HasPrefix(n, l) {
				return true
			}
		case ModeContains:
			if strings.Contains(n, l) {
				return true
			}
		case ModeExact:
			if n == l {
				return true
			}
		}
	}
	return false
}

// String renders the predicate in its configuration form.
func (p LabelPredicate) String() string {
	if p.mode == ModeRegex && p.re != nil {
		return "regex:" + strings.TrimPrefix(p.re.String(), "(?i)")
	}
	return p.mode.String() + ":" + strings.Join(p.labels, "|")
}
