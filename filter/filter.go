// Package filter implements the configurable header predicates used to
// select which parsed messages get emitted downstream.
package filter

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	fold  = cases.Fold()
	title = cases.Title(language.Und)
)

// CanonicalHeaderName renders name in HTTP's conventional Title-Case
// form (e.g. "content-type" -> "Content-Type").
func CanonicalHeaderName(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		parts[i] = title.String(p)
	}
	return strings.Join(parts, "-")
}

// HeaderPredicate matches a message whose Name header contains Contains
// as a substring, case-insensitively — e.g. {"Content-Type", "json"}.
type HeaderPredicate struct {
	Name     string
	Contains string
}

// Matches reports whether headers satisfies p. Header lookup is
// case-insensitive on the name; values are matched case-insensitively
// by substring, mirroring the source's Content-Type-contains-"json"
// check.
func (p HeaderPredicate) Matches(headers map[string][]string) bool {
	want := fold.String(p.Name)
	for name, values := range headers {
		if fold.String(name) != want {
			continue
		}
		target := fold.String(p.Contains)
		for _, v := range values {
			if strings.Contains(fold.String(v), target) {
				return true
			}
		}
	}
	return false
}

// ResponseFilter holds a small set of header predicates; a message must
// satisfy every predicate to be selected (AND semantics — the source
// takes a single predicate at a time, this generalizes to a set without
// changing that behavior for the single-predicate case).
type ResponseFilter struct {
	Predicates []HeaderPredicate
}

// NewResponseFilter returns a filter requiring headers to contain
// "json" in Content-Type, the source's default filter.
func NewResponseFilter() ResponseFilter {
	return ResponseFilter{Predicates: []HeaderPredicate{
		{Name: "Content-Type", Contains: "json"},
	}}
}

// Matches reports whether headers satisfies every predicate in f.
func (f ResponseFilter) Matches(headers map[string][]string) bool {
	for _, p := range f.Predicates {
		if !p.Matches(headers) {
			return false
		}
	}
	return true
}

// Set replaces f's predicates with a single {name, contains} predicate,
// e.g. to switch the filter to match text/plain instead of json.
func (f *ResponseFilter) Set(name, contains string) {
	f.Predicates = []HeaderPredicate{{Name: name, Contains: contains}}
}
