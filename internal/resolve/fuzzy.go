// Package resolve matches user-typed endpoint names against the configured
// endpoint catalog, tolerating partial and fuzzy input.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

var (
	ErrEmptyQuery = errors.New("empty endpoint name")
	ErrNoMatch    = errors.New("no matching endpoint")
)

// maxCandidates caps the candidates listed in an ambiguity error.
const maxCandidates = 5

// AmbiguousError indicates multiple endpoints matched equally well.
type AmbiguousError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ambiguous endpoint %q, candidates:", e.Query)
	for _, c := range e.Candidates {
		_, _ = fmt.Fprintf(&b, "\n  %s", c)
	}
	return b.String()
}

// Endpoint resolves query against names. Exact matches win outright; a
// unique fuzzy match is accepted; multiple equally good fuzzy matches
// produce an AmbiguousError.
func Endpoint(query string, names []string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	for _, name := range names {
		if name == query {
			return name, nil
		}
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	matches := fuzzy.Find(query, sorted)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w for %q", ErrNoMatch, query)
	case 1:
		return matches[0].Str, nil
	}

	// A clear best score wins; a tie is ambiguous.
	if matches[0].Score > matches[1].Score {
		return matches[0].Str, nil
	}
	candidates := make([]string, 0, maxCandidates)
	top := matches[0].Score
	for _, m := range matches {
		if m.Score < top || len(candidates) == maxCandidates {
			break
		}
		candidates = append(candidates, m.Str)
	}
	return "", &AmbiguousError{Query: query, Candidates: candidates}
}
