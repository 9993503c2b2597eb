// Package filter applies jq expressions to decoded JSON output.
package filter

import (
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression fixes shell-escaped operators. Zsh escapes ! to \!
// even inside single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(expr, `\!`, `!`)
}

// Apply runs a jq expression over data (decoded JSON: maps, slices,
// scalars). An empty expression returns data unchanged. A single result is
// returned bare; multiple results come back as a slice.
func Apply(data any, expression string) (any, error) {
	if expression == "" {
		return data, nil
	}

	query, err := gojq.Parse(NormalizeExpression(expression))
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	iter := query.Run(data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
