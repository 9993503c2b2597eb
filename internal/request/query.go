package request

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// EncodeQuery serializes query parameters. Array values encode as repeated
// key=value pairs and spaces encode as %20, overriding the stdlib's
// form-encoding defaults (comma-joining and '+'). Keys are emitted in sorted
// order; values keep caller order.
func EncodeQuery(query map[string][]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		ek := escapeQuery(k)
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(ek)
			b.WriteByte('=')
			b.WriteString(escapeQuery(v))
		}
	}
	return b.String()
}

// escapeQuery percent-encodes a query component with %20 for space.
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// queryValues converts a resolved parameter map into query values. Scalars
// become single values, slices become repeated values, nils are dropped.
func queryValues(params map[string]any) map[string][]string {
	out := make(map[string][]string, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case []any:
			vals := make([]string, 0, len(vv))
			for _, item := range vv {
				if item == nil {
					continue
				}
				vals = append(vals, stringifyParam(item))
			}
			out[k] = vals
		default:
			out[k] = []string{stringifyParam(v)}
		}
	}
	return out
}

func stringifyParam(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	default:
		return fmt.Sprint(v)
	}
}
