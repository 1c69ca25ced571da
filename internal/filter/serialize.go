package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FromStructured renders a structured filter map into DSL text. Scalar
// values become '@metadata.key = value' comparisons; list values become
// OR-joined CONTAINS clauses; all top-level entries are AND-joined.
//
// This is the client-side counterpart of Compile: recall requests carry
// structured filters, and the controller serializes them into the same DSL
// the compiler accepts rather than building SQL directly.
func FromStructured(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	for _, key := range keys {
		switch v := filters[key].(type) {
		case []interface{}:
			var parts []string
			for _, elem := range v {
				parts = append(parts, fmt.Sprintf("@metadata.%s CONTAINS %s", key, renderLiteral(elem)))
			}
			if len(parts) == 1 {
				clauses = append(clauses, parts[0])
			} else if len(parts) > 1 {
				clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
			}
		case []string:
			var parts []string
			for _, elem := range v {
				parts = append(parts, fmt.Sprintf("@metadata.%s CONTAINS %s", key, renderLiteral(elem)))
			}
			if len(parts) == 1 {
				clauses = append(clauses, parts[0])
			} else if len(parts) > 1 {
				clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
			}
		default:
			clauses = append(clauses, fmt.Sprintf("@metadata.%s = %s", key, renderLiteral(v)))
		}
	}

	return strings.Join(clauses, " AND ")
}

// CombineAnd joins two DSL expressions under AND, tolerating either side
// being empty.
func CombineAnd(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return fmt.Sprintf("(%s) AND (%s)", a, b)
	}
}

func renderLiteral(v interface{}) string {
	switch v := v.(type) {
	case string:
		return quoteString(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return quoteString(fmt.Sprintf("%v", v))
	}
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
