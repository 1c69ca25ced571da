package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// knownColumns maps metadata field names in the DSL to denormalized columns
// on the memories table. Everything else routes to the metadata JSONB column.
var knownColumns = map[string]string{
	"topic":       "topic",
	"importance":  "importance",
	"tags":        "tags",
	"source":      "source",
	"sourcePath":  "source_path",
	"source_path": "source_path",
	"kind":        "kind",
	"memoryType":  "memory_type",
	"memory_type": "memory_type",
}

var importanceWords = map[string]int{"low": 0, "medium": 1, "high": 2}

// jsonbKeyPattern gates keys that get interpolated into metadata->'key'
// expressions. Anything outside the pattern fails translation, which keeps
// user input out of SQL identifier position.
var jsonbKeyPattern = regexp.MustCompile(`^([A-Za-z0-9_]|[A-Za-z0-9_][A-Za-z0-9_-]*[A-Za-z0-9_])$`)

type translator struct {
	input  string
	params []interface{}
	next   int // next placeholder number
}

func (t *translator) errorf(at int, hint, format string, args ...interface{}) error {
	return &CompileError{
		Stage:    StageTranslator,
		Position: at,
		Snippet:  snippet(t.input, at),
		Message:  fmt.Sprintf(format, args...),
		Hint:     hint,
	}
}

func (t *translator) bind(v interface{}) string {
	t.params = append(t.params, v)
	p := fmt.Sprintf("$%d", t.next)
	t.next++
	return p
}

func (t *translator) render(n node) (string, error) {
	switch n := n.(type) {
	case *binaryNode:
		left, err := t.render(n.left)
		if err != nil {
			return "", err
		}
		right, err := t.render(n.right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, n.op, right), nil
	case *cmpNode:
		return t.renderComparison(n)
	default:
		return "", t.errorf(n.pos(), "", "unknown expression node")
	}
}

func (t *translator) renderComparison(n *cmpNode) (string, error) {
	switch {
	case n.field == "@id":
		if n.contains {
			return "", t.errorf(n.at, "use '=' to match an exact memory ID",
				"CONTAINS is not supported on @id")
		}
		return fmt.Sprintf("id = %s", t.bind(literalValue(n.lit))), nil

	case n.field == "@metadata":
		return "", t.errorf(n.at, "name a field, e.g. '@metadata.topic'",
			"@metadata requires a subfield")

	case strings.HasPrefix(n.field, "@metadata."):
		key := strings.TrimPrefix(n.field, "@metadata.")
		return t.renderMetadataField(n, key)

	default:
		return "", t.errorf(n.at, "fields are '@id' or '@metadata.<key>'",
			"unknown field %s", n.field)
	}
}

func (t *translator) renderMetadataField(n *cmpNode, key string) (string, error) {
	col, known := knownColumns[key]

	// tags is an array column: membership only.
	if known && col == "tags" {
		if !n.contains {
			return "", t.errorf(n.at, `use '@metadata.tags CONTAINS "value"'`,
				"equality is not supported on tags; tags is an array")
		}
		if n.lit.kind != litString {
			return "", t.errorf(n.at, "tag values are strings",
				"CONTAINS on tags requires a string literal")
		}
		return fmt.Sprintf("%s = ANY(tags)", t.bind(n.lit.s)), nil
	}

	if known {
		if n.contains {
			return "", t.errorf(n.at, "CONTAINS applies to tags and custom metadata fields",
				"CONTAINS is not supported on %s", key)
		}
		if col == "importance" && n.lit.kind == litString {
			level, ok := importanceWords[n.lit.s]
			if !ok {
				return "", t.errorf(n.at, `importance is "low", "medium", or "high"`,
					"unknown importance level %q", n.lit.s)
			}
			return fmt.Sprintf("%s = %s", col, t.bind(level)), nil
		}
		return fmt.Sprintf("%s = %s", col, t.bind(literalValue(n.lit))), nil
	}

	// Unknown key: route to the JSONB metadata column. The key lands inside a
	// quoted SQL literal, so it must pass the identifier gate first.
	if !jsonbKeyPattern.MatchString(key) {
		return "", t.errorf(n.at, "keys are alphanumeric with '_' or '-' between",
			"metadata key %q is not addressable", key)
	}

	if n.contains {
		// JSONB array membership: metadata->'key' @> '["v"]'.
		elem, err := json.Marshal([]interface{}{literalValue(n.lit)})
		if err != nil {
			return "", t.errorf(n.at, "", "cannot encode literal: %v", err)
		}
		return fmt.Sprintf("metadata->'%s' @> %s::jsonb", key, t.bind(string(elem))), nil
	}

	// Equality compares the text form of the JSONB value.
	return fmt.Sprintf("metadata->>'%s' = %s", key, t.bind(literalText(n.lit))), nil
}

// literalValue returns the natural Go value of a literal for parameter
// binding.
func literalValue(l literal) interface{} {
	switch l.kind {
	case litString:
		return l.s
	case litNumber:
		return l.num
	default:
		return l.b
	}
}

// literalText returns the text form of a literal, matching how Postgres's
// ->> operator renders JSONB scalars.
func literalText(l literal) string {
	switch l.kind {
	case litString:
		return l.s
	case litNumber:
		return strconv.FormatFloat(l.num, 'f', -1, 64)
	default:
		return strconv.FormatBool(l.b)
	}
}
