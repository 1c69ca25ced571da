package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_PrecedenceAndGrouping(t *testing.T) {
	// AND binds tighter than OR.
	c, err := Compile(`@id = "a" OR @id = "b" AND @metadata.kind = "raw"`)
	require.NoError(t, err)

	assert.Equal(t, `(id = $1 OR (id = $2 AND kind = $3))`, c.SQL)
	assert.Equal(t, []interface{}{"a", "b", "raw"}, c.Params)
}

func TestCompile_ExplicitParens(t *testing.T) {
	c, err := Compile(`(@id = "a" OR @id = "b") AND @metadata.kind = "raw"`)
	require.NoError(t, err)

	assert.Equal(t, `((id = $1 OR id = $2) AND kind = $3)`, c.SQL)
	assert.Equal(t, []interface{}{"a", "b", "raw"}, c.Params)
}

func TestCompile_ImportanceWordMapping(t *testing.T) {
	c, err := Compile(`@metadata.importance = "high"`)
	require.NoError(t, err)

	assert.Equal(t, `importance = $1`, c.SQL)
	assert.Equal(t, []interface{}{2}, c.Params)
}

func TestCompile_ImportanceUnknownWord(t *testing.T) {
	_, err := Compile(`@metadata.importance = "critical"`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageTranslator, ce.Stage)
}

func TestCompile_JSONBContains(t *testing.T) {
	c, err := Compile(`@metadata.customField CONTAINS "foo"`)
	require.NoError(t, err)

	assert.Equal(t, `metadata->'customField' @> $1::jsonb`, c.SQL)
	assert.Equal(t, []interface{}{`["foo"]`}, c.Params)
}

func TestCompile_JSONBEquality(t *testing.T) {
	c, err := Compile(`@metadata.project = "apollo"`)
	require.NoError(t, err)

	assert.Equal(t, `metadata->>'project' = $1`, c.SQL)
	assert.Equal(t, []interface{}{"apollo"}, c.Params)
}

func TestCompile_JSONBNumberEquality(t *testing.T) {
	c, err := Compile(`@metadata.revision = 3`)
	require.NoError(t, err)

	assert.Equal(t, `metadata->>'revision' = $1`, c.SQL)
	assert.Equal(t, []interface{}{"3"}, c.Params)
}

func TestCompile_TagsContains(t *testing.T) {
	c, err := Compile(`@metadata.tags CONTAINS "database"`)
	require.NoError(t, err)

	assert.Equal(t, `$1 = ANY(tags)`, c.SQL)
	assert.Equal(t, []interface{}{"database"}, c.Params)
}

func TestCompile_KnownColumnAliases(t *testing.T) {
	c, err := Compile(`@metadata.memoryType = "belief" AND @metadata.source_path = "notes.md"`)
	require.NoError(t, err)

	assert.Equal(t, `(memory_type = $1 AND source_path = $2)`, c.SQL)
	assert.Equal(t, []interface{}{"belief", "notes.md"}, c.Params)
}

func TestCompile_StringEscapes(t *testing.T) {
	c, err := Compile(`@metadata.topic = "say \"hi\""`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{`say "hi"`}, c.Params)
}

func TestCompile_NegativeNumber(t *testing.T) {
	c, err := Compile(`@metadata.delta = -1.5`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"-1.5"}, c.Params)
}

func TestCompile_Booleans(t *testing.T) {
	c, err := Compile(`@metadata.archived = true`)
	require.NoError(t, err)
	assert.Equal(t, `metadata->>'archived' = $1`, c.SQL)
	assert.Equal(t, []interface{}{"true"}, c.Params)
}

func TestCompileFrom_PlaceholderOffset(t *testing.T) {
	c, err := CompileFrom(`@metadata.kind = "raw" AND @metadata.topic = "go"`, 4)
	require.NoError(t, err)

	assert.Equal(t, `(kind = $4 AND topic = $5)`, c.SQL)
	assert.Equal(t, []interface{}{"raw", "go"}, c.Params)
}

func TestCompile_NoLiteralInSQL(t *testing.T) {
	// Testable contract: literal values never appear in the SQL text.
	inputs := []string{
		`@metadata.topic = "DROP TABLE memories"`,
		`@metadata.custom CONTAINS "'); DELETE FROM memories; --"`,
		`@id = "mem_1' OR '1'='1"`,
	}
	for _, in := range inputs {
		c, err := Compile(in)
		require.NoError(t, err, in)
		assert.NotContains(t, c.SQL, "DROP")
		assert.NotContains(t, c.SQL, "DELETE")
		assert.NotContains(t, c.SQL, "'1'")
	}
}

func TestCompile_Errors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		stage Stage
	}{
		{"empty input", ``, StageParser},
		{"bare word", `topic = "go"`, StageTokenizer},
		{"unterminated string", `@metadata.topic = "go`, StageTokenizer},
		{"missing operator", `@metadata.topic "go"`, StageParser},
		{"missing literal", `@metadata.topic =`, StageParser},
		{"unbalanced paren", `(@metadata.topic = "go"`, StageParser},
		{"trailing tokens", `@metadata.topic = "go" @id = "x"`, StageParser},
		{"contains on id", `@id CONTAINS "a"`, StageTranslator},
		{"bare metadata", `@metadata = "x"`, StageTranslator},
		{"equality on tags", `@metadata.tags = "db"`, StageTranslator},
		{"contains number on tags", `@metadata.tags CONTAINS 5`, StageTranslator},
		{"contains on scalar column", `@metadata.kind CONTAINS "raw"`, StageTranslator},
		{"unknown field", `@content = "x"`, StageTranslator},
		{"hostile jsonb key", `@metadata.x'y = "v"`, StageTokenizer},
		{"jsonb key trailing dash", `@metadata.bad- = "v"`, StageTranslator},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Compile(c.input)
			var ce *CompileError
			require.ErrorAs(t, err, &ce, "input %q", c.input)
			assert.Equal(t, c.stage, ce.Stage, "input %q: %v", c.input, err)
			assert.NotEmpty(t, ce.Message)
		})
	}
}

func TestCompile_ErrorPositionPointsAtInput(t *testing.T) {
	input := `@metadata.topic = "go" AND @metadata = 1`
	_, err := Compile(input)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, strings.Index(input, "@metadata = 1"), ce.Position)
}

func TestFromStructured(t *testing.T) {
	dsl := FromStructured(map[string]interface{}{
		"topic": "go",
		"tags":  []interface{}{"db", "sql"},
	})
	assert.Equal(t, `(@metadata.tags CONTAINS "db" OR @metadata.tags CONTAINS "sql") AND @metadata.topic = "go"`, dsl)

	// The serializer's output must be accepted by the compiler.
	_, err := Compile(dsl)
	require.NoError(t, err)
}

func TestFromStructured_Empty(t *testing.T) {
	assert.Equal(t, "", FromStructured(nil))
	assert.Equal(t, "", FromStructured(map[string]interface{}{}))
}

func TestCombineAnd(t *testing.T) {
	assert.Equal(t, `(a) AND (b)`, CombineAnd("a", "b"))
	assert.Equal(t, "a", CombineAnd("a", ""))
	assert.Equal(t, "b", CombineAnd("", "b"))
	assert.Equal(t, "", CombineAnd("", ""))
}
