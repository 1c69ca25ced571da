// Package filter compiles the user-facing filter expression DSL into
// parameterized SQL fragments for the memory repository.
//
// The DSL is a small predicate language over memory fields:
//
//	@id = "mem_123"
//	@metadata.topic = "go" AND (@metadata.tags CONTAINS "db" OR @metadata.kind = "raw")
//
// Every literal flows through parameter binding; no value from the input is
// ever concatenated into the SQL text.
package filter

import "fmt"

// Stage identifies which phase of compilation rejected the input.
type Stage string

// Compilation stages.
const (
	StageTokenizer  Stage = "tokenizer"
	StageParser     Stage = "parser"
	StageTranslator Stage = "translator"
)

// CompileError is a structured compilation failure. Position refers to a
// byte offset in the original input.
type CompileError struct {
	Stage    Stage  `json:"stage"`
	Position int    `json:"position"`
	Snippet  string `json:"snippet"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
}

func (e *CompileError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("filter %s error at %d near %q: %s (%s)", e.Stage, e.Position, e.Snippet, e.Message, e.Hint)
	}
	return fmt.Sprintf("filter %s error at %d near %q: %s", e.Stage, e.Position, e.Snippet, e.Message)
}

// Compiled is the output of compilation: a SQL fragment and its bound
// parameters, with placeholders numbered from the requested start.
type Compiled struct {
	SQL    string
	Params []interface{}
}

// Compile translates a filter expression with placeholders numbered from $1.
func Compile(input string) (*Compiled, error) {
	return CompileFrom(input, 1)
}

// CompileFrom translates a filter expression with placeholders numbered from
// $firstPlaceholder, so callers can splice the fragment into a larger query.
func CompileFrom(input string, firstPlaceholder int) (*Compiled, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	root, err := parse(input, toks)
	if err != nil {
		return nil, err
	}

	t := &translator{input: input, next: firstPlaceholder}
	sql, err := t.render(root)
	if err != nil {
		return nil, err
	}

	return &Compiled{SQL: sql, Params: t.params}, nil
}
