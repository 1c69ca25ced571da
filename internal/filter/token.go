package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokContains
	tokEq
	tokField  // @id, @metadata, @metadata.key
	tokString // quoted string, unescaped
	tokNumber
	tokBool
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokContains:
		return "CONTAINS"
	case tokEq:
		return "'='"
	case tokField:
		return "field"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokBool:
		return "boolean"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string // raw text for fields; decoded value for strings
	num  float64
	b    bool
	pos  int // byte offset into the original input
}

// tokenize converts the filter input into a token stream. Positions refer to
// the original input so errors can point at the offending byte.
func tokenize(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++

		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++

		case c == '=':
			start := i
			i++
			if i < n && input[i] == '=' {
				i++
			}
			toks = append(toks, token{kind: tokEq, pos: start})

		case c == '"':
			s, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next

		case c == '@':
			start := i
			i++
			for i < n && (isIdentChar(input[i]) || input[i] == '.' || input[i] == '-') {
				i++
			}
			toks = append(toks, token{kind: tokField, text: input[start:i], pos: start})

		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < n && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			f, err := strconv.ParseFloat(input[start:i], 64)
			if err != nil {
				return nil, &CompileError{
					Stage:    StageTokenizer,
					Position: start,
					Snippet:  snippet(input, start),
					Message:  fmt.Sprintf("invalid number %q", input[start:i]),
					Hint:     "numbers may be negative decimals, e.g. -1.5",
				}
			}
			toks = append(toks, token{kind: tokNumber, num: f, pos: start})

		case unicode.IsLetter(rune(c)):
			start := i
			for i < n && isIdentChar(input[i]) {
				i++
			}
			word := input[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{kind: tokAnd, pos: start})
			case "OR":
				toks = append(toks, token{kind: tokOr, pos: start})
			case "CONTAINS":
				toks = append(toks, token{kind: tokContains, pos: start})
			case "TRUE":
				toks = append(toks, token{kind: tokBool, b: true, pos: start})
			case "FALSE":
				toks = append(toks, token{kind: tokBool, b: false, pos: start})
			default:
				return nil, &CompileError{
					Stage:    StageTokenizer,
					Position: start,
					Snippet:  snippet(input, start),
					Message:  fmt.Sprintf("unexpected word %q", word),
					Hint:     "fields start with '@' and string values must be double-quoted",
				}
			}

		default:
			return nil, &CompileError{
				Stage:    StageTokenizer,
				Position: i,
				Snippet:  snippet(input, i),
				Message:  fmt.Sprintf("unexpected character %q", string(c)),
				Hint:     "expected a field, operator, parenthesis, or literal",
			}
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

// lexString reads a double-quoted string with \" and \\ escapes starting at
// input[start] == '"'. Returns the decoded value and the index after the
// closing quote.
func lexString(input string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		if c == '\\' && i+1 < len(input) {
			sb.WriteByte(input[i+1])
			i += 2
			continue
		}
		if c == '"' {
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, &CompileError{
		Stage:    StageTokenizer,
		Position: start,
		Snippet:  snippet(input, start),
		Message:  "unterminated string literal",
		Hint:     `close the string with a '"'`,
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// snippet returns a short window of the input around pos for error messages.
func snippet(input string, pos int) string {
	start := pos - 15
	if start < 0 {
		start = 0
	}
	end := pos + 15
	if end > len(input) {
		end = len(input)
	}
	return input[start:end]
}
