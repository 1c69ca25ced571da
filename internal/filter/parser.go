package filter

import "fmt"

// AST node kinds. The grammar is:
//
//	Expr    := Or
//	Or      := And ('OR' And)*
//	And     := Primary ('AND' Primary)*
//	Primary := '(' Expr ')' | Comparison
//
// AND binds tighter than OR.
type node interface{ pos() int }

type binaryNode struct {
	op          string // "AND" or "OR"
	left, right node
	at          int
}

func (n *binaryNode) pos() int { return n.at }

type literalKind int

const (
	litString literalKind = iota
	litNumber
	litBool
)

type literal struct {
	kind literalKind
	s    string
	num  float64
	b    bool
}

type cmpNode struct {
	field    string // raw field text including the leading '@'
	contains bool   // true for CONTAINS, false for = / ==
	lit      literal
	at       int // position of the field token
}

func (n *cmpNode) pos() int { return n.at }

type parser struct {
	input string
	toks  []token
	i     int
}

func (p *parser) cur() token { return p.toks[p.i] }

func (p *parser) errorf(tok token, hint, format string, args ...interface{}) error {
	return &CompileError{
		Stage:    StageParser,
		Position: tok.pos,
		Snippet:  snippet(p.input, tok.pos),
		Message:  fmt.Sprintf(format, args...),
		Hint:     hint,
	}
}

func parse(input string, toks []token) (node, error) {
	p := &parser{input: input, toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, p.errorf(p.cur(), "join comparisons with AND or OR",
			"unexpected %s after expression", p.cur().kind)
	}
	return n, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOr {
		at := p.cur().pos
		p.i++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "OR", left: left, right: right, at: at}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokAnd {
		at := p.cur().pos
		p.i++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "AND", left: left, right: right, at: at}
	}
	return left, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.cur()

	if tok.kind == tokLParen {
		p.i++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur().kind != tokRParen {
			return nil, p.errorf(p.cur(), "close the group with ')'",
				"expected ')', found %s", p.cur().kind)
		}
		p.i++
		return inner, nil
	}

	if tok.kind != tokField {
		return nil, p.errorf(tok, "comparisons look like '@metadata.topic = \"value\"'",
			"expected a field, found %s", tok.kind)
	}
	p.i++

	op := p.cur()
	var contains bool
	switch op.kind {
	case tokEq:
	case tokContains:
		contains = true
	default:
		return nil, p.errorf(op, "use '=' for equality or CONTAINS for membership",
			"expected an operator after %s, found %s", tok.text, op.kind)
	}
	p.i++

	litTok := p.cur()
	var lit literal
	switch litTok.kind {
	case tokString:
		lit = literal{kind: litString, s: litTok.text}
	case tokNumber:
		lit = literal{kind: litNumber, num: litTok.num}
	case tokBool:
		lit = literal{kind: litBool, b: litTok.b}
	default:
		return nil, p.errorf(litTok, "values are quoted strings, numbers, true, or false",
			"expected a literal, found %s", litTok.kind)
	}
	p.i++

	return &cmpNode{field: tok.text, contains: contains, lit: lit, at: tok.pos}, nil
}
