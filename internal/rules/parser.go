package rules

import "fmt"

// stringFuncs are the permitted function tests. Anything else is rejected
// at compile time so evaluation can never fail at reconcile time.
var stringFuncs = map[string]bool{
	"startsWith": true,
	"endsWith":   true,
	"contains":   true,
}

// Parser is a recursive-descent parser for predicate expressions.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
}

// NewParser creates a parser over the given predicate text.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.next()
	p.next()
	return p
}

// Parse parses a complete predicate and requires EOF afterwards.
func (p *Parser) Parse() (Node, error) {
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected %s at offset %d", p.cur.Type, p.cur.Pos)
	}
	return expr, nil
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

// parseOr := parseAnd { "or" parseAnd }
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

// parseAnd := parseTerm { "and" parseTerm }
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenAnd {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

// parseTerm := "(" parseOr ")" | call | comparison
func (p *Parser) parseTerm() (Node, error) {
	switch p.cur.Type {
	case TokenLParen:
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenRParen {
			return nil, fmt.Errorf("expected ) at offset %d, got %s", p.cur.Pos, p.cur.Type)
		}
		p.next()
		return expr, nil
	case TokenIdent:
		if p.peek.Type == TokenLParen {
			return p.parseCall()
		}
		return p.parseComparison()
	default:
		return nil, fmt.Errorf("expected expression at offset %d, got %s", p.cur.Pos, p.cur.Type)
	}
}

// parseComparison := ident ("==" | "!=") (string | null)
func (p *Parser) parseComparison() (Node, error) {
	attr := p.cur.Literal
	p.next()

	var op string
	switch p.cur.Type {
	case TokenEq:
		op = "=="
	case TokenNeq:
		op = "!="
	default:
		return nil, fmt.Errorf("expected == or != after %q at offset %d", attr, p.cur.Pos)
	}
	p.next()

	switch p.cur.Type {
	case TokenString:
		expr := &CompareExpr{Attr: attr, Op: op, Value: p.cur.Literal}
		p.next()
		return expr, nil
	case TokenNull:
		expr := &CompareExpr{Attr: attr, Op: op, IsNull: true}
		p.next()
		return expr, nil
	default:
		return nil, fmt.Errorf("expected string or null after %q %s at offset %d", attr, op, p.cur.Pos)
	}
}

// parseCall := funcName "(" ident "," string ")"
func (p *Parser) parseCall() (Node, error) {
	fn := p.cur.Literal
	if !stringFuncs[fn] {
		return nil, fmt.Errorf("unknown function %q at offset %d", fn, p.cur.Pos)
	}
	p.next() // fn name
	p.next() // (

	if p.cur.Type != TokenIdent {
		return nil, fmt.Errorf("%s: expected attribute name at offset %d", fn, p.cur.Pos)
	}
	attr := p.cur.Literal
	p.next()

	if p.cur.Type != TokenComma {
		return nil, fmt.Errorf("%s: expected , at offset %d", fn, p.cur.Pos)
	}
	p.next()

	if p.cur.Type != TokenString {
		return nil, fmt.Errorf("%s: expected string argument at offset %d", fn, p.cur.Pos)
	}
	arg := p.cur.Literal
	p.next()

	if p.cur.Type != TokenRParen {
		return nil, fmt.Errorf("%s: expected ) at offset %d", fn, p.cur.Pos)
	}
	p.next()

	return &CallExpr{Fn: fn, Attr: attr, Arg: arg}, nil
}
