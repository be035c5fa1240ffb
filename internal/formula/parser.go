package formula

import (
	"fmt"
	"strconv"
)

// AST node kinds. Evaluation lives in eval.go.
type node interface{}

type numberLit struct{ value float64 }
type stringLit struct{ value string }
type boolLit struct{ value bool }

// colRef resolves a field name against the current payload.
type colRef struct{ name string }

// deref follows the identifier stored in ref to the field's lookup target
// entity and reads col from that record.
type deref struct {
	ref colRef
	col string
}

type unaryNeg struct{ operand node }

type binary struct {
	op    string
	left  node
	right node
}

type call struct {
	name string
	args []node
}

type parser struct {
	toks []token
	pos  int
}

// Parse compiles a formula string into its AST.
func Parse(input string) (node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at %d", p.peek().text, p.peek().pos)
	}
	return expr, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return left, nil
		}
		switch t.text {
		case "=", "<>", "<", "<=", ">", ">=":
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = binary{op: t.text, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binary{op: t.text, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: t.text, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNeg{operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokDot {
		ref, ok := expr.(colRef)
		if !ok {
			return nil, fmt.Errorf("deref requires a column reference on the left at %d", p.peek().pos)
		}
		p.next()
		colTok := p.next()
		if colTok.kind != tokColRef {
			return nil, fmt.Errorf("expected [column] after '.' at %d", colTok.pos)
		}
		expr = deref{ref: ref, col: colTok.text}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at %d", t.text, t.pos)
		}
		return numberLit{value: v}, nil

	case tokString:
		return stringLit{value: t.text}, nil

	case tokColRef:
		return colRef{name: t.text}, nil

	case tokIdent:
		switch t.text {
		case "TRUE", "true":
			return boolLit{value: true}, nil
		case "FALSE", "false":
			return boolLit{value: false}, nil
		}
		if p.peek().kind != tokLParen {
			return nil, fmt.Errorf("expected '(' after %s at %d", t.text, t.pos)
		}
		p.next()
		var args []node
		if p.peek().kind != tokRParen {
			for {
				arg, err := p.parseComparison()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at %d", closing.pos)
		}
		return call{name: t.text, args: args}, nil

	case tokLParen:
		expr, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at %d", closing.pos)
		}
		return expr, nil

	default:
		return nil, fmt.Errorf("unexpected token %q at %d", t.text, t.pos)
	}
}
