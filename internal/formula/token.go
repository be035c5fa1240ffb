package formula

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent  // function names, TRUE/FALSE
	tokColRef // [field_name]
	tokOp     // = <> < <= > >= + - * /
	tokLParen
	tokRParen
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits a formula into tokens. Column references keep only the inner
// field name.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '[':
			end := strings.IndexByte(input[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated column reference at %d", i)
			}
			name := strings.TrimSpace(input[i+1 : i+end])
			if name == "" {
				return nil, fmt.Errorf("empty column reference at %d", i)
			}
			toks = append(toks, token{tokColRef, name, i})
			i += end + 1

		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < n && input[j] != quote {
				if input[j] == '\\' && j+1 < n {
					j++
				}
				sb.WriteByte(input[j])
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			toks = append(toks, token{tokString, sb.String(), i})
			i = j + 1

		case c >= '0' && c <= '9':
			j := i
			for j < n && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				// A dot followed by '[' is the deref operator, not a decimal point.
				if input[j] == '.' && j+1 < n && input[j+1] == '[' {
					break
				}
				j++
			}
			toks = append(toks, token{tokNumber, input[i:j], i})
			i = j

		case isIdentStart(rune(c)):
			j := i
			for j < n && isIdentPart(rune(input[j])) {
				j++
			}
			toks = append(toks, token{tokIdent, input[i:j], i})
			i = j

		case c == '<':
			if i+1 < n && (input[i+1] == '>' || input[i+1] == '=') {
				toks = append(toks, token{tokOp, input[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, "<", i})
				i++
			}

		case c == '>':
			if i+1 < n && input[i+1] == '=' {
				toks = append(toks, token{tokOp, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, ">", i})
				i++
			}

		case c == '=' || c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{tokOp, string(c), i})
			i++

		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++

		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++

		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++

		case c == '.':
			toks = append(toks, token{tokDot, ".", i})
			i++

		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}

	toks = append(toks, token{tokEOF, "", n})
	return toks, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
