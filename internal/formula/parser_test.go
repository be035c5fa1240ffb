package formula

import "testing"

func TestParseValidExpressions(t *testing.T) {
	exprs := []string{
		"1 + 2 * 3",
		"[amount] * (1 + [tax_rate])",
		"IF([qty] > 10, 'bulk', 'retail')",
		"CONCATENATE([a], ', ', [b])",
		"[customer].[name]",
		"-[total]",
		"SUM(SELECT('orders', 'total', '[status] = \"open\"'))",
		"TRUE",
		"\"double quoted\"",
		"3.14 * [radius] * [radius]",
	}
	for _, expr := range exprs {
		if _, err := Parse(expr); err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", expr, err)
		}
	}
}

func TestParseInvalidExpressions(t *testing.T) {
	exprs := []string{
		"",
		"[unclosed",
		"'unterminated",
		"1 +",
		"IF(1, 2",
		"(1 + 2",
		"[]",
		"UNKNOWN_IDENT",   // bare identifier without a call
		"1 2",             // trailing token
		"1.['field']",     // deref needs a column reference on the left
		"foo # bar",       // unexpected character
	}
	for _, expr := range exprs {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error, got none", expr)
		}
	}
}

func TestParseDerefShape(t *testing.T) {
	ast, err := Parse("[customer].[name]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, ok := ast.(deref)
	if !ok {
		t.Fatalf("expected deref node, got %T", ast)
	}
	if d.ref.name != "customer" || d.col != "name" {
		t.Errorf("expected [customer].[name], got [%s].[%s]", d.ref.name, d.col)
	}
}

func TestParseNumberDotColRefIsDeref(t *testing.T) {
	// A dot before '[' must lex as the deref operator, not a decimal point.
	toks, err := lex("[a].[b]")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	kinds := []tokenKind{tokColRef, tokDot, tokColRef, tokEOF}
	if len(toks) != len(kinds) {
		t.Fatalf("expected %d tokens, got %d", len(kinds), len(toks))
	}
	for i, k := range kinds {
		if toks[i].kind != k {
			t.Errorf("token %d: expected kind %d, got %d", i, k, toks[i].kind)
		}
	}
}

func TestParsePrecedence(t *testing.T) {
	ast, err := Parse("1 + 2 * 3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, ok := ast.(binary)
	if !ok || b.op != "+" {
		t.Fatalf("expected + at the root, got %#v", ast)
	}
	if inner, ok := b.right.(binary); !ok || inner.op != "*" {
		t.Errorf("expected * on the right of +, got %#v", b.right)
	}
}
