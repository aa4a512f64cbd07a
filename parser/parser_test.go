package parser

import (
	"fmt"
	"testing"

	"github.com/dr8co/tracejit/ast"
	"github.com/dr8co/tracejit/lexer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkParserErrors(t *testing.T, p *Parser) {
	t.Helper()
	errors := p.Errors()
	if len(errors) == 0 {
		return
	}
	for _, msg := range errors {
		t.Errorf("parser error: %s", msg)
	}
	t.FailNow()
}

func TestLetStatements(t *testing.T) {
	input := `
let x = 5;
let y = 10;
let foobar = 838383;
`
	l := lexer.New(input)
	p := New(l)
	program := p.ParseProgram()
	checkParserErrors(t, p)

	require.Len(t, program.Statements, 3)

	tests := []string{"x", "y", "foobar"}
	for i, name := range tests {
		stmt := program.Statements[i]
		assert.Equal(t, "let", stmt.TokenLiteral())

		letStmt, ok := stmt.(*ast.LetStatement)
		require.True(t, ok)
		assert.Equal(t, name, letStmt.Name.Value)
		assert.Equal(t, name, letStmt.Name.TokenLiteral())
	}
}

func TestAttributeExpression(t *testing.T) {
	input := `m.weight;`

	l := lexer.New(input)
	p := New(l)
	program := p.ParseProgram()
	checkParserErrors(t, p)

	require.Len(t, program.Statements, 1)
	stmt, ok := program.Statements[0].(*ast.ExpressionStatement)
	require.True(t, ok)

	attr, ok := stmt.Expression.(*ast.AttributeExpression)
	require.True(t, ok)

	ident, ok := attr.Left.(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "m", ident.Value)
	assert.Equal(t, "weight", attr.Name.Value)
}

func TestChainedAttributeExpressionAsCallArgument(t *testing.T) {
	input := `foo(m.weight.shape);`

	l := lexer.New(input)
	p := New(l)
	program := p.ParseProgram()
	checkParserErrors(t, p)

	stmt := program.Statements[0].(*ast.ExpressionStatement)
	call, ok := stmt.Expression.(*ast.CallExpression)
	require.True(t, ok)
	require.Len(t, call.Arguments, 1)

	outer, ok := call.Arguments[0].(*ast.AttributeExpression)
	require.True(t, ok)
	assert.Equal(t, "shape", outer.Name.Value)

	inner, ok := outer.Left.(*ast.AttributeExpression)
	require.True(t, ok)
	assert.Equal(t, "weight", inner.Name.Value)
}

func TestTryExpression(t *testing.T) {
	input := `try { raise err } catch (e) { e }`

	l := lexer.New(input)
	p := New(l)
	program := p.ParseProgram()
	checkParserErrors(t, p)

	require.Len(t, program.Statements, 1)
	stmt := program.Statements[0].(*ast.ExpressionStatement)
	tryExp, ok := stmt.Expression.(*ast.TryExpression)
	require.True(t, ok)

	require.Len(t, tryExp.TryBlock.Statements, 1)
	raiseStmt := tryExp.TryBlock.Statements[0].(*ast.ExpressionStatement)
	raiseExp, ok := raiseStmt.Expression.(*ast.RaiseExpression)
	require.True(t, ok)
	ident, ok := raiseExp.Value.(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "err", ident.Value)

	assert.Equal(t, "e", tryExp.CatchParam.Value)
	require.Len(t, tryExp.CatchBlock.Statements, 1)
}

func TestOperatorPrecedenceParsing(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"-a * b", "((-a) * b)"},
		{"!-a", "(!(-a))"},
		{"a + b + c", "((a + b) + c)"},
		{"a + b - c", "((a + b) - c)"},
		{"a * b * c", "((a * b) * c)"},
		{"a * b / c", "((a * b) / c)"},
		{"a + b / c", "(a + (b / c))"},
		{"a + b * c + d / e - f", "(((a + (b * c)) + (d / e)) - f)"},
		{"3 + 4; -5 * 5", "(3 + 4)((-5) * 5)"},
		{"5 > 4 == 3 < 4", "((5 > 4) == (3 < 4))"},
		{"5 < 4 != 3 > 4", "((5 < 4) != (3 > 4))"},
		{"5 >= 4 == 3 <= 4", "((5 >= 4) == (3 <= 4))"},
		{"3 + 4 * 5 == 3 * 1 + 4 * 5", "((3 + (4 * 5)) == ((3 * 1) + (4 * 5)))"},
		{"true", "true"},
		{"false", "false"},
		{"3 > 5 == false", "((3 > 5) == false)"},
		{"3 < 5 == true", "((3 < 5) == true)"},
		{"1 + (2 + 3) + 4", "((1 + (2 + 3)) + 4)"},
		{"(5 + 5) * 2", "((5 + 5) * 2)"},
		{"-(5 + 5)", "(-(5 + 5))"},
		{"!(true == true)", "(!(true == true))"},
		{"a + add(b * c) + d", "((a + add((b * c))) + d)"},
		{"a * [1, 2, 3, 4][b * c] * d", "((a * ([1, 2, 3, 4][(b * c)])) * d)"},
		{"add(a, b, 1, 2 * 3, 4 + 5, add(6, 7 * 8))",
			"add(a, b, 1, (2 * 3), (4 + 5), add(6, (7 * 8)))"},
		{"add(a * b[2], b[1], 2 * [1, 2][1])",
			"add((a * (b[2])), (b[1]), (2 * ([1, 2][1])))"},
		{"m.weight", "(m.weight)"},
		{"m.weight.shape", "((m.weight).shape)"},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			l := lexer.New(tt.input)
			p := New(l)
			program := p.ParseProgram()
			checkParserErrors(t, p)

			assert.Equal(t, tt.expected, program.String())
		})
	}
}
