package compiler

import (
	"testing"

	"github.com/dr8co/tracejit/ast"
	"github.com/dr8co/tracejit/code"
	"github.com/dr8co/tracejit/lexer"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type compilerTestCase struct {
	input                string
	expectedConstants    []any
	expectedInstructions []code.Instructions
}

func parse(input string) *ast.Program {
	l := lexer.New(input)
	p := parser.New(l)
	return p.ParseProgram()
}

func concatInstructions(s []code.Instructions) code.Instructions {
	out := code.Instructions{}
	for _, ins := range s {
		out = append(out, ins...)
	}
	return out
}

func testInstructions(t *testing.T, expected []code.Instructions, actual code.Instructions) {
	t.Helper()
	concatted := concatInstructions(expected)
	assert.Equal(t, concatted.String(), actual.String())
}

func testConstants(t *testing.T, expected []any, actual []object.Object) {
	t.Helper()
	require.Len(t, actual, len(expected))

	for i, constant := range expected {
		switch c := constant.(type) {
		case int:
			intObj, ok := actual[i].(*object.Integer)
			require.True(t, ok)
			assert.Equal(t, int64(c), intObj.Value)
		case string:
			strObj, ok := actual[i].(*object.String)
			require.True(t, ok)
			assert.Equal(t, c, strObj.Value)
		case []code.Instructions:
			fn, ok := actual[i].(*object.CompiledFunction)
			require.True(t, ok)
			testInstructions(t, c, fn.Instructions)
		}
	}
}

func runCompilerTests(t *testing.T, tests []compilerTestCase) {
	t.Helper()
	for _, tt := range tests {
		program := parse(tt.input)

		c := New()
		err := c.Compile(program)
		require.NoError(t, err)

		bytecode := c.Bytecode()

		testInstructions(t, tt.expectedInstructions, bytecode.Instructions)
		testConstants(t, tt.expectedConstants, bytecode.Constants)
	}
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []compilerTestCase{
		{
			input:             "1 + 2",
			expectedConstants: []any{1, 2},
			expectedInstructions: []code.Instructions{
				code.Make(code.OpConstant, 0),
				code.Make(code.OpConstant, 1),
				code.Make(code.OpAdd),
				code.Make(code.OpPop),
			},
		},
	}
	runCompilerTests(t, tests)
}

func TestAttributeExpression(t *testing.T) {
	input := `let m = 0; m.weight;`
	program := parse(input)
	c := New()
	err := c.Compile(program)
	require.NoError(t, err)

	bytecode := c.Bytecode()
	testConstants(t, []any{0, "weight"}, bytecode.Constants)

	expected := []code.Instructions{
		code.Make(code.OpConstant, 0),
		code.Make(code.OpSetGlobal, 0),
		code.Make(code.OpGetGlobal, 0),
		code.Make(code.OpGetAttr, 1),
		code.Make(code.OpPop),
	}
	testInstructions(t, expected, bytecode.Instructions)
}

func TestTryRaiseExpression(t *testing.T) {
	input := `try { raise 1 } catch (e) { e }`

	program := parse(input)
	c := New()
	err := c.Compile(program)
	require.NoError(t, err)

	bytecode := c.Bytecode()
	testConstants(t, []any{1}, bytecode.Constants)

	// OpSetupTry jumps to the catch handler; the try block raises before
	// reaching its own OpPopBlock, so the handler binds e and leaves its
	// block's value on the stack.
	ins := bytecode.Instructions.String()
	assert.Contains(t, ins, "OpSetupTry")
	assert.Contains(t, ins, "OpRaise")
	assert.Contains(t, ins, "OpSetGlobal 0")
}
