package jit_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dr8co/tracejit/compiler"
	"github.com/dr8co/tracejit/internal/lookaside"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/interp"
	"github.com/dr8co/tracejit/jit"
	"github.com/dr8co/tracejit/lexer"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/parser"
	"github.com/dr8co/tracejit/vm"
)

// compileAndBoot compiles src's top-level statements and runs them once,
// returning the named global closure plus the constant pool jit.Compile
// needs to trace it.
func compileAndBoot(t *testing.T, src, fnName string) (*object.Closure, []object.Object, *lookaside.Registry, *logrus.Logger) {
	t.Helper()

	program := parser.New(lexer.New(src)).ParseProgram()
	st := compiler.NewSymbolTable()
	comp := compiler.NewWithState(st, nil)
	require.NoError(t, comp.Compile(program))
	bc := comp.Bytecode()

	sym, ok := st.Resolve(fnName)
	require.True(t, ok)
	require.Equal(t, compiler.GlobalScope, sym.Scope)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	lk := lookaside.New()
	policy := sharpedge.NewWithLevel(log.WithField("test", fnName), sharpedge.Error)

	mainClosure := &object.Closure{Fn: &object.CompiledFunction{Instructions: bc.Instructions}}
	boot := interp.New(bc.Constants, nil, lk, policy)
	require.NoError(t, boot.RunTraced(mainClosure, nil))

	closure, ok := boot.GlobalsSnapshot()[sym.Index].Concrete.(*object.Closure)
	require.True(t, ok)
	return closure, bc.Constants, lk, log
}

// TestTensorAdditionRoundTrips drives f(x, y) = x + y over two float
// tensors of shape (4, 4) through jit.Compile and then through package
// vm, checking that the prologue's guards pass and the computation
// trace's output tensor carries the operands' own metadata.
func TestTensorAdditionRoundTrips(t *testing.T) {
	closure, constants, lk, log := compileAndBoot(t, "let f = fn(x, y) { x + y };", "f")

	x := &object.Tensor{Shape: []int64{4, 4}, Strides: []int64{4, 1}, Dtype: "float32", Device: "cpu"}
	y := &object.Tensor{Shape: []int64{4, 4}, Strides: []int64{4, 1}, Dtype: "float32", Device: "cpu"}

	cc := jit.NewCompileContext(log, lk)
	result, err := jit.Compile(cc, constants, closure, []object.Object{x, y}, nil, nil, sharpedge.Error, jit.NoCaching)
	require.NoError(t, err)

	proExec := vm.NewExecutor([]object.Object{x, y})
	unpacked, err := proExec.Run(result.Prologue)
	require.NoError(t, err, "prologue guards should pass against the same inputs used to trace")

	compExec := vm.NewExecutor(unpacked)
	out, err := compExec.Run(result.Computation)
	require.NoError(t, err)
	require.Len(t, out, 1)

	tensor, ok := out[0].(*object.Tensor)
	require.True(t, ok, "expected the computation trace to produce a tensor, got %T", out[0])
	require.Equal(t, []int64{4, 4}, tensor.Shape)
	require.Equal(t, "float32", tensor.Dtype)
	require.Equal(t, "cpu", tensor.Device)
}

// TestCompileAppliesUniformSharpEdgeLevel checks that Compile's single
// sharp_edges_level argument replaces cc.Policy wholesale: an edge the
// caller Set to Error beforehand (DisallowedGlobal) reads Allow once
// Compile has run with Allow.
func TestCompileAppliesUniformSharpEdgeLevel(t *testing.T) {
	closure, constants, lk, log := compileAndBoot(t, "let f = fn(x) { x + 1 };", "f")

	cc := jit.NewCompileContext(log, lk)
	cc.Policy.Set(sharpedge.DisallowedGlobal, sharpedge.Error)
	require.Equal(t, sharpedge.Error, cc.Policy.Level(sharpedge.DisallowedGlobal))

	_, err := jit.Compile(cc, constants, closure, []object.Object{&object.Integer{Value: 1}}, nil, nil, sharpedge.Allow, jit.NoCaching)
	require.NoError(t, err)
	require.Equal(t, sharpedge.Allow, cc.Policy.Level(sharpedge.DisallowedGlobal),
		"Compile should have replaced the per-call policy with the uniform level, overriding any prior Set")
}
