// Package vm implements the trace executor: given a prims.TraceCtx (the
// prologue or the computation trace jit.Compile produced) and a set of
// real, concrete inputs, it runs the trace's BoundSymbols in emission
// order and returns the values its output proxies resolved to.
//
// This is what validates the round-trip property described in spec.md
// §8: run the prologue against real inputs, check every guard passes,
// then run the computation trace against the same inputs and confirm
// its result matches evaluating the original closure directly. It is
// not part of the compile-time pipeline; it exists to verify a
// compilation, not to produce one — the teacher's own vm package was a
// bytecode-stepping VM for the host language itself, this is its
// tracer-domain analogue: a flat, SSA-style stepper rather than a
// frame-stack one, because a TraceCtx has no calls or jumps to frame.
package vm

import (
	"fmt"

	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/object"
	"github.com/dr8co/tracejit/prologue"
)

// Env binds a trace's proxy names to the concrete values they resolved
// to while running. Exposed so a caller (e.g. the repl's trace
// inspector) can print intermediate values, not just the final output.
type Env map[string]object.Object

// Executor runs a single TraceCtx to completion against one set of
// concrete inputs.
type Executor struct {
	env      Env
	inputPos int
	inputs   []object.Object
}

// NewExecutor returns an Executor ready to run trace against inputs —
// the concrete values bound, in order, to the trace's unpack_trivial
// and unpack_function_obj symbols (i.e. the same positional/keyword
// argument order jit.Compile wrapped with INPUT_ARGS/INPUT_KWARGS/
// INPUT_FN provenance).
func NewExecutor(inputs []object.Object) *Executor {
	return &Executor{env: make(Env), inputs: inputs}
}

// Run executes trace's BoundSymbols in order, returning the concrete
// values of its declared Outputs(). An error here means either a guard
// failed (a check_* symbol) or the trace references a proxy no earlier
// symbol bound, which is a bug in prologue synthesis rather than a
// guard failure proper — callers distinguish the two via GuardFailure.
func (e *Executor) Run(trace *prims.TraceCtx) ([]object.Object, error) {
	for _, sym := range trace.Symbols() {
		if err := e.step(sym); err != nil {
			return nil, fmt.Errorf("vm: %s: %w", sym.String(), err)
		}
	}

	outs := trace.Outputs()
	results := make([]object.Object, len(outs))
	for idx, p := range outs {
		v, ok := e.env[p.Name()]
		if !ok {
			return nil, fmt.Errorf("vm: output proxy %s was never bound", p.Name())
		}
		results[idx] = v
	}
	return results, nil
}

// GuardFailure is returned by Run (wrapped) when a check_*/assert_*
// symbol's runtime value disagrees with the value it was compiled
// against — the signal that the computation trace is no longer valid
// for these inputs and the caller must recompile.
type GuardFailure struct {
	Symbol string
	Detail string
}

func (g *GuardFailure) Error() string {
	return fmt.Sprintf("vm: guard failed at %s: %s", g.Symbol, g.Detail)
}

func (e *Executor) step(sym *prims.BoundSymbol) error {
	switch sym.Name {
	case "unpack_trivial", "unpack_function_obj":
		if e.inputPos >= len(e.inputs) {
			return fmt.Errorf("not enough inputs supplied: need at least %d", e.inputPos+1)
		}
		e.bind(sym, e.inputs[e.inputPos])
		e.inputPos++
		return nil

	case "materialize_const":
		e.bind(sym, literalToObject(sym.Const))
		return nil

	case "unpack_attr":
		base, err := e.arg(sym, 0)
		if err != nil {
			return err
		}
		rec, ok := base.(*object.Record)
		if !ok {
			return fmt.Errorf("unpack_attr: base is %s, not a record", base.Type())
		}
		name, _ := sym.Const.(string)
		val, found := rec.GetAttr(name)
		if !found {
			return fmt.Errorf("unpack_attr: no attribute %q", name)
		}
		e.bind(sym, val)
		return nil

	case "unpack_getitem":
		base, err := e.arg(sym, 0)
		if err != nil {
			return err
		}
		arr, ok := base.(*object.Array)
		if !ok {
			return fmt.Errorf("unpack_getitem: base is %s, not an array", base.Type())
		}
		idx, _ := sym.Const.(int)
		if idx < 0 || idx >= len(arr.Elements) {
			return fmt.Errorf("unpack_getitem: index %d out of range for length %d", idx, len(arr.Elements))
		}
		e.bind(sym, arr.Elements[idx])
		return nil

	case "assert_tensor_metadata":
		val, err := e.arg(sym, 0)
		if err != nil {
			return err
		}
		return e.checkTensorMetadata(sym, val)

	case "check_number_type_and_value":
		return e.checkNumber(sym)

	case "check_string_value":
		return e.checkString(sym)

	case "check_branch_condition":
		return e.checkBranch(sym)

	case "add", "sub", "mul", "div", "eq", "gt", "neg", "not":
		return e.evalPrimitive(sym)

	case "return":
		// Handled by Run via trace.Outputs(); nothing to do per-symbol.
		return nil

	default:
		return fmt.Errorf("unknown trace symbol %q", sym.Name)
	}
}

func (e *Executor) arg(sym *prims.BoundSymbol, idx int) (object.Object, error) {
	if idx >= len(sym.Args) {
		return nil, fmt.Errorf("%s: expected at least %d args, got %d", sym.Name, idx+1, len(sym.Args))
	}
	name := sym.Args[idx].Name()
	v, ok := e.env[name]
	if !ok {
		return nil, fmt.Errorf("%s: operand %s was never bound", sym.Name, name)
	}
	return v, nil
}

func (e *Executor) bind(sym *prims.BoundSymbol, v object.Object) {
	if sym.OutputProxy != nil {
		e.env[sym.OutputProxy.Name()] = v
	}
}

func (e *Executor) checkTensorMetadata(sym *prims.BoundSymbol, v object.Object) error {
	t, ok := v.(*object.Tensor)
	if !ok {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("expected a tensor, got %s", v.Type())}
	}
	meta, ok := sym.Const.(prologue.TensorMeta)
	if !ok {
		return fmt.Errorf("%s: Const is %T, not prologue.TensorMeta", sym.Name, sym.Const)
	}
	if !int64SliceEqual(t.Shape, meta.Shape) {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("shape mismatch: compiled %v, got %v", meta.Shape, t.Shape)}
	}
	if !int64SliceEqual(t.Strides, meta.Strides) {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("strides mismatch: compiled %v, got %v", meta.Strides, t.Strides)}
	}
	if t.Dtype != meta.Dtype {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("dtype mismatch: compiled %s, got %s", meta.Dtype, t.Dtype)}
	}
	if t.Device != meta.Device {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("device mismatch: compiled %s, got %s", meta.Device, t.Device)}
	}
	if t.RequiresGrad != meta.RequiresGrad {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("requires_grad mismatch: compiled %t, got %t", meta.RequiresGrad, t.RequiresGrad)}
	}
	return nil
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Executor) checkNumber(sym *prims.BoundSymbol) error {
	if len(sym.Args) == 0 {
		// The constrained provenance was itself an inlined literal;
		// nothing to check against at run time.
		return nil
	}
	v, err := e.arg(sym, 0)
	if err != nil {
		return err
	}
	switch n := v.(type) {
	case *object.Integer:
		want, ok := sym.Const.(int64)
		if !ok {
			if w, ok2 := sym.Const.(int); ok2 {
				want = int64(w)
			}
		}
		if n.Value != want {
			return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("want %d, got %d", want, n.Value)}
		}
		return nil
	case *object.Boolean:
		want, _ := sym.Const.(bool)
		if n.Value != want {
			return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("want %t, got %t", want, n.Value)}
		}
		return nil
	default:
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("expected a number, got %s", v.Type())}
	}
}

func (e *Executor) checkString(sym *prims.BoundSymbol) error {
	if len(sym.Args) == 0 {
		return nil
	}
	v, err := e.arg(sym, 0)
	if err != nil {
		return err
	}
	s, ok := v.(*object.String)
	if !ok {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("expected a string, got %s", v.Type())}
	}
	want, _ := sym.Const.(string)
	if s.Value != want {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("want %q, got %q", want, s.Value)}
	}
	return nil
}

func (e *Executor) checkBranch(sym *prims.BoundSymbol) error {
	if len(sym.Args) == 0 {
		return nil
	}
	v, err := e.arg(sym, 0)
	if err != nil {
		return err
	}
	taken, _ := sym.Const.(bool)
	if truthy(v) != taken {
		return &GuardFailure{Symbol: sym.String(), Detail: fmt.Sprintf("branch taken=%t at compile time, truthy(%s)=%t now", taken, v.Inspect(), truthy(v))}
	}
	return nil
}

func (e *Executor) evalPrimitive(sym *prims.BoundSymbol) error {
	operands := make([]object.Object, len(sym.Args))
	for idx := range sym.Args {
		v, err := e.arg(sym, idx)
		if err != nil {
			return err
		}
		operands[idx] = v
	}
	result, err := evalPrimitiveConcrete(sym.Name, operands)
	if err != nil {
		return err
	}
	e.bind(sym, result)
	return nil
}

// evalPrimitiveConcrete evaluates one of the fixed symbolic primitives
// (the same set as prims.Library, plus the unary neg/not the
// interpreter binds directly rather than through the library) against
// real operand values — the concrete-execution half of the trace, used
// once the prologue's unpacks have supplied real inputs for every
// proxy the computation trace references.
func evalPrimitiveConcrete(name string, operands []object.Object) (object.Object, error) {
	switch name {
	case "neg":
		if len(operands) != 1 {
			return nil, fmt.Errorf("neg: want 1 operand, got %d", len(operands))
		}
		if t, ok := operands[0].(*object.Tensor); ok {
			return tensorLike(t), nil
		}
		n, ok := operands[0].(*object.Integer)
		if !ok {
			return nil, fmt.Errorf("neg: unsupported operand type %s", operands[0].Type())
		}
		return &object.Integer{Value: -n.Value}, nil

	case "not":
		if len(operands) != 1 {
			return nil, fmt.Errorf("not: want 1 operand, got %d", len(operands))
		}
		return &object.Boolean{Value: !truthy(operands[0])}, nil
	}

	if len(operands) != 2 {
		return nil, fmt.Errorf("%s: want 2 operands, got %d", name, len(operands))
	}

	// Arithmetic primitives over a tensor operand carry a Tensor output
	// proxy (internal/prims.outputFor), so their concrete replay mirrors
	// that the same way interp/ops.go's primOutputConcrete does:
	// metadata propagated from whichever operand is the tensor, data
	// left for a real tensor runtime to fill in. eq/gt always bind a
	// scalar NumberProxy output regardless of operand kind, so they fall
	// through to the integer-only path below and are unsupported over
	// tensors, same as upstream.
	switch name {
	case "add", "sub", "mul", "div":
		if out, ok := tensorOutputFor(operands[0], operands[1]); ok {
			return out, nil
		}
	}

	a, aok := operands[0].(*object.Integer)
	b, bok := operands[1].(*object.Integer)

	switch name {
	case "add":
		if as, asok := operands[0].(*object.String); asok {
			if bs, bsok := operands[1].(*object.String); bsok {
				return &object.String{Value: as.Value + bs.Value}, nil
			}
		}
		if !aok || !bok {
			return nil, fmt.Errorf("add: unsupported operand types %s, %s", operands[0].Type(), operands[1].Type())
		}
		return &object.Integer{Value: a.Value + b.Value}, nil
	case "sub":
		if !aok || !bok {
			return nil, fmt.Errorf("sub: unsupported operand types %s, %s", operands[0].Type(), operands[1].Type())
		}
		return &object.Integer{Value: a.Value - b.Value}, nil
	case "mul":
		if !aok || !bok {
			return nil, fmt.Errorf("mul: unsupported operand types %s, %s", operands[0].Type(), operands[1].Type())
		}
		return &object.Integer{Value: a.Value * b.Value}, nil
	case "div":
		if !aok || !bok {
			return nil, fmt.Errorf("div: unsupported operand types %s, %s", operands[0].Type(), operands[1].Type())
		}
		if b.Value == 0 {
			return nil, fmt.Errorf("div: division by zero")
		}
		return &object.Integer{Value: a.Value / b.Value}, nil
	case "eq":
		if !aok || !bok {
			return nil, fmt.Errorf("eq: unsupported operand types %s, %s", operands[0].Type(), operands[1].Type())
		}
		return &object.Boolean{Value: a.Value == b.Value}, nil
	case "gt":
		if !aok || !bok {
			return nil, fmt.Errorf("gt: unsupported operand types %s, %s", operands[0].Type(), operands[1].Type())
		}
		return &object.Boolean{Value: a.Value > b.Value}, nil
	default:
		return nil, fmt.Errorf("unknown primitive %q", name)
	}
}

// tensorLike returns a Tensor carrying the same metadata as t, no Data.
func tensorLike(t *object.Tensor) *object.Tensor {
	return &object.Tensor{
		Shape:        t.Shape,
		Strides:      t.Strides,
		Dtype:        t.Dtype,
		Device:       t.Device,
		RequiresGrad: t.RequiresGrad,
	}
}

// tensorOutputFor mirrors internal/prims.outputFor: the result is a
// tensor carrying whichever operand's metadata is itself a tensor (a
// is preferred, matching outputFor's own a-then-b order).
func tensorOutputFor(a, b object.Object) (*object.Tensor, bool) {
	if at, ok := a.(*object.Tensor); ok {
		return tensorLike(at), true
	}
	if bt, ok := b.(*object.Tensor); ok {
		return tensorLike(bt), true
	}
	return nil, false
}

func literalToObject(lit any) object.Object {
	switch v := lit.(type) {
	case int:
		return &object.Integer{Value: int64(v)}
	case int64:
		return &object.Integer{Value: v}
	case string:
		return &object.String{Value: v}
	case bool:
		return &object.Boolean{Value: v}
	default:
		return &object.Null{}
	}
}

func truthy(obj object.Object) bool {
	switch v := obj.(type) {
	case *object.Boolean:
		return v.Value
	case *object.Null:
		return false
	default:
		return true
	}
}
