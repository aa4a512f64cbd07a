// Package interp implements the tracing bytecode interpreter (C2): a
// meta-circular interpreter for package code's instruction set that
// carries a WrappedValue operand stack instead of a bare object.Object
// one, consults the lookaside & callback registry (package lookaside) at
// every call site, and emits a symbolic computation trace (package
// prims) whenever an operation involves a proxy-backed value.
//
// The frame stack, operand stack, and dispatch loop are adapted from
// the teacher's vm package; the addition here is the WrappedValue layer
// (package wrapped), the trace-emission side effects, and the
// OpGetAttr/OpSetupTry/OpPopBlock/OpRaise opcodes the host language
// gained for this tracer.
package interp

import (
	"fmt"

	"github.com/dr8co/tracejit/code"
	"github.com/dr8co/tracejit/internal/lookaside"
	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/internal/translate"
	"github.com/dr8co/tracejit/internal/wrapped"
	"github.com/dr8co/tracejit/object"
)

const (
	stackSize  = 2048
	globalSize = 65536
	maxFrames  = 1024
)

var (
	objTrue  = &object.Boolean{Value: true}
	objFalse = &object.Boolean{Value: false}
	objNull  = &object.Null{}
)

// block is one entry of the try/catch handler stack: where to resume
// (CatchPos), how far to unwind the operand stack (StackDepth), and
// which frame owns the handler (FrameIndex) — OpRaise only unwinds
// within the frame that set the handler up; cross-function propagation
// is not supported.
type block struct {
	CatchPos   int
	StackDepth int
	FrameIndex int
}

// Interpreter is the tracing bytecode interpreter. One Interpreter
// instance corresponds to one call to jit.Compile; it is not safe for
// concurrent use, consistent with the single-threaded, synchronous
// execution model described by spec.md §5.
type Interpreter struct {
	constants []object.Object
	globals   []*wrapped.Value

	stack []*wrapped.Value
	sp    int

	frames      []*Frame
	framesIndex int

	blocks []block

	Lookaside *lookaside.Registry
	Policy    *sharpedge.Policy
	Namer     *proxy.Namer
	Cache     *wrapped.Cache

	// Trace accumulates the BoundSymbols emitted by symbolic operations
	// during this run — the computation trace (C6).
	Trace *prims.TraceCtx

	// Origins maps every proxy this interpreter has minted back to the
	// provenance it was promoted from, the table package prologue needs
	// to walk provenance chains for proxies it only ever sees bare (a
	// prims.BoundSymbol's Args carry proxy.Proxy, not provenance). A
	// proxy produced as a BoundSymbol's own output (an intra-trace SSA
	// value) is deliberately absent from this map.
	Origins map[proxy.Proxy]*provenance.Record

	// GlobalNames, when set by the caller (jit.Compile), maps a global
	// slot index to the identifier it was declared under; AllowedGlobals
	// is consulted against that name on every OpGetGlobal. Both are nil
	// by default, which disables the disallowed-global sharp edge
	// entirely — most callers compiling a single closure with no free
	// globals never need either.
	GlobalNames    []string
	AllowedGlobals map[string]bool

	// Translate, when set, lets execCall resolve a call whose callee is
	// a bare host function name (an *object.String, the same calling
	// convention the lookaside registry's ResolveByName uses) directly
	// to a prims.Library primitive, instead of requiring it to go
	// through a Closure or a registered lookaside entry. nil by default;
	// jit.Compile installs the config-loaded table when one is supplied.
	Translate *translate.Table
}

// New returns an Interpreter ready to run bytecode compiled against the
// given constant pool, with globals reused across a REPL-style session
// of back-to-back compiles (mirroring the teacher's vm.NewWithGlobalsStore
// pattern).
func New(constants []object.Object, globals []*wrapped.Value, lk *lookaside.Registry, pol *sharpedge.Policy) *Interpreter {
	if globals == nil {
		globals = make([]*wrapped.Value, globalSize)
	}
	return &Interpreter{
		constants: constants,
		globals:   globals,
		stack:     make([]*wrapped.Value, stackSize),
		frames:    make([]*Frame, maxFrames),
		Lookaside: lk,
		Policy:    pol,
		Namer:     proxy.NewNamer(),
		Cache:     wrapped.NewCache(),
		Trace:     prims.NewTraceCtx("computation"),
		Origins:   make(map[proxy.Proxy]*provenance.Record),
	}
}

func (i *Interpreter) currentFrame() *Frame { return i.frames[i.framesIndex-1] }

func (i *Interpreter) pushFrame(f *Frame) {
	i.frames[i.framesIndex] = f
	i.framesIndex++
}

func (i *Interpreter) popFrame() *Frame {
	i.framesIndex--
	return i.frames[i.framesIndex]
}

func (i *Interpreter) push(v *wrapped.Value) error {
	if i.sp >= stackSize {
		return fmt.Errorf("interp: stack overflow")
	}
	i.stack[i.sp] = v
	i.sp++
	return nil
}

func (i *Interpreter) pop() *wrapped.Value {
	v := i.stack[i.sp-1]
	i.sp--
	return v
}

// LastPoppedStackItem returns the last value popped off the stack,
// mirroring the teacher's vm.LastPoppedStackItem (used by the REPL and
// by tests to observe the result of a top-level expression statement).
func (i *Interpreter) LastPoppedStackItem() *wrapped.Value {
	return i.stack[i.sp]
}

// GlobalsSnapshot returns the interpreter's current global variable
// slots, mirroring the teacher's vm.NewWithGlobalsStore pattern: a
// REPL-style caller running one compile per input line carries this
// forward into the next Interpreter's globals so `let`-bound top-level
// values survive across lines.
func (i *Interpreter) GlobalsSnapshot() []*wrapped.Value {
	return i.globals
}

// Run starts a new root frame over cl with no arguments and drives the
// dispatch loop to completion (or to the first unrecoverable error).
func (i *Interpreter) Run(cl *object.Closure) error {
	return i.RunTraced(cl, nil)
}

// RunTraced starts a new root frame over cl with args already placed in
// its parameter slots, then drives the dispatch loop to completion. The
// caller (jit.Compile) is responsible for wrapping each argument with
// its INPUT_ARGS/INPUT_KWARGS provenance before calling this — the
// interpreter promotes them to proxies the first time any opcode
// touches them, exactly as it would any other value.
func (i *Interpreter) RunTraced(cl *object.Closure, args []*wrapped.Value) error {
	mainFrame := NewFrame(cl, 0)
	for idx, a := range args {
		i.stack[idx] = a
	}
	i.sp = len(args) + cl.Fn.NumLocals
	i.pushFrame(mainFrame)
	return i.loop()
}

//nolint:gocyclo
func (i *Interpreter) loop() error {
	for i.currentFrame().ip < len(i.currentFrame().Instructions())-1 {
		i.currentFrame().ip++

		ip := i.currentFrame().ip
		ins := i.currentFrame().Instructions()
		op := code.Opcode(ins[ip])

		switch op {
		case code.OpConstant:
			constIndex := code.ReadUint16(ins[ip+1:])
			i.currentFrame().ip += 2
			if _, err := i.pushConstant(int(constIndex)); err != nil {
				return err
			}

		case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv:
			if err := i.execBinaryOp(op); err != nil {
				if !i.unwind(err) {
					return err
				}
			}

		case code.OpEqual, code.OpNotEqual, code.OpGreaterThan:
			if err := i.execComparison(op); err != nil {
				if !i.unwind(err) {
					return err
				}
			}

		case code.OpBang:
			if err := i.execBang(); err != nil {
				return err
			}

		case code.OpMinus:
			if err := i.execMinus(); err != nil {
				if !i.unwind(err) {
					return err
				}
			}

		case code.OpPop:
			i.pop()

		case code.OpTrue:
			if _, err := i.pushConst(objTrue, true); err != nil {
				return err
			}

		case code.OpFalse:
			if _, err := i.pushConst(objFalse, false); err != nil {
				return err
			}

		case code.OpNull:
			if _, err := i.pushConst(objNull, nil); err != nil {
				return err
			}

		case code.OpJump:
			pos := int(code.ReadUint16(ins[ip+1:]))
			i.currentFrame().ip = pos - 1

		case code.OpJumpNotTruthy:
			pos := int(code.ReadUint16(ins[ip+1:]))
			i.currentFrame().ip += 2
			condition := i.pop()
			taken := truthy(condition.Concrete)
			if condition.Provenance.SafeForGuarding() {
				i.Trace.AddConstraint(&prims.Constraint{
					Prov:  condition.Provenance,
					Op:    "branch",
					Value: taken,
				})
			}
			if !taken {
				i.currentFrame().ip = pos - 1
			}

		case code.OpSetGlobal:
			globalIndex := code.ReadUint16(ins[ip+1:])
			i.currentFrame().ip += 2
			v := i.pop()
			if existing := i.globals[globalIndex]; existing != nil && existing.IsSymbolic() {
				if err := i.Policy.Check(sharpedge.ReassignTracedContainer,
					fmt.Sprintf("global slot %d already bound to a traced value", globalIndex)); err != nil {
					return err
				}
			}
			i.globals[globalIndex] = v

		case code.OpGetGlobal:
			globalIndex := code.ReadUint16(ins[ip+1:])
			i.currentFrame().ip += 2
			if i.AllowedGlobals != nil && int(globalIndex) < len(i.GlobalNames) {
				name := i.GlobalNames[globalIndex]
				if name != "" && !i.AllowedGlobals[name] {
					if err := i.Policy.Check(sharpedge.DisallowedGlobal,
						fmt.Sprintf("global %q is not on the compile context's allow-list", name)); err != nil {
						return err
					}
				}
			}
			global := i.globals[globalIndex]
			if cb, ok := i.Lookaside.Callback(lookaside.GlobalCallback); ok && global != nil {
				transformed, err := cb(global.Concrete)
				if err != nil {
					return fmt.Errorf("interp: global callback: %w", err)
				}
				global = wrapped.Wrap(transformed, provenance.OpaqueRecord("global_callback"))
			}
			if err := i.push(global); err != nil {
				return err
			}

		case code.OpSetLocal:
			localIndex := code.ReadUint8(ins[ip+1:])
			i.currentFrame().ip += 1
			frame := i.currentFrame()
			i.stack[frame.basePointer+int(localIndex)] = i.pop()

		case code.OpGetLocal:
			localIndex := code.ReadUint8(ins[ip+1:])
			i.currentFrame().ip += 1
			frame := i.currentFrame()
			if err := i.push(i.stack[frame.basePointer+int(localIndex)]); err != nil {
				return err
			}

		case code.OpGetBuiltin:
			builtinIndex := code.ReadUint8(ins[ip+1:])
			i.currentFrame().ip += 1
			def := object.Builtins[builtinIndex]
			if err := i.push(wrapped.Wrap(def.Builtin, provenance.OpaqueRecord("builtin:"+def.Name))); err != nil {
				return err
			}

		case code.OpArray:
			numElements := int(code.ReadUint16(ins[ip+1:]))
			i.currentFrame().ip += 2
			if err := i.execArray(numElements); err != nil {
				return err
			}

		case code.OpHash:
			numElements := int(code.ReadUint16(ins[ip+1:]))
			i.currentFrame().ip += 2
			if err := i.execHash(numElements); err != nil {
				return err
			}

		case code.OpIndex:
			index := i.pop()
			left := i.pop()
			if err := i.execIndex(left, index); err != nil {
				if !i.unwind(err) {
					return err
				}
			}

		case code.OpGetAttr:
			nameIdx := code.ReadUint16(ins[ip+1:])
			i.currentFrame().ip += 2
			name, ok := i.constants[nameIdx].(*object.String)
			if !ok {
				return fmt.Errorf("interp: OpGetAttr constant %d is not a string", nameIdx)
			}
			obj := i.pop()
			if err := i.execGetAttr(obj, name.Value); err != nil {
				if !i.unwind(err) {
					return err
				}
			}

		case code.OpCall:
			numArgs := int(code.ReadUint8(ins[ip+1:]))
			i.currentFrame().ip += 1
			if err := i.execCall(numArgs); err != nil {
				if !i.unwind(err) {
					return err
				}
			}

		case code.OpReturnValue:
			returnValue := i.pop()
			frame := i.popFrame()
			i.sp = frame.basePointer - 1
			if err := i.push(returnValue); err != nil {
				return err
			}

		case code.OpReturn:
			frame := i.popFrame()
			i.sp = frame.basePointer - 1
			if err := i.push(wrapped.Wrap(objNull, provenance.ConstRecord(nil))); err != nil {
				return err
			}

		case code.OpClosure:
			constIndex := code.ReadUint16(ins[ip+1:])
			numFree := code.ReadUint8(ins[ip+3:])
			i.currentFrame().ip += 3
			if err := i.pushClosure(int(constIndex), int(numFree)); err != nil {
				return err
			}

		case code.OpGetFree:
			freeIndex := code.ReadUint8(ins[ip+1:])
			i.currentFrame().ip += 1
			currentClosure := i.currentFrame().cl
			if err := i.push(currentClosure.Free[freeIndex].(*wrapped.Value)); err != nil {
				return err
			}

		case code.OpCurrentClosure:
			currentClosure := i.currentFrame().cl
			prov := provenance.OpaqueRecord("current_closure")
			if i.framesIndex == 1 {
				// The outermost frame's own closure is the function
				// under trace: INPUT_FN, not an opaque value.
				prov = provenance.RootFn()
			}
			if err := i.push(wrapped.Wrap(currentClosure, prov)); err != nil {
				return err
			}

		case code.OpSetupTry:
			pos := int(code.ReadUint16(ins[ip+1:]))
			i.currentFrame().ip += 2
			i.blocks = append(i.blocks, block{
				CatchPos:   pos,
				StackDepth: i.sp,
				FrameIndex: i.framesIndex,
			})

		case code.OpPopBlock:
			if len(i.blocks) > 0 {
				i.blocks = i.blocks[:len(i.blocks)-1]
			}

		case code.OpRaise:
			raised := i.pop()
			if !i.unwindValue(raised) {
				return fmt.Errorf("interp: uncaught raise: %s", raised.Concrete.Inspect())
			}

		default:
			return fmt.Errorf("interp: unknown opcode %d", op)
		}
	}
	return nil
}

// unwind converts a Go error from a failed operation into an interpreted
// raise of an *object.Error, the same unwind path OpRaise uses. It
// returns true if a handler caught it (execution should continue the
// loop), false if the error must propagate out of Run as a Go error.
func (i *Interpreter) unwind(err error) bool {
	raised := wrapped.Wrap(&object.Error{Message: err.Error()}, provenance.OpaqueRecord("runtime-error"))
	return i.unwindValue(raised)
}

// unwindValue pops the innermost active block (if any whose frame is
// still live), restores the interpreter's frame/stack/ip to that
// block's snapshot, and pushes raised so the catch block's bound
// parameter receives it.
func (i *Interpreter) unwindValue(raised *wrapped.Value) bool {
	for len(i.blocks) > 0 {
		b := i.blocks[len(i.blocks)-1]
		i.blocks = i.blocks[:len(i.blocks)-1]

		if b.FrameIndex != i.framesIndex {
			// Handler belongs to a frame we've already returned from or
			// haven't unwound to yet; only same-frame handlers are
			// supported, so keep discarding until the stack is empty.
			continue
		}

		i.sp = b.StackDepth
		i.currentFrame().ip = b.CatchPos - 1
		if err := i.push(raised); err != nil {
			return false
		}
		return true
	}
	return false
}

func (i *Interpreter) pushConstant(constIndex int) (*wrapped.Value, error) {
	obj := i.constants[constIndex]
	if cb, ok := i.Lookaside.Callback(lookaside.ConstCallback); ok {
		transformed, err := cb(obj)
		if err != nil {
			return nil, fmt.Errorf("interp: const callback: %w", err)
		}
		obj = transformed
	}
	v := i.Cache.GetOrWrap(obj, provenance.ConstRecord(obj))
	pv, err := i.promote(v)
	if err != nil {
		return nil, err
	}
	return pv, i.push(pv)
}

// pushConst wraps and pushes a fixed singleton (objTrue/objFalse/objNull)
// through the same cache+promote path as pushConstant, so repeated
// `true`/`false`/`null` literals share one proxy rather than minting a
// fresh one per occurrence.
func (i *Interpreter) pushConst(obj object.Object, value any) (*wrapped.Value, error) {
	v := i.Cache.GetOrWrap(obj, provenance.ConstRecord(value))
	pv, err := i.promote(v)
	if err != nil {
		return nil, err
	}
	return pv, i.push(pv)
}

// promote attaches a proxy to v in place if its concrete type is one
// the tracer mints proxies for (tensor/number/string; booleans fold
// into NumberProxy per the data model's NumberProxy note). Known
// containers and callables are left proxy-less on purpose: there is
// nothing to symbolically compute over an Array or a Closure itself.
// Wrapping anything else that did not come from a CONSTANT derivation
// trips the UnsupportedValueType sharp edge.
func (i *Interpreter) promote(v *wrapped.Value) (*wrapped.Value, error) {
	if v == nil || v.IsSymbolic() {
		return v, nil
	}

	switch c := v.Concrete.(type) {
	case *object.Tensor:
		tp := proxy.NewTensor(i.Namer, c.Shape, c.Strides, c.Dtype, c.Device, c.RequiresGrad)
		v.SetProxy(tp)
		i.Origins[tp] = v.Provenance

	case *object.Integer:
		np := proxy.NewNumber(i.Namer, true, float64(c.Value))
		if err := i.constrainNumber(v.Provenance, np, c.Value); err != nil {
			return nil, err
		}
		v.SetProxy(np)
		i.Origins[np] = v.Provenance

	case *object.Boolean:
		hint := 0.0
		if c.Value {
			hint = 1
		}
		np := proxy.NewNumber(i.Namer, true, hint)
		if err := i.constrainNumber(v.Provenance, np, c.Value); err != nil {
			return nil, err
		}
		v.SetProxy(np)
		i.Origins[np] = v.Provenance

	case *object.String:
		sp := proxy.NewString(i.Namer, c.Value)
		if err := i.constrainString(v.Provenance, sp, c.Value); err != nil {
			return nil, err
		}
		v.SetProxy(sp)
		i.Origins[sp] = v.Provenance

	case *object.Array, *object.Hash, *object.Record, *object.Null,
		*object.Builtin, *object.Closure, *object.CompiledFunction:
		// Known containers/callables: no proxy needed.

	default:
		if cb, ok := i.Lookaside.Callback(lookaside.WrapCallback); ok {
			transformed, err := cb(v.Concrete)
			if err != nil {
				return nil, fmt.Errorf("interp: wrap callback: %w", err)
			}
			v.Concrete = transformed
			return v, nil
		}
		if v.Provenance == nil || v.Provenance.Tag != provenance.Constant {
			if err := i.Policy.Check(sharpedge.UnsupportedValueType,
				fmt.Sprintf("wrapping unsupported value type %T", v.Concrete)); err != nil {
				return nil, err
			}
		}
	}

	return v, nil
}

func (i *Interpreter) constrainNumber(prov *provenance.Record, p *proxy.NumberProxy, value any) error {
	if prov.SafeForGuarding() {
		i.Trace.AddConstraint(&prims.Constraint{Prov: prov, Op: "number_type_and_value", Value: value})
		return nil
	}
	return i.Policy.Check(sharpedge.UnsafeProvenanceForGuard,
		fmt.Sprintf("number proxy %s has unguardable provenance %s", p.Name(), prov))
}

func (i *Interpreter) constrainString(prov *provenance.Record, p *proxy.StringProxy, value string) error {
	if prov.SafeForGuarding() {
		i.Trace.AddConstraint(&prims.Constraint{Prov: prov, Op: "string_value", Value: value})
		return nil
	}
	return i.Policy.Check(sharpedge.UnsafeProvenanceForGuard,
		fmt.Sprintf("string proxy %s has unguardable provenance %s", p.Name(), prov))
}

func (i *Interpreter) pushClosure(constIndex, numFree int) error {
	constant := i.constants[constIndex]
	fn, ok := constant.(*object.CompiledFunction)
	if !ok {
		return fmt.Errorf("interp: not a function: %+v", constant)
	}

	free := make([]any, numFree)
	for idx := 0; idx < numFree; idx++ {
		free[idx] = i.stack[i.sp-numFree+idx]
	}
	i.sp -= numFree

	closure := &object.Closure{Fn: fn, Free: free}
	return i.push(wrapped.Wrap(closure, provenance.OpaqueRecord("closure")))
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
