package interp

import (
	"fmt"

	"github.com/dr8co/tracejit/code"
	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/dr8co/tracejit/internal/sharpedge"
	"github.com/dr8co/tracejit/internal/wrapped"
	"github.com/dr8co/tracejit/object"
)

var arithNames = map[code.Opcode]string{
	code.OpAdd: "add",
	code.OpSub: "sub",
	code.OpMul: "mul",
	code.OpDiv: "div",
}

// execBinaryOp handles OpAdd/OpSub/OpMul/OpDiv. If either operand is
// symbolic, the op is recorded into the computation trace via the
// matching package prims primitive instead of folded; otherwise it is
// evaluated directly, the same way the teacher's vm does.
func (i *Interpreter) execBinaryOp(op code.Opcode) error {
	right := i.pop()
	left := i.pop()

	if left.IsSymbolic() || right.IsSymbolic() {
		return i.execSymbolicBinary(arithNames[op], left, right)
	}

	result, err := evalConcreteBinary(op, left.Concrete, right.Concrete)
	if err != nil {
		return err
	}
	prov := provenance.PrimCallRecord(arithNames[op], left.Provenance, right.Provenance)
	out, err := i.promote(wrapped.Wrap(result, prov))
	if err != nil {
		return err
	}
	return i.push(out)
}

func evalConcreteBinary(op code.Opcode, leftObj, rightObj object.Object) (object.Object, error) {
	l, lok := leftObj.(*object.Integer)
	r, rok := rightObj.(*object.Integer)
	if lok && rok {
		switch op {
		case code.OpAdd:
			return &object.Integer{Value: l.Value + r.Value}, nil
		case code.OpSub:
			return &object.Integer{Value: l.Value - r.Value}, nil
		case code.OpMul:
			return &object.Integer{Value: l.Value * r.Value}, nil
		case code.OpDiv:
			if r.Value == 0 {
				return nil, fmt.Errorf("interp: division by zero")
			}
			return &object.Integer{Value: l.Value / r.Value}, nil
		}
	}

	ls, lsok := leftObj.(*object.String)
	rs, rsok := rightObj.(*object.String)
	if lsok && rsok && op == code.OpAdd {
		return &object.String{Value: ls.Value + rs.Value}, nil
	}

	return nil, fmt.Errorf("interp: unsupported types for binary operation: %s %s", leftObj.Type(), rightObj.Type())
}

// execSymbolicBinary promotes both operands (if one is still concrete)
// and records the primitive call into the computation trace.
func (i *Interpreter) execSymbolicBinary(name string, left, right *wrapped.Value) error {
	lp, rp, err := i.ensureProxyPair(left, right)
	if err != nil {
		return err
	}

	prim, ok := prims.Library[name]
	if !ok {
		return fmt.Errorf("interp: no symbolic primitive registered for %q", name)
	}
	sym, err := prim(i.Namer, lp, rp)
	if err != nil {
		return err
	}
	if err := i.Trace.Bind(sym); err != nil {
		return err
	}

	prov := provenance.PrimCallRecord(name, left.Provenance, right.Provenance)
	out := wrapped.Wrap(primOutputConcrete(sym.OutputProxy), prov)
	out.SetProxy(sym.OutputProxy)
	return i.push(out)
}

// ensureProxyPair returns the proxies for left and right, promoting
// whichever side is still concrete. Used wherever a symbolic op needs
// both operands to carry a proxy.Proxy, even though only one of them
// triggered the symbolic path.
func (i *Interpreter) ensureProxyPair(left, right *wrapped.Value) (proxy.Proxy, proxy.Proxy, error) {
	lv, err := i.promote(left)
	if err != nil {
		return nil, nil, err
	}
	rv, err := i.promote(right)
	if err != nil {
		return nil, nil, err
	}
	if lv.Proxy == nil || rv.Proxy == nil {
		return nil, nil, fmt.Errorf("interp: cannot trace a binary op over a non-proxyable operand")
	}
	return lv.Proxy, rv.Proxy, nil
}

// primOutputConcrete fabricates a placeholder concrete value matching
// the output proxy's kind, so the pushed WrappedValue still satisfies
// the "every value has a concrete counterpart" invariant even though
// its real value will only be known once the trace actually runs.
func primOutputConcrete(p proxy.Proxy) object.Object {
	switch out := p.(type) {
	case *proxy.TensorProxy:
		return &object.Tensor{Shape: out.Shape, Strides: out.Strides, Dtype: out.Dtype, Device: out.Device, RequiresGrad: out.RequiresGrad}
	case *proxy.NumberProxy:
		if out.IsInt {
			return &object.Integer{Value: int64(out.ConcreteHint)}
		}
		return &object.Integer{Value: int64(out.ConcreteHint)}
	case *proxy.StringProxy:
		return &object.String{Value: out.ConcreteHint}
	default:
		return &object.Null{}
	}
}

// execComparison handles OpEqual/OpNotEqual/OpGreaterThan.
func (i *Interpreter) execComparison(op code.Opcode) error {
	right := i.pop()
	left := i.pop()

	symbolic := left.IsSymbolic() || right.IsSymbolic()

	switch op {
	case code.OpEqual, code.OpGreaterThan:
		if symbolic {
			name := "eq"
			if op == code.OpGreaterThan {
				name = "gt"
			}
			return i.execSymbolicBinary(name, left, right)
		}
		return i.pushConcreteComparison(op, left, right)

	case code.OpNotEqual:
		if symbolic {
			if err := i.Policy.Check(sharpedge.UnsafeOpaqueCall,
				"!= has no symbolic primitive; only eq/gt are traceable comparisons"); err != nil {
				return err
			}
			if left.IsSymbolic() || right.IsSymbolic() {
				return i.Policy.Check(sharpedge.UnsafeOpaqueCall,
					"falling back to a concrete != on a symbolic operand loses provenance")
			}
		}
		return i.pushConcreteComparison(op, left, right)
	}

	return fmt.Errorf("interp: unknown comparison opcode %d", op)
}

func (i *Interpreter) pushConcreteComparison(op code.Opcode, left, right *wrapped.Value) error {
	var result bool
	switch {
	case left.Concrete.Type() == object.INTEGER_OBJ && right.Concrete.Type() == object.INTEGER_OBJ:
		l := left.Concrete.(*object.Integer).Value
		r := right.Concrete.(*object.Integer).Value
		switch op {
		case code.OpEqual:
			result = l == r
		case code.OpNotEqual:
			result = l != r
		case code.OpGreaterThan:
			result = l > r
		}
	default:
		switch op {
		case code.OpEqual:
			result = left.Concrete == right.Concrete || booleansEqual(left.Concrete, right.Concrete)
		case code.OpNotEqual:
			result = !(left.Concrete == right.Concrete || booleansEqual(left.Concrete, right.Concrete))
		default:
			return fmt.Errorf("interp: unsupported operand types for comparison: %s %s", left.Concrete.Type(), right.Concrete.Type())
		}
	}
	obj := objFalse
	if result {
		obj = objTrue
	}
	prov := provenance.PrimCallRecord(string(op), left.Provenance, right.Provenance)
	out, err := i.promote(wrapped.Wrap(obj, prov))
	if err != nil {
		return err
	}
	return i.push(out)
}

func booleansEqual(a, b object.Object) bool {
	ab, aok := a.(*object.Boolean)
	bb, bok := b.(*object.Boolean)
	return aok && bok && ab.Value == bb.Value
}

// execBang handles OpBang (`!value`). Booleans never carry a proxy of
// their own trace-relevant kind by the time they reach here in practice
// (NumberProxy promotion happens eagerly for Integer/Boolean operands,
// but `!` is a host-language unary only ever applied to truthiness, so
// it always folds concretely).
func (i *Interpreter) execBang() error {
	v := i.pop()
	result := objFalse
	if !truthy(v.Concrete) {
		result = objTrue
	}
	prov := provenance.PrimCallRecord("not", v.Provenance)
	out, err := i.promote(wrapped.Wrap(result, prov))
	if err != nil {
		return err
	}
	return i.push(out)
}

// execMinus handles OpMinus (`-value`). A symbolic operand mints a
// fresh proxy of the same kind bound to a "neg" primitive, constructed
// directly here rather than through prims.Library (Library only holds
// the fixed binary set; unary negation has a different arity).
func (i *Interpreter) execMinus() error {
	v := i.pop()

	if v.IsSymbolic() {
		var out proxy.Proxy
		switch p := v.Proxy.(type) {
		case *proxy.NumberProxy:
			out = proxy.NewNumber(i.Namer, p.IsInt, -p.ConcreteHint)
		case *proxy.TensorProxy:
			out = proxy.NewTensor(i.Namer, p.Shape, p.Strides, p.Dtype, p.Device, p.RequiresGrad)
		default:
			return fmt.Errorf("interp: cannot negate proxy kind %s", v.Proxy.Kind())
		}
		sym := &prims.BoundSymbol{Name: "neg", Args: []proxy.Proxy{v.Proxy}, OutputProxy: out}
		if err := i.Trace.Bind(sym); err != nil {
			return err
		}
		proxy.RecordUse(v.Proxy, sym.String())

		prov := provenance.PrimCallRecord("neg", v.Provenance)
		wv := wrapped.Wrap(primOutputConcrete(out), prov)
		wv.SetProxy(out)
		return i.push(wv)
	}

	n, ok := v.Concrete.(*object.Integer)
	if !ok {
		return fmt.Errorf("interp: unsupported type for negation: %s", v.Concrete.Type())
	}
	prov := provenance.PrimCallRecord("neg", v.Provenance)
	out, err := i.promote(wrapped.Wrap(&object.Integer{Value: -n.Value}, prov))
	if err != nil {
		return err
	}
	return i.push(out)
}

// execArray builds an *object.Array from the top numElements stack
// slots. Arrays are a known container type (see promote); they never
// carry a proxy themselves, only their elements might.
func (i *Interpreter) execArray(numElements int) error {
	elements := make([]object.Object, numElements)
	wrappedElems := make([]*wrapped.Value, numElements)
	for idx := 0; idx < numElements; idx++ {
		wrappedElems[idx] = i.stack[i.sp-numElements+idx]
		elements[idx] = wrappedElems[idx].Concrete
	}
	i.sp -= numElements

	arr := &object.Array{Elements: elements}
	prov := provenance.OpaqueRecord("array_literal")
	return i.push(wrapped.Wrap(arr, prov))
}

// execHash builds an *object.Hash from the top numElements stack
// slots (numElements/2 key, value pairs).
func (i *Interpreter) execHash(numElements int) error {
	pairs := make(map[object.HashKey]object.HashPair)
	for idx := 0; idx < numElements; idx += 2 {
		key := i.stack[i.sp-numElements+idx]
		value := i.stack[i.sp-numElements+idx+1]

		hashable, ok := key.Concrete.(object.Hashable)
		if !ok {
			return fmt.Errorf("interp: unusable as hash key: %s", key.Concrete.Type())
		}
		pairs[hashable.HashKey()] = object.HashPair{Key: key.Concrete, Value: value.Concrete}
	}
	i.sp -= numElements

	h := &object.Hash{Pairs: pairs}
	return i.push(wrapped.Wrap(h, provenance.OpaqueRecord("hash_literal")))
}

// execIndex handles OpIndex (`left[index]`). When left carries
// provenance and index is a constant integer, the result gets a
// BINARY_SUBSCR provenance record so it can participate in unpack
// synthesis and guarding later; otherwise it is OPAQUE.
func (i *Interpreter) execIndex(left, index *wrapped.Value) error {
	switch container := left.Concrete.(type) {
	case *object.Array:
		idxInt, ok := index.Concrete.(*object.Integer)
		if !ok {
			return fmt.Errorf("interp: array index must be an integer, got %s", index.Concrete.Type())
		}
		idx := int(idxInt.Value)
		var elem object.Object = objNull
		if idx >= 0 && idx < len(container.Elements) {
			elem = container.Elements[idx]
		}
		prov := provenance.Subscr(left.Provenance, idx)
		out, err := i.promote(wrapped.Wrap(elem, prov))
		if err != nil {
			return err
		}
		return i.push(out)

	case *object.Hash:
		hashable, ok := index.Concrete.(object.Hashable)
		if !ok {
			return fmt.Errorf("interp: unusable as hash key: %s", index.Concrete.Type())
		}
		pair, found := container.Pairs[hashable.HashKey()]
		var elem object.Object = objNull
		if found {
			elem = pair.Value
		}
		out, err := i.promote(wrapped.Wrap(elem, provenance.OpaqueRecord("hash_subscript")))
		if err != nil {
			return err
		}
		return i.push(out)

	default:
		return fmt.Errorf("interp: index operator not supported: %s", left.Concrete.Type())
	}
}

// execGetAttr handles OpGetAttr (`obj.name`). Records become LOAD_ATTR
// provenance directly; an undeclared field raises an interpreted
// AttributeError rather than a fatal Go error, so catch blocks can
// observe it. A Tensor's metadata fields (shape/dtype/device/
// requires_grad) are likewise concrete at trace time — they describe
// the proxy, not the data — so `.shape` reads out a plain Array of
// Integers carrying the same LOAD_ATTR provenance a Record field would,
// letting `x.shape[0] > 0` (spec.md §8 scenario 6) flow through OpIndex
// and a comparison exactly like any other attribute/subscript chain.
func (i *Interpreter) execGetAttr(obj *wrapped.Value, name string) error {
	var val object.Object
	switch base := obj.Concrete.(type) {
	case *object.Record:
		v, found := base.GetAttr(name)
		if !found {
			return fmt.Errorf("interp: %s object has no attribute %q", obj.Concrete.Type(), name)
		}
		val = v

	case *object.Tensor:
		v, found := tensorAttr(base, name)
		if !found {
			return fmt.Errorf("interp: tensor object has no attribute %q", name)
		}
		val = v

	default:
		return fmt.Errorf("interp: %s has no attributes", obj.Concrete.Type())
	}

	prov := provenance.Attr(obj.Provenance, name)
	out, err := i.promote(wrapped.Wrap(val, prov))
	if err != nil {
		return err
	}
	return i.push(out)
}

// tensorAttr resolves one of a Tensor's fixed metadata fields to a
// plain host value. These are never symbolic themselves — a tracing
// JIT specializes on shape/dtype/device/requires_grad rather than
// treating them as data — so they come back as concrete
// Array/String/Boolean values whose provenance is still the LOAD_ATTR
// chain the caller attaches.
func tensorAttr(t *object.Tensor, name string) (object.Object, bool) {
	switch name {
	case "shape":
		elems := make([]object.Object, len(t.Shape))
		for idx, d := range t.Shape {
			elems[idx] = &object.Integer{Value: d}
		}
		return &object.Array{Elements: elems}, true
	case "dtype":
		return &object.String{Value: t.Dtype}, true
	case "device":
		return &object.String{Value: t.Device}, true
	case "requires_grad":
		return &object.Boolean{Value: t.RequiresGrad}, true
	default:
		return nil, false
	}
}

// execCall handles OpCall. Resolution order: lookaside registry first
// (covers every object.Builtin via its self-lookaside step), then a
// closure steps into its own bytecode, then anything else is an
// unsupported (opaque, uncallable) construct.
func (i *Interpreter) execCall(numArgs int) error {
	args := make([]*wrapped.Value, numArgs)
	for idx := numArgs - 1; idx >= 0; idx-- {
		args[idx] = i.pop()
	}
	calleeW := i.pop()

	concreteArgs := make([]object.Object, numArgs)
	for idx, a := range args {
		concreteArgs[idx] = a.Concrete
	}

	if i.Translate != nil && numArgs == 2 {
		if name, ok := calleeW.Concrete.(*object.String); ok {
			if primName, found := i.Translate.Lookup(name.Value); found {
				if _, ok := prims.Library[primName]; ok {
					return i.execSymbolicBinary(primName, args[0], args[1])
				}
			}
		}
	}

	if result, handled, err := i.Lookaside.Resolve(calleeW.Concrete, concreteArgs...); handled {
		if err != nil {
			return err
		}
		prov := lookasideProvenance(calleeW, args)
		out, perr := i.promote(wrapped.Wrap(result, prov))
		if perr != nil {
			return perr
		}
		return i.push(out)
	}

	switch callee := calleeW.Concrete.(type) {
	case *object.Closure:
		if numArgs != callee.Fn.NumParameters {
			return fmt.Errorf("interp: wrong number of arguments: want=%d, got=%d", callee.Fn.NumParameters, numArgs)
		}
		frame := NewFrame(callee, i.sp-numArgs)
		for idx, a := range args {
			i.stack[frame.basePointer+idx] = a
		}
		i.sp = frame.basePointer + callee.Fn.NumLocals
		if i.framesIndex >= maxFrames-1 {
			return i.Policy.Check(sharpedge.UnboundedRecursionDepth,
				fmt.Sprintf("call depth exceeded %d frames", maxFrames))
		}
		i.pushFrame(frame)
		return nil

	default:
		if err := i.Policy.Check(sharpedge.UnsafeOpaqueCall,
			fmt.Sprintf("call target %s has no bytecode body and no lookaside entry", calleeW.Concrete.Type())); err != nil {
			return err
		}
		return i.push(wrapped.Wrap(objNull, provenance.OpaqueRecord("unresolved_call")))
	}
}

// lookasideProvenance picks the provenance record for a value produced
// by a lookaside-resolved call. Two builtins behave exactly like the
// host bytecode's own BINARY_SUBSCR/LOAD_ATTR opcodes applied to their
// first argument — `first`/`last` index into an array, `getattr` reads
// a named field — so those get the rewrite-eligible OPAQUE variants the
// prologue synthesizer knows how to turn back into BINARY_SUBSCR/
// LOAD_ATTR (spec §4.8's getitem_like/descriptor_get rewrite cases,
// scenario 5). Everything else is a plain opaque call.
func lookasideProvenance(calleeW *wrapped.Value, args []*wrapped.Value) *provenance.Record {
	b, ok := calleeW.Concrete.(*object.Builtin)
	if !ok || len(args) == 0 {
		return provenance.OpaqueRecord("lookaside_call")
	}

	switch b.Name {
	case "first":
		return provenance.OpaqueGetitemLike(args[0].Provenance, 0)

	case "last":
		if arr, ok := args[0].Concrete.(*object.Array); ok && len(arr.Elements) > 0 {
			return provenance.OpaqueGetitemLike(args[0].Provenance, len(arr.Elements)-1)
		}
		return provenance.OpaqueRecord("lookaside_call:last")

	case "getattr":
		if len(args) == 2 {
			if name, ok := args[1].Concrete.(*object.String); ok {
				return provenance.OpaqueDescriptorGet(args[0].Provenance, name.Value)
			}
		}
		return provenance.OpaqueRecord("lookaside_call:getattr")

	default:
		return provenance.OpaqueRecord("lookaside_call:" + b.Name)
	}
}
