// Package provenance implements the provenance DAG described in the
// tracer's data model: a record of how a traced value was derived from
// the compilation's inputs, used both to synthesize prologue unpack code
// and to decide whether a value is safe to guard on.
//
// A ProvenanceRecord never has its Tag or Inputs mutated after
// construction; two records are structurally equal when the teacher's
// style would call them "the same instruction result" — same tag, same
// inputs (compared recursively), same scalar payload.
package provenance

import "fmt"

// Tag identifies how a value was derived.
type Tag string

// The provenance tags named in the data model, plus one host-opcode tag
// per symbolic primitive operation (PRIM_CALL), used for values produced
// by arithmetic/comparison primitives rather than unpacked directly from
// an input.
const (
	InputArgs   Tag = "INPUT_ARGS"
	InputKwargs Tag = "INPUT_KWARGS"
	InputFn     Tag = "INPUT_FN"
	LoadAttr    Tag = "LOAD_ATTR"
	Subscript   Tag = "BINARY_SUBSCR"
	Constant    Tag = "CONSTANT"
	Opaque      Tag = "OPAQUE"
	PrimCall    Tag = "PRIM_CALL"
)

// Record is a node in the provenance DAG. Inputs holds the records this
// one was derived from, in argument order; Name carries the attribute
// name for LoadAttr, the keyword name for InputKwargs, and the primitive
// or reason for PrimCall and Opaque; Index carries the index for
// Subscript and the position for InputArgs; Const carries the literal
// value for Constant records.
type Record struct {
	Tag    Tag
	Inputs []*Record
	Name   string
	Index  int
	Const  any
}

// Root returns a fresh INPUT_ARGS provenance record for the nth
// positional argument of the function under trace.
func Root(index int) *Record {
	return &Record{Tag: InputArgs, Index: index}
}

// RootKwarg returns a fresh INPUT_KWARGS provenance record for the named
// keyword argument.
func RootKwarg(name string) *Record {
	return &Record{Tag: InputKwargs, Name: name}
}

// RootFn returns the provenance record for the traced function object
// itself, the root that LOAD_ATTR chains of the form fn.some.module use.
func RootFn() *Record {
	return &Record{Tag: InputFn}
}

// Attr derives a LOAD_ATTR record: reading `name` off the value that
// `base` describes.
func Attr(base *Record, name string) *Record {
	return &Record{Tag: LoadAttr, Inputs: []*Record{base}, Name: name}
}

// Subscr derives a BINARY_SUBSCR record: reading index `idx` off the
// value that `base` describes.
func Subscr(base *Record, idx int) *Record {
	return &Record{Tag: Subscript, Inputs: []*Record{base}, Index: idx}
}

// ConstRecord returns a CONSTANT provenance record carrying a literal
// value that did not originate from any traced input.
func ConstRecord(v any) *Record {
	return &Record{Tag: Constant, Const: v}
}

// OpaqueRecord marks a value whose origin could not be tracked precisely
// enough to unpack or guard on — e.g., the result of a builtin call the
// lookaside registry did not recognize.
func OpaqueRecord(reason string) *Record {
	return &Record{Tag: Opaque, Name: reason}
}

// OpaqueGetitemLike marks an OPAQUE value that the prologue synthesizer
// should rewrite to a BINARY_SUBSCR record (spec §4.8's "OPAQUE(getitem_like)"
// rewrite case), produced when a call resolved through the lookaside
// registry is known to behave like `base[idx]` without having gone
// through the host bytecode's own OpIndex (e.g. the `first`/`last`
// builtins).
func OpaqueGetitemLike(base *Record, idx int) *Record {
	return &Record{Tag: Opaque, Name: "getitem_like", Inputs: []*Record{base}, Index: idx}
}

// OpaqueDescriptorGet marks an OPAQUE value that the prologue synthesizer
// should rewrite to a LOAD_ATTR record (spec §4.8's "OPAQUE(descriptor_get)"
// rewrite case), produced when a lookaside-resolved call is known to
// behave like `base.name` (e.g. the `getattr` builtin).
func OpaqueDescriptorGet(base *Record, name string) *Record {
	return &Record{Tag: Opaque, Name: "descriptor_get", Inputs: []*Record{base}, Const: name}
}

// PrimCallRecord derives a PRIM_CALL record: the output of a symbolic
// primitive (e.g. add, mul) applied to the given operand provenances.
func PrimCallRecord(name string, operands ...*Record) *Record {
	return &Record{Tag: PrimCall, Name: name, Inputs: operands}
}

// Equal reports whether r and other describe the same derivation:
// identical tag, name/index/const payload, and recursively-equal
// inputs. Two distinct *Record pointers built from the same derivation
// path compare Equal, which is what lets the interpreter deduplicate
// repeated unpacks of the same input (the data model's "identity-stable
// across repeated stack pushes" invariant).
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Tag != other.Tag || r.Name != other.Name || r.Index != other.Index {
		return false
	}
	if r.Const != other.Const {
		return false
	}
	if len(r.Inputs) != len(other.Inputs) {
		return false
	}
	for i := range r.Inputs {
		if !r.Inputs[i].Equal(other.Inputs[i]) {
			return false
		}
	}
	return true
}

// SafeForGuarding reports whether r describes a derivation precise
// enough to emit a runtime guard for. OPAQUE provenance (and anything
// derived from it) is never safe to guard on: the unpack code that would
// reproduce the value at guard-check time does not exist.
func (r *Record) SafeForGuarding() bool {
	if r == nil {
		return false
	}
	if r.Tag == Opaque {
		return false
	}
	for _, in := range r.Inputs {
		if !in.SafeForGuarding() {
			return false
		}
	}
	return true
}

// Acyclic reports whether the DAG rooted at r contains no cycles. Since
// Record is built bottom-up from already-constructed *Record values and
// its Inputs field is never mutated after construction, a cycle can only
// arise from a bug in a constructor function; this is a defensive check
// used by package interp's invariant assertions, not a hot-path
// operation.
func (r *Record) Acyclic() bool {
	visited := make(map[*Record]bool)
	var visit func(n *Record, stack map[*Record]bool) bool
	visit = func(n *Record, stack map[*Record]bool) bool {
		if n == nil {
			return true
		}
		if stack[n] {
			return false
		}
		if visited[n] {
			return true
		}
		stack[n] = true
		for _, in := range n.Inputs {
			if !visit(in, stack) {
				return false
			}
		}
		delete(stack, n)
		visited[n] = true
		return true
	}
	return visit(r, make(map[*Record]bool))
}

// String renders a compact, human-readable derivation path, used in
// diagnostics and guard-failure messages.
func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	switch r.Tag {
	case InputArgs:
		return fmt.Sprintf("args[%d]", r.Index)
	case InputKwargs:
		return fmt.Sprintf("kwargs[%q]", r.Name)
	case InputFn:
		return "fn"
	case LoadAttr:
		return fmt.Sprintf("%s.%s", r.Inputs[0], r.Name)
	case Subscript:
		return fmt.Sprintf("%s[%d]", r.Inputs[0], r.Index)
	case Constant:
		return fmt.Sprintf("const(%v)", r.Const)
	case Opaque:
		return fmt.Sprintf("opaque(%s)", r.Name)
	case PrimCall:
		return fmt.Sprintf("%s(...)", r.Name)
	default:
		return string(r.Tag)
	}
}
