// Package lookaside implements the lookaside & callback registry (C4):
// the mechanism by which the interpreter decides whether to interpret a
// host-language call by stepping into its bytecode, or to short-circuit
// it with a native Go implementation.
//
// Resolution happens in three steps, tried in order:
//  1. Self-lookaside: primitive host values (object.Builtin) always
//     resolve to themselves — a builtin has no bytecode to step into.
//  2. Registry: an explicit table of named entries (getattr, hasattr,
//     bool, and every object.Builtins entry: len, first, rest, last,
//     push, puts, add, sub, mul, div, eq, gt) that the interpreter
//     consults by name before falling through.
//  3. Default: "interpret normally" — the call is not looked aside at
//     all and the interpreter steps into the callee's own bytecode.
//
// This mirrors the teacher's builtin dispatch (object.GetBuiltinByName,
// adapted from evaluator/builtins.go) generalized into a registry the
// tracer's interpreter consults the same way the original jit_ext.py
// consults its default_lookaside table.
package lookaside

import (
	"fmt"

	"github.com/dr8co/tracejit/object"
)

// Fn is a lookaside implementation: given the arguments a host-language
// call site would pass, it returns the result object directly, without
// the interpreter stepping into any bytecode.
type Fn func(args ...object.Object) (object.Object, error)

// CallbackKind names the three callback injection points the
// interpreter consults while dispatching, mirroring the provenance-
// bearing events a tracing interpreter must intercept.
type CallbackKind string

const (
	// ConstCallback fires when the interpreter is about to push a
	// CONSTANT-provenance value (an OpConstant operand) onto the stack.
	ConstCallback CallbackKind = "CONST_CALLBACK"

	// GlobalCallback fires when the interpreter resolves an OpGetGlobal,
	// giving the caller a chance to replace the global's value. The
	// interpreter wraps the returned value with OPAQUE provenance (reason
	// "global_callback").
	GlobalCallback CallbackKind = "GLOBAL_CALLBACK"

	// WrapCallback fires when the interpreter promotes a value whose type
	// is none of tensor, integer, boolean, string, or a known container or
	// callable; the callback's result replaces the value's concrete object
	// (no proxy is minted for it) and the unsupported-value-type sharp
	// edge is not checked.
	WrapCallback CallbackKind = "WRAP_CALLBACK"
)

// Callback is a named interpreter hook. Unlike Registry entries,
// callbacks do not resolve a call; they observe and optionally transform
// a value at one of the three injection points above.
type Callback func(v object.Object) (object.Object, error)

// Registry holds the explicit lookaside table (step 2) and the named
// callback hooks. It holds no per-compilation state, so a *Registry can
// be shared across compilations; RegisterCallback mutates it, and
// jit.CompileContext never calls that on one it is handed.
type Registry struct {
	entries   map[string]Fn
	callbacks map[CallbackKind]Callback
}

// New returns a Registry seeded with the default entries: getattr,
// hasattr, bool, and the host language's builtin functions (len, first,
// last, rest, push, puts, add, sub, mul, div, eq, gt), adapted from
// object.Builtins.
func New() *Registry {
	r := &Registry{
		entries:   make(map[string]Fn),
		callbacks: make(map[CallbackKind]Callback),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.entries["bool"] = func(args ...object.Object) (object.Object, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("lookaside: bool: want 1 arg, got %d", len(args))
		}
		return &object.Boolean{Value: truthy(args[0])}, nil
	}

	r.entries["hasattr"] = func(args ...object.Object) (object.Object, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("lookaside: hasattr: want 2 args, got %d", len(args))
		}
		name, ok := args[1].(*object.String)
		if !ok {
			return nil, fmt.Errorf("lookaside: hasattr: second argument must be a string")
		}
		rec, ok := args[0].(*object.Record)
		if !ok {
			return &object.Boolean{Value: false}, nil
		}
		_, found := rec.GetAttr(name.Value)
		return &object.Boolean{Value: found}, nil
	}

	r.entries["getattr"] = func(args ...object.Object) (object.Object, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("lookaside: getattr: want 2 args, got %d", len(args))
		}
		name, ok := args[1].(*object.String)
		if !ok {
			return nil, fmt.Errorf("lookaside: getattr: second argument must be a string")
		}
		rec, ok := args[0].(*object.Record)
		if !ok {
			return nil, fmt.Errorf("lookaside: getattr: unsupported receiver %s", args[0].Type())
		}
		v, found := rec.GetAttr(name.Value)
		if !found {
			return nil, fmt.Errorf("lookaside: getattr: no attribute %q", name.Value)
		}
		return v, nil
	}

	for _, b := range object.Builtins {
		name := b.Name
		builtin := b.Builtin
		r.entries[name] = func(args ...object.Object) (object.Object, error) {
			result := builtin.Fn(args...)
			if errObj, ok := result.(*object.Error); ok {
				return nil, fmt.Errorf("lookaside: %s: %s", name, errObj.Message)
			}
			return result, nil
		}
	}
}

// Resolve implements the three-step lookup. handled is false only when
// resolution fell through to the default "interpret normally" step; a
// non-nil err with handled true means the lookaside entry itself failed
// (e.g. wrong argument count), which the interpreter should surface as
// an interpreted exception, not silently swallow.
func (r *Registry) Resolve(callee object.Object, args ...object.Object) (result object.Object, handled bool, err error) {
	// Step 1: self-lookaside. A native builtin already *is* its own
	// lookaside target; stepping into its bytecode is not possible
	// because it has none.
	if b, ok := callee.(*object.Builtin); ok {
		res := b.Fn(args...)
		if errObj, ok := res.(*object.Error); ok {
			return nil, true, fmt.Errorf("lookaside: %s", errObj.Message)
		}
		return res, true, nil
	}

	// Step 2: explicit registry, keyed by name for named builtins
	// resolved via a host Identifier rather than passed as a first-class
	// value (e.g. "getattr(x, name)" called directly).
	if name, ok := calleeName(callee); ok {
		if fn, found := r.entries[name]; found {
			res, err := fn(args...)
			return res, true, err
		}
	}

	// Step 3: default — tell the interpreter to step into the callee's
	// own bytecode.
	return nil, false, nil
}

// ResolveByName looks up an entry directly by name, used by the
// interpreter for calls where the callee was already known to be a
// lookaside name rather than a resolved object.Object (the common case
// for getattr/hasattr/bool, which are not bound to any host-language
// identifier by default).
func (r *Registry) ResolveByName(name string, args ...object.Object) (result object.Object, handled bool, err error) {
	fn, ok := r.entries[name]
	if !ok {
		return nil, false, nil
	}
	res, err := fn(args...)
	return res, true, err
}

// RegisterCallback installs or replaces the callback for kind.
func (r *Registry) RegisterCallback(kind CallbackKind, cb Callback) {
	r.callbacks[kind] = cb
}

// Callback returns the installed callback for kind, if any.
func (r *Registry) Callback(kind CallbackKind) (Callback, bool) {
	cb, ok := r.callbacks[kind]
	return cb, ok
}

// calleeName extracts a registry lookup key from callee when possible.
// Builtins resolved through the symbol table already carry their name
// via object.Builtin, but that identity is not preserved on the
// object.Object interface, so calls arriving pre-resolved as actual
// *object.Builtin values are handled entirely by the self-lookaside
// step; calleeName only ever matches string-keyed lookups the
// interpreter performs explicitly by name.
func calleeName(callee object.Object) (string, bool) {
	s, ok := callee.(*object.String)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func truthy(obj object.Object) bool {
	switch v := obj.(type) {
	case *object.Boolean:
		return v.Value
	case *object.Null:
		return false
	case *object.Integer:
		return v.Value != 0
	default:
		return obj != nil
	}
}
