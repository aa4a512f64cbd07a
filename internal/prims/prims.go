// Package prims implements the symbolic trace builder: BoundSymbol,
// TraceCtx, Constraint, the GetAttr helper, and the small library of
// symbolic primitives (add, sub, mul, div, eq, gt) that the interpreter
// calls in place of concrete arithmetic whenever at least one operand to
// a binary op is symbolic.
//
// A BoundSymbol is an SSA-style invocation record: one output proxy,
// the primitive name, and the input proxies it was called with.
// TraceCtx accumulates BoundSymbols in emission order and enforces the
// data model's "no duplicate name bindings" invariant.
package prims

import (
	"fmt"

	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
)

// BoundSymbol is one recorded primitive invocation in a trace.
type BoundSymbol struct {
	Output *provenance.Record
	Name   string
	Args   []proxy.Proxy
	// OutputProxy is the proxy minted for this symbol's result, present
	// whenever the primitive's output itself needs to flow into further
	// symbolic operations (i.e. always, for this primitive set).
	OutputProxy proxy.Proxy
	// Const carries a literal payload for symbols that take one
	// alongside (or instead of) their proxy Args: the attribute name for
	// unpack_attr, the index for unpack_getitem, the expected value for
	// a check_* guard.
	Const any
}

// String renders a BoundSymbol the way the trace printer in package
// repl displays it: "<out> = <name>(<args>)".
func (b *BoundSymbol) String() string {
	args := make([]string, len(b.Args))
	for i, a := range b.Args {
		args[i] = a.Name()
	}
	out := "_"
	if b.OutputProxy != nil {
		out = b.OutputProxy.Name()
	}
	if b.Const != nil {
		return fmt.Sprintf("%s = %s(%v; const=%v)", out, b.Name, args, b.Const)
	}
	return fmt.Sprintf("%s = %s(%v)", out, b.Name, args)
}

// Constraint is a guard the prologue must check before the computation
// trace is valid to run: e.g. "args[0].shape[0] == 4". Constraints are
// derived from provenance the same way unpack code is, so only
// SafeForGuarding provenance can produce one.
type Constraint struct {
	Prov  *provenance.Record
	Op    string // "eq", "gt", ...
	Value any
}

// TraceCtx accumulates BoundSymbols and Constraints for a single trace
// (either the prologue or the computation trace — jit.CompileContext
// keeps one of each). Symbols are kept in emission order; Go's bound
// execution is strictly single-threaded so no locking is needed here,
// consistent with the concurrency model in spec.md §5.
type TraceCtx struct {
	Name        string
	symbols     []*BoundSymbol
	constraints []*Constraint
	boundNames  map[string]bool
	outputs     []proxy.Proxy
}

// NewTraceCtx returns an empty TraceCtx with the given display name
// ("prologue" or "computation").
func NewTraceCtx(name string) *TraceCtx {
	return &TraceCtx{Name: name, boundNames: make(map[string]bool)}
}

// Bind appends sym to the trace, after checking that its output name (if
// any) has not already been bound in this trace — the data model's
// "proxy names globally unique per compilation" invariant. Returns an
// error rather than panicking: a duplicate binding is a bug in the
// interpreter's dispatch loop, not a condition callers should recover
// from silently, but it also must not crash the process the tracer is
// embedded in.
func (t *TraceCtx) Bind(sym *BoundSymbol) error {
	if sym.OutputProxy != nil {
		name := sym.OutputProxy.Name()
		if t.boundNames[name] {
			return fmt.Errorf("prims: duplicate symbol binding for proxy %q in trace %q", name, t.Name)
		}
		t.boundNames[name] = true
	}
	t.symbols = append(t.symbols, sym)
	return nil
}

// Symbols returns the trace's BoundSymbols in emission order.
func (t *TraceCtx) Symbols() []*BoundSymbol { return t.symbols }

// Reorder replaces the trace's symbol list wholesale, used by the
// prologue synthesizer's hoisting passes (HoistUnpacks operates on a
// copy of Symbols() and the result is written back through this).
func (t *TraceCtx) Reorder(symbols []*BoundSymbol) { t.symbols = symbols }

// Outputs returns the trace's declared output proxies — its return
// tuple, in order.
func (t *TraceCtx) Outputs() []proxy.Proxy { return t.outputs }

// SetOutputs installs the trace's output proxies.
func (t *TraceCtx) SetOutputs(outs []proxy.Proxy) { t.outputs = outs }

// AddConstraint appends a guard to the trace.
func (t *TraceCtx) AddConstraint(c *Constraint) { t.constraints = append(t.constraints, c) }

// Constraints returns the trace's accumulated guards.
func (t *TraceCtx) Constraints() []*Constraint { return t.constraints }

// HoistUnpacks reorders s so that every BoundSymbol whose Name begins
// with "unpack_" moves to the front, preserving relative order within
// each group. This is the computation-trace hoist spec.md's prologue
// synthesis design calls for: unpack symbols belong at the top of the
// trace regardless of when the interpreter happened to emit them.
func HoistUnpacks(symbols []*BoundSymbol) []*BoundSymbol {
	hoisted := make([]*BoundSymbol, 0, len(symbols))
	rest := make([]*BoundSymbol, 0, len(symbols))
	for _, s := range symbols {
		if len(s.Name) >= 7 && s.Name[:7] == "unpack_" {
			hoisted = append(hoisted, s)
		} else {
			rest = append(rest, s)
		}
	}
	return append(hoisted, rest...)
}
