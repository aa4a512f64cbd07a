// Package proxy implements the symbolic stand-ins the tracer substitutes
// for concrete inputs: TensorProxy, NumberProxy, and StringProxy. Every
// proxy is immutable after construction except for its history, the
// append-only list of BoundSymbol names it has flowed through — used by
// the trace builder to report "this proxy came from these ops" without
// re-walking the whole trace.
package proxy

import (
	"fmt"
	"sync/atomic"
)

// Kind identifies which concrete proxy variant a Proxy value holds.
type Kind string

const (
	KindTensor Kind = "tensor"
	KindNumber Kind = "number"
	KindString Kind = "string"
	// KindHandle identifies a Handle: an implementation-only proxy
	// variant used exclusively inside package prologue to name the
	// intermediate result of an unpack primitive when the value being
	// unpacked is not itself a tensor/number/string (e.g. the record
	// `m` in `m.weight`). It never appears in a computation trace's
	// operand positions.
	KindHandle Kind = "handle"
)

// namer mints proxy names from one counter shared by every prefix, so
// names are unique per Namer and a prefix does not restart at 0 (a
// NumberProxy minted after two TensorProxies is "n2").
type namer struct {
	counter atomic.Int64
}

// Namer mints monotonically increasing, prefix-tagged proxy names.
// jit.NewCompileContext creates one per CompileContext, and every
// Compile call made with that context continues its numbering.
type Namer struct {
	n namer
}

// NewNamer returns a fresh, zeroed Namer.
func NewNamer() *Namer { return &Namer{} }

// Next returns the next name for the given prefix, e.g. "t0", "t1", "n2".
func (nm *Namer) Next(prefix string) string {
	i := nm.n.counter.Add(1) - 1
	return fmt.Sprintf("%s%d", prefix, i)
}

// TensorProxy stands in for an input tensor. Shape, Strides, Dtype,
// Device and RequiresGrad are fixed at construction time — a later
// operation that would change any of them produces a *new* TensorProxy,
// never mutates this one.
type TensorProxy struct {
	name         string
	Shape        []int64
	Strides      []int64
	Dtype        string
	Device       string
	RequiresGrad bool
	history      []string
}

// NumberProxy stands in for an input scalar (Python-style int/float,
// represented here as float64 with an IsInt discriminator to keep the
// symbolic arithmetic exact for integer-only traces).
type NumberProxy struct {
	name  string
	IsInt bool
	// ConcreteHint carries the value observed when this proxy was created
	// (the interpreter always has a concrete value available, per the
	// data model's "no symbolic-only execution" invariant); it is never
	// used to fold the trace, only to validate guards at runtime.
	ConcreteHint float64
	history      []string
}

// StringProxy stands in for an input string.
type StringProxy struct {
	name         string
	ConcreteHint string
	history      []string
}

// Handle is a nameable placeholder standing in for an unpacked value
// that has no type-specific proxy of its own (a container or other
// non-tensor/number/string intermediate in an attribute/index chain).
type Handle struct {
	name    string
	history []string
}

func (h *Handle) Kind() Kind         { return KindHandle }
func (h *Handle) Name() string       { return h.name }
func (h *Handle) History() []string  { return h.history }
func (h *Handle) recordUse(s string) { h.history = append(h.history, s) }

// NewHandle mints a new Handle named by nm.
func NewHandle(nm *Namer) *Handle {
	return &Handle{name: nm.Next("u")}
}

// Proxy is the common interface satisfied by all three proxy kinds.
type Proxy interface {
	Kind() Kind
	Name() string
	// History returns the names of the BoundSymbols this proxy has been
	// passed to as an operand, oldest first.
	History() []string
	// recordUse appends a symbol name to this proxy's history. Unexported:
	// only package prims, which owns BoundSymbol construction, may call it.
	recordUse(symbolName string)
}

func (t *TensorProxy) Kind() Kind          { return KindTensor }
func (t *TensorProxy) Name() string        { return t.name }
func (t *TensorProxy) History() []string   { return t.history }
func (t *TensorProxy) recordUse(s string)  { t.history = append(t.history, s) }

func (n *NumberProxy) Kind() Kind         { return KindNumber }
func (n *NumberProxy) Name() string       { return n.name }
func (n *NumberProxy) History() []string  { return n.history }
func (n *NumberProxy) recordUse(s string) { n.history = append(n.history, s) }

func (s *StringProxy) Kind() Kind         { return KindString }
func (s *StringProxy) Name() string       { return s.name }
func (s *StringProxy) History() []string  { return s.history }
func (s *StringProxy) recordUse(x string) { s.history = append(s.history, x) }

// RecordUse appends symbolName to p's history. Exposed at package level
// so package prims can attribute an operation to its operand proxies
// without exporting the Proxy interface's unexported method set.
func RecordUse(p Proxy, symbolName string) {
	p.recordUse(symbolName)
}

// NewTensor mints a new TensorProxy named by nm.
func NewTensor(nm *Namer, shape, strides []int64, dtype, device string, requiresGrad bool) *TensorProxy {
	return &TensorProxy{
		name:         nm.Next("t"),
		Shape:        shape,
		Strides:      strides,
		Dtype:        dtype,
		Device:       device,
		RequiresGrad: requiresGrad,
	}
}

// NewNumber mints a new NumberProxy named by nm.
func NewNumber(nm *Namer, isInt bool, hint float64) *NumberProxy {
	return &NumberProxy{name: nm.Next("n"), IsInt: isInt, ConcreteHint: hint}
}

// NewString mints a new StringProxy named by nm.
func NewString(nm *Namer, hint string) *StringProxy {
	return &StringProxy{name: nm.Next("s"), ConcreteHint: hint}
}
