// Package prologue implements the prologue synthesizer (C8): given a
// completed computation trace and the provenance origins the
// interpreter recorded for every proxy it minted, it walks the
// provenance DAG of every proxy the computation trace actually
// consumes and emits the unpack/guard BoundSymbols needed to
// reconstruct those proxies from (*args, **kwargs) before the
// computation trace runs.
//
// Unpacking is memoized by provenance structural identity (package
// provenance's Equal), so two uses of the same derivation — reading
// fn.weight twice, say — unpack once and share the result, matching the
// data model's "identity-stable across repeated derivations" rule.
package prologue

import (
	"fmt"

	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
)

// TensorMeta is the literal payload an assert_tensor_metadata guard
// carries: the shape/dtype/device/requires_grad a TensorProxy was
// minted with, to be checked against the real input at run time.
type TensorMeta struct {
	Shape        []int64
	Strides      []int64
	Dtype        string
	Device       string
	RequiresGrad bool
}

type memoEntry struct {
	prov  *provenance.Record
	out   proxy.Proxy
	lit   any
	isLit bool
}

type builder struct {
	nm    *proxy.Namer
	trace *prims.TraceCtx
	memo  []memoEntry
}

// Synthesize returns a new prologue TraceCtx that unpacks every proxy
// comp consumes from outside itself (per origins), replays comp's
// recorded constraints as guards, and returns the unpacked proxies as
// its output tuple in first-use order.
func Synthesize(nm *proxy.Namer, comp *prims.TraceCtx, origins map[proxy.Proxy]*provenance.Record, constraints []*prims.Constraint) (*prims.TraceCtx, error) {
	b := &builder{nm: nm, trace: prims.NewTraceCtx("prologue")}

	used := usedInputProxies(comp, origins)

	for _, p := range used {
		out, _, _, err := b.unpack(origins[p], p)
		if err != nil {
			return nil, err
		}
		if tp, ok := p.(*proxy.TensorProxy); ok {
			sym := &prims.BoundSymbol{
				Name: "assert_tensor_metadata",
				Args: []proxy.Proxy{out},
				Const: TensorMeta{
					Shape:        tp.Shape,
					Strides:      tp.Strides,
					Dtype:        tp.Dtype,
					Device:       tp.Device,
					RequiresGrad: tp.RequiresGrad,
				},
			}
			if err := b.trace.Bind(sym); err != nil {
				return nil, err
			}
			proxy.RecordUse(out, sym.String())
		}
	}

	for _, c := range constraints {
		if err := b.emitConstraint(c); err != nil {
			return nil, err
		}
	}

	ret := &prims.BoundSymbol{Name: "return", Args: append([]proxy.Proxy{}, used...)}
	if err := b.trace.Bind(ret); err != nil {
		return nil, err
	}
	for _, p := range used {
		proxy.RecordUse(p, ret.String())
	}
	b.trace.SetOutputs(used)

	return b.trace, nil
}

// HoistComputation appends an unpack_trivial BoundSymbol for every
// proxy the computation trace consumes from outside itself, then moves
// every unpack_* symbol to the front via prims.HoistUnpacks, so the
// final trace reads unpack → work → return.
func HoistComputation(comp *prims.TraceCtx, origins map[proxy.Proxy]*provenance.Record) error {
	used := usedInputProxies(comp, origins)
	for _, p := range used {
		sym := &prims.BoundSymbol{Name: "unpack_trivial", OutputProxy: p}
		if err := comp.Bind(sym); err != nil {
			return err
		}
	}
	comp.Reorder(prims.HoistUnpacks(comp.Symbols()))
	return nil
}

// usedInputProxies walks trace's symbols in emission order and returns,
// in first-use order, every distinct proxy that has a non-nil entry in
// origins — i.e. every proxy whose value came from outside the trace
// rather than from an earlier BoundSymbol's own output.
func usedInputProxies(trace *prims.TraceCtx, origins map[proxy.Proxy]*provenance.Record) []proxy.Proxy {
	seen := map[proxy.Proxy]bool{}
	var used []proxy.Proxy
	for _, sym := range trace.Symbols() {
		for _, a := range sym.Args {
			if a == nil || seen[a] {
				continue
			}
			if _, ok := origins[a]; ok {
				seen[a] = true
				used = append(used, a)
			}
		}
	}
	return used
}

func (b *builder) lookup(prov *provenance.Record) *memoEntry {
	for idx := range b.memo {
		if b.memo[idx].prov.Equal(prov) {
			return &b.memo[idx]
		}
	}
	return nil
}

func (b *builder) memoize(prov *provenance.Record, out proxy.Proxy, lit any, isLit bool) {
	b.memo = append(b.memo, memoEntry{prov: prov, out: out, lit: lit, isLit: isLit})
}

// unpack emits whatever BoundSymbols are needed to reproduce prov in
// the prologue, returning the proxy/handle bound to it (or a literal
// value for int/str constants, which are inlined rather than unpacked).
// If bindAs is non-nil, the final symbol's output is bound to that
// exact proxy — used when prov is the provenance of a genuine
// used-input proxy rather than an unpack-only intermediate.
func (b *builder) unpack(prov *provenance.Record, bindAs proxy.Proxy) (proxy.Proxy, any, bool, error) {
	if prov == nil {
		return nil, nil, false, fmt.Errorf("prologue: nil provenance")
	}
	if e := b.lookup(prov); e != nil {
		if bindAs != nil && e.out != bindAs && !e.isLit {
			// Same derivation already unpacked to a different handle;
			// this can only happen for a non-tensor/number/string base
			// that is never itself a used-input proxy, so bindAs is
			// always nil in that case in practice. Guard anyway.
			return e.out, e.lit, e.isLit, nil
		}
		return e.out, e.lit, e.isLit, nil
	}

	switch prov.Tag {
	case provenance.InputArgs, provenance.InputKwargs:
		out := bindAs
		if out == nil {
			out = proxy.NewHandle(b.nm)
		}
		name := "unpack_trivial"
		sym := &prims.BoundSymbol{Name: name, OutputProxy: out}
		if err := b.trace.Bind(sym); err != nil {
			return nil, nil, false, err
		}
		b.memoize(prov, out, nil, false)
		return out, nil, false, nil

	case provenance.InputFn:
		out := bindAs
		if out == nil {
			out = proxy.NewHandle(b.nm)
		}
		sym := &prims.BoundSymbol{Name: "unpack_function_obj", OutputProxy: out}
		if err := b.trace.Bind(sym); err != nil {
			return nil, nil, false, err
		}
		b.memoize(prov, out, nil, false)
		return out, nil, false, nil

	case provenance.LoadAttr:
		baseOut, _, _, err := b.unpack(prov.Inputs[0], nil)
		if err != nil {
			return nil, nil, false, err
		}
		out := bindAs
		if out == nil {
			out = proxy.NewHandle(b.nm)
		}
		sym := &prims.BoundSymbol{Name: "unpack_attr", Args: []proxy.Proxy{baseOut}, Const: prov.Name, OutputProxy: out}
		if err := b.trace.Bind(sym); err != nil {
			return nil, nil, false, err
		}
		proxy.RecordUse(baseOut, sym.String())
		b.memoize(prov, out, nil, false)
		return out, nil, false, nil

	case provenance.Subscript:
		baseOut, _, _, err := b.unpack(prov.Inputs[0], nil)
		if err != nil {
			return nil, nil, false, err
		}
		out := bindAs
		if out == nil {
			out = proxy.NewHandle(b.nm)
		}
		sym := &prims.BoundSymbol{Name: "unpack_getitem", Args: []proxy.Proxy{baseOut}, Const: prov.Index, OutputProxy: out}
		if err := b.trace.Bind(sym); err != nil {
			return nil, nil, false, err
		}
		proxy.RecordUse(baseOut, sym.String())
		b.memoize(prov, out, nil, false)
		return out, nil, false, nil

	case provenance.Constant:
		switch v := prov.Const.(type) {
		case int, int64, string, bool:
			b.memoize(prov, nil, v, true)
			return nil, v, true, nil
		default:
			return nil, nil, false, fmt.Errorf("prologue: unsupported constant type %T in provenance", prov.Const)
		}

	case provenance.PrimCall:
		args := make([]proxy.Proxy, 0, len(prov.Inputs))
		for _, in := range prov.Inputs {
			a, lit, isLit, err := b.unpack(in, nil)
			if err != nil {
				return nil, nil, false, err
			}
			if isLit {
				a = b.materializeLiteral(lit)
			}
			args = append(args, a)
		}
		out := bindAs
		if out == nil {
			out = proxy.NewHandle(b.nm)
		}
		sym := &prims.BoundSymbol{Name: prov.Name, Args: args, OutputProxy: out}
		if err := b.trace.Bind(sym); err != nil {
			return nil, nil, false, err
		}
		for _, a := range args {
			proxy.RecordUse(a, sym.String())
		}
		b.memoize(prov, out, nil, false)
		return out, nil, false, nil

	case provenance.Opaque:
		switch prov.Name {
		case "getitem_like":
			rewritten := provenance.Subscr(prov.Inputs[0], prov.Index)
			return b.unpack(rewritten, bindAs)
		case "descriptor_get":
			name, _ := prov.Const.(string)
			rewritten := provenance.Attr(prov.Inputs[0], name)
			return b.unpack(rewritten, bindAs)
		default:
			return nil, nil, false, fmt.Errorf("prologue: unsupported OPAQUE provenance: %s", prov.Name)
		}

	default:
		return nil, nil, false, fmt.Errorf("prologue: unsupported provenance tag %s", prov.Tag)
	}
}

// materializeLiteral mints a Handle bound to a materialize_const symbol
// carrying lit, used when a PRIM_CALL's replayed primitive takes a
// constant operand (e.g. the `0` in `shape[0] > 0`) that unpack()
// otherwise inlines rather than giving a proxy.
func (b *builder) materializeLiteral(lit any) proxy.Proxy {
	out := proxy.NewHandle(b.nm)
	sym := &prims.BoundSymbol{Name: "materialize_const", Const: lit, OutputProxy: out}
	_ = b.trace.Bind(sym)
	return out
}

func (b *builder) emitConstraint(c *prims.Constraint) error {
	out, _, isLit, err := b.unpack(c.Prov, nil)
	if err != nil {
		return err
	}

	var name string
	switch c.Op {
	case "number_type_and_value":
		name = "check_number_type_and_value"
	case "string_value":
		name = "check_string_value"
	case "branch":
		name = "check_branch_condition"
	default:
		return fmt.Errorf("prologue: unknown constraint op %q", c.Op)
	}

	sym := &prims.BoundSymbol{Name: name, Const: c.Value}
	if !isLit {
		sym.Args = []proxy.Proxy{out}
	}
	if err := b.trace.Bind(sym); err != nil {
		return err
	}
	if !isLit {
		proxy.RecordUse(out, sym.String())
	}
	return nil
}
