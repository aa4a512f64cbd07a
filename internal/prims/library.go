package prims

import (
	"fmt"

	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
)

// Binary is the signature every symbolic binary primitive implements:
// given the two operand proxies and a namer to mint the output proxy
// with, it returns the BoundSymbol recording the call. Only the proxy
// Kind is inspected; concrete folding (when neither operand is
// symbolic) happens upstream in package interp before a primitive is
// ever called.
type Binary func(nm *proxy.Namer, a, b proxy.Proxy) (*BoundSymbol, error)

// Library is the fixed set of symbolic primitives the interpreter may
// emit into a computation trace. It is a plain map rather than a
// registry with runtime registration: spec.md's primitive set is fixed
// at the tracer's design time, not user-extensible the way lookaside
// entries are.
var Library = map[string]Binary{
	"add": arith("add"),
	"sub": arith("sub"),
	"mul": arith("mul"),
	"div": arith("div"),
	"eq":  compare("eq"),
	"gt":  compare("gt"),
}

func arith(name string) Binary {
	return func(nm *proxy.Namer, a, b proxy.Proxy) (*BoundSymbol, error) {
		if a.Kind() != proxy.KindNumber && a.Kind() != proxy.KindTensor {
			return nil, fmt.Errorf("prims: %s: unsupported operand kind %s", name, a.Kind())
		}
		out := outputFor(nm, name, a, b)
		sym := &BoundSymbol{
			Name:        name,
			Args:        []proxy.Proxy{a, b},
			OutputProxy: out,
		}
		proxy.RecordUse(a, sym.String())
		proxy.RecordUse(b, sym.String())
		return sym, nil
	}
}

func compare(name string) Binary {
	return func(nm *proxy.Namer, a, b proxy.Proxy) (*BoundSymbol, error) {
		out := proxy.NewNumber(nm, true, 0)
		sym := &BoundSymbol{
			Name:        name,
			Args:        []proxy.Proxy{a, b},
			OutputProxy: out,
		}
		proxy.RecordUse(a, sym.String())
		proxy.RecordUse(b, sym.String())
		return sym, nil
	}
}

// outputFor mints the result proxy for an arithmetic primitive: a tensor
// if either operand is a tensor (broadcasting is the caller's concern,
// not this library's), a number otherwise.
func outputFor(nm *proxy.Namer, _ string, a, b proxy.Proxy) proxy.Proxy {
	if at, ok := a.(*proxy.TensorProxy); ok {
		return proxy.NewTensor(nm, at.Shape, at.Strides, at.Dtype, at.Device, at.RequiresGrad)
	}
	if bt, ok := b.(*proxy.TensorProxy); ok {
		return proxy.NewTensor(nm, bt.Shape, bt.Strides, bt.Dtype, bt.Device, bt.RequiresGrad)
	}
	return proxy.NewNumber(nm, true, 0)
}

// GetAttr builds a symbolic attribute read: it derives the LOAD_ATTR
// provenance for base.name, mints a new NumberProxy to carry it, and
// returns the getattr BoundSymbol without binding it to a trace. Package
// interp's OpGetAttr handling does not call it.
func GetAttr(nm *proxy.Namer, baseProv *provenance.Record, base proxy.Proxy, name string) (*BoundSymbol, *provenance.Record) {
	prov := provenance.Attr(baseProv, name)
	out := proxy.NewNumber(nm, true, 0)
	sym := &BoundSymbol{
		Output:      prov,
		Name:        "getattr",
		Args:        []proxy.Proxy{base},
		OutputProxy: out,
	}
	proxy.RecordUse(base, sym.String())
	return sym, prov
}
