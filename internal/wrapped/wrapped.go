// Package wrapped implements WrappedValue, the triple of (concrete
// value, provenance, optional proxy) that the interpreter pushes onto
// its operand stack instead of a bare object.Object. A WrappedValue's
// identity is stable across repeated pushes of the same logical value —
// package Cache is what makes that true, by handing back the same
// *Value for structurally-equal provenance instead of allocating anew.
package wrapped

import (
	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/dr8co/tracejit/object"
)

// Value is a concrete object paired with the provenance record
// describing how it was obtained and, if the value was promoted to
// symbolic tracking, the proxy standing in for it.
type Value struct {
	Concrete   object.Object
	Provenance *provenance.Record
	Proxy      proxy.Proxy
}

// IsSymbolic reports whether v carries a proxy, i.e. whether operations
// on v should be recorded into the computation trace rather than folded
// to a concrete result immediately.
func (v *Value) IsSymbolic() bool { return v != nil && v.Proxy != nil }

// Wrap constructs a new Value with no proxy — a plain concrete value
// with known provenance, not (yet) promoted to a tensor/number/string
// proxy. Primitives that later observe it can promote it via WithProxy.
func Wrap(concrete object.Object, prov *provenance.Record) *Value {
	return &Value{Concrete: concrete, Provenance: prov}
}

// WithProxy returns a copy of v with p attached. The original v is left
// untouched: WrappedValue is conceptually immutable once constructed,
// matching the data model's identity-stability invariant.
func (v *Value) WithProxy(p proxy.Proxy) *Value {
	return &Value{Concrete: v.Concrete, Provenance: v.Provenance, Proxy: p}
}

// SetProxy attaches p to v in place, but only if v does not already
// carry one — the "once set, never overwritten" rule from the data
// model. Unlike WithProxy, this mutates v itself, which is what lets a
// value fetched a second time from Cache pick up the same proxy its
// first promotion minted instead of getting a fresh one per fetch.
func (v *Value) SetProxy(p proxy.Proxy) {
	if v.Proxy == nil {
		v.Proxy = p
	}
}

// Cache deduplicates WrappedValues by provenance so that pushing the
// "same" derivation twice (e.g. reading fn.weight twice in one trace)
// yields the identical *Value rather than two structurally-equal but
// distinct ones. This is what the data model calls "reuse of provenance
// for repeated pushes."
type Cache struct {
	entries []*Value
}

// NewCache returns an empty Cache. A Cache is scoped to one compilation;
// jit.CompileContext owns it and discards it at scope exit.
func NewCache() *Cache {
	return &Cache{}
}

// GetOrWrap returns the cached Value whose provenance is structurally
// equal to prov, wrapping and caching a new one from concrete/prov if no
// such entry exists yet.
func (c *Cache) GetOrWrap(concrete object.Object, prov *provenance.Record) *Value {
	for _, v := range c.entries {
		if v.Provenance.Equal(prov) {
			return v
		}
	}
	v := Wrap(concrete, prov)
	c.entries = append(c.entries, v)
	return v
}

// Len reports how many distinct provenance derivations have been cached,
// used by tests asserting dedup behavior.
func (c *Cache) Len() int { return len(c.entries) }
