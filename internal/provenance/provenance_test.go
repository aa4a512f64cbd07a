package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualStructural(t *testing.T) {
	a := Attr(Root(0), "weight")
	b := Attr(Root(0), "weight")
	c := Attr(Root(0), "bias")
	d := Attr(Root(1), "weight")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestSafeForGuarding(t *testing.T) {
	safe := Subscr(Attr(Root(0), "shape"), 0)
	assert.True(t, safe.SafeForGuarding())

	unsafe := Attr(OpaqueRecord("unrecognized builtin"), "whatever")
	assert.False(t, unsafe.SafeForGuarding())
}

func TestAcyclic(t *testing.T) {
	r := Attr(Root(0), "weight")
	assert.True(t, r.Acyclic())

	cyclic := &Record{Tag: LoadAttr, Name: "self"}
	cyclic.Inputs = []*Record{cyclic}
	assert.False(t, cyclic.Acyclic())
}

func TestString(t *testing.T) {
	r := Subscr(Attr(Root(0), "shape"), 1)
	require.Equal(t, "args[0].shape[1]", r.String())
}

func TestPrimCallRecord(t *testing.T) {
	a := Root(0)
	b := Root(1)
	sum := PrimCallRecord("add", a, b)

	assert.Equal(t, PrimCall, sum.Tag)
	assert.True(t, sum.SafeForGuarding())
	assert.Equal(t, "add(...)", sum.String())
}
