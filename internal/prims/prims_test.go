package prims

import (
	"testing"

	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceCtxBindDetectsDuplicates(t *testing.T) {
	nm := proxy.NewNamer()
	tc := NewTraceCtx("computation")

	out := proxy.NewNumber(nm, true, 0)
	sym1 := &BoundSymbol{Name: "add", OutputProxy: out}
	require.NoError(t, tc.Bind(sym1))

	sym2 := &BoundSymbol{Name: "mul", OutputProxy: out}
	err := tc.Bind(sym2)
	assert.Error(t, err)
}

func TestHoistUnpacks(t *testing.T) {
	a := &BoundSymbol{Name: "add"}
	u1 := &BoundSymbol{Name: "unpack_trivial"}
	u2 := &BoundSymbol{Name: "unpack_attr"}

	hoisted := HoistUnpacks([]*BoundSymbol{a, u1, u2})
	require.Len(t, hoisted, 3)
	assert.Equal(t, "unpack_trivial", hoisted[0].Name)
	assert.Equal(t, "unpack_attr", hoisted[1].Name)
	assert.Equal(t, "add", hoisted[2].Name)
}

func TestArithPrimitiveOnNumbers(t *testing.T) {
	nm := proxy.NewNamer()
	a := proxy.NewNumber(nm, true, 2)
	b := proxy.NewNumber(nm, true, 3)

	add := Library["add"]
	sym, err := add(nm, a, b)
	require.NoError(t, err)
	assert.Equal(t, "add", sym.Name)
	assert.Equal(t, proxy.KindNumber, sym.OutputProxy.Kind())
	assert.Contains(t, a.History(), sym.String())
}

func TestArithPrimitivePromotesTensor(t *testing.T) {
	nm := proxy.NewNamer()
	tp := proxy.NewTensor(nm, []int64{2, 2}, []int64{2, 1}, "float32", "cpu", false)
	n := proxy.NewNumber(nm, true, 1)

	mul := Library["mul"]
	sym, err := mul(nm, tp, n)
	require.NoError(t, err)
	assert.Equal(t, proxy.KindTensor, sym.OutputProxy.Kind())
}

func TestGetAttrPrimitive(t *testing.T) {
	nm := proxy.NewNamer()
	tp := proxy.NewTensor(nm, []int64{2, 2}, []int64{2, 1}, "float32", "cpu", false)
	baseProv := provenance.Root(0)

	sym, prov := GetAttr(nm, baseProv, tp, "shape")
	assert.Equal(t, "getattr", sym.Name)
	assert.Equal(t, provenance.LoadAttr, prov.Tag)
	assert.True(t, prov.SafeForGuarding())
}
