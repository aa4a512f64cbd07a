package prologue

import (
	"testing"

	"github.com/dr8co/tracejit/internal/prims"
	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeUnpacksTrivialInput(t *testing.T) {
	nm := proxy.NewNamer()
	n := proxy.NewNumber(nm, true, 3)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "add", Args: []proxy.Proxy{n}, OutputProxy: n}))

	origins := map[proxy.Proxy]*provenance.Record{n: provenance.Root(0)}

	out, err := Synthesize(nm, comp, origins, nil)
	require.NoError(t, err)

	var names []string
	for _, sym := range out.Symbols() {
		names = append(names, sym.Name)
	}
	assert.Contains(t, names, "unpack_trivial")
	assert.Equal(t, "return", names[len(names)-1])
	assert.Equal(t, []proxy.Proxy{n}, out.Outputs())
}

func TestSynthesizeEmitsTensorMetadataGuard(t *testing.T) {
	nm := proxy.NewNamer()
	tp := proxy.NewTensor(nm, []int64{4}, []int64{1}, "float32", "cpu", false)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "identity", Args: []proxy.Proxy{tp}, OutputProxy: tp}))

	origins := map[proxy.Proxy]*provenance.Record{tp: provenance.Root(0)}

	out, err := Synthesize(nm, comp, origins, nil)
	require.NoError(t, err)

	var sawGuard bool
	for _, sym := range out.Symbols() {
		if sym.Name == "assert_tensor_metadata" {
			sawGuard = true
			meta, ok := sym.Const.(TensorMeta)
			require.True(t, ok)
			assert.Equal(t, []int64{4}, meta.Shape)
			assert.Equal(t, "float32", meta.Dtype)
		}
	}
	assert.True(t, sawGuard, "expected an assert_tensor_metadata guard for a used TensorProxy")
}

func TestSynthesizeRewritesOpaqueGetitemLike(t *testing.T) {
	nm := proxy.NewNamer()
	out := proxy.NewHandle(nm)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "identity", Args: []proxy.Proxy{out}, OutputProxy: out}))

	origins := map[proxy.Proxy]*provenance.Record{
		out: provenance.OpaqueGetitemLike(provenance.Root(0), 2),
	}

	trace, err := Synthesize(nm, comp, origins, nil)
	require.NoError(t, err)

	var sawGetitem bool
	for _, sym := range trace.Symbols() {
		if sym.Name == "unpack_getitem" {
			sawGetitem = true
			assert.Equal(t, 2, sym.Const)
		}
	}
	assert.True(t, sawGetitem, "expected the getitem_like OPAQUE rewrite to produce an unpack_getitem symbol")
}

func TestSynthesizeRewritesOpaqueDescriptorGet(t *testing.T) {
	nm := proxy.NewNamer()
	out := proxy.NewHandle(nm)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "identity", Args: []proxy.Proxy{out}, OutputProxy: out}))

	origins := map[proxy.Proxy]*provenance.Record{
		out: provenance.OpaqueDescriptorGet(provenance.Root(0), "weight"),
	}

	trace, err := Synthesize(nm, comp, origins, nil)
	require.NoError(t, err)

	var sawAttr bool
	for _, sym := range trace.Symbols() {
		if sym.Name == "unpack_attr" {
			sawAttr = true
			assert.Equal(t, "weight", sym.Const)
		}
	}
	assert.True(t, sawAttr, "expected the descriptor_get OPAQUE rewrite to produce an unpack_attr symbol")
}

func TestSynthesizeRejectsUnknownOpaqueReason(t *testing.T) {
	nm := proxy.NewNamer()
	out := proxy.NewHandle(nm)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "identity", Args: []proxy.Proxy{out}, OutputProxy: out}))

	origins := map[proxy.Proxy]*provenance.Record{
		out: provenance.OpaqueRecord("some_unsupported_builtin"),
	}

	_, err := Synthesize(nm, comp, origins, nil)
	assert.Error(t, err)
}

func TestSynthesizeMemoizesRepeatedDerivation(t *testing.T) {
	nm := proxy.NewNamer()
	n1 := proxy.NewNumber(nm, true, 1)
	n2 := proxy.NewNumber(nm, true, 1)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "add", Args: []proxy.Proxy{n1, n2}, OutputProxy: n1}))

	// Same structural derivation (args[0].weight) backing two distinct
	// proxies should unpack only once.
	prov := provenance.Attr(provenance.Root(0), "weight")
	origins := map[proxy.Proxy]*provenance.Record{n1: prov, n2: prov}

	out, err := Synthesize(nm, comp, origins, nil)
	require.NoError(t, err)

	count := 0
	for _, sym := range out.Symbols() {
		if sym.Name == "unpack_attr" {
			count++
		}
	}
	assert.Equal(t, 1, count, "structurally identical provenance should unpack once, not once per proxy")
}

func TestSynthesizeEmitsConstraint(t *testing.T) {
	nm := proxy.NewNamer()
	n := proxy.NewNumber(nm, true, 5)

	comp := prims.NewTraceCtx("computation")
	require.NoError(t, comp.Bind(&prims.BoundSymbol{Name: "identity", Args: []proxy.Proxy{n}, OutputProxy: n}))

	origins := map[proxy.Proxy]*provenance.Record{n: provenance.Root(0)}
	constraints := []*prims.Constraint{
		{Prov: provenance.Root(0), Op: "number_type_and_value", Value: 5},
	}

	out, err := Synthesize(nm, comp, origins, constraints)
	require.NoError(t, err)

	var sawCheck bool
	for _, sym := range out.Symbols() {
		if sym.Name == "check_number_type_and_value" {
			sawCheck = true
			assert.Equal(t, 5, sym.Const)
		}
	}
	assert.True(t, sawCheck)
}
