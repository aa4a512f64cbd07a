package lookaside

import (
	"testing"

	"github.com/dr8co/tracejit/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfLookasideForBuiltin(t *testing.T) {
	r := New()
	builtin := object.GetBuiltinByName("len")
	require.NotNil(t, builtin)

	result, handled, err := r.Resolve(builtin, &object.String{Value: "hello"})
	require.NoError(t, err)
	assert.True(t, handled)

	i, ok := result.(*object.Integer)
	require.True(t, ok)
	assert.Equal(t, int64(5), i.Value)
}

func TestDefaultFallsThroughForUnknownCallee(t *testing.T) {
	r := New()
	fn := &object.CompiledFunction{}

	_, handled, err := r.Resolve(fn)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestGetAttrAndHasAttr(t *testing.T) {
	r := New()
	rec := &object.Record{
		Names:  []string{"weight"},
		Fields: map[string]object.Object{"weight": &object.Integer{Value: 1}},
	}

	has, handled, err := r.ResolveByName("hasattr", rec, &object.String{Value: "weight"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, has.(*object.Boolean).Value)

	missing, _, err := r.ResolveByName("hasattr", rec, &object.String{Value: "bias"})
	require.NoError(t, err)
	assert.False(t, missing.(*object.Boolean).Value)

	val, _, err := r.ResolveByName("getattr", rec, &object.String{Value: "weight"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), val.(*object.Integer).Value)

	_, _, err = r.ResolveByName("getattr", rec, &object.String{Value: "bias"})
	assert.Error(t, err)
}

func TestCallbackRegistration(t *testing.T) {
	r := New()
	_, ok := r.Callback(ConstCallback)
	assert.False(t, ok)

	r.RegisterCallback(ConstCallback, func(v object.Object) (object.Object, error) {
		return v, nil
	})

	cb, ok := r.Callback(ConstCallback)
	require.True(t, ok)
	out, err := cb(&object.Integer{Value: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.(*object.Integer).Value)
}
