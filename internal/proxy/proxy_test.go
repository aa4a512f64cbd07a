package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamerMonotonic(t *testing.T) {
	nm := NewNamer()
	assert.Equal(t, "t0", nm.Next("t"))
	assert.Equal(t, "t1", nm.Next("t"))
	assert.Equal(t, "n2", nm.Next("n"))
}

func TestNewTensorProxy(t *testing.T) {
	nm := NewNamer()
	tp := NewTensor(nm, []int64{2, 3}, []int64{3, 1}, "float32", "cpu", true)

	assert.Equal(t, "t0", tp.Name())
	assert.Equal(t, KindTensor, tp.Kind())
	assert.Empty(t, tp.History())

	RecordUse(tp, "add_0")
	assert.Equal(t, []string{"add_0"}, tp.History())
}

func TestNewNumberAndStringProxy(t *testing.T) {
	nm := NewNamer()
	np := NewNumber(nm, true, 3)
	sp := NewString(nm, "hello")

	assert.Equal(t, "n0", np.Name())
	assert.Equal(t, "s1", sp.Name())
	assert.Equal(t, KindNumber, np.Kind())
	assert.Equal(t, KindString, sp.Kind())
}
