package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringHashKey(t *testing.T) {
	hello1 := &String{Value: "Hello World"}
	hello2 := &String{Value: "Hello World"}
	diff1 := &String{Value: "My name is johnny"}
	diff2 := &String{Value: "My name is johnny"}

	assert.Equal(t, hello1.HashKey(), hello2.HashKey())
	assert.Equal(t, diff1.HashKey(), diff2.HashKey())
	assert.NotEqual(t, hello1.HashKey(), diff1.HashKey())
}

func TestIntegerAndBooleanHashKey(t *testing.T) {
	one1 := &Integer{Value: 1}
	one2 := &Integer{Value: 1}
	two := &Integer{Value: 2}

	assert.Equal(t, one1.HashKey(), one2.HashKey())
	assert.NotEqual(t, one1.HashKey(), two.HashKey())

	true1 := &Boolean{Value: true}
	true2 := &Boolean{Value: true}
	false1 := &Boolean{Value: false}

	assert.Equal(t, true1.HashKey(), true2.HashKey())
	assert.NotEqual(t, true1.HashKey(), false1.HashKey())
}

func TestRecordGetAttr(t *testing.T) {
	rec := &Record{
		Names: []string{"weight", "bias"},
		Fields: map[string]Object{
			"weight": &Tensor{Shape: []int64{2, 2}, Dtype: "float32", Device: "cpu"},
			"bias":   &Integer{Value: 0},
		},
	}

	v, ok := rec.GetAttr("weight")
	assert.True(t, ok)
	assert.Equal(t, Type(TENSOR_OBJ), v.Type())

	_, ok = rec.GetAttr("missing")
	assert.False(t, ok)
}

func TestTensorInspect(t *testing.T) {
	ten := &Tensor{Shape: []int64{1, 3, 224, 224}, Dtype: "float32", Device: "cuda:0", RequiresGrad: true}
	assert.Contains(t, ten.Inspect(), "float32")
	assert.Contains(t, ten.Inspect(), "cuda:0")
}
