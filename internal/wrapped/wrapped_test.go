package wrapped

import (
	"testing"

	"github.com/dr8co/tracejit/internal/proxy"
	"github.com/dr8co/tracejit/internal/provenance"
	"github.com/dr8co/tracejit/object"
	"github.com/stretchr/testify/assert"
)

func TestCacheDedupesByProvenance(t *testing.T) {
	c := NewCache()

	p1 := provenance.Attr(provenance.Root(0), "weight")
	p2 := provenance.Attr(provenance.Root(0), "weight")

	v1 := c.GetOrWrap(&object.Integer{Value: 1}, p1)
	v2 := c.GetOrWrap(&object.Integer{Value: 1}, p2)

	assert.Same(t, v1, v2)
	assert.Equal(t, 1, c.Len())
}

func TestCacheDistinguishesProvenance(t *testing.T) {
	c := NewCache()

	v1 := c.GetOrWrap(&object.Integer{Value: 1}, provenance.Root(0))
	v2 := c.GetOrWrap(&object.Integer{Value: 2}, provenance.Root(1))

	assert.NotSame(t, v1, v2)
	assert.Equal(t, 2, c.Len())
}

func TestWithProxyPreservesOriginal(t *testing.T) {
	v := Wrap(&object.Integer{Value: 1}, provenance.Root(0))
	assert.False(t, v.IsSymbolic())

	nm := proxy.NewNamer()
	np := proxy.NewNumber(nm, true, 1)
	v2 := v.WithProxy(np)

	assert.False(t, v.IsSymbolic())
	assert.True(t, v2.IsSymbolic())
	assert.Same(t, v.Provenance, v2.Provenance)
}
