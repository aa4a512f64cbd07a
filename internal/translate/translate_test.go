package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()
	name, ok := tbl.Lookup("add")
	assert.True(t, ok)
	assert.Equal(t, "add", name)
	assert.Equal(t, 6, tbl.Len())
}

func TestSetOverridesEntry(t *testing.T) {
	tbl := New()
	tbl.Set("torch.add", "add")
	name, ok := tbl.Lookup("torch.add")
	assert.True(t, ok)
	assert.Equal(t, "add", name)

	_, ok = tbl.Lookup("torch.sub")
	assert.False(t, ok)
}
