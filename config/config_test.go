package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesTOML(t *testing.T) {
	input := `
allow_list = ["torch.relu", "torch.matmul"]

[translations]
"torch.add" = "add"

[sharp_edges]
reassign_traced_container = "WARN"
`
	cfg, err := Load(strings.NewReader(input))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"torch.relu", "torch.matmul"}, cfg.AllowList)
	assert.Equal(t, "add", cfg.Translations["torch.add"])
	assert.Equal(t, "WARN", cfg.SharpEdges["reassign_traced_container"])
}

func TestTranslationTableMergesOverDefaults(t *testing.T) {
	cfg := &Config{Translations: map[string]string{"torch.add": "add"}}
	tbl := cfg.TranslationTable()

	name, ok := tbl.Lookup("add")
	assert.True(t, ok)
	assert.Equal(t, "add", name)

	name, ok = tbl.Lookup("torch.add")
	assert.True(t, ok)
	assert.Equal(t, "add", name)
}

func TestAllowListSet(t *testing.T) {
	cfg := &Config{AllowList: []string{"a", "b"}}
	set := cfg.AllowListSet()
	assert.True(t, set["a"])
	assert.False(t, set["c"])
}
