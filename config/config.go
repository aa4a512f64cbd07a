// Package config loads tracejit's compile-time configuration: the
// global allow-list of global names the interpreter may load without
// raising the disallowed-global sharp edge, and the host-function-to-primitive translation
// table (package internal/translate). Both are expressed as TOML,
// decoded with github.com/pelletier/go-toml/v2, matching the ecosystem
// convention the retrieval pack's erigontech/erigon uses for its own
// config files.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/dr8co/tracejit/internal/translate"
	"github.com/pelletier/go-toml/v2"
)

// Config is the decoded shape of a tracejit TOML configuration file.
type Config struct {
	// AllowList names the globals an OpGetGlobal may read without
	// raising the DisallowedGlobal sharp edge (via AllowListSet and
	// interp.Interpreter.AllowedGlobals). The lookaside registry does not
	// consult it.
	AllowList []string `toml:"allow_list"`

	// Translations maps host function name to primitive name, merged on
	// top of translate.Default() (entries here win on conflict).
	Translations map[string]string `toml:"translations"`

	// SharpEdges holds the [sharp_edges] table, keyed by edge name
	// ("reassign_traced_container", etc.). It is decoded only; no entry
	// point applies it to a sharpedge.Policy, each of them takes a single
	// uniform level instead.
	SharpEdges map[string]string `toml:"sharp_edges"`
}

// Load decodes a Config from r.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// LoadFile opens path and decodes its contents as a Config.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// TranslationTable builds a *translate.Table seeded with the defaults
// and then overlaid with c.Translations.
func (c *Config) TranslationTable() *translate.Table {
	t := translate.Default()
	for host, prim := range c.Translations {
		t.Set(host, prim)
	}
	return t
}

// AllowListSet returns c.AllowList as a set for O(1) membership checks.
func (c *Config) AllowListSet() map[string]bool {
	set := make(map[string]bool, len(c.AllowList))
	for _, name := range c.AllowList {
		set[name] = true
	}
	return set
}
