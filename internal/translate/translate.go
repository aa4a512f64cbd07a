// Package translate holds the table the interpreter consults to decide
// which symbolic primitive (from package prims) a recognized host
// function name maps to, e.g. "torch.add" -> "add". Entries are data,
// not behavior: the table only says which primitive applies, never how
// to run it — that stays in prims.Library.
package translate

// Table maps a fully-qualified host function name to the prims.Library
// key that implements it symbolically.
type Table struct {
	entries map[string]string
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[string]string)}
}

// Default returns a Table pre-populated with the obvious arithmetic
// spellings a host program is likely to call by name, matching
// prims.Library's key set one-for-one.
func Default() *Table {
	t := New()
	t.Set("add", "add")
	t.Set("sub", "sub")
	t.Set("mul", "mul")
	t.Set("div", "div")
	t.Set("eq", "eq")
	t.Set("gt", "gt")
	return t
}

// Set installs or overrides the mapping from hostName to primName.
func (t *Table) Set(hostName, primName string) {
	t.entries[hostName] = primName
}

// Lookup returns the primitive name bound to hostName, if any.
func (t *Table) Lookup(hostName string) (string, bool) {
	name, ok := t.entries[hostName]
	return name, ok
}

// Len reports how many entries the table currently holds.
func (t *Table) Len() int { return len(t.entries) }
