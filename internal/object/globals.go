package object

import "crux/internal/table"

// GlobalTable is the per-module name->Value table, built on the shared
// open-addressed table implementation (spec 4.3) rather than a bare Go
// map, so globals, the module cache, and per-type method tables all reuse
// the same probing/tombstone logic.
type GlobalTable struct {
	t *table.Table[string, Value]
}

func NewGlobalTable() *GlobalTable {
	return &GlobalTable{t: table.New[string, Value](hashString)}
}

func hashString(s string) uint32 { return HashBytes([]byte(s)) }

func (g *GlobalTable) Define(name string, v Value) bool { return g.t.Set(name, v) }
func (g *GlobalTable) Get(name string) (Value, bool)     { return g.t.Get(name) }
func (g *GlobalTable) Set(name string, v Value) bool {
	if !g.t.Has(name) {
		return false
	}
	g.t.Set(name, v)
	return true
}
func (g *GlobalTable) Has(name string) bool   { return g.t.Has(name) }
func (g *GlobalTable) Delete(name string) bool { return g.t.Delete(name) }
func (g *GlobalTable) Names() []string         { return g.t.Keys() }
func (g *GlobalTable) Each(fn func(name string, v Value)) { g.t.Each(fn) }
