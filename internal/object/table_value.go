package object

import "crux/internal/table"

// hashKey is the comparable projection of a hashable Value used as the
// key type for the user-visible Table. Keys are restricted to Int, Float,
// Bool, Nil and String (compared by pointer, since interning guarantees
// uniqueness) - see IsHashable.
type hashKey struct {
	kind ValueKind
	num  uint64
	str  *String
}

func (v Value) toHashKey() hashKey {
	if s, ok := v.AsString(); ok {
		return hashKey{kind: VObject, str: s}
	}
	return hashKey{kind: v.Kind, num: v.num}
}

func hashHashKey(k hashKey) uint32 {
	if k.kind == VObject && k.str != nil {
		return k.str.Hash
	}
	h := uint32(k.kind) * 2654435761
	h ^= uint32(k.num)
	h ^= uint32(k.num >> 32)
	return h
}

// IsHashable reports whether v may be used as a Table key: Int, Bool, Nil,
// String, or Float other than NaN (NaN is excluded because it would hash
// and compare unequal to itself on every lookup, breaking the
// occupied-entries-are-retrievable invariant).
func IsHashable(v Value) bool {
	switch v.Kind {
	case VNil, VBool, VInt:
		return true
	case VFloat:
		f := v.AsFloat()
		return f == f // false for NaN
	case VObject:
		_, ok := v.AsString()
		return ok
	}
	return false
}

// Table is the user-visible Value->Value map. Keys are restricted to
// hashable Values, per IsHashable.
type Table struct {
	Obj
	t *table.Table[hashKey, Value]
	// keyValues mirrors t's keys as full Values (a hashKey alone cannot
	// recover the original String pointer's payload for iteration).
	keyValues map[hashKey]Value
}

func NewTable() *Table {
	return &Table{
		Obj:       Obj{Kind: KindTable},
		t:         table.New[hashKey, Value](hashHashKey),
		keyValues: make(map[hashKey]Value),
	}
}

func (tb *Table) Set(key, value Value) bool {
	hk := key.toHashKey()
	tb.keyValues[hk] = key
	return tb.t.Set(hk, value)
}

func (tb *Table) Get(key Value) (Value, bool) { return tb.t.Get(key.toHashKey()) }
func (tb *Table) Has(key Value) bool          { return tb.t.Has(key.toHashKey()) }
func (tb *Table) Delete(key Value) bool {
	hk := key.toHashKey()
	delete(tb.keyValues, hk)
	return tb.t.Delete(hk)
}
func (tb *Table) Count() int { return tb.t.Count() }

func (tb *Table) Each(fn func(key, value Value)) {
	tb.t.Each(func(hk hashKey, v Value) {
		fn(tb.keyValues[hk], v)
	})
}

func (tb *Table) Keys() []Value {
	keys := make([]Value, 0, tb.t.Count())
	tb.Each(func(k, _ Value) { keys = append(keys, k) })
	return keys
}

func (tb *Table) Values() []Value {
	values := make([]Value, 0, tb.t.Count())
	tb.Each(func(_, v Value) { values = append(values, v) })
	return values
}
