// Package table implements the single open-addressed hash table design
// reused throughout the runtime: the string interner, the module cache,
// the per-type native method tables, and the user-visible Table value all
// sit on top of this implementation. Linear probing, power-of-two
// capacity, 75% max load factor, tombstone deletion.
package table

const maxLoad = 0.75

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotOccupied
)

type entry[K comparable, V any] struct {
	state slotState
	key   K
	value V
}

// Table is a generic open-addressed hash map. Hash is supplied by the
// caller because key types differ across the table's reuse sites (raw
// string bytes for the interner, resolved paths for the module cache,
// method names for per-type tables, arbitrary hashable Values for the
// user-visible table).
type Table[K comparable, V any] struct {
	entries    []entry[K, V]
	count      int // occupied, not counting tombstones
	tombstones int
	hash       func(K) uint32
	// insertOrder records keys in the order they were first inserted, so
	// iteration matches insertion order as long as nothing has been
	// deleted (per spec: order is undefined after a delete).
	insertOrder []K
}

// New creates an empty table using hashFn to hash keys of type K.
func New[K comparable, V any](hashFn func(K) uint32) *Table[K, V] {
	return &Table[K, V]{hash: hashFn}
}

func (t *Table[K, V]) Count() int    { return t.count }
func (t *Table[K, V]) Capacity() int { return len(t.entries) }

// Set inserts or updates key->value. Returns true if this created a new
// key (as opposed to overwriting an existing one).
func (t *Table[K, V]) Set(key K, value V) bool {
	if len(t.entries) == 0 || float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}
	idx, found := t.probe(key)
	isNew := !found
	if isNew {
		t.count++
		t.insertOrder = append(t.insertOrder, key)
	}
	t.entries[idx] = entry[K, V]{state: slotOccupied, key: key, value: value}
	return isNew
}

// Get retrieves the value for key.
func (t *Table[K, V]) Get(key K) (V, bool) {
	var zero V
	if len(t.entries) == 0 {
		return zero, false
	}
	idx, found := t.probe(key)
	if !found {
		return zero, false
	}
	return t.entries[idx].value, true
}

// Has reports whether key is present.
func (t *Table[K, V]) Has(key K) bool {
	_, ok := t.Get(key)
	return ok
}

// Delete removes key, writing a tombstone so later probes still traverse
// past this slot. Returns true if the key was present.
func (t *Table[K, V]) Delete(key K) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx, found := t.probe(key)
	if !found {
		return false
	}
	var zero V
	t.entries[idx] = entry[K, V]{state: slotTombstone, value: zero}
	t.count--
	t.tombstones++
	for i, k := range t.insertOrder {
		if k == key {
			t.insertOrder = append(t.insertOrder[:i], t.insertOrder[i+1:]...)
			break
		}
	}
	return true
}

// probe runs the linear probe sequence (hash+i) mod capacity and returns
// the slot index for key: either the occupied slot holding it, or the
// first empty/tombstone slot it should occupy on insert. found reports
// whether an occupied slot for key was located.
func (t *Table[K, V]) probe(key K) (idx int, found bool) {
	cap := len(t.entries)
	mask := uint32(cap - 1)
	start := t.hash(key) & mask
	var firstTombstone = -1
	for i := uint32(0); i < uint32(cap); i++ {
		slot := (start + i) & mask
		e := &t.entries[slot]
		switch e.state {
		case slotEmpty:
			if firstTombstone != -1 {
				return firstTombstone, false
			}
			return int(slot), false
		case slotTombstone:
			if firstTombstone == -1 {
				firstTombstone = int(slot)
			}
		case slotOccupied:
			if e.key == key {
				return int(slot), true
			}
		}
	}
	if firstTombstone != -1 {
		return firstTombstone, false
	}
	// Unreachable under the 75% load factor invariant: every slot occupied.
	return -1, false
}

func nextPow2(n int) int {
	if n < 8 {
		return 8
	}
	p := 8
	for p < n {
		p *= 2
	}
	return p
}

func (t *Table[K, V]) grow() {
	newCap := nextPow2(int(float64(t.count+1)/maxLoad) + 1)
	if newCap <= len(t.entries) {
		newCap = len(t.entries) * 2
		if newCap == 0 {
			newCap = 8
		}
	}
	old := t.entries
	t.entries = make([]entry[K, V], newCap)
	t.count = 0
	t.tombstones = 0
	order := t.insertOrder
	t.insertOrder = nil
	for _, k := range order {
		for _, e := range old {
			if e.state == slotOccupied && e.key == k {
				idx, _ := t.probe(k)
				t.entries[idx] = entry[K, V]{state: slotOccupied, key: k, value: e.value}
				t.count++
				t.insertOrder = append(t.insertOrder, k)
				break
			}
		}
	}
}

// Each iterates occupied entries in the order their keys were inserted. A
// deleted key leaves that order; inserting it again places it last.
func (t *Table[K, V]) Each(fn func(key K, value V)) {
	for _, k := range t.insertOrder {
		idx, found := t.probe(k)
		if found {
			fn(k, t.entries[idx].value)
		}
	}
}

// Keys returns the keys currently present, in insertion order.
func (t *Table[K, V]) Keys() []K {
	keys := make([]K, 0, t.count)
	t.Each(func(k K, _ V) { keys = append(keys, k) })
	return keys
}

// RemoveWhere deletes every entry for which shouldRemove returns true.
// Used by the GC sweep to drop interner entries whose String is unmarked.
func (t *Table[K, V]) RemoveWhere(shouldRemove func(key K, value V) bool) {
	var toDelete []K
	t.Each(func(k K, v V) {
		if shouldRemove(k, v) {
			toDelete = append(toDelete, k)
		}
	})
	for _, k := range toDelete {
		t.Delete(k)
	}
}
