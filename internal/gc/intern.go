package gc

import (
	"crux/internal/object"
	"crux/internal/table"
)

// Interner is the single process-wide (really: single-VM-wide) table
// mapping byte-sequence+hash to the canonical *object.String. It is owned
// by the Heap, not by any ModuleRecord, per spec §4.2, and reuses the
// same open-addressed table implementation as every other table in the
// runtime (component table, §2).
type Interner struct {
	heap *Heap
	t    *table.Table[string, *object.String]
}

func newInterner(h *Heap) *Interner {
	return &Interner{heap: h, t: table.New[string, *object.String](hashStringKey)}
}

func hashStringKey(s string) uint32 { return object.HashBytes([]byte(s)) }

// Copy implements copy_string: hash the input, reuse an existing entry on
// hit, otherwise allocate, track and insert a new String copying bytes.
func (in *Interner) Copy(bytes []byte) *object.String {
	key := string(bytes) // the table is keyed by string
	if s, ok := in.t.Get(key); ok {
		return s
	}
	buf := make([]byte, len(bytes))
	copy(buf, bytes)
	s := object.NewRawString(buf)
	in.heap.Track(s, len(buf)+16)
	in.t.Set(string(buf), s)
	return s
}

// Adopt implements take_string: on a hit, the caller-owned buffer is
// simply discarded (Go's GC reclaims it; there is no manual free here);
// on a miss, the buffer becomes the String's backing array directly.
func (in *Interner) Adopt(buf []byte) *object.String {
	key := string(buf)
	if s, ok := in.t.Get(key); ok {
		return s
	}
	s := object.NewRawString(buf)
	in.heap.Track(s, len(buf)+16)
	in.t.Set(key, s)
	return s
}

// sweepDead removes interner entries whose String was not marked this
// cycle, before the general sweep frees the underlying object. The
// interner is "weak" with respect to the GC: holding the canonical
// mapping never keeps a String alive by itself.
func (in *Interner) sweepDead() {
	in.t.RemoveWhere(func(_ string, s *object.String) bool {
		return !s.Marked
	})
}

// Count reports how many distinct strings are currently interned.
func (in *Interner) Count() int { return in.t.Count() }
