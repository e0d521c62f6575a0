package gc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crux/internal/gc"
)

// TestInterningIsIdempotent checks spec §8's law: interning applied twice
// yields the same pointer, and that distinct bytes never collide.
func TestInterningIsIdempotent(t *testing.T) {
	h := gc.NewHeap(0, 0, false)
	in := h.Interner()

	a := in.Copy([]byte("hello"))
	b := in.Copy([]byte("hello"))
	require.Same(t, a, b)

	c := in.Copy([]byte("world"))
	assert.NotSame(t, a, c)
	assert.Equal(t, "hello", string(a.Chars))
	assert.Equal(t, "world", string(c.Chars))
}

func TestInternedStringsWithSharedPrefixDontCollide(t *testing.T) {
	h := gc.NewHeap(0, 0, false)
	in := h.Interner()

	short := in.Copy([]byte("ab"))
	long := in.Copy([]byte("abc"))
	assert.NotSame(t, short, long)
}
