package object_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crux/internal/object"
)

func TestTableSetGetDelete(t *testing.T) {
	tb := object.NewTable()

	isNew := tb.Set(object.Int(1), object.Int(100))
	assert.True(t, isNew)
	isNew = tb.Set(object.Int(1), object.Int(200))
	assert.False(t, isNew, "overwriting an existing key must not report as new")

	v, ok := tb.Get(object.Int(1))
	require.True(t, ok)
	assert.Equal(t, int32(200), v.AsInt())

	assert.True(t, tb.Delete(object.Int(1)))
	assert.False(t, tb.Has(object.Int(1)))
	assert.Equal(t, 0, tb.Count())
}

// TestTableRejectsNaNKey checks spec §9's resolved Open Question: a Table
// must never accept a NaN key, since NaN would hash and compare unequal to
// itself on every subsequent lookup.
func TestTableRejectsNaNKey(t *testing.T) {
	nan := object.Float(math.NaN())
	require.False(t, object.IsHashable(nan), "callers must check IsHashable before Table.Set")
}

func TestTableKeysPreserveInsertionOrderWithoutDeletes(t *testing.T) {
	tb := object.NewTable()
	tb.Set(object.Int(3), object.Nil)
	tb.Set(object.Int(1), object.Nil)
	tb.Set(object.Int(4), object.Nil)

	keys := tb.Keys()
	require.Len(t, keys, 3)
	ints := make([]int32, len(keys))
	for i, k := range keys {
		ints[i] = k.AsInt()
	}
	assert.Equal(t, []int32{3, 1, 4}, ints)
}
