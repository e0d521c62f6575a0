package table_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crux/internal/table"
)

func hashInt(k int) uint32 { return uint32(k) }

func TestSetGetOverwrite(t *testing.T) {
	tb := table.New[int, string](hashInt)

	isNew := tb.Set(1, "one")
	assert.True(t, isNew)
	isNew = tb.Set(1, "uno")
	assert.False(t, isNew, "overwriting an existing key must not report as new")

	v, ok := tb.Get(1)
	require.True(t, ok)
	assert.Equal(t, "uno", v)
	assert.Equal(t, 1, tb.Count())
}

func TestDeleteThenReinsert(t *testing.T) {
	tb := table.New[int, string](hashInt)
	tb.Set(5, "five")

	assert.True(t, tb.Delete(5))
	assert.False(t, tb.Delete(5), "deleting twice must not succeed the second time")

	_, ok := tb.Get(5)
	assert.False(t, ok)

	isNew := tb.Set(5, "cinco")
	assert.True(t, isNew, "a tombstoned slot must accept a fresh insert")
	v, _ := tb.Get(5)
	assert.Equal(t, "cinco", v)
}

// TestLoadFactorAfterGrowth exercises spec §8's table invariant: occupied
// entries stay retrievable and never exceed 75% of capacity once the table
// has settled after a resize.
func TestLoadFactorAfterGrowth(t *testing.T) {
	tb := table.New[int, int](hashInt)
	const n = 500
	for i := 0; i < n; i++ {
		tb.Set(i, i*i)
	}

	require.LessOrEqual(t, float64(tb.Count()), float64(tb.Capacity())*0.75,
		fmt.Sprintf("count=%d capacity=%d", tb.Count(), tb.Capacity()))

	for i := 0; i < n; i++ {
		v, ok := tb.Get(i)
		require.True(t, ok, "key %d must survive growth", i)
		assert.Equal(t, i*i, v)
	}
}

func TestInsertionOrderPreservedWithoutDeletes(t *testing.T) {
	tb := table.New[int, int](hashInt)
	want := []int{3, 1, 4, 1, 5, 9, 2, 6}
	seen := map[int]bool{}
	var distinct []int
	for _, k := range want {
		if !seen[k] {
			distinct = append(distinct, k)
			seen[k] = true
		}
		tb.Set(k, k)
	}

	assert.Equal(t, distinct, tb.Keys())
}
