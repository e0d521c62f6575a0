package object_test

import (
	"math"
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crux/internal/object"
)

func TestAddIntStaysInt(t *testing.T) {
	v, bytes, err := object.Add(object.Int(1), object.Int(2))
	require.NoError(t, err)
	require.Nil(t, bytes)
	assert.True(t, v.IsInt())
	assert.Equal(t, int32(3), v.AsInt())
}

func TestAddIntAndFloatPromotes(t *testing.T) {
	v, _, err := object.Add(object.Int(1), object.Float(2.5))
	require.NoError(t, err)
	assert.True(t, v.IsFloat())
	assert.Equal(t, 3.5, v.AsFloat())
}

func TestAddMismatchedTypesIsATypeError(t *testing.T) {
	_, _, err := object.Add(object.Int(1), object.Bool(true))
	if err == nil {
		t.Fatalf("expected a type error, got a clean result: %# v", pretty.Formatter(err))
	}
}

// TestIntFloatRoundTrip checks spec §8's law: int(float(n)) == n for
// integers within Int's range.
func TestIntFloatRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 127, -128, 1 << 20, -(1 << 20)} {
		f := float64(n)
		got := int32(f)
		assert.Equal(t, n, got, "round-trip failed for %# v", pretty.Formatter(n))
	}
}

func TestIsHashableRejectsNaNButAcceptsOtherFloats(t *testing.T) {
	nan := object.Float(math.NaN())
	assert.False(t, object.IsHashable(nan), "NaN must never be usable as a table key")
	assert.True(t, object.IsHashable(object.Float(1.5)))
	assert.True(t, object.IsHashable(object.Int(3)))
	assert.True(t, object.IsHashable(object.Nil))
	assert.True(t, object.IsHashable(object.Bool(false)))
}

func TestDisplayStringRoundTripsPrimitives(t *testing.T) {
	cases := []object.Value{
		object.Int(42),
		object.Float(3.5),
		object.Bool(true),
		object.Bool(false),
		object.Nil,
	}
	want := []string{"42", "3.5", "true", "false", "nil"}
	for i, v := range cases {
		assert.Equal(t, want[i], object.ToDisplayString(v))
	}
}
