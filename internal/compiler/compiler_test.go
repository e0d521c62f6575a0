package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crux/internal/compiler"
	"crux/internal/errors"
	"crux/internal/gc"
)

func TestCompileSourceValidProgram(t *testing.T) {
	h := gc.NewHeap(0, 0, false)
	fn, err := compiler.CompileSource([]byte(`print(1 + 2);`), "<test>", h, nil)
	require.NoError(t, err)
	require.NotNil(t, fn)
	assert.Equal(t, 0, fn.Arity)
}

func TestCompileSourceReportsSyntaxError(t *testing.T) {
	h := gc.NewHeap(0, 0, false)
	_, err := compiler.CompileSource([]byte(`let x = ;`), "<test>", h, nil)
	require.Error(t, err)

	ce, ok := err.(*errors.CruxError)
	require.True(t, ok, "compile errors must be *errors.CruxError")
	assert.Equal(t, errors.CompileError, ce.Kind)
}

func TestCompileSourceReportsUnterminatedBlock(t *testing.T) {
	h := gc.NewHeap(0, 0, false)
	_, err := compiler.CompileSource([]byte(`fn f() { print(1);`), "<test>", h, nil)
	require.Error(t, err)
}
