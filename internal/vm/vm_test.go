package vm_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"crux/internal/vm"
)

func runSource(t *testing.T, src string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.crx")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	m := vm.New(vm.DefaultOptions())
	var out bytes.Buffer
	m.Out = &out
	_, err := m.RunFile(path)
	return out.String(), err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, err := runSource(t, `print(1 + 2 * 3);`)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestClosureCapturesCounter(t *testing.T) {
	src := `
fn make() {
	let x = 10;
	fn inc() {
		x = x + 1;
		return x;
	}
	return inc;
}
let c = make();
print(c());
print(c());
`
	out, err := runSource(t, src)
	require.NoError(t, err)
	require.Equal(t, "11\n12\n", out)
}

func TestTableRoundTrip(t *testing.T) {
	src := `
let t = {};
t["a"] = 1;
t["b"] = 2;
print(length(t));
`
	out, err := runSource(t, src)
	require.NoError(t, err)
	require.Equal(t, "2\n", out)
}

func TestErrorResultMatch(t *testing.T) {
	src := `
let r = sqrt(-1);
match (r) {
	Ok(v) => print(v),
	Err(e) => print("bad"),
}
`
	out, err := runSource(t, src)
	require.NoError(t, err)
	require.Equal(t, "bad\n", out)
}

func TestModuleImport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "m.crx"),
		[]byte(`pub fn add(a, b) { return a + b; }`),
		0o644,
	))
	mainPath := filepath.Join(dir, "main.crx")
	require.NoError(t, os.WriteFile(
		mainPath,
		[]byte(`use {add} from "m"; print(add(2, 3));`),
		0o644,
	))

	m := vm.New(vm.DefaultOptions())
	var out bytes.Buffer
	m.Out = &out
	_, err := m.RunFile(mainPath)
	require.NoError(t, err)
	require.Equal(t, "5\n", out.String())
}

func TestGCSurvivesChurn(t *testing.T) {
	src := `
let keep = [1, 2, 3];
let i = 0;
while (i < 10000) {
	let junk = [i, i, i];
	i = i + 1;
}
print(length(keep));
`
	dir := t.TempDir()
	path := filepath.Join(dir, "main.crx")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	// The loop allocates about 800 KB of arrays, below the default 1 MiB
	// threshold, so a smaller threshold is needed for collections to run.
	opts := vm.DefaultOptions()
	opts.InitialGCThreshold = 64 * 1024
	m := vm.New(opts)
	var out bytes.Buffer
	m.Out = &out
	_, err := m.RunFile(path)
	require.NoError(t, err)
	require.Equal(t, "3\n", out.String())
	require.Less(t, m.Heap.LiveCount(), 10000, "churned arrays must have been reclaimed")
}
