// cmd/crux/main.go
package main

import (
	"fmt"
	"os"

	"crux/internal/errors"
	"crux/internal/repl"
	"crux/internal/vm"
)

// Exit codes, spec §6/§7: 0 success, 2 file read error, 64 usage,
// 65 compile error, 70 runtime error, 1 unspecified failure.
const (
	exitSuccess     = 0
	exitUnspecified = 1
	exitFileRead    = 2
	exitUsage       = 64
	exitCompile     = 65
	exitRuntime     = 70
)

func main() {
	switch len(os.Args) {
	case 1:
		repl.Start(vm.New(vm.DefaultOptions()))
	case 2:
		runFile(os.Args[1])
	default:
		fmt.Fprintln(os.Stderr, "usage: crux [path]")
		os.Exit(exitUsage)
	}
}

func runFile(path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "crux: %v\n", err)
		os.Exit(exitFileRead)
	}

	opts := vm.DefaultOptions()
	opts.Args = os.Args[2:]
	m := vm.New(opts)
	_, err := m.RunFile(path)
	if err == nil {
		os.Exit(exitSuccess)
	}

	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(exitCodeFor(err))
}

// exitCodeFor distinguishes the two error surfaces spec §7 describes: a
// *errors.CruxError comes from the compiler, anything else is a runtime
// panic the VM already unwound every frame for.
func exitCodeFor(err error) int {
	if ce, ok := err.(*errors.CruxError); ok {
		switch ce.Kind {
		case errors.SyntaxError, errors.CompileError, errors.ImportError:
			return exitCompile
		default:
			return exitUnspecified
		}
	}
	return exitRuntime
}
