// Package repl implements the interactive loop spec §6 describes: read one
// line, interpret it, report errors without exiting, repeat.
package repl

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"crux/internal/object"
	"crux/internal/vm"
)

// Start runs the REPL against m until stdin closes or the user types
// "exit". Errors of either surface (compile or runtime) are printed to
// stderr and the loop continues, per spec §7: "the REPL catches panics and
// returns to the prompt without exiting the process."
func Start(m *vm.VM) {
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Println("crux REPL | type 'exit' to quit")
	}

	mod := m.NewREPLModule()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if interactive {
			fmt.Print(">>> ")
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "exit" {
			return
		}
		if line == "" {
			continue
		}

		evalLine(m, mod, line)
	}
}

// evalLine isolates a single line's Go-level panics (an out-of-bounds slot,
// say, from a malformed chunk) so one bad line cannot kill the session in
// addition to the ordinary VM-panic-as-error path EvalLine already handles.
func evalLine(m *vm.VM, mod *object.ModuleRecord, line string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "panic:", r)
		}
	}()

	v, err := m.EvalLine(mod, []byte(line+"\n"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return
	}
	if v != object.Nil {
		fmt.Println(object.ToDisplayString(v))
	}
}
