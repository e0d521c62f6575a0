package vm

import (
	"crux/internal/compiler"
	"crux/internal/object"
)

// NewREPLModule creates the persistent ModuleRecord an interactive session
// runs every line against. Unlike a file load's ModuleRecord (one per
// compileAndRun, cached by path) a REPL module is never inserted into
// ModuleCache: it isn't something another source file could `use`, and its
// globals must survive from one EvalLine call to the next.
func (vm *VM) NewREPLModule() *object.ModuleRecord {
	m := object.NewModuleRecord("<repl>", vm.Options.StackSize, vm.Options.MaxFrames)
	vm.Heap.Track(m, 64)
	vm.seedPrelude(m)
	return m
}

// EvalLine compiles src as a fresh top-level function and runs it as frame 0
// of m, exactly the shape compileAndRun gives a freshly loaded file, except
// m is reused across calls so locals declared with `let` at the top level
// keep behaving like module globals from one line to the next.
func (vm *VM) EvalLine(m *object.ModuleRecord, src []byte) (object.Value, error) {
	fn, err := compiler.CompileSource(src, m.Path, vm.Heap, m)
	if err != nil {
		return object.Nil, err
	}

	closure := &object.Closure{Function: fn}
	closure.Header().Kind = object.KindClosure
	vm.Heap.Track(closure, 24)

	m.Frames[0] = object.CallFrame{Closure: closure, IP: 0, SlotBase: m.StackTop}
	m.FrameCount = 1
	m.ModuleClosure = closure
	m.Push(object.Object(closure))

	return vm.execModule(m)
}
