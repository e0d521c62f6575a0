package vm

import (
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"crux/internal/compiler"
	"crux/internal/object"
)

// loadAndExecute implements spec §4.8's algorithm for a fresh top-level
// entry point: compile path, wrap it in a ModuleRecord, run it, and leave
// it cached (a later `use`/`import` of the same path reuses the result).
func (vm *VM) loadAndExecute(absPath string) (object.Value, error) {
	if cached, ok := vm.ModuleCache.Get(absPath); ok {
		return object.Nil, pkgerrors.Errorf("module %s already loaded (entry point must be loaded once)", cached.Path)
	}
	return vm.compileAndRun(absPath)
}

// resolveImportPath turns the module path string literal of a `use`
// declaration into either a native module name (returned as-is, ok=false meaning "not
// a filesystem path") or a normalized absolute path resolved relative to
// the importing module's own directory.
func (vm *VM) resolveImportPath(raw, fromPath string) (string, bool) {
	if _, ok := vm.NativeModules[raw]; ok {
		return raw, false
	}
	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(fromPath), path)
	}
	if filepath.Ext(path) == "" {
		path += ".crx"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		abs = real
	}
	return abs, true
}

func (vm *VM) onImportStack(path string) bool {
	for _, p := range vm.ImportStack {
		if p == path {
			return true
		}
	}
	return false
}

// loadModule implements the shared body of `import` and `use`: cycle
// check, cache check, compile-execute-cache, import-stack push/pop and
// current-module swap, per spec §4.8 steps 1-4.
func (vm *VM) loadModule(path string) (*object.ModuleRecord, error) {
	if vm.onImportStack(path) {
		return nil, vm.panicErr(object.ErrImport, "circular import of "+path)
	}
	if m, ok := vm.ModuleCache.Get(path); ok {
		return m, nil
	}
	vm.ImportStack = append(vm.ImportStack, path)
	defer func() { vm.ImportStack = vm.ImportStack[:len(vm.ImportStack)-1] }()

	_, err := vm.compileAndRun(path)
	if err != nil {
		return nil, err
	}
	m, _ := vm.ModuleCache.Get(path)
	return m, nil
}

// compileAndRun reads, compiles and executes path as a brand-new module,
// inserting it into the cache before running its top level so a cyclic
// self-import (already caught by onImportStack before this is called)
// would otherwise find a half-initialized module rather than looping.
func (vm *VM) compileAndRun(path string) (object.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return object.Nil, pkgerrors.Wrapf(err, "cannot read module %s", path)
	}

	m := object.NewModuleRecord(path, vm.Options.StackSize, vm.Options.MaxFrames)
	vm.seedPrelude(m)
	fn, err := compiler.CompileSource(src, path, vm.Heap, m)
	if err != nil {
		return object.Nil, err
	}

	closure := &object.Closure{Function: fn, Upvalues: nil}
	closure.Header().Kind = object.KindClosure
	vm.Heap.Track(closure, 24)
	m.ModuleClosure = closure

	vm.Heap.Track(m, 64)
	vm.ModuleCache.Set(path, m)

	m.Frames[0] = object.CallFrame{Closure: closure, IP: 0, SlotBase: 0}
	m.FrameCount = 1
	m.Push(object.Object(closure))

	result, err := vm.execModule(m)
	if err != nil {
		return object.Nil, err
	}
	return result, nil
}

// handleImportFrom implements `use {name, ...} from "path"`: load (or
// reuse) the target module/native table and copy the requested names into
// the importing module's globals.
func (vm *VM) handleImportFrom(m *object.ModuleRecord, chunk *object.Chunk, frame *object.CallFrame) error {
	pathIdx := vm.readByte(chunk, frame)
	path := vm.constString(chunk, pathIdx)
	count := int(vm.readByte(chunk, frame))
	names := make([]string, count)
	for i := 0; i < count; i++ {
		idx := vm.readByte(chunk, frame)
		names[i] = vm.constString(chunk, idx)
	}

	resolved, isFile := vm.resolveImportPath(path, m.Path)

	if !isFile {
		tb := vm.NativeModules[resolved]
		for _, name := range names {
			v, ok := tb.Get(object.Object(vm.Heap.Interner().Copy([]byte(name))))
			if !ok {
				return vm.panicErr(object.ErrImport, "native module "+resolved+" has no member "+name)
			}
			m.Globals.Define(name, v)
		}
		return nil
	}

	target, err := vm.loadModule(resolved)
	if err != nil {
		return err
	}
	for _, name := range names {
		v, ok := target.Globals.Get(name)
		if !ok {
			return vm.panicErr(object.ErrImport, "module "+resolved+" has no exported name "+name)
		}
		m.Globals.Define(name, v)
	}
	return nil
}

// handleUseAs implements `use "path" as name`: bind the whole module (or
// native table) under a single global name instead of individual members.
func (vm *VM) handleUseAs(m *object.ModuleRecord, chunk *object.Chunk, frame *object.CallFrame) error {
	pathIdx := vm.readByte(chunk, frame)
	path := vm.constString(chunk, pathIdx)
	nameIdx := vm.readByte(chunk, frame)
	bindName := vm.constString(chunk, nameIdx)

	resolved, isFile := vm.resolveImportPath(path, m.Path)

	if !isFile {
		tb := vm.NativeModules[resolved]
		m.Globals.Define(bindName, object.Object(tb))
		return nil
	}

	target, err := vm.loadModule(resolved)
	if err != nil {
		return err
	}
	m.Globals.Define(bindName, object.Object(target))
	return nil
}
