// Package vm implements the dispatch loop, call/return and closure
// machinery described in spec §4.6/§4.7, and owns every piece of state
// spec §9's design note requires to be "encapsulated in a single VM
// context passed explicitly to every native" rather than scattered across
// process-wide statics: the heap, the module cache, the per-type method
// tables, the native-module registry and the match handler.
package vm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"crux/internal/bytecode"
	"crux/internal/gc"
	"crux/internal/object"
	"crux/internal/stdlib"
	"crux/internal/table"
)

// Options configures stack/frame sizing and GC tuning, read at VM
// construction rather than from environment (ambient-stack "Configuration"
// section of SPEC_FULL.md).
type Options struct {
	StackSize          int
	MaxFrames          int
	InitialGCThreshold int
	GCGrowFactor       float64
	Verbose            bool
	Args               []string
}

func DefaultOptions() Options {
	return Options{
		StackSize:          object.DefaultStackSize,
		MaxFrames:          object.DefaultMaxFrames,
		InitialGCThreshold: gc.DefaultInitialThreshold,
		GCGrowFactor:       gc.DefaultGrowFactor,
	}
}

// matchHandler is spec §4.9's `match_handler`: the value currently being
// matched, and the value bound by the last successful pattern, if any.
type matchHandler struct {
	target  object.Value
	bind    object.Value
	hasBind bool
}

// VM is the single execution context. Every opcode handler reaches heap
// state, the module cache and method tables through the *VM. Native
// functions receive no *VM; they reach the heap through the *gc.Heap
// they were built with.
type VM struct {
	Heap          *gc.Heap
	ModuleCache   *table.Table[string, *object.ModuleRecord]
	ImportStack   []string
	Methods       map[object.Kind]*table.Table[string, *object.NativeMethod]
	NativeModules map[string]*object.Table
	Prelude       map[string]object.Value
	Args          []string
	Options       Options

	// Out is where OpPrint writes; defaults to os.Stdout so the CLI and
	// REPL need not set it, but tests can swap in a buffer.
	Out io.Writer

	Current *object.ModuleRecord
	match   matchHandler

	// roots is the root-guard scratch stack that RootGuard pushes onto;
	// every value on it is marked as a root (spec §9's root-guard design
	// note). Nothing in this tree calls RootGuard: natives have no *VM,
	// and the stdlib natives link objects with Heap.Track, which never
	// collects.
	roots []object.Value
}

func New(opts Options) *VM {
	if opts.StackSize <= 0 {
		opts = DefaultOptions()
	}
	h := gc.NewHeap(opts.InitialGCThreshold, opts.GCGrowFactor, opts.Verbose)
	return &VM{
		Heap:          h,
		ModuleCache:   table.New[string, *object.ModuleRecord](hashPath),
		Methods:       make(map[object.Kind]*table.Table[string, *object.NativeMethod]),
		NativeModules: stdlib.Build(h),
		Prelude:       stdlib.Prelude(h),
		Args:          opts.Args,
		Options:       opts,
		Out:           os.Stdout,
	}
}

// seedPrelude defines every always-available native (spec §8's bare
// `length`/`sqrt` calls) into a freshly created module's globals.
func (vm *VM) seedPrelude(m *object.ModuleRecord) {
	for name, v := range vm.Prelude {
		m.Globals.Define(name, v)
	}
}

func hashPath(s string) uint32 { return object.HashBytes([]byte(s)) }

// RootGuard pushes v onto the scratch root stack and returns a function
// that pops it; callers `defer vm.RootGuard(v)()` around a sequence of
// allocations that must not be collected before they are attached to a
// permanent root.
func (vm *VM) RootGuard(v object.Value) func() {
	vm.roots = append(vm.roots, v)
	n := len(vm.roots)
	return func() {
		if len(vm.roots) >= n {
			vm.roots = vm.roots[:n-1]
		}
	}
}

// markRoots is passed to Heap.Collect: it enumerates every GC root this VM
// owns. The interner is scanned/pruned by gc.Heap.Collect itself.
func (vm *VM) markRoots(h *gc.Heap) {
	vm.ModuleCache.Each(func(_ string, m *object.ModuleRecord) { h.MarkObject(m) })
	for _, t := range vm.NativeModules {
		t.Each(func(_, v object.Value) { h.MarkValue(v) })
	}
	for _, mt := range vm.Methods {
		mt.Each(func(_ string, m *object.NativeMethod) { h.MarkObject(m) })
	}
	for _, v := range vm.roots {
		h.MarkValue(v)
	}
	h.MarkValue(vm.match.target)
	if vm.match.hasBind {
		h.MarkValue(vm.match.bind)
	}
	if vm.Current != nil {
		h.MarkObject(vm.Current)
	}
}

// track runs a pending collection, if the threshold was already crossed
// by earlier allocations, before linking o into the heap. The order
// matters: o is not reachable through any root yet (the caller hasn't
// pushed or stored it), so collecting after Track would sweep o as
// garbage in the same cycle it was allocated. Collecting first means any
// sweep only ever sees objects the mutator has already had a chance to
// root, matching clox's reallocate, which runs the GC before the
// allocation that triggered it rather than after.
func (vm *VM) track(o object.HeapObject, size int) {
	if vm.Heap.ShouldCollect() {
		vm.Heap.Collect(vm.markRoots)
	}
	vm.Heap.Track(o, size)
}

// RunFile compiles and executes path as the program's entry module.
func (vm *VM) RunFile(path string) (object.Value, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return object.Nil, pkgerrors.Wrap(err, "resolving entry path")
	}
	return vm.loadAndExecute(abs)
}

// execModule runs m's top-level closure (already pushed as frame 0) to
// completion, implementing the dispatch loop of spec §4.6.
func (vm *VM) execModule(m *object.ModuleRecord) (object.Value, error) {
	prev := vm.Current
	vm.Current = m
	defer func() { vm.Current = prev }()

	for m.FrameCount > 0 {
		frame := &m.Frames[m.FrameCount-1]
		chunk := frame.Closure.Function.Chunk

		if frame.IP >= len(chunk.Code) {
			return object.Nil, vm.panicErr(object.ErrRuntime, "program counter ran past the end of the chunk.")
		}
		op := bytecode.OpCode(chunk.Code[frame.IP])
		frame.IP++

		switch op {
		case bytecode.OpConstant:
			idx := vm.readByte(chunk, frame)
			m.Push(chunk.Constants[idx])

		case bytecode.OpNil:
			m.Push(object.Nil)
		case bytecode.OpTrue:
			m.Push(object.Bool(true))
		case bytecode.OpFalse:
			m.Push(object.Bool(false))
		case bytecode.OpSmallInt:
			b := vm.readByte(chunk, frame)
			m.Push(object.Int(int32(int8(b))))

		case bytecode.OpDefineGlobal:
			idx := vm.readByte(chunk, frame)
			name := vm.constString(chunk, idx)
			v, _ := m.Pop()
			m.Globals.Define(name, v)

		case bytecode.OpGetGlobal:
			idx := vm.readByte(chunk, frame)
			name := vm.constString(chunk, idx)
			v, ok := m.Globals.Get(name)
			if !ok {
				return object.Nil, vm.panicErr(object.ErrName, fmt.Sprintf("undefined variable %q.", name))
			}
			m.Push(v)

		case bytecode.OpSetGlobal:
			idx := vm.readByte(chunk, frame)
			name := vm.constString(chunk, idx)
			if !m.Globals.Set(name, m.Peek(0)) {
				return object.Nil, vm.panicErr(object.ErrName, fmt.Sprintf("undefined variable %q.", name))
			}

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(chunk, frame))
			m.Push(m.Stack[frame.SlotBase+slot])

		case bytecode.OpSetLocal:
			slot := int(vm.readByte(chunk, frame))
			m.Stack[frame.SlotBase+slot] = m.Peek(0)

		case bytecode.OpGetUpvalue:
			idx := int(vm.readByte(chunk, frame))
			m.Push(frame.Closure.Upvalues[idx].Get())

		case bytecode.OpSetUpvalue:
			idx := int(vm.readByte(chunk, frame))
			frame.Closure.Upvalues[idx].Set(m.Peek(0))

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(m, m.StackTop-1)
			m.Pop()

		case bytecode.OpAdd:
			b, _ := m.Pop()
			a, _ := m.Pop()
			res, bytes, err := object.Add(a, b)
			if err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			if bytes != nil {
				res = object.Object(vm.Heap.Interner().Copy(bytes))
			}
			m.Push(res)

		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
			bytecode.OpShiftLeft, bytecode.OpShiftRight:
			b, _ := m.Pop()
			a, _ := m.Pop()
			res, err := vm.binaryArith(op, a, b)
			if err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(res)

		case bytecode.OpNegate:
			a, _ := m.Pop()
			res, err := object.Negate(a)
			if err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(res)

		case bytecode.OpNot:
			a, _ := m.Pop()
			m.Push(object.Bool(!object.IsTruthy(a)))

		case bytecode.OpEqual:
			b, _ := m.Pop()
			a, _ := m.Pop()
			m.Push(object.Bool(object.Equal(a, b)))

		case bytecode.OpNotEqual:
			b, _ := m.Pop()
			a, _ := m.Pop()
			m.Push(object.Bool(!object.Equal(a, b)))

		case bytecode.OpLess, bytecode.OpGreater, bytecode.OpLessEqual, bytecode.OpGreaterEqual:
			b, _ := m.Pop()
			a, _ := m.Pop()
			res, err := vm.compare(op, a, b)
			if err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(object.Bool(res))

		case bytecode.OpJump:
			off := vm.readShort(chunk, frame)
			frame.IP += int(off)

		case bytecode.OpJumpIfFalse:
			off := vm.readShort(chunk, frame)
			v, _ := m.Pop()
			if !object.IsTruthy(v) {
				frame.IP += int(off)
			}

		case bytecode.OpJumpIfFalsePeek:
			off := vm.readShort(chunk, frame)
			if !object.IsTruthy(m.Peek(0)) {
				frame.IP += int(off)
			}

		case bytecode.OpLoop:
			off := vm.readShort(chunk, frame)
			frame.IP -= int(off)

		case bytecode.OpCall:
			argc := int(vm.readByte(chunk, frame))
			if err := vm.call(m, argc); err != nil {
				return object.Nil, err
			}

		case bytecode.OpClosure:
			idx := vm.readByte(chunk, frame)
			fnVal := chunk.Constants[idx]
			fnObj, _ := fnVal.AsObject().(*object.Function)
			closure := &object.Closure{Function: fnObj, Upvalues: make([]*object.Upvalue, fnObj.UpvalueCount)}
			for i := 0; i < fnObj.UpvalueCount; i++ {
				isLocal := vm.readByte(chunk, frame) != 0
				index := int(vm.readByte(chunk, frame))
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(m, frame.SlotBase+index)
				} else {
					closure.Upvalues[i] = frame.Closure.Upvalues[index]
				}
			}
			closure.Header().Kind = object.KindClosure
			vm.track(closure, 24+8*len(closure.Upvalues))
			m.Push(object.Object(closure))

		case bytecode.OpReturn:
			var result object.Value = object.Nil
			if m.StackTop > frame.SlotBase {
				result, _ = m.Pop()
			}
			vm.closeUpvalues(m, frame.SlotBase)
			m.StackTop = frame.SlotBase
			m.FrameCount--
			if m.FrameCount == 0 {
				return result, nil
			}
			m.Push(result)

		case bytecode.OpNewArray:
			count := int(vm.readShort(chunk, frame))
			arr := &object.Array{Elements: make([]object.Value, count)}
			for i := count - 1; i >= 0; i-- {
				arr.Elements[i], _ = m.Pop()
			}
			arr.Header().Kind = object.KindArray
			vm.track(arr, 32+16*count)
			m.Push(object.Object(arr))

		case bytecode.OpNewTable:
			count := int(vm.readShort(chunk, frame))
			tb := object.NewTable()
			for i := 0; i < count; i++ {
				val, _ := m.Pop()
				key, _ := m.Pop()
				if !object.IsHashable(key) {
					return object.Nil, vm.panicErr(object.ErrValue, "table key is not hashable.")
				}
				tb.Set(key, val)
			}
			vm.track(tb, 32+16*count)
			m.Push(object.Object(tb))

		case bytecode.OpGetIndex:
			idx, _ := m.Pop()
			coll, _ := m.Pop()
			v, err := vm.getIndex(coll, idx)
			if err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(v)

		case bytecode.OpSetIndex:
			val, _ := m.Pop()
			idx, _ := m.Pop()
			coll, _ := m.Pop()
			if err := vm.setIndex(coll, idx, val); err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(val)

		case bytecode.OpGetField:
			idx := vm.readByte(chunk, frame)
			name := vm.constString(chunk, idx)
			recv, _ := m.Pop()
			v, err := vm.getField(recv, name)
			if err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(v)

		case bytecode.OpSetField:
			idx := vm.readByte(chunk, frame)
			name := vm.constString(chunk, idx)
			val, _ := m.Pop()
			recv, _ := m.Pop()
			if err := vm.setField(recv, name, val); err != nil {
				return object.Nil, vm.panicFromErr(err)
			}
			m.Push(val)

		case bytecode.OpNewStruct:
			typeIdx := vm.readByte(chunk, frame)
			fieldCount := int(vm.readByte(chunk, frame))
			typeVal := chunk.Constants[typeIdx]
			st, _ := typeVal.AsObject().(*object.StructType)
			inst := &object.StructInstance{Type: st, Fields: make(map[string]object.Value, fieldCount)}
			inst.Header().Kind = object.KindStructInstance
			names := []string{}
			if st != nil {
				names = st.Fields
			}
			for i := fieldCount - 1; i >= 0; i-- {
				v, _ := m.Pop()
				if i < len(names) {
					inst.Fields[names[i]] = v
				}
			}
			vm.track(inst, 32+24*fieldCount)
			m.Push(object.Object(inst))

		case bytecode.OpImportFrom:
			if err := vm.handleImportFrom(m, chunk, frame); err != nil {
				return object.Nil, err
			}

		case bytecode.OpUseAs:
			if err := vm.handleUseAs(m, chunk, frame); err != nil {
				return object.Nil, err
			}

		case bytecode.OpSetMatchTarget:
			v, _ := m.Pop()
			vm.match = matchHandler{target: v}

		case bytecode.OpMatchTestOk:
			r, ok := vm.match.target.AsObject().(*object.Result)
			m.Push(object.Bool(ok && r.IsOk))

		case bytecode.OpMatchTestErr:
			r, ok := vm.match.target.AsObject().(*object.Result)
			m.Push(object.Bool(ok && !r.IsOk))

		case bytecode.OpBindOkValue:
			if r, ok := vm.match.target.AsObject().(*object.Result); ok {
				vm.match.bind = r.Value
				vm.match.hasBind = true
			}

		case bytecode.OpBindErrValue:
			if r, ok := vm.match.target.AsObject().(*object.Result); ok {
				vm.match.bind = object.Object(r.Err)
				vm.match.hasBind = true
			}

		case bytecode.OpGetMatchBind:
			m.Push(vm.match.bind)

		case bytecode.OpClearMatch:
			vm.match = matchHandler{}

		case bytecode.OpMakeOk:
			v, _ := m.Pop()
			res := object.Ok(v)
			res.Header().Kind = object.KindResult
			vm.track(res, 24)
			m.Push(object.Object(res))
		case bytecode.OpMakeErr:
			v, _ := m.Pop()
			msg := object.ToDisplayString(v)
			if s, ok := v.AsString(); ok {
				msg = string(s.Chars)
			}
			errObj := object.NewError(object.ErrValue, msg)
			vm.track(errObj, 32)
			res := object.ErrResult(errObj)
			res.Header().Kind = object.KindResult
			vm.track(res, 24)
			m.Push(object.Object(res))

		case bytecode.OpPop:
			m.Pop()
		case bytecode.OpDup:
			m.Push(m.Peek(0))
		case bytecode.OpPrint:
			v, _ := m.Pop()
			fmt.Fprintln(vm.Out, object.ToDisplayString(v))
			m.Push(object.Nil)
		case bytecode.OpTypeOf:
			v, _ := m.Pop()
			m.Push(object.Object(vm.Heap.Interner().Copy([]byte(object.KindName(v)))))

		default:
			return object.Nil, vm.panicErr(object.ErrRuntime, fmt.Sprintf("unknown opcode %d.", byte(op)))
		}
	}
	return object.Nil, nil
}

func (vm *VM) readByte(chunk *object.Chunk, frame *object.CallFrame) byte {
	b := chunk.Code[frame.IP]
	frame.IP++
	return b
}

func (vm *VM) readShort(chunk *object.Chunk, frame *object.CallFrame) uint16 {
	hi := uint16(chunk.Code[frame.IP])
	lo := uint16(chunk.Code[frame.IP+1])
	frame.IP += 2
	return (hi << 8) | lo
}

func (vm *VM) constString(chunk *object.Chunk, idx byte) string {
	s, _ := chunk.Constants[idx].AsString()
	if s == nil {
		return ""
	}
	return string(s.Chars)
}

func (vm *VM) binaryArith(op bytecode.OpCode, a, b object.Value) (object.Value, error) {
	switch op {
	case bytecode.OpSub:
		return object.Sub(a, b)
	case bytecode.OpMul:
		return object.Mul(a, b)
	case bytecode.OpDiv:
		return object.Div(a, b)
	case bytecode.OpMod:
		return object.Mod(a, b)
	case bytecode.OpPow:
		return object.Pow(a, b)
	case bytecode.OpShiftLeft:
		return object.ShiftLeft(a, b)
	case bytecode.OpShiftRight:
		return object.ShiftRight(a, b)
	}
	return object.Nil, fmt.Errorf("unhandled arithmetic opcode %v", op)
}

func (vm *VM) compare(op bytecode.OpCode, a, b object.Value) (bool, error) {
	switch op {
	case bytecode.OpLess:
		return object.Less(a, b)
	case bytecode.OpGreater:
		return object.Greater(a, b)
	case bytecode.OpLessEqual:
		gt, err := object.Greater(a, b)
		return !gt, err
	case bytecode.OpGreaterEqual:
		lt, err := object.Less(a, b)
		return !lt, err
	}
	return false, fmt.Errorf("unhandled comparison opcode %v", op)
}

// panicErr constructs a panic *object.Error and wraps it as a Go error the
// dispatch loop unwinds with, matching spec §7's "VM-internal failures call
// the panic routine" propagation rule.
func (vm *VM) panicErr(kind object.ErrorKind, msg string) error {
	e := object.NewPanic(kind, msg)
	vm.track(e, 32)
	return pkgerrors.WithStack(e)
}

func (vm *VM) panicFromErr(err error) error {
	if re, ok := pkgerrors.Cause(err).(*object.RuntimeError); ok {
		return vm.panicErr(re.Kind, re.Message)
	}
	return vm.panicErr(object.ErrRuntime, err.Error())
}
