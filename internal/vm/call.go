package vm

import (
	"fmt"

	"crux/internal/object"
)

// call implements OpCall (spec §4.6's call semantics): the callee and its
// argc arguments sit on top of m's stack (callee first, then each argument
// in order). A Closure call pushes a new CallFrame over those slots; a
// NativeFunction call invokes Fn immediately, replaces the callee+args
// with its single return value, and never touches the frame stack.
func (vm *VM) call(m *object.ModuleRecord, argc int) error {
	calleeSlot := m.StackTop - 1 - argc
	if calleeSlot < 0 {
		return vm.panicErr(object.ErrRuntime, "call stack underflow.")
	}
	callee := m.Stack[calleeSlot]
	obj := callee.AsObject()

	switch fn := obj.(type) {
	case *object.Closure:
		if argc != fn.Function.Arity {
			return vm.panicErr(object.ErrArgument, fmt.Sprintf(
				"%s expects %d argument(s) but got %d.", fn.Function.Name, fn.Function.Arity, argc))
		}
		if m.FrameCount >= len(m.Frames) {
			return vm.panicErr(object.ErrStackOverflow, "call stack exceeded maximum depth.")
		}
		m.Frames[m.FrameCount] = object.CallFrame{Closure: fn, IP: 0, SlotBase: calleeSlot}
		m.FrameCount++
		return nil

	case *object.NativeFunction:
		if argc != fn.Arity {
			return vm.panicErr(object.ErrArgument, fmt.Sprintf(
				"%s expects %d argument(s) but got %d.", fn.Name, fn.Arity, argc))
		}
		return vm.callNative(m, fn.Fn, fn.Fallible, calleeSlot, argc)

	case *object.NativeMethod:
		if argc != fn.Arity {
			return vm.panicErr(object.ErrArgument, fmt.Sprintf(
				"%s expects %d argument(s) but got %d.", fn.Name, fn.Arity, argc))
		}
		return vm.callNative(m, fn.Fn, fn.Fallible, calleeSlot, argc)

	default:
		return vm.panicErr(object.ErrType, "value is not callable.")
	}
}

// callNative invokes a native function pointer directly: no CallFrame, no
// bytecode to run. fallible natives build their own Result value internally
// (stdlib's okResult/errResult helpers) before returning it here, so this
// never wraps the result a second time.
func (vm *VM) callNative(m *object.ModuleRecord, fn object.NativeFn, fallible bool, calleeSlot, argc int) error {
	args := make([]object.Value, argc)
	copy(args, m.Stack[calleeSlot+1:calleeSlot+1+argc])

	result, err := fn(argc, args)
	if err != nil {
		return vm.panicFromErr(err)
	}

	m.StackTop = calleeSlot
	m.Push(result)
	return nil
}

// The bytecode set carries OpInvoke/OpSuperInvoke, but the compiler never
// emits them and the dispatch loop has no case for them: it reports either
// one as an unknown opcode.
