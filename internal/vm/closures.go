package vm

import "crux/internal/object"

// captureUpvalue returns the open upvalue for m's stack slot, reusing an
// existing one if some other closure already captured that exact slot
// (spec §4.7: two closures capturing the same local share state through
// one upvalue, not independent copies). The list stays sorted descending
// by StackPos so callers can stop scanning as soon as they pass slot.
func (vm *VM) captureUpvalue(m *object.ModuleRecord, slot int) *object.Upvalue {
	var prev *object.Upvalue
	cur := m.OpenUpvalues
	for cur != nil && cur.StackPos > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.StackPos == slot {
		return cur
	}

	created := &object.Upvalue{Location: &m.Stack[slot], StackPos: slot, Next: cur}
	created.Header().Kind = object.KindUpvalue
	vm.track(created, 24)

	if prev == nil {
		m.OpenUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above fromSlot, copying its
// stack value into the upvalue itself so it survives the stack slot's
// reuse. Called both by OpCloseUpvalue (block-scope exit) and OpReturn
// (frame exit), per spec §4.7's closure-capture algorithm.
func (vm *VM) closeUpvalues(m *object.ModuleRecord, fromSlot int) {
	for m.OpenUpvalues != nil && m.OpenUpvalues.StackPos >= fromSlot {
		uv := m.OpenUpvalues
		uv.Close()
		m.OpenUpvalues = uv.Next
		uv.Next = nil
	}
}
