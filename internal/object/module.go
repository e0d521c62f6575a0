package object

import "github.com/google/uuid"

// CallFrame is one active call: which Closure is executing, the
// instruction pointer into its Function's Chunk, and the base stack slot
// its locals start at (the callee itself at SlotBase, the first argument
// at SlotBase+1, the second at SlotBase+2, ...).
type CallFrame struct {
	Closure  *Closure
	IP       int
	SlotBase int
}

// ModuleRecord is a per-source-file execution context: the resolved path,
// its own global-name table, its own value stack and call-frame stack,
// its open-upvalue list (sorted descending by stack position), the
// closure wrapping its top-level code, and an IsExecuting flag. Neither
// the loader nor the VM sets or reads IsExecuting: a cached module is
// reused whether or not its top level has finished, and circular imports
// are detected only through the VM's import stack.
type ModuleRecord struct {
	Obj
	ID          uuid.UUID
	Path        string
	Globals     *GlobalTable
	Stack       []Value
	StackTop    int
	Frames      []CallFrame
	FrameCount  int
	OpenUpvalues *Upvalue // head of the list, sorted descending by StackPos
	ModuleClosure *Closure
	IsExecuting bool
}

const (
	DefaultStackSize = 16 * 1024
	DefaultMaxFrames = 256
)

func NewModuleRecord(path string, stackSize, maxFrames int) *ModuleRecord {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &ModuleRecord{
		Obj:     Obj{Kind: KindModuleRecord},
		ID:      uuid.New(),
		Path:    path,
		Globals: NewGlobalTable(),
		Stack:   make([]Value, stackSize),
		Frames:  make([]CallFrame, maxFrames),
	}
}

// Push appends a value to the module's stack. ok is false on overflow; the
// VM turns that into a STACK_OVERFLOW panic (the bounds check itself must
// stay allocation-free, matching the original's push() macro).
func (m *ModuleRecord) Push(v Value) bool {
	if m.StackTop >= len(m.Stack) {
		return false
	}
	m.Stack[m.StackTop] = v
	m.StackTop++
	return true
}

// Pop removes and returns the top value. ok is false on underflow.
func (m *ModuleRecord) Pop() (Value, bool) {
	if m.StackTop <= 0 {
		return Nil, false
	}
	m.StackTop--
	v := m.Stack[m.StackTop]
	m.Stack[m.StackTop] = Nil
	return v, true
}

// Peek looks distance slots below the top without popping.
func (m *ModuleRecord) Peek(distance int) Value {
	idx := m.StackTop - 1 - distance
	if idx < 0 || idx >= len(m.Stack) {
		return Nil
	}
	return m.Stack[idx]
}

// CurrentFrame returns the topmost call frame.
func (m *ModuleRecord) CurrentFrame() *CallFrame {
	if m.FrameCount == 0 {
		return nil
	}
	return &m.Frames[m.FrameCount-1]
}
