// Package bytecode defines the instruction set the compiler emits and the
// VM's dispatch loop interprets. Exact numbering is private to this pair
// (spec §1 scopes the compiler out, but the VM and compiler must agree on
// these values, so they live together here rather than inside internal/vm
// or internal/compiler).
package bytecode

type OpCode byte

const (
	// Constants & literals
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpSmallInt // operand: signed byte, pushed as Int

	// Globals
	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal

	// Locals
	OpGetLocal
	OpSetLocal

	// Upvalues
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue

	// Arithmetic & comparison
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpNegate
	OpNot
	OpEqual
	OpNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	OpShiftLeft
	OpShiftRight

	// Control flow
	OpJump
	OpJumpIfFalse // pops
	OpJumpIfFalsePeek
	OpLoop

	// Calls
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure // followed by [isLocal byte, index byte] * upvalueCount
	OpReturn

	// Structured values
	OpNewArray // operand: uint16 element count
	OpNewTable // operand: uint16 pair count
	OpGetIndex
	OpSetIndex
	OpGetField
	OpSetField
	OpNewStruct // operand: struct-type constant index, followed by field count

	// Modules
	OpImportFrom // operand: path constant index, then uint8 name count, then name constant indices
	OpUseAs      // operand: path constant index, name constant index

	// Match — Ok(x)/Err(e) pattern test and bind against the current
	// match_handler (spec §4.9). OpMatchTestOk/OpMatchTestErr push a bool;
	// OpBindOkValue/OpBindErrValue set match_bind from the matched Result's
	// payload with no stack effect; OpGetMatchBind reads match_bind (how an
	// arm's bound name is compiled, per §4.9: "reference to the bound name
	// reads match_bind").
	OpSetMatchTarget
	OpMatchTestOk
	OpMatchTestErr
	OpBindOkValue
	OpBindErrValue
	OpGetMatchBind
	OpClearMatch

	// Result constructors — Ok(x)/Err(x) are language-level special forms
	// rather than ordinary calls, since building a Result/Error needs the
	// heap tracking only the VM itself can do (native functions carry no VM
	// context, per internal/object.NativeFn).
	OpMakeOk
	OpMakeErr

	// Misc
	OpPop
	OpDup
	OpPrint
	OpTypeOf
)

func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "OpUnknown"
}

var opNames = [...]string{
	"OpConstant", "OpNil", "OpTrue", "OpFalse", "OpSmallInt",
	"OpDefineGlobal", "OpGetGlobal", "OpSetGlobal",
	"OpGetLocal", "OpSetLocal",
	"OpGetUpvalue", "OpSetUpvalue", "OpCloseUpvalue",
	"OpAdd", "OpSub", "OpMul", "OpDiv", "OpMod", "OpPow", "OpNegate", "OpNot",
	"OpEqual", "OpNotEqual", "OpLess", "OpGreater", "OpLessEqual", "OpGreaterEqual",
	"OpShiftLeft", "OpShiftRight",
	"OpJump", "OpJumpIfFalse", "OpJumpIfFalsePeek", "OpLoop",
	"OpCall", "OpInvoke", "OpSuperInvoke", "OpClosure", "OpReturn",
	"OpNewArray", "OpNewTable", "OpGetIndex", "OpSetIndex", "OpGetField", "OpSetField", "OpNewStruct",
	"OpImportFrom", "OpUseAs",
	"OpSetMatchTarget", "OpMatchTestOk", "OpMatchTestErr",
	"OpBindOkValue", "OpBindErrValue", "OpGetMatchBind", "OpClearMatch",
	"OpMakeOk", "OpMakeErr",
	"OpPop", "OpDup", "OpPrint", "OpTypeOf",
}
