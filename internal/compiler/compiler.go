// Package compiler is the out-of-scope "external collaborator" spec.md
// names: a single-pass, recursive-descent compiler from Crux source text
// to the bytecode contract internal/bytecode and internal/object.Chunk
// define. It exists only so the CLI and the runtime's end-to-end scenarios
// mean something; it carries none of the runtime's testable invariants
// (spec §8) and is deliberately minimal rather than a full-featured
// front end.
package compiler

import (
	"fmt"

	"crux/internal/bytecode"
	"crux/internal/errors"
	"crux/internal/gc"
	"crux/internal/lexer"
	"crux/internal/object"
)

type local struct {
	name     string
	depth    int
	captured bool
}

// funcState is one function's compile-time frame: its chunk, its locals
// (including slot 0, reserved for the running closure itself), and the
// [isLocal,index] pairs its OpClosure must copy from the enclosing frame.
type funcState struct {
	enclosing *funcState
	chunk     *object.Chunk
	locals    []local
	upvalues  []object.UpvalueDesc
	scope     int
	name      string
	arity     int
}

func newFuncState(enclosing *funcState, name string) *funcState {
	return &funcState{
		enclosing: enclosing,
		chunk:     object.NewChunk(),
		name:      name,
		locals:    []local{{name: "", depth: 0}}, // slot 0: the callee closure itself
	}
}

type parser struct {
	toks []lexer.Token
	pos  int
	path string
	heap *gc.Heap
	fs   *funcState
	err  error
	mod  *object.ModuleRecord

	// matchBind is the identifier currently bound by an enclosing match
	// arm (spec §4.9: "reference to the bound name reads match_bind"),
	// empty when not compiling inside one. It shadows every other lookup.
	matchBind string
}

// CompileSource compiles src (the whole file) into a single top-level
// Function with arity 0, suitable for wrapping in a Closure and running as
// a ModuleRecord's frame 0 (spec §4.8 step 4). mod is attached to every
// Function compiled from this source so native-level introspection can
// find the module a function was declared in.
func CompileSource(src []byte, path string, h *gc.Heap, mod *object.ModuleRecord) (*object.Function, error) {
	toks := lexer.New(string(src)).Scan()
	p := &parser{toks: toks, path: path, heap: h, mod: mod}
	p.fs = newFuncState(nil, "<module>")

	for !p.check(lexer.TokenEOF) && p.err == nil {
		p.declaration()
	}
	if p.err != nil {
		return nil, p.err
	}
	p.emitByte(byte(bytecode.OpNil))
	p.emitByte(byte(bytecode.OpReturn))

	fn := &object.Function{Name: "<module>", Arity: 0, UpvalueCount: len(p.fs.upvalues), Chunk: p.fs.chunk, Module: mod}
	fn.Header().Kind = object.KindFunction
	h.Track(fn, 32)
	return fn, nil
}

// ---- token helpers ----

func (p *parser) peek() lexer.Token { return p.toks[p.pos] }
func (p *parser) previous() lexer.Token {
	if p.pos == 0 {
		return p.toks[0]
	}
	return p.toks[p.pos-1]
}
func (p *parser) check(t lexer.TokenType) bool { return p.err == nil && p.peek().Type == t }
func (p *parser) advance() lexer.Token {
	if p.err == nil && p.peek().Type != lexer.TokenEOF {
		p.pos++
	}
	return p.previous()
}
func (p *parser) match(t lexer.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}
func (p *parser) consume(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.fail(msg)
	return p.peek()
}

func (p *parser) fail(msg string) {
	if p.err != nil {
		return
	}
	tok := p.peek()
	p.err = errors.NewCompileError(fmt.Sprintf("%s (got %q)", msg, tok.Lexeme), p.path, tok.Line, 1)
}

// ---- bytecode emission ----

func (p *parser) line() int { return p.previous().Line }

func (p *parser) emitByte(b byte) { p.fs.chunk.Write(b, p.line()) }

func (p *parser) emitBytes(a, b byte) {
	p.emitByte(a)
	p.emitByte(b)
}

func (p *parser) emitShortPlaceholder(op bytecode.OpCode) int {
	p.emitByte(byte(op))
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.fs.chunk.Code) - 2
}

func (p *parser) patchJump(at int) {
	offset := len(p.fs.chunk.Code) - (at + 2)
	p.fs.chunk.Code[at] = byte(offset >> 8)
	p.fs.chunk.Code[at+1] = byte(offset)
}

func (p *parser) emitLoop(loopStart int) {
	p.emitByte(byte(bytecode.OpLoop))
	offset := len(p.fs.chunk.Code) + 2 - loopStart
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset))
}

func (p *parser) emitConstant(v object.Value) {
	idx := p.fs.chunk.AddConstant(v)
	if idx > 255 {
		p.fail("too many constants in one chunk")
		return
	}
	p.emitBytes(byte(bytecode.OpConstant), byte(idx))
}

func (p *parser) internString(s string) *object.String {
	return p.heap.Interner().Copy([]byte(s))
}

func (p *parser) nameConstant(name string) byte {
	idx := p.fs.chunk.AddConstant(object.Object(p.internString(name)))
	return byte(idx)
}

// ---- scopes & locals ----

func (p *parser) beginScope() { p.fs.scope++ }

func (p *parser) endScope() {
	p.fs.scope--
	for len(p.fs.locals) > 0 && p.fs.locals[len(p.fs.locals)-1].depth > p.fs.scope {
		if p.fs.locals[len(p.fs.locals)-1].captured {
			p.emitByte(byte(bytecode.OpCloseUpvalue))
		} else {
			p.emitByte(byte(bytecode.OpPop))
		}
		p.fs.locals = p.fs.locals[:len(p.fs.locals)-1]
	}
}

func (p *parser) declareLocal(name string) {
	if p.fs.scope == 0 {
		return
	}
	p.fs.locals = append(p.fs.locals, local{name: name, depth: p.fs.scope})
}

func resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

func resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if slot := resolveLocal(fs.enclosing, name); slot != -1 {
		fs.enclosing.locals[slot].captured = true
		return addUpvalue(fs, slot, true)
	}
	if up := resolveUpvalue(fs.enclosing, name); up != -1 {
		return addUpvalue(fs, up, false)
	}
	return -1
}

func addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, object.UpvalueDesc{IsLocal: isLocal, Index: index})
	return len(fs.upvalues) - 1
}
