package compiler

import (
	"crux/internal/bytecode"
	"crux/internal/lexer"
	"crux/internal/object"
)

// declaration parses one top-level-or-block item: a function, a let
// binding, a use/import, or a plain statement.
func (p *parser) declaration() {
	switch {
	case p.match(lexer.TokenPub):
		p.consume(lexer.TokenFn, "expected 'fn' after 'pub'")
		p.functionDeclaration()
	case p.match(lexer.TokenFn):
		p.functionDeclaration()
	case p.match(lexer.TokenLet):
		p.letDeclaration()
	case p.match(lexer.TokenUse):
		p.useDeclaration()
	default:
		p.statement()
	}
}

func (p *parser) functionDeclaration() {
	name := p.consume(lexer.TokenIdent, "expected function name").Lexeme
	if p.fs.scope > 0 {
		p.declareLocal(name)
	}
	p.compileFunction(name)
	if p.fs.scope == 0 {
		p.emitBytes(byte(bytecode.OpDefineGlobal), p.nameConstant(name))
	}
}

// compileFunction parses "(" params ")" "{" body "}" in a fresh funcState
// and leaves the resulting closure pushed on the *enclosing* chunk's
// stack, exactly where a local or global declaration expects its value.
func (p *parser) compileFunction(name string) {
	enclosing := p.fs
	p.fs = newFuncState(enclosing, name)
	p.beginScope()

	p.consume(lexer.TokenLParen, "expected '(' after function name")
	arity := 0
	if !p.check(lexer.TokenRParen) {
		for {
			arity++
			pname := p.consume(lexer.TokenIdent, "expected parameter name").Lexeme
			p.declareLocal(pname)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expected ')' after parameters")
	p.fs.arity = arity

	p.consume(lexer.TokenLBrace, "expected '{' before function body")
	for !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenEOF) && p.err == nil {
		p.declaration()
	}
	p.consume(lexer.TokenRBrace, "expected '}' after function body")

	p.emitByte(byte(bytecode.OpNil))
	p.emitByte(byte(bytecode.OpReturn))

	compiled := p.fs
	upvalues := compiled.upvalues
	fn := &object.Function{
		Name: name, Arity: arity, UpvalueCount: len(upvalues),
		Chunk: compiled.chunk, Module: p.mod,
	}
	fn.Header().Kind = object.KindFunction
	p.heap.Track(fn, 32)

	p.fs = enclosing
	idx := p.fs.chunk.AddConstant(object.Object(fn))
	if idx > 255 {
		p.fail("too many constants in one chunk")
		return
	}
	p.emitBytes(byte(bytecode.OpClosure), byte(idx))
	for _, uv := range upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		p.emitBytes(isLocal, byte(uv.Index))
	}
}

func (p *parser) letDeclaration() {
	name := p.consume(lexer.TokenIdent, "expected variable name").Lexeme
	if p.match(lexer.TokenEqual) {
		p.expression()
	} else {
		p.emitByte(byte(bytecode.OpNil))
	}
	p.consume(lexer.TokenSemi, "expected ';' after variable declaration")

	if p.fs.scope > 0 {
		p.declareLocal(name)
		return
	}
	p.emitBytes(byte(bytecode.OpDefineGlobal), p.nameConstant(name))
}

// useDeclaration parses both import forms (spec §4.8/§4.9):
//
//	use {name, ...} from "path";
//	use "path" as name;
func (p *parser) useDeclaration() {
	if p.match(lexer.TokenLBrace) {
		var names []string
		if !p.check(lexer.TokenRBrace) {
			for {
				names = append(names, p.consume(lexer.TokenIdent, "expected imported name").Lexeme)
				if !p.match(lexer.TokenComma) {
					break
				}
			}
		}
		p.consume(lexer.TokenRBrace, "expected '}' after import list")
		p.consume(lexer.TokenFrom, "expected 'from' after import list")
		path := p.consume(lexer.TokenStr, "expected module path string").Lexeme
		p.consume(lexer.TokenSemi, "expected ';' after import")

		pathIdx := p.fs.chunk.AddConstant(object.Object(p.internString(path)))
		p.emitBytes(byte(bytecode.OpImportFrom), byte(pathIdx))
		p.emitByte(byte(len(names)))
		for _, n := range names {
			p.emitByte(p.nameConstant(n))
		}
		return
	}

	path := p.consume(lexer.TokenStr, "expected module path string").Lexeme
	p.consume(lexer.TokenAs, "expected 'as' after module path")
	bindName := p.consume(lexer.TokenIdent, "expected binding name").Lexeme
	p.consume(lexer.TokenSemi, "expected ';' after use")

	pathIdx := p.fs.chunk.AddConstant(object.Object(p.internString(path)))
	p.emitBytes(byte(bytecode.OpUseAs), byte(pathIdx))
	p.emitByte(p.nameConstant(bindName))
}

// ---- statements ----

func (p *parser) statement() {
	switch {
	case p.match(lexer.TokenLBrace):
		p.beginScope()
		p.blockBody()
		p.endScope()
	case p.match(lexer.TokenIf):
		p.ifStatement()
	case p.match(lexer.TokenWhile):
		p.whileStatement()
	case p.match(lexer.TokenReturn):
		p.returnStatement()
	case p.match(lexer.TokenMatch):
		p.matchStatement()
	default:
		p.expressionStatement()
	}
}

func (p *parser) blockBody() {
	for !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenEOF) && p.err == nil {
		p.declaration()
	}
	p.consume(lexer.TokenRBrace, "expected '}' after block")
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(lexer.TokenSemi, "expected ';' after expression")
	p.emitByte(byte(bytecode.OpPop))
}

func (p *parser) ifStatement() {
	p.consume(lexer.TokenLParen, "expected '(' after 'if'")
	p.expression()
	p.consume(lexer.TokenRParen, "expected ')' after condition")

	thenJump := p.emitShortPlaceholder(bytecode.OpJumpIfFalse)
	p.statement()
	elseJump := p.emitShortPlaceholder(bytecode.OpJump)
	p.patchJump(thenJump)

	if p.match(lexer.TokenElse) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := len(p.fs.chunk.Code)
	p.consume(lexer.TokenLParen, "expected '(' after 'while'")
	p.expression()
	p.consume(lexer.TokenRParen, "expected ')' after condition")

	exitJump := p.emitShortPlaceholder(bytecode.OpJumpIfFalse)
	p.statement()
	p.emitLoop(loopStart)
	p.patchJump(exitJump)
}

func (p *parser) returnStatement() {
	if p.match(lexer.TokenSemi) {
		p.emitByte(byte(bytecode.OpNil))
		p.emitByte(byte(bytecode.OpReturn))
		return
	}
	p.expression()
	p.consume(lexer.TokenSemi, "expected ';' after return value")
	p.emitByte(byte(bytecode.OpReturn))
}

// matchStatement implements §4.9's match construct: set-match-target,
// test+bind+body per Ok/Err arm (or an unconditional "_" default), and a
// final clear-match, exactly the opcode sequence the spec describes.
func (p *parser) matchStatement() {
	p.consume(lexer.TokenLParen, "expected '(' after 'match'")
	p.expression()
	p.consume(lexer.TokenRParen, "expected ')' after match target")
	p.emitByte(byte(bytecode.OpSetMatchTarget))

	p.consume(lexer.TokenLBrace, "expected '{' to start match arms")

	var endJumps []int
	for !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenEOF) && p.err == nil {
		p.matchArm(&endJumps)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "expected '}' after match arms")

	for _, j := range endJumps {
		p.patchJump(j)
	}
	p.emitByte(byte(bytecode.OpClearMatch))
}

func (p *parser) matchArm(endJumps *[]int) {
	switch {
	case p.checkIdentLexeme("Ok"):
		p.advance()
		p.consume(lexer.TokenLParen, "expected '(' after 'Ok'")
		bind := p.consume(lexer.TokenIdent, "expected bound name").Lexeme
		p.consume(lexer.TokenRParen, "expected ')' after bound name")
		p.consume(lexer.TokenFatArrow, "expected '=>' after pattern")

		p.emitByte(byte(bytecode.OpMatchTestOk))
		skip := p.emitShortPlaceholder(bytecode.OpJumpIfFalse)
		p.emitByte(byte(bytecode.OpBindOkValue))
		p.compileArmBody(bind)
		*endJumps = append(*endJumps, p.emitShortPlaceholder(bytecode.OpJump))
		p.patchJump(skip)

	case p.checkIdentLexeme("Err"):
		p.advance()
		p.consume(lexer.TokenLParen, "expected '(' after 'Err'")
		bind := p.consume(lexer.TokenIdent, "expected bound name").Lexeme
		p.consume(lexer.TokenRParen, "expected ')' after bound name")
		p.consume(lexer.TokenFatArrow, "expected '=>' after pattern")

		p.emitByte(byte(bytecode.OpMatchTestErr))
		skip := p.emitShortPlaceholder(bytecode.OpJumpIfFalse)
		p.emitByte(byte(bytecode.OpBindErrValue))
		p.compileArmBody(bind)
		*endJumps = append(*endJumps, p.emitShortPlaceholder(bytecode.OpJump))
		p.patchJump(skip)

	default:
		p.consume(lexer.TokenIdent, "expected 'Ok', 'Err' or '_' pattern")
		p.consume(lexer.TokenFatArrow, "expected '=>' after pattern")
		p.compileArmBody("")
	}
}

func (p *parser) compileArmBody(bindName string) {
	prevBind := p.matchBind
	p.matchBind = bindName
	p.expression()
	p.emitByte(byte(bytecode.OpPop))
	p.matchBind = prevBind
}

func (p *parser) checkIdentLexeme(s string) bool {
	return p.check(lexer.TokenIdent) && p.peek().Lexeme == s
}
