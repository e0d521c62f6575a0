package compiler

import (
	"strconv"

	"crux/internal/bytecode"
	"crux/internal/lexer"
	"crux/internal/object"
)

func (p *parser) expression() {
	p.assignment()
}

// assignment looks ahead for "IDENT ('.' IDENT | '[' <balanced> ']')* '='"
// without emitting anything; if found, it compiles the target's receiver
// (if any), the right-hand side, and the matching Set opcode. Otherwise it
// falls through to the ordinary precedence chain starting at logic-or.
func (p *parser) assignment() {
	if n, ok := p.assignmentLookahead(); ok {
		p.compileAssignment(n)
		return
	}
	p.orExpr()
}

func (p *parser) assignmentLookahead() (steps int, ok bool) {
	i := p.pos
	if p.toks[i].Type != lexer.TokenIdent {
		return 0, false
	}
	i++
	for {
		switch p.toks[i].Type {
		case lexer.TokenDot:
			if p.toks[i+1].Type != lexer.TokenIdent {
				return 0, false
			}
			i += 2
		case lexer.TokenLBracket:
			i++
			depth := 1
			for depth > 0 {
				switch p.toks[i].Type {
				case lexer.TokenLBracket:
					depth++
				case lexer.TokenRBracket:
					depth--
				case lexer.TokenEOF:
					return 0, false
				}
				i++
			}
		default:
			if p.toks[i].Type == lexer.TokenEqual {
				return i - p.pos, true
			}
			return 0, false
		}
	}
}

// compileAssignment handles the three target shapes this compiler
// supports: a bare name, one trailing ".field", or one trailing
// "[index]". Chained targets like "a.b.c = 1" are not supported.
func (p *parser) compileAssignment(steps int) {
	name := p.advance().Lexeme

	switch {
	case p.match(lexer.TokenDot):
		field := p.consume(lexer.TokenIdent, "expected field name").Lexeme
		p.consume(lexer.TokenEqual, "expected '=' in assignment")
		p.emitGetVariable(name)
		p.expression()
		p.emitBytes(byte(bytecode.OpSetField), p.nameConstant(field))

	case p.match(lexer.TokenLBracket):
		p.emitGetVariable(name)
		p.expression()
		p.consume(lexer.TokenRBracket, "expected ']' after index")
		p.consume(lexer.TokenEqual, "expected '=' in assignment")
		p.expression()
		p.emitByte(byte(bytecode.OpSetIndex))

	default:
		p.consume(lexer.TokenEqual, "expected '=' in assignment")
		p.expression()
		p.emitSetVariable(name)
	}
}

func (p *parser) orExpr() {
	p.andExpr()
	for p.match(lexer.TokenOrOr) {
		elseJump := p.emitShortPlaceholder(bytecode.OpJumpIfFalsePeek)
		endJump := p.emitShortPlaceholder(bytecode.OpJump)
		p.patchJump(elseJump)
		p.emitByte(byte(bytecode.OpPop))
		p.andExpr()
		p.patchJump(endJump)
	}
}

func (p *parser) andExpr() {
	p.equality()
	for p.match(lexer.TokenAndAnd) {
		endJump := p.emitShortPlaceholder(bytecode.OpJumpIfFalsePeek)
		p.emitByte(byte(bytecode.OpPop))
		p.equality()
		p.patchJump(endJump)
	}
}

func (p *parser) equality() {
	p.comparison()
	for {
		switch {
		case p.match(lexer.TokenEqualEqual):
			p.comparison()
			p.emitByte(byte(bytecode.OpEqual))
		case p.match(lexer.TokenBangEqual):
			p.comparison()
			p.emitByte(byte(bytecode.OpNotEqual))
		default:
			return
		}
	}
}

func (p *parser) comparison() {
	p.term()
	for {
		switch {
		case p.match(lexer.TokenLess):
			p.term()
			p.emitByte(byte(bytecode.OpLess))
		case p.match(lexer.TokenLessEqual):
			p.term()
			p.emitByte(byte(bytecode.OpLessEqual))
		case p.match(lexer.TokenGreater):
			p.term()
			p.emitByte(byte(bytecode.OpGreater))
		case p.match(lexer.TokenGreaterEqual):
			p.term()
			p.emitByte(byte(bytecode.OpGreaterEqual))
		default:
			return
		}
	}
}

func (p *parser) term() {
	p.factor()
	for {
		switch {
		case p.match(lexer.TokenPlus):
			p.factor()
			p.emitByte(byte(bytecode.OpAdd))
		case p.match(lexer.TokenMinus):
			p.factor()
			p.emitByte(byte(bytecode.OpSub))
		default:
			return
		}
	}
}

func (p *parser) factor() {
	p.power()
	for {
		switch {
		case p.match(lexer.TokenStar):
			p.power()
			p.emitByte(byte(bytecode.OpMul))
		case p.match(lexer.TokenSlash):
			p.power()
			p.emitByte(byte(bytecode.OpDiv))
		case p.match(lexer.TokenPercent):
			p.power()
			p.emitByte(byte(bytecode.OpMod))
		default:
			return
		}
	}
}

// power is right-associative: 2^3^2 == 2^(3^2).
func (p *parser) power() {
	p.unary()
	if p.match(lexer.TokenCaret) {
		p.power()
		p.emitByte(byte(bytecode.OpPow))
	}
}

func (p *parser) unary() {
	switch {
	case p.match(lexer.TokenBang):
		p.unary()
		p.emitByte(byte(bytecode.OpNot))
	case p.match(lexer.TokenMinus):
		p.unary()
		p.emitByte(byte(bytecode.OpNegate))
	default:
		p.call()
	}
}

func (p *parser) call() {
	p.primary()
	for {
		switch {
		case p.match(lexer.TokenLParen):
			argc := p.argumentList()
			p.emitBytes(byte(bytecode.OpCall), byte(argc))
		case p.match(lexer.TokenDot):
			field := p.consume(lexer.TokenIdent, "expected field name after '.'").Lexeme
			p.emitBytes(byte(bytecode.OpGetField), p.nameConstant(field))
		case p.match(lexer.TokenLBracket):
			p.expression()
			p.consume(lexer.TokenRBracket, "expected ']' after index")
			p.emitByte(byte(bytecode.OpGetIndex))
		default:
			return
		}
	}
}

func (p *parser) argumentList() int {
	argc := 0
	if !p.check(lexer.TokenRParen) {
		for {
			p.expression()
			argc++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expected ')' after arguments")
	return argc
}

func (p *parser) primary() {
	switch {
	case p.match(lexer.TokenInt):
		n, _ := strconv.ParseInt(p.previous().Lexeme, 10, 32)
		if n >= -128 && n <= 127 {
			p.emitBytes(byte(bytecode.OpSmallInt), byte(int8(n)))
		} else {
			p.emitConstant(object.Int(int32(n)))
		}
	case p.match(lexer.TokenFloat):
		f, _ := strconv.ParseFloat(p.previous().Lexeme, 64)
		p.emitConstant(object.Float(f))
	case p.match(lexer.TokenStr):
		p.emitConstant(object.Object(p.internString(p.previous().Lexeme)))
	case p.match(lexer.TokenTrue):
		p.emitByte(byte(bytecode.OpTrue))
	case p.match(lexer.TokenFalse):
		p.emitByte(byte(bytecode.OpFalse))
	case p.match(lexer.TokenNil):
		p.emitByte(byte(bytecode.OpNil))
	case p.match(lexer.TokenLParen):
		p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after expression")
	case p.match(lexer.TokenLBracket):
		p.arrayLiteral()
	case p.match(lexer.TokenLBrace):
		p.tableLiteral()
	case p.check(lexer.TokenIdent):
		p.identifierPrimary()
	default:
		p.fail("expected expression")
	}
}

// identifierPrimary handles the language-level special forms (print,
// type_of, Ok, Err) before falling back to an ordinary variable read, and
// reads match_bind in place of a lookup when the name is the enclosing
// match arm's bound name.
func (p *parser) identifierPrimary() {
	name := p.advance().Lexeme

	switch name {
	case "print":
		p.consume(lexer.TokenLParen, "expected '(' after 'print'")
		p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after print argument")
		p.emitByte(byte(bytecode.OpPrint))
		return
	case "type_of":
		p.consume(lexer.TokenLParen, "expected '(' after 'type_of'")
		p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after type_of argument")
		p.emitByte(byte(bytecode.OpTypeOf))
		return
	case "Ok":
		p.consume(lexer.TokenLParen, "expected '(' after 'Ok'")
		p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after Ok argument")
		p.emitByte(byte(bytecode.OpMakeOk))
		return
	case "Err":
		p.consume(lexer.TokenLParen, "expected '(' after 'Err'")
		p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after Err argument")
		p.emitByte(byte(bytecode.OpMakeErr))
		return
	}

	p.emitGetVariable(name)
}

func (p *parser) arrayLiteral() {
	count := 0
	if !p.check(lexer.TokenRBracket) {
		for {
			p.expression()
			count++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRBracket, "expected ']' after array elements")
	if count > 0xffff {
		p.fail("too many array elements")
		return
	}
	p.emitByte(byte(bytecode.OpNewArray))
	p.emitByte(byte(count >> 8))
	p.emitByte(byte(count))
}

func (p *parser) tableLiteral() {
	count := 0
	if !p.check(lexer.TokenRBrace) {
		for {
			if p.check(lexer.TokenIdent) && p.toks[p.pos+1].Type == lexer.TokenColon {
				p.emitConstant(object.Object(p.internString(p.advance().Lexeme)))
			} else {
				p.expression()
			}
			p.consume(lexer.TokenColon, "expected ':' after table key")
			p.expression()
			count++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRBrace, "expected '}' after table entries")
	if count > 0xffff {
		p.fail("too many table entries")
		return
	}
	p.emitByte(byte(bytecode.OpNewTable))
	p.emitByte(byte(count >> 8))
	p.emitByte(byte(count))
}

// ---- variable read/write, shared by primary and assignment ----

func (p *parser) emitGetVariable(name string) {
	if p.matchBind != "" && name == p.matchBind {
		p.emitByte(byte(bytecode.OpGetMatchBind))
		return
	}
	if slot := resolveLocal(p.fs, name); slot != -1 {
		p.emitBytes(byte(bytecode.OpGetLocal), byte(slot))
		return
	}
	if up := resolveUpvalue(p.fs, name); up != -1 {
		p.emitBytes(byte(bytecode.OpGetUpvalue), byte(up))
		return
	}
	p.emitBytes(byte(bytecode.OpGetGlobal), p.nameConstant(name))
}

func (p *parser) emitSetVariable(name string) {
	if slot := resolveLocal(p.fs, name); slot != -1 {
		p.emitBytes(byte(bytecode.OpSetLocal), byte(slot))
		return
	}
	if up := resolveUpvalue(p.fs, name); up != -1 {
		p.emitBytes(byte(bytecode.OpSetUpvalue), byte(up))
		return
	}
	p.emitBytes(byte(bytecode.OpSetGlobal), p.nameConstant(name))
}
