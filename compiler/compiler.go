package compiler

import (
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt parser emitting bytecode
// ---------------------------------------------------------------------------

// tokenSource supplies tokens one at a time. After the last token it keeps
// returning EOF.
type tokenSource interface {
	Next() Token
}

// errorSource is implemented by token sources that report lexical errors.
type errorSource interface {
	Errors() []*CompileError
}

// tokenBuffer replays a pre-scanned token slice.
type tokenBuffer struct {
	tokens []Token
	pos    int
}

func (b *tokenBuffer) Next() Token {
	if b.pos >= len(b.tokens) {
		line := 1
		if n := len(b.tokens); n > 0 {
			line = b.tokens[n-1].Line
		}
		return Token{Type: TokenEOF, Line: line}
	}
	tok := b.tokens[b.pos]
	b.pos++
	return tok
}

// Compiler holds the state of one compilation. Each call to Compile or
// CompileTokens uses a fresh Compiler, so independent sources can be compiled
// concurrently.
type Compiler struct {
	source   tokenSource
	previous Token
	current  Token
	chunk    *bytecode.Chunk

	errs      *multierror.Error
	scanSeen  int  // scan errors already folded into errs
	panicMode bool // suppresses cascading errors until synchronize
}

// Compile scans and compiles a single Lox expression. On failure the chunk is
// nil and the error is a *multierror.Error of *CompileError values; use
// Diagnostics to extract them.
func Compile(source string) (*bytecode.Chunk, error) {
	return newCompiler(NewScanner(source)).compile()
}

// CompileTokens compiles an already-scanned token sequence. A missing
// trailing EOF token is implied.
func CompileTokens(tokens []Token) (*bytecode.Chunk, error) {
	return newCompiler(&tokenBuffer{tokens: tokens}).compile()
}

func newCompiler(src tokenSource) *Compiler {
	return &Compiler{
		source: src,
		chunk:  bytecode.NewChunk(),
	}
}

func (c *Compiler) compile() (*bytecode.Chunk, error) {
	c.advance()

	if c.check(TokenEOF) {
		c.emitOpLine(bytecode.OpReturn, 1)
		return c.finish()
	}

	// A chunk holds one expression. After an error, resynchronize and keep
	// parsing so that later mistakes are reported in the same pass.
	for {
		c.expression()
		if !c.panicMode {
			c.consume(TokenEOF, msgExpectEnd)
		}
		if !c.panicMode {
			break
		}
		c.synchronize()
		if c.check(TokenEOF) {
			break
		}
	}

	c.emitOp(bytecode.OpReturn)
	return c.finish()
}

func (c *Compiler) finish() (*bytecode.Chunk, error) {
	c.collectScanErrors()
	if c.errs != nil {
		c.errs.ErrorFormat = formatDiagnostics
		log.Debugf("compilation failed with %d errors", len(c.errs.Errors))
		return nil, c.errs
	}
	log.Debugf("compiled %d bytes, %d constants", c.chunk.CodeLen(), c.chunk.ConstantCount())
	return c.chunk, nil
}

// ---------------------------------------------------------------------------
// Pratt core
// ---------------------------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence compiles an expression whose operators bind at least as
// tightly as prec.
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).Prefix
	if prefix == nil {
		c.error(msgExpectExpression)
		return
	}
	prefix(c)

	for prec <= getRule(c.current.Type).Precedence {
		c.advance()
		getRule(c.previous.Type).Infix(c)
	}
}

func (c *Compiler) grouping() {
	c.expression()
	c.consume(TokenRightParen, msgExpectRightParen)
}

func (c *Compiler) number() {
	n, ok := c.previous.Literal.(float64)
	if !ok {
		var err error
		n, err = strconv.ParseFloat(c.previous.Lexeme, 64)
		if err != nil {
			c.error("Invalid number literal.")
			return
		}
	}
	c.emitConstant(bytecode.NumberValue(n))
}

func (c *Compiler) stringLiteral() {
	s, ok := c.previous.Literal.(string)
	if !ok {
		lex := c.previous.Lexeme
		if len(lex) >= 2 && lex[0] == '"' && lex[len(lex)-1] == '"' {
			lex = lex[1 : len(lex)-1]
		}
		s = lex
	}
	c.emitConstant(bytecode.StringValue(s))
}

func (c *Compiler) literal() {
	switch c.previous.Type {
	case TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case TokenNil:
		c.emitOp(bytecode.OpNil)
	case TokenTrue:
		c.emitOp(bytecode.OpTrue)
	}
}

func (c *Compiler) unary() {
	op := c.previous.Type
	line := c.previous.Line

	c.parsePrecedence(PrecUnary)

	switch op {
	case TokenBang:
		c.emitOpLine(bytecode.OpNot, line)
	case TokenMinus:
		c.emitOpLine(bytecode.OpNegate, line)
	}
}

func (c *Compiler) binary() {
	op := c.previous.Type
	line := c.previous.Line

	// Right operand binds one level tighter: left-associative.
	c.parsePrecedence(getRule(op).Precedence + 1)

	switch op {
	case TokenBangEqual:
		c.emitOpsLine(line, bytecode.OpEqual, bytecode.OpNot)
	case TokenEqualEqual:
		c.emitOpLine(bytecode.OpEqual, line)
	case TokenGreater:
		c.emitOpLine(bytecode.OpGreater, line)
	case TokenGreaterEqual:
		c.emitOpsLine(line, bytecode.OpLess, bytecode.OpNot)
	case TokenLess:
		c.emitOpLine(bytecode.OpLess, line)
	case TokenLessEqual:
		c.emitOpsLine(line, bytecode.OpGreater, bytecode.OpNot)
	case TokenPlus:
		c.emitOpLine(bytecode.OpAdd, line)
	case TokenMinus:
		c.emitOpLine(bytecode.OpSubtract, line)
	case TokenStar:
		c.emitOpLine(bytecode.OpMultiply, line)
	case TokenSlash:
		c.emitOpLine(bytecode.OpDivide, line)
	}
}

// ---------------------------------------------------------------------------
// Token handling
// ---------------------------------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	c.current = c.source.Next()
	c.collectScanErrors()
}

func (c *Compiler) check(t TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) consume(t TokenType, message string) {
	if c.check(t) {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// synchronize discards tokens until a likely statement boundary: just past a
// semicolon, or before a keyword that starts a declaration or statement.
func (c *Compiler) synchronize() {
	c.panicMode = false

	for !c.check(TokenEOF) {
		if c.previous.Type == TokenSemicolon {
			return
		}
		switch c.current.Type {
		case TokenClass, TokenFun, TokenVar, TokenFor, TokenIf, TokenWhile, TokenPrint, TokenReturn:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Error reporting
// ---------------------------------------------------------------------------

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) errorAt(tok Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.errs = multierror.Append(c.errs, &CompileError{
		Kind:    ParseError,
		Line:    tok.Line,
		Token:   tok,
		Message: message,
	})
}

// collectScanErrors folds lexical errors reported since the last call into
// the diagnostics list, keeping discovery order.
func (c *Compiler) collectScanErrors() {
	es, ok := c.source.(errorSource)
	if !ok {
		return
	}
	scanErrs := es.Errors()
	for _, e := range scanErrs[c.scanSeen:] {
		c.errs = multierror.Append(c.errs, e)
	}
	c.scanSeen = len(scanErrs)
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (c *Compiler) emitOp(op bytecode.Opcode) {
	c.emitOpLine(op, c.previous.Line)
}

func (c *Compiler) emitOpLine(op bytecode.Opcode, line int) {
	c.chunk.WriteOp(op, line)
}

func (c *Compiler) emitOpsLine(line int, ops ...bytecode.Opcode) {
	for _, op := range ops {
		c.chunk.WriteOp(op, line)
	}
}

func (c *Compiler) emitConstant(v bytecode.Value) {
	idx := c.makeConstant(v)
	c.emitOp(bytecode.OpConstant)
	c.chunk.Write(idx, c.previous.Line)
}

func (c *Compiler) makeConstant(v bytecode.Value) byte {
	idx := c.chunk.AddConstant(v)
	if idx >= bytecode.MaxConstants {
		c.error(msgTooManyConstants)
		return 0
	}
	return byte(idx)
}
