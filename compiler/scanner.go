package compiler

import (
	"fmt"
	"iter"
	"strconv"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Scanner: tokenizer for Lox source
// ---------------------------------------------------------------------------

// Scanner produces tokens on demand. Lexical errors are accumulated rather
// than returned, so a single pass reports every bad character.
type Scanner struct {
	source  string
	start   int // start of the current lexeme
	current int // scan cursor
	line    int // current line (1-based)
	errors  []*CompileError
}

// NewScanner creates a scanner over source.
func NewScanner(source string) *Scanner {
	return &Scanner{source: source, line: 1}
}

// Errors returns the lexical errors seen so far.
func (s *Scanner) Errors() []*CompileError {
	return s.errors
}

// Next returns the next token. Once the input is exhausted it returns an EOF
// token on every call.
func (s *Scanner) Next() Token {
	for {
		s.skipWhitespaceAndComments()
		s.start = s.current

		if s.isAtEnd() {
			return Token{Type: TokenEOF, Line: s.line}
		}

		c := s.advance()
		switch {
		case isAlpha(c):
			return s.identifier()
		case isDigit(c):
			return s.number()
		}

		switch c {
		case '(':
			return s.makeToken(TokenLeftParen)
		case ')':
			return s.makeToken(TokenRightParen)
		case '{':
			return s.makeToken(TokenLeftBrace)
		case '}':
			return s.makeToken(TokenRightBrace)
		case ',':
			return s.makeToken(TokenComma)
		case '.':
			return s.makeToken(TokenDot)
		case '-':
			return s.makeToken(TokenMinus)
		case '+':
			return s.makeToken(TokenPlus)
		case ';':
			return s.makeToken(TokenSemicolon)
		case '/':
			return s.makeToken(TokenSlash)
		case '*':
			return s.makeToken(TokenStar)
		case '!':
			return s.makeToken(s.pick('=', TokenBangEqual, TokenBang))
		case '=':
			return s.makeToken(s.pick('=', TokenEqualEqual, TokenEqual))
		case '<':
			return s.makeToken(s.pick('=', TokenLessEqual, TokenLess))
		case '>':
			return s.makeToken(s.pick('=', TokenGreaterEqual, TokenGreater))
		case '"':
			if tok, ok := s.stringLiteral(); ok {
				return tok
			}
			continue
		}

		// Report the whole rune, not just its first byte.
		r, size := utf8.DecodeRuneInString(s.source[s.start:])
		s.current = s.start + size
		s.errorf("Unexpected character: '%c'.", r)
	}
}

// Tokens returns a lazy sequence of tokens ending with exactly one EOF.
func (s *Scanner) Tokens() iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for {
			tok := s.Next()
			if !yield(tok) || tok.Type == TokenEOF {
				return
			}
		}
	}
}

// ScanTokens scans all of source and returns its tokens (always terminated
// by one EOF token) and any lexical errors.
func ScanTokens(source string) ([]Token, []*CompileError) {
	s := NewScanner(source)
	var tokens []Token
	for tok := range s.Tokens() {
		tokens = append(tokens, tok)
	}
	return tokens, s.Errors()
}

func (s *Scanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func (s *Scanner) advance() byte {
	c := s.source[s.current]
	s.current++
	return c
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return 0
	}
	return s.source[s.current+1]
}

// pick consumes expected if it is next and returns two, otherwise one.
func (s *Scanner) pick(expected byte, two, one TokenType) TokenType {
	if s.isAtEnd() || s.source[s.current] != expected {
		return one
	}
	s.current++
	return two
}

func (s *Scanner) makeToken(t TokenType) Token {
	return Token{Type: t, Lexeme: s.source[s.start:s.current], Line: s.line}
}

func (s *Scanner) errorf(format string, args ...any) {
	s.errors = append(s.errors, &CompileError{
		Kind:    ScanError,
		Line:    s.line,
		Message: fmt.Sprintf(format, args...),
	})
}

func (s *Scanner) skipWhitespaceAndComments() {
	for !s.isAtEnd() {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.current++
		case '\n':
			s.line++
			s.current++
		case '/':
			if s.peekNext() != '/' {
				return
			}
			for !s.isAtEnd() && s.peek() != '\n' {
				s.current++
			}
		default:
			return
		}
	}
}

// stringLiteral reads a string literal; the opening quote is already consumed.
// Strings may span lines.
func (s *Scanner) stringLiteral() (Token, bool) {
	for !s.isAtEnd() && s.peek() != '"' {
		if s.peek() == '\n' {
			s.line++
		}
		s.current++
	}

	if s.isAtEnd() {
		s.errorf(msgUnterminatedString)
		return Token{}, false
	}

	s.current++ // closing quote
	tok := s.makeToken(TokenString)
	tok.Literal = s.source[s.start+1 : s.current-1]
	return tok, true
}

// number reads digits with an optional fractional part. A trailing '.' not
// followed by a digit is left for the next token.
func (s *Scanner) number() Token {
	for isDigit(s.peek()) {
		s.current++
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.current++
		for isDigit(s.peek()) {
			s.current++
		}
	}

	tok := s.makeToken(TokenNumber)
	// The lexeme is digits with at most one interior dot, so parsing only
	// fails on overflow, where ParseFloat still returns ±Inf.
	n, _ := strconv.ParseFloat(tok.Lexeme, 64)
	tok.Literal = n
	return tok
}

func (s *Scanner) identifier() Token {
	for isAlpha(s.peek()) || isDigit(s.peek()) {
		s.current++
	}
	tok := s.makeToken(TokenIdentifier)
	if t, ok := keywords[tok.Lexeme]; ok {
		tok.Type = t
	}
	return tok
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
