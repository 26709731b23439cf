package compiler

import "fmt"

// Precedence is a binding power level for the Pratt parser, ordered from
// lowest to highest. The next level up is Precedence+1.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecPrimary
)

var precedenceNames = [...]string{
	PrecNone:       "NONE",
	PrecAssignment: "ASSIGNMENT",
	PrecOr:         "OR",
	PrecAnd:        "AND",
	PrecEquality:   "EQUALITY",
	PrecComparison: "COMPARISON",
	PrecTerm:       "TERM",
	PrecFactor:     "FACTOR",
	PrecUnary:      "UNARY",
	PrecCall:       "CALL",
	PrecPrimary:    "PRIMARY",
}

func (p Precedence) String() string {
	if p >= 0 && int(p) < len(precedenceNames) {
		return precedenceNames[p]
	}
	return fmt.Sprintf("Precedence(%d)", p)
}

// ParseFn is a prefix or infix handler. It emits bytecode for the construct
// whose first token (prefix) or operator token (infix) was just consumed.
type ParseFn func(*Compiler)

// ParseRule is one row of the Pratt dispatch table.
type ParseRule struct {
	Token      TokenType
	Prefix     ParseFn
	Infix      ParseFn
	Precedence Precedence
}

// rules is indexed by TokenType. It is filled in init because the handlers
// themselves consult the table.
var rules []ParseRule

func init() {
	rules = []ParseRule{
		{TokenLeftParen, (*Compiler).grouping, nil, PrecNone},
		{TokenRightParen, nil, nil, PrecNone},
		{TokenLeftBrace, nil, nil, PrecNone},
		{TokenRightBrace, nil, nil, PrecNone},
		{TokenComma, nil, nil, PrecNone},
		{TokenDot, nil, nil, PrecNone},
		{TokenMinus, (*Compiler).unary, (*Compiler).binary, PrecTerm},
		{TokenPlus, nil, (*Compiler).binary, PrecTerm},
		{TokenSemicolon, nil, nil, PrecNone},
		{TokenSlash, nil, (*Compiler).binary, PrecFactor},
		{TokenStar, nil, (*Compiler).binary, PrecFactor},
		{TokenBang, (*Compiler).unary, nil, PrecNone},
		{TokenBangEqual, nil, (*Compiler).binary, PrecEquality},
		{TokenEqual, nil, nil, PrecNone},
		{TokenEqualEqual, nil, (*Compiler).binary, PrecEquality},
		{TokenGreater, nil, (*Compiler).binary, PrecComparison},
		{TokenGreaterEqual, nil, (*Compiler).binary, PrecComparison},
		{TokenLess, nil, (*Compiler).binary, PrecComparison},
		{TokenLessEqual, nil, (*Compiler).binary, PrecComparison},
		{TokenIdentifier, nil, nil, PrecNone},
		{TokenString, (*Compiler).stringLiteral, nil, PrecNone},
		{TokenNumber, (*Compiler).number, nil, PrecNone},
		{TokenAnd, nil, nil, PrecNone},
		{TokenClass, nil, nil, PrecNone},
		{TokenElse, nil, nil, PrecNone},
		{TokenFalse, (*Compiler).literal, nil, PrecNone},
		{TokenFun, nil, nil, PrecNone},
		{TokenFor, nil, nil, PrecNone},
		{TokenIf, nil, nil, PrecNone},
		{TokenNil, (*Compiler).literal, nil, PrecNone},
		{TokenOr, nil, nil, PrecNone},
		{TokenPrint, nil, nil, PrecNone},
		{TokenReturn, nil, nil, PrecNone},
		{TokenSuper, nil, nil, PrecNone},
		{TokenThis, nil, nil, PrecNone},
		{TokenTrue, (*Compiler).literal, nil, PrecNone},
		{TokenVar, nil, nil, PrecNone},
		{TokenWhile, nil, nil, PrecNone},
		{TokenEOF, nil, nil, PrecNone},
	}

	// The table is maintained by hand alongside TokenType; a drift is a
	// programming error and must not reach a compilation.
	if err := validateRules(rules); err != nil {
		panic(fmt.Sprintf("compiler: %v", err))
	}
}

// getRule returns the parse rule for t.
func getRule(t TokenType) *ParseRule {
	return &rules[t]
}

// Rules returns a copy of the parse rule table in TokenType order.
func Rules() []ParseRule {
	out := make([]ParseRule, len(rules))
	copy(out, rules)
	return out
}

// ValidateRules checks that the live parse rule table has exactly one entry
// per TokenType at the position matching its ordinal.
func ValidateRules() error {
	return validateRules(rules)
}

func validateRules(table []ParseRule) error {
	types := AllTokenTypes()
	if len(table) != len(types) {
		return fmt.Errorf("parse rule table has %d entries, want %d (one per token type)", len(table), len(types))
	}
	for _, t := range types {
		rule := table[t]
		if rule.Token != t {
			return fmt.Errorf("parse rule at position %d is for %s, want %s", int(t), rule.Token, t)
		}
		if rule.Precedence > PrecNone && rule.Infix == nil {
			return fmt.Errorf("parse rule for %s has precedence %s but no infix handler", t, rule.Precedence)
		}
	}
	return nil
}
