package bytecode

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies which member of the Value union is populated.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is a Lox runtime value. Values are compared and copied by content;
// the zero Value is nil.
type Value struct {
	kind ValueKind
	num  float64
	b    bool
	str  string
}

// Nil is the nil value.
var Nil = Value{}

func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsBool() bool { return v.b }
func (v Value) AsString() string { return v.str }

// IsFalsey reports whether v counts as false in a logical context.
// Only nil and false are falsey; 0 and "" are truthy.
func (v Value) IsFalsey() bool {
	return v.kind == KindNil || (v.kind == KindBool && !v.b)
}

// Equal compares two values by content. Values of different kinds are never
// equal. NaN is not equal to itself.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	}
	return false
}

// String renders v the way the VM prints program results.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.num)
	case KindString:
		return v.str
	}
	return fmt.Sprintf("<invalid value kind %d>", v.kind)
}

// FormatNumber formats a float64 for display: integral values print without
// a fractional part, everything else in the shortest round-trip form.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		if n == 0 && math.Signbit(n) {
			return "-0"
		}
		return strconv.FormatFloat(n, 'f', 0, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}
