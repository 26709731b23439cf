package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode %d has no metadata", op)
		}
	}
	if got, want := len(AllOpcodes()), OpcodeCount(); got != want {
		t.Errorf("AllOpcodes() returned %d opcodes, table has %d", got, want)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpConstant, "OP_CONSTANT"},
		{OpNil, "OP_NIL"},
		{OpEqual, "OP_EQUAL"},
		{OpAdd, "OP_ADD"},
		{OpSubtract, "OP_SUBTRACT"},
		{OpDivide, "OP_DIVIDE"},
		{OpNegate, "OP_NEGATE"},
		{OpReturn, "OP_RETURN"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if _, ok := LookupOpcodeInfo(op); ok {
		t.Error("LookupOpcodeInfo(0xEE) reported a defined opcode")
	}
}

func TestInstructionLen(t *testing.T) {
	for _, op := range AllOpcodes() {
		want := 1
		if op == OpConstant {
			want = 2
		}
		if got := op.InstructionLen(); got != want {
			t.Errorf("%s.InstructionLen() = %d, want %d", op, got, want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	binary := map[Opcode]bool{
		OpEqual: true, OpGreater: true, OpLess: true,
		OpAdd: true, OpSubtract: true, OpMultiply: true, OpDivide: true,
	}
	for _, op := range AllOpcodes() {
		if got := op.IsBinary(); got != binary[op] {
			t.Errorf("%s.IsBinary() = %v, want %v", op, got, binary[op])
		}
		info := GetOpcodeInfo(op)
		if op.IsBinary() && (info.StackPop != 2 || info.StackPush != 1) {
			t.Errorf("%s stack effect = -%d/+%d, want -2/+1", op, info.StackPop, info.StackPush)
		}
	}
}
