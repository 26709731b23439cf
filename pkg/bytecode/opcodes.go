package bytecode

import "fmt"

// Opcode is a single-byte instruction tag.
type Opcode byte

const (
	// ========================================================================
	// Constants and literals
	// ========================================================================

	OpConstant Opcode = iota // Push constant from pool: OP_CONSTANT <index:u8>
	OpNil                    // Push nil
	OpTrue                   // Push true
	OpFalse                  // Push false

	// ========================================================================
	// Comparison
	// ========================================================================

	OpEqual   // Pop two, push a == b
	OpGreater // Pop two, push a > b (numbers only)
	OpLess    // Pop two, push a < b (numbers only)

	// ========================================================================
	// Arithmetic
	// ========================================================================

	OpAdd      // Pop two, push a + b
	OpSubtract // Pop two, push a - b where b is TOS
	OpMultiply // Pop two, push a * b
	OpDivide   // Pop two, push a / b (IEEE-754)

	// ========================================================================
	// Unary
	// ========================================================================

	OpNot    // Pop one, push its logical negation
	OpNegate // Pop one number, push its arithmetic negation

	// ========================================================================
	// Return
	// ========================================================================

	OpReturn // Pop TOS and surface it as the program result
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Mnemonic printed by the disassembler
	StackPop   int    // How many values popped from stack
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpConstant: {"OP_CONSTANT", 0, 1, 1},
	OpNil:      {"OP_NIL", 0, 1, 0},
	OpTrue:     {"OP_TRUE", 0, 1, 0},
	OpFalse:    {"OP_FALSE", 0, 1, 0},

	OpEqual:   {"OP_EQUAL", 2, 1, 0},
	OpGreater: {"OP_GREATER", 2, 1, 0},
	OpLess:    {"OP_LESS", 2, 1, 0},

	OpAdd:      {"OP_ADD", 2, 1, 0},
	OpSubtract: {"OP_SUBTRACT", 2, 1, 0},
	OpMultiply: {"OP_MULTIPLY", 2, 1, 0},
	OpDivide:   {"OP_DIVIDE", 2, 1, 0},

	OpNot:    {"OP_NOT", 1, 1, 0},
	OpNegate: {"OP_NEGATE", 1, 1, 0},

	OpReturn: {"OP_RETURN", 1, 0, 0},
}

// LookupOpcodeInfo returns metadata for an opcode and whether it is defined.
func LookupOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(n)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsBinary returns true for opcodes that pop two operands and push one result.
func (op Opcode) IsBinary() bool {
	return op >= OpEqual && op <= OpDivide
}

// AllOpcodes returns every defined opcode in ordinal order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := OpConstant; op <= OpReturn; op++ {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
