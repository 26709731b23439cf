package bytecode

import (
	"errors"
	"fmt"
)

// MaxConstants is the number of constants addressable by a one-byte operand.
const MaxConstants = 256

// ErrInvalidChunk is returned by Validate when a chunk violates a structural
// invariant.
var ErrInvalidChunk = errors.New("invalid chunk")

// Chunk is a compiled unit: bytecode, a parallel line table, and a constant
// pool. The compiler is the only writer; the VM treats a chunk as read-only.
type Chunk struct {
	Code      []byte  // Bytecode instructions
	Lines     []int   // Source line for each byte in Code
	Constants []Value // Constant pool, indexed by OP_CONSTANT operands
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Lines:     make([]int, 0, 64),
		Constants: make([]Value, 0, 8),
	}
}

// Write appends a byte to the code section, tagged with its source line.
func (c *Chunk) Write(b byte, line int) int {
	offset := len(c.Code)
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	return offset
}

// WriteOp appends a single-byte opcode.
func (c *Chunk) WriteOp(op Opcode, line int) int {
	return c.Write(byte(op), line)
}

// AddConstant appends v to the constant pool and returns its index.
// Constants are not deduplicated. The returned index may exceed the one-byte
// operand range; callers that emit OP_CONSTANT must check it against
// MaxConstants.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// LineAt returns the source line recorded for the byte at offset, or 0 if
// offset is out of range.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// InstructionCount returns the number of instructions in the chunk.
// Unknown opcodes count as one-byte instructions.
func (c *Chunk) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(c.Code) {
		offset += Opcode(c.Code[offset]).InstructionLen()
		count++
	}
	return count
}

// Validate checks the structural invariants of a chunk: the line table is
// parallel to the code, every opcode is known, no instruction is truncated,
// and every constant index is in range.
func (c *Chunk) Validate() error {
	if len(c.Lines) != len(c.Code) {
		return fmt.Errorf("%w: %d lines for %d code bytes", ErrInvalidChunk, len(c.Lines), len(c.Code))
	}
	if len(c.Constants) > MaxConstants {
		return fmt.Errorf("%w: %d constants exceeds limit of %d", ErrInvalidChunk, len(c.Constants), MaxConstants)
	}
	offset := 0
	for offset < len(c.Code) {
		op := Opcode(c.Code[offset])
		info, ok := LookupOpcodeInfo(op)
		if !ok {
			return fmt.Errorf("%w: unknown opcode %d at offset %04d", ErrInvalidChunk, byte(op), offset)
		}
		if offset+info.OperandLen >= len(c.Code) && info.OperandLen > 0 {
			return fmt.Errorf("%w: truncated %s at offset %04d", ErrInvalidChunk, info.Name, offset)
		}
		if op == OpConstant {
			idx := int(c.Code[offset+1])
			if idx >= len(c.Constants) {
				return fmt.Errorf("%w: constant index %d out of range at offset %04d", ErrInvalidChunk, idx, offset)
			}
		}
		offset += 1 + info.OperandLen
	}
	return nil
}
