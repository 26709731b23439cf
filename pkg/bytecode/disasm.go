package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every instruction in the
// chunk, preceded by a "== name ==" header.
func Disassemble(c *Chunk, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)
	for _, line := range DisassembleToLines(c) {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DisassembleToLines returns the listing as a slice of lines, one per
// instruction, without the header. A nil chunk yields no lines.
func DisassembleToLines(c *Chunk) []string {
	if c == nil {
		return nil
	}
	var lines []string
	offset := 0
	for offset < len(c.Code) {
		next, text := DisassembleInstruction(c, offset)
		lines = append(lines, text)
		offset = next
	}
	return lines
}

// DisassembleInstruction decodes the single instruction at offset and returns
// the offset of the next instruction together with its listing line:
//
//	OFFSET LINE MNEMONIC [index 'constant']
//
// The line column shows "   |" when the source line matches the previous
// byte's. Unknown opcodes and truncated operands are reported in the text
// rather than causing a panic, so malformed chunks remain inspectable. A nil
// chunk has no code.
func DisassembleInstruction(c *Chunk, offset int) (int, string) {
	if c == nil || offset < 0 || offset >= len(c.Code) {
		return offset, fmt.Sprintf("%04d <end of code>", offset)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d ", offset)
	if offset > 0 && c.LineAt(offset) == c.LineAt(offset-1) {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(&sb, "%4d ", c.LineAt(offset))
	}

	op := Opcode(c.Code[offset])
	info, ok := LookupOpcodeInfo(op)
	if !ok {
		fmt.Fprintf(&sb, "Unknown opcode %d", byte(op))
		return offset + 1, sb.String()
	}

	switch op {
	case OpConstant:
		return constantInstruction(&sb, info.Name, c, offset)
	default:
		sb.WriteString(info.Name)
		return offset + 1, sb.String()
	}
}

func constantInstruction(sb *strings.Builder, name string, c *Chunk, offset int) (int, string) {
	if offset+1 >= len(c.Code) {
		fmt.Fprintf(sb, "%-16s <missing operand>", name)
		return offset + 1, sb.String()
	}
	idx := int(c.Code[offset+1])
	if idx >= len(c.Constants) {
		fmt.Fprintf(sb, "%-16s %d <bad constant index>", name, idx)
		return offset + 2, sb.String()
	}
	fmt.Fprintf(sb, "%-16s %d '%s'", name, idx, c.Constants[idx])
	return offset + 2, sb.String()
}
