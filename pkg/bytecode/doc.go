// Package bytecode defines the compiled form of a Lox expression: a Chunk of
// single-byte opcodes with a parallel line table and a constant pool, the
// runtime Value domain the constant pool holds, a disassembler, and the
// CBOR-based ".loxc" file format.
//
// # Chunk layout
//
// A Chunk owns three append-only sequences:
//
//   - Code: the instruction stream. Every opcode is one byte; OP_CONSTANT is
//     followed by a one-byte index into the constant pool.
//   - Lines: one source line per byte of Code, so len(Lines) == len(Code)
//     always holds.
//   - Constants: the constant pool. Indices are assigned in insertion order
//     and must fit in a byte, which caps a chunk at MaxConstants entries.
//
// Chunks are built by the compiler during a single pass and treated as
// read-only once handed to the VM. Chunks loaded from disk or received over
// the wire must pass Validate before execution.
//
// # Disassembly
//
// Disassemble renders a chunk in the classic listing form:
//
//	== expr ==
//	0000    1 OP_CONSTANT      0 '1.2'
//	0002    | OP_NEGATE
//	0003    | OP_RETURN
//
// The same instruction decoder drives VM tracing, so a trace and a listing of
// the same chunk always agree.
package bytecode
