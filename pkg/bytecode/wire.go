package bytecode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the current .loxc format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// FileExtension is the conventional suffix for serialized chunks.
const FileExtension = ".loxc"

// FileMagic prefixes every serialized chunk: "LOXC".
var FileMagic = []byte{'L', 'O', 'X', 'C'}

var (
	// ErrBadMagic indicates the data is not a serialized chunk.
	ErrBadMagic = errors.New("not a lox chunk")

	// ErrUnsupportedVersion indicates the chunk was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported chunk version")
)

// wireChunk is the CBOR layout of a Chunk.
type wireChunk struct {
	Version   uint16      `cbor:"1,keyasint"`
	Code      []byte      `cbor:"2,keyasint"`
	Lines     []int       `cbor:"3,keyasint"`
	Constants []wireValue `cbor:"4,keyasint,omitempty"`
}

type wireValue struct {
	Kind   ValueKind `cbor:"1,keyasint"`
	Number float64   `cbor:"2,keyasint,omitempty"`
	Bool   bool      `cbor:"3,keyasint,omitempty"`
	Str    string    `cbor:"4,keyasint,omitempty"`
}

// cborEncMode uses canonical mode so identical chunks encode to identical
// bytes, which keeps cache keys and file hashes stable.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a chunk to the .loxc format: FileMagic followed by a
// CBOR body.
func Marshal(c *Chunk) ([]byte, error) {
	w := wireChunk{
		Version: FormatVersion,
		Code:    c.Code,
		Lines:   c.Lines,
	}
	for _, v := range c.Constants {
		w.Constants = append(w.Constants, wireValue{Kind: v.kind, Number: v.num, Bool: v.b, Str: v.str})
	}
	body, err := cborEncMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal chunk: %w", err)
	}
	out := make([]byte, 0, len(FileMagic)+len(body))
	out = append(out, FileMagic...)
	return append(out, body...), nil
}

// Unmarshal decodes a .loxc payload and validates the resulting chunk.
func Unmarshal(data []byte) (*Chunk, error) {
	if !bytes.HasPrefix(data, FileMagic) {
		return nil, ErrBadMagic
	}
	var w wireChunk
	if err := cbor.Unmarshal(data[len(FileMagic):], &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal chunk: %w", err)
	}
	if w.Version > FormatVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d", ErrUnsupportedVersion, w.Version, FormatVersion)
	}

	c := &Chunk{
		Code:      w.Code,
		Lines:     w.Lines,
		Constants: make([]Value, 0, len(w.Constants)),
	}
	if c.Code == nil {
		c.Code = []byte{}
	}
	if c.Lines == nil {
		c.Lines = []int{}
	}
	for i, wv := range w.Constants {
		switch wv.Kind {
		case KindNil:
			c.Constants = append(c.Constants, Nil)
		case KindBool:
			c.Constants = append(c.Constants, BoolValue(wv.Bool))
		case KindNumber:
			c.Constants = append(c.Constants, NumberValue(wv.Number))
		case KindString:
			c.Constants = append(c.Constants, StringValue(wv.Str))
		default:
			return nil, fmt.Errorf("%w: constant %d has unknown kind %d", ErrInvalidChunk, i, wv.Kind)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
