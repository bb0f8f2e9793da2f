package kvnl

import (
	"bytes"
	"io"
)

// MarshalLine returns the encoding of one line.
//
// Example:
//
//	kvnl.MarshalLine(kvnl.Line{Key: "name", Value: []byte("data")}) // "name=data\n"
func MarshalLine(line Line, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf, opts...).EncodeLine(line); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalBlock returns the encoding of one block, sealed with a hash line
// when a hash is configured.
func MarshalBlock(lines, unhashed []Line, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf, opts...).EncodeBlock(lines, unhashed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSpec decodes the specification at the start of data.
func UnmarshalSpec(data []byte, opts ...Option) ([]byte, error) {
	return NewDecoder(bytes.NewReader(data), opts...).DecodeSpec()
}

// UnmarshalValue decodes the value at the start of data.
func UnmarshalValue(data []byte, size int, sized bool, opts ...Option) ([]byte, error) {
	return NewDecoder(bytes.NewReader(data), opts...).DecodeValue(size, sized)
}

// UnmarshalLine decodes the line at the start of data.
func UnmarshalLine(data []byte, opts ...Option) (Line, error) {
	return NewDecoder(bytes.NewReader(data), opts...).DecodeLine()
}

// UnmarshalBlock decodes the block at the start of data.
func UnmarshalBlock(data []byte, opts ...Option) ([]Line, error) {
	lines, err := NewDecoder(bytes.NewReader(data), opts...).DecodeBlock()
	if err == io.EOF {
		return nil, &FormatError{Reason: "no block in input", Err: io.ErrUnexpectedEOF}
	}
	return lines, err
}
