package kvnl

import (
	"bytes"
	"fmt"
	"io"
)

// EncodeSpec writes a raw specification followed by '='. The lone "\n"
// sentinel is written without the '='.
func (e *Encoder) EncodeSpec(spec []byte) error {
	if e.err != nil {
		return e.err
	}
	if err := checkSpecToken(spec); err != nil {
		return err
	}
	if isNewline(spec) {
		return e.emit(e.hash, spec)
	}
	return e.emit(e.hash, append(bytes.Clone(spec), '='))
}

// EncodeValue writes a value followed by a newline. The caller is responsible
// for having declared its size if it contains a newline.
func (e *Encoder) EncodeValue(value []byte) error {
	if e.err != nil {
		return e.err
	}
	buf := make([]byte, 0, len(value)+1)
	buf = append(buf, value...)
	buf = append(buf, '\n')
	return e.emit(e.hash, buf)
}

// EncodeNewline writes a single newline.
func (e *Encoder) EncodeNewline() error {
	if e.err != nil {
		return e.err
	}
	return e.emit(e.hash, []byte{'\n'})
}

// EncodeBlank writes the blank line that ends a block.
func (e *Encoder) EncodeBlank() error {
	return e.EncodeNewline()
}

// EncodeLine writes one line, choosing the framing according to the encoder's
// Sizing.
//
// A line keyed by the hash algorithm name must carry the current digest; it
// is checked and not hashed.
//
// Example:
//
//	enc.EncodeLine(kvnl.Line{Key: "name", Value: []byte("multi\nline")}) // writes "name:10=multi\nline\n"
func (e *Encoder) EncodeLine(line Line) error {
	if e.err != nil {
		return e.err
	}
	return e.encodeLine(line, e.hash)
}

func (e *Encoder) encodeLine(line Line, h Hash) error {
	buf, hashed, err := e.frameLine(line, h)
	if err != nil {
		return err
	}
	if !hashed {
		h = nil
	}
	return e.emit(h, buf)
}

// frameLine renders one line. hashed reports whether the bytes belong in h;
// a hash line is checked against h and then left out of it.
func (e *Encoder) frameLine(line Line, h Hash) (buf []byte, hashed bool, err error) {
	if line.Blank {
		return []byte{'\n'}, h != nil, nil
	}
	if isHashKey(h, line.Key) {
		if err := checkHash(h, line.Value, -1); err != nil {
			return nil, false, err
		}
		h = nil
	}

	hasNewline := bytes.IndexByte(line.Value, '\n') >= 0
	var sized bool
	switch e.sizing {
	case SizeAlways:
		sized = true
	case SizeNever:
		if hasNewline {
			return nil, false, fmt.Errorf("%w: unsized value of %q contains a newline", ErrFraming, line.Key)
		}
	default:
		sized = len(line.Value) > SizeThreshold || hasNewline
	}

	spec, err := EncodeSpec(line.Key, len(line.Value), sized)
	if err != nil {
		return nil, false, err
	}

	// Format: <spec>=<value>\n
	buf = make([]byte, 0, len(spec)+len(line.Value)+2)
	buf = append(buf, spec...)
	buf = append(buf, '=')
	buf = append(buf, line.Value...)
	buf = append(buf, '\n')
	return buf, h != nil, nil
}

// EncodeBlock writes lines, then the hash line if a hash is set, then the
// unhashed lines, then a blank line.
//
// The block is rendered before anything is written, so on error the writer
// sees none of it. The hash may still have absorbed the lines before the
// failing one.
//
// If the writer blocks, the whole block is still queued and EncodeBlock
// returns ErrWouldBlock.
func (e *Encoder) EncodeBlock(lines, unhashed []Line) error {
	if e.err != nil {
		return e.err
	}
	if hasBlank(lines) || hasBlank(unhashed) {
		return fmt.Errorf("%w: blank line inside block", ErrMalformedSpecification)
	}

	var block []byte
	add := func(line Line, h Hash) error {
		buf, hashed, err := e.frameLine(line, h)
		if err != nil {
			return err
		}
		if hashed {
			updateHash(h, buf)
		}
		block = append(block, buf...)
		return nil
	}
	for _, line := range lines {
		if err := add(line, e.hash); err != nil {
			return err
		}
	}
	if e.hash != nil {
		seal := Line{Key: e.hash.Name(), Value: []byte(e.hash.HexDigest())}
		if err := add(seal, nil); err != nil {
			return err
		}
	}
	for _, line := range unhashed {
		if err := add(line, nil); err != nil {
			return err
		}
	}
	block = append(block, '\n')

	if err := e.emit(nil, block); !ignorable(err) {
		return err
	}
	e.log.Debug("encoded block", "lines", len(lines), "unhashed", len(unhashed), "sealed", e.hash != nil)
	if len(e.pending) > 0 {
		return ErrWouldBlock
	}
	return nil
}

func hasBlank(lines []Line) bool {
	for _, line := range lines {
		if line.Blank {
			return true
		}
	}
	return false
}

func ignorable(err error) bool {
	return err == nil || err == ErrWouldBlock
}

// emit hashes data and writes it, queueing whatever the writer does not take.
func (e *Encoder) emit(h Hash, data []byte) error {
	updateHash(h, data)
	if len(e.pending) > 0 {
		e.pending = append(e.pending, data...)
		return e.Flush()
	}
	n, err := e.w.Write(data)
	if err != nil && !isWouldBlock(err) {
		return err
	}
	if n < len(data) {
		e.pending = append(e.pending, data[n:]...)
		return ErrWouldBlock
	}
	return nil
}

// Flush writes queued bytes. It returns ErrWouldBlock while some remain.
func (e *Encoder) Flush() error {
	for len(e.pending) > 0 {
		n, err := e.w.Write(e.pending)
		e.pending = e.pending[n:]
		if err != nil && !isWouldBlock(err) {
			return err
		}
		if len(e.pending) > 0 && (n == 0 || err != nil) {
			return ErrWouldBlock
		}
	}
	e.pending = nil
	return nil
}

// Buffered returns the number of bytes waiting to be written.
func (e *Encoder) Buffered() int {
	return len(e.pending)
}

// SetHash replaces the hash.
func (e *Encoder) SetHash(h Hash) {
	e.hash = h
}

// Hash returns the current hash, or nil.
func (e *Encoder) Hash() Hash {
	return e.hash
}

// Writer returns the underlying writer.
func (e *Encoder) Writer() io.Writer {
	return e.w
}
