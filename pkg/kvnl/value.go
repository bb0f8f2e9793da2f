package kvnl

import (
	"fmt"
	"io"
)

var newlineDelim = [][]byte{{'\n'}}

// ValueReader reads the value part of a line, including its trailing newline.
//
// A sized value is exactly size bytes followed by a newline. An unsized value
// runs up to the first newline, which is not part of the result.
type ValueReader struct {
	src     *source
	size    int
	sized   bool
	hash    Hash
	maxSize int

	value   *SpanReader
	trailer *SpanReader
	span    []byte
	spanned bool
	raw     [][]byte // wire bytes of the value and its framing

	err    error
	done   bool
	result []byte
}

// NewValueReader creates a ValueReader. When sized is false, size is ignored.
// Only WithHash and MaxSize apply.
func NewValueReader(r io.Reader, size int, sized bool, opts ...Option) *ValueReader {
	cfg := newConfig(opts)
	return newValueReader(asSource(r), size, sized, cfg.hash, cfg.maxSize)
}

func newValueReader(src *source, size int, sized bool, h Hash, maxSize int) *ValueReader {
	return &ValueReader{src: src, size: size, sized: sized, hash: h, maxSize: maxSize}
}

// Poll returns ErrWouldBlock until the value is complete, then the value.
func (v *ValueReader) Poll() ([]byte, error) {
	if v.err != nil {
		return nil, v.err
	}
	if v.done {
		return v.result, nil
	}

	if v.value == nil {
		opts := SpanOptions{Hash: v.hash, MaxSize: v.maxSize}
		if v.sized {
			opts.Size, opts.Sized = v.size, true
		} else {
			opts.Delims = newlineDelim
		}
		v.value = newSpanReader(v.src, opts)
	}
	if !v.spanned {
		span, err := v.value.Poll()
		if err != nil {
			return nil, v.fail(err)
		}
		v.span, v.spanned = span, true
		if !v.sized {
			v.raw = [][]byte{span}
			v.complete(span[:len(span)-1])
			return v.result, nil
		}
	}

	if v.trailer == nil {
		v.trailer = newSpanReader(v.src, SpanOptions{Delims: newlineDelim, Hash: v.hash, MaxSize: v.maxSize})
	}
	rest, err := v.trailer.Poll()
	if err != nil {
		return nil, v.fail(err)
	}
	if !isNewline(rest) {
		v.err = &FormatError{
			Offset: v.src.off,
			Reason: fmt.Sprintf("got %d extra bytes after sized value", len(rest)-1),
			Err:    ErrFraming,
		}
		return nil, v.err
	}
	v.raw = [][]byte{v.span, rest}
	v.complete(v.span)
	return v.result, nil
}

func (v *ValueReader) complete(value []byte) {
	v.result = value
	v.done = true
}

func (v *ValueReader) fail(err error) error {
	if err != ErrWouldBlock {
		v.err = err
	}
	return err
}
