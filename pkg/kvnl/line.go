package kvnl

import (
	"fmt"
	"io"
)

// Line is a key and its value, or the blank line that ends a block.
type Line struct {
	Key   string
	Value []byte
	Blank bool
}

// BlankLine is the sentinel that ends a block.
var BlankLine = Line{Blank: true}

var specDelims = [][]byte{{'='}, {'\n'}}

// LineReader reads one line.
//
// When h is set and the key is h's algorithm name, the value is compared with
// the digest of everything fed to h so far and the line itself is not hashed.
// Every other line is fed to h exactly as it appeared on the wire.
type LineReader struct {
	src     *source
	hash    Hash
	maxSize int
	start   int64

	spec    *SpanReader
	specRaw []byte
	parsed  Spec
	value   *ValueReader

	err  error
	done bool
	line Line
}

// NewLineReader creates a LineReader. Only WithHash and MaxSize apply.
func NewLineReader(r io.Reader, opts ...Option) *LineReader {
	cfg := newConfig(opts)
	return newLineReader(asSource(r), cfg.hash, cfg.maxSize)
}

func newLineReader(src *source, h Hash, maxSize int) *LineReader {
	return &LineReader{src: src, hash: h, maxSize: maxSize, start: src.off}
}

// Poll returns ErrWouldBlock until the line is complete, then the line.
// A blank line is returned as BlankLine. If the source ends before the first
// byte, Poll returns io.EOF.
func (l *LineReader) Poll() (Line, error) {
	if l.err != nil {
		return Line{}, l.err
	}
	if l.done {
		return l.line, nil
	}

	if l.value == nil {
		if l.spec == nil {
			l.spec = newSpanReader(l.src, SpanOptions{Delims: specDelims, AllowEOF: true, MaxSize: l.maxSize})
		}
		raw, err := l.spec.Poll()
		if err != nil {
			return Line{}, l.fail(err)
		}
		if isNewline(raw) {
			updateHash(l.hash, raw)
			l.complete(BlankLine)
			return l.line, nil
		}
		token, err := specToken(raw, l.src.off)
		if err != nil {
			return Line{}, l.fail(err)
		}
		spec, err := ParseSpec(token)
		if err != nil {
			return Line{}, l.fail(&FormatError{
				Offset: l.src.off,
				Reason: fmt.Sprintf("bad specification %q: %v", token, err),
				Err:    err,
			})
		}
		l.specRaw, l.parsed = raw, spec
		l.value = newValueReader(l.src, spec.Size, spec.Sized, nil, l.maxSize)
	}

	value, err := l.value.Poll()
	if err != nil {
		return Line{}, l.fail(err)
	}

	if isHashKey(l.hash, l.parsed.Key) {
		if err := checkHash(l.hash, value, l.start); err != nil {
			return Line{}, l.fail(err)
		}
	} else if l.hash != nil {
		updateHash(l.hash, l.specRaw)
		for _, p := range l.value.raw {
			updateHash(l.hash, p)
		}
	}

	l.complete(Line{Key: l.parsed.Key, Value: value})
	return l.line, nil
}

// specToken strips the '=' from a specification span. A span ending in a
// newline is a specification with an embedded newline.
func specToken(raw []byte, offset int64) ([]byte, error) {
	if raw[len(raw)-1] != '=' {
		return nil, &FormatError{
			Offset: offset,
			Reason: fmt.Sprintf("specification %q contains a newline", raw),
			Err:    ErrMalformedSpecification,
		}
	}
	return raw[:len(raw)-1], nil
}

func (l *LineReader) complete(line Line) {
	l.line = line
	l.done = true
}

func (l *LineReader) fail(err error) error {
	if err != ErrWouldBlock {
		l.err = err
	}
	return err
}
