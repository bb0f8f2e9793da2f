package kvnl

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// Initial buffer size, and the read size when reading to EOF.
	spanChunk = 1024
	// Largest buffer allocated up front for a declared size.
	maxInitialSpan = 64 * 1024
)

// SpanOptions selects what a SpanReader reads.
//
// With Sized, reading stops after exactly Size bytes. With Delims, reading
// stops right after any of the delimiters; the delimiter is part of the span.
// With both, whichever comes first wins. With neither, the span runs to EOF.
type SpanOptions struct {
	Size   int
	Sized  bool
	Delims [][]byte

	// Hash, if set, is fed the finished span.
	Hash Hash

	// AllowEOF makes Poll return io.EOF instead of an error when the
	// source ends before the first byte.
	AllowEOF bool

	// MaxSize limits the span length, not counting a matched delimiter.
	// Zero means no limit.
	MaxSize int
}

// SpanReader reads one bounded or delimited span from a reader that may not
// have data yet.
//
// The buffer belongs to the SpanReader until the span is complete. It is then
// handed to the caller and the SpanReader never touches it again.
type SpanReader struct {
	src  *source
	opts SpanOptions
	buf  []byte
	pos  int
	err  error

	done   bool
	result []byte
}

// NewSpanReader creates a SpanReader. Invalid options are reported by the
// first call to Poll.
func NewSpanReader(r io.Reader, opts SpanOptions) *SpanReader {
	return newSpanReader(asSource(r), opts)
}

func newSpanReader(src *source, opts SpanOptions) *SpanReader {
	s := &SpanReader{src: src, opts: opts}

	if opts.Sized && opts.Size < 0 {
		s.err = fmt.Errorf("%w: %d", ErrInvalidSize, opts.Size)
		return s
	}
	for _, d := range opts.Delims {
		if len(d) == 0 {
			s.err = fmt.Errorf("%w: delimiters must be non-empty", ErrInvalidDelimiter)
			return s
		}
	}
	if opts.Sized && opts.MaxSize > 0 && opts.Size > opts.MaxSize {
		s.err = &FormatError{
			Offset: src.off,
			Reason: fmt.Sprintf("declared size %d exceeds maximum %d", opts.Size, opts.MaxSize),
			Err:    ErrTooLarge,
		}
		return s
	}

	initial := spanChunk
	if opts.Sized && len(opts.Delims) == 0 {
		initial = min(opts.Size, maxInitialSpan)
	}
	s.buf = make([]byte, initial)
	return s
}

// Poll reads as much of the span as the source allows. It returns
// ErrWouldBlock until the span is complete, then the span. Further calls
// return the same span without reading.
func (s *SpanReader) Poll() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return s.result, nil
	}

	for {
		want := s.request()
		if want == 0 {
			break
		}
		s.grow(want)

		n, err := s.src.Read(s.buf[s.pos : s.pos+want])
		if n > 0 {
			s.pos += n
			if d := s.matched(); d > 0 {
				if s.over(s.pos - d) {
					return nil, s.tooLarge()
				}
				break
			}
			if s.over(s.pos - s.longestDelim()) {
				return nil, s.tooLarge()
			}
		}
		if err != nil {
			if isWouldBlock(err) {
				return nil, ErrWouldBlock
			}
			if err == io.EOF {
				if s.request() == 0 {
					break
				}
				return s.eof()
			}
			s.err = err
			return nil, err
		}
		if n == 0 {
			return nil, ErrWouldBlock
		}
	}

	s.finish()
	return s.result, nil
}

// request returns how many bytes to ask the source for next.
func (s *SpanReader) request() int {
	if s.opts.Sized {
		remaining := s.opts.Size - s.pos
		if remaining == 0 {
			return 0
		}
		if len(s.opts.Delims) > 0 {
			return 1
		}
		return remaining
	}
	if len(s.opts.Delims) > 0 {
		return 1
	}
	return spanChunk
}

// grow doubles the buffer until want more bytes fit after the cursor.
func (s *SpanReader) grow(want int) {
	need := s.pos + want
	if need <= len(s.buf) {
		return
	}
	size := max(len(s.buf), 1)
	for size < need {
		size *= 2
	}
	buf := make([]byte, size)
	copy(buf, s.buf[:s.pos])
	s.buf = buf
}

// matched returns the length of the delimiter the buffer ends with, or zero.
func (s *SpanReader) matched() int {
	for _, d := range s.opts.Delims {
		if s.pos >= len(d) && bytes.Equal(s.buf[s.pos-len(d):s.pos], d) {
			return len(d)
		}
	}
	return 0
}

func (s *SpanReader) longestDelim() int {
	n := 0
	for _, d := range s.opts.Delims {
		n = max(n, len(d))
	}
	return n
}

func (s *SpanReader) over(n int) bool {
	return s.opts.MaxSize > 0 && n > s.opts.MaxSize
}

func (s *SpanReader) tooLarge() error {
	s.err = &FormatError{
		Offset: s.src.off,
		Reason: fmt.Sprintf("field exceeds maximum %d bytes", s.opts.MaxSize),
		Err:    ErrTooLarge,
	}
	return s.err
}

func (s *SpanReader) eof() ([]byte, error) {
	if !s.opts.Sized && len(s.opts.Delims) == 0 {
		s.finish()
		return s.result, nil
	}
	if s.pos == 0 && s.opts.AllowEOF {
		s.err = io.EOF
		return nil, io.EOF
	}
	s.err = &FormatError{
		Offset: s.src.off,
		Reason: fmt.Sprintf("unexpected EOF after %d bytes", s.pos),
		Err:    io.ErrUnexpectedEOF,
	}
	return nil, s.err
}

func (s *SpanReader) finish() {
	s.result = s.buf[:s.pos:s.pos]
	s.buf = nil
	s.done = true
	updateHash(s.opts.Hash, s.result)
}
