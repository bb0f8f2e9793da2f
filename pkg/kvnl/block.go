package kvnl

import (
	"io"
)

// BlockReader reads the lines of one block.
//
// If a hash is set, the first line keyed by its algorithm name is the hash
// line: it is checked, and lines after it are not hashed. It is returned only
// with IncludeHash.
type BlockReader struct {
	src         *source
	hash        Hash
	includeHash bool
	maxSize     int

	line     *LineReader
	started  bool
	sealed   bool
	sealAt   int // lines returned before the hash line
	returned int
	done     bool
	err      error
}

// NewBlockReader creates a BlockReader. WithHash, IncludeHash and MaxSize apply.
func NewBlockReader(r io.Reader, opts ...Option) *BlockReader {
	cfg := newConfig(opts)
	return newBlockReader(asSource(r), cfg.hash, cfg.includeHash, cfg.maxSize)
}

func newBlockReader(src *source, h Hash, includeHash bool, maxSize int) *BlockReader {
	return &BlockReader{src: src, hash: h, includeHash: includeHash, maxSize: maxSize}
}

// Poll returns the next line of the block, or ErrWouldBlock. At the end of the
// block it returns BlankLine, and keeps returning it.
//
// If the source ends cleanly before the block starts, Poll returns io.EOF. If it
// ends inside the block, the error wraps io.ErrUnexpectedEOF.
func (b *BlockReader) Poll() (Line, error) {
	for {
		if b.err != nil {
			return Line{}, b.err
		}
		if b.done {
			return BlankLine, nil
		}

		if b.line == nil {
			h := b.hash
			if b.sealed {
				h = nil
			}
			b.line = newLineReader(b.src, h, b.maxSize)
		}
		line, err := b.line.Poll()
		if err == ErrWouldBlock {
			return Line{}, err
		}
		if err != nil {
			if err == io.EOF && b.started {
				err = &FormatError{
					Offset: b.src.off,
					Reason: "unexpected EOF inside block",
					Err:    io.ErrUnexpectedEOF,
				}
			}
			b.err = err
			return Line{}, err
		}

		b.line = nil
		b.started = true
		if line.Blank {
			b.done = true
			return BlankLine, nil
		}
		if !b.sealed && isHashKey(b.hash, line.Key) {
			b.sealed = true
			b.sealAt = b.returned
			if !b.includeHash {
				continue
			}
		}
		b.returned++
		return line, nil
	}
}

// Sealed reports whether the block contained a hash line so far.
func (b *BlockReader) Sealed() bool {
	return b.sealed
}

// Split divides the lines this reader returned into the hashed lines and the
// unhashed lines after the hash line, dropping the hash line itself.
func (b *BlockReader) Split(lines []Line) (hashed, unhashed []Line) {
	if !b.sealed || b.sealAt > len(lines) {
		return lines, nil
	}
	hashed, unhashed = lines[:b.sealAt:b.sealAt], lines[b.sealAt:]
	if b.includeHash && len(unhashed) > 0 {
		unhashed = unhashed[1:]
	}
	return hashed, unhashed
}

// next adapts the reader to a Buffer.
func (b *BlockReader) next() (Line, bool, error) {
	line, err := b.Poll()
	if err != nil {
		return Line{}, false, err
	}
	if line.Blank {
		return Line{}, false, nil
	}
	return line, true, nil
}
