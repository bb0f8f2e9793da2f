package kvnl

import (
	"io"
	"log/slog"
)

// source counts the bytes read from the underlying reader so that errors can
// report an offset. Operations created by the same Decoder share one source.
type source struct {
	r   io.Reader
	off int64
}

func asSource(r io.Reader) *source {
	if s, ok := r.(*source); ok {
		return s
	}
	return &source{r: r}
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.off += int64(n)
	return n, err
}

// Decoder reads KVNL from an io.Reader.
//
// The reader may be non-blocking. When a method returns ErrWouldBlock, the
// Decoder keeps the partial field and the same method must be called again to
// finish it; calling a different method returns ErrPending until then.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	src         *source
	hash        Hash
	includeHash bool
	maxSize     int
	log         *slog.Logger
	err         error // configuration error, reported by every method

	pending any
	last    *BlockReader // most recent complete block
}

// NewDecoder creates a new KVNL decoder.
//
// Example:
//
//	dec := kvnl.NewDecoder(conn, kvnl.HashAlgorithm("sha256"), kvnl.MaxSize(1<<20))
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	cfg := newConfig(opts)
	h, err := cfg.resolveHash()
	return &Decoder{
		src:         asSource(r),
		hash:        h,
		includeHash: cfg.includeHash,
		maxSize:     cfg.maxSize,
		log:         cfg.logger,
		err:         err,
	}
}

// Encoder writes KVNL to an io.Writer.
//
// The writer may be non-blocking. Bytes it does not accept are kept and the
// method returns ErrWouldBlock; call Flush until it returns nil. Later encode
// calls queue behind the pending bytes.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	w       io.Writer
	hash    Hash
	sizing  Sizing
	log     *slog.Logger
	err     error
	pending []byte
}

// NewEncoder creates a new KVNL encoder that writes to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	cfg := newConfig(opts)
	h, err := cfg.resolveHash()
	return &Encoder{
		w:      w,
		hash:   h,
		sizing: cfg.sizing,
		log:    cfg.logger,
		err:    err,
	}
}
