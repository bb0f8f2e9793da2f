package kvnl

import (
	"io"
	"log/slog"
)

// Stream binds a reader, a writer and a hash algorithm.
//
// Load and Dump start every block with a fresh hash, so each block's digest
// covers only that block. A Stream made by NewLoadStream cannot dump, and one
// made by NewDumpStream cannot load.
type Stream struct {
	dec         *Decoder
	enc         *Encoder
	algorithm   string
	includeHash bool
	reportReady bool
	maxSize     int
	log         *slog.Logger

	loading bool
}

// NewLoadStream creates a Stream that reads from r.
func NewLoadStream(r io.Reader, opts ...Option) (*Stream, error) {
	return newStream(r, nil, opts)
}

// NewDumpStream creates a Stream that writes to w.
func NewDumpStream(w io.Writer, opts ...Option) (*Stream, error) {
	return newStream(nil, w, opts)
}

// NewStream creates a Stream that reads from r and writes to w.
func NewStream(r io.Reader, w io.Writer, opts ...Option) (*Stream, error) {
	return newStream(r, w, opts)
}

func newStream(r io.Reader, w io.Writer, opts []Option) (*Stream, error) {
	cfg := newConfig(opts)
	s := &Stream{
		algorithm:   cfg.algorithm,
		includeHash: cfg.includeHash,
		reportReady: cfg.reportReady,
		maxSize:     cfg.maxSize,
		log:         cfg.logger,
	}
	if cfg.hash != nil {
		s.algorithm = cfg.hash.Name()
	}
	if _, err := s.newHash(); err != nil {
		return nil, err
	}

	// The hash is bound per pass, so the codecs are built without one.
	base := []Option{MaxSize(cfg.maxSize), WithSizing(cfg.sizing), WithLogger(cfg.logger)}
	if cfg.includeHash {
		base = append(base, IncludeHash())
	}
	if r != nil {
		s.dec = NewDecoder(r, base...)
	}
	if w != nil {
		s.enc = NewEncoder(w, base...)
	}
	return s, nil
}

func (s *Stream) newHash() (Hash, error) {
	if s.algorithm == "" {
		return nil, nil
	}
	return NewHash(s.algorithm)
}

// Algorithm returns the hash algorithm name, or "".
func (s *Stream) Algorithm() string {
	return s.algorithm
}

// Decoder returns the bound decoder, or nil for a dump-only stream.
func (s *Stream) Decoder() *Decoder {
	return s.dec
}

// Encoder returns the bound encoder, or nil for a load-only stream.
func (s *Stream) Encoder() *Encoder {
	return s.enc
}

// Load reads one block with a fresh hash. After ErrWouldBlock, call Load again
// to continue the same block. Returns io.EOF at a clean end of stream.
func (s *Stream) Load() ([]Line, error) {
	if s.dec == nil {
		return nil, ErrNoSource
	}
	if !s.loading {
		if s.dec.Pending() {
			return nil, ErrPending
		}
		h, err := s.newHash()
		if err != nil {
			return nil, err
		}
		s.dec.SetHash(h)
		s.loading = true
	}

	lines, err := s.dec.DecodeBlock()
	if err == ErrWouldBlock {
		return nil, err
	}
	s.loading = false
	if err != nil {
		if err != io.EOF {
			s.log.Debug("block rejected", "error", err, "offset", s.dec.Offset())
		}
		return nil, err
	}
	return lines, nil
}

// bufferedBlock holds the decoder while a LoadBuffered block is unfinished.
type bufferedBlock struct {
	br *BlockReader
}

// LoadBuffered starts reading one block with a fresh hash and returns a Buffer
// that yields all of its lines at once. With ReportReady, the Buffer returns
// ErrReady when the block has been read.
//
// Until the Buffer has read the whole block or failed, the decoder is busy
// and Load and the Decoder methods return ErrPending.
func (s *Stream) LoadBuffered() (*Buffer[Line], error) {
	if s.dec == nil {
		return nil, ErrNoSource
	}
	if s.dec.Pending() || s.loading {
		return nil, ErrPending
	}
	h, err := s.newHash()
	if err != nil {
		return nil, err
	}
	s.dec.SetHash(h)
	br := newBlockReader(s.dec.src, h, s.includeHash, s.maxSize)
	op := &bufferedBlock{br: br}
	s.dec.pending = op
	next := func() (Line, bool, error) {
		line, ok, err := br.next()
		if err != ErrWouldBlock && (err != nil || !ok) && s.dec.pending == op {
			s.dec.pending = nil
			if err == nil {
				s.dec.last = br
			}
		}
		return line, ok, err
	}
	var opts []Option
	if s.reportReady {
		opts = append(opts, ReportReady())
	}
	return NewBuffer(next, opts...), nil
}

// Dump writes one block with a fresh hash. If the writer blocks, the block is
// queued and Dump returns ErrWouldBlock; call Flush to finish it.
func (s *Stream) Dump(lines, unhashed []Line) error {
	if s.enc == nil {
		return ErrNoSink
	}
	h, err := s.newHash()
	if err != nil {
		return err
	}
	s.enc.SetHash(h)
	return s.enc.EncodeBlock(lines, unhashed)
}

// Flush writes bytes queued by Dump.
func (s *Stream) Flush() error {
	if s.enc == nil {
		return ErrNoSink
	}
	return s.enc.Flush()
}
