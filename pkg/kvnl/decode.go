package kvnl

// resume returns the pending operation of type T, or starts a new one when
// nothing is pending.
func resume[T any](d *Decoder, start func() T) (T, error) {
	if d.pending == nil {
		op := start()
		d.pending = op
		return op, nil
	}
	op, ok := d.pending.(T)
	if !ok {
		var zero T
		return zero, ErrPending
	}
	return op, nil
}

// settle forgets the pending operation unless it is waiting for data.
func (d *Decoder) settle(err error) {
	if err != ErrWouldBlock {
		d.pending = nil
	}
}

// DecodeSpan reads a raw span, like SpanReader. If opts.Hash is nil, the
// decoder's hash is used.
func (d *Decoder) DecodeSpan(opts SpanOptions) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	op, err := resume(d, func() *SpanReader {
		if opts.Hash == nil {
			opts.Hash = d.hash
		}
		return newSpanReader(d.src, opts)
	})
	if err != nil {
		return nil, err
	}
	span, err := op.Poll()
	d.settle(err)
	return span, err
}

// DecodeSpec reads the specification part of a line and returns it without
// the '='. A blank line is returned as a lone "\n". The bytes read are fed to
// the decoder's hash.
func (d *Decoder) DecodeSpec() ([]byte, error) {
	raw, err := d.DecodeSpan(SpanOptions{Delims: specDelims, AllowEOF: true, MaxSize: d.maxSize})
	if err != nil {
		return nil, err
	}
	if isNewline(raw) {
		return raw, nil
	}
	return specToken(raw, d.src.off)
}

// DecodeValue reads the value part of a line. When sized is false, size is
// ignored. The bytes read are fed to the decoder's hash.
func (d *Decoder) DecodeValue(size int, sized bool) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	op, err := resume(d, func() *ValueReader {
		return newValueReader(d.src, size, sized, d.hash, d.maxSize)
	})
	if err != nil {
		return nil, err
	}
	value, err := op.Poll()
	d.settle(err)
	return value, err
}

// DecodeLine reads one line. A blank line is returned as BlankLine, and
// io.EOF is returned when the stream ends before the line starts.
func (d *Decoder) DecodeLine() (Line, error) {
	if d.err != nil {
		return Line{}, d.err
	}
	op, err := resume(d, func() *LineReader {
		return newLineReader(d.src, d.hash, d.maxSize)
	})
	if err != nil {
		return Line{}, err
	}
	line, err := op.Poll()
	d.settle(err)
	return line, err
}

// blockOp is a DecodeBlock in progress.
type blockOp struct {
	br  *BlockReader
	buf *Buffer[Line]
}

// DecodeBlock reads lines up to and including the next blank line and returns
// them, without the blank line and, unless IncludeHash was given, without the
// hash line.
//
// Returns io.EOF when the stream ends before the block starts.
func (d *Decoder) DecodeBlock() ([]Line, error) {
	if d.err != nil {
		return nil, d.err
	}
	op, err := resume(d, func() *blockOp {
		br := newBlockReader(d.src, d.hash, d.includeHash, d.maxSize)
		return &blockOp{br: br, buf: NewBuffer(br.next)}
	})
	if err != nil {
		return nil, err
	}
	lines, err := op.buf.Poll()
	d.settle(err)
	if err == nil {
		d.last = op.br
		d.log.Debug("decoded block", "lines", len(lines), "offset", d.src.off)
	}
	return lines, err
}

// SplitBlock divides the lines of the last block read into those covered by
// its hash and those that followed the hash line. The hash line itself, if
// present, is in neither. A block without a hash line is all hashed.
func (d *Decoder) SplitBlock(lines []Line) (hashed, unhashed []Line) {
	if d.last == nil {
		return lines, nil
	}
	return d.last.Split(lines)
}

// SetHash replaces the hash. It must not be called while an operation is pending.
func (d *Decoder) SetHash(h Hash) {
	d.hash = h
}

// Hash returns the current hash, or nil.
func (d *Decoder) Hash() Hash {
	return d.hash
}

// Offset returns the number of bytes read from the source.
func (d *Decoder) Offset() int64 {
	return d.src.off
}

// Pending reports whether an operation is waiting to be resumed.
func (d *Decoder) Pending() bool {
	return d.pending != nil
}

// Reset abandons the pending operation and the bytes it consumed.
func (d *Decoder) Reset() {
	d.pending = nil
}
