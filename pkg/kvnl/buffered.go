package kvnl

// PollFunc produces the items of a sequence. It returns ErrWouldBlock while
// the next item is not ready, ok == false once the sequence is exhausted, and
// any other error to abort.
type PollFunc[T any] func() (item T, ok bool, err error)

// Buffer drains a PollFunc and hands out all of its items at once.
//
// This is for callers that only care about two states: nothing ready yet, and
// everything ready. Only ReportReady applies.
type Buffer[T any] struct {
	next        PollFunc[T]
	items       []T
	reportReady bool
	reported    bool
	done        bool
	err         error
}

// NewBuffer creates a Buffer over next.
func NewBuffer[T any](next PollFunc[T], opts ...Option) *Buffer[T] {
	cfg := newConfig(opts)
	return &Buffer[T]{next: next, reportReady: cfg.reportReady}
}

// Poll pulls items until next blocks, fails or is exhausted. It returns
// ErrWouldBlock while items are still missing. Once all items are in, it
// returns them in order; with ReportReady, the first such call returns
// ErrReady instead.
func (b *Buffer[T]) Poll() ([]T, error) {
	if b.err != nil {
		return nil, b.err
	}
	for !b.done {
		item, ok, err := b.next()
		if err == ErrWouldBlock {
			return nil, err
		}
		if err != nil {
			b.err = err
			return nil, err
		}
		if !ok {
			b.done = true
			break
		}
		b.items = append(b.items, item)
	}
	if b.reportReady && !b.reported {
		b.reported = true
		return nil, ErrReady
	}
	return b.items, nil
}

// Len returns how many items have been buffered so far.
func (b *Buffer[T]) Len() int {
	return len(b.items)
}

// Done reports whether every item has been buffered.
func (b *Buffer[T]) Done() bool {
	return b.done
}
