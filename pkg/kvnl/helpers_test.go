package kvnl

import (
	"bytes"
	"io"
	"testing"
)

// stutterReader returns ErrWouldBlock before every read and then delivers at
// most chunk bytes.
type stutterReader struct {
	data    []byte
	chunk   int
	blocked bool
	reads   int
}

func newStutterReader(data string, chunk int) *stutterReader {
	return &stutterReader{data: []byte(data), chunk: chunk}
}

func (r *stutterReader) Read(p []byte) (int, error) {
	r.reads++
	if !r.blocked {
		r.blocked = true
		return 0, ErrWouldBlock
	}
	r.blocked = false
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(len(p), r.chunk, len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// trickleWriter accepts at most chunk bytes per call and reports
// ErrWouldBlock for the rest.
type trickleWriter struct {
	buf   bytes.Buffer
	chunk int
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	if len(p) <= w.chunk {
		return w.buf.Write(p)
	}
	n, _ := w.buf.Write(p[:w.chunk])
	return n, ErrWouldBlock
}

// drive polls until the operation stops blocking and returns how many times
// it blocked.
func drive[T any](t *testing.T, poll func() (T, error)) (T, int, error) {
	t.Helper()
	blocks := 0
	for {
		v, err := poll()
		if err != ErrWouldBlock {
			return v, blocks, err
		}
		blocks++
		if blocks > 1_000_000 {
			t.Fatal("operation never completed")
		}
	}
}

func md5Hash(t *testing.T) Hash {
	t.Helper()
	h, err := NewHash("md5")
	if err != nil {
		t.Fatalf("md5: %v", err)
	}
	return h
}
