package kvnl

import (
	"io"

	"github.com/epithet-ssh/kvnl/pkg/digest"
)

// Hash is a running digest over the bytes of a block.
//
// Name must match the key used for the hash line, and HexDigest must not
// change the state of the hash. *digest.Hash implements it.
type Hash interface {
	io.Writer
	Name() string
	HexDigest() string
}

// NewHash returns a fresh hash for the named algorithm.
func NewHash(name string) (Hash, error) {
	h, err := digest.New(name)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func updateHash(h Hash, p []byte) {
	if h != nil && len(p) > 0 {
		h.Write(p)
	}
}

// checkHash compares an embedded digest with the current state of h.
func checkHash(h Hash, embedded []byte, offset int64) error {
	actual := h.HexDigest()
	if actual != string(embedded) {
		return &HashMismatchError{
			Offset:    offset,
			Algorithm: h.Name(),
			Expected:  string(embedded),
			Actual:    actual,
		}
	}
	return nil
}

func isHashKey(h Hash, key string) bool {
	return h != nil && key == h.Name()
}
