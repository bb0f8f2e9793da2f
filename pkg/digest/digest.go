// Package digest provides named, incremental hashes for sealing KVNL blocks.
//
// Names are lower case with underscores ("md5", "sha256", "sha3_256",
// "blake2b"), and the name of a hash is also the key of its hash line.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/md4"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// ErrUnknownAlgorithm indicates a name with no registered constructor.
var ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")

var (
	mu       sync.RWMutex
	registry = map[string]func() hash.Hash{
		"md4":        md4.New,
		"md5":        md5.New,
		"sha1":       sha1.New,
		"sha224":     sha256.New224,
		"sha256":     sha256.New,
		"sha384":     sha512.New384,
		"sha512":     sha512.New,
		"sha512_224": sha512.New512_224,
		"sha512_256": sha512.New512_256,
		"sha3_224":   sha3.New224,
		"sha3_256":   sha3.New256,
		"sha3_384":   sha3.New384,
		"sha3_512":   sha3.New512,
		"ripemd160":  ripemd160.New,
		"blake2b":    unkeyed(blake2b.New512),
		"blake2s":    unkeyed(blake2s.New256),
		"blake3":     func() hash.Hash { return blake3.New(32, nil) },
	}
)

// unkeyed adapts a keyed constructor. A nil key never fails.
func unkeyed(fn func(key []byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := fn(nil)
		if err != nil {
			panic(err)
		}
		return h
	}
}

// Register adds or replaces a named algorithm.
func Register(name string, fn func() hash.Hash) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Names returns the registered algorithm names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Hash is a named hash.Hash that reports its digest as lowercase hex.
type Hash struct {
	name string
	h    hash.Hash
}

// New returns a fresh hash for the named algorithm.
func New(name string) (*Hash, error) {
	mu.RLock()
	fn, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q: algorithm should be one of %s", ErrUnknownAlgorithm, name, strings.Join(Names(), ", "))
	}
	return &Hash{name: name, h: fn()}, nil
}

// Wrap names an existing hash.Hash.
func Wrap(name string, h hash.Hash) *Hash {
	return &Hash{name: name, h: h}
}

// Name returns the algorithm name, which is also the key of the hash line.
func (h *Hash) Name() string { return h.name }

// Write adds data to the hash state.
func (h *Hash) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum returns the raw digest without changing the state.
func (h *Hash) Sum() []byte { return h.h.Sum(nil) }

// HexDigest returns the lowercase hex digest without changing the state.
func (h *Hash) HexDigest() string { return hex.EncodeToString(h.Sum()) }

// Size returns the digest length in bytes.
func (h *Hash) Size() int { return h.h.Size() }

// Reset clears the hash state.
func (h *Hash) Reset() { h.h.Reset() }
