package kvnl

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Spec is the part of a line before the '=': a key and an optional size.
type Spec struct {
	Key   string
	Size  int  // Declared value length, meaningful when Sized
	Sized bool // Whether the specification declares a size
}

// EncodeSpec returns "key" or, when sized, "key:size".
func EncodeSpec(key string, size int, sized bool) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if !sized {
		return []byte(key), nil
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return fmt.Appendf(nil, "%s:%d", key, size), nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Spec) MarshalText() ([]byte, error) {
	return EncodeSpec(s.Key, s.Size, s.Sized)
}

// ParseSpec decodes "key" or "key:size".
//
// The size must be a plain decimal number: no sign, and no leading zeros
// except for "0" itself.
func ParseSpec(b []byte) (Spec, error) {
	for _, c := range b {
		if c >= 0x80 {
			return Spec{}, fmt.Errorf("%w: %q", ErrDecode, b)
		}
	}
	key, size, sized := strings.Cut(string(b), ":")
	if err := checkKey(key); err != nil {
		return Spec{}, err
	}
	if !sized {
		return Spec{Key: key}, nil
	}
	n, err := parseSize(size)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Key: key, Size: n, Sized: true}, nil
}

func parseSize(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: size is empty", ErrInvalidSize)
	}
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidSize, s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%w: %q has a leading zero", ErrInvalidSize, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidSize, s)
	}
	return n, nil
}

func checkKey(key string) error {
	if strings.ContainsAny(key, ":=\n") {
		return fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	for i := 0; i < len(key); i++ {
		if key[i] >= 0x80 {
			return fmt.Errorf("%w: %q is not ascii", ErrMalformedKey, key)
		}
	}
	return nil
}

// checkSpecToken validates a raw specification before it is written.
// The lone newline is the blank-line sentinel.
func checkSpecToken(spec []byte) error {
	if bytes.IndexByte(spec, '=') >= 0 || (!isNewline(spec) && bytes.IndexByte(spec, '\n') >= 0) {
		return fmt.Errorf("%w: %q", ErrMalformedSpecification, spec)
	}
	return nil
}

func isNewline(b []byte) bool {
	return len(b) == 1 && b[0] == '\n'
}
