package kvnl

import (
	"errors"
	"fmt"
	"syscall"

	"code.hybscloud.com/iox"
)

// Control-flow signals. Neither one is a failure.
var (
	// ErrWouldBlock means no bytes are available yet. The operation kept its
	// state and must be polled again.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrReady is returned once by a Buffer created with ReportReady, when the
	// buffered items first become available.
	ErrReady = errors.New("kvnl: buffer ready")
)

// Sentinel errors
var (
	// ErrCorruption is wrapped by every error caused by malformed input.
	ErrCorruption = errors.New("kvnl: corrupt stream")

	// ErrMalformedKey indicates a key containing ':', '=', '\n' or non-ASCII bytes.
	ErrMalformedKey = errors.New("kvnl: malformed key")

	// ErrMalformedSpecification indicates a specification containing '=' or an embedded newline.
	ErrMalformedSpecification = errors.New("kvnl: malformed specification")

	// ErrInvalidSize indicates a declared size that is negative or not a decimal number.
	ErrInvalidSize = errors.New("kvnl: invalid size")

	// ErrDecode indicates a specification that is not ASCII.
	ErrDecode = errors.New("kvnl: specification is not ascii")

	// ErrFraming indicates a sized value not followed by exactly one newline.
	ErrFraming = errors.New("kvnl: framing error")

	// ErrHashMismatch indicates an embedded digest that disagrees with the computed one.
	ErrHashMismatch = errors.New("kvnl: hash mismatch")

	// ErrInvalidDelimiter indicates a zero-length delimiter.
	ErrInvalidDelimiter = errors.New("kvnl: invalid delimiter")

	// ErrTooLarge indicates a field longer than the configured maximum.
	ErrTooLarge = errors.New("kvnl: size exceeds maximum")

	// ErrPending indicates a call to a Decoder method while a different one
	// is waiting to be resumed.
	ErrPending = errors.New("kvnl: another operation is pending")

	// ErrNoSource indicates a load on a Stream created without a reader.
	ErrNoSource = errors.New("kvnl: stream has no source")

	// ErrNoSink indicates a dump on a Stream created without a writer.
	ErrNoSink = errors.New("kvnl: stream has no sink")
)

// FormatError provides detailed information about a parsing error.
type FormatError struct {
	Offset int64  // Byte offset in the source where the error was detected
	Reason string // Human-readable explanation
	Err    error  // Sentinel describing the class of error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("kvnl: format error at offset %d: %s", e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() []error {
	return []error{e.Err, ErrCorruption}
}

// HashMismatchError reports an embedded digest that does not match the bytes
// before it.
type HashMismatchError struct {
	Offset    int64 // -1 when found while encoding
	Algorithm string
	Expected  string // digest found in the stream
	Actual    string // digest computed over the preceding bytes
}

func (e *HashMismatchError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("kvnl: %s mismatch: expected %s, got %s", e.Algorithm, e.Expected, e.Actual)
	}
	return fmt.Sprintf("kvnl: %s mismatch at offset %d: expected %s, got %s", e.Algorithm, e.Offset, e.Expected, e.Actual)
}

func (e *HashMismatchError) Unwrap() []error {
	return []error{ErrHashMismatch, ErrCorruption}
}

func isWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, syscall.EAGAIN)
}
